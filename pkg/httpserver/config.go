package httpserver

import "time"

// Config is loaded from OPS_HTTP_* environment variables. WriteTimeout
// must leave room for a full metrics scrape.
type Config struct {
	Addr              string        `env:"OPS_HTTP_ADDR" envDefault:":9090"`
	ReadHeaderTimeout time.Duration `env:"OPS_HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	WriteTimeout      time.Duration `env:"OPS_HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout   time.Duration `env:"OPS_HTTP_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// NewFromConfig is New with cfg applied before opts. Zero fields keep the
// defaults.
func NewFromConfig(cfg Config, opts ...Option) *Server {
	return New(append([]Option{
		WithAddr(cfg.Addr),
		WithReadHeaderTimeout(cfg.ReadHeaderTimeout),
		WithWriteTimeout(cfg.WriteTimeout),
		WithShutdownTimeout(cfg.ShutdownTimeout),
	}, opts...)...)
}
