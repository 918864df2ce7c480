package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dmitrymomot/billingkit/pkg/environment"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// ContextExtractor pulls one attribute out of a context, reporting false
// when the context does not carry it.
type ContextExtractor func(ctx context.Context) (slog.Attr, bool)

type settings struct {
	level      slog.Leveler
	format     Format
	out        io.Writer
	attrs      []slog.Attr
	extractors []ContextExtractor
}

type Option func(*settings)

func WithLevel(l slog.Leveler) Option {
	return func(s *settings) {
		if l != nil {
			s.level = l
		}
	}
}

// WithLevelName parses names accepted by slog.Level ("debug", "WARN",
// "info+2"). An empty name keeps the current level; an invalid one panics.
func WithLevelName(name string) Option {
	return func(s *settings) {
		if strings.TrimSpace(name) == "" {
			return
		}
		var l slog.Level
		if err := l.UnmarshalText([]byte(name)); err != nil {
			panic(fmt.Errorf("invalid log level %q: %w", name, err))
		}
		s.level = l
	}
}

// WithFormat panics on unknown formats so a misconfigured process fails at
// startup.
func WithFormat(f Format) Option {
	return func(s *settings) {
		if f != FormatJSON && f != FormatText {
			panic(fmt.Errorf("invalid log format %q: must be %q or %q", f, FormatJSON, FormatText))
		}
		s.format = f
	}
}

func WithOutput(w io.Writer) Option {
	return func(s *settings) {
		if w != nil {
			s.out = w
		}
	}
}

// WithAttr adds static attributes to every record.
func WithAttr(attrs ...slog.Attr) Option {
	return func(s *settings) { s.attrs = append(s.attrs, attrs...) }
}

func WithContextExtractors(extractors ...ContextExtractor) Option {
	return func(s *settings) {
		for _, ex := range extractors {
			if ex != nil {
				s.extractors = append(s.extractors, ex)
			}
		}
	}
}

// WithEnvironment picks level and format for env and tags records with
// "service" and "env". Development logs debug text, anything else info JSON.
// Unknown environments are treated as development.
func WithEnvironment(env environment.Environment, service string) Option {
	return func(s *settings) {
		switch env {
		case environment.Staging, environment.Production:
			s.level, s.format = slog.LevelInfo, FormatJSON
		default:
			env = environment.Development
			s.level, s.format = slog.LevelDebug, FormatText
		}
		if service != "" {
			s.attrs = append(s.attrs, slog.String("service", service))
		}
		s.attrs = append(s.attrs, slog.String("env", env.String()))
	}
}

// New returns a logger writing JSON at info level to stdout unless options
// say otherwise. Records logged with a context also carry the attributes
// stored by WithAttrs and those of the registered extractors.
func New(opts ...Option) *slog.Logger {
	s := &settings{level: slog.LevelInfo, format: FormatJSON, out: os.Stdout}
	for _, opt := range opts {
		opt(s)
	}

	ho := &slog.HandlerOptions{Level: s.level}
	var h slog.Handler = slog.NewJSONHandler(s.out, ho)
	if s.format == FormatText {
		h = slog.NewTextHandler(s.out, ho)
	}
	if len(s.attrs) > 0 {
		h = h.WithAttrs(s.attrs)
	}

	return slog.New(&contextHandler{Handler: h, extractors: s.extractors})
}

// Discard drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// contextHandler resolves context attributes per record, so values added to
// a context after the logger was built are still picked up.
type contextHandler struct {
	slog.Handler
	extractors []ContextExtractor
}

func (h *contextHandler) Handle(ctx context.Context, rec slog.Record) error {
	rec.AddAttrs(attrsFromContext(ctx)...)
	for _, ex := range h.extractors {
		if a, ok := ex(ctx); ok {
			rec.AddAttrs(a)
		}
	}
	return h.Handler.Handle(ctx, rec)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithAttrs(attrs), extractors: h.extractors}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithGroup(name), extractors: h.extractors}
}
