package redis

import "time"

// Config is loaded from REDIS_* environment variables.
// ConnectionURL uses the redis:// scheme, for example
// "redis://:secret@localhost:6379/0". ConnectTimeout bounds all connection
// attempts together.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`

	// Locks expire after LockTTL if their holder dies; Acquire polls every
	// LockRetryBackoff while the key is taken.
	LockTTL          time.Duration `env:"REDIS_LOCK_TTL" envDefault:"30s"`
	LockRetryBackoff time.Duration `env:"REDIS_LOCK_RETRY_BACKOFF" envDefault:"25ms"`
	LockKeyPrefix    string        `env:"REDIS_LOCK_KEY_PREFIX" envDefault:"billing:lock:"`
}
