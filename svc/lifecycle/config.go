package lifecycle

import "time"

// Config holds the engine's environment-provided parameters. Retry count
// and interval drive the payment-failure episode; the grace window bounds
// how long access is retained after retries are exhausted.
type Config struct {
	MaxRetries    int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"RETRY_INTERVAL" envDefault:"24h"`
	GracePeriod   time.Duration `env:"GRACE_PERIOD" envDefault:"168h"`
}

// withDefaults fills zero values so a zero Config behaves like the
// documented env defaults.
func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 24 * time.Hour
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 7 * 24 * time.Hour
	}
	return c
}
