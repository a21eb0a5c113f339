package main

import "time"

// appConfig is the top-level deployment configuration. Component-specific
// settings live on the components' own config structs and are loaded
// separately.
type appConfig struct {
	AppName     string `env:"APP_NAME" envDefault:"renewkit"`
	Environment string `env:"APP_ENV" envDefault:"development"`

	// StorageDriver selects the record store backend: memory, mongo, or
	// postgres. Memory is for local development only.
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"memory"`

	// VerifierDriver selects the payment verification backend: gateway uses
	// the REST gateway the webhooks come from, paddle verifies against
	// Paddle's transactions API.
	VerifierDriver string `env:"VERIFIER_DRIVER" envDefault:"gateway"`

	// PlansPath points at the YAML plan catalog.
	PlansPath string `env:"PLANS_PATH" envDefault:"plans.yaml"`

	// RateLimitDisabled switches off the per-IP limiter entirely.
	RateLimitDisabled bool `env:"RATE_LIMIT_DISABLED"`
	// RateLimitRedis stores rate limit buckets in Redis so the limit holds
	// across replicas; empty falls back to per-process in-memory buckets.
	RateLimitRedis    bool          `env:"RATE_LIMIT_REDIS"`
	RateLimitCapacity int           `env:"RATE_LIMIT_CAPACITY" envDefault:"60"`
	RateLimitRefill   int           `env:"RATE_LIMIT_REFILL" envDefault:"1"`
	RateLimitInterval time.Duration `env:"RATE_LIMIT_INTERVAL" envDefault:"1s"`
}
