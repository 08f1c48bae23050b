// Package config loads this worker's environment-variable configuration,
// applying defaults and failing fast if a required value cannot be parsed.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config is the full set of environment-derived settings for this worker.
type Config struct {
	RedisHost      string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort      int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	RedisTimeoutMS int           `env:"REDIS_TIMEOUT_MS" envDefault:"5000"`
	RedisPassword  string        `env:"REDIS_PASSWORD" envDefault:""`

	DefaultProcessorURL  string `env:"PAYMENT_PROCESSOR_DEFAULT_URL" envDefault:"http://localhost:8001"`
	FallbackProcessorURL string `env:"PAYMENT_PROCESSOR_FALLBACK_URL" envDefault:"http://localhost:8002"`

	MainQueueKey string `env:"REDIS_QUEUE_PAYMENTS_MAIN" envDefault:"rinha-payments-main-queue"`

	MaxConcurrentPayments int `env:"WORKER_MAX_CONCURRENT_PAYMENTS" envDefault:"100"`
	BatchSize             int `env:"WORKER_BATCH_SIZE" envDefault:"100"`
	ExecutionDelayMS      int `env:"WORKER_EXECUTION_DELAY" envDefault:"200"`

	AssumeHealthyWhenUnknown    bool `env:"WORKER_ASSUME_HEALTHY_WHEN_UNKNOWN" envDefault:"false"`
	MaxRetryAttemptsPerDispatch int  `env:"WORKER_MAX_RETRY_ATTEMPTS_PER_DISPATCH" envDefault:"2"`
	MaxReenqueueCount           int  `env:"WORKER_MAX_REENQUEUE_COUNT" envDefault:"3"`
}

// RedisTimeout returns the configured store timeout as a time.Duration.
func (c Config) RedisTimeout() time.Duration {
	return time.Duration(c.RedisTimeoutMS) * time.Millisecond
}

// ExecutionDelay returns the consumer tick period as a time.Duration.
func (c Config) ExecutionDelay() time.Duration {
	return time.Duration(c.ExecutionDelayMS) * time.Millisecond
}

// Load reads Config from the environment, applying defaults and failing
// fast if a value cannot be parsed or a required invariant is violated.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("load configuration: %w", err)
	}
	if cfg.MaxConcurrentPayments <= 0 {
		return Config{}, fmt.Errorf("load configuration: WORKER_MAX_CONCURRENT_PAYMENTS must be positive")
	}
	if cfg.BatchSize <= 0 {
		return Config{}, fmt.Errorf("load configuration: WORKER_BATCH_SIZE must be positive")
	}
	return cfg, nil
}
