package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"

	// StoreDriverMemory keeps state inside one process. It suits tests and
	// single-process demos; the worker refuses it.
	StoreDriverMemory = "memory"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string   `env:"SERVICE_NAME" envDefault:"pollhub"`
	HTTPPort     string   `env:"HTTP_PORT" envDefault:"8080"`
	StoreDriver  string   `env:"POLL_STORE_DRIVER" envDefault:"postgres"`
	PostgresDSN  string   `env:"POSTGRES_DSN"`
	SQLitePath   string   `env:"SQLITE_PATH" envDefault:"./data/pollhub.db"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	OTelEndpoint string   `env:"OTEL_ENDPOINT"`

	ExpirySweepInterval   time.Duration `env:"EXPIRY_SWEEP_INTERVAL" envDefault:"10m"`
	ExpirySweepBatchSize  int           `env:"EXPIRY_SWEEP_BATCH_SIZE" envDefault:"500"`
	OutboxPollInterval    time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	IdempotencyTTL        time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"168h"`
	EnableExpiryScheduler bool          `env:"ENABLE_EXPIRY_SCHEDULER" envDefault:"true"`

	CastRatePerSecond float64 `env:"CAST_RATE_PER_SECOND" envDefault:"5"`
	CastRateBurst     int     `env:"CAST_RATE_BURST" envDefault:"10"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	brokers := make([]string, 0, len(cfg.KafkaBrokers))
	for _, value := range cfg.KafkaBrokers {
		value = strings.TrimSpace(value)
		if value != "" {
			brokers = append(brokers, value)
		}
	}
	cfg.KafkaBrokers = brokers
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("POSTGRES_DSN is required when POLL_STORE_DRIVER=%s", StoreDriverPostgres)
		}
	case StoreDriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required when POLL_STORE_DRIVER=%s", StoreDriverSQLite)
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unsupported POLL_STORE_DRIVER %q", c.StoreDriver)
	}
	if c.ExpirySweepInterval <= 0 {
		return fmt.Errorf("EXPIRY_SWEEP_INTERVAL must be positive")
	}
	if c.OutboxPollInterval <= 0 {
		return fmt.Errorf("OUTBOX_POLL_INTERVAL must be positive")
	}
	if c.CastRatePerSecond <= 0 || c.CastRateBurst <= 0 {
		return fmt.Errorf("CAST_RATE_PER_SECOND and CAST_RATE_BURST must be positive")
	}
	return nil
}
