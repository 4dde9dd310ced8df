package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithMemoryDriver(t *testing.T) {
	t.Setenv("POLL_STORE_DRIVER", " Memory ")
	t.Setenv("KAFKA_BROKERS", " broker-a:9092 ,, broker-b:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, []string{"broker-a:9092", "broker-b:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "pollhub", cfg.ServiceName)
	assert.Equal(t, 10*time.Minute, cfg.ExpirySweepInterval)
	assert.Equal(t, 168*time.Hour, cfg.IdempotencyTTL)
	assert.True(t, cfg.EnableExpiryScheduler)
}

func TestLoadRequiresPostgresDSN(t *testing.T) {
	t.Setenv("POLL_STORE_DRIVER", "postgres")
	t.Setenv("POSTGRES_DSN", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_DSN")
}

func TestValidateRejections(t *testing.T) {
	base := Config{
		StoreDriver:         StoreDriverSQLite,
		SQLitePath:          "polls.db",
		ExpirySweepInterval: time.Minute,
		OutboxPollInterval:  time.Second,
		CastRatePerSecond:   1,
		CastRateBurst:       1,
	}
	require.NoError(t, base.Validate())

	cases := map[string]func(*Config){
		"unknown driver": func(c *Config) { c.StoreDriver = "mongo" },
		"empty sqlite":   func(c *Config) { c.SQLitePath = " " },
		"sweep interval": func(c *Config) { c.ExpirySweepInterval = 0 },
		"outbox":         func(c *Config) { c.OutboxPollInterval = -time.Second },
		"rate":           func(c *Config) { c.CastRateBurst = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("POLL_STORE_DRIVER", "memory")
	t.Setenv("EXPIRY_SWEEP_INTERVAL", "soon")

	_, err := Load()
	assert.ErrorContains(t, err, "parse env")
}
