package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"APP_ADDR", "DATABASE_URL", "DATABASE_DRIVER", "KAFKA_BROKERS", "REQUEST_TIMEOUT", "MIGRATION_PROGRESS_AFTER", "LOCATION_CACHE_TTL", "OUTBOX_POLL_INTERVAL"} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 2*time.Second, cfg.Server.MigrationProgressAfter)
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.Redis.LocationCacheTTL)
	assert.Equal(t, "migration-ledger", cfg.Kafka.Topic)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("APP_ADDR", ":9090")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("MIGRATION_PROGRESS_AFTER", "5")
	t.Setenv("REQUEST_TIMEOUT", "45s")
	t.Setenv("DEV_SEED", "true")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Second, cfg.Server.MigrationProgressAfter)
	assert.Equal(t, 45*time.Second, cfg.Server.RequestTimeout)
	assert.True(t, cfg.Server.DevSeed)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Run("driver", func(t *testing.T) {
		t.Setenv("DATABASE_DRIVER", "mysql")
		_, err := FromEnv()
		assert.Error(t, err)
	})
	t.Run("duration", func(t *testing.T) {
		t.Setenv("DATABASE_DRIVER", "")
		t.Setenv("REQUEST_TIMEOUT", "soon")
		_, err := FromEnv()
		assert.Error(t, err)
	})
}
