package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 50*time.Millisecond, cfg.KafkaBatchTimeout)
	require.Equal(t, 2*time.Second, cfg.OutboxPollInterval)
	require.Equal(t, 25, cfg.OutboxBatchSize)
	require.True(t, cfg.OutboxEnabled)
	require.Equal(t, []string{"carbon_activity_events", "carbon_offset_events"}, cfg.ConsumerTopics)
	require.Equal(t, time.Minute, cfg.DLQBaseDelay)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/ledger.db")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("OUTBOX_ENABLED", "false")
	t.Setenv("DLQ_POLL_INTERVAL", "5s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, StoreDriverSQLite, cfg.StoreDriver)
	require.Equal(t, "/tmp/ledger.db", cfg.SQLitePath)
	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	require.False(t, cfg.OutboxEnabled)
	require.Equal(t, 5*time.Second, cfg.DLQPollInterval)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "mongo")
		_, err := Load()
		require.ErrorContains(t, err, "unknown store driver")
	})
	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("OUTBOX_POLL_INTERVAL", "soon")
		_, err := Load()
		require.ErrorContains(t, err, "parse env")
	})
	t.Run("zero batch", func(t *testing.T) {
		t.Setenv("OUTBOX_BATCH_SIZE", "0")
		_, err := Load()
		require.ErrorContains(t, err, "OUTBOX_BATCH_SIZE")
	})
}
