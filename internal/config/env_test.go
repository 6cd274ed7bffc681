package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/unbound")

	cfg := LoadConfig()

	require.NotNil(t, cfg)
	assert.Equal(t, "nats://localhost:4222", cfg.NatsURL)
	assert.Equal(t, "unbound_index", cfg.IndexName)
	assert.Equal(t, "cosine", cfg.IndexMetric)
	assert.Equal(t, 768, cfg.EmbedDim)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 100, cfg.UpsertBatchSize)
	assert.Equal(t, 5*time.Second, cfg.UpsertRetryBackoff)
	assert.Equal(t, 60*time.Second, cfg.JobAckWait)
	assert.Equal(t, "8080", cfg.Port)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/unbound")
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("UPSERT_RETRY_BACKOFF", "2s")
	t.Setenv("INDEX_METRIC", "l2")

	cfg := LoadConfig()

	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 2*time.Second, cfg.UpsertRetryBackoff)
	assert.Equal(t, "l2", cfg.IndexMetric)
}

func TestLoadConfigBadIntFallsBack(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/unbound")
	t.Setenv("CHUNK_SIZE", "not-a-number")

	cfg := LoadConfig()

	assert.Equal(t, 1000, cfg.ChunkSize)
}
