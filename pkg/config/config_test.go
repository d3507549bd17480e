package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()
	assert.Equal(t, "data", cfg.DataDir)
	assert.False(t, cfg.InMemory)
	assert.Zero(t, cfg.LabelCapacity, "unset capacities defer to engine defaults")
	assert.Equal(t, 30*time.Second, cfg.SessionTTL)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("GRAPHDB_DATA_DIR", "/var/lib/graph")
	t.Setenv("GRAPHDB_IN_MEMORY", "true")
	t.Setenv("GRAPHDB_LABEL_CAPACITY", "128")
	t.Setenv("GRAPHDB_PROPERTY_KEY_CAPACITY", "256")
	t.Setenv("GRAPHDB_REL_TYPE_CAPACITY", "64")
	t.Setenv("GRAPHDB_INLINE_THRESHOLD", "48")
	t.Setenv("GRAPHDB_OVERFLOW_BLOCK_SIZE", "96")
	t.Setenv("GRAPHDB_SESSION_TTL", "90s")

	cfg := FromEnv()
	assert.Equal(t, "/var/lib/graph", cfg.DataDir)
	assert.True(t, cfg.InMemory)
	assert.Equal(t, 128, cfg.LabelCapacity)
	assert.Equal(t, 256, cfg.PropertyKeyCapacity)
	assert.Equal(t, 64, cfg.RelationshipTypeCapacity)
	assert.Equal(t, 48, cfg.InlineThreshold)
	assert.Equal(t, 96, cfg.OverflowBlockSize)
	assert.Equal(t, 90*time.Second, cfg.SessionTTL)

	opts := cfg.StorageOptions()
	require.Equal(t, cfg.DataDir, opts.DataDir)
	require.Equal(t, cfg.LabelCapacity, opts.LabelCapacity)
	require.Equal(t, cfg.InlineThreshold, opts.InlineThreshold)
}

func TestFromEnvBadValuesFallBack(t *testing.T) {
	t.Setenv("GRAPHDB_LABEL_CAPACITY", "not-a-number")
	t.Setenv("GRAPHDB_IN_MEMORY", "maybe")
	t.Setenv("GRAPHDB_SESSION_TTL", "45")

	cfg := FromEnv()
	assert.Zero(t, cfg.LabelCapacity)
	assert.False(t, cfg.InMemory)
	assert.Equal(t, 45*time.Second, cfg.SessionTTL, "bare numbers are seconds")
}
