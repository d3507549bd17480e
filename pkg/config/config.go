// Package config resolves engine configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/libertyarow/neo4j/pkg/storage"
)

// Config holds everything needed to open an engine and run sessions
// over it.
type Config struct {
	DataDir  string
	InMemory bool

	LabelCapacity            int
	PropertyKeyCapacity      int
	RelationshipTypeCapacity int

	InlineThreshold   int
	OverflowBlockSize int

	SessionTTL time.Duration
}

// FromEnv reads GRAPHDB_* variables, leaving unset fields zero so the
// engine's own defaults apply.
func FromEnv() Config {
	return Config{
		DataDir:                  getenv("GRAPHDB_DATA_DIR", "data"),
		InMemory:                 getenvBool("GRAPHDB_IN_MEMORY", false),
		LabelCapacity:            getenvInt("GRAPHDB_LABEL_CAPACITY", 0),
		PropertyKeyCapacity:      getenvInt("GRAPHDB_PROPERTY_KEY_CAPACITY", 0),
		RelationshipTypeCapacity: getenvInt("GRAPHDB_REL_TYPE_CAPACITY", 0),
		InlineThreshold:          getenvInt("GRAPHDB_INLINE_THRESHOLD", 0),
		OverflowBlockSize:        getenvInt("GRAPHDB_OVERFLOW_BLOCK_SIZE", 0),
		SessionTTL:               getenvDuration("GRAPHDB_SESSION_TTL", 30*time.Second),
	}
}

// StorageOptions maps the config onto engine options.
func (c Config) StorageOptions() storage.Options {
	return storage.Options{
		DataDir:                  c.DataDir,
		InMemory:                 c.InMemory,
		LabelCapacity:            c.LabelCapacity,
		PropertyKeyCapacity:      c.PropertyKeyCapacity,
		RelationshipTypeCapacity: c.RelationshipTypeCapacity,
		InlineThreshold:          c.InlineThreshold,
		OverflowBlockSize:        c.OverflowBlockSize,
	}
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Plain numbers are treated as seconds.
		if n, nerr := strconv.Atoi(v); nerr == nil {
			return time.Duration(n) * time.Second
		}
		return fallback
	}
	return d
}
