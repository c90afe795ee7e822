package session

import (
	"os"
	"strings"
	"time"
)

// Config defines runtime configuration for the session subsystem.
type Config struct {
	// Schema and Table locate the sessions table in Postgres.
	Schema string
	Table  string

	// LockPollInterval is the wait between busy advisory-lock attempts.
	LockPollInterval time.Duration

	// TouchAfter is how stale unchanged data may get before a write refreshes its timestamp.
	TouchAfter time.Duration

	// ReplicaQuery returns the server's replica id as one bigint.
	ReplicaQuery string
}

// DefaultConfig returns the defaults matching the reference schema.
func DefaultConfig() Config {
	return Config{
		Schema:           "sessiond",
		Table:            "sessions",
		LockPollInterval: DefaultLockPollInterval,
		TouchAfter:       DefaultTouchAfter,
		ReplicaQuery:     DefaultReplicaQuery,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - SESSIOND_SCHEMA
//   - SESSIOND_TABLE
//   - SESSIOND_LOCK_POLL_INTERVAL
//   - SESSIOND_TOUCH_AFTER
//   - SESSIOND_REPLICA_QUERY
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("SESSIOND_SCHEMA")); v != "" {
		if !isValidPGIdent(v) {
			return Config{}, ErrConfig
		}
		cfg.Schema = v
	}

	if v := strings.TrimSpace(os.Getenv("SESSIOND_TABLE")); v != "" {
		if !isValidPGIdent(v) {
			return Config{}, ErrConfig
		}
		cfg.Table = v
	}

	if v := os.Getenv("SESSIOND_LOCK_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.LockPollInterval = d
	}

	if v := os.Getenv("SESSIOND_TOUCH_AFTER"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.TouchAfter = d
	}

	if v := strings.TrimSpace(os.Getenv("SESSIOND_REPLICA_QUERY")); v != "" {
		cfg.ReplicaQuery = v
	}

	return cfg, nil
}

// Options returns the Manager options for cfg.
func (c Config) Options() []Option {
	return []Option{
		WithLockPollInterval(c.LockPollInterval),
		WithTouchAfter(c.TouchAfter),
	}
}

// PostgresOptions returns the PostgresBackend options for cfg.
func (c Config) PostgresOptions() []PostgresOption {
	return []PostgresOption{
		WithSchema(c.Schema),
		WithTable(c.Table),
		WithReplicaQuery(c.ReplicaQuery),
	}
}
