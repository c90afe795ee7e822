package app

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Run is the `sessiond serve` entrypoint.
// It returns an error instead of calling os.Exit to keep defers effective and lint clean.
func Run() error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx)
}

// RunCollect is the `sessiond gc` entrypoint: one reclamation pass, result as JSON on w.
// Logs go to stderr so w stays machine-readable. A negative maxLifetime uses the configured lifetime.
func RunCollect(maxLifetime time.Duration, w io.Writer) error {
	cfg := LoadConfig()
	log := NewLoggerTo(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	if maxLifetime < 0 {
		maxLifetime = cfg.GCMaxLifetime
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.sessions.Collect(ctx, maxLifetime)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(toCollectionResponse(c))
}
