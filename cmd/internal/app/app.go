// Package app wires the sessiond runtime: config, logging, the session backend,
// HTTP routes and the periodic reclaimer.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"sessiond/cmd/internal/session"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// App is the sessiond runtime: it owns the backend, the session Manager and HTTP wiring.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool

	registry *prometheus.Registry
	sessions *session.Manager
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	backend, dbPool, dbEnabled, err := newBackend(ctx, cfg, sessCfg, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := append(sessCfg.Options(),
		session.WithLogger(log),
		session.WithMetrics(session.NewMetrics(reg)),
	)
	sessions, err := session.NewManager(backend, opts...)
	if err != nil {
		if dbPool != nil {
			dbPool.Close()
		}
		return nil, err
	}

	return &App{
		cfg:       cfg,
		log:       log,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		registry:  reg,
		sessions:  sessions,
	}, nil
}

// Sessions returns the session Manager for embedding hosts.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Handler returns the full HTTP handler (routes + request logging).
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.sessions, a.registry)
	return WithRequestLogging(mux, a.log)
}

// Close releases the DB pool. The pool is owned here, not by the session backend.
func (a *App) Close() {
	if a.dbPool != nil {
		a.dbPool.Close()
	}
}

// Run serves HTTP and runs the periodic reclaimer until ctx is cancelled or either fails.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 60*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"db_enabled", a.dbEnabled,
		"gc_enabled", a.cfg.GCEnabled,
		"gc_interval", a.cfg.GCInterval.String(),
		"gc_max_lifetime", a.cfg.GCMaxLifetime.String(),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	if a.cfg.GCEnabled {
		g.Go(func() error {
			return a.runReclaimer(gctx, time.NewTicker(a.cfg.GCInterval))
		})
	}

	err := g.Wait()
	a.log.Info("server.stopped")
	return err
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newBackend decides between the Postgres backend and the in-memory dev backend.
func newBackend(ctx context.Context, cfg Config, sessCfg session.Config, log Logger) (session.Backend, *pgxpool.Pool, bool, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.memory_backend")
		return session.NewMemoryBackend(), nil, false, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, err
	}

	backend, err := session.NewPostgresBackend(pool, sessCfg.PostgresOptions()...)
	if err != nil {
		pool.Close()
		return nil, nil, false, err
	}

	log.Info("db.enabled.postgres_backend", "schema", sessCfg.Schema, "table", sessCfg.Table)
	return backend, pool, true, nil
}
