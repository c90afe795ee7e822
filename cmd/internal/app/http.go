package app

import (
	"errors"
	"net/http"
	"time"

	"sessiond/cmd/internal/session"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type collectionResponse struct {
	PassID        string    `json:"pass_id"`
	ReplicaID     int64     `json:"replica_id"`
	OffsetSeconds int64     `json:"offset_seconds"`
	Cutoff        time.Time `json:"cutoff"`
	Threshold     int64     `json:"threshold"`
	Deleted       int64     `json:"deleted"`
}

func toCollectionResponse(c session.Collection) collectionResponse {
	return collectionResponse{
		PassID:        c.PassID,
		ReplicaID:     c.ReplicaID,
		OffsetSeconds: int64(c.Offset / time.Second),
		Cutoff:        c.Cutoff.UTC(),
		Threshold:     c.Threshold,
		Deleted:       c.Deleted,
	}
}

func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	cfg Config,
	dbPool *pgxpool.Pool,
	dbEnabled bool,
	sessions *session.Manager,
	gatherer prometheus.Gatherer,
) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && !dbEnabled {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if dbEnabled && dbPool != nil {
			if err := PingDB(r.Context(), dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	if cfg.AdminEnabled {
		mux.HandleFunc("POST /admin/gc", handleAdminGC(log, cfg, sessions))
	}
}

// handleAdminGC runs one reclamation pass. ?max_lifetime= accepts a Go duration
// or bare seconds and defaults to the configured lifetime.
func handleAdminGC(log Logger, cfg Config, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxLifetime := cfg.GCMaxLifetime
		if v := r.URL.Query().Get("max_lifetime"); v != "" {
			d, err := parseDuration(v)
			if err != nil || d < 0 {
				writeError(w, http.StatusBadRequest, "invalid_max_lifetime", "max_lifetime must be a non-negative duration")
				return
			}
			maxLifetime = d
		}

		c, err := sessions.Collect(r.Context(), maxLifetime)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, toCollectionResponse(c))
		case errors.Is(err, session.ErrReplicaIdentity):
			writeError(w, http.StatusServiceUnavailable, "replica_identity_unavailable", "cannot determine replica id; pass aborted")
		case errors.Is(err, session.ErrConfig):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		default:
			log.Error("admin.gc.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "backend_error", "reclamation failed")
		}
	}
}
