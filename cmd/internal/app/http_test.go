package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sessiond/cmd/internal/session"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, cfg Config, backend *session.MemoryBackend) *App {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()

	m, err := session.NewManager(backend,
		session.WithLogger(log),
		session.WithMetrics(session.NewMetrics(reg)),
		session.WithLockPollInterval(time.Millisecond),
	)
	require.NoError(t, err)

	return &App{cfg: cfg, log: log, registry: reg, sessions: m}
}

func serve(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func TestHTTP_HealthAndReadiness(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, Config{}, session.NewMemoryBackend())
	h := a.Handler()

	rr := serve(t, h, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok\n", rr.Body.String())

	rr = serve(t, h, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusOK, rr.Code)

	strict := newTestApp(t, Config{ReadinessRequireDB: true}, session.NewMemoryBackend())
	rr = serve(t, strict.Handler(), http.MethodGet, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHTTP_MetricsExposeSessionCounters(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, Config{}, session.NewMemoryBackend())

	ctx := context.Background()
	sh := a.Sessions().NewHandler()
	require.NoError(t, sh.Write(ctx, "abc", []byte("hello")))
	require.NoError(t, sh.Close(ctx))

	rr := serve(t, a.Handler(), http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `sessiond_session_writes_total{outcome="inserted"} 1`)
}

func TestHTTP_AdminGCDisabledByDefault(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, Config{}, session.NewMemoryBackend())
	rr := serve(t, a.Handler(), http.MethodPost, "/admin/gc")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHTTP_AdminGCRunsPass(t *testing.T) {
	t.Parallel()

	backend := session.NewMemoryBackend(session.WithReplicaID(2))
	backend.Put(session.Record{ID: []byte("ancient"), Timestamp: 1, Data: []byte("x")})
	backend.Put(session.Record{ID: []byte("fresh"), Timestamp: time.Now().Unix(), Data: []byte("y")})

	a := newTestApp(t, Config{AdminEnabled: true, GCMaxLifetime: time.Hour}, backend)

	rr := serve(t, a.Handler(), http.MethodPost, "/admin/gc?max_lifetime=3600")
	require.Equal(t, http.StatusOK, rr.Code)

	var got collectionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, int64(2), got.ReplicaID)
	require.Equal(t, int64(86400), got.OffsetSeconds)
	require.Equal(t, int64(1), got.Deleted)
	require.Len(t, got.PassID, 26)
	require.Len(t, backend.Records(), 1)
}

func TestHTTP_AdminGCErrors(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, Config{AdminEnabled: true}, session.NewMemoryBackend())
	rr := serve(t, a.Handler(), http.MethodPost, "/admin/gc?max_lifetime=later")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "invalid_max_lifetime")

	broken := newTestApp(t, Config{AdminEnabled: true},
		session.NewMemoryBackend(session.WithReplicaError(io.ErrUnexpectedEOF)))
	rr = serve(t, broken.Handler(), http.MethodPost, "/admin/gc")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.True(t, strings.Contains(rr.Body.String(), "replica_identity_unavailable"))
}

func TestRunReclaimer_CollectsOnTick(t *testing.T) {
	t.Parallel()

	backend := session.NewMemoryBackend()
	backend.Put(session.Record{ID: []byte("ancient"), Timestamp: 1, Data: []byte("x")})

	a := newTestApp(t, Config{GCMaxLifetime: time.Hour}, backend)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.runReclaimer(ctx, time.NewTicker(5*time.Millisecond)) }()

	require.Eventually(t, func() bool { return len(backend.Records()) == 0 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("reclaimer did not stop after cancel")
	}
}
