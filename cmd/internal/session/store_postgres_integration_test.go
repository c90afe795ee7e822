package session

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"sessiond/cmd/internal/ids"
)

// Integration tests are enabled when SESSIOND_DATABASE_URL is set.
// Each test works on its own copy of the sessions table.

var (
	schemaOnce sync.Once
	schemaErr  error
)

func TestPostgresBackend_LifecycleRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend, _ := mustPostgresBackend(ctx, t, "SELECT 1::bigint")
	m := newTestManager(t, backend)

	h := m.NewHandler()
	require.NoError(t, h.Open(ctx, "abc"))

	got, err := h.Read(ctx, "abc")
	require.NoError(t, err)
	require.Empty(t, got)

	out, err := h.WriteOutcome(ctx, "abc", []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, OutcomeInserted, out)

	out, err = h.WriteOutcome(ctx, "abc", []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, out)

	out, err = h.WriteOutcome(ctx, "abc", []byte{0x00, 0x01})
	require.NoError(t, err)
	require.Equal(t, OutcomeUpdated, out)

	got, err = h.Read(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x01}, got)

	require.NoError(t, h.Destroy(ctx, "abc"))
	require.NoError(t, h.Destroy(ctx, "abc"))

	got, err = h.Read(ctx, "abc")
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoError(t, h.Close(ctx))
}

func TestPostgresBackend_AdvisoryLockExcludesSecondLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend, _ := mustPostgresBackend(ctx, t, "SELECT 1::bigint")
	m := newTestManager(t, backend, WithLockPollInterval(10*time.Millisecond))

	id := "lock-" + ids.MustNew(time.Now())

	first := m.NewHandler()
	require.NoError(t, first.Open(ctx, id))

	waitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	second := m.NewHandler()
	require.ErrorIs(t, second.Open(waitCtx, id), context.DeadlineExceeded)

	require.NoError(t, first.Close(ctx))
	require.NoError(t, second.Open(ctx, id))
	require.NoError(t, second.Close(ctx))
}

func TestPostgresBackend_CollectUsesReplicaOffset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend, pool := mustPostgresBackend(ctx, t, "SELECT 2::bigint")

	now := time.Now().Unix()
	day := int64(24 * 60 * 60)
	table := backend.ident()

	for i, ts := range []int64{now - 3600 - day - 1, now - 3600 - 1, now} {
		_, err := pool.Exec(ctx,
			`INSERT INTO `+table+` (id, "timestamp", data) VALUES ($1, $2, $3)`,
			[]byte(strings.Repeat(string(rune('a'+i)), 32)), ts, []byte("x"),
		)
		require.NoError(t, err)
	}

	m := newTestManager(t, backend)
	c, err := m.Collect(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(2), c.ReplicaID)
	require.Equal(t, 24*time.Hour, c.Offset)
	require.Equal(t, int64(1), c.Deleted)

	var left int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM `+table).Scan(&left))
	require.Equal(t, 2, left)
}

func TestPostgresBackend_NullReplicaIsFatal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend, _ := mustPostgresBackend(ctx, t, "SELECT NULL::bigint")

	_, err := newTestManager(t, backend).Collect(ctx, time.Hour)
	require.ErrorIs(t, err, ErrReplicaIdentity)
}

func mustPostgresBackend(ctx context.Context, t *testing.T, replicaQuery string) (*PostgresBackend, *pgxpool.Pool) {
	t.Helper()

	dbURL := os.Getenv("SESSIOND_DATABASE_URL")
	if dbURL == "" {
		t.Skip("SESSIOND_DATABASE_URL is not set; skipping Postgres integration test")
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		if os.Getenv("CI") == "" {
			t.Skipf("Postgres unreachable (%v); skipping integration test", err)
		}
		t.Fatalf("ping: %v", err)
	}

	schemaOnce.Do(func() {
		_, schemaErr = pool.Exec(ctx, SchemaSQL)
	})
	if schemaErr != nil {
		t.Fatalf("apply schema: %v", schemaErr)
	}

	table := "sessions_it_" + strings.ToLower(ids.MustNew(time.Now()))
	ident := pgx.Identifier{"sessiond", table}.Sanitize()
	if _, err := pool.Exec(ctx, `CREATE TABLE `+ident+` (LIKE sessiond.sessions INCLUDING ALL)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DROP TABLE IF EXISTS `+ident)
	})

	backend, err := NewPostgresBackend(pool, WithTable(table), WithReplicaQuery(replicaQuery))
	require.NoError(t, err)
	return backend, pool
}
