package session

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SchemaSQL is the reference DDL for the default schema and table.
//
//go:embed schema.sql
var SchemaSQL string

// DefaultReplicaQuery reads the custom setting sessiond.server_id, defaulting to 1 when unset.
const DefaultReplicaQuery = `SELECT COALESCE(NULLIF(current_setting('sessiond.server_id', true), ''), '1')::bigint`

var pgIdentRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

// PostgresBackend implements Backend on PostgreSQL.
//
// Ownership model:
// - PostgresBackend does NOT own the pgx pool. The caller must close the pool.
//
// Locking model:
//   - Session-level advisory locks (pg_try_advisory_lock) keyed by
//     hashtextextended(name, 0), taken on a connection checked out for the
//     whole lifecycle. A dropped connection frees its locks server-side.
//   - A connection that may still hold a lock is closed instead of being
//     returned to the pool.
type PostgresBackend struct {
	pool         *pgxpool.Pool
	schema       string
	table        string
	replicaQuery string
}

// PostgresOption configures PostgresBackend behavior.
type PostgresOption func(*PostgresBackend) error

// WithSchema sets the DB schema holding the sessions table (default: "sessiond").
func WithSchema(schema string) PostgresOption {
	return func(b *PostgresBackend) error {
		schema = strings.TrimSpace(schema)
		if !isValidPGIdent(schema) {
			return fmt.Errorf("%w: invalid schema identifier %q", ErrConfig, schema)
		}
		b.schema = schema
		return nil
	}
}

// WithTable sets the sessions table name (default: "sessions").
func WithTable(table string) PostgresOption {
	return func(b *PostgresBackend) error {
		table = strings.TrimSpace(table)
		if !isValidPGIdent(table) {
			return fmt.Errorf("%w: invalid table identifier %q", ErrConfig, table)
		}
		b.table = table
		return nil
	}
}

// WithReplicaQuery sets the query returning the server's replica id as a single bigint.
func WithReplicaQuery(q string) PostgresOption {
	return func(b *PostgresBackend) error {
		q = strings.TrimSpace(q)
		if q == "" {
			return fmt.Errorf("%w: empty replica query", ErrConfig)
		}
		b.replicaQuery = q
		return nil
	}
}

// NewPostgresBackend constructs a Postgres-backed session Backend.
func NewPostgresBackend(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresBackend, error) {
	b := &PostgresBackend{
		pool:         pool,
		schema:       "sessiond",
		table:        "sessions",
		replicaQuery: DefaultReplicaQuery,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	if b.pool == nil {
		return nil, errors.New("session: nil pool")
	}
	return b, nil
}

func (b *PostgresBackend) ident() string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{b.schema, b.table}.Sanitize()
}

// Acquire checks a connection out of the pool for one lifecycle.
func (b *PostgresBackend) Acquire(ctx context.Context) (Conn, error) {
	c, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &pgConn{c: c, table: b.ident(), held: make(map[string]struct{})}, nil
}

// ReplicaID runs the replica query. A NULL result is an error.
func (b *PostgresBackend) ReplicaID(ctx context.Context) (int64, error) {
	var id *int64
	if err := b.pool.QueryRow(ctx, b.replicaQuery).Scan(&id); err != nil {
		return 0, err
	}
	if id == nil {
		return 0, errors.New("replica query returned NULL")
	}
	return *id, nil
}

// DeleteBefore removes rows with timestamp < threshold.
func (b *PostgresBackend) DeleteBefore(ctx context.Context, threshold int64) (int64, error) {
	tag, err := b.pool.Exec(ctx, `DELETE FROM `+b.ident()+` WHERE "timestamp" < $1`, threshold)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type pgConn struct {
	c     *pgxpool.Conn
	table string
	held  map[string]struct{}
}

func (p *pgConn) Get(ctx context.Context, id []byte) (Record, error) {
	rec := Record{ID: id}
	err := p.c.QueryRow(ctx,
		`SELECT "timestamp", data FROM `+p.table+` WHERE id = $1`,
		id,
	).Scan(&rec.Timestamp, &rec.Data)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (p *pgConn) Insert(ctx context.Context, rec Record) error {
	_, err := p.c.Exec(ctx,
		`INSERT INTO `+p.table+` (id, "timestamp", data) VALUES ($1, $2, $3)`,
		rec.ID, rec.Timestamp, nonNil(rec.Data),
	)
	return err
}

func (p *pgConn) Update(ctx context.Context, id []byte, timestamp int64, data []byte) error {
	_, err := p.c.Exec(ctx,
		`UPDATE `+p.table+` SET "timestamp" = $2, data = $3 WHERE id = $1`,
		id, timestamp, nonNil(data),
	)
	return err
}

func (p *pgConn) Touch(ctx context.Context, id []byte, timestamp int64) error {
	_, err := p.c.Exec(ctx,
		`UPDATE `+p.table+` SET "timestamp" = $2 WHERE id = $1`,
		id, timestamp,
	)
	return err
}

func (p *pgConn) Delete(ctx context.Context, id []byte) error {
	_, err := p.c.Exec(ctx, `DELETE FROM `+p.table+` WHERE id = $1`, id)
	return err
}

func (p *pgConn) TryLock(ctx context.Context, name string) (bool, error) {
	var ok bool
	if err := p.c.QueryRow(ctx,
		`SELECT pg_try_advisory_lock(hashtextextended($1, 0))`, name,
	).Scan(&ok); err != nil {
		return false, err
	}
	if ok {
		p.held[name] = struct{}{}
	}
	return ok, nil
}

func (p *pgConn) Unlock(ctx context.Context, name string) error {
	if _, ok := p.held[name]; !ok {
		return nil
	}
	var released bool
	if err := p.c.QueryRow(ctx,
		`SELECT pg_advisory_unlock(hashtextextended($1, 0))`, name,
	).Scan(&released); err != nil {
		return err
	}
	delete(p.held, name)
	return nil
}

func (p *pgConn) Release() {
	if p.c == nil {
		return
	}
	if len(p.held) > 0 {
		// Closing the connection drops its session-level locks; pgxpool
		// destroys closed connections on Release instead of reusing them.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = p.c.Conn().Close(ctx)
		cancel()
	}
	p.c.Release()
	p.c = nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
