package session

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
)

// MemoryBackend is an in-process Backend for dev mode and tests.
// Locks belong to the connection that took them and are dropped when it is released.
type MemoryBackend struct {
	mu         sync.Mutex
	rows       map[string]Record
	locks      map[string]*memConn
	replicaID  int64
	replicaErr error
}

// MemoryOption configures a MemoryBackend.
type MemoryOption func(*MemoryBackend)

// WithReplicaID sets the replica id reported to the reclaimer (default 1).
func WithReplicaID(id int64) MemoryOption {
	return func(b *MemoryBackend) { b.replicaID = id }
}

// WithReplicaError makes every replica-id query fail with err.
func WithReplicaError(err error) MemoryOption {
	return func(b *MemoryBackend) { b.replicaErr = err }
}

// NewMemoryBackend constructs an empty in-memory backend.
func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	b := &MemoryBackend{
		rows:      make(map[string]Record),
		locks:     make(map[string]*memConn),
		replicaID: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// SetReplicaID changes the replica id reported to the reclaimer.
func (b *MemoryBackend) SetReplicaID(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replicaID = id
}

// Records returns a copy of all rows ordered by timestamp.
func (b *MemoryBackend) Records() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Record, 0, len(b.rows))
	for _, r := range b.rows {
		out = append(out, cloneRecord(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// Put stores rec as-is, replacing any existing row. Useful for seeding.
func (b *MemoryBackend) Put(rec Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows[string(rec.ID)] = cloneRecord(rec)
}

// LockHeld reports whether any connection holds name.
func (b *MemoryBackend) LockHeld(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.locks[name]
	return ok
}

// Acquire returns a new connection.
func (b *MemoryBackend) Acquire(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memConn{b: b}, nil
}

// ReplicaID returns the configured replica id or error.
func (b *MemoryBackend) ReplicaID(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.replicaErr != nil {
		return 0, b.replicaErr
	}
	return b.replicaID, nil
}

// DeleteBefore removes rows with timestamp < threshold.
func (b *MemoryBackend) DeleteBefore(ctx context.Context, threshold int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var n int64
	for k, r := range b.rows {
		if r.Timestamp < threshold {
			delete(b.rows, k)
			n++
		}
	}
	return n, nil
}

var errMemConnReleased = errors.New("memory backend: connection released")

type memConn struct {
	b        *MemoryBackend
	released bool
}

func (c *memConn) check(ctx context.Context) error {
	if c.released {
		return errMemConnReleased
	}
	return ctx.Err()
}

func (c *memConn) Get(ctx context.Context, id []byte) (Record, error) {
	if err := c.check(ctx); err != nil {
		return Record{}, err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	r, ok := c.b.rows[string(id)]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return cloneRecord(r), nil
}

func (c *memConn) Insert(ctx context.Context, rec Record) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if _, ok := c.b.rows[string(rec.ID)]; ok {
		return errors.New("memory backend: duplicate key")
	}
	c.b.rows[string(rec.ID)] = cloneRecord(rec)
	return nil
}

func (c *memConn) Update(ctx context.Context, id []byte, timestamp int64, data []byte) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	r, ok := c.b.rows[string(id)]
	if !ok {
		return nil
	}
	r.Timestamp = timestamp
	r.Data = slices.Clone(data)
	c.b.rows[string(id)] = r
	return nil
}

func (c *memConn) Touch(ctx context.Context, id []byte, timestamp int64) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	r, ok := c.b.rows[string(id)]
	if !ok {
		return nil
	}
	r.Timestamp = timestamp
	c.b.rows[string(id)] = r
	return nil
}

func (c *memConn) Delete(ctx context.Context, id []byte) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	delete(c.b.rows, string(id))
	return nil
}

func (c *memConn) TryLock(ctx context.Context, name string) (bool, error) {
	if err := c.check(ctx); err != nil {
		return false, err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	owner, ok := c.b.locks[name]
	if ok && owner != c {
		return false, nil
	}
	c.b.locks[name] = c
	return true, nil
}

func (c *memConn) Unlock(ctx context.Context, name string) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if c.b.locks[name] == c {
		delete(c.b.locks, name)
	}
	return nil
}

func (c *memConn) Release() {
	if c.released {
		return
	}
	c.released = true

	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	for name, owner := range c.b.locks {
		if owner == c {
			delete(c.b.locks, name)
		}
	}
}

func cloneRecord(r Record) Record {
	return Record{
		ID:        slices.Clone(r.ID),
		Timestamp: r.Timestamp,
		Data:      slices.Clone(r.Data),
	}
}
