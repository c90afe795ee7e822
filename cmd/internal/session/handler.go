package session

import (
	"context"
	"errors"
	"time"
)

// SessionHandler is the pluggable session-handler contract a host runtime drives.
type SessionHandler interface {
	// Open acquires the advisory lock for id.
	Open(ctx context.Context, id string) error
	// Close releases the lock and the backend connection.
	Close(ctx context.Context) error
	// Read returns the session data, or empty data for an unknown session.
	Read(ctx context.Context, id string) ([]byte, error)
	// Write stores the session data.
	Write(ctx context.Context, id string, data []byte) error
	// Destroy deletes the session and releases the lock.
	Destroy(ctx context.Context, id string) error
	// Collect reclaims sessions idle for longer than maxLifetime.
	Collect(ctx context.Context, maxLifetime time.Duration) (Collection, error)
}

var _ SessionHandler = (*Handler)(nil)

// Manager owns the shared backend and configuration and hands out Handlers.
// It is safe for concurrent use; the Handlers it creates are not.
type Manager struct {
	backend   Backend
	opts      options
	reclaimer *Reclaimer
}

// NewManager constructs a Manager over backend.
func NewManager(backend Backend, opts ...Option) (*Manager, error) {
	if backend == nil {
		return nil, errors.New("session: nil backend")
	}

	o := defaultOptions()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	return &Manager{
		backend:   backend,
		opts:      o,
		reclaimer: newReclaimer(backend, &o),
	}, nil
}

// NewHandler returns a Handler for one session lifecycle.
func (m *Manager) NewHandler() *Handler {
	return &Handler{m: m, hasher: NewHasher()}
}

// Collect runs one reclamation pass. It does not need a Handler or any lock.
func (m *Manager) Collect(ctx context.Context, maxLifetime time.Duration) (Collection, error) {
	return m.reclaimer.Collect(ctx, maxLifetime)
}

// Handler runs one session lifecycle. Between Open and Close/Destroy it
// exclusively owns one backend connection, which carries the advisory lock.
//
// The lock is named after the active identifier: the one passed to Open, or
// to the first Read/Write when Open was skipped.
type Handler struct {
	m      *Manager
	hasher *Hasher

	active string
	conn   Conn
	lock   *AdvisoryLock
	store  *Store
}

// Hasher exposes the lifecycle's identifier digest cache.
func (h *Handler) Hasher() *Hasher { return h.hasher }

// Locked reports whether the lifecycle currently holds its advisory lock.
func (h *Handler) Locked() bool { return h.lock != nil && h.lock.Held() }

// Open acquires the advisory lock for id. Opening an already locked lifecycle is a no-op.
func (h *Handler) Open(ctx context.Context, id string) error {
	if !h.Locked() {
		h.active = id
	}
	return h.ensureLocked(ctx)
}

// Close releases the advisory lock and hands the connection back.
func (h *Handler) Close(ctx context.Context) error {
	return h.unlock(ctx)
}

// Read returns the data stored for id; an unknown session reads as empty.
func (h *Handler) Read(ctx context.Context, id string) ([]byte, error) {
	h.activate(id)
	if err := h.ensureLocked(ctx); err != nil {
		return nil, err
	}
	return h.store.Read(ctx, h.hasher.Sum(id).Bytes())
}

// Write stores data for id under the write-amortization policy.
func (h *Handler) Write(ctx context.Context, id string, data []byte) error {
	_, err := h.WriteOutcome(ctx, id, data)
	return err
}

// WriteOutcome is Write, reporting which row mutation was performed.
func (h *Handler) WriteOutcome(ctx context.Context, id string, data []byte) (WriteOutcome, error) {
	h.activate(id)
	if err := h.ensureLocked(ctx); err != nil {
		return "", err
	}
	return h.store.Write(ctx, h.hasher.Sum(id).Bytes(), data)
}

// Destroy deletes the row for id and releases the lock. Destroying an
// unknown or already destroyed session succeeds.
func (h *Handler) Destroy(ctx context.Context, id string) error {
	key := h.hasher.Sum(id).Bytes()

	if h.conn != nil {
		if err := h.store.Destroy(ctx, key); err != nil {
			_ = h.unlock(ctx)
			return err
		}
		return h.unlock(ctx)
	}

	conn, err := h.m.backend.Acquire(ctx)
	if err != nil {
		return backendErr("acquire connection", err)
	}
	defer conn.Release()

	return newStore(conn, &h.m.opts).Destroy(ctx, key)
}

// Collect runs one reclamation pass through the Manager.
func (h *Handler) Collect(ctx context.Context, maxLifetime time.Duration) (Collection, error) {
	return h.m.Collect(ctx, maxLifetime)
}

func (h *Handler) activate(id string) {
	if h.active == "" {
		h.active = id
	}
}

func (h *Handler) ensureLocked(ctx context.Context) error {
	if h.Locked() {
		return nil
	}

	if h.conn == nil {
		conn, err := h.m.backend.Acquire(ctx)
		if err != nil {
			return backendErr("acquire connection", err)
		}
		h.conn = conn
		h.lock = newAdvisoryLock(conn, &h.m.opts)
		h.store = newStore(conn, &h.m.opts)
	}

	if err := h.lock.Acquire(ctx, h.hasher.Sum(h.active).Hex()); err != nil {
		h.releaseConn()
		return err
	}
	return nil
}

func (h *Handler) unlock(ctx context.Context) error {
	if h.conn == nil {
		return nil
	}

	err := h.lock.Release(ctx)
	h.releaseConn()
	return err
}

func (h *Handler) releaseConn() {
	if h.conn != nil {
		h.conn.Release()
	}
	h.conn = nil
	h.lock = nil
	h.store = nil
	h.active = ""
}
