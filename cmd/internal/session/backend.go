package session

import "context"

// Record mirrors one row of the sessions table.
type Record struct {
	ID        []byte
	Timestamp int64
	Data      []byte
}

// RowStore is row-level access to the sessions table, keyed by raw digest.
type RowStore interface {
	// Get loads a row. It returns ErrRecordNotFound when absent.
	Get(ctx context.Context, id []byte) (Record, error)

	// Insert creates a new row.
	Insert(ctx context.Context, rec Record) error

	// Update sets both timestamp and data.
	Update(ctx context.Context, id []byte, timestamp int64, data []byte) error

	// Touch sets the timestamp only.
	Touch(ctx context.Context, id []byte, timestamp int64) error

	// Delete removes a row; a missing row is not an error.
	Delete(ctx context.Context, id []byte) error
}

// Locker grants named advisory locks scoped to one backend connection.
type Locker interface {
	// TryLock makes a single non-blocking attempt. It returns false, nil when
	// the lock is held by another connection.
	TryLock(ctx context.Context, name string) (bool, error)

	// Unlock frees a lock held by this connection. Unlocking a name that is
	// not held is a no-op.
	Unlock(ctx context.Context, name string) error
}

// Conn is a backend connection owned exclusively by one lifecycle.
// Locks taken through it die with it.
type Conn interface {
	RowStore
	Locker

	// Release hands the connection back. Implementations must not return a
	// connection that may still hold an advisory lock to a shared pool.
	Release()
}

// Expirer is the reclamation-side view of a backend.
type Expirer interface {
	// ReplicaID reports the identity of the backend instance being queried.
	ReplicaID(ctx context.Context) (int64, error)

	// DeleteBefore removes every row with timestamp < threshold and reports how many were removed.
	DeleteBefore(ctx context.Context, threshold int64) (int64, error)
}

// Backend is the shared backing store.
type Backend interface {
	Expirer

	// Acquire checks out a dedicated connection for one lifecycle.
	Acquire(ctx context.Context) (Conn, error)
}
