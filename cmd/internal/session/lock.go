package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultLockPollInterval is the wait between lock attempts while the lock is busy.
const DefaultLockPollInterval = time.Second

// AdvisoryLock is the lifecycle's hold on a named backend lock.
//
// Acquire retries indefinitely while the lock is busy, waiting one poll
// interval between attempts; backend errors end the loop immediately.
// The wait honors ctx, which is how callers impose a deadline.
type AdvisoryLock struct {
	locker  Locker
	poll    time.Duration
	after   func(time.Duration) <-chan time.Time
	now     func() time.Time
	metrics *Metrics
	log     *slog.Logger

	name string
	held bool
}

func newAdvisoryLock(locker Locker, o *options) *AdvisoryLock {
	return &AdvisoryLock{
		locker:  locker,
		poll:    o.pollInterval,
		after:   o.after,
		now:     o.now,
		metrics: o.metrics,
		log:     o.log,
	}
}

// Held reports whether the lock is currently held.
func (l *AdvisoryLock) Held() bool { return l.held }

// Name returns the held lock name, or "" when nothing is held.
func (l *AdvisoryLock) Name() string { return l.name }

// Acquire blocks until name is granted. It is a no-op while a lock is held.
func (l *AdvisoryLock) Acquire(ctx context.Context, name string) error {
	if l.held {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := l.now()
	attempts := 0
	for {
		attempts++
		l.metrics.lockAttempt()

		ok, err := l.locker.TryLock(ctx, name)
		if err != nil {
			return backendErr("acquire lock", err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("session: acquire lock %s: %w", name, ctx.Err())
		case <-l.after(l.poll):
		}
	}

	l.name = name
	l.held = true

	waited := l.now().Sub(start)
	l.metrics.lockAcquired(waited)
	if attempts > 1 {
		l.log.Debug("lock.acquired.after_wait", "lock", name, "attempts", attempts, "wait_ms", waited.Milliseconds())
	}
	return nil
}

// Release frees the held lock. It is a no-op when nothing is held.
//
// The handle forgets the lock even when the backend call fails; the
// connection carrying it is then discarded, which frees it server-side.
func (l *AdvisoryLock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}

	name := l.name
	l.name = ""
	l.held = false

	if err := l.locker.Unlock(ctx, name); err != nil {
		return backendErr("release lock", err)
	}
	return nil
}
