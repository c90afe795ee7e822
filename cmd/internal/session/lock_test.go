package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type scriptedLocker struct {
	busy     int
	err      error
	calls    int
	unlocked []string
}

func (l *scriptedLocker) TryLock(_ context.Context, _ string) (bool, error) {
	l.calls++
	if l.err != nil {
		return false, l.err
	}
	return l.calls > l.busy, nil
}

func (l *scriptedLocker) Unlock(_ context.Context, name string) error {
	l.unlocked = append(l.unlocked, name)
	return nil
}

func testLock(locker Locker, after func(time.Duration) <-chan time.Time) *AdvisoryLock {
	o := defaultOptions()
	o.after = after
	return newAdvisoryLock(locker, &o)
}

func TestAdvisoryLock_RetriesWhileBusy(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	locker := &scriptedLocker{busy: 3}
	l := testLock(locker, func(d time.Duration) <-chan time.Time {
		waits = append(waits, d)
		return firesNow(d)
	})

	require.NoError(t, l.Acquire(context.Background(), "lock-a"))
	require.True(t, l.Held())
	require.Equal(t, "lock-a", l.Name())
	require.Equal(t, 4, locker.calls)
	require.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, waits)
}

func TestAdvisoryLock_AcquireWhileHeldIsNoop(t *testing.T) {
	t.Parallel()

	locker := &scriptedLocker{}
	l := testLock(locker, firesNow)

	require.NoError(t, l.Acquire(context.Background(), "lock-a"))
	require.NoError(t, l.Acquire(context.Background(), "lock-b"))
	require.Equal(t, 1, locker.calls)
	require.Equal(t, "lock-a", l.Name())
}

func TestAdvisoryLock_BackendErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	locker := &scriptedLocker{err: boom}
	l := testLock(locker, firesNow)

	err := l.Acquire(context.Background(), "lock-a")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrBackend)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, locker.calls)
	require.False(t, l.Held())
}

func TestAdvisoryLock_ContextStopsWait(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	locker := &scriptedLocker{busy: 1 << 30}
	l := testLock(locker, func(time.Duration) <-chan time.Time {
		cancel()
		return make(chan time.Time)
	})

	err := l.Acquire(ctx, "lock-a")
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, l.Held())
	require.Equal(t, 1, locker.calls)
}

func TestAdvisoryLock_ReleaseExactlyOnce(t *testing.T) {
	t.Parallel()

	locker := &scriptedLocker{}
	l := testLock(locker, firesNow)

	require.NoError(t, l.Release(context.Background()))
	require.Empty(t, locker.unlocked)

	require.NoError(t, l.Acquire(context.Background(), "lock-a"))
	require.NoError(t, l.Release(context.Background()))
	require.NoError(t, l.Release(context.Background()))
	require.Equal(t, []string{"lock-a"}, locker.unlocked)
	require.False(t, l.Held())
	require.Empty(t, l.Name())
}
