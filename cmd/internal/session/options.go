package session

import (
	"fmt"
	"io"
	"log/slog"
	"time"
)

type options struct {
	log          *slog.Logger
	metrics      *Metrics
	now          func() time.Time
	after        func(time.Duration) <-chan time.Time
	pollInterval time.Duration
	touchAfter   time.Duration
}

func defaultOptions() options {
	return options{
		log:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:          time.Now,
		after:        time.After,
		pollInterval: DefaultLockPollInterval,
		touchAfter:   DefaultTouchAfter,
	}
}

// Option configures a Manager.
type Option func(*options) error

// WithLogger sets the logger (default: discard).
func WithLogger(log *slog.Logger) Option {
	return func(o *options) error {
		if log != nil {
			o.log = log
		}
		return nil
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(o *options) error {
		o.metrics = m
		return nil
	}
}

// WithClock overrides the wall clock used for row timestamps and cutoffs.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now == nil {
			return fmt.Errorf("%w: nil clock", ErrConfig)
		}
		o.now = now
		return nil
	}
}

// WithTimer overrides the wait used between lock attempts (default: time.After).
func WithTimer(after func(time.Duration) <-chan time.Time) Option {
	return func(o *options) error {
		if after == nil {
			return fmt.Errorf("%w: nil timer", ErrConfig)
		}
		o.after = after
		return nil
	}
}

// WithLockPollInterval sets the wait between busy lock attempts.
func WithLockPollInterval(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("%w: lock poll interval must be positive", ErrConfig)
		}
		o.pollInterval = d
		return nil
	}
}

// WithTouchAfter sets how stale unchanged data may get before a write refreshes its timestamp.
func WithTouchAfter(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return fmt.Errorf("%w: touch threshold must not be negative", ErrConfig)
		}
		o.touchAfter = d
		return nil
	}
}
