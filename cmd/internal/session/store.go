package session

import (
	"bytes"
	"context"
	"errors"
	"time"
)

// DefaultTouchAfter is how stale an unchanged row may get before a write refreshes its timestamp.
const DefaultTouchAfter = 300 * time.Second

// WriteOutcome tells which row mutation a Write performed.
type WriteOutcome string

const (
	// OutcomeInserted means a new row was created.
	OutcomeInserted WriteOutcome = "inserted"
	// OutcomeUpdated means data and timestamp were replaced.
	OutcomeUpdated WriteOutcome = "updated"
	// OutcomeTouched means only the timestamp was refreshed.
	OutcomeTouched WriteOutcome = "touched"
	// OutcomeSkipped means nothing was written.
	OutcomeSkipped WriteOutcome = "skipped"
)

// Store applies the read/write/destroy policy on top of a RowStore.
// Callers serialize access per id with the advisory lock.
type Store struct {
	rows       RowStore
	now        func() time.Time
	touchAfter time.Duration
	metrics    *Metrics
}

func newStore(rows RowStore, o *options) *Store {
	return &Store{
		rows:       rows,
		now:        o.now,
		touchAfter: o.touchAfter,
		metrics:    o.metrics,
	}
}

// Read returns the stored data for id, or empty data when there is no row.
func (s *Store) Read(ctx context.Context, id []byte) ([]byte, error) {
	rec, err := s.rows.Get(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return []byte{}, nil
	}
	if err != nil {
		return nil, backendErr("read", err)
	}
	if rec.Data == nil {
		return []byte{}, nil
	}
	return rec.Data, nil
}

// Write stores data for id, inserting, updating, touching or skipping as needed.
func (s *Store) Write(ctx context.Context, id []byte, data []byte) (WriteOutcome, error) {
	now := s.now().Unix()

	rec, err := s.rows.Get(ctx, id)
	switch {
	case errors.Is(err, ErrRecordNotFound):
		if err := s.rows.Insert(ctx, Record{ID: id, Timestamp: now, Data: data}); err != nil {
			return "", backendErr("insert", err)
		}
		return s.done(OutcomeInserted), nil
	case err != nil:
		return "", backendErr("write", err)
	}

	if !bytes.Equal(rec.Data, data) {
		if err := s.rows.Update(ctx, id, now, data); err != nil {
			return "", backendErr("update", err)
		}
		return s.done(OutcomeUpdated), nil
	}

	if time.Duration(now-rec.Timestamp)*time.Second > s.touchAfter {
		if err := s.rows.Touch(ctx, id, now); err != nil {
			return "", backendErr("touch", err)
		}
		return s.done(OutcomeTouched), nil
	}

	return s.done(OutcomeSkipped), nil
}

// Destroy deletes the row for id if present.
func (s *Store) Destroy(ctx context.Context, id []byte) error {
	if err := s.rows.Delete(ctx, id); err != nil {
		return backendErr("destroy", err)
	}
	return nil
}

func (s *Store) done(o WriteOutcome) WriteOutcome {
	s.metrics.write(o)
	return o
}
