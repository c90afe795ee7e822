package app

import (
	"context"
	"time"
)

// runReclaimer runs a reclamation pass on every tick until ctx is done.
// A failed pass is logged by the session package and retried on the next tick.
func (a *App) runReclaimer(ctx context.Context, ticker *time.Ticker) error {
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, _ = a.sessions.Collect(ctx, a.cfg.GCMaxLifetime)
		}
	}
}
