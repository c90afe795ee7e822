package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sessiond/cmd/internal/ids"
)

const (
	// MinReplicaOffsetStep is the smallest per-replica cutoff step.
	MinReplicaOffsetStep = 24 * time.Hour

	// Replica ids strictly between these bounds are skewed.
	replicaSkewLow  = 1
	replicaSkewHigh = 10
)

// Collection describes one reclamation pass.
type Collection struct {
	PassID    string
	ReplicaID int64
	Offset    time.Duration
	Cutoff    time.Time
	Threshold int64
	Deleted   int64
}

// Offset returns how far replica replicaID pushes its cutoff back.
//
// Only replicas 2..9 are skewed, each by (id-1) steps of
// max(24h, maxLifetime/10). Replica 1 and ids outside the band collect at
// the plain cutoff.
func Offset(replicaID int64, maxLifetime time.Duration) time.Duration {
	if replicaID <= replicaSkewLow || replicaID >= replicaSkewHigh {
		return 0
	}
	step := max(MinReplicaOffsetStep, maxLifetime/10)
	return time.Duration(replicaID-1) * step
}

// Cutoff returns the replica-adjusted expiry cutoff. now is truncated to whole seconds.
func Cutoff(now time.Time, replicaID int64, maxLifetime time.Duration) time.Time {
	base := time.Unix(now.Unix(), 0)
	return base.Add(-maxLifetime).Add(-Offset(replicaID, maxLifetime))
}

// threshold converts cutoff to whole seconds such that t < threshold iff t < cutoff for integer t.
func threshold(cutoff time.Time) int64 {
	s := cutoff.Unix()
	if cutoff.Nanosecond() > 0 {
		s++
	}
	return s
}

// Reclaimer deletes expired rows. It takes no session locks: deleting an
// expired session that a client is still touching is an accepted race.
type Reclaimer struct {
	exp     Expirer
	now     func() time.Time
	metrics *Metrics
	log     *slog.Logger
}

func newReclaimer(exp Expirer, o *options) *Reclaimer {
	return &Reclaimer{
		exp:     exp,
		now:     o.now,
		metrics: o.metrics,
		log:     o.log,
	}
}

// Collect deletes every row older than the replica-adjusted cutoff.
func (r *Reclaimer) Collect(ctx context.Context, maxLifetime time.Duration) (Collection, error) {
	if maxLifetime < 0 {
		return Collection{}, fmt.Errorf("%w: negative max lifetime %s", ErrConfig, maxLifetime)
	}

	now := r.now()
	c := Collection{PassID: ids.MustNew(now)}

	replicaID, err := r.exp.ReplicaID(ctx)
	if err != nil {
		r.metrics.collection("replica_error")
		r.log.Error("gc.pass.replica_fail", "pass_id", c.PassID, "err", err)
		return c, fmt.Errorf("%w: %w", ErrReplicaIdentity, err)
	}

	c.ReplicaID = replicaID
	c.Offset = Offset(replicaID, maxLifetime)
	c.Cutoff = Cutoff(now, replicaID, maxLifetime)
	c.Threshold = threshold(c.Cutoff)

	deleted, err := r.exp.DeleteBefore(ctx, c.Threshold)
	if err != nil {
		r.metrics.collection("error")
		r.log.Error("gc.pass.delete_fail", "pass_id", c.PassID, "err", err)
		return c, backendErr("collect", err)
	}
	c.Deleted = deleted

	r.metrics.collected(c)
	r.log.Info("gc.pass.done",
		"pass_id", c.PassID,
		"replica_id", c.ReplicaID,
		"offset_s", int64(c.Offset/time.Second),
		"threshold", c.Threshold,
		"deleted", c.Deleted,
	)
	return c, nil
}
