package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/nickborrello/baystate-coordinator/internal/store"
)

// Reaper periodically returns abandoned chunk claims to the pending pool so a
// different runner can pick them up. It relies on the same conditional-update
// discipline as claims, so several coordinator instances can run reapers
// concurrently without interfering.
type Reaper struct {
	store            store.Store
	reclaimThreshold time.Duration
	interval         time.Duration
}

func NewReaper(s store.Store, reclaimThreshold, interval time.Duration) *Reaper {
	return &Reaper{store: s, reclaimThreshold: reclaimThreshold, interval: interval}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep requeues every claim older than the reclaim threshold. Idempotent and
// safe to call at any time.
func (r *Reaper) Sweep(ctx context.Context) {
	staleBefore := time.Now().UTC().Add(-r.reclaimThreshold)
	n, err := r.store.RequeueStaleChunks(ctx, staleBefore)
	if err != nil {
		slog.Error("requeue stale chunks", "error", err)
		return
	}
	if n > 0 {
		slog.Warn("requeued stale chunk claims", "count", n)
	}
}
