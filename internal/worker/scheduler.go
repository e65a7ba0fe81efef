package worker

import (
	"context"
	"log"
	"time"

	"github.com/remindly/followup-gateway/internal/followup"
)

// Scheduler is the periodic planning loop: it creates due followups and
// settles pending emails that hit the followup maximum or the tracking
// window. All three passes are conditional writes, so overlapping runs on
// two instances are harmless.
type Scheduler struct {
	Orch *followup.Orchestrator

	Interval  time.Duration
	BatchSize int
}

func NewScheduler(orch *followup.Orchestrator, interval time.Duration, batchSize int) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Scheduler{Orch: orch, Interval: interval, BatchSize: batchSize}
}

// Run blocks until ctx is cancelled, ticking every Interval.
func (w *Scheduler) Run(ctx context.Context) error {
	tick := time.NewTicker(w.Interval)
	defer tick.Stop()

	for {
		w.pass(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}

func (w *Scheduler) pass(ctx context.Context) {
	if n, err := w.Orch.SweepMaxReached(ctx, w.BatchSize); err != nil {
		log.Printf("[scheduler] sweep max-reached err: %v", err)
	} else if n > 0 {
		log.Printf("[scheduler] settled max-reached: %d", n)
	}

	if n, err := w.Orch.SweepExpired(ctx, w.BatchSize); err != nil {
		log.Printf("[scheduler] sweep expired err: %v", err)
	} else if n > 0 {
		log.Printf("[scheduler] settled expired: %d", n)
	}

	if n, err := w.Orch.ScheduleDue(ctx, w.BatchSize); err != nil {
		log.Printf("[scheduler] schedule err: %v", err)
	} else if n > 0 {
		log.Printf("[scheduler] scheduled followups: %d", n)
	}
}
