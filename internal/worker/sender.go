package worker

import (
	"context"
	"log"
	"time"

	"github.com/remindly/followup-gateway/internal/followup"
)

// Sender dispatches followups whose scheduled_for has passed. Each row is
// claimed (scheduled→sent) before the provider call, so a reply or manual
// stop landing mid-dispatch can never double-send.
type Sender struct {
	Orch *followup.Orchestrator

	Interval  time.Duration
	BatchSize int
}

func NewSender(orch *followup.Orchestrator, interval time.Duration, batchSize int) *Sender {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sender{Orch: orch, Interval: interval, BatchSize: batchSize}
}

// Run blocks until ctx is cancelled, ticking every Interval.
func (w *Sender) Run(ctx context.Context) error {
	tick := time.NewTicker(w.Interval)
	defer tick.Stop()

	for {
		if n, err := w.Orch.SendDue(ctx, w.BatchSize); err != nil {
			log.Printf("[sender] send due err: %v", err)
		} else if n > 0 {
			log.Printf("[sender] dispatched followups: %d", n)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}
