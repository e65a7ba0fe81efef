package worker

import (
	"context"
	"log"
	"time"

	"github.com/remindly/followup-gateway/internal/lease"
)

// LeaseKeeper renews provider webhook leases before they lapse and
// deactivates the ones that already have. Provider leases cap out well
// below the tracking window, so this loop is what keeps notifications
// flowing for long-lived tracked emails.
type LeaseKeeper struct {
	Manager *lease.Manager

	Interval time.Duration
}

func NewLeaseKeeper(mgr *lease.Manager, interval time.Duration) *LeaseKeeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &LeaseKeeper{Manager: mgr, Interval: interval}
}

// Run blocks until ctx is cancelled, ticking every Interval.
func (w *LeaseKeeper) Run(ctx context.Context) error {
	tick := time.NewTicker(w.Interval)
	defer tick.Stop()

	for {
		if err := w.Manager.RenewExpiring(ctx); err != nil {
			log.Printf("[leasekeeper] renew pass err: %v", err)
		}
		if n, err := w.Manager.Cleanup(ctx); err != nil {
			log.Printf("[leasekeeper] cleanup err: %v", err)
		} else if n > 0 {
			log.Printf("[leasekeeper] deactivated expired leases: %d", n)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}
