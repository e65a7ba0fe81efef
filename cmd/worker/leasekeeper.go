package worker

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/remindly/followup-gateway/internal/lease"
	"github.com/remindly/followup-gateway/internal/metrics"
	"github.com/remindly/followup-gateway/internal/provider"
	"github.com/remindly/followup-gateway/internal/repository"
	"github.com/remindly/followup-gateway/internal/worker"
)

var leasekeeperCmd = &cobra.Command{
	Use:   "leasekeeper",
	Short: "Renew and clean up provider webhook leases",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildCore(cmd)
		if err != nil {
			return err
		}
		defer c.close()

		metrics.MustRegister(prometheus.DefaultRegisterer)

		client := provider.NewHTTPClient(
			c.cfg.Provider.BaseURL,
			c.cfg.Provider.NotificationURL,
			c.cfg.Provider.ClientState,
			c.cfg.Provider.TimeoutMs,
			c.cfg.Provider.Breaker.FailThreshold,
			c.cfg.Provider.Breaker.OpenForMs,
		)

		leaseMax, threshold := leaseDurations(c.cfg)
		mgr := lease.NewManager(
			repository.NewSubscriptionsRepository(c.dbx),
			repository.NewMailboxesRepository(c.dbx),
			client,
			leaseMax,
			threshold,
		)

		w := worker.NewLeaseKeeper(mgr, c.cfg.Workers.PollInterval)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf(">> leasekeeper started interval=%s leaseMax=%s threshold=%s",
			w.Interval, leaseMax, threshold)

		return w.Run(ctx)
	},
}
