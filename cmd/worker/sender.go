package worker

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/remindly/followup-gateway/internal/metrics"
	"github.com/remindly/followup-gateway/internal/worker"
)

var senderCmd = &cobra.Command{
	Use:   "sender",
	Short: "Dispatch followups that reached their scheduled time",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildCore(cmd)
		if err != nil {
			return err
		}
		defer c.close()

		metrics.MustRegister(prometheus.DefaultRegisterer)

		w := worker.NewSender(c.orch, c.cfg.Workers.PollInterval, c.cfg.Workers.BatchSize)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf(">> sender started interval=%s batchSize=%d", w.Interval, w.BatchSize)

		return w.Run(ctx)
	},
}
