package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/remindly/followup-gateway/internal/db"
	"github.com/remindly/followup-gateway/internal/kafka"
	"github.com/remindly/followup-gateway/internal/metrics"
	"github.com/remindly/followup-gateway/internal/worker"
)

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Consume webhook notifications from Kafka and correlate them",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildCore(cmd)
		if err != nil {
			return err
		}
		defer c.close()

		metrics.MustRegister(prometheus.DefaultRegisterer)

		redisClient, err := db.NewRedisClient(db.RedisOpts{
			Addr:        c.cfg.Redis.Addr,
			Password:    c.cfg.Redis.Password,
			DB:          c.cfg.Redis.DB,
			DialTimeout: c.cfg.Redis.DialTimeout,
		})
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer func() { _ = redisClient.Close() }()

		groupID := c.cfg.Kafka.GroupID
		if groupID == "" {
			groupID = "fupgw-notifications"
		}

		consumer := kafka.NewConsumerFromConfig(kafka.Config{
			Brokers:        c.cfg.Kafka.Brokers,
			Topic:          c.cfg.Kafka.Topic,
			GroupID:        groupID,
			MinBytes:       c.cfg.Kafka.MinBytes,
			MaxBytes:       c.cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(c.cfg.Kafka.CommitInterval) * time.Millisecond,
		})
		defer consumer.Close()

		w := worker.NewNotificationsKafka(consumer, redisClient, c.orch)
		if c.cfg.Workers.WorkerCount > 0 {
			w.Workers = c.cfg.Workers.WorkerCount
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf(">> notifications started topic=%s group=%s workers=%d",
			c.cfg.Kafka.Topic, groupID, w.Workers)

		return w.Run(ctx)
	},
}
