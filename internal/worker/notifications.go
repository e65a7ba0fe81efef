package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/remindly/followup-gateway/internal/followup"
	"github.com/remindly/followup-gateway/internal/kafka"
	"github.com/remindly/followup-gateway/internal/metrics"
	"github.com/remindly/followup-gateway/internal/model"
)

// NotificationsKafka:
// - fetches accepted webhook envelopes from Kafka (outbox topic),
// - dedupes on provider message id via Redis SETNX,
// - routes each inbound message through the orchestrator.
type NotificationsKafka struct {
	// Dependencies
	Consumer *kafka.Consumer
	Redis    *redis.Client
	Orch     *followup.Orchestrator

	// Behavior
	Workers    int           // number of goroutines processing messages
	DedupeTTL  time.Duration // how long a provider message id stays claimed
	RetryPause time.Duration // backoff after a fetch error
}

func NewNotificationsKafka(consumer *kafka.Consumer, rdb *redis.Client, orch *followup.Orchestrator) *NotificationsKafka {
	return &NotificationsKafka{
		Consumer:   consumer,
		Redis:      rdb,
		Orch:       orch,
		Workers:    16,
		DedupeTTL:  24 * time.Hour,
		RetryPause: 200 * time.Millisecond,
	}
}

// Run starts the worker and blocks until ctx is cancelled.
func (w *NotificationsKafka) Run(ctx context.Context) error {
	if w.Workers <= 0 {
		w.Workers = 16
	}
	if w.DedupeTTL <= 0 {
		w.DedupeTTL = 24 * time.Hour
	}

	msgCh := make(chan kafka.Message, w.Workers*2)

	// Fetcher goroutine
	go func() {
		defer close(msgCh)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				m, err := w.Consumer.Fetch(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Printf("[notifications] kafka fetch err: %v", err)
					time.Sleep(w.RetryPause)
					continue
				}
				msgCh <- m
			}
		}
	}()

	for i := 0; i < w.Workers; i++ {
		go w.runProcessor(ctx, msgCh)
	}

	<-ctx.Done()
	return nil
}

func (w *NotificationsKafka) runProcessor(ctx context.Context, in <-chan kafka.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			w.processOne(ctx, m)
		}
	}
}

func (w *NotificationsKafka) processOne(ctx context.Context, m kafka.Message) {
	var env model.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil || env.ID == "" {
		_ = w.Consumer.Commit(ctx, m) // poison → commit, skip
		metrics.NotificationsTotal.WithLabelValues("invalid").Inc()
		if err != nil {
			log.Printf("[notifications] bad envelope json: %v", err)
		} else {
			log.Printf("[notifications] envelope missing id")
		}
		return
	}

	// Dedupe on provider message id. The provider retries webhooks and the
	// consumer is at-least-once, so duplicates are routine here.
	if key := env.Message.ProviderMessageID; key != "" {
		ok, err := w.Redis.SetNX(ctx, "fupgw:seen:"+env.MailboxID+":"+key, 1, w.DedupeTTL).Result()
		if err != nil {
			// Redis down: process anyway, correlation transitions are
			// conditional so a duplicate cannot corrupt state.
			log.Printf("[notifications] dedupe err: %v", err)
		} else if !ok {
			metrics.NotificationsTotal.WithLabelValues("duplicate").Inc()
			_ = w.Consumer.Commit(ctx, m)
			return
		}
	}

	if err := w.Orch.HandleInbound(ctx, &env.Message); err != nil {
		metrics.NotificationsTotal.WithLabelValues("error").Inc()
		log.Printf("[notifications] handle inbound id=%s err: %v", env.ID, err)
		// commit anyway: the next provider delta sync will replay anything
		// truly lost, and re-reading the same offset would loop forever
	} else {
		metrics.NotificationsTotal.WithLabelValues("accepted").Inc()
	}

	if err := w.Consumer.Commit(ctx, m); err != nil {
		log.Printf("[notifications] commit err: %v", err)
	}
}
