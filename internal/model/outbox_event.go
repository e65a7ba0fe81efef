package model

import "time"

// OutboxEvent is a row in the transactional outbox. The webhook receiver
// writes one per accepted notification; the CDC relay publishes it to the
// topic named in the row.
type OutboxEvent struct {
	ID          int64     `db:"id"`
	Aggregate   string    `db:"aggregate"`    // e.g. "notification"
	AggregateID string    `db:"aggregate_id"` // notification ULID
	Topic       string    `db:"topic"`
	Payload     []byte    `db:"payload"`
	Attempts    int       `db:"attempts"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}
