package model

import "time"

// EmailEvent is one row in the ClickHouse analytics log: a status
// transition, followup send or bounce classification. Ingested by the CDC
// pipeline, read-only here.
type EmailEvent struct {
	TrackedEmailID string    `db:"tracked_email_id"`
	MailboxID      string    `db:"mailbox_id"`
	EventType      string    `db:"event_type"` // e.g. followup_sent, bounced, responded
	Detail         string    `db:"detail"`
	OccurredAt     time.Time `db:"occurred_at"`
}
