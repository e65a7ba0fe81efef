package model

// Envelope is the payload published to Kafka (via the Debezium outbox SMT)
// for each accepted webhook notification.
type Envelope struct {
	ID        string         `json:"id"` // notification ULID
	MailboxID string         `json:"mailbox_id"`
	Message   InboundMessage `json:"message"`
}
