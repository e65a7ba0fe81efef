package model

import "time"

// Mailbox is a monitored account. API keys scope the admin endpoints;
// suspended mailboxes cannot create leases.
type Mailbox struct {
	ID           string    `db:"id"` // ULID
	Address      string    `db:"address"`
	DisplayName  string    `db:"display_name"`
	APIKey       string    `db:"api_key"`
	Status       string    `db:"status"`         // active|suspended
	RateLimitRPS *int      `db:"rate_limit_rps"` // nullable
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (m *Mailbox) Active() bool { return m.Status == "active" }
