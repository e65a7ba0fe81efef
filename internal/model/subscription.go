package model

import "time"

// WebhookSubscription is a provider-side change-notification lease.
// Invariant: at most one active row per mailbox.
type WebhookSubscription struct {
	ID                 string     `db:"id"` // ULID
	MailboxID          string     `db:"mailbox_id"`
	ProviderLeaseID    string     `db:"provider_lease_id"`
	Resource           string     `db:"resource"`
	ChangeTypes        string     `db:"change_types"` // e.g. "created,updated"
	ExpirationDateTime time.Time  `db:"expiration_date_time"`
	RenewalCount       int        `db:"renewal_count"`
	LastRenewedAt      *time.Time `db:"last_renewed_at"`
	IsActive           bool       `db:"is_active"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

// ExpiringSoon reports whether the lease expires within threshold of now.
func (s *WebhookSubscription) ExpiringSoon(now time.Time, threshold time.Duration) bool {
	return s.ExpirationDateTime.After(now) && s.ExpirationDateTime.Before(now.Add(threshold))
}

// Expired reports whether the provider has already let the lease lapse.
func (s *WebhookSubscription) Expired(now time.Time) bool {
	return !s.ExpirationDateTime.After(now)
}
