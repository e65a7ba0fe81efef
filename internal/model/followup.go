package model

import "time"

type FollowupStatus string

const (
	FollowupScheduled FollowupStatus = "scheduled"
	FollowupSent      FollowupStatus = "sent"
	FollowupFailed    FollowupStatus = "failed"
	FollowupCancelled FollowupStatus = "cancelled"
)

func (s FollowupStatus) String() string { return string(s) }

func (s FollowupStatus) Valid() bool {
	switch s {
	case FollowupScheduled, FollowupSent, FollowupFailed, FollowupCancelled:
		return true
	}
	return false
}

// Followup is one scheduled or attempted reminder for a tracked email.
// Invariant: at most one row per tracked email is scheduled at a time and
// numbers are contiguous starting at 1.
type Followup struct {
	ID             string         `db:"id"` // ULID
	TrackedEmailID string         `db:"tracked_email_id"`
	Number         int            `db:"followup_number"`
	TemplateID     string         `db:"template_id"`
	Status         FollowupStatus `db:"status"`
	ScheduledFor   time.Time      `db:"scheduled_for"`
	SentAt         *time.Time     `db:"sent_at"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}
