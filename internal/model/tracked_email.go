package model

import (
	"strings"
	"time"
)

type EmailStatus string

const (
	StatusPending    EmailStatus = "pending"
	StatusResponded  EmailStatus = "responded"
	StatusBounced    EmailStatus = "bounced"
	StatusStopped    EmailStatus = "stopped"
	StatusMaxReached EmailStatus = "max_reached"
	StatusExpired    EmailStatus = "expired"
)

func (s EmailStatus) String() string {
	return string(s)
}

func (s EmailStatus) Valid() bool {
	switch s {
	case StatusPending, StatusResponded, StatusBounced, StatusStopped, StatusMaxReached, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no further followups may be scheduled.
// stopped is terminal but reversible via a manual resume.
func (s EmailStatus) Terminal() bool {
	return s.Valid() && s != StatusPending
}

// TrackedEmail is one outbound message being watched for a reply.
// Rows are never physically deleted by the core; delete is a soft stop.
type TrackedEmail struct {
	ID                string      `db:"id"` // ULID
	MailboxID         string      `db:"mailbox_id"`
	ProviderMessageID string      `db:"provider_message_id"`
	ConversationID    string      `db:"conversation_id"`
	InternetMessageID string      `db:"internet_message_id"`
	Subject           string      `db:"subject"`
	Recipients        string      `db:"recipients"` // comma separated, normalized
	Status            EmailStatus `db:"status"`
	FollowupCount     int         `db:"followup_count"`
	SentAt            time.Time   `db:"sent_at"`
	RespondedAt       *time.Time  `db:"responded_at"`
	StoppedAt         *time.Time  `db:"stopped_at"`
	BouncedAt         *time.Time  `db:"bounced_at"`
	CreatedAt         time.Time   `db:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"`
}

// RecipientList splits the stored recipient column.
func (t *TrackedEmail) RecipientList() []string {
	if t.Recipients == "" {
		return nil
	}
	parts := strings.Split(t.Recipients, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
