package model

import "time"

type BounceType string

const (
	BounceHard    BounceType = "hard"
	BounceSoft    BounceType = "soft"
	BounceUnknown BounceType = "unknown"
)

func (t BounceType) String() string { return string(t) }

// Bounce categories as classified from the SMTP enhanced status code or,
// failing that, keyword heuristics on the NDR body.
const (
	CategoryInvalidRecipient = "invalid_recipient"
	CategoryMailboxFull      = "mailbox_full"
	CategorySpamRejection    = "spam_rejection"
	CategoryTemporaryFailure = "temporary_failure"
	CategoryPolicyViolation  = "policy_violation"
	CategoryRoutingFailure   = "routing_failure"
	CategoryOther            = "other"
)

// EmailBounce is one detected non-delivery report. TrackedEmailID stays
// empty until correlation succeeds; unmatched rows remain visible with
// processed=false for manual reconciliation.
type EmailBounce struct {
	ID               string     `db:"id"` // ULID
	TrackedEmailID   *string    `db:"tracked_email_id"`
	MailboxID        string     `db:"mailbox_id"`
	BounceType       BounceType `db:"bounce_type"`
	BounceCategory   string     `db:"bounce_category"`
	BounceCode       string     `db:"bounce_code"` // e.g. "5.1.1"
	BounceReason     string     `db:"bounce_reason"`
	DiagnosticCode   string     `db:"diagnostic_code"`
	ReportingMTA     string     `db:"reporting_mta"`
	FailedRecipients string     `db:"failed_recipients"` // comma separated
	Confidence       int        `db:"confidence"`
	Processed        bool       `db:"processed"`
	ReceivedAt       time.Time  `db:"received_at"`
	CreatedAt        time.Time  `db:"created_at"`
}
