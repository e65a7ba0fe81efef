package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/remindly/followup-gateway/internal/model"
)

// TrackedEmailsRepository defines persistence for the tracked_emails table.
// Transition is the only way status changes; it is conditional on the
// current status so concurrent triggers cannot race into an illegal state.
type TrackedEmailsRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, te model.TrackedEmail) error
	GetByID(ctx context.Context, id string) (*model.TrackedEmail, error)

	// Transition flips status from->to and stamps the matching timestamp
	// column. Returns false when the row was not in the expected state.
	Transition(ctx context.Context, tx *sqlx.Tx, id string, from, to model.EmailStatus, at time.Time) (bool, error)
	IncrementFollowupCount(ctx context.Context, tx *sqlx.Tx, id string) error

	// Correlation lookups (correlate.Lookup).
	FindLatestByConversationID(ctx context.Context, mailboxID, conversationID string) (*model.TrackedEmail, error)
	FindByInternetMessageID(ctx context.Context, mailboxID, internetMessageID string) (*model.TrackedEmail, error)
	FindLatestPendingByRecipient(ctx context.Context, mailboxID, recipient string) (*model.TrackedEmail, error)
	FindLatestPendingBySubject(ctx context.Context, mailboxID, subject string) (*model.TrackedEmail, error)

	// Periodic job queries.
	ListPendingDue(ctx context.Context, olderThan time.Time, maxFollowups, limit int) ([]model.TrackedEmail, error)
	ListPendingAtMax(ctx context.Context, maxFollowups, limit int) ([]model.TrackedEmail, error)
	ListPendingSentBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.TrackedEmail, error)

	// Read-only surface for the admin API.
	ListByMailbox(ctx context.Context, mailboxID string, status model.EmailStatus, limit, offset int) ([]model.TrackedEmail, error)
	CountByStatus(ctx context.Context, mailboxID string) (map[model.EmailStatus]int, error)
}

type TrackedEmailsRepositoryImpl struct {
	db *sqlx.DB
}

func NewTrackedEmailsRepository(db *sqlx.DB) *TrackedEmailsRepositoryImpl {
	return &TrackedEmailsRepositoryImpl{db: db}
}

var _ TrackedEmailsRepository = (*TrackedEmailsRepositoryImpl)(nil)

const trackedEmailColumns = `
	id, mailbox_id, provider_message_id, conversation_id, internet_message_id,
	subject, recipients, status, followup_count, sent_at,
	responded_at, stopped_at, bounced_at, created_at, updated_at
`

func (r *TrackedEmailsRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

func (r *TrackedEmailsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, te model.TrackedEmail) error {
	const q = `
		INSERT INTO tracked_emails
		    (id, mailbox_id, provider_message_id, conversation_id, internet_message_id,
		     subject, recipients, status, followup_count, sent_at, created_at, updated_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, 'pending', 0, ?, NOW(), NOW())
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			te.ID, te.MailboxID, te.ProviderMessageID, te.ConversationID,
			te.InternetMessageID, te.Subject, te.Recipients, te.SentAt,
		)
		return err
	})
}

func (r *TrackedEmailsRepositoryImpl) GetByID(ctx context.Context, id string) (*model.TrackedEmail, error) {
	return r.getOne(ctx, `SELECT `+trackedEmailColumns+` FROM tracked_emails WHERE id = ? LIMIT 1`, id)
}

func (r *TrackedEmailsRepositoryImpl) getOne(ctx context.Context, q string, args ...any) (*model.TrackedEmail, error) {
	var te model.TrackedEmail
	err := r.db.GetContext(ctx, &te, q, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &te, nil
}

// timestampColumn maps a target status to the column stamped on entry.
func timestampColumn(to model.EmailStatus) string {
	switch to {
	case model.StatusResponded:
		return "responded_at"
	case model.StatusBounced:
		return "bounced_at"
	case model.StatusStopped:
		return "stopped_at"
	default:
		return ""
	}
}

func (r *TrackedEmailsRepositoryImpl) Transition(ctx context.Context, tx *sqlx.Tx, id string, from, to model.EmailStatus, at time.Time) (bool, error) {
	q := `UPDATE tracked_emails SET status = ?, updated_at = NOW()`
	args := []any{to.String()}
	if col := timestampColumn(to); col != "" {
		q += `, ` + col + ` = ?`
		args = append(args, at)
	}
	if to == model.StatusPending {
		// manual resume clears the stop stamp
		q += `, stopped_at = NULL`
	}
	q += ` WHERE id = ? AND status = ?`
	args = append(args, id, from.String())

	var affected int64
	err := r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected == 1, err
}

func (r *TrackedEmailsRepositoryImpl) IncrementFollowupCount(ctx context.Context, tx *sqlx.Tx, id string) error {
	const q = `UPDATE tracked_emails SET followup_count = followup_count + 1, updated_at = NOW() WHERE id = ?`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, id)
		return err
	})
}

func (r *TrackedEmailsRepositoryImpl) FindLatestByConversationID(ctx context.Context, mailboxID, conversationID string) (*model.TrackedEmail, error) {
	return r.getOne(ctx, `
		SELECT `+trackedEmailColumns+`
		  FROM tracked_emails
		 WHERE mailbox_id = ? AND conversation_id = ?
		 ORDER BY sent_at DESC LIMIT 1
	`, mailboxID, conversationID)
}

func (r *TrackedEmailsRepositoryImpl) FindByInternetMessageID(ctx context.Context, mailboxID, internetMessageID string) (*model.TrackedEmail, error) {
	return r.getOne(ctx, `
		SELECT `+trackedEmailColumns+`
		  FROM tracked_emails
		 WHERE mailbox_id = ? AND internet_message_id = ?
		 ORDER BY sent_at DESC LIMIT 1
	`, mailboxID, internetMessageID)
}

func (r *TrackedEmailsRepositoryImpl) FindLatestPendingByRecipient(ctx context.Context, mailboxID, recipient string) (*model.TrackedEmail, error) {
	// recipients is a comma separated list of normalized addresses
	return r.getOne(ctx, `
		SELECT `+trackedEmailColumns+`
		  FROM tracked_emails
		 WHERE mailbox_id = ? AND status = 'pending'
		   AND FIND_IN_SET(?, recipients) > 0
		 ORDER BY sent_at DESC LIMIT 1
	`, mailboxID, recipient)
}

func (r *TrackedEmailsRepositoryImpl) FindLatestPendingBySubject(ctx context.Context, mailboxID, subject string) (*model.TrackedEmail, error) {
	return r.getOne(ctx, `
		SELECT `+trackedEmailColumns+`
		  FROM tracked_emails
		 WHERE mailbox_id = ? AND status = 'pending' AND subject = ?
		 ORDER BY sent_at DESC LIMIT 1
	`, mailboxID, subject)
}

// ListPendingDue returns pending emails without a scheduled followup whose
// last activity (send or last sent followup) is older than olderThan and
// that still have followups left.
func (r *TrackedEmailsRepositoryImpl) ListPendingDue(ctx context.Context, olderThan time.Time, maxFollowups, limit int) ([]model.TrackedEmail, error) {
	const q = `
		SELECT ` + trackedEmailColumns + `
		  FROM tracked_emails te
		 WHERE te.status = 'pending'
		   AND te.followup_count < ?
		   AND COALESCE(
		         (SELECT MAX(f.sent_at) FROM followups f
		           WHERE f.tracked_email_id = te.id AND f.status = 'sent'),
		         te.sent_at) < ?
		   AND NOT EXISTS (
		         SELECT 1 FROM followups f
		          WHERE f.tracked_email_id = te.id AND f.status = 'scheduled')
		 ORDER BY te.sent_at ASC
		 LIMIT ?
	`
	var rows []model.TrackedEmail
	if err := r.db.SelectContext(ctx, &rows, q, maxFollowups, olderThan, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *TrackedEmailsRepositoryImpl) ListPendingAtMax(ctx context.Context, maxFollowups, limit int) ([]model.TrackedEmail, error) {
	const q = `
		SELECT ` + trackedEmailColumns + `
		  FROM tracked_emails
		 WHERE status = 'pending' AND followup_count >= ?
		 ORDER BY sent_at ASC
		 LIMIT ?
	`
	var rows []model.TrackedEmail
	if err := r.db.SelectContext(ctx, &rows, q, maxFollowups, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *TrackedEmailsRepositoryImpl) ListPendingSentBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.TrackedEmail, error) {
	const q = `
		SELECT ` + trackedEmailColumns + `
		  FROM tracked_emails
		 WHERE status = 'pending' AND sent_at < ?
		 ORDER BY sent_at ASC
		 LIMIT ?
	`
	var rows []model.TrackedEmail
	if err := r.db.SelectContext(ctx, &rows, q, cutoff, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *TrackedEmailsRepositoryImpl) ListByMailbox(ctx context.Context, mailboxID string, status model.EmailStatus, limit, offset int) ([]model.TrackedEmail, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `SELECT ` + trackedEmailColumns + ` FROM tracked_emails WHERE mailbox_id = ?`
	args := []any{mailboxID}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, status.String())
	}
	q += ` ORDER BY sent_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	var rows []model.TrackedEmail
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *TrackedEmailsRepositoryImpl) CountByStatus(ctx context.Context, mailboxID string) (map[model.EmailStatus]int, error) {
	const q = `
		SELECT status, COUNT(*) AS n
		  FROM tracked_emails
		 WHERE mailbox_id = ?
		 GROUP BY status
	`
	rows, err := r.db.QueryxContext(ctx, q, mailboxID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.EmailStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[model.EmailStatus(status)] = n
	}
	return out, rows.Err()
}
