package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/remindly/followup-gateway/internal/model"
)

// BouncesRepository defines persistence for the email_bounces table.
// Unmatched rows stay processed=false for manual reconciliation.
type BouncesRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, b model.EmailBounce) error
	ListUnprocessed(ctx context.Context, mailboxID string, limit, offset int) ([]model.EmailBounce, error)
	MarkProcessed(ctx context.Context, tx *sqlx.Tx, id string) error
}

type BouncesRepositoryImpl struct {
	db *sqlx.DB
}

func NewBouncesRepository(db *sqlx.DB) *BouncesRepositoryImpl {
	return &BouncesRepositoryImpl{db: db}
}

var _ BouncesRepository = (*BouncesRepositoryImpl)(nil)

func (r *BouncesRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
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

func (r *BouncesRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, b model.EmailBounce) error {
	const q = `
		INSERT INTO email_bounces
		    (id, tracked_email_id, mailbox_id, bounce_type, bounce_category, bounce_code,
		     bounce_reason, diagnostic_code, reporting_mta, failed_recipients,
		     confidence, processed, received_at, created_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW())
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			b.ID, b.TrackedEmailID, b.MailboxID, b.BounceType.String(), b.BounceCategory,
			b.BounceCode, b.BounceReason, b.DiagnosticCode, b.ReportingMTA,
			b.FailedRecipients, b.Confidence, b.Processed, b.ReceivedAt,
		)
		return err
	})
}

func (r *BouncesRepositoryImpl) ListUnprocessed(ctx context.Context, mailboxID string, limit, offset int) ([]model.EmailBounce, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const q = `
		SELECT id, tracked_email_id, mailbox_id, bounce_type, bounce_category, bounce_code,
		       bounce_reason, diagnostic_code, reporting_mta, failed_recipients,
		       confidence, processed, received_at, created_at
		  FROM email_bounces
		 WHERE mailbox_id = ? AND processed = FALSE
		 ORDER BY received_at DESC
		 LIMIT ? OFFSET ?
	`
	var rows []model.EmailBounce
	if err := r.db.SelectContext(ctx, &rows, q, mailboxID, limit, offset); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BouncesRepositoryImpl) MarkProcessed(ctx context.Context, tx *sqlx.Tx, id string) error {
	const q = `UPDATE email_bounces SET processed = TRUE WHERE id = ?`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, id)
		return err
	})
}
