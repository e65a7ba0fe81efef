package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/remindly/followup-gateway/internal/model"
)

// FollowupsRepository defines persistence for the followups table. Status
// changes are conditional single-row updates guarded by the parent email
// still being pending, which is what keeps the three concurrent triggers
// from racing an in-flight send against a late response.
type FollowupsRepository interface {
	// InsertScheduled adds the next followup, refusing when another one is
	// already scheduled for the same email. Returns false on refusal.
	InsertScheduled(ctx context.Context, tx *sqlx.Tx, f model.Followup) (bool, error)

	// ListDue returns scheduled followups past their scheduled_for whose
	// parent email is still pending.
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.Followup, error)

	// MarkSent claims a followup for dispatch: scheduled->sent only while
	// the parent email is still pending. Returns false when the guard
	// failed, i.e. a response, bounce or manual stop won the race.
	MarkSent(ctx context.Context, tx *sqlx.Tx, id string, at time.Time) (bool, error)

	// MarkFailed downgrades a claimed followup whose dispatch failed.
	MarkFailed(ctx context.Context, tx *sqlx.Tx, id string) (bool, error)

	// CancelScheduledForEmail cancels every scheduled followup of an email.
	CancelScheduledForEmail(ctx context.Context, tx *sqlx.Tx, trackedEmailID string) (int64, error)

	ListByEmail(ctx context.Context, trackedEmailID string) ([]model.Followup, error)
	CountSent(ctx context.Context, trackedEmailID string) (int, error)
}

type FollowupsRepositoryImpl struct {
	db *sqlx.DB
}

func NewFollowupsRepository(db *sqlx.DB) *FollowupsRepositoryImpl {
	return &FollowupsRepositoryImpl{db: db}
}

var _ FollowupsRepository = (*FollowupsRepositoryImpl)(nil)

const followupColumns = `
	id, tracked_email_id, followup_number, template_id, status,
	scheduled_for, sent_at, created_at, updated_at
`

func (r *FollowupsRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
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

// InsertScheduled uses INSERT..SELECT with a NOT EXISTS guard so the
// one-scheduled-per-email invariant holds without an in-process lock.
func (r *FollowupsRepositoryImpl) InsertScheduled(ctx context.Context, tx *sqlx.Tx, f model.Followup) (bool, error) {
	const q = `
		INSERT INTO followups
		    (id, tracked_email_id, followup_number, template_id, status, scheduled_for, created_at, updated_at)
		SELECT ?, ?, ?, ?, 'scheduled', ?, NOW(), NOW()
		 WHERE NOT EXISTS (
		       SELECT 1 FROM followups
		        WHERE tracked_email_id = ? AND status = 'scheduled')
	`
	var affected int64
	err := r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q,
			f.ID, f.TrackedEmailID, f.Number, f.TemplateID, f.ScheduledFor,
			f.TrackedEmailID,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected == 1, err
}

func (r *FollowupsRepositoryImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]model.Followup, error) {
	const q = `
		SELECT f.id, f.tracked_email_id, f.followup_number, f.template_id, f.status,
		       f.scheduled_for, f.sent_at, f.created_at, f.updated_at
		  FROM followups f
		  JOIN tracked_emails te ON te.id = f.tracked_email_id
		 WHERE f.status = 'scheduled'
		   AND f.scheduled_for <= ?
		   AND te.status = 'pending'
		 ORDER BY f.scheduled_for ASC
		 LIMIT ?
	`
	var rows []model.Followup
	if err := r.db.SelectContext(ctx, &rows, q, now, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *FollowupsRepositoryImpl) markConditional(ctx context.Context, tx *sqlx.Tx, q string, args ...any) (bool, error) {
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

func (r *FollowupsRepositoryImpl) MarkSent(ctx context.Context, tx *sqlx.Tx, id string, at time.Time) (bool, error) {
	const q = `
		UPDATE followups f
		  JOIN tracked_emails te ON te.id = f.tracked_email_id
		   SET f.status = 'sent', f.sent_at = ?, f.updated_at = NOW()
		 WHERE f.id = ? AND f.status = 'scheduled' AND te.status = 'pending'
	`
	return r.markConditional(ctx, tx, q, at, id)
}

func (r *FollowupsRepositoryImpl) MarkFailed(ctx context.Context, tx *sqlx.Tx, id string) (bool, error) {
	const q = `
		UPDATE followups
		   SET status = 'failed', sent_at = NULL, updated_at = NOW()
		 WHERE id = ? AND status = 'sent'
	`
	return r.markConditional(ctx, tx, q, id)
}

func (r *FollowupsRepositoryImpl) CancelScheduledForEmail(ctx context.Context, tx *sqlx.Tx, trackedEmailID string) (int64, error) {
	const q = `
		UPDATE followups
		   SET status = 'cancelled', updated_at = NOW()
		 WHERE tracked_email_id = ? AND status = 'scheduled'
	`
	var affected int64
	err := r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q, trackedEmailID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

func (r *FollowupsRepositoryImpl) ListByEmail(ctx context.Context, trackedEmailID string) ([]model.Followup, error) {
	const q = `
		SELECT ` + followupColumns + `
		  FROM followups
		 WHERE tracked_email_id = ?
		 ORDER BY followup_number ASC
	`
	var rows []model.Followup
	if err := r.db.SelectContext(ctx, &rows, q, trackedEmailID); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *FollowupsRepositoryImpl) CountSent(ctx context.Context, trackedEmailID string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM followups WHERE tracked_email_id = ? AND status = 'sent'`,
		trackedEmailID)
	return n, err
}
