package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/remindly/followup-gateway/internal/model"
)

// SubscriptionsRepository defines persistence for webhook_subscriptions.
// Local rows are authoritative: deactivation succeeds regardless of the
// provider-side outcome.
type SubscriptionsRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, s model.WebhookSubscription) error
	GetByID(ctx context.Context, id string) (*model.WebhookSubscription, error)
	GetActiveByMailbox(ctx context.Context, mailboxID string) (*model.WebhookSubscription, error)
	ListActive(ctx context.Context) ([]model.WebhookSubscription, error)

	// UpdateRenewal persists a successful provider renewal.
	UpdateRenewal(ctx context.Context, tx *sqlx.Tx, id string, expiresAt, renewedAt time.Time) error

	Deactivate(ctx context.Context, tx *sqlx.Tx, id string) error
	DeactivateAllForMailbox(ctx context.Context, tx *sqlx.Tx, mailboxID string) (int64, error)

	// DeactivateExpired flips rows past expiration still flagged active.
	// Idempotent: a second run with no new expirations touches nothing.
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

type SubscriptionsRepositoryImpl struct {
	db *sqlx.DB
}

func NewSubscriptionsRepository(db *sqlx.DB) *SubscriptionsRepositoryImpl {
	return &SubscriptionsRepositoryImpl{db: db}
}

var _ SubscriptionsRepository = (*SubscriptionsRepositoryImpl)(nil)

const subscriptionColumns = `
	id, mailbox_id, provider_lease_id, resource, change_types,
	expiration_date_time, renewal_count, last_renewed_at, is_active,
	created_at, updated_at
`

func (r *SubscriptionsRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
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

func (r *SubscriptionsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, s model.WebhookSubscription) error {
	const q = `
		INSERT INTO webhook_subscriptions
		    (id, mailbox_id, provider_lease_id, resource, change_types,
		     expiration_date_time, renewal_count, is_active, created_at, updated_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, 0, TRUE, NOW(), NOW())
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			s.ID, s.MailboxID, s.ProviderLeaseID, s.Resource, s.ChangeTypes,
			s.ExpirationDateTime,
		)
		return err
	})
}

func (r *SubscriptionsRepositoryImpl) getOne(ctx context.Context, q string, args ...any) (*model.WebhookSubscription, error) {
	var s model.WebhookSubscription
	err := r.db.GetContext(ctx, &s, q, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubscriptionsRepositoryImpl) GetByID(ctx context.Context, id string) (*model.WebhookSubscription, error) {
	return r.getOne(ctx, `SELECT `+subscriptionColumns+` FROM webhook_subscriptions WHERE id = ? LIMIT 1`, id)
}

func (r *SubscriptionsRepositoryImpl) GetActiveByMailbox(ctx context.Context, mailboxID string) (*model.WebhookSubscription, error) {
	return r.getOne(ctx, `
		SELECT `+subscriptionColumns+`
		  FROM webhook_subscriptions
		 WHERE mailbox_id = ? AND is_active = TRUE
		 LIMIT 1
	`, mailboxID)
}

func (r *SubscriptionsRepositoryImpl) ListActive(ctx context.Context) ([]model.WebhookSubscription, error) {
	const q = `
		SELECT ` + subscriptionColumns + `
		  FROM webhook_subscriptions
		 WHERE is_active = TRUE
		 ORDER BY expiration_date_time ASC
	`
	var rows []model.WebhookSubscription
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SubscriptionsRepositoryImpl) UpdateRenewal(ctx context.Context, tx *sqlx.Tx, id string, expiresAt, renewedAt time.Time) error {
	const q = `
		UPDATE webhook_subscriptions
		   SET expiration_date_time = ?,
		       renewal_count = renewal_count + 1,
		       last_renewed_at = ?,
		       updated_at = NOW()
		 WHERE id = ?
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, expiresAt, renewedAt, id)
		return err
	})
}

func (r *SubscriptionsRepositoryImpl) Deactivate(ctx context.Context, tx *sqlx.Tx, id string) error {
	const q = `UPDATE webhook_subscriptions SET is_active = FALSE, updated_at = NOW() WHERE id = ?`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, id)
		return err
	})
}

func (r *SubscriptionsRepositoryImpl) DeactivateAllForMailbox(ctx context.Context, tx *sqlx.Tx, mailboxID string) (int64, error) {
	const q = `UPDATE webhook_subscriptions SET is_active = FALSE, updated_at = NOW() WHERE mailbox_id = ? AND is_active = TRUE`
	var affected int64
	err := r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q, mailboxID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

func (r *SubscriptionsRepositoryImpl) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	const q = `
		UPDATE webhook_subscriptions
		   SET is_active = FALSE, updated_at = NOW()
		 WHERE is_active = TRUE AND expiration_date_time <= ?
	`
	res, err := r.db.ExecContext(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
