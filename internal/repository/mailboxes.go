package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/remindly/followup-gateway/internal/model"
)

type MailboxesRepository interface {
	GetByID(ctx context.Context, id string) (*model.Mailbox, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*model.Mailbox, error)
}

type MailboxesRepositoryImpl struct {
	db *sqlx.DB
}

func NewMailboxesRepository(db *sqlx.DB) *MailboxesRepositoryImpl {
	return &MailboxesRepositoryImpl{db: db}
}

var _ MailboxesRepository = (*MailboxesRepositoryImpl)(nil)

const mailboxColumns = `id, address, display_name, api_key, status, rate_limit_rps, created_at, updated_at`

func (r *MailboxesRepositoryImpl) getOne(ctx context.Context, q string, args ...any) (*model.Mailbox, error) {
	var m model.Mailbox
	err := r.db.GetContext(ctx, &m, q, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MailboxesRepositoryImpl) GetByID(ctx context.Context, id string) (*model.Mailbox, error) {
	return r.getOne(ctx, `SELECT `+mailboxColumns+` FROM mailboxes WHERE id = ? LIMIT 1`, id)
}

func (r *MailboxesRepositoryImpl) GetByAPIKey(ctx context.Context, apiKey string) (*model.Mailbox, error) {
	return r.getOne(ctx, `SELECT `+mailboxColumns+` FROM mailboxes WHERE api_key = ? LIMIT 1`, apiKey)
}
