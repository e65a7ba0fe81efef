package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/remindly/followup-gateway/internal/model"
)

// CHEventsRepository lists email lifecycle events from ClickHouse
// (analytics view, populated by the CDC pipeline).
type CHEventsRepository interface {
	ListByMailbox(ctx context.Context, mailboxID, eventType string, limit, offset int) ([]model.EmailEvent, error)
}

type chEventsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHEventsRepository(ch *sqlx.DB) CHEventsRepository {
	return &chEventsRepository{ch: ch}
}

func (r *chEventsRepository) ListByMailbox(ctx context.Context, mailboxID, eventType string, limit, offset int) ([]model.EmailEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT tracked_email_id, mailbox_id, event_type, detail, occurred_at
		FROM fupgw.email_events_latest
		WHERE mailbox_id = ?
	`
	args := []any{mailboxID}

	if eventType != "" {
		q += " AND event_type = ?"
		args = append(args, eventType)
	}

	q += " ORDER BY occurred_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.EmailEvent
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
