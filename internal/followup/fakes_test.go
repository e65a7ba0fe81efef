package followup

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/remindly/followup-gateway/internal/model"
	"github.com/remindly/followup-gateway/internal/provider"
)

// In-memory repositories mirroring the SQL guards of the real ones.

type memEmails struct {
	rows map[string]*model.TrackedEmail
}

func newMemEmails() *memEmails {
	return &memEmails{rows: make(map[string]*model.TrackedEmail)}
}

func (m *memEmails) Insert(_ context.Context, _ *sqlx.Tx, te model.TrackedEmail) error {
	cp := te
	m.rows[te.ID] = &cp
	return nil
}

func (m *memEmails) GetByID(_ context.Context, id string) (*model.TrackedEmail, error) {
	return m.rows[id], nil
}

func (m *memEmails) Transition(_ context.Context, _ *sqlx.Tx, id string, from, to model.EmailStatus, at time.Time) (bool, error) {
	te, ok := m.rows[id]
	if !ok || te.Status != from {
		return false, nil
	}
	te.Status = to
	switch to {
	case model.StatusResponded:
		te.RespondedAt = &at
	case model.StatusBounced:
		te.BouncedAt = &at
	case model.StatusStopped:
		te.StoppedAt = &at
	case model.StatusPending:
		te.StoppedAt = nil
	}
	return true, nil
}

func (m *memEmails) IncrementFollowupCount(_ context.Context, _ *sqlx.Tx, id string) error {
	m.rows[id].FollowupCount++
	return nil
}

func (m *memEmails) sorted() []*model.TrackedEmail {
	out := make([]*model.TrackedEmail, 0, len(m.rows))
	for _, te := range m.rows {
		out = append(out, te)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.After(out[j].SentAt) })
	return out
}

func (m *memEmails) FindLatestByConversationID(_ context.Context, mailboxID, conversationID string) (*model.TrackedEmail, error) {
	for _, te := range m.sorted() {
		if te.MailboxID == mailboxID && te.ConversationID == conversationID {
			return te, nil
		}
	}
	return nil, nil
}

func (m *memEmails) FindByInternetMessageID(_ context.Context, mailboxID, internetMessageID string) (*model.TrackedEmail, error) {
	for _, te := range m.sorted() {
		if te.MailboxID == mailboxID && te.InternetMessageID == internetMessageID {
			return te, nil
		}
	}
	return nil, nil
}

func (m *memEmails) FindLatestPendingByRecipient(_ context.Context, mailboxID, recipient string) (*model.TrackedEmail, error) {
	for _, te := range m.sorted() {
		if te.MailboxID != mailboxID || te.Status != model.StatusPending {
			continue
		}
		for _, r := range te.RecipientList() {
			if r == recipient {
				return te, nil
			}
		}
	}
	return nil, nil
}

func (m *memEmails) FindLatestPendingBySubject(_ context.Context, mailboxID, subject string) (*model.TrackedEmail, error) {
	for _, te := range m.sorted() {
		if te.MailboxID == mailboxID && te.Status == model.StatusPending && te.Subject == subject {
			return te, nil
		}
	}
	return nil, nil
}

func (m *memEmails) ListPendingDue(_ context.Context, olderThan time.Time, maxFollowups, limit int) ([]model.TrackedEmail, error) {
	var out []model.TrackedEmail
	for _, te := range m.rows {
		if te.Status == model.StatusPending && te.FollowupCount < maxFollowups && te.SentAt.Before(olderThan) {
			out = append(out, *te)
		}
	}
	return capLimit(out, limit), nil
}

func (m *memEmails) ListPendingAtMax(_ context.Context, maxFollowups, limit int) ([]model.TrackedEmail, error) {
	var out []model.TrackedEmail
	for _, te := range m.rows {
		if te.Status == model.StatusPending && te.FollowupCount >= maxFollowups {
			out = append(out, *te)
		}
	}
	return capLimit(out, limit), nil
}

func (m *memEmails) ListPendingSentBefore(_ context.Context, cutoff time.Time, limit int) ([]model.TrackedEmail, error) {
	var out []model.TrackedEmail
	for _, te := range m.rows {
		if te.Status == model.StatusPending && te.SentAt.Before(cutoff) {
			out = append(out, *te)
		}
	}
	return capLimit(out, limit), nil
}

func (m *memEmails) ListByMailbox(_ context.Context, mailboxID string, status model.EmailStatus, limit, _ int) ([]model.TrackedEmail, error) {
	var out []model.TrackedEmail
	for _, te := range m.rows {
		if te.MailboxID == mailboxID && (status == "" || te.Status == status) {
			out = append(out, *te)
		}
	}
	return capLimit(out, limit), nil
}

func (m *memEmails) CountByStatus(_ context.Context, mailboxID string) (map[model.EmailStatus]int, error) {
	out := make(map[model.EmailStatus]int)
	for _, te := range m.rows {
		if te.MailboxID == mailboxID {
			out[te.Status]++
		}
	}
	return out, nil
}

func capLimit(rows []model.TrackedEmail, limit int) []model.TrackedEmail {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}

type memFollowups struct {
	emails *memEmails
	rows   map[string]*model.Followup
}

func newMemFollowups(emails *memEmails) *memFollowups {
	return &memFollowups{emails: emails, rows: make(map[string]*model.Followup)}
}

func (m *memFollowups) InsertScheduled(_ context.Context, _ *sqlx.Tx, f model.Followup) (bool, error) {
	for _, existing := range m.rows {
		if existing.TrackedEmailID == f.TrackedEmailID && existing.Status == model.FollowupScheduled {
			return false, nil
		}
	}
	f.Status = model.FollowupScheduled
	cp := f
	m.rows[f.ID] = &cp
	return true, nil
}

func (m *memFollowups) ListDue(_ context.Context, now time.Time, limit int) ([]model.Followup, error) {
	var out []model.Followup
	for _, f := range m.rows {
		parent := m.emails.rows[f.TrackedEmailID]
		if f.Status == model.FollowupScheduled && !f.ScheduledFor.After(now) &&
			parent != nil && parent.Status == model.StatusPending {
			out = append(out, *f)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memFollowups) MarkSent(_ context.Context, _ *sqlx.Tx, id string, at time.Time) (bool, error) {
	f, ok := m.rows[id]
	if !ok || f.Status != model.FollowupScheduled {
		return false, nil
	}
	parent := m.emails.rows[f.TrackedEmailID]
	if parent == nil || parent.Status != model.StatusPending {
		return false, nil
	}
	f.Status = model.FollowupSent
	f.SentAt = &at
	return true, nil
}

func (m *memFollowups) MarkFailed(_ context.Context, _ *sqlx.Tx, id string) (bool, error) {
	f, ok := m.rows[id]
	if !ok || f.Status != model.FollowupSent {
		return false, nil
	}
	f.Status = model.FollowupFailed
	f.SentAt = nil
	return true, nil
}

func (m *memFollowups) CancelScheduledForEmail(_ context.Context, _ *sqlx.Tx, trackedEmailID string) (int64, error) {
	var n int64
	for _, f := range m.rows {
		if f.TrackedEmailID == trackedEmailID && f.Status == model.FollowupScheduled {
			f.Status = model.FollowupCancelled
			n++
		}
	}
	return n, nil
}

func (m *memFollowups) ListByEmail(_ context.Context, trackedEmailID string) ([]model.Followup, error) {
	var out []model.Followup
	for _, f := range m.rows {
		if f.TrackedEmailID == trackedEmailID {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *memFollowups) CountSent(_ context.Context, trackedEmailID string) (int, error) {
	var n int
	for _, f := range m.rows {
		if f.TrackedEmailID == trackedEmailID && f.Status == model.FollowupSent {
			n++
		}
	}
	return n, nil
}

type memBounces struct {
	rows []model.EmailBounce
}

func (m *memBounces) Insert(_ context.Context, _ *sqlx.Tx, b model.EmailBounce) error {
	m.rows = append(m.rows, b)
	return nil
}

func (m *memBounces) ListUnprocessed(_ context.Context, mailboxID string, _, _ int) ([]model.EmailBounce, error) {
	var out []model.EmailBounce
	for _, b := range m.rows {
		if b.MailboxID == mailboxID && !b.Processed {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memBounces) MarkProcessed(_ context.Context, _ *sqlx.Tx, id string) error {
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].Processed = true
		}
	}
	return nil
}

type recordingClient struct {
	sent    []provider.OutboundMail
	sendErr error
}

func (c *recordingClient) CreateLease(_ context.Context, _, _ string, _ time.Time) (*provider.Lease, error) {
	return nil, nil
}

func (c *recordingClient) RenewLease(_ context.Context, _ string, _ time.Time) (*provider.Lease, error) {
	return nil, nil
}

func (c *recordingClient) DeleteLease(_ context.Context, _ string) error { return nil }

func (c *recordingClient) SendMail(_ context.Context, mail provider.OutboundMail) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, mail)
	return nil
}

func joinRecipients(rcpts ...string) string {
	return strings.Join(rcpts, ",")
}
