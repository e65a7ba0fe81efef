package followup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remindly/followup-gateway/internal/config"
	"github.com/remindly/followup-gateway/internal/errs"
	"github.com/remindly/followup-gateway/internal/model"
	"github.com/remindly/followup-gateway/internal/schedule"
)

// Tuesday inside the working window, so Adjust leaves targets alone.
var testNow = time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)

type fixture struct {
	orch      *Orchestrator
	emails    *memEmails
	followups *memFollowups
	bounces   *memBounces
	client    *recordingClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	hours, err := schedule.Parse(schedule.Config{
		Timezone:    "UTC",
		Start:       "09:00",
		End:         "18:00",
		WorkingDays: []string{"mon", "tue", "wed", "thu", "fri"},
	})
	require.NoError(t, err)

	emails := newMemEmails()
	followups := newMemFollowups(emails)
	bounces := &memBounces{}
	client := &recordingClient{}

	orch := New(emails, followups, bounces, client, hours, config.FollowupConfig{
		MaxFollowups:      3,
		IntervalHours:     48,
		StopAfterDays:     30,
		StopOnBounce:      true,
		DefaultTemplateID: "tpl-default",
	})
	orch.now = func() time.Time { return testNow }

	return &fixture{orch: orch, emails: emails, followups: followups, bounces: bounces, client: client}
}

func (f *fixture) seedPending(id string, sentAgo time.Duration) *model.TrackedEmail {
	te := &model.TrackedEmail{
		ID:                id,
		MailboxID:         "mb-1",
		ProviderMessageID: "prov-" + id,
		ConversationID:    "conv-" + id,
		InternetMessageID: "<" + id + "@remindly.example>",
		Subject:           "Quote " + id,
		Recipients:        joinRecipients("alice@customer.example"),
		Status:            model.StatusPending,
		SentAt:            testNow.Add(-sentAgo),
	}
	f.emails.rows[id] = te
	return te
}

func ndrMessage(mailboxID, failedRecipient string) *model.InboundMessage {
	return &model.InboundMessage{
		ProviderMessageID: "prov-ndr",
		MailboxID:         mailboxID,
		Subject:           "Undeliverable: Quote e1",
		SenderAddress:     "postmaster@mail.example",
		ContentType:       "multipart/report; report-type=delivery-status",
		BodyPreview:       "Delivery has failed. Remote server returned 5.1.1 user unknown",
		Headers:           map[string]string{"x-failed-recipients": failedRecipient},
		ReceivedAt:        testNow,
	}
}

func TestTrack(t *testing.T) {
	f := newFixture(t)

	te, err := f.orch.Track(context.Background(), model.TrackedEmail{
		MailboxID:  "mb-1",
		Subject:    "Quote",
		Recipients: joinRecipients("alice@customer.example"),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, te.ID)
	assert.Equal(t, model.StatusPending, te.Status)
	assert.Equal(t, testNow, te.SentAt)
	assert.NotNil(t, f.emails.rows[te.ID])
}

func TestTrackRequiresMailboxAndRecipients(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Track(context.Background(), model.TrackedEmail{MailboxID: "mb-1"})
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = f.orch.Track(context.Background(), model.TrackedEmail{
		Recipients: joinRecipients("alice@customer.example"),
	})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

// A genuine reply settles the email and cancels the followup that was
// already scheduled for it.
func TestReplySettlesEmailAndCancelsFollowup(t *testing.T) {
	f := newFixture(t)
	te := f.seedPending("e1", 72*time.Hour)

	created, err := f.orch.ScheduleDue(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	err = f.orch.HandleInbound(context.Background(), &model.InboundMessage{
		MailboxID:      "mb-1",
		Subject:        "RE: Quote e1",
		SenderAddress:  "alice@customer.example",
		ConversationID: te.ConversationID,
		ReceivedAt:     testNow,
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusResponded, f.emails.rows["e1"].Status)
	require.NotNil(t, f.emails.rows["e1"].RespondedAt)

	rows, err := f.followups.ListByEmail(context.Background(), "e1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.FollowupCancelled, rows[0].Status)
}

func TestReplyViaInReplyToHeader(t *testing.T) {
	f := newFixture(t)
	te := f.seedPending("e1", time.Hour)

	err := f.orch.HandleInbound(context.Background(), &model.InboundMessage{
		MailboxID:     "mb-1",
		Subject:       "RE: Quote e1",
		SenderAddress: "alice@customer.example",
		Headers:       map[string]string{"in-reply-to": te.InternetMessageID},
		ReceivedAt:    testNow,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusResponded, f.emails.rows["e1"].Status)
}

func TestAutoReplyDoesNotSettle(t *testing.T) {
	f := newFixture(t)
	te := f.seedPending("e1", time.Hour)

	err := f.orch.HandleInbound(context.Background(), &model.InboundMessage{
		MailboxID:      "mb-1",
		Subject:        "Automatic reply: Quote e1",
		SenderAddress:  "alice@customer.example",
		ConversationID: te.ConversationID,
		ReceivedAt:     testNow,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, f.emails.rows["e1"].Status)
}

func TestUnmatchedReplyIsNoop(t *testing.T) {
	f := newFixture(t)
	f.seedPending("e1", time.Hour)

	err := f.orch.HandleInbound(context.Background(), &model.InboundMessage{
		MailboxID:      "mb-1",
		Subject:        "Unrelated",
		SenderAddress:  "stranger@elsewhere.example",
		ConversationID: "conv-unknown",
		ReceivedAt:     testNow,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, f.emails.rows["e1"].Status)
}

func TestBounceSettlesEmailAndRecordsProcessed(t *testing.T) {
	f := newFixture(t)
	f.seedPending("e1", 72*time.Hour)

	created, err := f.orch.ScheduleDue(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	err = f.orch.HandleInbound(context.Background(), ndrMessage("mb-1", "alice@customer.example"))
	require.NoError(t, err)

	assert.Equal(t, model.StatusBounced, f.emails.rows["e1"].Status)
	require.NotNil(t, f.emails.rows["e1"].BouncedAt)

	require.Len(t, f.bounces.rows, 1)
	rec := f.bounces.rows[0]
	assert.True(t, rec.Processed)
	require.NotNil(t, rec.TrackedEmailID)
	assert.Equal(t, "e1", *rec.TrackedEmailID)
	assert.Equal(t, model.BounceHard, rec.BounceType)
	assert.Equal(t, model.CategoryInvalidRecipient, rec.BounceCategory)
	assert.Equal(t, "5.1.1", rec.BounceCode)

	rows, err := f.followups.ListByEmail(context.Background(), "e1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.FollowupCancelled, rows[0].Status)
}

func TestUnmatchedBounceKeptForReconciliation(t *testing.T) {
	f := newFixture(t)
	f.seedPending("e1", time.Hour)

	msg := ndrMessage("mb-1", "nobody@unknown.example")
	msg.Subject = "Undeliverable: Some other thread"
	require.NoError(t, f.orch.HandleInbound(context.Background(), msg))

	// email untouched, bounce row stored unprocessed
	assert.Equal(t, model.StatusPending, f.emails.rows["e1"].Status)
	require.Len(t, f.bounces.rows, 1)
	assert.False(t, f.bounces.rows[0].Processed)
	assert.Nil(t, f.bounces.rows[0].TrackedEmailID)
}

func TestBounceKeepsPendingWhenStopOnBounceOff(t *testing.T) {
	f := newFixture(t)
	f.orch.settings.StopOnBounce = false
	f.seedPending("e1", time.Hour)

	err := f.orch.HandleInbound(context.Background(), ndrMessage("mb-1", "alice@customer.example"))
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, f.emails.rows["e1"].Status)
	require.Len(t, f.bounces.rows, 1)
	assert.True(t, f.bounces.rows[0].Processed)
}

func TestScheduleDue(t *testing.T) {
	f := newFixture(t)
	f.seedPending("due", 72*time.Hour)
	f.seedPending("fresh", time.Hour)
	maxed := f.seedPending("maxed", 90*time.Hour)
	maxed.FollowupCount = 3

	created, err := f.orch.ScheduleDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	rows, err := f.followups.ListByEmail(context.Background(), "due")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Number)
	assert.Equal(t, "tpl-default", rows[0].TemplateID)
	assert.Equal(t, testNow, rows[0].ScheduledFor)

	// a second pass finds the scheduled row and creates nothing
	created, err = f.orch.ScheduleDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestSendDue(t *testing.T) {
	f := newFixture(t)
	te := f.seedPending("e1", 72*time.Hour)

	_, err := f.orch.ScheduleDue(context.Background(), 10)
	require.NoError(t, err)

	sent, err := f.orch.SendDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	require.Len(t, f.client.sent, 1)
	assert.Equal(t, te.ConversationID, f.client.sent[0].ConversationID)
	assert.Equal(t, []string{"alice@customer.example"}, f.client.sent[0].Recipients)

	assert.Equal(t, 1, f.emails.rows["e1"].FollowupCount)

	rows, err := f.followups.ListByEmail(context.Background(), "e1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.FollowupSent, rows[0].Status)
	require.NotNil(t, rows[0].SentAt)
}

// Dispatch failures downgrade the claimed followup so the next scheduler
// pass can create a fresh one.
func TestSendDueDowngradesOnDispatchFailure(t *testing.T) {
	f := newFixture(t)
	f.seedPending("e1", 72*time.Hour)
	f.client.sendErr = errors.New("provider down")

	_, err := f.orch.ScheduleDue(context.Background(), 10)
	require.NoError(t, err)

	sent, err := f.orch.SendDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, sent)

	assert.Zero(t, f.emails.rows["e1"].FollowupCount)

	rows, err := f.followups.ListByEmail(context.Background(), "e1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.FollowupFailed, rows[0].Status)
	assert.Nil(t, rows[0].SentAt)
}

func TestSendDueSkipsSettledParent(t *testing.T) {
	f := newFixture(t)
	f.seedPending("e1", 72*time.Hour)

	_, err := f.orch.ScheduleDue(context.Background(), 10)
	require.NoError(t, err)

	require.NoError(t, f.orch.Stop(context.Background(), "e1"))

	sent, err := f.orch.SendDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, f.client.sent)
}

func TestSweepMaxReached(t *testing.T) {
	f := newFixture(t)
	maxed := f.seedPending("maxed", 10*24*time.Hour)
	maxed.FollowupCount = 3
	f.seedPending("active", time.Hour)

	n, err := f.orch.SweepMaxReached(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, model.StatusMaxReached, f.emails.rows["maxed"].Status)
	assert.Equal(t, model.StatusPending, f.emails.rows["active"].Status)
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	f.seedPending("old", 31*24*time.Hour)
	f.seedPending("recent", 10*24*time.Hour)

	n, err := f.orch.SweepExpired(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, model.StatusExpired, f.emails.rows["old"].Status)
	assert.Equal(t, model.StatusPending, f.emails.rows["recent"].Status)
}

func TestStopResume(t *testing.T) {
	f := newFixture(t)
	f.seedPending("e1", 72*time.Hour)

	_, err := f.orch.ScheduleDue(context.Background(), 10)
	require.NoError(t, err)

	require.NoError(t, f.orch.Stop(context.Background(), "e1"))
	assert.Equal(t, model.StatusStopped, f.emails.rows["e1"].Status)
	require.NotNil(t, f.emails.rows["e1"].StoppedAt)

	rows, err := f.followups.ListByEmail(context.Background(), "e1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.FollowupCancelled, rows[0].Status)

	require.NoError(t, f.orch.Resume(context.Background(), "e1"))
	assert.Equal(t, model.StatusPending, f.emails.rows["e1"].Status)
	assert.Nil(t, f.emails.rows["e1"].StoppedAt)

	// resuming an email that is not stopped is a conflict
	assert.ErrorIs(t, f.orch.Resume(context.Background(), "e1"), errs.ErrConflict)
}

func TestStopUnknownEmail(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.orch.Stop(context.Background(), "nope"), errs.ErrNotFound)
}
