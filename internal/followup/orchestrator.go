package followup

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/remindly/followup-gateway/internal/bounce"
	"github.com/remindly/followup-gateway/internal/config"
	"github.com/remindly/followup-gateway/internal/correlate"
	"github.com/remindly/followup-gateway/internal/errs"
	"github.com/remindly/followup-gateway/internal/logger"
	"github.com/remindly/followup-gateway/internal/metrics"
	"github.com/remindly/followup-gateway/internal/model"
	"github.com/remindly/followup-gateway/internal/provider"
	"github.com/remindly/followup-gateway/internal/repository"
	"github.com/remindly/followup-gateway/internal/schedule"
	"github.com/remindly/followup-gateway/internal/util"
)

// Orchestrator drives the TrackedEmail/Followup state machine. It never
// mutates status directly: every change goes through the repositories'
// conditional transitions, so the three concurrent triggers (scheduler,
// sender, notifications) cannot race into an inconsistent state.
type Orchestrator struct {
	emails     repository.TrackedEmailsRepository
	followups  repository.FollowupsRepository
	bounces    repository.BouncesRepository
	correlator *correlate.Correlator
	client     provider.Client

	hours    schedule.WorkingHours
	settings config.FollowupConfig
	now      func() time.Time
}

func New(
	emails repository.TrackedEmailsRepository,
	followups repository.FollowupsRepository,
	bounces repository.BouncesRepository,
	client provider.Client,
	hours schedule.WorkingHours,
	settings config.FollowupConfig,
) *Orchestrator {
	return &Orchestrator{
		emails:     emails,
		followups:  followups,
		bounces:    bounces,
		correlator: correlate.New(emails),
		client:     client,
		hours:      hours,
		settings:   settings,
		now:        time.Now,
	}
}

// Track starts watching an observed outbound send.
func (o *Orchestrator) Track(ctx context.Context, te model.TrackedEmail) (*model.TrackedEmail, error) {
	if te.MailboxID == "" || len(te.RecipientList()) == 0 {
		return nil, errs.Validationf("tracked_email", "mailbox and recipients are required")
	}
	te.ID = util.New()
	te.Status = model.StatusPending
	if te.SentAt.IsZero() {
		te.SentAt = o.now()
	}
	if err := o.emails.Insert(ctx, nil, te); err != nil {
		return nil, err
	}
	return &te, nil
}

// HandleInbound routes one deduplicated inbound message: NDRs go through
// bounce correlation, everything else through reply correlation. A message
// that matches nothing changes nothing; that is a routing outcome, not an
// error.
func (o *Orchestrator) HandleInbound(ctx context.Context, msg *model.InboundMessage) error {
	cls := bounce.Classify(msg)
	if cls.IsNDR {
		return o.handleBounce(ctx, msg, cls)
	}
	return o.handleReply(ctx, msg)
}

func (o *Orchestrator) handleBounce(ctx context.Context, msg *model.InboundMessage, cls bounce.Classification) error {
	metrics.BouncesTotal.WithLabelValues(cls.BounceType.String()).Inc()

	te, err := o.correlator.MatchBounce(ctx, msg, cls)
	if err != nil {
		return err
	}

	rec := model.EmailBounce{
		ID:               util.New(),
		MailboxID:        msg.MailboxID,
		BounceType:       cls.BounceType,
		BounceCategory:   cls.BounceCategory,
		BounceCode:       cls.BounceCode,
		BounceReason:     cls.BounceReason,
		DiagnosticCode:   cls.DiagnosticCode,
		ReportingMTA:     cls.ReportingMTA,
		FailedRecipients: strings.Join(cls.FailedRecipients, ","),
		Confidence:       cls.Confidence,
		ReceivedAt:       msg.ReceivedAt,
	}

	if te == nil {
		// unmatched: keep the record visible for manual reconciliation
		return o.bounces.Insert(ctx, nil, rec)
	}

	rec.TrackedEmailID = &te.ID
	rec.Processed = true

	if err := o.bounces.Insert(ctx, nil, rec); err != nil {
		return err
	}

	if !o.settings.StopOnBounce {
		return nil
	}
	return o.transitionOut(ctx, te.ID, model.StatusBounced, msg.ReceivedAt)
}

func (o *Orchestrator) handleReply(ctx context.Context, msg *model.InboundMessage) error {
	if correlate.IsAutoReply(msg) {
		logger.Log.Debug("auto-reply ignored",
			zap.String("mailbox_id", msg.MailboxID),
			zap.String("subject", msg.Subject))
		return nil
	}

	te, err := o.correlator.MatchReply(ctx, msg)
	if err != nil || te == nil {
		return err
	}

	at := msg.ReceivedAt
	if at.IsZero() {
		at = o.now()
	}
	return o.transitionOut(ctx, te.ID, model.StatusResponded, at)
}

// transitionOut moves an email out of pending and cancels its scheduled
// followups in the same transaction. A lost race (row no longer pending)
// is silently fine: someone else already settled the state.
func (o *Orchestrator) transitionOut(ctx context.Context, id string, to model.EmailStatus, at time.Time) error {
	ok, err := o.emails.Transition(ctx, nil, id, model.StatusPending, to, at)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	metrics.EmailTransitionsTotal.WithLabelValues(to.String()).Inc()

	cancelled, err := o.followups.CancelScheduledForEmail(ctx, nil, id)
	if err != nil {
		return err
	}
	if cancelled > 0 {
		metrics.FollowupsTotal.WithLabelValues("cancelled").Add(float64(cancelled))
	}

	logger.Log.Info("tracked email settled",
		zap.String("tracked_email_id", id),
		zap.String("status", to.String()),
		zap.Int64("cancelled_followups", cancelled))
	return nil
}

// ScheduleDue creates the next followup for every pending email whose
// last activity is older than the configured interval. Targets pass
// through the working-hours scheduler before persisting.
func (o *Orchestrator) ScheduleDue(ctx context.Context, limit int) (int, error) {
	interval := time.Duration(o.settings.IntervalHours) * time.Hour
	now := o.now()

	due, err := o.emails.ListPendingDue(ctx, now.Add(-interval), o.settings.MaxFollowups, limit)
	if err != nil {
		return 0, err
	}

	var created int
	for i := range due {
		te := &due[i]

		res := o.hours.Adjust(now)
		f := model.Followup{
			ID:             util.New(),
			TrackedEmailID: te.ID,
			Number:         te.FollowupCount + 1,
			TemplateID:     o.settings.DefaultTemplateID,
			ScheduledFor:   res.ScheduledFor,
		}

		ok, err := o.followups.InsertScheduled(ctx, nil, f)
		if err != nil {
			return created, err
		}
		if !ok {
			continue // another run already scheduled one
		}
		created++
		metrics.FollowupsTotal.WithLabelValues("scheduled").Inc()

		logger.Log.Info("followup scheduled",
			zap.String("tracked_email_id", te.ID),
			zap.Int("number", f.Number),
			zap.Time("scheduled_for", f.ScheduledFor),
			zap.Bool("adjusted", res.Adjusted))
	}
	return created, nil
}

// SendDue dispatches followups past their scheduled_for. The claim
// (scheduled->sent, parent pending) happens before the provider call so a
// late response or manual stop can never race an in-flight send; dispatch
// failures downgrade the claim to failed and surface on the next run.
func (o *Orchestrator) SendDue(ctx context.Context, limit int) (int, error) {
	now := o.now()
	due, err := o.followups.ListDue(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	var sent int
	for i := range due {
		f := &due[i]

		ok, err := o.followups.MarkSent(ctx, nil, f.ID, now)
		if err != nil {
			return sent, err
		}
		if !ok {
			continue // settled or cancelled since listing
		}

		te, err := o.emails.GetByID(ctx, f.TrackedEmailID)
		if err != nil || te == nil {
			if _, derr := o.followups.MarkFailed(ctx, nil, f.ID); derr != nil {
				logger.Log.Error("failed followup downgrade failed",
					zap.String("followup_id", f.ID), zap.Error(derr))
			}
			metrics.FollowupsTotal.WithLabelValues("failed").Inc()
			continue
		}

		mail := provider.OutboundMail{
			MailboxID:      te.MailboxID,
			ConversationID: te.ConversationID,
			Subject:        te.Subject,
			Recipients:     te.RecipientList(),
			TemplateID:     f.TemplateID,
		}
		if err := o.client.SendMail(ctx, mail); err != nil {
			logger.Log.Error("followup dispatch failed",
				zap.String("followup_id", f.ID),
				zap.String("tracked_email_id", te.ID),
				zap.Error(err))
			if _, derr := o.followups.MarkFailed(ctx, nil, f.ID); derr != nil {
				logger.Log.Error("failed followup downgrade failed",
					zap.String("followup_id", f.ID), zap.Error(derr))
			}
			metrics.FollowupsTotal.WithLabelValues("failed").Inc()
			continue
		}

		if err := o.emails.IncrementFollowupCount(ctx, nil, te.ID); err != nil {
			return sent, err
		}
		sent++
		metrics.FollowupsTotal.WithLabelValues("sent").Inc()
	}
	return sent, nil
}

// SweepMaxReached settles pending emails whose sent-followup count hit the
// configured maximum.
func (o *Orchestrator) SweepMaxReached(ctx context.Context, limit int) (int, error) {
	rows, err := o.emails.ListPendingAtMax(ctx, o.settings.MaxFollowups, limit)
	if err != nil {
		return 0, err
	}
	for i := range rows {
		if err := o.transitionOut(ctx, rows[i].ID, model.StatusMaxReached, o.now()); err != nil {
			return i, err
		}
	}
	return len(rows), nil
}

// SweepExpired settles pending emails older than the stop-after-days
// window. Runs as a periodic sweep alongside scheduling.
func (o *Orchestrator) SweepExpired(ctx context.Context, limit int) (int, error) {
	if o.settings.StopAfterDays <= 0 {
		return 0, nil
	}
	cutoff := o.now().AddDate(0, 0, -o.settings.StopAfterDays)
	rows, err := o.emails.ListPendingSentBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}
	for i := range rows {
		if err := o.transitionOut(ctx, rows[i].ID, model.StatusExpired, o.now()); err != nil {
			return i, err
		}
	}
	return len(rows), nil
}

// Stop is the manual pause: pending -> stopped, cancelling anything
// scheduled.
func (o *Orchestrator) Stop(ctx context.Context, id string) error {
	te, err := o.emails.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if te == nil {
		return errs.NotFound("tracked email", id)
	}
	return o.transitionOut(ctx, id, model.StatusStopped, o.now())
}

// Resume reverses a manual stop: stopped -> pending.
func (o *Orchestrator) Resume(ctx context.Context, id string) error {
	te, err := o.emails.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if te == nil {
		return errs.NotFound("tracked email", id)
	}

	ok, err := o.emails.Transition(ctx, nil, id, model.StatusStopped, model.StatusPending, o.now())
	if err != nil {
		return err
	}
	if !ok {
		return errs.Conflictf("tracked email %s is not stopped", id)
	}
	metrics.EmailTransitionsTotal.WithLabelValues(model.StatusPending.String()).Inc()
	return nil
}

// Delete is a soft delete: the row is settled as stopped and keeps its
// history; the core never physically removes tracked emails.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	return o.Stop(ctx, id)
}
