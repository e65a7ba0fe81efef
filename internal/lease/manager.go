package lease

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/remindly/followup-gateway/internal/errs"
	"github.com/remindly/followup-gateway/internal/logger"
	"github.com/remindly/followup-gateway/internal/metrics"
	"github.com/remindly/followup-gateway/internal/model"
	"github.com/remindly/followup-gateway/internal/provider"
	"github.com/remindly/followup-gateway/internal/repository"
	"github.com/remindly/followup-gateway/internal/util"
)

const defaultChangeTypes = "created"

// Manager keeps at most one active provider lease per mailbox and renews
// it before the provider lets it lapse. Local rows are authoritative; the
// provider is treated as best-effort on the revoke side.
type Manager struct {
	subs      repository.SubscriptionsRepository
	mailboxes repository.MailboxesRepository
	client    provider.Client

	leaseMax         time.Duration // provider maximum lease length
	renewalThreshold time.Duration // renew when expiry is this close
	now              func() time.Time
}

func NewManager(
	subs repository.SubscriptionsRepository,
	mailboxes repository.MailboxesRepository,
	client provider.Client,
	leaseMax, renewalThreshold time.Duration,
) *Manager {
	if leaseMax <= 0 {
		leaseMax = 72 * time.Hour
	}
	if renewalThreshold <= 0 {
		renewalThreshold = 6 * time.Hour
	}
	return &Manager{
		subs:             subs,
		mailboxes:        mailboxes,
		client:           client,
		leaseMax:         leaseMax,
		renewalThreshold: renewalThreshold,
		now:              time.Now,
	}
}

// withCompensation runs persist after an external side effect has already
// succeeded. On persistence failure it fires the compensating action
// (best-effort, its own failure only logged) and returns a persistence
// error. Kept as a helper so create/renew/delete share one shape.
func withCompensation(op string, persist func() error, compensate func() error) error {
	err := persist()
	if err == nil {
		return nil
	}
	if cerr := compensate(); cerr != nil {
		logger.Log.Warn("compensating action failed",
			zap.String("op", op), zap.Error(cerr))
	}
	return errs.Persistence(op, err)
}

// Create verifies the mailbox locally (active, no active lease) before the
// provider call, since the provider create is not idempotent.
func (m *Manager) Create(ctx context.Context, mailboxID string) (*model.WebhookSubscription, error) {
	mb, err := m.mailboxes.GetByID(ctx, mailboxID)
	if err != nil {
		return nil, err
	}
	if mb == nil {
		return nil, errs.NotFound("mailbox", mailboxID)
	}
	if !mb.Active() {
		return nil, errs.Conflictf("mailbox %s is not active", mailboxID)
	}

	existing, err := m.subs.GetActiveByMailbox(ctx, mailboxID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errs.Conflictf("mailbox %s already holds active lease %s", mailboxID, existing.ID)
	}

	resource := "mailboxes/" + mailboxID + "/messages"
	expiresAt := m.now().Add(m.leaseMax)

	lease, err := m.client.CreateLease(ctx, resource, defaultChangeTypes, expiresAt)
	if err != nil {
		return nil, err
	}

	sub := model.WebhookSubscription{
		ID:                 util.New(),
		MailboxID:          mailboxID,
		ProviderLeaseID:    lease.ID,
		Resource:           lease.Resource,
		ChangeTypes:        lease.ChangeTypes,
		ExpirationDateTime: lease.ExpirationDateTime,
		IsActive:           true,
	}

	err = withCompensation("lease create",
		func() error { return m.subs.Insert(ctx, nil, sub) },
		func() error { return m.client.DeleteLease(ctx, lease.ID) },
	)
	if err != nil {
		return nil, err
	}

	logger.Log.Info("lease created",
		zap.String("mailbox_id", mailboxID),
		zap.String("lease_id", sub.ID),
		zap.Time("expires_at", sub.ExpirationDateTime))
	return &sub, nil
}

// Renew asks the provider for a fresh bounded expiration and persists it.
func (m *Manager) Renew(ctx context.Context, leaseID string) (*model.WebhookSubscription, error) {
	sub, err := m.subs.GetByID(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	if sub == nil || !sub.IsActive {
		return nil, errs.NotFound("lease", leaseID)
	}

	expiresAt := m.now().Add(m.leaseMax)
	lease, err := m.client.RenewLease(ctx, sub.ProviderLeaseID, expiresAt)
	if err != nil {
		return nil, err
	}

	renewedAt := m.now()
	if err := m.subs.UpdateRenewal(ctx, nil, sub.ID, lease.ExpirationDateTime, renewedAt); err != nil {
		// the provider-side renewal stands; nothing to compensate beyond
		// letting the next tick observe the stale local expiry
		return nil, errs.Persistence("lease renew", err)
	}

	sub.ExpirationDateTime = lease.ExpirationDateTime
	sub.RenewalCount++
	sub.LastRenewedAt = &renewedAt
	metrics.LeaseRenewalsTotal.Inc()
	return sub, nil
}

// Delete revokes the lease with the provider (best-effort) and always
// marks the local row inactive.
func (m *Manager) Delete(ctx context.Context, leaseID string) error {
	sub, err := m.subs.GetByID(ctx, leaseID)
	if err != nil {
		return err
	}
	if sub == nil {
		return errs.NotFound("lease", leaseID)
	}

	if err := m.client.DeleteLease(ctx, sub.ProviderLeaseID); err != nil {
		logger.Log.Warn("provider revoke failed, deactivating locally anyway",
			zap.String("lease_id", leaseID), zap.Error(err))
	}

	return m.subs.Deactivate(ctx, nil, sub.ID)
}

// DeleteAllForMailbox revokes every active lease of a mailbox.
func (m *Manager) DeleteAllForMailbox(ctx context.Context, mailboxID string) error {
	sub, err := m.subs.GetActiveByMailbox(ctx, mailboxID)
	if err != nil {
		return err
	}
	if sub != nil {
		if err := m.client.DeleteLease(ctx, sub.ProviderLeaseID); err != nil {
			logger.Log.Warn("provider revoke failed, deactivating locally anyway",
				zap.String("mailbox_id", mailboxID), zap.Error(err))
		}
	}

	_, err = m.subs.DeactivateAllForMailbox(ctx, nil, mailboxID)
	return err
}

// HealthReport partitions the active leases by wall-clock expiry. A lease
// counts as active until it expires; expiringSoon is the subset inside the
// renewal threshold. Expired-but-still-flagged rows are a reconciliation
// signal for cleanup, not an error.
type HealthReport struct {
	Active       []model.WebhookSubscription
	ExpiringSoon []model.WebhookSubscription
	Expired      []model.WebhookSubscription
}

func (m *Manager) Health(ctx context.Context) (HealthReport, error) {
	var report HealthReport

	subs, err := m.subs.ListActive(ctx)
	if err != nil {
		return report, err
	}

	now := m.now()
	for _, s := range subs {
		switch {
		case s.Expired(now):
			report.Expired = append(report.Expired, s)
		default:
			report.Active = append(report.Active, s)
			if s.ExpiringSoon(now, m.renewalThreshold) {
				report.ExpiringSoon = append(report.ExpiringSoon, s)
			}
		}
	}
	return report, nil
}

// Cleanup fixes local bookkeeping for leases the provider already
// auto-expired. Running it twice with no new expirations changes nothing.
func (m *Manager) Cleanup(ctx context.Context) (int64, error) {
	return m.subs.DeactivateExpired(ctx, m.now())
}

// RenewExpiring renews every active lease inside the renewal threshold.
// Failures are logged and left for the next run.
func (m *Manager) RenewExpiring(ctx context.Context) error {
	report, err := m.Health(ctx)
	if err != nil {
		return err
	}

	for _, s := range report.ExpiringSoon {
		if _, err := m.Renew(ctx, s.ID); err != nil {
			logger.Log.Error("lease renewal failed",
				zap.String("lease_id", s.ID),
				zap.String("mailbox_id", s.MailboxID),
				zap.Error(err))
		}
	}
	return nil
}
