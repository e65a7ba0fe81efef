package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/remindly/followup-gateway/internal/errs"
	"github.com/remindly/followup-gateway/internal/followup"
	"github.com/remindly/followup-gateway/internal/http/middleware"
	"github.com/remindly/followup-gateway/internal/lease"
	"github.com/remindly/followup-gateway/internal/model"
	"github.com/remindly/followup-gateway/internal/repository"
	"github.com/remindly/followup-gateway/internal/util"
)

func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, errs.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, errs.ErrConflict):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, errs.ErrProvider):
		log.Errorf("provider call failed: %v", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "provider error"})
	default:
		log.Errorf("internal error: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func queryInt(c echo.Context, name, def string) int {
	v := c.QueryParam(name)
	if v == "" {
		v = def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// ---- tracked emails ----

type trackReq struct {
	ProviderMessageID string    `json:"provider_message_id"`
	ConversationID    string    `json:"conversation_id"`
	InternetMessageID string    `json:"internet_message_id"`
	Subject           string    `json:"subject"`
	Recipients        []string  `json:"recipients"`
	SentAt            time.Time `json:"sent_at"`
}

func trackEmailHandler(orch *followup.Orchestrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		mailboxID, ok := middleware.MailboxFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req trackReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		te, err := orch.Track(c.Request().Context(), model.TrackedEmail{
			MailboxID:         mailboxID,
			ProviderMessageID: req.ProviderMessageID,
			ConversationID:    req.ConversationID,
			InternetMessageID: req.InternetMessageID,
			Subject:           strings.TrimSpace(req.Subject),
			Recipients:        strings.Join(util.NormalizeAddressList(req.Recipients), ","),
			SentAt:            req.SentAt,
		})
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, te)
	}
}

func listEmailsHandler(emails repository.TrackedEmailsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		mailboxID, _ := middleware.MailboxFromCtx(c)

		status := model.EmailStatus(c.QueryParam("status"))
		if status != "" && !status.Valid() {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid status"})
		}

		rows, err := emails.ListByMailbox(c.Request().Context(), mailboxID, status,
			queryInt(c, "limit", "50"), queryInt(c, "offset", "0"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"emails": rows})
	}
}

func emailStatsHandler(emails repository.TrackedEmailsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		mailboxID, _ := middleware.MailboxFromCtx(c)

		counts, err := emails.CountByStatus(c.Request().Context(), mailboxID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"counts": counts})
	}
}

func listFollowupsHandler(emails repository.TrackedEmailsRepository, followups repository.FollowupsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		te, err := ownedEmail(c, emails)
		if err != nil {
			return writeError(c, err)
		}
		rows, err := followups.ListByEmail(c.Request().Context(), te.ID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"followups": rows})
	}
}

// ownedEmail resolves :id and rejects cross-mailbox access.
func ownedEmail(c echo.Context, emails repository.TrackedEmailsRepository) (*model.TrackedEmail, error) {
	mailboxID, _ := middleware.MailboxFromCtx(c)
	id := c.Param("id")

	te, err := emails.GetByID(c.Request().Context(), id)
	if err != nil {
		return nil, err
	}
	if te == nil || te.MailboxID != mailboxID {
		return nil, errs.NotFound("tracked email", id)
	}
	return te, nil
}

func stopEmailHandler(orch *followup.Orchestrator, emails repository.TrackedEmailsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		te, err := ownedEmail(c, emails)
		if err != nil {
			return writeError(c, err)
		}
		if err := orch.Stop(c.Request().Context(), te.ID); err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]string{"id": te.ID, "status": model.StatusStopped.String()})
	}
}

func resumeEmailHandler(orch *followup.Orchestrator, emails repository.TrackedEmailsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		te, err := ownedEmail(c, emails)
		if err != nil {
			return writeError(c, err)
		}
		if err := orch.Resume(c.Request().Context(), te.ID); err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]string{"id": te.ID, "status": model.StatusPending.String()})
	}
}

func deleteEmailHandler(orch *followup.Orchestrator, emails repository.TrackedEmailsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		te, err := ownedEmail(c, emails)
		if err != nil {
			return writeError(c, err)
		}
		if err := orch.Delete(c.Request().Context(), te.ID); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// ---- bounces ----

func listBouncesHandler(bounces repository.BouncesRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		mailboxID, _ := middleware.MailboxFromCtx(c)

		rows, err := bounces.ListUnprocessed(c.Request().Context(), mailboxID,
			queryInt(c, "limit", "50"), queryInt(c, "offset", "0"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"bounces": rows})
	}
}

// ---- leases ----

func createLeaseHandler(mgr *lease.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		mailboxID, _ := middleware.MailboxFromCtx(c)

		sub, err := mgr.Create(c.Request().Context(), mailboxID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, sub)
	}
}

func deleteLeaseHandler(mgr *lease.Manager, subs repository.SubscriptionsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		mailboxID, _ := middleware.MailboxFromCtx(c)
		id := c.Param("id")

		sub, err := subs.GetByID(c.Request().Context(), id)
		if err != nil {
			return writeError(c, err)
		}
		if sub == nil || sub.MailboxID != mailboxID {
			return writeError(c, errs.NotFound("lease", id))
		}
		if err := mgr.Delete(c.Request().Context(), id); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func leaseHealthHandler(mgr *lease.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		report, err := mgr.Health(c.Request().Context())
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"active":        len(report.Active),
			"expiring_soon": len(report.ExpiringSoon),
			"expired":       len(report.Expired),
			"expiring":      report.ExpiringSoon,
		})
	}
}

// ---- reports (ClickHouse) ----

func listEventsHandler(events repository.CHEventsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		mailboxID, _ := middleware.MailboxFromCtx(c)

		rows, err := events.ListByMailbox(c.Request().Context(), mailboxID,
			c.QueryParam("type"), queryInt(c, "limit", "50"), queryInt(c, "offset", "0"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"events": rows})
	}
}
