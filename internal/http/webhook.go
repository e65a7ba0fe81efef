package http

import (
	"encoding/json"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/remindly/followup-gateway/internal/metrics"
	"github.com/remindly/followup-gateway/internal/model"
	"github.com/remindly/followup-gateway/internal/repository"
	"github.com/remindly/followup-gateway/internal/util"
)

// webhookNotification is one change notification as delivered by the
// provider. ClientState must echo the secret we handed out at lease
// creation, otherwise the notification is dropped.
type webhookNotification struct {
	SubscriptionID string               `json:"subscriptionId"`
	ClientState    string               `json:"clientState"`
	MailboxID      string               `json:"mailboxId"`
	Message        model.InboundMessage `json:"message"`
}

type webhookReq struct {
	Value []webhookNotification `json:"value"`
}

// webhookHandler is the provider-facing receiver. It does the validation
// handshake, verifies clientState and writes accepted notifications to the
// outbox in one request; all heavy lifting happens downstream in the
// notifications worker.
func webhookHandler(outbox repository.OutboxRepository, clientState, topic string) echo.HandlerFunc {
	return func(c echo.Context) error {
		// lease-creation handshake: echo the token back as plain text
		if token := c.QueryParam("validationToken"); token != "" {
			return c.String(http.StatusOK, token)
		}

		var req webhookReq
		if err := c.Bind(&req); err != nil {
			metrics.NotificationsTotal.WithLabelValues("invalid").Inc()
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		accepted := 0
		for _, n := range req.Value {
			if n.ClientState != clientState {
				metrics.NotificationsTotal.WithLabelValues("invalid").Inc()
				log.Warnf("webhook: clientState mismatch, sub=%s", n.SubscriptionID)
				continue
			}
			if n.MailboxID == "" {
				metrics.NotificationsTotal.WithLabelValues("invalid").Inc()
				continue
			}
			if n.Message.ReceivedAt.IsZero() {
				n.Message.ReceivedAt = time.Now()
			}
			if n.Message.MailboxID == "" {
				n.Message.MailboxID = n.MailboxID
			}

			env := model.Envelope{
				ID:        util.New(),
				MailboxID: n.MailboxID,
				Message:   n.Message,
			}
			payload, err := json.Marshal(env)
			if err != nil {
				metrics.NotificationsTotal.WithLabelValues("error").Inc()
				continue
			}

			if err := outbox.Insert(c.Request().Context(), nil, "notification", env.ID, topic, payload); err != nil {
				log.Errorf("webhook: outbox insert failed: %v", err)
				metrics.NotificationsTotal.WithLabelValues("error").Inc()
				// 500 so the provider retries the whole batch; the worker
				// dedupes replays on provider message id
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
			}
			accepted++
		}

		// 202 regardless of per-item drops: the provider only needs to know
		// the delivery itself landed
		return c.JSON(http.StatusAccepted, map[string]any{"accepted": accepted})
	}
}
