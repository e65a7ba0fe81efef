package middleware

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"

	"github.com/remindly/followup-gateway/internal/repository"
)

// MailboxFromCtx extracts the authenticated mailbox id set by APIKeyMiddleware.
func MailboxFromCtx(c echo.Context) (string, bool) {
	v := c.Get("mailbox_id")
	id, ok := v.(string)
	return id, ok && id != ""
}

// APIKeyMiddleware authenticates requests using the X-API-Key header.
// On success it stores mailbox_id in context and blocks suspended mailboxes.
func APIKeyMiddleware(mailboxes repository.MailboxesRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}
			mb, err := mailboxes.GetByAPIKey(c.Request().Context(), key)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "auth error"})
			}
			if mb == nil || !mb.Active() {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			}
			c.Set("mailbox_id", mb.ID)
			if mb.RateLimitRPS != nil {
				c.Set("mailbox_rps", *mb.RateLimitRPS)
			}
			return next(c)
		}
	}
}
