package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/remindly/followup-gateway/internal/errs"
)

// Lease is the provider's view of a change-notification subscription.
type Lease struct {
	ID                 string    `json:"id"`
	Resource           string    `json:"resource"`
	ChangeTypes        string    `json:"changeType"`
	NotificationURL    string    `json:"notificationUrl"`
	ClientState        string    `json:"clientState,omitempty"`
	ExpirationDateTime time.Time `json:"expirationDateTime"`
}

// OutboundMail is a follow-up message handed to the provider's send API.
type OutboundMail struct {
	MailboxID      string   `json:"mailbox_id"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Subject        string   `json:"subject"`
	Body           string   `json:"body"`
	Recipients     []string `json:"recipients"`
	TemplateID     string   `json:"template_id,omitempty"`
}

// Client is the surface the lease manager and sender worker depend on.
type Client interface {
	CreateLease(ctx context.Context, resource, changeTypes string, expiresAt time.Time) (*Lease, error)
	RenewLease(ctx context.Context, leaseID string, expiresAt time.Time) (*Lease, error)
	DeleteLease(ctx context.Context, leaseID string) error
	SendMail(ctx context.Context, mail OutboundMail) error
}

// HTTPClient talks JSON to the notification provider. A MicroBreaker keeps
// a flapping provider from being hammered by the periodic jobs.
type HTTPClient struct {
	baseURL         string
	notificationURL string
	clientState     string
	client          *http.Client
	br              *MicroBreaker
}

func NewHTTPClient(baseURL, notificationURL, clientState string, timeoutMs, failThreshold, openForMs int) *HTTPClient {
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}

	if failThreshold <= 0 {
		failThreshold = 3
	}

	if openForMs <= 0 {
		openForMs = 15000
	}

	return &HTTPClient{
		baseURL:         baseURL,
		notificationURL: notificationURL,
		clientState:     clientState,
		client:          &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		br:              NewMicroBreaker(failThreshold, time.Duration(openForMs)*time.Millisecond),
	}
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) CreateLease(ctx context.Context, resource, changeTypes string, expiresAt time.Time) (*Lease, error) {
	body := Lease{
		Resource:           resource,
		ChangeTypes:        changeTypes,
		NotificationURL:    c.notificationURL,
		ClientState:        c.clientState,
		ExpirationDateTime: expiresAt,
	}

	var lease Lease
	if err := c.do(ctx, http.MethodPost, "/subscriptions", body, &lease); err != nil {
		return nil, err
	}
	return &lease, nil
}

func (c *HTTPClient) RenewLease(ctx context.Context, leaseID string, expiresAt time.Time) (*Lease, error) {
	body := map[string]any{"expirationDateTime": expiresAt}

	var lease Lease
	if err := c.do(ctx, http.MethodPatch, "/subscriptions/"+leaseID, body, &lease); err != nil {
		return nil, err
	}
	return &lease, nil
}

// DeleteLease tolerates leases the provider already expired or removed.
func (c *HTTPClient) DeleteLease(ctx context.Context, leaseID string) error {
	err := c.do(ctx, http.MethodDelete, "/subscriptions/"+leaseID, nil, nil)
	var pe *errs.ProviderError
	if errors.As(err, &pe) && (pe.Status == http.StatusNotFound || pe.Status == http.StatusGone) {
		return nil
	}
	return err
}

func (c *HTTPClient) SendMail(ctx context.Context, mail OutboundMail) error {
	return c.do(ctx, http.MethodPost, "/mailboxes/"+mail.MailboxID+"/sendMail", mail, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	if !c.br.TryAcquire() {
		return &errs.ProviderError{Op: method + " " + path, Status: 0, Body: "circuit open"}
	}

	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			c.br.OnSuccess() // marshal failure says nothing about provider health
			return err
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		c.br.OnSuccess()
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.client.Do(req)
	if err != nil {
		c.br.OnFailure()
		return fmt.Errorf("provider %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		// 4xx is a request problem, not provider sickness
		if res.StatusCode >= 500 {
			c.br.OnFailure()
		} else {
			c.br.OnSuccess()
		}
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
		return &errs.ProviderError{Op: method + " " + path, Status: res.StatusCode, Body: string(raw)}
	}

	c.br.OnSuccess()

	if out != nil {
		return json.NewDecoder(res.Body).Decode(out)
	}
	return nil
}
