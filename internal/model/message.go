package model

import "time"

// InboundMessage is the normalized form of a provider webhook payload for
// one inbound mail. It is everything the classifier and correlator are
// allowed to look at.
type InboundMessage struct {
	ProviderMessageID string            `json:"provider_message_id"`
	MailboxID         string            `json:"mailbox_id"`
	Subject           string            `json:"subject"`
	SenderAddress     string            `json:"sender_address"`
	SenderName        string            `json:"sender_name"`
	Recipients        []string          `json:"recipients"`
	ConversationID    string            `json:"conversation_id"`
	ContentType       string            `json:"content_type"`
	BodyPreview       string            `json:"body_preview"`
	Headers           map[string]string `json:"headers,omitempty"`
	ReceivedAt        time.Time         `json:"received_at"`
}

// Header returns a provider header by canonical lower-case name.
func (m *InboundMessage) Header(name string) string {
	if m.Headers == nil {
		return ""
	}
	return m.Headers[name]
}
