package correlate

import (
	"context"
	"strings"

	"github.com/remindly/followup-gateway/internal/bounce"
	"github.com/remindly/followup-gateway/internal/model"
)

// Lookup is the slice of persistence the correlator needs. All finders
// return (nil, nil) when nothing matches.
type Lookup interface {
	// FindLatestByConversationID returns the most recent tracked email in
	// the mailbox sharing the conversation id, regardless of status.
	FindLatestByConversationID(ctx context.Context, mailboxID, conversationID string) (*model.TrackedEmail, error)
	// FindByInternetMessageID resolves a stored internet-message-id, as
	// referenced by In-Reply-To or References headers.
	FindByInternetMessageID(ctx context.Context, mailboxID, internetMessageID string) (*model.TrackedEmail, error)
	// FindLatestPendingByRecipient returns the most recent pending tracked
	// email addressed to the given recipient.
	FindLatestPendingByRecipient(ctx context.Context, mailboxID, recipient string) (*model.TrackedEmail, error)
	// FindLatestPendingBySubject returns the most recent pending tracked
	// email with the exact subject.
	FindLatestPendingBySubject(ctx context.Context, mailboxID, subject string) (*model.TrackedEmail, error)
}

type Correlator struct {
	lookup Lookup
}

func New(lookup Lookup) *Correlator {
	return &Correlator{lookup: lookup}
}

var autoReplySubjects = []string{
	"out of office",
	"automatic reply",
	"auto reply",
	"auto-reply",
	"autoreply",
	"abwesenheit",
	"vacation",
	"away from the office",
}

// IsAutoReply tags out-of-office and auto-responder mail. Tagged messages
// never count as a genuine response.
func IsAutoReply(msg *model.InboundMessage) bool {
	subject := strings.ToLower(msg.Subject)
	for _, p := range autoReplySubjects {
		if strings.Contains(subject, p) {
			return true
		}
	}
	switch strings.ToLower(msg.Header("auto-submitted")) {
	case "auto-replied", "auto-generated":
		return true
	}
	return msg.Header("x-autoreply") != ""
}

// MatchReply resolves an inbound non-NDR message to the tracked email it
// answers: conversation id first, then the In-Reply-To/References chain.
// No match is not an error.
func (c *Correlator) MatchReply(ctx context.Context, msg *model.InboundMessage) (*model.TrackedEmail, error) {
	if msg.ConversationID != "" {
		te, err := c.lookup.FindLatestByConversationID(ctx, msg.MailboxID, msg.ConversationID)
		if err != nil || te != nil {
			return te, err
		}
	}

	for _, ref := range referencedMessageIDs(msg) {
		te, err := c.lookup.FindByInternetMessageID(ctx, msg.MailboxID, ref)
		if err != nil || te != nil {
			return te, err
		}
	}

	return nil, nil
}

// MatchBounce resolves an NDR to the tracked email whose delivery failed.
// Strategies in order, first hit wins: conversation id, In-Reply-To chain,
// failed-recipient intersection, subject with NDR prefixes stripped.
func (c *Correlator) MatchBounce(ctx context.Context, msg *model.InboundMessage, cls bounce.Classification) (*model.TrackedEmail, error) {
	if msg.ConversationID != "" {
		te, err := c.lookup.FindLatestByConversationID(ctx, msg.MailboxID, msg.ConversationID)
		if err != nil || te != nil {
			return te, err
		}
	}

	for _, ref := range referencedMessageIDs(msg) {
		te, err := c.lookup.FindByInternetMessageID(ctx, msg.MailboxID, ref)
		if err != nil || te != nil {
			return te, err
		}
	}

	for _, rcpt := range cls.FailedRecipients {
		te, err := c.lookup.FindLatestPendingByRecipient(ctx, msg.MailboxID, rcpt)
		if err != nil || te != nil {
			return te, err
		}
	}

	if subject := bounce.StripNDRPrefixes(msg.Subject); subject != "" {
		te, err := c.lookup.FindLatestPendingBySubject(ctx, msg.MailboxID, subject)
		if err != nil || te != nil {
			return te, err
		}
	}

	return nil, nil
}

// referencedMessageIDs collects message ids from the In-Reply-To and
// References headers, most specific first.
func referencedMessageIDs(msg *model.InboundMessage) []string {
	var out []string
	seen := make(map[string]bool)

	add := func(raw string) {
		for _, id := range strings.Fields(raw) {
			id = strings.TrimSpace(id)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}

	add(msg.Header("in-reply-to"))
	add(msg.Header("references"))
	return out
}
