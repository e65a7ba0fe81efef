package correlate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remindly/followup-gateway/internal/bounce"
	"github.com/remindly/followup-gateway/internal/model"
)

type fakeLookup struct {
	byConversation map[string]*model.TrackedEmail
	byMessageID    map[string]*model.TrackedEmail
	byRecipient    map[string]*model.TrackedEmail
	bySubject      map[string]*model.TrackedEmail
}

func (f *fakeLookup) FindLatestByConversationID(_ context.Context, _, id string) (*model.TrackedEmail, error) {
	return f.byConversation[id], nil
}

func (f *fakeLookup) FindByInternetMessageID(_ context.Context, _, id string) (*model.TrackedEmail, error) {
	return f.byMessageID[id], nil
}

func (f *fakeLookup) FindLatestPendingByRecipient(_ context.Context, _, rcpt string) (*model.TrackedEmail, error) {
	return f.byRecipient[rcpt], nil
}

func (f *fakeLookup) FindLatestPendingBySubject(_ context.Context, _, subject string) (*model.TrackedEmail, error) {
	return f.bySubject[subject], nil
}

func TestMatchReplyByConversation(t *testing.T) {
	want := &model.TrackedEmail{ID: "te1", ConversationID: "conv-1"}
	c := New(&fakeLookup{byConversation: map[string]*model.TrackedEmail{"conv-1": want}})

	got, err := c.MatchReply(context.Background(), &model.InboundMessage{ConversationID: "conv-1"})
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestMatchReplyByHeaderChain(t *testing.T) {
	want := &model.TrackedEmail{ID: "te2", InternetMessageID: "<orig@contoso.com>"}
	c := New(&fakeLookup{
		byConversation: map[string]*model.TrackedEmail{},
		byMessageID:    map[string]*model.TrackedEmail{"<orig@contoso.com>": want},
	})

	msg := &model.InboundMessage{
		ConversationID: "unrelated",
		Headers: map[string]string{
			"in-reply-to": "<orig@contoso.com>",
			"references":  "<older@contoso.com> <orig@contoso.com>",
		},
	}
	got, err := c.MatchReply(context.Background(), msg)
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestMatchReplyNoMatch(t *testing.T) {
	c := New(&fakeLookup{})

	got, err := c.MatchReply(context.Background(), &model.InboundMessage{ConversationID: "nope"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMatchBounceOrder(t *testing.T) {
	conv := &model.TrackedEmail{ID: "by-conv"}
	rcpt := &model.TrackedEmail{ID: "by-rcpt"}
	subj := &model.TrackedEmail{ID: "by-subj"}

	lookup := &fakeLookup{
		byConversation: map[string]*model.TrackedEmail{"conv-9": conv},
		byRecipient:    map[string]*model.TrackedEmail{"bob@fabrikam.com": rcpt},
		bySubject:      map[string]*model.TrackedEmail{"Proposal Q4": subj},
	}
	c := New(lookup)
	cls := bounce.Classification{FailedRecipients: []string{"bob@fabrikam.com"}}

	msg := &model.InboundMessage{
		ConversationID: "conv-9",
		Subject:        "Undeliverable: Proposal Q4",
	}
	got, err := c.MatchBounce(context.Background(), msg, cls)
	require.NoError(t, err)
	assert.Same(t, conv, got, "conversation id wins over later strategies")

	msg.ConversationID = ""
	got, err = c.MatchBounce(context.Background(), msg, cls)
	require.NoError(t, err)
	assert.Same(t, rcpt, got, "failed recipient wins over subject")

	got, err = c.MatchBounce(context.Background(), msg, bounce.Classification{})
	require.NoError(t, err)
	assert.Same(t, subj, got, "stripped subject is the last resort")
}

func TestMatchBounceNoMatchIsNotAnError(t *testing.T) {
	c := New(&fakeLookup{})

	got, err := c.MatchBounce(context.Background(), &model.InboundMessage{Subject: "Undeliverable: gone"}, bounce.Classification{})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIsAutoReply(t *testing.T) {
	for name, tc := range map[string]struct {
		msg  model.InboundMessage
		want bool
	}{
		"out of office subject": {model.InboundMessage{Subject: "Out of Office: Re: Proposal"}, true},
		"automatic reply":       {model.InboundMessage{Subject: "Automatic reply: hello"}, true},
		"auto-submitted header": {
			model.InboundMessage{Subject: "Re: hello", Headers: map[string]string{"auto-submitted": "auto-replied"}},
			true,
		},
		"x-autoreply header": {
			model.InboundMessage{Subject: "Re: hello", Headers: map[string]string{"x-autoreply": "yes"}},
			true,
		},
		"genuine reply": {model.InboundMessage{Subject: "Re: hello"}, false},
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsAutoReply(&tc.msg))
		})
	}
}
