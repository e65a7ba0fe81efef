package bounce

import "github.com/remindly/followup-gateway/internal/model"

type codeEntry struct {
	Type        model.BounceType
	Category    string
	Description string
}

// smtpCodes maps SMTP enhanced status codes to a classification. Lookup is
// exact code first, then the 2-segment class prefix.
var smtpCodes = map[string]codeEntry{
	// permanent
	"5.1.1":   {model.BounceHard, model.CategoryInvalidRecipient, "bad destination mailbox address"},
	"5.1.2":   {model.BounceHard, model.CategoryRoutingFailure, "bad destination system address"},
	"5.1.3":   {model.BounceHard, model.CategoryInvalidRecipient, "bad destination mailbox address syntax"},
	"5.1.6":   {model.BounceHard, model.CategoryInvalidRecipient, "destination mailbox has moved"},
	"5.1.10":  {model.BounceHard, model.CategoryInvalidRecipient, "recipient address rejected"},
	"5.2.1":   {model.BounceHard, model.CategoryInvalidRecipient, "mailbox disabled"},
	"5.2.2":   {model.BounceHard, model.CategoryMailboxFull, "mailbox full (permanent)"},
	"5.4.1":   {model.BounceHard, model.CategoryRoutingFailure, "no answer from host"},
	"5.4.4":   {model.BounceHard, model.CategoryRoutingFailure, "unable to route"},
	"5.7.1":   {model.BounceHard, model.CategorySpamRejection, "delivery not authorized, message refused"},
	"5.7.606": {model.BounceHard, model.CategorySpamRejection, "access denied, banned sending IP"},

	// transient
	"4.2.2": {model.BounceSoft, model.CategoryMailboxFull, "mailbox full"},
	"4.3.1": {model.BounceSoft, model.CategoryTemporaryFailure, "insufficient system resources"},
	"4.3.2": {model.BounceSoft, model.CategoryTemporaryFailure, "system not accepting network messages"},
	"4.4.1": {model.BounceSoft, model.CategoryTemporaryFailure, "connection timed out"},
	"4.4.2": {model.BounceSoft, model.CategoryTemporaryFailure, "connection dropped"},
	"4.4.7": {model.BounceSoft, model.CategoryTemporaryFailure, "message expired in queue"},
	"4.7.0": {model.BounceSoft, model.CategoryTemporaryFailure, "temporary policy rejection"},

	// class prefixes, consulted when the exact code is unknown
	"5.1": {model.BounceHard, model.CategoryInvalidRecipient, "addressing failure"},
	"5.2": {model.BounceHard, model.CategoryInvalidRecipient, "mailbox failure"},
	"5.3": {model.BounceHard, model.CategoryRoutingFailure, "mail system failure"},
	"5.4": {model.BounceHard, model.CategoryRoutingFailure, "network or routing failure"},
	"5.5": {model.BounceHard, model.CategoryOther, "protocol failure"},
	"5.6": {model.BounceHard, model.CategoryOther, "content failure"},
	"5.7": {model.BounceHard, model.CategoryPolicyViolation, "security or policy rejection"},
	"4.2": {model.BounceSoft, model.CategoryMailboxFull, "mailbox temporarily unavailable"},
	"4.3": {model.BounceSoft, model.CategoryTemporaryFailure, "mail system temporarily unavailable"},
	"4.4": {model.BounceSoft, model.CategoryTemporaryFailure, "transient network failure"},
	"4.7": {model.BounceSoft, model.CategoryTemporaryFailure, "transient policy rejection"},
}

// keywordRules classify NDR bodies that carry no parsable status code.
// First match wins.
var keywordRules = []struct {
	Keyword  string
	Type     model.BounceType
	Category string
}{
	{"user unknown", model.BounceHard, model.CategoryInvalidRecipient},
	{"no such user", model.BounceHard, model.CategoryInvalidRecipient},
	{"recipient not found", model.BounceHard, model.CategoryInvalidRecipient},
	{"does not exist", model.BounceHard, model.CategoryInvalidRecipient},
	{"mailbox full", model.BounceSoft, model.CategoryMailboxFull},
	{"quota exceeded", model.BounceSoft, model.CategoryMailboxFull},
	{"over quota", model.BounceSoft, model.CategoryMailboxFull},
	{"blocked", model.BounceHard, model.CategorySpamRejection},
	{"spam", model.BounceHard, model.CategorySpamRejection},
	{"blacklist", model.BounceHard, model.CategorySpamRejection},
	{"temporary", model.BounceSoft, model.CategoryTemporaryFailure},
	{"temporarily", model.BounceSoft, model.CategoryTemporaryFailure},
	{"retry", model.BounceSoft, model.CategoryTemporaryFailure},
	{"try again later", model.BounceSoft, model.CategoryTemporaryFailure},
}
