package bounce

import (
	"regexp"
	"strings"

	"github.com/remindly/followup-gateway/internal/model"
)

// Confidence weights for the independent NDR signals. A message is treated
// as an NDR when the sum reaches Threshold.
const (
	weightSubject     = 40
	weightSender      = 30
	weightContentType = 20
	weightNDRHeader   = 10

	Threshold = 50
)

var (
	ndrSubjectPatterns = []string{
		"undeliverable",
		"undelivered mail",
		"delivery status notification",
		"delivery failure",
		"failure notice",
		"mail delivery failed",
		"returned mail",
		"delivery has failed",
		"nicht zustellbar",
	}

	// prefixes stripped when comparing an NDR subject to the original one
	ndrSubjectPrefixes = []string{
		"undeliverable:",
		"undelivered mail returned to sender:",
		"delivery status notification (failure):",
		"mail delivery failed:",
		"failure notice:",
		"re:",
		"fw:",
		"fwd:",
	}

	automatedSenderPatterns = []string{
		"postmaster",
		"mailer-daemon",
		"mail delivery subsystem",
		"mail delivery system",
		"microsoftexchange",
		"noreply",
		"no-reply",
	}

	reportContentTypes = []string{
		"multipart/report",
		"delivery-status",
	}

	statusCodeRe = regexp.MustCompile(`\b([45]\.\d+\.\d+)\b`)
	addressRe    = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	mtaRe        = regexp.MustCompile(`(?i)reporting-mta:\s*(?:dns;)?\s*([^\s;]+)`)
	diagRe       = regexp.MustCompile(`(?i)diagnostic-code:\s*(.+)`)
)

// Classification is the structured verdict for one inbound message.
type Classification struct {
	IsNDR            bool
	Confidence       int
	BounceType       model.BounceType
	BounceCategory   string
	BounceCode       string
	BounceReason     string
	DiagnosticCode   string
	ReportingMTA     string
	FailedRecipients []string
}

// Classify scores one inbound message against the known NDR signals and,
// when the threshold is met, extracts structured failure data. It is a
// pure function; messages below the threshold are ordinary inbound mail,
// not an error.
func Classify(msg *model.InboundMessage) Classification {
	var c Classification

	subject := strings.ToLower(msg.Subject)
	sender := strings.ToLower(msg.SenderAddress + " " + msg.SenderName)
	contentType := strings.ToLower(msg.ContentType)
	body := msg.BodyPreview

	for _, p := range ndrSubjectPatterns {
		if strings.Contains(subject, p) {
			c.Confidence += weightSubject
			break
		}
	}
	for _, p := range automatedSenderPatterns {
		if strings.Contains(sender, p) {
			c.Confidence += weightSender
			break
		}
	}
	for _, p := range reportContentTypes {
		if strings.Contains(contentType, p) {
			c.Confidence += weightContentType
			break
		}
	}
	if hasNDRHeader(msg) {
		c.Confidence += weightNDRHeader
	}

	if c.Confidence < Threshold {
		return c
	}
	c.IsNDR = true

	c.BounceCode = extractStatusCode(body)
	c.BounceType, c.BounceCategory, c.BounceReason = classifyCode(c.BounceCode, body)
	c.DiagnosticCode = extractDiagnostic(body)
	c.ReportingMTA = extractReportingMTA(body)
	c.FailedRecipients = extractFailedRecipients(msg)

	return c
}

func hasNDRHeader(msg *model.InboundMessage) bool {
	if msg.Header("x-failed-recipients") != "" {
		return true
	}
	auto := strings.ToLower(msg.Header("auto-submitted"))
	return auto == "auto-replied" || auto == "auto-generated"
}

func extractStatusCode(body string) string {
	return statusCodeRe.FindString(body)
}

// classifyCode resolves a status code via the table (exact, then class
// prefix) and falls back to keyword heuristics on the body.
func classifyCode(code, body string) (model.BounceType, string, string) {
	if code != "" {
		if e, ok := smtpCodes[code]; ok {
			return e.Type, e.Category, e.Description
		}
		if i := strings.LastIndex(code, "."); i > 0 {
			if e, ok := smtpCodes[code[:i]]; ok {
				return e.Type, e.Category, e.Description
			}
		}
	}

	lower := strings.ToLower(body)
	for _, r := range keywordRules {
		if strings.Contains(lower, r.Keyword) {
			return r.Type, r.Category, r.Keyword
		}
	}

	return model.BounceUnknown, model.CategoryOther, ""
}

func extractDiagnostic(body string) string {
	if m := diagRe.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func extractReportingMTA(body string) string {
	if m := mtaRe.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	return ""
}

// extractFailedRecipients prefers the provider header, then falls back to
// any addresses mentioned in the body that are not the reporting sender.
func extractFailedRecipients(msg *model.InboundMessage) []string {
	if raw := msg.Header("x-failed-recipients"); raw != "" {
		var out []string
		for _, a := range strings.Split(raw, ",") {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				out = append(out, a)
			}
		}
		return out
	}

	seen := make(map[string]bool)
	var out []string
	for _, a := range addressRe.FindAllString(msg.BodyPreview, -1) {
		a = strings.ToLower(a)
		if a == strings.ToLower(msg.SenderAddress) || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

// StripNDRPrefixes removes known NDR and reply prefixes from a subject for
// comparison against the original outbound subject.
func StripNDRPrefixes(subject string) string {
	s := strings.TrimSpace(subject)
	for changed := true; changed; {
		changed = false
		for _, p := range ndrSubjectPrefixes {
			if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
				s = strings.TrimSpace(s[len(p):])
				changed = true
			}
		}
	}
	return s
}
