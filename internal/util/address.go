package util

import (
	"net/mail"
	"strings"
)

// NormalizeAddress lowercases an email address and strips a display name
// if one is present ("Alice <alice@x.y>" -> "alice@x.y"). Invalid input is
// returned trimmed and lowercased rather than rejected; validation belongs
// to the caller.
func NormalizeAddress(raw string) string {
	s := strings.TrimSpace(raw)
	if a, err := mail.ParseAddress(s); err == nil {
		s = a.Address
	}
	return strings.ToLower(s)
}

// NormalizeAddressList normalizes each entry and drops empties and
// duplicates, preserving order.
func NormalizeAddressList(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		a := NormalizeAddress(r)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
