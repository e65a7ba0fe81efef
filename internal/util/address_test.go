package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddress(t *testing.T) {
	for name, tc := range map[string]struct {
		in   string
		want string
	}{
		"plain":         {"alice@example.com", "alice@example.com"},
		"uppercase":     {"ALICE@Example.COM", "alice@example.com"},
		"display name":  {`"Alice A." <Alice@example.com>`, "alice@example.com"},
		"angle only":    {"<bob@example.com>", "bob@example.com"},
		"padded":        {"  carol@example.com  ", "carol@example.com"},
		"not parseable": {"not-an-address", "not-an-address"},
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeAddress(tc.in))
		})
	}
}

func TestNormalizeAddressList(t *testing.T) {
	got := NormalizeAddressList([]string{
		"Alice@example.com",
		"",
		"alice@example.com", // duplicate after normalization
		"Bob <bob@example.com>",
	})
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, got)
}
