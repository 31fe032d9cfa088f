package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	valid := []string{
		"a@b.com",
		"first.last@mail.example.co",
		"user+tag@domain.io",
		"user@[192.168.0.1]",
	}
	invalid := []string{
		"",
		"plainaddress",
		"missing-at.example.com",
		"user@nodomain",
		"user@.com",
		"@no-local.com",
		"user@domain..com",
		"user name@example.com",
	}

	for _, email := range valid {
		assert.True(t, IsValidEmail(email), email)
	}
	for _, email := range invalid {
		assert.False(t, IsValidEmail(email), email)
	}
}

func TestExtractEmailProbeOrder(t *testing.T) {
	tests := []struct {
		name     string
		event    InboundEvent
		expected string
		found    bool
	}{
		{
			name:     "distinct id wins",
			event:    InboundEvent{DistinctID: "a@b.com", SetProperties: map[string]interface{}{"email": "set@b.com"}},
			expected: "a@b.com",
			found:    true,
		},
		{
			name:     "falls back to person properties",
			event:    InboundEvent{DistinctID: "anon-123", SetProperties: map[string]interface{}{"email": "set@b.com"}},
			expected: "set@b.com",
			found:    true,
		},
		{
			name: "falls back to event properties",
			event: InboundEvent{
				DistinctID:      "anon-123",
				SetProperties:   map[string]interface{}{"email": "not-an-email"},
				EventProperties: map[string]interface{}{"email": "event@b.com"},
			},
			expected: "event@b.com",
			found:    true,
		},
		{
			name:  "nothing validates",
			event: InboundEvent{DistinctID: "anon-123", EventProperties: map[string]interface{}{"email": 42}},
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email, found := ExtractEmail(tt.event)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.expected, email)
		})
	}
}

func TestIsIgnoredDomain(t *testing.T) {
	ignored := []string{"mycompany.com"}

	assert.True(t, IsIgnoredDomain("john@mycompany.com", ignored))
	assert.True(t, IsIgnoredDomain("john@mail.mycompany.com", ignored))
	assert.True(t, IsIgnoredDomain("john@MyCompany.COM", ignored))
	assert.False(t, IsIgnoredDomain("john@other.com", ignored))
	assert.False(t, IsIgnoredDomain("no-at-sign", ignored))
	assert.False(t, IsIgnoredDomain("john@other.com", nil))
}
