package datanorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"dashed ten digit", "555-123-4567", "+15551234567"},
		{"formatted ten digit", "(555) 123-4567", "+15551234567"},
		{"eleven digit with leading one", "1 555 123 4567", "+15551234567"},
		{"already normalized", "+15551234567", "+15551234567"},
		{"foreign plus passthrough", "+44 20 7946 0958", "+44 20 7946 0958"},
		{"short number returns digits", "12-345", "12345"},
		{"eleven digits not starting with one", "25551234567", "25551234567"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.raw))
		})
	}
}

func TestNormalizePhone_Idempotent(t *testing.T) {
	inputs := []string{"+15551234567", "5551234567", "555.123.4567", "1-555-123-4567", "+447700900123", "911"}
	for _, in := range inputs {
		once := NormalizePhone(in)
		assert.Equal(t, once, NormalizePhone(once), "input %q", in)
	}
}

func TestPhoneNormalizer_CountryCode(t *testing.T) {
	n := NewPhoneNormalizer("44")
	assert.Equal(t, "+442079460958", n.Normalize("2079460958"))

	n = NewPhoneNormalizer("")
	assert.Equal(t, "+15551234567", n.Normalize("5551234567"))

	var nilNormalizer *PhoneNormalizer
	assert.Equal(t, "+15551234567", nilNormalizer.Normalize("5551234567"))
}

func TestLast10Digits(t *testing.T) {
	assert.Equal(t, "5551234567", Last10Digits("+1 (555) 123-4567"))
	assert.Equal(t, "5551234567", Last10Digits("5551234567"))
	assert.Equal(t, "12345", Last10Digits("12-345"))
	assert.Equal(t, "", Last10Digits("user@example.com"))
	assert.Equal(t, Last10Digits("+15551234567"), Last10Digits("15551234567"))
}
