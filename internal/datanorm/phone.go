package datanorm

import "strings"

// DefaultCountryCode is prepended to bare 10-digit numbers.
const DefaultCountryCode = "+1"

// PhoneNormalizer canonicalizes free-text phone numbers into a dispatchable
// address. The zero value uses DefaultCountryCode.
type PhoneNormalizer struct {
	CountryCode string
}

// NewPhoneNormalizer returns a normalizer for the given calling code
// ("+1", "44", ...). An empty code falls back to DefaultCountryCode.
func NewPhoneNormalizer(countryCode string) *PhoneNormalizer {
	cc := strings.TrimSpace(countryCode)
	if cc != "" && !strings.HasPrefix(cc, "+") {
		cc = "+" + cc
	}
	return &PhoneNormalizer{CountryCode: cc}
}

// Normalize returns a best-effort dispatchable address for raw input.
//
//	"555-123-4567"   -> "+15551234567"
//	"1 555 123 4567" -> "+15551234567"
//	"+44 20 7946"    -> "+44 20 7946" (passed through)
//	"12345"          -> "12345"
//
// Empty input returns "" and must be treated as a missing phone.
func (n *PhoneNormalizer) Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	digits := DigitsOnly(raw)
	switch {
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits
	case len(digits) == 10:
		return n.countryCode() + digits
	case strings.HasPrefix(raw, "+"):
		return raw
	default:
		return digits
	}
}

func (n *PhoneNormalizer) countryCode() string {
	if n == nil || n.CountryCode == "" {
		return DefaultCountryCode
	}
	return n.CountryCode
}

// NormalizePhone normalizes with the default country code.
func NormalizePhone(raw string) string {
	return (&PhoneNormalizer{}).Normalize(raw)
}

// DigitsOnly strips every non-digit character.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Last10Digits reduces an address to its last 10 digits (or all of its
// digits when it has fewer). Used to compare addresses recorded with
// different country-code prefixes or formatting.
func Last10Digits(s string) string {
	d := DigitsOnly(s)
	if len(d) > 10 {
		return d[len(d)-10:]
	}
	return d
}
