package datanorm

import (
	"strings"

	"github.com/ignite/textdispatch/internal/domain"
)

// columnAliases maps lowercase header names to canonical recipient fields.
// When multiple raw headers mean the same thing, they all map here.
// Headers not listed keep their own (lowercased) name.
var columnAliases = map[string]string{
	// Phone
	"phone":        domain.FieldPhone,
	"phone_number": domain.FieldPhone,
	"phonenumber":  domain.FieldPhone,
	"number":       domain.FieldPhone,
	"mobile":       domain.FieldPhone,
	"cell":         domain.FieldPhone,

	// Name
	"name":       domain.FieldName,
	"full_name":  domain.FieldName,
	"first_name": domain.FieldName,

	// Business
	"business":      domain.FieldBusiness,
	"company":       domain.FieldBusiness,
	"business_name": domain.FieldBusiness,

	// Street address
	"address": domain.FieldAddress,
	"addr":    domain.FieldAddress,
	"street":  domain.FieldAddress,
}

// ColumnMapping holds the resolved mapping from CSV column indices to
// recipient field names.
type ColumnMapping struct {
	PhoneIdx int
	FieldMap map[int]string // column index -> field name
	RawNames []string       // original header names
}

// MapColumns takes a raw CSV header row and returns a resolved mapping.
// Blank headers are dropped. When two headers resolve to the same field the
// first one wins. PhoneIdx is -1 when no phone column is present.
func MapColumns(header []string) *ColumnMapping {
	m := &ColumnMapping{
		PhoneIdx: -1,
		FieldMap: make(map[int]string, len(header)),
		RawNames: header,
	}

	taken := make(map[string]bool, len(header))
	for i, h := range header {
		name := CanonicalHeader(h)
		if name == "" || taken[name] {
			continue
		}
		taken[name] = true
		m.FieldMap[i] = name
		if name == domain.FieldPhone {
			m.PhoneIdx = i
		}
	}

	return m
}

// CanonicalHeader resolves one header cell to its field name.
func CanonicalHeader(h string) string {
	normalized := strings.ToLower(strings.TrimSpace(h))
	// Remove surrounding quotes
	normalized = strings.Trim(normalized, "\"'")
	normalized = strings.TrimPrefix(normalized, "\ufeff")
	if normalized == "" {
		return ""
	}
	if field, ok := columnAliases[normalized]; ok {
		return field
	}
	return normalized
}

// HasPhone reports whether the header carried a phone column.
func (m *ColumnMapping) HasPhone() bool { return m != nil && m.PhoneIdx >= 0 }
