package datanorm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/textdispatch/internal/domain"
)

func TestMapColumns(t *testing.T) {
	m := MapColumns([]string{" Phone_Number ", "Full_Name", "Company", "Street", "Notes", ""})

	require.True(t, m.HasPhone())
	assert.Equal(t, 0, m.PhoneIdx)
	assert.Equal(t, domain.FieldPhone, m.FieldMap[0])
	assert.Equal(t, domain.FieldName, m.FieldMap[1])
	assert.Equal(t, domain.FieldBusiness, m.FieldMap[2])
	assert.Equal(t, domain.FieldAddress, m.FieldMap[3])
	assert.Equal(t, "notes", m.FieldMap[4])
	_, ok := m.FieldMap[5]
	assert.False(t, ok, "blank header must be dropped")
}

func TestMapColumns_FirstAliasWins(t *testing.T) {
	m := MapColumns([]string{"mobile", "phone"})
	assert.Equal(t, 0, m.PhoneIdx)
	assert.Len(t, m.FieldMap, 1)
}

func TestMapColumns_NoPhone(t *testing.T) {
	m := MapColumns([]string{"name", "email"})
	assert.False(t, m.HasPhone())
}

func TestImportFromReader(t *testing.T) {
	csv := "\ufeffCell,First_Name,Business_Name,city\n" +
		"555-123-4567, Alex ,Acme Corp,Austin,overflow\n" +
		",Blair,,Boston\n" +
		",,,\n" +
		"1 (555) 765-4321,Casey\n"

	recipients, err := NewImporter(nil).ImportFromReader(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, recipients, 3)

	assert.Equal(t, "+15551234567", recipients[0].Phone)
	assert.Equal(t, "Alex", recipients[0].Field(domain.FieldName))
	assert.Equal(t, "Acme Corp", recipients[0].Field(domain.FieldBusiness))
	assert.Equal(t, "Austin", recipients[0].Field("city"))
	assert.Equal(t, "+15551234567", recipients[0].Field(domain.FieldPhone))
	assert.Len(t, recipients[0].Fields, 4)

	assert.Equal(t, "", recipients[1].Phone)
	assert.Equal(t, "Blair", recipients[1].Field(domain.FieldName))

	assert.Equal(t, "+15557654321", recipients[2].Phone)
	assert.Equal(t, "", recipients[2].Field("city"))
}

func TestImportFromReader_Empty(t *testing.T) {
	_, err := NewImporter(nil).ImportFromReader(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNoHeader)
}
