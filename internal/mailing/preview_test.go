package mailing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/textdispatch/internal/datanorm"
	"github.com/ignite/textdispatch/internal/domain"
)

func recipient(phone string, fields map[string]string) domain.Recipient {
	norm := datanorm.NormalizePhone(phone)
	f := map[string]string{domain.FieldPhone: norm}
	for k, v := range fields {
		f[k] = v
	}
	return domain.Recipient{Phone: norm, Fields: f}
}

func TestCompose_EndToEnd(t *testing.T) {
	c := NewComposer(nil)
	msg := c.Compose(0, recipient("555-123-4567", map[string]string{"name": "Alex"}), domain.Templates{A: "Hi {{name}}"})

	assert.Empty(t, msg.Error)
	assert.Equal(t, "Hi Alex", msg.Text)
	assert.Equal(t, "+15551234567", msg.Phone())
	assert.Equal(t, domain.VariantA, msg.Variant)
}

func TestCompose_MissingPhone(t *testing.T) {
	c := NewComposer(nil)
	msg := c.Compose(3, recipient("", map[string]string{"name": "Alex"}), domain.Templates{A: "Hi {{name}}", B: "Yo {{name}}"})

	assert.Equal(t, domain.MissingPhoneError, msg.Error)
	assert.Equal(t, domain.VariantA, msg.Variant)
	assert.Empty(t, msg.Text)
	assert.Equal(t, 3, msg.Index)
}

func TestCompose_TemplateError(t *testing.T) {
	c := NewComposer(nil)
	msg := c.Compose(0, recipient("5551234567", nil), domain.Templates{A: "Hi {{ name }}"})

	assert.Equal(t, "Template error: 'name' is undefined", msg.Error)
	assert.Empty(t, msg.Text)
}

func TestCompose_UsesAssignedVariant(t *testing.T) {
	c := NewComposer(nil)
	tpl := domain.Templates{A: "A {{name}}", B: "B {{name}}"}
	r := recipient("5551234567", map[string]string{"name": "Alex"})

	msg := c.Compose(0, r, tpl)
	require.Empty(t, msg.Error)
	assert.Equal(t, string(SelectVariant(r.Phone, true))+" Alex", msg.Text)
}

func TestPreview_Counts(t *testing.T) {
	c := NewComposer(nil)
	rows := []domain.Recipient{
		recipient("5551234567", map[string]string{"name": "Alex"}),
		recipient("", map[string]string{"name": "Blair"}),
		recipient("5557654321", map[string]string{}),
	}
	msgs, sum := c.Preview(rows, domain.Templates{A: "Hi {{name}}"})

	require.Len(t, msgs, 3)
	assert.Equal(t, PreviewSummary{Total: 3, OK: 1, Errors: 2}, sum)
	for i, m := range msgs {
		assert.Equal(t, i, m.Index)
	}
}

func TestValidateTemplates(t *testing.T) {
	c := NewComposer(nil)
	assert.NoError(t, c.ValidateTemplates(domain.Templates{A: "Hi {{name}}"}))
	assert.Error(t, c.ValidateTemplates(domain.Templates{A: "Hi", B: "{% if x %}no end"}))
}
