package domain

// Canonical recipient attribute names. Any other CSV column is kept under its
// own lowercased header and is still available to templates.
const (
	FieldPhone    = "phone"
	FieldName     = "name"
	FieldBusiness = "business"
	FieldAddress  = "address"
)

// Variant tags a recipient's template assignment.
type Variant string

const (
	VariantA Variant = "A"
	VariantB Variant = "B"
)

// Recipient is one row of input data. Phone holds the normalized address
// (empty when the row had no usable phone). Fields carries every attribute of
// the row, including "phone", and is the template context.
type Recipient struct {
	Phone  string            `json:"phone"`
	Fields map[string]string `json:"fields"`
}

// Field returns a named attribute, or "" when absent.
func (r Recipient) Field(name string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[name]
}

// Context returns the recipient's attributes as a template binding map.
func (r Recipient) Context() map[string]interface{} {
	ctx := make(map[string]interface{}, len(r.Fields)+1)
	for k, v := range r.Fields {
		ctx[k] = v
	}
	ctx[FieldPhone] = r.Phone
	return ctx
}

// Templates holds the one or two message templates active for a batch.
// B is empty when the batch has no A/B split.
type Templates struct {
	A string `json:"template_a"`
	B string `json:"template_b,omitempty"`
}

// HasVariants reports whether two templates are configured.
func (t Templates) HasVariants() bool { return t.B != "" }

// For returns the template assigned to the given variant.
func (t Templates) For(v Variant) string {
	if v == VariantB && t.HasVariants() {
		return t.B
	}
	return t.A
}

// RenderedMessage is the preview of one recipient: the variant it was
// assigned, the final text, and the render error (if any).
type RenderedMessage struct {
	Index     int       `json:"index"`
	Recipient Recipient `json:"recipient"`
	Variant   Variant   `json:"variant"`
	Text      string    `json:"preview"`
	Error     string    `json:"error,omitempty"`
}

// Phone is a convenience accessor for the recipient's normalized phone.
func (m RenderedMessage) Phone() string { return m.Recipient.Phone }
