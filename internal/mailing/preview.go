package mailing

import (
	"github.com/ignite/textdispatch/internal/domain"
)

// Composer turns recipients plus a batch's templates into rendered messages.
type Composer struct {
	templates *TemplateService
}

func NewComposer(templates *TemplateService) *Composer {
	if templates == nil {
		templates = NewTemplateService()
	}
	return &Composer{templates: templates}
}

// PreviewSummary counts preview rows by outcome.
type PreviewSummary struct {
	Total  int `json:"total"`
	OK     int `json:"ok"`
	Errors int `json:"errors"`
}

// Compose renders the message for one recipient. Recipients without a phone
// get the missing-phone error and are never rendered.
func (c *Composer) Compose(index int, r domain.Recipient, t domain.Templates) domain.RenderedMessage {
	msg := domain.RenderedMessage{Index: index, Recipient: r, Variant: domain.VariantA}
	if r.Phone == "" {
		msg.Error = domain.MissingPhoneError
		return msg
	}

	msg.Variant = SelectVariant(r.Phone, t.HasVariants())
	text, err := c.templates.Render(t.For(msg.Variant), r.Context())
	if err != nil {
		msg.Error = "Template error: " + err.Error()
		return msg
	}
	msg.Text = text
	return msg
}

// Preview composes every recipient in order.
func (c *Composer) Preview(recipients []domain.Recipient, t domain.Templates) ([]domain.RenderedMessage, PreviewSummary) {
	out := make([]domain.RenderedMessage, len(recipients))
	sum := PreviewSummary{Total: len(recipients)}
	for i, r := range recipients {
		out[i] = c.Compose(i, r, t)
		if out[i].Error == "" {
			sum.OK++
		} else {
			sum.Errors++
		}
	}
	return out, sum
}

// ValidateTemplates checks that every configured template parses.
func (c *Composer) ValidateTemplates(t domain.Templates) error {
	if err := c.templates.Parse(t.A); err != nil {
		return err
	}
	if t.HasVariants() {
		return c.templates.Parse(t.B)
	}
	return nil
}
