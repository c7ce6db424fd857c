// Package events publishes per-recipient send results to a message broker.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignite/textdispatch/internal/domain"
)

// ResultEventType is the envelope type of a published send result.
const ResultEventType = "delivery.result.v1"

// Producer identifies this service in event metadata.
const Producer = "textdispatch"

// Meta is the event metadata carried in every envelope.
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Producer      *string   `json:"producer,omitempty"`
	Time          time.Time `json:"time"`
	Type          string    `json:"type"`
}

// Envelope wraps an event payload with its metadata.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// ResultData is the payload of a delivery.result.v1 event. Recipient fields
// are omitted; only the address and outcome leave the process.
type ResultData struct {
	BatchID        string                `json:"batch_id"`
	Index          int                   `json:"index"`
	Phone          string                `json:"phone"`
	Variant        domain.Variant        `json:"variant"`
	OK             bool                  `json:"ok"`
	Status         domain.DeliveryStatus `json:"status"`
	Service        string                `json:"service,omitempty"`
	LikelyLandline bool                  `json:"likely_landline"`
	Error          string                `json:"error,omitempty"`
	SentAt         *time.Time            `json:"sent_at,omitempty"`
}

// NewResultEnvelope builds the envelope for one send result. The batch id is
// the correlation id.
func NewResultEnvelope(batchID string, r domain.SendResult, now time.Time) Envelope {
	producer := Producer
	meta := Meta{
		ID:       uuid.NewString(),
		Producer: &producer,
		Time:     now.UTC(),
		Type:     ResultEventType,
	}
	if batchID != "" {
		cid := batchID
		meta.CorrelationID = &cid
	}
	return Envelope{
		Meta: meta,
		Data: ResultData{
			BatchID:        batchID,
			Index:          r.Index,
			Phone:          r.Phone,
			Variant:        r.Variant,
			OK:             r.OK,
			Status:         r.Status,
			Service:        r.Service,
			LikelyLandline: r.LikelyLandline,
			Error:          r.Error,
			SentAt:         r.SentAt,
		},
	}
}
