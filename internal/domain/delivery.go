package domain

import "time"

// DeliveryStatus is the outcome recorded for a recipient.
type DeliveryStatus string

const (
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusSent      DeliveryStatus = "SENT"
	StatusFailed    DeliveryStatus = "FAILED"
	StatusUnknown   DeliveryStatus = "UNKNOWN"
	StatusDryRun    DeliveryStatus = "DRY_RUN"
	StatusSkipped   DeliveryStatus = "SKIPPED"
	StatusCancelled DeliveryStatus = "CANCELLED"
)

// IsDecisive reports whether a poll loop can stop on this status.
func (s DeliveryStatus) IsDecisive() bool {
	return s == StatusDelivered || s == StatusFailed
}

// IsOK reports whether the status counts as a (tentative) success. SENT means
// no failure has been observed yet.
func (s DeliveryStatus) IsOK() bool {
	return s == StatusDelivered || s == StatusSent
}

// Service tags as recorded by the message history store (upper-cased).
const (
	ServiceIMessage = "IMESSAGE"
	ServiceSMS      = "SMS"
)

// MissingPhoneError is the per-row error for recipients without a phone.
const MissingPhoneError = "Missing phone"

// DispatchAttempt records one issued send. SentAt is the time origin for
// delivery observation.
type DispatchAttempt struct {
	Phone  string    `json:"phone"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
	Error  string    `json:"error,omitempty"`
}

// HistoryRow is one outbound message as read from the message history store.
// Date and DateDelivered are in the store's native encoding; SentAt and
// DeliveredAt are the same instants decoded to wall-clock time.
type HistoryRow struct {
	RowID         int64  `json:"rowid"`
	GUID          string `json:"guid"`
	Address       string `json:"address"`
	Text          string `json:"text"`
	Date          int64  `json:"date"`
	DateDelivered int64  `json:"date_delivered"`
	IsFromMe      bool   `json:"is_from_me"`
	IsSent        bool   `json:"is_sent"`
	IsDelivered   bool   `json:"is_delivered"`
	Error         int64  `json:"error"`
	Service       string `json:"service"`

	SentAt      time.Time `json:"sent_at"`
	DeliveredAt time.Time `json:"delivered_at,omitzero"`
}

// DeliveryObservation is the classified outcome of polling the history store.
type DeliveryObservation struct {
	Status         DeliveryStatus `json:"status"`
	Service        string         `json:"service,omitempty"`
	LikelyLandline bool           `json:"likely_landline"`
	Reason         string         `json:"reason,omitempty"`
	Raw            *HistoryRow    `json:"raw,omitempty"`
}

// SendResult is the per-recipient outcome written to the audit log.
type SendResult struct {
	Index          int               `json:"index"`
	Phone          string            `json:"phone"`
	Variant        Variant           `json:"variant"`
	Message        string            `json:"message"`
	Fields         map[string]string `json:"data,omitempty"`
	OK             bool              `json:"ok"`
	Status         DeliveryStatus    `json:"status"`
	Service        string            `json:"service,omitempty"`
	LikelyLandline bool              `json:"likely_landline"`
	Error          string            `json:"error,omitempty"`
	SentAt         *time.Time        `json:"sent_at,omitempty"`
}

// Field returns a recipient attribute carried on the result.
func (r SendResult) Field(name string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[name]
}

// BatchReport summarizes a finished send batch.
type BatchReport struct {
	BatchID    string       `json:"batch_id"`
	DryRun     bool         `json:"dry_run"`
	Results    []SendResult `json:"results"`
	Succeeded  int          `json:"sent_success"`
	Failed     int          `json:"sent_failed"`
	LogName    string       `json:"log_filename,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Cancelled  bool         `json:"cancelled,omitempty"`
}
