package domain

import "time"

// BatchState is the lifecycle state of an uploaded batch.
type BatchState string

const (
	BatchReady     BatchState = "ready"
	BatchSending   BatchState = "sending"
	BatchCompleted BatchState = "completed"
	BatchCancelled BatchState = "cancelled"
	BatchFailed    BatchState = "failed"
)

// Batch is an uploaded recipient list with its active templates and, once
// sent, the outcome of the last run.
type Batch struct {
	ID         string       `json:"id"`
	Recipients []Recipient  `json:"recipients"`
	Templates  Templates    `json:"templates"`
	State      BatchState   `json:"state"`
	Report     *BatchReport `json:"report,omitempty"`
	Error      string       `json:"error,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// IsSending reports whether a run is in progress.
func (b *Batch) IsSending() bool { return b.State == BatchSending }
