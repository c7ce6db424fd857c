package batch

import "errors"

// Sentinel errors for the batch service layer.
var (
	ErrNotFound         = errors.New("batch not found")
	ErrBatchBusy        = errors.New("batch is already sending")
	ErrNotSending       = errors.New("batch is not sending")
	ErrDispatchBusy     = errors.New("another dispatch is in progress")
	ErrTemplateRequired = errors.New("template is required")
	ErrPhoneRequired    = errors.New("phone is required")
	ErrInvalidTemplate  = errors.New("invalid template")
	ErrInvalidCSV       = errors.New("invalid CSV")
	ErrNoRecipients     = errors.New("CSV contains no recipients")
	ErrNoSelection      = errors.New("no recipients selected")
)
