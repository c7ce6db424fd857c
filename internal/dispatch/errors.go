package dispatch

import "errors"

// Configuration errors abort a batch before any recipient is processed.
var (
	ErrNoSender       = errors.New("no sender configured for a live batch")
	ErrNoObserver     = errors.New("no message history store configured for a live batch")
	ErrNoAuditWriter  = errors.New("no audit log writer configured")
	ErrAuditLogFailed = errors.New("audit log write failed")
)

// Per-row error texts.
const (
	errEmptyMessage = "Empty message"
	errCancelled    = "batch cancelled"
	reasonDryRun    = "no send"
)
