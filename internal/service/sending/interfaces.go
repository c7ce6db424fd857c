// Package sending defines the capability boundary of the dispatch engine:
// the one-shot message Sender, the read-only message HistoryStore that
// delivery observation polls, and the ResultPublisher that fans recorded
// results out to other systems.
//
// The engine only ever talks to these interfaces, so tests drive it with
// fakes that simulate delayed, failed and ambiguous delivery rows.
package sending

import (
	"context"
	"time"

	"github.com/ignite/textdispatch/internal/domain"
)

// Sender transmits a single text message. It returns the dispatch timestamp
// used as the time origin for delivery observation. A returned error means
// the transmission mechanism itself failed.
type Sender interface {
	Send(ctx context.Context, address, text string) (time.Time, error)
}

// TimeWindow bounds a history query in wall-clock time.
type TimeWindow struct {
	From time.Time
	To   time.Time
}

// HistoryStore reads outbound messages from the external message history.
// Query returns self-authored rows within the window, newest first, capped
// at 50. The suffix hint is advisory; callers re-check every address.
type HistoryStore interface {
	Query(ctx context.Context, addressSuffixHint string, window TimeWindow) ([]domain.HistoryRow, error)
}

// HistoryStoreFunc adapts a function to the HistoryStore interface.
type HistoryStoreFunc func(ctx context.Context, addressSuffixHint string, window TimeWindow) ([]domain.HistoryRow, error)

func (f HistoryStoreFunc) Query(ctx context.Context, hint string, window TimeWindow) ([]domain.HistoryRow, error) {
	return f(ctx, hint, window)
}

// ResultPublisher announces each recorded send result. Publishing is
// best-effort; the orchestrator logs and ignores failures.
type ResultPublisher interface {
	PublishResult(ctx context.Context, batchID string, result domain.SendResult) error
}

// ResultArchive mirrors a finished batch's results into durable storage.
type ResultArchive interface {
	SaveResults(ctx context.Context, batchID string, results []domain.SendResult) error
}
