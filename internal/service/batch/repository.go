package batch

import (
	"context"

	"github.com/ignite/textdispatch/internal/domain"
)

// Repository stores batches between requests. Implementations must be safe
// for concurrent use and may expire batches after a configured TTL.
type Repository interface {
	// Get returns a copy of the batch. Returns ErrNotFound if it doesn't exist
	// or has expired.
	Get(ctx context.Context, id string) (*domain.Batch, error)

	// Save inserts or replaces the batch and refreshes its expiry.
	Save(ctx context.Context, b *domain.Batch) error

	// Delete removes a batch. Deleting a missing batch is not an error.
	Delete(ctx context.Context, id string) error
}

// ResultReader reads archived results of batches that are no longer in the
// repository.
type ResultReader interface {
	ListByBatch(ctx context.Context, batchID string) ([]domain.SendResult, error)
}
