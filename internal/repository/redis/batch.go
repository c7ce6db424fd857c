// Package redis provides Redis-backed repository implementations.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ignite/textdispatch/internal/domain"
	"github.com/ignite/textdispatch/internal/service/batch"
)

// BatchRepo implements batch.Repository as JSON values under
// "<prefix>batch:<id>", expiring after ttl. Saving refreshes the expiry.
type BatchRepo struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

// NewBatchRepo creates a Redis-backed batch repository. A zero ttl stores
// batches without expiry.
func NewBatchRepo(client *goredis.Client, prefix string, ttl time.Duration) *BatchRepo {
	return &BatchRepo{client: client, prefix: prefix, ttl: ttl}
}

func (r *BatchRepo) key(id string) string {
	return r.prefix + "batch:" + id
}

func (r *BatchRepo) Get(ctx context.Context, id string) (*domain.Batch, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, batch.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get batch %s: %w", id, err)
	}
	var b domain.Batch
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode batch %s: %w", id, err)
	}
	return &b, nil
}

func (r *BatchRepo) Save(ctx context.Context, b *domain.Batch) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode batch %s: %w", b.ID, err)
	}
	if err := r.client.Set(ctx, r.key(b.ID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("save batch %s: %w", b.ID, err)
	}
	return nil
}

func (r *BatchRepo) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("delete batch %s: %w", id, err)
	}
	return nil
}

// Ping checks connectivity for health reporting.
func (r *BatchRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
