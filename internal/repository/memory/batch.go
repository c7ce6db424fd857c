// Package memory provides in-process repository implementations.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ignite/textdispatch/internal/domain"
	"github.com/ignite/textdispatch/internal/service/batch"
)

type entry struct {
	raw       []byte
	expiresAt time.Time
	state     domain.BatchState
	seq       uint64 // save order; eviction drops the lowest first
}

// BatchRepo implements batch.Repository in memory. Batches expire after ttl
// and the oldest idle batches are evicted beyond maxEntries. Batches that are
// sending are never evicted.
type BatchRepo struct {
	mu         sync.Mutex
	entries    map[string]*entry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	seq        uint64
}

// NewBatchRepo creates an in-memory batch repository. A zero ttl or
// maxEntries disables that limit.
func NewBatchRepo(ttl time.Duration, maxEntries int) *BatchRepo {
	return &BatchRepo{
		entries:    make(map[string]*entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns a deep copy of the batch.
func (r *BatchRepo) Get(_ context.Context, id string) (*domain.Batch, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok && r.expired(e, r.now()) {
		delete(r.entries, id)
		ok = false
	}
	r.mu.Unlock()
	if !ok {
		return nil, batch.ErrNotFound
	}

	var b domain.Batch
	if err := json.Unmarshal(e.raw, &b); err != nil {
		return nil, fmt.Errorf("decode batch %s: %w", id, err)
	}
	return &b, nil
}

func (r *BatchRepo) Save(_ context.Context, b *domain.Batch) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode batch %s: %w", b.ID, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.seq++
	e := &entry{raw: raw, state: b.State, seq: r.seq}
	if r.ttl > 0 {
		e.expiresAt = now.Add(r.ttl)
	}
	r.entries[b.ID] = e
	r.evictLocked(now)
	return nil
}

func (r *BatchRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
	return nil
}

// Len returns the number of stored batches, expired ones included until the
// next prune.
func (r *BatchRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Prune drops expired batches and returns how many were removed.
func (r *BatchRepo) Prune(_ context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictLocked(r.now())
}

func (r *BatchRepo) expired(e *entry, now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt) && e.state != domain.BatchSending
}

func (r *BatchRepo) evictLocked(now time.Time) int {
	removed := 0
	for id, e := range r.entries {
		if r.expired(e, now) {
			delete(r.entries, id)
			removed++
		}
	}
	if r.maxEntries <= 0 || len(r.entries) <= r.maxEntries {
		return removed
	}

	type aged struct {
		id  string
		seq uint64
	}
	var idle []aged
	for id, e := range r.entries {
		if e.state != domain.BatchSending {
			idle = append(idle, aged{id, e.seq})
		}
	}
	sort.Slice(idle, func(i, j int) bool { return idle[i].seq < idle[j].seq })
	for _, a := range idle {
		if len(r.entries) <= r.maxEntries {
			break
		}
		delete(r.entries, a.id)
		removed++
	}
	return removed
}
