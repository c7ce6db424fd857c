// Package distlock serializes work that must not overlap across processes,
// such as dispatch batches that share one message history store.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned when extending or releasing a lock this instance
// does not own.
var ErrNotHeld = errors.New("lock not held")

// DistLock is the interface for distributed locking.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Extender is implemented by locks that expire and must be kept alive.
type Extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

var processLocks = NewLocalLocker()

// NewLock creates a lock using the best available backend: Redis when a
// client is given, a Postgres advisory lock when a database is given, and an
// in-process lock otherwise.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	switch {
	case redisClient != nil:
		return NewRedisLock(redisClient, key, ttl)
	case db != nil:
		return NewPGAdvisoryLock(db, key)
	default:
		return processLocks.Lock(key)
	}
}

// Factory returns a constructor for fresh instances of the same lock.
func Factory(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) func() DistLock {
	return func() DistLock { return NewLock(redisClient, db, key, ttl) }
}

// =============================================================================
// PostgreSQL Advisory Lock
// =============================================================================
// pg_try_advisory_lock is session-scoped, so the lock pins one pooled
// connection from Acquire until Release.

// PGAdvisoryLock implements DistLock using PostgreSQL advisory locks.
type PGAdvisoryLock struct {
	db     *sql.DB
	conn   *sql.Conn
	lockID int64
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from the given key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries to acquire the advisory lock without blocking.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, nil
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock connection: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks on the pinned connection and returns it to the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return ErrNotHeld
	}
	conn := l.conn
	l.conn = nil
	defer conn.Close()
	_, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}

// =============================================================================
// In-process lock
// =============================================================================

// LocalLocker hands out locks that exclude each other within one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]uint64
	seq  uint64
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]uint64)}
}

// Lock returns a new lock instance for key.
func (m *LocalLocker) Lock(key string) *LocalLock {
	return &LocalLock{owner: m, key: key}
}

// LocalLock implements DistLock within a single process.
type LocalLock struct {
	owner *LocalLocker
	key   string
	token uint64
}

func (l *LocalLock) Acquire(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m := l.owner
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.held[l.key]; busy {
		return false, nil
	}
	m.seq++
	l.token = m.seq
	m.held[l.key] = l.token
	return true, nil
}

func (l *LocalLock) Release(context.Context) error {
	m := l.owner
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.token == 0 || m.held[l.key] != l.token {
		return ErrNotHeld
	}
	delete(m.held, l.key)
	l.token = 0
	return nil
}
