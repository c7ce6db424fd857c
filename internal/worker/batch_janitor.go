package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ignite/textdispatch/internal/pkg/logger"
)

// =============================================================================
// BATCH JANITOR: Evicts Expired In-Memory Batches
// =============================================================================
// The in-memory batch repository only evicts lazily on access and on save.
// An idle server would otherwise keep every uploaded recipient list until
// restart. The janitor prunes on a cron schedule (default every 5 minutes).

// DefaultJanitorSchedule is used when no schedule is configured.
const DefaultJanitorSchedule = "@every 5m"

// Pruner drops expired entries and reports how many were removed.
type Pruner interface {
	Prune(ctx context.Context) int
}

// BatchJanitor periodically prunes a batch repository.
type BatchJanitor struct {
	pruner   Pruner
	schedule cron.Schedule
	spec     string
}

// NewBatchJanitor parses the schedule (standard five-field cron or a
// descriptor such as "@every 5m").
func NewBatchJanitor(p Pruner, spec string) (*BatchJanitor, error) {
	if spec == "" {
		spec = DefaultJanitorSchedule
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse janitor schedule %q: %w", spec, err)
	}
	return &BatchJanitor{pruner: p, schedule: sched, spec: spec}, nil
}

// Next returns the next run time after t.
func (j *BatchJanitor) Next(t time.Time) time.Time { return j.schedule.Next(t) }

// RunOnce prunes immediately.
func (j *BatchJanitor) RunOnce(ctx context.Context) int {
	n := j.pruner.Prune(ctx)
	if n > 0 {
		logger.Info("batch janitor pruned expired batches", "pruned", n)
	}
	return n
}

// Start runs the janitor until ctx is cancelled.
func (j *BatchJanitor) Start(ctx context.Context) {
	logger.Info("batch janitor starting", "schedule", j.spec)

	c := cron.New()
	c.Schedule(j.schedule, cron.FuncJob(func() { j.RunOnce(ctx) }))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("batch janitor stopped")
}
