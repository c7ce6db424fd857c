// Package delivery infers whether a dispatched message was delivered by
// polling the message history store for the row the Sender's client wrote.
//
// There is no receipt handle: a row is attributed to a dispatch by matching
// the recipient's last 10 digits, the message text, and a time window
// anchored on the dispatch timestamp. Recipients must therefore be observed
// one at a time.
package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/textdispatch/internal/datanorm"
	"github.com/ignite/textdispatch/internal/domain"
	"github.com/ignite/textdispatch/internal/pkg/logger"
	"github.com/ignite/textdispatch/internal/service/sending"
)

const (
	DefaultMaxWait  = 60 * time.Second
	DefaultInterval = 2 * time.Second

	// Window slack around the dispatch: rows stamped slightly before the
	// returned timestamp, and rows that land after the poll deadline.
	windowLead  = 5 * time.Second
	windowTrail = 10 * time.Second
)

// Config tunes the poll loop.
type Config struct {
	MaxWait  time.Duration
	Interval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxWait <= 0 {
		c.MaxWait = DefaultMaxWait
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	return c
}

// Observer polls a HistoryStore until a dispatch resolves or times out.
type Observer struct {
	store sending.HistoryStore
	cfg   Config
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures an Observer.
type Option func(*Observer)

// WithClock replaces the wall clock and sleeper. Used by tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Observer) {
		if now != nil {
			o.now = now
		}
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

func NewObserver(store sending.HistoryStore, cfg Config, opts ...Option) *Observer {
	o := &Observer{
		store: store,
		cfg:   cfg.withDefaults(),
		now:   time.Now,
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Config returns the effective poll settings.
func (o *Observer) Config() Config { return o.cfg }

// Lookup runs one poll cycle. It returns (nil, nil) when no row matches yet
// and an error only when the store could not be read.
func (o *Observer) Lookup(ctx context.Context, phone, text string, since time.Time, maxWait time.Duration) (*domain.DeliveryObservation, error) {
	window := sending.TimeWindow{
		From: since.Add(-windowLead),
		To:   since.Add(maxWait + windowTrail),
	}
	rows, err := o.store.Query(ctx, phoneHint(phone), window)
	if err != nil {
		return nil, err
	}
	row, fuzzy := MatchRow(rows, phone, text)
	if row == nil {
		return nil, nil
	}
	obs := Classify(*row, fuzzy)
	return &obs, nil
}

// Observe polls until a decisive status (DELIVERED or FAILED) is seen or
// maxWait elapses (maxWait <= 0 uses the configured default). A row that
// was found but never resolved comes back as SENT; a dispatch never seen
// comes back as UNKNOWN. Store read errors never abort the loop. A
// cancelled ctx ends polling early with the best outcome seen so far.
func (o *Observer) Observe(ctx context.Context, phone, text string, since time.Time, maxWait time.Duration) domain.DeliveryObservation {
	if maxWait <= 0 {
		maxWait = o.cfg.MaxWait
	}
	deadline := o.now().Add(maxWait)

	var (
		lastSeen *domain.DeliveryObservation
		lastErr  error
		cycles   int
	)
	for {
		cycles++
		obs, err := o.Lookup(ctx, phone, text, since, maxWait)
		switch {
		case err != nil:
			lastErr = err
			logger.Debug("chat.db lookup failed", "phone", phone, "cycle", cycles, "error", err)
		case obs != nil:
			lastSeen = obs
			lastErr = nil
			if obs.Status.IsDecisive() {
				return *obs
			}
		}

		remaining := deadline.Sub(o.now())
		if remaining <= 0 {
			break
		}
		wait := o.cfg.Interval
		if wait > remaining {
			wait = remaining
		}
		if err := o.sleep(ctx, wait); err != nil {
			break
		}
	}

	switch {
	case lastSeen != nil:
		return *lastSeen
	case lastErr != nil:
		return domain.DeliveryObservation{
			Status: domain.StatusUnknown,
			Reason: fmt.Sprintf("chat.db access error: %v", lastErr),
		}
	default:
		return domain.DeliveryObservation{Status: domain.StatusUnknown, Reason: reasonNotFound}
	}
}

func phoneHint(phone string) string {
	return datanorm.Last10Digits(phone)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
