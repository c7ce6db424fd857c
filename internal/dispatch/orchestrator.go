// Package dispatch drives a batch of rendered messages through the
// send → throttle → observe → record pipeline and writes the batch's audit
// log.
//
// Recipients are processed strictly one at a time, in the order given.
// Delivery observation correlates rows in a shared history store by
// address, text and time window, so a second in-flight send could be
// mistaken for the first.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/textdispatch/internal/domain"
	"github.com/ignite/textdispatch/internal/pkg/logger"
	"github.com/ignite/textdispatch/internal/service/sending"
)

// Observer resolves the delivery outcome of one dispatch.
type Observer interface {
	Observe(ctx context.Context, phone, text string, since time.Time, maxWait time.Duration) domain.DeliveryObservation
}

// AuditWriter persists a finished batch's results and returns the log name.
type AuditWriter interface {
	WriteLog(ctx context.Context, batchID string, startedAt time.Time, results []domain.SendResult) (string, error)
}

// Options are the per-batch send settings.
type Options struct {
	DryRun   bool
	DelayMin time.Duration
	DelayMax time.Duration
	MaxWait  time.Duration // 0 uses the observer's default
}

// Deps are the orchestrator's collaborators. Publisher and Archive are
// optional.
type Deps struct {
	Sender    sending.Sender
	Observer  Observer
	Audit     AuditWriter
	Publisher sending.ResultPublisher
	Archive   sending.ResultArchive
}

// Orchestrator runs batches. It holds no per-batch state and may be shared.
type Orchestrator struct {
	deps  Deps
	now   func() time.Time
	rnd   func() float64
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithThrottleSleep replaces the throttle's sleeper and random source.
func WithThrottleSleep(sleep func(ctx context.Context, d time.Duration) error, rnd func() float64) Option {
	return func(o *Orchestrator) {
		if sleep != nil {
			o.sleep = sleep
		}
		if rnd != nil {
			o.rnd = rnd
		}
	}
}

func NewOrchestrator(deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{deps: deps, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Validate reports the configuration error a batch run would fail with.
func (o *Orchestrator) Validate(dryRun bool) error {
	if err := o.checkConfig(dryRun); err != nil {
		return err
	}
	if o.deps.Audit == nil {
		return ErrNoAuditWriter
	}
	return nil
}

func (o *Orchestrator) checkConfig(dryRun bool) error {
	if dryRun {
		return nil
	}
	if o.deps.Sender == nil {
		return ErrNoSender
	}
	if o.deps.Observer == nil {
		return ErrNoObserver
	}
	return nil
}

func (o *Orchestrator) throttle(opts Options) *Throttle {
	t := NewThrottle(opts.DelayMin, opts.DelayMax)
	if o.rnd != nil {
		t.rnd = o.rnd
	}
	if o.sleep != nil {
		t.sleep = o.sleep
	}
	return t
}

// Run processes messages in order and writes the audit log once at the end.
// Per-recipient failures are recorded and never stop the batch; only a
// configuration error (returned before anything is sent) does. When ctx is
// cancelled the recipients not yet reached are recorded as CANCELLED. An
// audit write failure is returned alongside the complete report.
func (o *Orchestrator) Run(ctx context.Context, batchID string, messages []domain.RenderedMessage, opts Options) (*domain.BatchReport, error) {
	if err := o.Validate(opts.DryRun); err != nil {
		return nil, err
	}

	throttle := o.throttle(opts)
	report := &domain.BatchReport{
		BatchID:   batchID,
		DryRun:    opts.DryRun,
		StartedAt: o.now(),
		Results:   make([]domain.SendResult, 0, len(messages)),
	}
	logger.Info("dispatch batch started", "batch_id", batchID, "recipients", len(messages), "dry_run", opts.DryRun)

	for i, msg := range messages {
		if ctx.Err() != nil {
			for _, rest := range messages[i:] {
				o.record(ctx, report, cancelledResult(rest))
			}
			report.Cancelled = true
			logger.Warn("dispatch batch cancelled", "batch_id", batchID, "processed", i, "remaining", len(messages)-i)
			break
		}
		o.record(ctx, report, o.dispatch(ctx, msg, throttle, opts))
	}
	report.FinishedAt = o.now()

	// The log is written even when the batch was cancelled.
	persistCtx := context.WithoutCancel(ctx)
	name, err := o.deps.Audit.WriteLog(persistCtx, batchID, report.StartedAt, report.Results)
	report.LogName = name

	if o.deps.Archive != nil {
		if aerr := o.deps.Archive.SaveResults(persistCtx, batchID, report.Results); aerr != nil {
			logger.Warn("archiving send results failed", "batch_id", batchID, "error", aerr)
		}
	}

	logger.Info("dispatch batch finished", "batch_id", batchID,
		"succeeded", report.Succeeded, "failed", report.Failed,
		"log", name, "elapsed", report.FinishedAt.Sub(report.StartedAt))

	if err != nil {
		logger.Error("writing send log failed", "batch_id", batchID, "error", err)
		return report, fmt.Errorf("%w: %w", ErrAuditLogFailed, err)
	}
	return report, nil
}

// Dispatch sends a single rendered message without writing an audit log.
// Used by the synchronous one-off endpoint.
func (o *Orchestrator) Dispatch(ctx context.Context, msg domain.RenderedMessage, opts Options) (domain.SendResult, error) {
	if err := o.checkConfig(opts.DryRun); err != nil {
		return domain.SendResult{}, err
	}
	return o.dispatch(ctx, msg, o.throttle(opts), opts), nil
}

func (o *Orchestrator) dispatch(ctx context.Context, msg domain.RenderedMessage, throttle *Throttle, opts Options) domain.SendResult {
	phone, text := msg.Phone(), msg.Text
	res := domain.SendResult{
		Index:   msg.Index,
		Phone:   phone,
		Variant: msg.Variant,
		Message: text,
		Fields:  msg.Recipient.Fields,
		Status:  domain.StatusSkipped,
	}

	switch {
	case msg.Error != "":
		res.Error = msg.Error
		return res
	case phone == "":
		res.Error = domain.MissingPhoneError
		return res
	case text == "":
		res.Error = errEmptyMessage
		return res
	}

	attempt := o.attempt(ctx, phone, text, opts.DryRun)
	if attempt.Error != "" {
		logger.Warn("send failed", "phone", phone, "index", msg.Index, "error", attempt.Error)
		res.Status = domain.StatusFailed
		res.Error = attempt.Error
		return res
	}
	sentAt := attempt.SentAt
	res.SentAt = &sentAt

	if _, err := throttle.Wait(ctx); err != nil {
		logger.Debug("throttle interrupted", "phone", phone, "error", err)
	}

	var obs domain.DeliveryObservation
	if opts.DryRun {
		obs = domain.DeliveryObservation{Status: domain.StatusDryRun, Reason: reasonDryRun}
	} else {
		obs = o.deps.Observer.Observe(ctx, attempt.Phone, attempt.Text, attempt.SentAt, opts.MaxWait)
	}

	res.Status = obs.Status
	res.Service = obs.Service
	res.LikelyLandline = obs.LikelyLandline
	res.OK = obs.Status.IsOK()
	if !res.OK {
		res.Error = obs.Reason
		if res.Error == "" {
			res.Error = "failed"
		}
	}
	logger.Debug("recipient observed", "phone", phone, "status", string(res.Status), "service", res.Service)
	return res
}

// attempt issues the send. A dry run records the attempt without calling the
// sender.
func (o *Orchestrator) attempt(ctx context.Context, phone, text string, dryRun bool) domain.DispatchAttempt {
	a := domain.DispatchAttempt{Phone: phone, Text: text}
	if dryRun {
		a.SentAt = o.now()
		return a
	}
	sentAt, err := o.deps.Sender.Send(ctx, phone, text)
	if err != nil {
		a.Error = err.Error()
		return a
	}
	a.SentAt = sentAt
	return a
}

func (o *Orchestrator) record(ctx context.Context, report *domain.BatchReport, res domain.SendResult) {
	report.Results = append(report.Results, res)
	if res.OK {
		report.Succeeded++
	} else {
		report.Failed++
	}

	if o.deps.Publisher == nil {
		return
	}
	if err := o.deps.Publisher.PublishResult(context.WithoutCancel(ctx), report.BatchID, res); err != nil {
		logger.Warn("publishing send result failed", "batch_id", report.BatchID, "error", err)
	}
}

func cancelledResult(msg domain.RenderedMessage) domain.SendResult {
	return domain.SendResult{
		Index:   msg.Index,
		Phone:   msg.Phone(),
		Variant: msg.Variant,
		Message: msg.Text,
		Fields:  msg.Recipient.Fields,
		Status:  domain.StatusCancelled,
		Error:   errCancelled,
	}
}
