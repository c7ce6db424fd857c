package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/textdispatch/internal/datanorm"
	"github.com/ignite/textdispatch/internal/dispatch"
	"github.com/ignite/textdispatch/internal/domain"
	"github.com/ignite/textdispatch/internal/mailing"
	"github.com/ignite/textdispatch/internal/pkg/distlock"
	"github.com/ignite/textdispatch/internal/pkg/logger"
)

// Deps are the service's collaborators. Importer, Composer and Phones
// default to fresh instances; NewLock defaults to an in-process lock.
type Deps struct {
	Repo         Repository
	Orchestrator *dispatch.Orchestrator
	Importer     *datanorm.Importer
	Composer     *mailing.Composer
	Phones       *datanorm.PhoneNormalizer
	NewLock      func() distlock.DistLock
	Archive      ResultReader
}

// Config holds the send defaults applied when a request leaves them unset.
type Config struct {
	Defaults dispatch.Options
	LockTTL  time.Duration
}

// Service implements batch business logic. All public methods are safe for
// concurrent use if the repository is.
type Service struct {
	repo     Repository
	orch     *dispatch.Orchestrator
	importer *datanorm.Importer
	composer *mailing.Composer
	phones   *datanorm.PhoneNormalizer
	newLock  func() distlock.DistLock
	archive  ResultReader
	cfg      Config
	now      func() time.Time

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates a batch service.
func NewService(deps Deps, cfg Config) *Service {
	s := &Service{
		repo:     deps.Repo,
		orch:     deps.Orchestrator,
		importer: deps.Importer,
		composer: deps.Composer,
		phones:   deps.Phones,
		newLock:  deps.NewLock,
		archive:  deps.Archive,
		cfg:      cfg,
		now:      time.Now,
		running:  make(map[string]context.CancelFunc),
	}
	if s.phones == nil {
		s.phones = datanorm.NewPhoneNormalizer(datanorm.DefaultCountryCode)
	}
	if s.importer == nil {
		s.importer = datanorm.NewImporter(s.phones)
	}
	if s.composer == nil {
		s.composer = mailing.NewComposer(nil)
	}
	if s.newLock == nil {
		s.newLock = distlock.Factory(nil, nil, "textdispatch:dispatch", 0)
	}
	return s
}

// Preview is a batch's rendered rows under its current templates.
type Preview struct {
	BatchID   string                   `json:"batch_id"`
	State     domain.BatchState        `json:"state"`
	Templates domain.Templates         `json:"templates"`
	Rows      []domain.RenderedMessage `json:"rows"`
	Summary   mailing.PreviewSummary   `json:"summary"`
}

// SendRequest selects rows and overrides send defaults.
type SendRequest struct {
	Selected []int    `json:"selected"`
	All      bool     `json:"all"`
	DryRun   *bool    `json:"dry_run,omitempty"`
	DelayMin *float64 `json:"delay_min,omitempty"`
	DelayMax *float64 `json:"delay_max,omitempty"`
}

// SendStarted acknowledges a detached send.
type SendStarted struct {
	BatchID  string            `json:"batch_id"`
	State    domain.BatchState `json:"state"`
	Selected int               `json:"selected"`
	DryRun   bool              `json:"dry_run"`
}

// Results is a batch's state and, once finished, its report.
type Results struct {
	BatchID string              `json:"batch_id"`
	State   domain.BatchState   `json:"state"`
	Error   string              `json:"error,omitempty"`
	Report  *domain.BatchReport `json:"report,omitempty"`
}

// OneOffRequest is a single synchronous send.
type OneOffRequest struct {
	Phone    string            `json:"phone"`
	Template string            `json:"template"`
	Context  map[string]string `json:"context"`
	DryRun   bool              `json:"dry_run"`
}

// Upload imports a recipient CSV, stores it as a new batch and returns its
// preview.
func (s *Service) Upload(ctx context.Context, csv io.Reader, t domain.Templates) (*Preview, error) {
	if err := s.validateTemplates(t); err != nil {
		return nil, err
	}

	recipients, err := s.importer.ImportFromReader(csv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	now := s.now()
	b := &domain.Batch{
		ID:         uuid.New().String(),
		Recipients: recipients,
		Templates:  t,
		State:      domain.BatchReady,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Save(ctx, b); err != nil {
		return nil, fmt.Errorf("save batch: %w", err)
	}

	logger.Info("batch uploaded", "batch_id", b.ID, "recipients", len(recipients))
	return s.preview(b), nil
}

// Preview renders every row of a stored batch.
func (s *Service) Preview(ctx context.Context, id string) (*Preview, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.preview(b), nil
}

// UpdateTemplates replaces a batch's templates. Not allowed while sending.
func (s *Service) UpdateTemplates(ctx context.Context, id string, t domain.Templates) (*Preview, error) {
	if err := s.validateTemplates(t); err != nil {
		return nil, err
	}
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.IsSending() {
		return nil, ErrBatchBusy
	}
	b.Templates = t
	b.UpdatedAt = s.now()
	if err := s.repo.Save(ctx, b); err != nil {
		return nil, fmt.Errorf("save batch: %w", err)
	}
	return s.preview(b), nil
}

// Send starts a detached run over the selected rows and returns once it is
// under way. Only one dispatch runs at a time per lock scope.
func (s *Service) Send(ctx context.Context, id string, req SendRequest) (*SendStarted, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.IsSending() {
		return nil, ErrBatchBusy
	}
	indices := selectRows(req, len(b.Recipients))
	if len(indices) == 0 {
		return nil, ErrNoSelection
	}
	opts := s.sendOptions(req)
	if err := s.orch.Validate(opts.DryRun); err != nil {
		return nil, err
	}

	lock := s.newLock()
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire dispatch lock: %w", err)
	}
	if !ok {
		return nil, ErrDispatchBusy
	}

	b.State = domain.BatchSending
	b.Report = nil
	b.Error = ""
	b.UpdatedAt = s.now()
	if err := s.repo.Save(ctx, b); err != nil {
		s.release(lock)
		return nil, fmt.Errorf("save batch: %w", err)
	}

	messages := make([]domain.RenderedMessage, len(indices))
	for i, idx := range indices {
		messages[i] = s.composer.Compose(idx, b.Recipients[idx], b.Templates)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.running[id] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(runCtx, cancel, lock, id, messages, opts)

	logger.Info("batch send started", "batch_id", id, "recipients", len(messages), "dry_run", opts.DryRun)
	return &SendStarted{BatchID: id, State: domain.BatchSending, Selected: len(messages), DryRun: opts.DryRun}, nil
}

func (s *Service) run(ctx context.Context, cancel context.CancelFunc, lock distlock.DistLock, id string, messages []domain.RenderedMessage, opts dispatch.Options) {
	defer s.wg.Done()
	defer cancel()

	stop := s.keepAlive(ctx, lock)
	report, runErr := s.orch.Run(ctx, id, messages, opts)
	stop()
	s.release(lock)

	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()

	saveCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	b, err := s.repo.Get(saveCtx, id)
	if err != nil {
		logger.Error("finished batch could not be reloaded", "batch_id", id, "error", err)
		return
	}

	b.Report = report
	switch {
	case runErr != nil:
		b.State = domain.BatchFailed
		b.Error = runErr.Error()
	case report.Cancelled:
		b.State = domain.BatchCancelled
	default:
		b.State = domain.BatchCompleted
	}
	b.UpdatedAt = s.now()
	if err := s.repo.Save(saveCtx, b); err != nil {
		logger.Error("saving batch results failed", "batch_id", id, "error", err)
	}
}

// keepAlive extends an expiring lock at half its TTL until stopped.
func (s *Service) keepAlive(ctx context.Context, lock distlock.DistLock) func() {
	ext, ok := lock.(distlock.Extender)
	if !ok || s.cfg.LockTTL <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.cfg.LockTTL / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ext.Extend(ctx, s.cfg.LockTTL); err != nil {
					logger.Warn("dispatch lock extend failed", "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (s *Service) release(lock distlock.DistLock) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lock.Release(ctx); err != nil {
		logger.Warn("dispatch lock release failed", "error", err)
	}
}

// Cancel stops a running send. Rows not yet reached are recorded as
// cancelled when the run winds down.
func (s *Service) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	cancel, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		cancel()
		logger.Info("batch cancel requested", "batch_id", id)
		return nil
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	return ErrNotSending
}

// Results returns the batch state and the last run's report. Expired batches
// are served from the result archive when one is configured.
func (s *Service) Results(ctx context.Context, id string) (*Results, error) {
	b, err := s.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) && s.archive != nil {
		return s.archivedResults(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	return &Results{BatchID: b.ID, State: b.State, Error: b.Error, Report: b.Report}, nil
}

func (s *Service) archivedResults(ctx context.Context, id string) (*Results, error) {
	rows, err := s.archive.ListByBatch(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read archived results: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	report := &domain.BatchReport{BatchID: id, Results: rows}
	for _, r := range rows {
		if r.OK {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	return &Results{BatchID: id, State: domain.BatchCompleted, Report: report}, nil
}

// SendOne renders and sends a single message synchronously, without
// throttling or an audit log.
func (s *Service) SendOne(ctx context.Context, req OneOffRequest) (domain.SendResult, error) {
	phone := s.phones.Normalize(req.Phone)
	if phone == "" {
		return domain.SendResult{}, ErrPhoneRequired
	}
	if strings.TrimSpace(req.Template) == "" {
		return domain.SendResult{}, ErrTemplateRequired
	}

	fields := make(map[string]string, len(req.Context)+1)
	for k, v := range req.Context {
		fields[k] = v
	}
	fields[domain.FieldPhone] = phone
	msg := s.composer.Compose(0, domain.Recipient{Phone: phone, Fields: fields}, domain.Templates{A: req.Template})
	if msg.Error != "" {
		return domain.SendResult{}, fmt.Errorf("%w: %s", ErrInvalidTemplate, msg.Error)
	}

	lock := s.newLock()
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("acquire dispatch lock: %w", err)
	}
	if !ok {
		return domain.SendResult{}, ErrDispatchBusy
	}
	defer s.release(lock)

	opts := dispatch.Options{DryRun: req.DryRun, MaxWait: s.cfg.Defaults.MaxWait}
	return s.orch.Dispatch(ctx, msg, opts)
}

// Wait blocks until every detached run has finished.
func (s *Service) Wait() { s.wg.Wait() }

// Shutdown cancels running sends and waits for them to record their results.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, cancel := range s.running {
		cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) validateTemplates(t domain.Templates) error {
	if strings.TrimSpace(t.A) == "" {
		return ErrTemplateRequired
	}
	if err := s.composer.ValidateTemplates(t); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	return nil
}

func (s *Service) preview(b *domain.Batch) *Preview {
	rows, sum := s.composer.Preview(b.Recipients, b.Templates)
	return &Preview{BatchID: b.ID, State: b.State, Templates: b.Templates, Rows: rows, Summary: sum}
}

func (s *Service) sendOptions(req SendRequest) dispatch.Options {
	opts := s.cfg.Defaults
	if req.DryRun != nil {
		opts.DryRun = *req.DryRun
	}
	if req.DelayMin != nil {
		opts.DelayMin = seconds(*req.DelayMin)
	}
	if req.DelayMax != nil {
		opts.DelayMax = seconds(*req.DelayMax)
	}
	if opts.DelayMax < opts.DelayMin {
		opts.DelayMax = opts.DelayMin
	}
	return opts
}

// selectRows returns the requested row indices in request order, dropping
// duplicates and out-of-range values.
func selectRows(req SendRequest, n int) []int {
	if req.All {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	seen := make(map[int]bool, len(req.Selected))
	var out []int
	for _, idx := range req.Selected {
		if idx < 0 || idx >= n || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	return out
}

func seconds(v float64) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}

// IsClientError reports whether err is caused by the request rather than the
// system.
func IsClientError(err error) bool {
	for _, target := range []error{ErrTemplateRequired, ErrPhoneRequired, ErrInvalidTemplate, ErrInvalidCSV, ErrNoRecipients, ErrNoSelection} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
