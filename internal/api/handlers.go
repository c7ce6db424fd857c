package api

import (
	"errors"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/ignite/textdispatch/internal/dispatch"
	"github.com/ignite/textdispatch/internal/pkg/httputil"
	"github.com/ignite/textdispatch/internal/pkg/logger"
	"github.com/ignite/textdispatch/internal/service/batch"
	"github.com/ignite/textdispatch/internal/storage"
)

const defaultMaxUpload = 10 << 20

// Handlers serves the batch, log and one-off endpoints.
type Handlers struct {
	batches   *batch.Service
	logs      storage.ArtifactStore
	oneOff    *rate.Limiter
	maxUpload int64
}

// HandlerOptions tune request limits. Zero values use defaults.
type HandlerOptions struct {
	OneOffPerMinute int
	MaxUploadMB     int
}

// NewHandlers creates the API handlers. The one-off endpoint allows
// OneOffPerMinute sends per minute with a burst of the same size.
func NewHandlers(batches *batch.Service, logs storage.ArtifactStore, opts HandlerOptions) *Handlers {
	h := &Handlers{batches: batches, logs: logs, maxUpload: defaultMaxUpload}
	if opts.MaxUploadMB > 0 {
		h.maxUpload = int64(opts.MaxUploadMB) << 20
	}
	perMinute := opts.OneOffPerMinute
	if perMinute <= 0 {
		perMinute = 10
	}
	h.oneOff = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	return h
}

// respondServiceError maps service errors to HTTP statuses. 5xx responses
// never carry the internal error text.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, batch.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, batch.ErrDispatchBusy):
		httputil.ErrorCode(w, http.StatusConflict, "dispatch_busy", err.Error())
	case errors.Is(err, batch.ErrBatchBusy), errors.Is(err, batch.ErrNotSending):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, batch.ErrInvalidTemplate):
		httputil.ErrorCode(w, http.StatusUnprocessableEntity, "template_error", err.Error())
	case batch.IsClientError(err):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, dispatch.ErrNoSender), errors.Is(err, dispatch.ErrNoObserver), errors.Is(err, dispatch.ErrNoAuditWriter):
		logger.Error("dispatch not configured", "error", err)
		httputil.ErrorCode(w, http.StatusServiceUnavailable, "not_configured", "dispatch is not configured on this server")
	default:
		httputil.InternalError(w, err)
	}
}
