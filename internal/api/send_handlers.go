package api

import (
	"net/http"

	"github.com/ignite/textdispatch/internal/pkg/httputil"
	"github.com/ignite/textdispatch/internal/service/batch"
)

// HandleSendOne renders and sends a single message and waits for its
// delivery outcome.
//
//	POST /api/send  {"phone": "...", "template": "...", "context": {...}, "dry_run": false}
func (h *Handlers) HandleSendOne(w http.ResponseWriter, r *http.Request) {
	if !h.oneOff.Allow() {
		httputil.TooManyRequests(w, "one-off send rate limit exceeded")
		return
	}
	var req batch.OneOffRequest
	if !httputil.Decode(w, r, &req, false) {
		return
	}
	res, err := h.batches.SendOne(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}
