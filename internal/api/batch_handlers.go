package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/textdispatch/internal/domain"
	"github.com/ignite/textdispatch/internal/pkg/httputil"
	"github.com/ignite/textdispatch/internal/service/batch"
	"github.com/ignite/textdispatch/internal/storage"
)

// HandleUpload stores an uploaded CSV as a new batch and returns its preview.
//
//	POST /api/batches  (multipart: csv_file, template_a, template_b)
func (h *Handlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.Error(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		httputil.BadRequest(w, "invalid multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, _, err := r.FormFile("csv_file")
	if err != nil {
		httputil.BadRequest(w, "csv_file is required")
		return
	}
	defer file.Close()

	t := domain.Templates{
		A: r.FormValue("template_a"),
		B: strings.TrimSpace(r.FormValue("template_b")),
	}
	preview, err := h.batches.Upload(r.Context(), file, t)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, preview)
}

// HandlePreview re-renders a stored batch.
//
//	GET /api/batches/{id}/preview
func (h *Handlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	preview, err := h.batches.Preview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, preview)
}

// HandleUpdateTemplates replaces a batch's templates and returns the new
// preview.
//
//	PUT /api/batches/{id}/templates  {"template_a": "...", "template_b": "..."}
func (h *Handlers) HandleUpdateTemplates(w http.ResponseWriter, r *http.Request) {
	var t domain.Templates
	if !httputil.Decode(w, r, &t, false) {
		return
	}
	t.B = strings.TrimSpace(t.B)
	preview, err := h.batches.UpdateTemplates(r.Context(), chi.URLParam(r, "id"), t)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, preview)
}

// HandleSend starts a background send of the selected rows.
//
//	POST /api/batches/{id}/send  {"selected": [0, 2], "all": false, "dry_run": true, "delay_min": 1.0, "delay_max": 2.5}
func (h *Handlers) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req batch.SendRequest
	if !httputil.Decode(w, r, &req, true) {
		return
	}
	started, err := h.batches.Send(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Accepted(w, started)
}

// HandleCancel stops a running send.
//
//	POST /api/batches/{id}/cancel
func (h *Handlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.batches.Cancel(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Accepted(w, map[string]string{"batch_id": id, "status": "cancelling"})
}

// HandleResults returns a batch's state and, once finished, its results.
//
//	GET /api/batches/{id}/results
func (h *Handlers) HandleResults(w http.ResponseWriter, r *http.Request) {
	res, err := h.batches.Results(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// HandleListLogs lists stored audit logs, newest first.
//
//	GET /api/logs
func (h *Handlers) HandleListLogs(w http.ResponseWriter, r *http.Request) {
	names, err := h.logs.List(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	httputil.OK(w, map[string]interface{}{"logs": names})
}

// HandleDownloadLog streams an audit log as CSV.
//
//	GET /api/logs/{name}
func (h *Handlers) HandleDownloadLog(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := storage.ValidateName(name); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	rc, err := h.logs.Open(r.Context(), name)
	if errors.Is(err, storage.ErrNotFound) {
		httputil.NotFound(w, "log not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	io.Copy(w, rc)
}
