// Package httpapi exposes the job-execution core over HTTP. It is a thin
// routing and marshalling façade grounded on
// internal/controlplane/jobs/handlers.go's writeJSON/writeError/r.PathValue
// conventions — every handler parses the request, delegates to
// internal/jobs, and maps its error taxonomy (spec §7) onto status codes.
package httpapi

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/marcus-qen/analyzerd/internal/analyzer"
	"github.com/marcus-qen/analyzerd/internal/attachment"
	"github.com/marcus-qen/analyzerd/internal/jobs"
	"github.com/marcus-qen/analyzerd/internal/metrics"
)

// Handler exposes HTTP endpoints for job submission and querying.
type Handler struct {
	lifecycle  *jobs.Lifecycle
	query      *jobs.Query
	registry   analyzer.Registry
	attachment attachment.Store
	log        *zap.Logger
}

// New builds the HTTP façade. registry, lifecycle, and query are the
// collaborators wired by cmd/analyzerd.
func New(lifecycle *jobs.Lifecycle, query *jobs.Query, registry analyzer.Registry, attachments attachment.Store, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{lifecycle: lifecycle, query: query, registry: registry, attachment: attachments, log: log}
}

// Routes registers analyzerd's HTTP API on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/analyzer/{analyzerId}/run", h.handleSubmit)
	mux.HandleFunc("GET /api/v1/job/{id}", h.handleGetJob)
	mux.HandleFunc("DELETE /api/v1/job/{id}", h.handleDeleteJob)
	mux.HandleFunc("GET /api/v1/job/{id}/report", h.handleGetReport)
	mux.HandleFunc("GET /api/v1/job/{id}/artifacts", h.handleFindArtifacts)
	mux.HandleFunc("GET /api/v1/jobs", h.handleListJobs)
	mux.HandleFunc("POST /api/v1/jobs/stats", h.handleStats)
	mux.Handle("GET /metrics", metrics.Handler())
}

// organization extracts the requesting organisation. Authentication and
// tenancy resolution are external to this core (spec §2 Non-goals); a
// header stands in for whatever upstream gateway would populate it.
func organization(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Organization"))
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	org := organization(r)
	if org == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing X-Organization")
		return
	}
	analyzerID := strings.TrimSpace(r.PathValue("analyzerId"))
	if analyzerID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing analyzer id")
		return
	}

	raw, att, err := decodeSubmission(r, h.attachment)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	fields, err := jobs.ParseSubmission(raw, att)
	if err != nil {
		writeSubmissionError(w, err)
		return
	}

	an, err := h.resolve(analyzerID, org)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "analyzer not found")
		return
	}

	created, err := h.lifecycle.Create(r.Context(), an, org, fields)
	if err != nil {
		writeSubmissionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	org := organization(r)
	id := strings.TrimSpace(r.PathValue("id"))
	if org == "" || id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing organization or job id")
		return
	}
	job, err := h.query.GetForUser(org, id)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing job id")
		return
	}
	deleted, err := h.lifecycle.Delete(id)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}

func (h *Handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	org := organization(r)
	id := strings.TrimSpace(r.PathValue("id"))
	if org == "" || id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing organization or job id")
		return
	}
	report, err := h.query.GetReport(org, id)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleFindArtifacts(w http.ResponseWriter, r *http.Request) {
	org := organization(r)
	id := strings.TrimSpace(r.PathValue("id"))
	if org == "" || id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing organization or job id")
		return
	}
	artifacts, err := h.query.FindArtifacts(org, id)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, artifacts)
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	org := organization(r)
	if org == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing X-Organization")
		return
	}
	q := r.URL.Query()
	rng := jobs.ParseRange(q.Get("range"))
	list, err := h.query.ListForUser(org, q.Get("dataType"), q.Get("data"), q.Get("analyzer"), rng)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": list, "count": len(list)})
}

// statsRequest is the wire shape of the stats(query, aggregations) facade
// operation's POST body (spec §4.7).
type statsRequest struct {
	Query        jobs.StatsQuery    `json:"query"`
	Aggregations []jobs.Aggregation `json:"aggregations"`
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	org := organization(r)
	if org == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing X-Organization")
		return
	}

	var req statsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := h.query.Stats(org, req.Query, req.Aggregations)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decodeSubmission parses the request body, handling both JSON submissions
// and multipart uploads that carry an attachment part (spec §6).
func decodeSubmission(r *http.Request, store attachment.Store) (map[string]any, *attachment.Attachment, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = "application/json"
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			return nil, nil, err
		}
		return raw, nil, nil
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, nil, err
	}
	raw := map[string]any{}
	for k, v := range r.MultipartForm.Value {
		if len(v) > 0 {
			raw[k] = v[0]
		}
	}

	file, header, err := r.FormFile("attachment")
	if err != nil {
		return raw, nil, nil
	}
	defer file.Close()
	saved, err := store.Save(file, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		return nil, nil, err
	}
	return raw, &saved, nil
}

func (h *Handler) resolve(analyzerID, org string) (analyzer.Analyzer, error) {
	return h.registry.Resolve(analyzerID, org)
}

func writeSubmissionError(w http.ResponseWriter, err error) {
	switch {
	case jobs.IsAttributeChecking(err):
		writeError(w, http.StatusBadRequest, "attribute_checking", err.Error())
	case jobs.IsRateLimitExceeded(err):
		writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", err.Error())
	case jobs.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeQueryError(w http.ResponseWriter, err error) {
	if jobs.IsNotFound(err) {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
