package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/marcus-qen/analyzerd/internal/analyzer"
	"github.com/marcus-qen/analyzerd/internal/attachment"
	"github.com/marcus-qen/analyzerd/internal/jobs"
	"github.com/marcus-qen/analyzerd/internal/store"
)

type stubRunner struct{ stdout []byte }

func (r stubRunner) Run(ctx context.Context, def analyzer.AnalyzerDefinition, stdin []byte) ([]byte, []byte, int, error) {
	return r.stdout, nil, 0, nil
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "analyzerd.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	reg := analyzer.NewMemRegistry(
		[]analyzer.Analyzer{{ID: "vt-1", Name: "VirusTotal", Organization: "acme", AnalyzerDefinitionID: "virustotal"}},
		[]analyzer.AnalyzerDefinition{{ID: "virustotal", Command: "virustotal.py", BaseDirectory: "/analyzers/virustotal"}},
	)
	attStore, err := attachment.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	admission := jobs.NewAdmission(s, 0)
	builder := jobs.NewInputBuilder(attStore)
	ingestor := jobs.NewIngestor(s)
	lifecycle := jobs.NewLifecycle(s, reg, admission, builder, stubRunner{stdout: []byte(`{"success":true,"full":{},"summary":{}}`)}, ingestor, nil)
	query := jobs.NewQuery(s)

	return New(lifecycle, query, reg, attStore, nil)
}

func TestHandleSubmit_MissingOrganization(t *testing.T) {
	h := newTestHandler(t)
	mux := http.NewServeMux()
	h.Routes(mux)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyzer/vt-1/run", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandleSubmit_Success(t *testing.T) {
	h := newTestHandler(t)
	mux := http.NewServeMux()
	h.Routes(mux)

	body := `{"dataType":"ip","data":"1.2.3.4","parameters":{}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyzer/vt-1/run", bytes.NewBufferString(body))
	req.Header.Set("X-Organization", "acme")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var job jobs.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected non-empty job id")
	}
}

func TestHandleGetJob_WrongOrganizationIsNotFound(t *testing.T) {
	h := newTestHandler(t)
	mux := http.NewServeMux()
	h.Routes(mux)

	body := `{"dataType":"ip","data":"1.2.3.4","parameters":{}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyzer/vt-1/run", bytes.NewBufferString(body))
	req.Header.Set("X-Organization", "acme")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var job jobs.Job
	_ = json.Unmarshal(rec.Body.Bytes(), &job)

	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/job/"+job.ID, nil)
	req2.Header.Set("X-Organization", "other-org")
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req2)

	if rec2.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec2.Code)
	}
}

func TestHandleStats_MissingOrganization(t *testing.T) {
	h := newTestHandler(t)
	mux := http.NewServeMux()
	h.Routes(mux)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/stats", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandleStats_CountsSubmittedJobs(t *testing.T) {
	h := newTestHandler(t)
	mux := http.NewServeMux()
	h.Routes(mux)

	submit := httptest.NewRequest(http.MethodPost, "/api/v1/analyzer/vt-1/run", bytes.NewBufferString(`{"dataType":"ip","data":"1.2.3.4","parameters":{}}`))
	submit.Header.Set("X-Organization", "acme")
	submitRec := httptest.NewRecorder()
	mux.ServeHTTP(submitRec, submit)
	if submitRec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d, body = %s", submitRec.Code, submitRec.Body.String())
	}

	statsBody := `{"query":{},"aggregations":[{"name":"total","type":"count"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/stats", bytes.NewBufferString(statsBody))
	req.Header.Set("X-Organization", "acme")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := result["total"]; got != float64(1) {
		t.Fatalf("total = %v, want 1", got)
	}
}

func TestHandleSubmit_MissingDataTypeIsBadRequest(t *testing.T) {
	h := newTestHandler(t)
	mux := http.NewServeMux()
	h.Routes(mux)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyzer/vt-1/run", bytes.NewBufferString(`{"data":"1.2.3.4"}`))
	req.Header.Set("X-Organization", "acme")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
