package jobs_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/marcus-qen/analyzerd/internal/analyzer"
	"github.com/marcus-qen/analyzerd/internal/attachment"
	"github.com/marcus-qen/analyzerd/internal/jobs"
	"github.com/marcus-qen/analyzerd/internal/store"
)

// stubRunner returns a fixed (stdout, stderr, exitCode) for every
// invocation, standing in for internal/runner.Runner in these tests.
type stubRunner struct {
	stdout, stderr []byte
	exitCode       int
	err            error
}

func (r *stubRunner) Run(ctx context.Context, def analyzer.AnalyzerDefinition, stdin []byte) ([]byte, []byte, int, error) {
	return r.stdout, r.stderr, r.exitCode, r.err
}

func newHarness(t *testing.T, runner jobs.Runner) (*jobs.Lifecycle, *store.Store, *analyzer.MemRegistry) {
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

	admission := jobs.NewAdmission(s, time.Hour)
	builder := jobs.NewInputBuilder(attStore)
	ingestor := jobs.NewIngestor(s)
	lifecycle := jobs.NewLifecycle(s, reg, admission, builder, runner, ingestor, nil)
	return lifecycle, s, reg
}

func waitTerminal(t *testing.T, s *store.Store, id string) jobs.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		j, err := s.GetJob(id)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if j.Status.Terminal() {
			return *j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state in time", id)
	return jobs.Job{}
}

func TestScenario1_StringSubmissionSuccess(t *testing.T) {
	runner := &stubRunner{
		stdout: []byte(`{"success":true,"full":{"verdict":"clean"},"summary":{"tag":"ok"},"artifacts":[{"type":"domain","value":"x.example"}]}`),
	}
	lifecycle, s, reg := newHarness(t, runner)

	an, err := reg.Resolve("vt-1", "acme")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	fields, err := jobs.ParseSubmission(map[string]any{"dataType": "ip", "data": "1.2.3.4", "tlp": float64(2), "parameters": map[string]any{}}, nil)
	if err != nil {
		t.Fatalf("ParseSubmission: %v", err)
	}

	created, err := lifecycle.Create(context.Background(), an, "acme", fields)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	final := waitTerminal(t, s, created.ID)
	if final.Status != jobs.StatusSuccess {
		t.Fatalf("Status = %s, want Success (error=%s)", final.Status, final.ErrorMessage)
	}

	report, err := s.GetReportByJob(created.ID)
	if err != nil {
		t.Fatalf("GetReportByJob: %v", err)
	}
	artifacts, err := s.FindArtifactsByReport(report.ID)
	if err != nil {
		t.Fatalf("FindArtifactsByReport: %v", err)
	}
	if len(artifacts) != 1 || artifacts[0].DataType != "domain" {
		t.Fatalf("artifacts = %+v, want one domain artifact", artifacts)
	}
}

func TestScenario2_CacheHit(t *testing.T) {
	runner := &stubRunner{stdout: []byte(`{"success":true,"full":{},"summary":{}}`)}
	lifecycle, s, reg := newHarness(t, runner)
	an, _ := reg.Resolve("vt-1", "acme")

	fields, _ := jobs.ParseSubmission(map[string]any{"dataType": "ip", "data": "1.2.3.4", "parameters": map[string]any{}}, nil)

	first, err := lifecycle.Create(context.Background(), an, "acme", fields)
	if err != nil {
		t.Fatalf("Create (first): %v", err)
	}
	waitTerminal(t, s, first.ID)

	second, err := lifecycle.Create(context.Background(), an, "acme", fields)
	if err != nil {
		t.Fatalf("Create (second): %v", err)
	}
	if second.ID != first.ID || !second.FromCache {
		t.Fatalf("second = %+v, want cache hit on job %s", second, first.ID)
	}
}

func TestScenario3_ForceBypassesCache(t *testing.T) {
	runner := &stubRunner{stdout: []byte(`{"success":true,"full":{},"summary":{}}`)}
	lifecycle, s, reg := newHarness(t, runner)
	an, _ := reg.Resolve("vt-1", "acme")

	fields, _ := jobs.ParseSubmission(map[string]any{"dataType": "ip", "data": "1.2.3.4", "parameters": map[string]any{}}, nil)
	first, err := lifecycle.Create(context.Background(), an, "acme", fields)
	if err != nil {
		t.Fatalf("Create (first): %v", err)
	}
	waitTerminal(t, s, first.ID)

	forced, _ := jobs.ParseSubmission(map[string]any{"dataType": "ip", "data": "1.2.3.4", "parameters": map[string]any{}, "force": true}, nil)
	second, err := lifecycle.Create(context.Background(), an, "acme", forced)
	if err != nil {
		t.Fatalf("Create (forced): %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("expected a fresh job id when force=true")
	}
}

func TestScenario4_RateLimit(t *testing.T) {
	runner := &stubRunner{stdout: []byte(`{"success":true,"full":{},"summary":{}}`)}
	lifecycle, s, reg := newHarness(t, runner)

	an := analyzer.Analyzer{ID: "vt-1", Name: "VirusTotal", Organization: "acme", AnalyzerDefinitionID: "virustotal", Rate: 2, RateUnit: analyzer.RateUnitDay}
	_ = reg // analyzer passed directly below to control rate-limit fields

	for i, datum := range []string{"1.2.3.4", "5.6.7.8"} {
		fields, _ := jobs.ParseSubmission(map[string]any{"dataType": "ip", "data": datum, "parameters": map[string]any{}, "force": true}, nil)
		created, err := lifecycle.Create(context.Background(), an, "acme", fields)
		if err != nil {
			t.Fatalf("Create #%d: %v", i, err)
		}
		waitTerminal(t, s, created.ID)
	}

	fields, _ := jobs.ParseSubmission(map[string]any{"dataType": "ip", "data": "9.9.9.9", "parameters": map[string]any{}, "force": true}, nil)
	if _, err := lifecycle.Create(context.Background(), an, "acme", fields); !jobs.IsRateLimitExceeded(err) {
		t.Fatalf("third Create = %v, want RateLimitExceededError", err)
	}
}

func TestScenario5_AnalyzerFailureOutput(t *testing.T) {
	runner := &stubRunner{stdout: []byte(`{"success":false,"errorMessage":"boom","input":"…"}`)}
	lifecycle, s, reg := newHarness(t, runner)
	an, _ := reg.Resolve("vt-1", "acme")

	fields, _ := jobs.ParseSubmission(map[string]any{"dataType": "ip", "data": "1.2.3.4", "parameters": map[string]any{}}, nil)
	created, err := lifecycle.Create(context.Background(), an, "acme", fields)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	final := waitTerminal(t, s, created.ID)
	if final.Status != jobs.StatusFailure || final.ErrorMessage != "boom" || final.Input != "…" {
		t.Fatalf("final = %+v, want Failure/boom/…", final)
	}
	if _, err := s.GetReportByJob(created.ID); err == nil {
		t.Errorf("expected no report on analyzer failure")
	}
}

func TestScenario7_Recovery(t *testing.T) {
	runner := &stubRunner{stdout: []byte(`{"success":true,"full":{},"summary":{}}`)}
	lifecycle, s, reg := newHarness(t, runner)
	an, _ := reg.Resolve("vt-1", "acme")

	// Persist a Waiting job directly, bypassing Create, to simulate a
	// crash between job creation and execution.
	data := "1.2.3.4"
	created, err := s.CreateJob(jobs.Job{
		AnalyzerDefinitionID: an.AnalyzerDefinitionID, AnalyzerID: an.ID, AnalyzerName: an.Name,
		Organization: "acme", DataType: "ip", TLP: 2, Parameters: map[string]any{},
		Observable: jobs.DataRef{Data: &data}, Status: jobs.StatusWaiting,
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	recovery := jobs.NewRecovery(s, reg, lifecycle, nil)
	if err := recovery.Run(context.Background()); err != nil {
		t.Fatalf("Recovery.Run: %v", err)
	}

	final := waitTerminal(t, s, created.ID)
	if final.Status != jobs.StatusSuccess {
		t.Fatalf("Status = %s, want Success", final.Status)
	}

	// Running recovery again with no new submissions should be a no-op —
	// the job is no longer Waiting, so a second pass touches nothing.
	if err := recovery.Run(context.Background()); err != nil {
		t.Fatalf("Recovery.Run (second): %v", err)
	}
	reread, err := s.GetJob(created.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if reread.Status != jobs.StatusSuccess {
		t.Fatalf("Status after second recovery pass = %s, want unchanged Success", reread.Status)
	}
}
