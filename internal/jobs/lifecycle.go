package jobs

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/marcus-qen/analyzerd/internal/analyzer"
	"github.com/marcus-qen/analyzerd/internal/metrics"
)

// Runner is the narrow interface the Job Lifecycle Manager depends on for
// spawning an analyzer subprocess (spec §4.4). internal/runner.Runner
// satisfies it.
type Runner interface {
	Run(ctx context.Context, def analyzer.AnalyzerDefinition, stdin []byte) (stdout, stderr []byte, exitCode int, err error)
}

// Lifecycle owns job state transitions (Waiting → InProgress →
// Success/Failure/Deleted), persists them atomically, and schedules
// execution (spec §4.1).
type Lifecycle struct {
	store    Storer
	registry analyzer.Registry
	admit    *Admission
	build    *InputBuilder
	run      Runner
	ingest   *Ingestor
	log      *zap.Logger
}

// NewLifecycle builds a Job Lifecycle Manager.
func NewLifecycle(store Storer, registry analyzer.Registry, admit *Admission, build *InputBuilder, run Runner, ingest *Ingestor, log *zap.Logger) *Lifecycle {
	if log == nil {
		log = zap.NewNop()
	}
	return &Lifecycle{store: store, registry: registry, admit: admit, build: build, run: run, ingest: ingest, log: log}
}

// Submit resolves the analyzer for the submitting organisation, then
// delegates to Create (spec §4.1).
func (l *Lifecycle) Submit(ctx context.Context, analyzerID, organization string, fields SubmissionFields) (*Job, error) {
	an, err := l.registry.Resolve(analyzerID, organization)
	if err != nil {
		return nil, fmt.Errorf("resolve analyzer: %w", err)
	}
	return l.Create(ctx, an, organization, fields)
}

// Create implements the admission-then-persist-then-detach sequence (spec
// §4.1, §5): a cache hit returns the prior job unchanged; otherwise the
// rate limit is checked, a Waiting job is persisted, and execution is
// kicked off as a supervised background task. Create returns as soon as
// the Waiting row exists, not when execution completes.
func (l *Lifecycle) Create(ctx context.Context, an analyzer.Analyzer, organization string, fields SubmissionFields) (*Job, error) {
	if !fields.Force {
		cached, err := l.admit.FindSimilarJob(an.ID, fields.DataType, fields.Observable, fields.TLP, fields.Parameters)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			metrics.RecordSubmission("cache_hit")
			return cached, nil
		}
	}

	underLimit, err := l.admit.IsUnderRateLimit(an)
	if err != nil {
		return nil, err
	}
	if !underLimit {
		metrics.RecordSubmission("rate_limited")
		metrics.RecordRateLimitRejection(an.ID)
		return nil, &RateLimitExceededError{AnalyzerID: an.ID}
	}

	job := Job{
		AnalyzerDefinitionID: an.AnalyzerDefinitionID,
		AnalyzerID:           an.ID,
		AnalyzerName:         an.Name,
		Organization:         organization,
		DataType:             fields.DataType,
		TLP:                  fields.TLP,
		Message:              fields.Message,
		Parameters:           fields.Parameters,
		Observable:           fields.Observable,
		Status:               StatusWaiting,
	}

	created, err := l.store.CreateJob(job)
	if err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}
	metrics.RecordSubmission("admitted")

	l.execute(context.WithoutCancel(ctx), created.ID, an)

	return created, nil
}

// execute runs the Input Builder → Process Runner → Report Ingestor
// pipeline for a single job as a detached, supervised task: a panic is
// recovered and recorded as a Failure rather than silently losing the job
// (spec §9 — the source this is grounded on relies on unhandled-failure
// logging; this implementation makes the supervision explicit instead).
func (l *Lifecycle) execute(ctx context.Context, jobID string, an analyzer.Analyzer) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				l.log.Error("job execution panicked", zap.String("job_id", jobID), zap.Any("panic", r))
				_, _ = l.store.EndJob(jobID, StatusFailure, fmt.Sprintf("internal error: %v", r), "")
				metrics.RecordRun(string(StatusFailure), 0)
			}
		}()
		l.runJob(ctx, jobID, an)
	}()
}

// Resume re-drives a job left in Waiting through the same execution path
// Create uses internally. The Recovery Scanner calls this at startup for
// every job it finds in Waiting (spec §4.6).
func (l *Lifecycle) Resume(ctx context.Context, jobID string, an analyzer.Analyzer) {
	l.runJob(ctx, jobID, an)
}

// runJob performs the Waiting→InProgress→terminal sequence for one job.
func (l *Lifecycle) runJob(ctx context.Context, jobID string, an analyzer.Analyzer) {
	started, err := l.store.StartJob(jobID)
	if err != nil {
		// Lost the race to another runner claiming this job, or it is no
		// longer in Waiting — nothing more to do here.
		l.log.Debug("startJob did not apply", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	startTime := time.Now()
	outcome := l.runAnalyzer(ctx, *started, an)

	if _, err := l.store.EndJob(jobID, outcome.Status, outcome.ErrorMessage, outcome.Input); err != nil {
		l.log.Error("endJob failed", zap.String("job_id", jobID), zap.Error(err))
	}
	metrics.RecordRun(string(outcome.Status), time.Since(startTime))
}

// runAnalyzer builds the analyzer's stdin document, spawns it, and ingests
// its stdout, producing the terminal Outcome without applying it.
func (l *Lifecycle) runAnalyzer(ctx context.Context, job Job, an analyzer.Analyzer) Outcome {
	def, err := l.registry.Definition(an.AnalyzerDefinitionID)
	if err != nil {
		return Outcome{Status: StatusFailure, ErrorMessage: fmt.Sprintf("resolve analyzer definition: %v", err)}
	}

	built, err := l.build.Build(job, an, def)
	if err != nil {
		return Outcome{Status: StatusFailure, ErrorMessage: err.Error()}
	}
	if built.TempFile != "" {
		defer removeTempFile(built.TempFile, l.log)
	}

	stdin, err := MarshalInput(built.Input)
	if err != nil {
		return Outcome{Status: StatusFailure, ErrorMessage: fmt.Sprintf("encode analyzer input: %v", err)}
	}

	stdout, stderr, _, err := l.run.Run(ctx, def, stdin)
	if err != nil {
		return Outcome{Status: StatusFailure, ErrorMessage: fmt.Sprintf("run analyzer: %v", err)}
	}

	return l.ingest.Ingest(job.ID, stdout, stderr)
}

// Delete soft-deletes a job (spec §3, §4.1).
func (l *Lifecycle) Delete(jobID string) (*Job, error) {
	return l.store.DeleteJob(jobID)
}

func removeTempFile(path string, log *zap.Logger) {
	if err := os.Remove(path); err != nil {
		log.Warn("failed to remove attachment temp file", zap.String("path", path), zap.Error(err))
	}
}
