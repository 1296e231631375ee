package jobs

import (
	"context"

	"go.uber.org/zap"

	"github.com/marcus-qen/analyzerd/internal/analyzer"
)

// Recovery re-drives any job left in Waiting state, at service startup
// (spec §4.6). This makes crash recovery idempotent at the job level: a
// job persisted Waiting but never started is started now; a job already
// in InProgress is not touched (assumed abandoned — spec §9, open
// question 3).
type Recovery struct {
	store     Storer
	registry  analyzer.Registry
	lifecycle *Lifecycle
	log       *zap.Logger
}

// NewRecovery builds a Recovery Scanner.
func NewRecovery(store Storer, registry analyzer.Registry, lifecycle *Lifecycle, log *zap.Logger) *Recovery {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recovery{store: store, registry: registry, lifecycle: lifecycle, log: log}
}

// Run scans all jobs with status=Waiting, across every organisation, and
// re-drives each through the full execution pipeline, grounded on the
// teacher's Scheduler.Start pattern of running once immediately (here, at
// startup, with no subsequent periodic loop — recovery is a one-shot pass,
// not a recurring scan).
func (r *Recovery) Run(ctx context.Context) error {
	waiting, err := r.store.ListByStatus(StatusWaiting)
	if err != nil {
		return err
	}

	r.log.Info("recovery scan found waiting jobs", zap.Int("count", len(waiting)))

	for _, job := range waiting {
		an, err := r.registry.Resolve(job.AnalyzerID, job.Organization)
		if err != nil {
			r.log.Error("recovery: failed to resolve analyzer, leaving job Waiting",
				zap.String("job_id", job.ID), zap.String("analyzer_id", job.AnalyzerID), zap.Error(err))
			continue
		}
		r.lifecycle.Resume(ctx, job.ID, an)
	}
	return nil
}
