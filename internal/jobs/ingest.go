package jobs

import (
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"
)

const maxInvalidOutputBytes = 8 * 1024

// Ingestor parses an analyzer's stdout JSON and, on success, persists a
// report plus its extracted artifacts; on failure it records diagnostic
// text (spec §4.5).
type Ingestor struct {
	store Storer
}

// NewIngestor builds a Report Ingestor.
func NewIngestor(store Storer) *Ingestor {
	return &Ingestor{store: store}
}

// Outcome is the terminal disposition the Report Ingestor computes for a
// job, for the Job Lifecycle Manager to apply via EndJob.
type Outcome struct {
	Status       Status
	ErrorMessage string
	Input        string
}

// Ingest consumes the runner's stdout/stderr for jobID and returns the
// terminal Outcome to apply. It does not call EndJob itself; the caller
// (Job Lifecycle Manager) owns the single point of state transition.
func (ing *Ingestor) Ingest(jobID string, stdout, stderr []byte) Outcome {
	var out AnalyzerOutput
	if err := json.Unmarshal(stdout, &out); err != nil {
		return Outcome{
			Status:       StatusFailure,
			ErrorMessage: "Invalid output\n" + truncateDiagnostic(append(stderr, stdout...)),
		}
	}

	if !out.Success {
		return Outcome{
			Status:       StatusFailure,
			ErrorMessage: out.ErrorMessage,
			Input:        out.Input,
		}
	}

	if out.Full == nil || out.Summary == nil {
		return Outcome{
			Status:       StatusFailure,
			ErrorMessage: "Invalid output\n" + truncateDiagnostic(append(stderr, stdout...)),
		}
	}

	if err := ing.persist(jobID, out); err != nil {
		return Outcome{
			Status:       StatusFailure,
			ErrorMessage: fmt.Sprintf("Report creation failure: %v", err),
		}
	}

	return Outcome{Status: StatusSuccess}
}

// persist creates one Report and, concurrently, one Artifact per emitted
// artifact object. All artifact creations must complete before the job is
// finalised (spec §4.5); errgroup is the fan-out/join primitive, grounded
// on the teacher's goroutine-plus-WaitGroup unit-of-work tracking in
// scheduler.go, generalised to propagate the first error.
func (ing *Ingestor) persist(jobID string, out AnalyzerOutput) error {
	full, err := json.Marshal(out.Full)
	if err != nil {
		return fmt.Errorf("encode full: %w", err)
	}
	summary, err := json.Marshal(out.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	report, err := ing.store.CreateReport(jobID, string(full), string(summary))
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}

	var g errgroup.Group
	for _, raw := range out.Artifacts {
		raw := raw
		g.Go(func() error {
			dataType, obs, err := normalizeArtifact(raw)
			if err != nil {
				return err
			}
			_, err = ing.store.CreateArtifact(report.ID, dataType, obs)
			return err
		})
	}
	return g.Wait()
}

// normalizeArtifact normalises an analyzer-emitted artifact object's keys:
// value→data, type→dataType (spec §3/§8 "artifact-key normalisation" law)
// — an analyzer emitting {type, value} and another emitting
// {dataType, data} must produce bitwise-identical stored artifacts.
func normalizeArtifact(raw map[string]any) (string, DataRef, error) {
	dataType, _ := raw["dataType"].(string)
	if dataType == "" {
		dataType, _ = raw["type"].(string)
	}
	if dataType == "" {
		return "", DataRef{}, fmt.Errorf("artifact missing dataType/type")
	}

	if data, ok := raw["data"].(string); ok {
		return dataType, DataRef{Data: &data}, nil
	}
	if value, ok := raw["value"].(string); ok {
		return dataType, DataRef{Data: &value}, nil
	}
	return "", DataRef{}, fmt.Errorf("artifact missing data/value")
}

func truncateDiagnostic(b []byte) string {
	if len(b) <= maxInvalidOutputBytes {
		return string(b)
	}
	return string(b[:maxInvalidOutputBytes])
}
