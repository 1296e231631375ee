// Package jobs implements the job-execution core: submission, admission
// control, the analyzer execution pipeline, report ingestion, and the
// organisation-scoped read facade.
package jobs

import (
	"time"

	"github.com/marcus-qen/analyzerd/internal/attachment"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusWaiting    Status = "Waiting"
	StatusInProgress Status = "InProgress"
	StatusSuccess    Status = "Success"
	StatusFailure    Status = "Failure"
	StatusDeleted    Status = "Deleted"
)

// Terminal reports whether s is a terminal lifecycle state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusDeleted:
		return true
	default:
		return false
	}
}

// DataRef is the tagged-variant observable payload: exactly one of Data or
// Attachment is set. It keeps the wire's either-of-two-shapes field as an
// explicit sum type in the in-memory model (spec §9).
type DataRef struct {
	Data       *string
	Attachment *attachment.Attachment
}

// IsData reports whether this ref carries an inline string datum.
func (d DataRef) IsData() bool {
	return d.Data != nil
}

// IsAttachment reports whether this ref carries a blob reference.
func (d DataRef) IsAttachment() bool {
	return d.Attachment != nil
}

// Identity returns the value used for cache-fingerprint and equality
// purposes: the data string, or the attachment id.
func (d DataRef) Identity() string {
	if d.Data != nil {
		return *d.Data
	}
	if d.Attachment != nil {
		return d.Attachment.ID
	}
	return ""
}

// Job is one submission: one execution of one analyzer against one
// observable.
type Job struct {
	ID                   string
	AnalyzerDefinitionID string
	AnalyzerID           string
	AnalyzerName         string
	Organization         string
	DataType             string
	TLP                  int
	Message              string
	Parameters           map[string]any
	Observable           DataRef
	Status               Status
	StartDate            *time.Time
	EndDate              *time.Time
	Input                string
	ErrorMessage         string
	CreatedAt            time.Time
	UpdatedAt            time.Time

	// DurationMS is the wall-clock runtime in milliseconds, set by EndJob
	// from StartDate/EndDate; nil until the job reaches a terminal status.
	// Cached on the row so Stats can aggregate it without recomputing from
	// the two timestamps on every call.
	DurationMS *int64

	// FromCache is set in-memory only on jobs returned via cache reuse; it
	// is never persisted back to the store (spec §9, open question 6).
	FromCache bool
}

// Report is the structured success output of one Job.
type Report struct {
	ID        string
	JobID     string
	Full      string // opaque JSON, serialised
	Summary   string // opaque JSON, serialised
	CreatedAt time.Time
}

// Artifact is a sub-observable extracted from a Report.
type Artifact struct {
	ID         string
	ReportID   string
	DataType   string
	Observable DataRef
	CreatedAt  time.Time
}

// AnalyzerOutput is the raw shape an analyzer subprocess emits on stdout at
// exit (spec §6).
type AnalyzerOutput struct {
	Success      bool             `json:"success"`
	Full         map[string]any   `json:"full,omitempty"`
	Summary      map[string]any   `json:"summary,omitempty"`
	Artifacts    []map[string]any `json:"artifacts,omitempty"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	Input        string           `json:"input,omitempty"`
}
