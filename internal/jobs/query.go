package jobs

import "strconv"

// Query is the organisation-scoped read facade over the store (spec §4.7).
// Every method threads an organisation/user scope through the underlying
// query, generalising the teacher's single-tenant read-handler conventions
// (internal/controlplane/jobs/handlers.go's ListRuns/GetRun/IsNotFound) to
// this system's multi-tenant data model.
type Query struct {
	store Storer
}

// NewQuery builds a Query Facade.
func NewQuery(store Storer) *Query {
	return &Query{store: store}
}

// Range is a parsed "from-to" / "all" pagination spec (spec §4.7).
type Range struct {
	Offset int
	Limit  int // 0 means unbounded
}

// ParseRange parses spec's range mini-language: "" or "all" for unbounded,
// or "from-to" for an inclusive-exclusive bound. Every "a-b" pair is read as
// from-to; a separate from-count form is not recognised. A malformed range,
// or one with to <= from, yields the unbounded Range.
func ParseRange(raw string) Range {
	if raw == "" || raw == "all" {
		return Range{}
	}
	parts := splitOnce(raw, '-')
	from, err1 := strconv.Atoi(parts[0])
	to, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || to <= from {
		return Range{}
	}
	return Range{Offset: from, Limit: to - from}
}

func splitOnce(s string, sep byte) [2]string {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return [2]string{s[:i], s[i+1:]}
		}
	}
	return [2]string{s, ""}
}

// ListForUser returns jobs in organization, optionally filtered by
// substring match on dataType, data, or analyzerId|analyzerName,
// paginated by rng.
func (q *Query) ListForUser(organization string, dataTypeFilter, dataFilter, analyzerFilter string, rng Range) ([]Job, error) {
	return q.store.ListForOrganization(organization, dataTypeFilter, dataFilter, analyzerFilter, rng.Limit, rng.Offset)
}

// GetForUser returns a job iff it belongs to organization; otherwise
// ErrNotFound (spec §4.7 — organisation scoping is mandatory on every
// read path).
func (q *Query) GetForUser(organization, jobID string) (*Job, error) {
	job, err := q.store.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	if job.Organization != organization {
		return nil, ErrNotFound
	}
	return job, nil
}

// GetReport returns the report belonging to jobID, scoped to organization.
func (q *Query) GetReport(organization, jobID string) (*Report, error) {
	if _, err := q.GetForUser(organization, jobID); err != nil {
		return nil, err
	}
	return q.store.GetReportByJob(jobID)
}

// FindArtifacts returns the artifacts of jobID's report, scoped to
// organization.
func (q *Query) FindArtifacts(organization, jobID string) ([]Artifact, error) {
	report, err := q.GetReport(organization, jobID)
	if err != nil {
		return nil, err
	}
	return q.store.FindArtifactsByReport(report.ID)
}
