package jobs

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// fakeStore is a minimal in-memory Storer for unit-testing admission,
// ingestion, and query logic without a real SQLite file, mirroring the
// teacher's style of small hand-rolled fakes over the store interface in
// its own package-level tests.
type fakeStore struct {
	jobs      map[string]Job
	reports   map[string]Report // keyed by job id
	artifacts map[string][]Artifact // keyed by report id
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:      make(map[string]Job),
		reports:   make(map[string]Report),
		artifacts: make(map[string][]Artifact),
	}
}

func (f *fakeStore) CreateJob(j Job) (*Job, error) {
	j.ID = uuid.NewString()
	now := time.Now().UTC()
	j.CreatedAt = now
	j.UpdatedAt = now
	f.jobs[j.ID] = j
	return &j, nil
}

func (f *fakeStore) GetJob(id string) (*Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &j, nil
}

func (f *fakeStore) StartJob(id string) (*Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if j.Status != StatusWaiting {
		return nil, errInvalidTransitionFake
	}
	now := time.Now().UTC()
	j.Status = StatusInProgress
	j.StartDate = &now
	f.jobs[id] = j
	return &j, nil
}

func (f *fakeStore) EndJob(id string, status Status, errorMessage, input string) (*Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if j.Status != StatusInProgress {
		return nil, errInvalidTransitionFake
	}
	now := time.Now().UTC()
	j.Status = status
	j.EndDate = &now
	j.ErrorMessage = errorMessage
	j.Input = input
	f.jobs[id] = j
	return &j, nil
}

func (f *fakeStore) DeleteJob(id string) (*Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	j.Status = StatusDeleted
	f.jobs[id] = j
	return &j, nil
}

func (f *fakeStore) CountJobsSince(analyzerID string, since time.Time) (int, error) {
	count := 0
	for _, j := range f.jobs {
		if j.AnalyzerID == analyzerID && !j.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) FindSimilarJob(analyzerID, dataType, dataIdentity string, isAttachment bool, tlp int, parametersEncoded string, since time.Time) (*Job, error) {
	var best *Job
	for _, j := range f.jobs {
		jCopy := j
		if jCopy.AnalyzerID != analyzerID || jCopy.DataType != dataType || jCopy.TLP != tlp {
			continue
		}
		if jCopy.Status == StatusFailure || jCopy.Status == StatusDeleted {
			continue
		}
		if jCopy.StartDate == nil || jCopy.StartDate.Before(since) {
			continue
		}
		if jCopy.Observable.Identity() != dataIdentity || jCopy.Observable.IsAttachment() != isAttachment {
			continue
		}
		encoded, _ := canonicalEncode(jCopy.Parameters)
		if encoded != parametersEncoded {
			continue
		}
		if best == nil || jCopy.CreatedAt.After(best.CreatedAt) {
			best = &jCopy
		}
	}
	return best, nil
}

func (f *fakeStore) ListByStatus(status Status) ([]Job, error) {
	var out []Job
	for _, j := range f.jobs {
		if j.Status == status {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (f *fakeStore) ListForOrganization(organization, dataTypeFilter, dataFilter, analyzerFilter string, limit, offset int) ([]Job, error) {
	var out []Job
	for _, j := range f.jobs {
		if j.Organization == organization {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateReport(jobID, full, summary string) (*Report, error) {
	if _, exists := f.reports[jobID]; exists {
		return nil, errDuplicateReportFake
	}
	r := Report{ID: uuid.NewString(), JobID: jobID, Full: full, Summary: summary, CreatedAt: time.Now().UTC()}
	f.reports[jobID] = r
	return &r, nil
}

func (f *fakeStore) GetReportByJob(jobID string) (*Report, error) {
	r, ok := f.reports[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (f *fakeStore) CreateArtifact(reportID, dataType string, obs DataRef) (*Artifact, error) {
	a := Artifact{ID: uuid.NewString(), ReportID: reportID, DataType: dataType, Observable: obs, CreatedAt: time.Now().UTC()}
	f.artifacts[reportID] = append(f.artifacts[reportID], a)
	return &a, nil
}

func (f *fakeStore) FindArtifactsByReport(reportID string) ([]Artifact, error) {
	return f.artifacts[reportID], nil
}

func (f *fakeStore) Stats(organization string, query StatsQuery, aggregations []Aggregation) (map[string]any, error) {
	matches := func(j Job) bool {
		if j.Organization != organization {
			return false
		}
		for _, filter := range query.Filters {
			switch filter.Field {
			case "analyzerId":
				if j.AnalyzerID != filter.Value {
					return false
				}
			case "dataType":
				if j.DataType != filter.Value {
					return false
				}
			case "status":
				if string(j.Status) != filter.Value {
					return false
				}
			}
		}
		return true
	}

	var matched []Job
	for _, j := range f.jobs {
		if matches(j) {
			matched = append(matched, j)
		}
	}

	out := make(map[string]any, len(aggregations))
	for _, agg := range aggregations {
		switch agg.Type {
		case AggCount:
			out[agg.Name] = len(matched)
		case AggCountBy:
			buckets := make(map[string]int)
			for _, j := range matched {
				var key string
				switch agg.Field {
				case "analyzerId":
					key = j.AnalyzerID
				case "dataType":
					key = j.DataType
				case "status":
					key = string(j.Status)
				}
				buckets[key]++
			}
			out[agg.Name] = buckets
		case AggAvg:
			var sum int64
			var count int
			for _, j := range matched {
				if j.DurationMS != nil {
					sum += *j.DurationMS
					count++
				}
			}
			if count == 0 {
				out[agg.Name] = 0.0
			} else {
				out[agg.Name] = float64(sum) / float64(count)
			}
		}
	}
	return out, nil
}

var (
	errInvalidTransitionFake = fakeErr("invalid transition")
	errDuplicateReportFake   = fakeErr("duplicate report")
)

type fakeErr string

func (e fakeErr) Error() string { return string(e) }
