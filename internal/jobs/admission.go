package jobs

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/marcus-qen/analyzerd/internal/analyzer"
)

// Admission evaluates cache-hit and per-analyzer rate-limit checks before a
// new job is created (spec §4.2). The rate-limit half is store-backed
// (CountJobsSince) rather than an in-memory tracker, adapting the
// sliding-window *technique* of internal/shared/ratelimit.Limiter.pruneHistory
// (cutoff computed from now(), no calendar alignment) to a query that
// survives process restarts.
type Admission struct {
	store    Storer
	cacheTTL time.Duration
}

// NewAdmission builds an Admission Controller. cacheTTL is the job.cache
// configuration option (spec §6); zero disables the similar-job cache.
func NewAdmission(store Storer, cacheTTL time.Duration) *Admission {
	return &Admission{store: store, cacheTTL: cacheTTL}
}

// IsUnderRateLimit reports whether a new job for a may be admitted. If
// either Rate or RateUnit is unset, admission is unconditional.
func (a *Admission) IsUnderRateLimit(an analyzer.Analyzer) (bool, error) {
	if !an.HasRateLimit() {
		return true, nil
	}
	since := time.Now().UTC().Add(-time.Duration(an.RateUnit.Seconds()) * time.Second)
	count, err := a.store.CountJobsSince(an.ID, since)
	if err != nil {
		return false, err
	}
	return count < an.Rate, nil
}

// FindSimilarJob returns a previously persisted job that fingerprint-matches
// the given submission within the cache window, or nil if the cache is
// disabled or no match exists (spec §4.2). The returned job carries
// FromCache=true; the underlying stored record is not mutated.
func (a *Admission) FindSimilarJob(analyzerID, dataType string, obs DataRef, tlp int, parameters map[string]any) (*Job, error) {
	if a.cacheTTL <= 0 {
		return nil, nil
	}

	encoded, err := canonicalEncode(parameters)
	if err != nil {
		return nil, err
	}

	since := time.Now().UTC().Add(-a.cacheTTL)
	similar, err := a.store.FindSimilarJob(analyzerID, dataType, obs.Identity(), obs.IsAttachment(), tlp, encoded, since)
	if err != nil {
		return nil, err
	}
	if similar == nil {
		return nil, nil
	}

	hit := *similar
	hit.FromCache = true
	return &hit, nil
}

// canonicalEncode produces a stable JSON encoding of parameters by sorting
// map keys, so that cache-fingerprint equality does not depend on
// insertion order. Spec §9 notes this as an implementer choice: the spec's
// own reference semantics use raw string equality of whatever encoding the
// caller happened to use, which misses cache hits on key reordering; this
// implementation canonicalises instead (see DESIGN.md).
func canonicalEncode(parameters map[string]any) (string, error) {
	if len(parameters) == 0 {
		return "{}", nil
	}
	keys := make([]string, 0, len(parameters))
	for k := range parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make(map[string]any, len(parameters))
	for _, k := range keys {
		ordered[k] = parameters[k]
	}
	// encoding/json sorts map keys on marshal, so the explicit ordering
	// above is for clarity; the resulting bytes are already canonical.
	raw, err := json.Marshal(ordered)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
