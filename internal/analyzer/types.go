// Package analyzer defines the shapes and narrow client interface the job
// service consumes from the external analyzer registry (AnalyzerSrv). The
// registry itself — organisation membership, analyzer catalog management,
// config schema authoring — is an external collaborator; this package only
// carries what the core needs to read.
package analyzer

import "fmt"

// RateUnit is the window over which an analyzer's rate limit is evaluated.
type RateUnit string

const (
	RateUnitDay   RateUnit = "Day"
	RateUnitMonth RateUnit = "Month"
)

// Seconds returns the window length in seconds for use in sliding-window
// rate-limit queries.
func (u RateUnit) Seconds() int64 {
	switch u {
	case RateUnitDay:
		return 24 * 60 * 60
	case RateUnitMonth:
		return 30 * 24 * 60 * 60
	default:
		return 0
	}
}

// Valid reports whether u is one of the recognised rate units.
func (u RateUnit) Valid() bool {
	switch u {
	case RateUnitDay, RateUnitMonth:
		return true
	default:
		return false
	}
}

// Analyzer is the consumed view of an analyzer catalog entry.
type Analyzer struct {
	ID                   string
	Name                 string
	Organization         string
	Rate                 int
	RateUnit             RateUnit
	Config               map[string]any
	AnalyzerDefinitionID string
}

// HasRateLimit reports whether both rate and rateUnit are configured; per
// spec.md §4.2 the limit is only enforced when both are present.
func (a Analyzer) HasRateLimit() bool {
	return a.Rate > 0 && a.RateUnit.Valid()
}

// ConfigurationItem describes one typed, named entry in an analyzer
// definition's configuration schema.
type ConfigurationItem struct {
	Name     string
	Type     string // "string", "number", "boolean"
	Required bool
	Default  any
}

// AnalyzerDefinition is the consumed view of an analyzer's invocation
// metadata: where to find its executable, its working directory, and its
// configuration schema and defaults.
type AnalyzerDefinition struct {
	ID                 string
	Command            string
	BaseDirectory      string
	ConfigurationItems []ConfigurationItem
	Configuration      map[string]any
}

// ErrNotFound is returned by Registry methods when the requested analyzer or
// definition does not exist, or does not belong to the requesting
// organisation.
var ErrNotFound = fmt.Errorf("analyzer: not found")

// Registry is the narrow interface the job service depends on. A real
// implementation is an external collaborator (AnalyzerSrv); this package
// also ships an in-memory implementation good enough to run the service and
// its tests standalone.
type Registry interface {
	// Resolve returns the analyzer with id, only if it belongs to
	// organization.
	Resolve(id, organization string) (Analyzer, error)
	// Definition returns the analyzer definition with id.
	Definition(analyzerDefinitionID string) (AnalyzerDefinition, error)
}
