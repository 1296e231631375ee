package analyzer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MemRegistry is an in-memory Registry implementation seeded from a slice of
// analyzers and definitions, or loaded from a YAML fixture file. It is not a
// production registry — the real AnalyzerSrv is an external collaborator —
// but is sufficient to run the service and its tests standalone.
type MemRegistry struct {
	analyzers   map[string]Analyzer
	definitions map[string]AnalyzerDefinition
}

// NewMemRegistry builds a MemRegistry from the given analyzers and
// definitions, indexed by their IDs.
func NewMemRegistry(analyzers []Analyzer, definitions []AnalyzerDefinition) *MemRegistry {
	r := &MemRegistry{
		analyzers:   make(map[string]Analyzer, len(analyzers)),
		definitions: make(map[string]AnalyzerDefinition, len(definitions)),
	}
	for _, a := range analyzers {
		r.analyzers[a.ID] = a
	}
	for _, d := range definitions {
		r.definitions[d.ID] = d
	}
	return r
}

// Resolve implements Registry.
func (r *MemRegistry) Resolve(id, organization string) (Analyzer, error) {
	a, ok := r.analyzers[id]
	if !ok || a.Organization != organization {
		return Analyzer{}, fmt.Errorf("analyzer %q in org %q: %w", id, organization, ErrNotFound)
	}
	return a, nil
}

// Definition implements Registry.
func (r *MemRegistry) Definition(analyzerDefinitionID string) (AnalyzerDefinition, error) {
	d, ok := r.definitions[analyzerDefinitionID]
	if !ok {
		return AnalyzerDefinition{}, fmt.Errorf("analyzer definition %q: %w", analyzerDefinitionID, ErrNotFound)
	}
	return d, nil
}

// Put registers or replaces an analyzer. Useful for building up a registry
// incrementally in tests.
func (r *MemRegistry) Put(a Analyzer) {
	r.analyzers[a.ID] = a
}

// PutDefinition registers or replaces an analyzer definition.
func (r *MemRegistry) PutDefinition(d AnalyzerDefinition) {
	r.definitions[d.ID] = d
}

// fixtureFile is the on-disk YAML shape for seeding a MemRegistry from a
// fixture file: a flat list of analyzers, each inlining its definition.
type fixtureFile struct {
	Analyzers []struct {
		ID                   string         `yaml:"id"`
		Name                 string         `yaml:"name"`
		Organization         string         `yaml:"organization"`
		Rate                 int            `yaml:"rate"`
		RateUnit             string         `yaml:"rateUnit"`
		Config               map[string]any `yaml:"config"`
		AnalyzerDefinitionID string         `yaml:"analyzerDefinitionId"`
		Definition           struct {
			Command       string `yaml:"command"`
			BaseDirectory string `yaml:"baseDirectory"`
			Configuration map[string]any `yaml:"configuration"`
			ConfigItems   []struct {
				Name     string `yaml:"name"`
				Type     string `yaml:"type"`
				Required bool   `yaml:"required"`
				Default  any    `yaml:"default"`
			} `yaml:"configurationItems"`
		} `yaml:"definition"`
	} `yaml:"analyzers"`
}

// LoadMemRegistry reads a YAML fixture file (see fixtureFile) and returns a
// seeded MemRegistry, for use by tests and the single-node deployment path.
func LoadMemRegistry(path string) (*MemRegistry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read analyzer fixture %s: %w", path, err)
	}

	var f fixtureFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse analyzer fixture %s: %w", path, err)
	}

	r := NewMemRegistry(nil, nil)
	for _, a := range f.Analyzers {
		r.Put(Analyzer{
			ID:                   a.ID,
			Name:                 a.Name,
			Organization:         a.Organization,
			Rate:                 a.Rate,
			RateUnit:             RateUnit(a.RateUnit),
			Config:               a.Config,
			AnalyzerDefinitionID: a.AnalyzerDefinitionID,
		})

		items := make([]ConfigurationItem, 0, len(a.Definition.ConfigItems))
		for _, ci := range a.Definition.ConfigItems {
			items = append(items, ConfigurationItem{
				Name:     ci.Name,
				Type:     ci.Type,
				Required: ci.Required,
				Default:  ci.Default,
			})
		}
		r.PutDefinition(AnalyzerDefinition{
			ID:                 a.AnalyzerDefinitionID,
			Command:            a.Definition.Command,
			BaseDirectory:      a.Definition.BaseDirectory,
			ConfigurationItems: items,
			Configuration:      a.Definition.Configuration,
		})
	}
	return r, nil
}
