package jobs

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/marcus-qen/analyzerd/internal/analyzer"
	"github.com/marcus-qen/analyzerd/internal/attachment"
)

// baseSchema is the global configuration schema every analyzer inherits,
// validated in addition to the analyzer definition's own configurationItems
// (spec §4.3).
var baseSchema = []analyzer.ConfigurationItem{
	{Name: "proxy_url", Type: "string", Required: false, Default: ""},
}

// AnalyzerInput is the JSON document delivered to the analyzer's stdin
// (spec §4.3).
type AnalyzerInput struct {
	Data        string         `json:"data,omitempty"`
	File        string         `json:"file,omitempty"`
	Filename    string         `json:"filename,omitempty"`
	ContentType string         `json:"contentType,omitempty"`
	DataType    string         `json:"dataType"`
	Message     string         `json:"message"`
	Config      map[string]any `json:"config"`
}

// InputBuilder materialises attachments, merges analyzer configuration
// with job parameters, validates the merged config, and produces the JSON
// document consumed by the analyzer subprocess.
type InputBuilder struct {
	attachments attachment.Store
}

// NewInputBuilder builds an Input Builder backed by the given attachment
// store.
func NewInputBuilder(attachments attachment.Store) *InputBuilder {
	return &InputBuilder{attachments: attachments}
}

// Built is the product of Build: the stdin document plus the temp file
// path created for an attachment observable, if any, so the caller can
// clean it up once the analyzer process has exited (spec §9, open
// question 5 — the core binds the file's lifetime to the job execution
// scope and deletes it on every exit path rather than leaving cleanup to
// an external temp-dir reaper).
type Built struct {
	Input   AnalyzerInput
	TempFile string
}

// Build produces the stdin document for job j against analyzer an and
// definition def. On any validation error, all accumulated faults are
// returned together as an AttributeCheckingError (spec §4.3, §9).
func (b *InputBuilder) Build(j Job, an analyzer.Analyzer, def analyzer.AnalyzerDefinition) (Built, error) {
	var built Built

	if j.Observable.IsData() {
		built.Input.Data = *j.Observable.Data
	} else if j.Observable.IsAttachment() {
		path, err := b.materialize(*j.Observable.Attachment)
		if err != nil {
			return Built{}, err
		}
		built.TempFile = path
		built.Input.File = path
		built.Input.Filename = j.Observable.Attachment.Name
		built.Input.ContentType = j.Observable.Attachment.ContentType
	} else {
		return Built{}, (attributeErrors{missingAttribute("data|attachment")}).err()
	}

	built.Input.DataType = j.DataType
	built.Input.Message = j.Message

	effective := deepMerge(an.Config, j.Parameters)

	schema := append(append([]analyzer.ConfigurationItem{}, baseSchema...), def.ConfigurationItems...)
	validated, errs := validateConfig(effective, schema)
	if len(errs) > 0 {
		if built.TempFile != "" {
			os.Remove(built.TempFile)
		}
		return Built{}, (attributeErrors(errs)).err()
	}

	built.Input.Config = deepMerge(def.Configuration, validated)
	return built, nil
}

// materialize streams the attachment's content to a freshly-created
// temporary file, grounded on internal/migration's copyFile io.Copy pattern. On
// stream failure the job fails before spawn (spec §4.3).
func (b *InputBuilder) materialize(a attachment.Attachment) (string, error) {
	src, err := b.attachments.Source(a.ID)
	if err != nil {
		return "", fmt.Errorf("open attachment %s: %w", a.ID, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "analyzerd-attachment-*")
	if err != nil {
		return "", fmt.Errorf("create temp file for attachment %s: %w", a.ID, err)
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, src); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("stream attachment %s to temp file: %w", a.ID, err)
	}
	return tmp.Name(), nil
}

// deepMerge merges override on top of base, recursively for nested map
// values, with override's keys winning on conflict (spec §4.3: "right
// wins"). Neither input is mutated.
func deepMerge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		baseVal, exists := out[k]
		if exists {
			baseMap, baseIsMap := baseVal.(map[string]any)
			overrideMap, overrideIsMap := v.(map[string]any)
			if baseIsMap && overrideIsMap {
				out[k] = deepMerge(baseMap, overrideMap)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// validateConfig reads each schema item out of effective, applying type
// coercion and default, and accumulates every fault instead of failing on
// the first (spec §4.3/§9).
func validateConfig(effective map[string]any, schema []analyzer.ConfigurationItem) (map[string]any, []AttributeError) {
	var errs []AttributeError
	out := make(map[string]any, len(schema))

	for _, item := range schema {
		raw, present := effective[item.Name]
		if !present {
			if item.Required {
				errs = append(errs, missingAttribute(item.Name))
				continue
			}
			out[item.Name] = item.Default
			continue
		}

		coerced, ok := coerce(raw, item.Type)
		if !ok {
			errs = append(errs, invalidFormatAttribute(item.Name, fmt.Sprintf("expected %s, got %T", item.Type, raw)))
			continue
		}
		out[item.Name] = coerced
	}

	return out, errs
}

// coerce attempts to coerce raw to the declared type, as JSON-decoded
// values arrive as float64/string/bool/map/slice.
func coerce(raw any, wantType string) (any, bool) {
	switch wantType {
	case "string":
		s, ok := raw.(string)
		return s, ok
	case "number":
		switch v := raw.(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		default:
			return nil, false
		}
	case "boolean":
		b, ok := raw.(bool)
		return b, ok
	default:
		return raw, true
	}
}

// MarshalInput serialises an AnalyzerInput document for delivery to an
// analyzer's stdin.
func MarshalInput(in AnalyzerInput) ([]byte, error) {
	return json.Marshal(in)
}
