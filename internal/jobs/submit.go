package jobs

import "github.com/marcus-qen/analyzerd/internal/attachment"

// SubmissionFields is the parsed, defaulted result of a submission body,
// accepted in either of two wire shapes (spec §6).
type SubmissionFields struct {
	DataType   string
	TLP        int
	Message    string
	Parameters map[string]any
	Force      bool
	Observable DataRef
}

// ParseSubmission parses a raw submission body into SubmissionFields,
// accumulating every accumulated fault rather than failing on the first
// (spec §9). raw is the already JSON-decoded request body; att, if
// non-nil, is an attachment already saved by the HTTP layer for a
// multipart upload.
func ParseSubmission(raw map[string]any, att *attachment.Attachment) (SubmissionFields, error) {
	var errs attributeErrors

	attrs := raw
	if nested, ok := raw["attributes"].(map[string]any); ok {
		// Legacy shape: a top-level `attributes` object takes precedence.
		attrs = nested
	}

	dataType, ok := attrs["dataType"].(string)
	if !ok || dataType == "" {
		errs = append(errs, missingAttribute("dataType"))
	}

	tlp := 2
	if raw, present := attrs["tlp"]; present {
		switch v := raw.(type) {
		case float64:
			tlp = int(v)
		case int:
			tlp = v
		default:
			errs = append(errs, invalidFormatAttribute("tlp", "expected number"))
		}
	}

	message := ""
	if raw, present := attrs["message"]; present {
		if s, ok := raw.(string); ok {
			message = s
		} else {
			errs = append(errs, invalidFormatAttribute("message", "expected string"))
		}
	}

	parameters := map[string]any{}
	if raw, present := attrs["parameters"]; present {
		if m, ok := raw.(map[string]any); ok {
			parameters = m
		} else {
			errs = append(errs, invalidFormatAttribute("parameters", "expected object"))
		}
	}

	force := false
	if raw, present := raw["force"]; present {
		if b, ok := raw.(bool); ok {
			force = b
		} else {
			errs = append(errs, invalidFormatAttribute("force", "expected boolean"))
		}
	}

	var obs DataRef
	switch {
	case att != nil:
		obs = DataRef{Attachment: att}
	default:
		if d, present := raw["data"]; present {
			if s, ok := d.(string); ok {
				obs = DataRef{Data: &s}
			} else {
				errs = append(errs, invalidFormatAttribute("data", "expected string"))
			}
		} else if _, present := raw["attachment"]; present {
			errs = append(errs, invalidFormatAttribute("attachment", "attachment must be uploaded, not inlined"))
		} else {
			errs = append(errs, missingAttribute("data|attachment"))
		}
	}

	if err := errs.err(); err != nil {
		return SubmissionFields{}, err
	}

	return SubmissionFields{
		DataType:   dataType,
		TLP:        tlp,
		Message:    message,
		Parameters: parameters,
		Force:      force,
		Observable: obs,
	}, nil
}
