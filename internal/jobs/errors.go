package jobs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is an error-kind taxonomy label (spec §7). Each error message below is
// prefixed with its Kind; callers branch with the IsX predicates at the end
// of this file.
type Kind string

const (
	KindMissingAttribute      Kind = "MissingAttribute"
	KindInvalidFormatAttribute Kind = "InvalidFormatAttribute"
	KindAttributeChecking     Kind = "AttributeChecking"
	KindRateLimitExceeded     Kind = "RateLimitExceeded"
	KindNotFound              Kind = "NotFound"
	KindAnalyzerExecution     Kind = "AnalyzerExecution"
	KindReportPersistence     Kind = "ReportPersistence"
)

// AttributeError is one accumulated submission-parsing fault.
type AttributeError struct {
	Kind  Kind
	Field string
	Msg   string
}

func (e AttributeError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Msg)
}

// missingAttribute builds a MissingAttribute fault for field.
func missingAttribute(field string) AttributeError {
	return AttributeError{Kind: KindMissingAttribute, Field: field, Msg: "required"}
}

// invalidFormatAttribute builds an InvalidFormatAttribute fault for field.
func invalidFormatAttribute(field, msg string) AttributeError {
	return AttributeError{Kind: KindInvalidFormatAttribute, Field: field, Msg: msg}
}

// AttributeCheckingError aggregates one or more AttributeErrors accumulated
// while parsing a submission, per spec §9's "accumulating validation
// errors" note: the caller sees every fault at once, not just the first.
type AttributeCheckingError struct {
	Errors []AttributeError
}

func (e *AttributeCheckingError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fault := range e.Errors {
		parts[i] = fault.Error()
	}
	return fmt.Sprintf("%s: %s", KindAttributeChecking, strings.Join(parts, "; "))
}

// kind returns the error's taxonomy label.
func (e *AttributeCheckingError) kind() Kind { return KindAttributeChecking }

// attributeErrors collects AttributeErrors and, if non-empty, returns them
// wrapped in a single AttributeCheckingError; otherwise returns nil.
type attributeErrors []AttributeError

func (a attributeErrors) err() error {
	if len(a) == 0 {
		return nil
	}
	return &AttributeCheckingError{Errors: a}
}

// RateLimitExceededError is returned by the Admission Controller when a
// submission is rejected under the analyzer's configured rate limit.
type RateLimitExceededError struct {
	AnalyzerID string
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("%s: analyzer %s", KindRateLimitExceeded, e.AnalyzerID)
}

// ErrNotFound is returned by the Query Facade when a referenced job,
// report, or artifact is absent or outside the requester's organisation.
var ErrNotFound = errors.New(string(KindNotFound))

// AnalyzerExecutionError records that the analyzer subprocess ran but
// produced unparseable or success=false output. It is recorded on the job,
// never propagated to the submitter (spec §7).
type AnalyzerExecutionError struct {
	Msg string
}

func (e *AnalyzerExecutionError) Error() string {
	return fmt.Sprintf("%s: %s", KindAnalyzerExecution, e.Msg)
}

// ReportPersistenceError records that report/artifact creation failed
// after a successful analyzer run.
type ReportPersistenceError struct {
	Err error
}

func (e *ReportPersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", KindReportPersistence, e.Err)
}

func (e *ReportPersistenceError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRateLimitExceeded reports whether err is a RateLimitExceededError.
func IsRateLimitExceeded(err error) bool {
	var rl *RateLimitExceededError
	return errors.As(err, &rl)
}

// IsAttributeChecking reports whether err is an AttributeCheckingError.
func IsAttributeChecking(err error) bool {
	var ac *AttributeCheckingError
	return errors.As(err, &ac)
}
