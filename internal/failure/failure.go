// Package failure defines the structured error taxonomy shared by every
// seedkit component and the exit-code contract consumed by CLI/CI callers.
//
// Every fatal condition is a *Error carrying a stable Code (for example
// PATH_TRAVERSAL or CHECKSUM_MISMATCH) and a Class. The Class alone decides
// the process exit code, so callers can branch on "blocked" versus
// "validation failed" without string matching.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

// Class groups error codes by how callers must react to them.
type Class string

const (
	// ClassSecurity covers policy violations: traversal, oversized input,
	// output paths outside the allow-list. Never retried.
	ClassSecurity Class = "security"

	// ClassInput covers malformed or invalid input: bad scenario fields,
	// checksum mismatch, unsupported schema versions, disallowed platforms.
	ClassInput Class = "input"

	// ClassNotFound covers missing scenarios and fixtures.
	ClassNotFound Class = "not_found"

	// ClassRuntime covers store, filesystem and other unexpected failures.
	ClassRuntime Class = "runtime"

	// ClassConcurrency is returned by admission control. It is the only
	// recoverable class.
	ClassConcurrency Class = "concurrency"
)

// Code identifies a specific failure.
type Code string

// Scenario and fixture loading codes.
const (
	CodePathTraversal            Code = "PATH_TRAVERSAL"
	CodeInvalidScenarioID        Code = "INVALID_SCENARIO_ID"
	CodeScenarioNotFound         Code = "SCENARIO_NOT_FOUND"
	CodeFileTooLarge             Code = "FILE_TOO_LARGE"
	CodeDisallowedExtension      Code = "DISALLOWED_EXTENSION"
	CodeMultiDocumentNotAllowed  Code = "MULTI_DOCUMENT_NOT_ALLOWED"
	CodeParseError               Code = "PARSE_ERROR"
	CodeFixtureNotFound          Code = "FIXTURE_NOT_FOUND"
	CodeFixtureTooLarge          Code = "FIXTURE_TOO_LARGE"
	CodeUnsupportedSchemaVersion Code = "UNSUPPORTED_SCHEMA_VERSION"
	CodeFixtureRowLimit          Code = "FIXTURE_ROW_LIMIT"
	CodeChecksumMismatch         Code = "CHECKSUM_MISMATCH"
)

// Scenario field validation codes.
const (
	CodeInvalidSchemaVersion   Code = "INVALID_SCHEMA_VERSION"
	CodeInvalidName            Code = "INVALID_NAME"
	CodeInvalidDescription     Code = "INVALID_DESCRIPTION"
	CodeInvalidTrend           Code = "INVALID_TREND"
	CodeInvalidBaseImpressions Code = "INVALID_BASE_IMPRESSIONS"
	CodeInvalidDays            Code = "INVALID_DAYS"
	CodeInvalidDateAnchor      Code = "INVALID_DATE_ANCHOR"
	CodeInvalidAliases         Code = "INVALID_ALIASES"
)

// Pipeline, policy and runtime codes.
const (
	CodePlatformNotSeedable  Code = "PLATFORM_NOT_SEEDABLE"
	CodeInvalidRequest       Code = "INVALID_REQUEST"
	CodeShapeMismatch        Code = "SHAPE_MISMATCH"
	CodeOutputPathNotAllowed Code = "OUTPUT_PATH_NOT_ALLOWED"
	CodeInvalidRunID         Code = "INVALID_RUN_ID"
	CodeInvalidRule          Code = "INVALID_RULE"
	CodeConcurrencyLimit     Code = "CONCURRENCY_LIMIT"
	CodeVerificationFailed   Code = "VERIFICATION_FAILED"
	CodeStoreError           Code = "STORE_ERROR"
	CodeWriteFailed          Code = "WRITE_FAILED"
	CodeInternal             Code = "INTERNAL"
)

// Violation is a single field-level validation failure.
type Violation struct {
	Code    Code   `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Code, v.Message)
}

// Error is the structured error returned by seedkit components.
type Error struct {
	Code       Code
	Class      Class
	Message    string
	Details    map[string]any
	Violations []Violation
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if len(e.Violations) > 1 {
		parts := make([]string, len(e.Violations))
		for i, v := range e.Violations {
			parts[i] = v.String()
		}
		msg += " [" + strings.Join(parts, "; ") + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ExitCode returns the process exit code for this error's class.
func (e *Error) ExitCode() int {
	return exitCodeForClass(e.Class)
}

// Recoverable reports whether the caller may retry the operation later.
func (e *Error) Recoverable() bool {
	return e.Class == ClassConcurrency
}

// New creates an Error with the given code and class.
func New(class Class, code Code, message string) *Error {
	return &Error{Code: code, Class: class, Message: message}
}

// Newf is New with a formatted message.
func Newf(class Class, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Class: class, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and class to an underlying error.
func Wrap(class Class, code Code, message string, err error) *Error {
	return &Error{Code: code, Class: class, Message: message, Err: err}
}

// Security is shorthand for a security-class error.
func Security(code Code, format string, args ...any) *Error {
	return Newf(ClassSecurity, code, format, args...)
}

// Input is shorthand for an input-class error.
func Input(code Code, format string, args ...any) *Error {
	return Newf(ClassInput, code, format, args...)
}

// NotFound is shorthand for a not-found-class error.
func NotFound(code Code, format string, args ...any) *Error {
	return Newf(ClassNotFound, code, format, args...)
}

// FromViolations builds an input error whose primary code is the first
// violation's code and whose message lists every violation.
func FromViolations(message string, violations []Violation) *Error {
	if len(violations) == 0 {
		return Input(CodeInvalidRequest, "%s", message)
	}
	return &Error{
		Code:       violations[0].Code,
		Class:      ClassInput,
		Message:    fmt.Sprintf("%s: %s", message, violations[0].Message),
		Violations: append([]Violation(nil), violations...),
	}
}

// WithDetail returns e with an additional detail entry.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// As extracts a *Error from err.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// CodeOf returns the code of err, or CodeInternal when err is not a *Error.
func CodeOf(err error) Code {
	if fe, ok := As(err); ok {
		return fe.Code
	}
	return CodeInternal
}

// ClassOf returns the class of err, or ClassRuntime when err is not a *Error.
func ClassOf(err error) Class {
	if fe, ok := As(err); ok {
		return fe.Class
	}
	return ClassRuntime
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	fe, ok := As(err)
	return ok && fe.Code == code
}

// IsRecoverable reports whether err is a retryable admission-control rejection.
func IsRecoverable(err error) bool {
	fe, ok := As(err)
	return ok && fe.Recoverable()
}
