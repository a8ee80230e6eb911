package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/seedkit/internal/failure"
	"github.com/roach88/seedkit/internal/logging"
)

// ExitError carries the process exit code of a command that already reported
// its failure to the user.
type ExitError struct {
	Code    int    // Process exit code, see the failure package
	Message string // Error message, already redacted
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Errors that are not ExitErrors map through failure.ExitCode.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return failure.ExitCode(err)
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool

	printer *message.Printer
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code     string `json:"code"`              // failure code, e.g. "PATH_TRAVERSAL"
	Message  string `json:"message"`           // human-readable message
	ExitCode int    `json:"exitCode"`          // process exit code
	Details  any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

func (f *OutputFormatter) errorWithExit(code, message string, exitCode int, details any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:     code,
				Message:  message,
				ExitCode: exitCode,
				Details:  details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
// Messages and string details are redacted before they are printed.
func (f *OutputFormatter) Fail(err error, details any) error {
	msg := logging.Redact(err.Error())
	code := failure.CodeOf(err)
	exit := GetExitCode(err)

	if fe, ok := failure.As(err); ok && details == nil {
		switch {
		case len(fe.Violations) > 0:
			details = fe.Violations
		case len(fe.Details) > 0:
			details = fe.Details
		}
	}
	_ = f.errorWithExit(string(code), msg, exit, redactDetails(details))
	return WrapExitError(exit, msg, err)
}

// redactDetails returns a copy of v with every string passed through
// logging.Redact. Other values are returned unchanged.
func redactDetails(v any) any {
	switch d := v.(type) {
	case string:
		return logging.Redact(d)
	case error:
		return logging.Redact(d.Error())
	case []string:
		out := make([]string, len(d))
		for i, s := range d {
			out[i] = logging.Redact(s)
		}
		return out
	case []any:
		out := make([]any, len(d))
		for i, e := range d {
			out[i] = redactDetails(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(d))
		for k, e := range d {
			out[k] = redactDetails(e)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(d))
		for k, s := range d {
			out[k] = logging.Redact(s)
		}
		return out
	case []failure.Violation:
		out := make([]failure.Violation, len(d))
		for i, viol := range d {
			viol.Message = logging.Redact(viol.Message)
			out[i] = viol
		}
		return out
	}
	return v
}

// Printf writes locale-formatted text (thousands separators in counts).
func (f *OutputFormatter) Printf(format string, args ...any) {
	if f.printer == nil {
		f.printer = message.NewPrinter(language.English)
	}
	f.printer.Fprintf(f.Writer, format, args...)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func (f *OutputFormatter) encode(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
