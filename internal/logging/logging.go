// Package logging builds the toolkit's slog loggers.
//
// There is one implementation parameterised by sink: text for terminals,
// JSON for CI. Both pass every string attribute and error value through
// Redact before it is written.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options configures New.
type Options struct {
	// Writer receives log records. Defaults to os.Stderr.
	Writer io.Writer
	Level  slog.Level
	// Format is FormatText or FormatJSON. Empty selects FormatText.
	Format string
}

// New returns a logger writing to opts.Writer with redaction applied.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{
		Level:       opts.Level,
		ReplaceAttr: ReplaceAttr,
	}
	if opts.Format == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// DefaultFormat returns FormatJSON when the CI variable is truthy,
// otherwise FormatText.
func DefaultFormat(getenv func(string) string) string {
	if IsCI(getenv) {
		return FormatJSON
	}
	return FormatText
}

// IsCI reports whether the CI variable is set to a truthy value.
func IsCI(getenv func(string) string) bool {
	v := strings.TrimSpace(getenv("CI"))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		// CI=yes and similar
		return true
	}
	return b
}

// ValidFormat reports whether f is a known format.
func ValidFormat(f string) bool {
	return f == FormatText || f == FormatJSON
}

// ReplaceAttr redacts string and error attribute values.
func ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, Redact(a.Value.String()))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, Redact(err.Error()))
		}
	}
	return a
}
