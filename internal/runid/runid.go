// Package runid generates and checks run identifiers. Run ids become part of
// file names, so only [a-zA-Z0-9_-] is accepted.
package runid

import (
	"regexp"

	"github.com/google/uuid"

	"github.com/roach88/seedkit/internal/failure"
)

var pattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Generator produces run ids.
type Generator interface {
	Generate() string
}

// UUIDv7Generator returns time-ordered UUIDv7 strings.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7. It panics only if the system random source
// fails, which uuid.Must treats as unrecoverable.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator always returns the same id. Used by tests and replays.
type FixedGenerator string

func (g FixedGenerator) Generate() string { return string(g) }

// Valid reports whether id is safe to embed in a file name.
func Valid(id string) bool {
	return pattern.MatchString(id)
}

// Check returns an INVALID_RUN_ID security error when id is not Valid.
func Check(id string) error {
	if !Valid(id) {
		return failure.Security(failure.CodeInvalidRunID,
			"run id %q must match %s", id, pattern.String())
	}
	return nil
}
