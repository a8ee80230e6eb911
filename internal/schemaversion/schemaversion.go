// Package schemaversion checks the schemaVersion field shared by scenario and
// fixture documents.
package schemaversion

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Supported is the only document schema version this toolkit reads.
const Supported = "1.0.0"

var supported = semver.MustParse(Supported)

// Check returns nil when raw is the string "1.0.0". The error text tells a
// malformed version apart from a well-formed but unsupported one.
func Check(raw any) error {
	s, ok := raw.(string)
	if !ok || s == "" {
		return fmt.Errorf("schemaVersion is required and must be a string")
	}
	v, err := semver.StrictNewVersion(s)
	if err != nil {
		return fmt.Errorf("schemaVersion %q is not a valid semantic version", s)
	}
	if !v.Equal(supported) || v.Original() != Supported {
		return fmt.Errorf("schemaVersion %q is not supported (expected %s)", s, Supported)
	}
	return nil
}
