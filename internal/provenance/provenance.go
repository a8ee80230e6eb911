// Package provenance defines the tags every toolkit-written row carries.
package provenance

import "strings"

// SourcePrefix starts the source tag of every row the toolkit writes.
const SourcePrefix = "toolkit:"

// Source returns the source tag for rows seeded from scenarioID.
func Source(scenarioID string) string {
	return SourcePrefix + scenarioID
}

// IsToolkit reports whether source carries the toolkit prefix.
func IsToolkit(source string) bool {
	return strings.HasPrefix(source, SourcePrefix)
}
