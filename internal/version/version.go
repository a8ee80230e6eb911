// Package version holds the toolkit version stamped into manifests and
// verification reports. Release builds override Version with
// -ldflags "-X github.com/roach88/seedkit/internal/version.Version=...".
package version

// Version is the toolkit version.
var Version = "0.1.0"

// Generator tags reports produced by the verification service.
const Generator = "seedkit/verify"
