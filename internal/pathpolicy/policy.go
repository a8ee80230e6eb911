// Package pathpolicy confines every file the toolkit writes to allow-listed
// root directories.
//
// Each output kind has a default root under the working directory. Extra
// roots come from configuration (SEEDKIT_ALLOWED_OUTPUT_ROOTS). A requested
// directory is accepted only when it equals, or descends from, one of the
// kind's allowed roots.
package pathpolicy

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/seedkit/internal/failure"
)

// Kind names a class of output.
type Kind string

const (
	KindManifest Kind = "manifest"
	KindReport   Kind = "report"
	KindFixture  Kind = "fixture"
)

// Default roots, relative to the working directory.
var defaultRoots = map[Kind]string{
	KindManifest: "toolkit-manifests",
	KindReport:   filepath.Join("artifacts", "reports"),
	KindFixture:  filepath.Join("toolkit", "fixtures"),
}

// Policy resolves and confines output directories.
// A Policy is immutable and safe for concurrent use.
type Policy struct {
	cwd        string
	extraRoots []string
}

// New returns a Policy rooted at cwd. Relative extra roots resolve against cwd;
// blank entries are ignored.
func New(cwd string, extraRoots []string) *Policy {
	cwd = filepath.Clean(cwd)
	var extras []string
	for _, r := range extraRoots {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		extras = append(extras, absolute(cwd, r))
	}
	return &Policy{cwd: cwd, extraRoots: extras}
}

// DefaultRoot returns the absolute default root for kind.
func (p *Policy) DefaultRoot(kind Kind) (string, error) {
	rel, ok := defaultRoots[kind]
	if !ok {
		return "", failure.Input(failure.CodeInvalidRequest, "unknown output kind %q", kind)
	}
	return filepath.Join(p.cwd, rel), nil
}

// AllowedRoots returns the kind's default root followed by the extra roots.
func (p *Policy) AllowedRoots(kind Kind) ([]string, error) {
	def, err := p.DefaultRoot(kind)
	if err != nil {
		return nil, err
	}
	return append([]string{def}, p.extraRoots...), nil
}

// ResolveOutputDir resolves requested (empty means the kind's default) to an
// absolute path and checks that an allowed root contains it.
//
// Returns an OUTPUT_PATH_NOT_ALLOWED security error otherwise.
func (p *Policy) ResolveOutputDir(kind Kind, requested string) (string, error) {
	roots, err := p.AllowedRoots(kind)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(requested) == "" {
		return roots[0], nil
	}

	resolved := absolute(p.cwd, requested)
	for _, root := range roots {
		if Contains(root, resolved) {
			return resolved, nil
		}
	}

	return "", failure.Security(failure.CodeOutputPathNotAllowed,
		"output directory %q is outside the allowed %s roots", resolved, kind).
		WithDetail("requested", requested).
		WithDetail("allowedRoots", sortedCopy(roots))
}

// Contains reports whether path equals root or lies beneath it.
// Both arguments should be absolute; containment is decided on the relative
// form, which must not be absolute or climb out through "..".
func Contains(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	if filepath.IsAbs(rel) {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}

// Join joins name onto baseDir and fails with PATH_TRAVERSAL when the result
// escapes baseDir. Used by the scenario and fixture readers.
func Join(baseDir, name string) (string, error) {
	base := filepath.Clean(baseDir)
	full := filepath.Join(base, name)
	if !Contains(base, full) {
		return "", failure.Security(failure.CodePathTraversal,
			"path %q escapes base directory %q", name, base)
	}
	return full, nil
}

func absolute(cwd, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(cwd, p)
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

// String describes the policy for diagnostics.
func (p *Policy) String() string {
	return fmt.Sprintf("pathpolicy(cwd=%s, extra=%v)", p.cwd, p.extraRoots)
}
