package manifest

import (
	"fmt"
	"path/filepath"

	"github.com/roach88/seedkit/internal/canon"
	"github.com/roach88/seedkit/internal/failure"
	"github.com/roach88/seedkit/internal/pathpolicy"
	"github.com/roach88/seedkit/internal/runid"
)

// Writer persists manifests under the manifest output roots.
type Writer struct {
	policy *pathpolicy.Policy
}

// NewWriter returns a Writer confined by policy.
func NewWriter(policy *pathpolicy.Policy) *Writer {
	return &Writer{policy: policy}
}

// FileName returns the manifest file name for runID.
func FileName(runID string) string {
	return fmt.Sprintf("seed-%s.json", runID)
}

// Write serializes m as canonical JSON to {dir}/seed-{runId}.json and records
// the resulting path in m.ManifestPath. An empty dir selects the default
// manifest root.
func (w *Writer) Write(m *Manifest, dir string) (string, error) {
	if err := runid.Check(m.RunID); err != nil {
		return "", err
	}
	outDir, err := w.policy.ResolveOutputDir(pathpolicy.KindManifest, dir)
	if err != nil {
		return "", err
	}

	path := filepath.Join(outDir, FileName(m.RunID))
	m.ManifestPath = path

	data, err := canon.Marshal(m)
	if err != nil {
		m.ManifestPath = ""
		return "", failure.Wrap(failure.ClassRuntime, failure.CodeWriteFailed, "encode manifest", err)
	}
	if err := pathpolicy.WriteFileAtomic(path, data); err != nil {
		m.ManifestPath = ""
		return "", failure.Wrap(failure.ClassRuntime, failure.CodeWriteFailed, "write manifest", err)
	}
	return path, nil
}
