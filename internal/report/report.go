// Package report persists verification results.
//
// Reports are canonical JSON (sorted keys, no whitespace), so two runs over
// identical data produce byte-identical files. Files are written atomically
// under an allow-listed report root and named verify-{runId}.json.
package report

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/seedkit/internal/canon"
	"github.com/roach88/seedkit/internal/failure"
	"github.com/roach88/seedkit/internal/pathpolicy"
	"github.com/roach88/seedkit/internal/runid"
	"github.com/roach88/seedkit/internal/verify"
)

// Publisher copies report bytes to secondary storage.
type Publisher interface {
	// Publish stores data under key and returns a location for display.
	Publish(ctx context.Context, key string, data []byte) (string, error)
}

// Writer writes verification reports.
type Writer struct {
	policy    *pathpolicy.Policy
	publisher Publisher
	logger    *slog.Logger
}

// NewWriter returns a Writer confined by policy. publisher may be nil.
func NewWriter(policy *pathpolicy.Policy, publisher Publisher, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{policy: policy, publisher: publisher, logger: logger}
}

// FileName returns the report file name for runID.
func FileName(runID string) string {
	return fmt.Sprintf("verify-%s.json", runID)
}

// Encode returns the canonical bytes of result.
func Encode(result *verify.Result) ([]byte, error) {
	data, err := canon.Marshal(result)
	if err != nil {
		return nil, failure.Wrap(failure.ClassRuntime, failure.CodeWriteFailed, "encode report", err)
	}
	return data, nil
}

// WriteReport writes result to outputDir (the report root when empty) and
// returns the file path.
func (w *Writer) WriteReport(result *verify.Result, outputDir string) (string, error) {
	if result == nil {
		return "", failure.Input(failure.CodeInvalidRequest, "report result is required")
	}
	if err := runid.Check(result.Meta.RunID); err != nil {
		return "", err
	}

	dir, err := w.policy.ResolveOutputDir(pathpolicy.KindReport, outputDir)
	if err != nil {
		return "", err
	}

	path, err := pathpolicy.Join(dir, FileName(result.Meta.RunID))
	if err != nil {
		return "", err
	}

	data, err := Encode(result)
	if err != nil {
		return "", err
	}

	if err := pathpolicy.WriteFileAtomic(path, data); err != nil {
		return "", failure.Wrap(failure.ClassRuntime, failure.CodeWriteFailed, "write report", err).
			WithDetail("path", path)
	}

	w.logger.Debug("report written", "path", path, "bytes", len(data))
	return path, nil
}

// ObjectKey returns the object-store key of a report:
// reports/{tenantId}/verify-{runId}.json.
func ObjectKey(result *verify.Result) (string, error) {
	if err := runid.Check(result.Meta.RunID); err != nil {
		return "", err
	}
	if !runid.Valid(result.Meta.TenantID) {
		return "", failure.Security(failure.CodePathTraversal,
			"tenant id %q cannot be used in an object key", result.Meta.TenantID)
	}
	return fmt.Sprintf("reports/%s/%s", result.Meta.TenantID, FileName(result.Meta.RunID)), nil
}

// Publish uploads the canonical report through the configured Publisher.
// It returns "" without error when no publisher is configured.
func (w *Writer) Publish(ctx context.Context, result *verify.Result) (string, error) {
	if w.publisher == nil {
		return "", nil
	}
	key, err := ObjectKey(result)
	if err != nil {
		return "", err
	}
	data, err := Encode(result)
	if err != nil {
		return "", err
	}
	location, err := w.publisher.Publish(ctx, key, data)
	if err != nil {
		return "", failure.Wrap(failure.ClassRuntime, failure.CodeWriteFailed, "publish report", err).
			WithDetail("key", key)
	}
	w.logger.Info("report published", "location", location)
	return location, nil
}
