package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/seedkit/internal/failure"
	"github.com/roach88/seedkit/internal/fixture"
	"github.com/roach88/seedkit/internal/logging"
	"github.com/roach88/seedkit/internal/manifest"
	"github.com/roach88/seedkit/internal/pathpolicy"
	"github.com/roach88/seedkit/internal/rules"
	"github.com/roach88/seedkit/internal/runid"
	"github.com/roach88/seedkit/internal/scenario"
	"github.com/roach88/seedkit/internal/store"
	"github.com/roach88/seedkit/internal/testutil"
	"github.com/roach88/seedkit/internal/verify"
)

type fakeStore struct {
	mu      sync.Mutex
	batches []store.Batch
	err     error
}

func (f *fakeStore) ReplaceSeed(_ context.Context, b store.Batch) (store.Counts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, b)
	if f.err != nil {
		return store.Counts{}, f.err
	}
	return store.Counts{Campaigns: int64(len(b.Campaigns)), MetricRows: int64(len(b.Rows))}, nil
}

func (f *fakeStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

type fakeVerifier struct {
	requests []verify.Request
	status   rules.Status
	err      error
}

func (f *fakeVerifier) VerifyScenario(_ context.Context, req verify.Request) (*verify.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &verify.Result{Summary: verify.Summary{Status: f.status, Total: 10, Passed: 9, Failed: 1}}, nil
}

type env struct {
	dir      string
	fixtures string
	store    *fakeStore
	verifier *fakeVerifier
	pipeline *Pipeline
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	scenarios := filepath.Join(dir, "scenarios")
	testutil.WriteScenario(t, scenarios, "steady-state.yaml", testutil.ScenarioYAML)

	e := &env{
		dir:      dir,
		fixtures: filepath.Join(dir, "fixtures"),
		store:    &fakeStore{},
		verifier: &fakeVerifier{status: rules.StatusPass},
	}
	e.pipeline = New(Deps{
		Scenarios: scenario.NewLoader(scenarios, logging.Discard()),
		Fixtures:  fixture.NewProvider(e.fixtures),
		Store:     e.store,
		Verifier:  e.verifier,
		Manifests: manifest.NewWriter(pathpolicy.New(dir, nil)),
		Logger:    logging.Discard(),
		Now:       testutil.NewDefaultClock().Now,
		RunIDs:    runid.FixedGenerator("run-1"),
	})
	return e
}

func baseRequest() Request {
	return Request{
		ScenarioID: "steady-state",
		TenantID:   "tenant-a",
		Mode:       manifest.ModeGenerated,
		Seed:       42,
		Platforms:  "line,shopee",
	}
}

// generatedShape is the shape of baseRequest's generation: two platforms,
// two campaigns each, seven days.
func generatedShape() fixture.Shape {
	return fixture.Shape{
		TotalCampaigns:  4,
		TotalMetricRows: 28,
		PerPlatform: map[string]fixture.PlatformShape{
			"line":   {Campaigns: 2, MetricRows: 14},
			"shopee": {Campaigns: 2, MetricRows: 14},
		},
	}
}

func stepNames(m *manifest.Manifest) []manifest.StepName {
	var out []manifest.StepName
	for _, s := range m.StepList() {
		out = append(out, s.Name)
	}
	return out
}

func stepStatuses(m *manifest.Manifest) []manifest.StepStatus {
	var out []manifest.StepStatus
	for _, s := range m.StepList() {
		out = append(out, s.Status)
	}
	return out
}

func TestGeneratedRun(t *testing.T) {
	e := newEnv(t)

	m, err := e.pipeline.Run(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, []manifest.StepName{
		manifest.StepValidateInput,
		manifest.StepLoadScenario,
		manifest.StepLoadFixtures,
		manifest.StepExecute,
	}, stepNames(m))
	assert.Equal(t, []manifest.StepStatus{
		manifest.StepSuccess,
		manifest.StepSuccess,
		manifest.StepSkipped,
		manifest.StepSuccess,
	}, stepStatuses(m))

	assert.Equal(t, manifest.StatusSuccess, m.Status)
	assert.Equal(t, 0, m.ExitCode)
	assert.Equal(t, "run-1", m.RunID)
	assert.Equal(t, 7, m.Days)
	assert.Equal(t, []string{"line", "shopee"}, m.Platforms)
	assert.Equal(t, 28, m.Results.WritesPlanned.EstimatedCounts.TotalRows)
	assert.Equal(t, manifest.NewCounts(4, 28), m.Results.WritesApplied.ActualCounts)
	assert.Empty(t, m.ManifestPath)

	require.Equal(t, 1, e.store.calls())
	b := e.store.batches[0]
	assert.Equal(t, "tenant-a", b.TenantID)
	assert.Equal(t, "toolkit:steady-state", b.Source)
	assert.Len(t, b.Campaigns, 4)
	assert.Len(t, b.Rows, 28)
	assert.Equal(t, "2024-01-01T12:00:00Z", b.CreatedAt)
}

func TestGeneratedRunIsDeterministic(t *testing.T) {
	e := newEnv(t)

	_, err := e.pipeline.Run(context.Background(), baseRequest())
	require.NoError(t, err)
	_, err = e.pipeline.Run(context.Background(), baseRequest())
	require.NoError(t, err)

	require.Equal(t, 2, e.store.calls())
	assert.Equal(t, e.store.batches[0].Rows, e.store.batches[1].Rows)
	assert.Equal(t, e.store.batches[0].Campaigns, e.store.batches[1].Campaigns)
}

func TestAliasAndDayOverride(t *testing.T) {
	e := newEnv(t)
	req := baseRequest()
	req.ScenarioID = "steady"
	req.Days = 3
	req.Platforms = "line"

	m, err := e.pipeline.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "steady-state", m.ScenarioID)
	assert.Equal(t, 3, m.Days)
	assert.Equal(t, 6, m.Results.WritesApplied.ActualCounts.TotalRows)
	assert.Contains(t, m.Steps[1].Summary, `via alias "steady"`)
}

func TestDisallowedPlatformBlocksRun(t *testing.T) {
	e := newEnv(t)
	req := baseRequest()
	req.Platforms = "line,instagram"

	m, err := e.pipeline.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.CodePlatformNotSeedable))

	assert.Equal(t, manifest.StatusBlocked, m.Status)
	assert.Equal(t, failure.ExitValidationFailed, m.ExitCode)
	assert.Equal(t, m.ExitCode, failure.ExitCode(err))

	require.Len(t, m.Steps, 1)
	step := m.Steps[0]
	assert.Equal(t, manifest.StepValidateInput, step.Name)
	assert.Equal(t, manifest.StepFailed, step.Status)
	assert.Contains(t, step.Summary, "instagram")
	assert.Contains(t, step.Summary, "lazada, line, shopee")

	assert.Zero(t, e.store.calls())
	assert.Zero(t, m.Results.WritesPlanned.EstimatedCounts.TotalRows)
}

func TestInvalidRequestsAreBlocked(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
		code   failure.Code
		exit   int
	}{
		{"missing tenant", func(r *Request) { r.TenantID = " " }, failure.CodeInvalidRequest, failure.ExitValidationFailed},
		{"unknown mode", func(r *Request) { r.Mode = "REPLAY" }, failure.CodeInvalidRequest, failure.ExitValidationFailed},
		{"days out of range", func(r *Request) { r.Days = 400 }, failure.CodeInvalidDays, failure.ExitValidationFailed},
		{"unsafe run id", func(r *Request) { r.RunID = "../x" }, failure.CodeInvalidRunID, failure.ExitBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			req := baseRequest()
			tt.mutate(&req)

			m, err := e.pipeline.Run(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, tt.code, failure.CodeOf(err))
			assert.Equal(t, manifest.StatusBlocked, m.Status)
			assert.Equal(t, tt.exit, m.ExitCode)
			assert.Equal(t, []manifest.StepName{manifest.StepValidateInput}, stepNames(m))
		})
	}
}

func TestModeIsCaseInsensitive(t *testing.T) {
	e := newEnv(t)
	req := baseRequest()
	req.Mode = "generated"

	m, err := e.pipeline.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, manifest.ModeGenerated, m.Mode)
	assert.Equal(t, manifest.StepSkipped, m.Steps[2].Status)
}

func TestScenarioFailures(t *testing.T) {
	tests := []struct {
		name     string
		scenario string
		status   manifest.Status
		exit     int
	}{
		{"not found", "checkout-growth", manifest.StatusFailed, failure.ExitValidationFailed},
		{"bad format", "Checkout_Growth", manifest.StatusFailed, failure.ExitValidationFailed},
		{"traversal", "../steady-state", manifest.StatusBlocked, failure.ExitBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			req := baseRequest()
			req.ScenarioID = tt.scenario

			m, err := e.pipeline.Run(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, tt.status, m.Status)
			assert.Equal(t, tt.exit, m.ExitCode)
			assert.Equal(t, []manifest.StepStatus{manifest.StepSuccess, manifest.StepFailed}, stepStatuses(m))
			assert.Zero(t, e.store.calls())
		})
	}
}

func TestDryRunPlansWithoutWriting(t *testing.T) {
	e := newEnv(t)
	req := baseRequest()
	req.DryRun = true
	req.Verify = true

	m, err := e.pipeline.Run(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, m.DryRun)
	assert.Equal(t, 28, m.Results.WritesPlanned.EstimatedCounts.TotalRows)
	assert.Equal(t, manifest.Counts{}, m.Results.WritesApplied.ActualCounts)
	assert.Contains(t, m.Steps[3].Summary, "dry run")
	assert.Zero(t, e.store.calls())

	last, ok := m.LastStep()
	require.True(t, ok)
	assert.Equal(t, manifest.StepVerify, last.Name)
	assert.Equal(t, manifest.StepSkipped, last.Status)
	assert.Empty(t, e.verifier.requests)
}

func TestFixtureModeNeverTouchesStore(t *testing.T) {
	e := newEnv(t)
	shape := fixture.Shape{
		TotalCampaigns:  2,
		TotalMetricRows: 60,
		PerPlatform:     map[string]fixture.PlatformShape{"line": {Campaigns: 2, MetricRows: 60}},
	}
	g := testutil.WriteFixture(t, e.fixtures, "steady-state", 42, shape)

	req := baseRequest()
	req.Mode = manifest.ModeFixture
	req.Verify = true

	m, err := e.pipeline.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []manifest.StepStatus{
		manifest.StepSuccess,
		manifest.StepSuccess,
		manifest.StepSuccess,
		manifest.StepSuccess,
		manifest.StepSkipped,
	}, stepStatuses(m))
	assert.Contains(t, m.Steps[3].Summary, "generation bypassed")
	assert.Equal(t, g.Checksum, m.FixtureChecksum)
	assert.Equal(t, 60, m.Results.WritesPlanned.EstimatedCounts.TotalRows)
	assert.Zero(t, m.Results.WritesApplied.ActualCounts.TotalRows)
	assert.Zero(t, e.store.calls())
	assert.Empty(t, e.verifier.requests)
}

func TestFixtureNotFound(t *testing.T) {
	e := newEnv(t)
	req := baseRequest()
	req.Mode = manifest.ModeFixture

	m, err := e.pipeline.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.CodeFixtureNotFound))
	assert.Equal(t, manifest.StatusFailed, m.Status)
	assert.Equal(t, failure.ExitValidationFailed, m.ExitCode)

	last, _ := m.LastStep()
	assert.Equal(t, manifest.StepLoadFixtures, last.Name)
	assert.Equal(t, manifest.StepFailed, last.Status)
}

func TestHybridShapeMismatch(t *testing.T) {
	e := newEnv(t)
	shape := generatedShape()
	shape.TotalMetricRows = 999
	testutil.WriteFixture(t, e.fixtures, "steady-state", 42, shape)

	req := baseRequest()
	req.Mode = manifest.ModeHybrid

	m, err := e.pipeline.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.CodeShapeMismatch))

	assert.Equal(t, manifest.StatusFailed, m.Status)
	assert.Equal(t, failure.ExitValidationFailed, m.ExitCode)
	last, _ := m.LastStep()
	assert.Equal(t, manifest.StepExecute, last.Name)
	assert.Equal(t, manifest.StepFailed, last.Status)
	assert.Contains(t, last.Summary, "generated shape does not match fixture shape")
	assert.Zero(t, e.store.calls())
}

func TestHybridPerPlatformMismatch(t *testing.T) {
	e := newEnv(t)
	shape := generatedShape()
	shape.PerPlatform["line"] = fixture.PlatformShape{Campaigns: 1, MetricRows: 14}
	testutil.WriteFixture(t, e.fixtures, "steady-state", 42, shape)

	req := baseRequest()
	req.Mode = manifest.ModeHybrid

	_, err := e.pipeline.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.CodeShapeMismatch))
}

func TestHybridMatchPersists(t *testing.T) {
	e := newEnv(t)
	testutil.WriteFixture(t, e.fixtures, "steady-state", 42, generatedShape())

	req := baseRequest()
	req.Mode = manifest.ModeHybrid

	m, err := e.pipeline.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, manifest.StatusSuccess, m.Status)
	assert.Contains(t, m.Steps[3].Summary, "shape matches fixture")
	assert.Equal(t, 1, e.store.calls())
	assert.Equal(t, 28, m.Results.WritesApplied.ActualCounts.TotalRows)
}

func TestStoreErrorIsRedacted(t *testing.T) {
	e := newEnv(t)
	e.store.err = errors.New("dial postgres://seed:hunter2@db:5432/metrics: connection refused")

	m, err := e.pipeline.Run(context.Background(), baseRequest())
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.CodeStoreError))
	assert.Equal(t, manifest.StatusFailed, m.Status)
	assert.Equal(t, failure.ExitFailure, m.ExitCode)

	last, _ := m.LastStep()
	assert.Equal(t, manifest.StepExecute, last.Name)
	assert.NotContains(t, last.Summary, "hunter2")
	assert.Contains(t, last.Summary, "postgres://seed:***@db")
}

func TestVerifyAfterPersist(t *testing.T) {
	e := newEnv(t)
	req := baseRequest()
	req.Verify = true

	m, err := e.pipeline.Run(context.Background(), req)
	require.NoError(t, err)

	last, _ := m.LastStep()
	assert.Equal(t, manifest.StepVerify, last.Name)
	assert.Equal(t, manifest.StepSuccess, last.Status)
	assert.Contains(t, last.Summary, "verification PASS")

	require.Len(t, e.verifier.requests, 1)
	assert.Equal(t, verify.Request{
		ScenarioID: "steady-state",
		TenantID:   "tenant-a",
		RunID:      "run-1",
		Days:       7,
	}, e.verifier.requests[0])
}

func TestVerifyFailure(t *testing.T) {
	e := newEnv(t)
	e.verifier.status = rules.StatusFail
	req := baseRequest()
	req.Verify = true

	m, err := e.pipeline.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.CodeVerificationFailed))
	assert.Equal(t, manifest.StatusFailed, m.Status)
	assert.Equal(t, failure.ExitVerificationFailed, m.ExitCode)

	last, _ := m.LastStep()
	assert.Equal(t, manifest.StepFailed, last.Status)
	assert.Contains(t, last.Summary, "verification FAIL")
}

func TestVerifyWithoutRequestIsNotRecorded(t *testing.T) {
	e := newEnv(t)

	m, err := e.pipeline.Run(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.NotContains(t, stepNames(m), manifest.StepVerify)
	assert.Empty(t, e.verifier.requests)
}

func TestManifestWritten(t *testing.T) {
	e := newEnv(t)
	req := baseRequest()
	req.WriteManifest = true

	m, err := e.pipeline.Run(context.Background(), req)
	require.NoError(t, err)

	want := filepath.Join(e.dir, "toolkit-manifests", "seed-run-1.json")
	assert.Equal(t, want, m.ManifestPath)

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "SUCCESS", doc["status"])
	assert.Len(t, doc["steps"], 4)
}

func TestManifestWrittenForBlockedRun(t *testing.T) {
	e := newEnv(t)
	req := baseRequest()
	req.Platforms = "instagram"
	req.WriteManifest = true

	m, err := e.pipeline.Run(context.Background(), req)
	require.Error(t, err)
	assert.FileExists(t, m.ManifestPath)
}

func TestManifestOutsideAllowedRoots(t *testing.T) {
	e := newEnv(t)
	req := baseRequest()
	req.WriteManifest = true
	req.ManifestDir = t.TempDir()

	m, err := e.pipeline.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.CodeOutputPathNotAllowed))
	assert.Equal(t, failure.ExitBlocked, failure.ExitCode(err))

	// The run itself succeeded and its record is not rewritten.
	assert.Equal(t, manifest.StatusSuccess, m.Status)
	assert.Equal(t, failure.ExitSuccess, m.ExitCode)
	assert.Empty(t, m.ManifestPath)
	last, ok := m.LastStep()
	require.True(t, ok)
	assert.Equal(t, manifest.StepExecute, last.Name)
}

func TestCancelledContext(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m, err := e.pipeline.Run(ctx, baseRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, manifest.StatusFailed, m.Status)
	assert.Empty(t, m.Steps)
}
