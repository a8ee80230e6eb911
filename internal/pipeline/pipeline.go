// Package pipeline runs one seed: it validates the request, loads the
// scenario and (for FIXTURE and HYBRID runs) its golden fixture, produces or
// bypasses generation, persists the rows and optionally verifies them.
//
// Each step is appended to the run's manifest in the order it executes:
//
//	VALIDATE_INPUT -> LOAD_SCENARIO -> LOAD_FIXTURES -> EXECUTE -> VERIFY
//
// A failing step ends the run. Steps already recorded are never changed, and
// later steps are not recorded at all. LOAD_FIXTURES is recorded as SKIPPED in
// GENERATED mode. VERIFY is recorded only when the request asks for it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/seedkit/internal/failure"
	"github.com/roach88/seedkit/internal/fixture"
	"github.com/roach88/seedkit/internal/logging"
	"github.com/roach88/seedkit/internal/manifest"
	"github.com/roach88/seedkit/internal/provenance"
	"github.com/roach88/seedkit/internal/runid"
	"github.com/roach88/seedkit/internal/scenario"
	"github.com/roach88/seedkit/internal/simulate"
	"github.com/roach88/seedkit/internal/store"
	"github.com/roach88/seedkit/internal/verify"
)

// MaxDays bounds the day override of a request.
const MaxDays = 365

// ScenarioLoader resolves scenario ids and aliases.
type ScenarioLoader interface {
	Load(nameOrID string) (*scenario.Spec, error)
}

// FixtureLoader loads verified golden fixtures.
type FixtureLoader interface {
	LoadFixture(scenarioID string, seed int64) (*fixture.Golden, error)
}

// SeedWriter persists generated rows.
type SeedWriter interface {
	ReplaceSeed(ctx context.Context, b store.Batch) (store.Counts, error)
}

// Verifier checks persisted rows.
type Verifier interface {
	VerifyScenario(ctx context.Context, req verify.Request) (*verify.Result, error)
}

// ManifestWriter persists a finished manifest.
type ManifestWriter interface {
	Write(m *manifest.Manifest, dir string) (string, error)
}

// Deps are the collaborators of a Pipeline. Store, Verifier and Manifests
// may be nil when the runs never need them.
type Deps struct {
	Scenarios ScenarioLoader
	Fixtures  FixtureLoader
	Store     SeedWriter
	Verifier  Verifier
	Manifests ManifestWriter
	Logger    *slog.Logger
	Now       func() time.Time
	RunIDs    runid.Generator
}

// Pipeline executes seed runs. It holds no per-run state and may be reused.
type Pipeline struct {
	deps Deps
}

// New returns a Pipeline, filling in defaults for the optional dependencies.
func New(deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.RunIDs == nil {
		deps.RunIDs = runid.UUIDv7Generator{}
	}
	return &Pipeline{deps: deps}
}

// Request describes one seed run.
type Request struct {
	ScenarioID string
	TenantID   string
	Mode       manifest.Mode
	Seed       int64
	// Days overrides the scenario's day count when positive.
	Days int
	// Platforms is a comma-separated list. Empty selects every seedable
	// platform.
	Platforms string
	DryRun    bool
	// Verify runs the verification service after rows are persisted.
	Verify bool
	// RunID is generated when empty.
	RunID string

	WriteManifest bool
	// ManifestDir overrides the default manifest root.
	ManifestDir string
}

// run is the state of one execution.
type run struct {
	*Pipeline
	req    Request
	m      *manifest.Manifest
	logger *slog.Logger

	platforms []string
	spec      *scenario.Spec
	days      int
	golden    *fixture.Golden
	persisted int
}

// Run executes req and returns its manifest, which is never nil.
//
// When a step fails the returned error is its cause and failure.ExitCode(err)
// equals the manifest's exit code. A manifest that could not be written is
// reported only when the run itself succeeded: the write error is returned and
// the manifest is left as finished, still recording the run's SUCCESS.
func (p *Pipeline) Run(ctx context.Context, req Request) (*manifest.Manifest, error) {
	if req.Mode == "" {
		req.Mode = manifest.ModeGenerated
	}
	runID := req.RunID
	if runID == "" {
		runID = p.deps.RunIDs.Generate()
	}

	r := &run{
		Pipeline: p,
		req:      req,
		logger:   p.deps.Logger.With("run_id", runID, "scenario", req.ScenarioID, "tenant_id", req.TenantID),
		m: manifest.New(manifest.Header{
			RunID:      runID,
			ScenarioID: req.ScenarioID,
			TenantID:   req.TenantID,
			Mode:       req.Mode,
			Seed:       req.Seed,
			Days:       req.Days,
			DryRun:     req.DryRun,
		}, p.deps.Now()),
	}
	r.logger.Info("seed run started", "mode", req.Mode, "dry_run", req.DryRun)

	err := r.execute(ctx)
	if err != nil {
		status := manifest.StatusFailed
		if blocked(err) {
			status = manifest.StatusBlocked
		}
		r.m.Finish(status, failure.ExitCode(err), p.deps.Now())
		r.logger.Warn("seed run failed", "status", status, "exit_code", r.m.ExitCode, "error", err)
	} else {
		r.m.Finish(manifest.StatusSuccess, failure.ExitSuccess, p.deps.Now())
		r.logger.Info("seed run complete",
			"planned_rows", r.m.Results.WritesPlanned.EstimatedCounts.TotalRows,
			"applied_rows", r.m.Results.WritesApplied.ActualCounts.TotalRows)
	}

	if req.WriteManifest && p.deps.Manifests != nil {
		path, werr := p.deps.Manifests.Write(r.m, req.ManifestDir)
		if werr != nil {
			r.logger.Error("manifest not written", "error", werr)
			if err == nil {
				return r.m, werr
			}
		} else {
			r.logger.Debug("manifest written", "path", path)
		}
	}
	return r.m, err
}

// stepError marks an error whose step has already been recorded.
type stepError struct {
	err     error
	blocked bool
}

func (e *stepError) Error() string { return e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

func blocked(err error) bool {
	var se *stepError
	if errors.As(err, &se) && se.blocked {
		return true
	}
	return failure.ClassOf(err) == failure.ClassSecurity
}

func (r *run) execute(ctx context.Context) error {
	steps := []func(context.Context) error{
		r.validateInput,
		r.loadScenario,
		r.loadFixtures,
		r.executeMode,
		r.verify,
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return failure.Wrap(failure.ClassRuntime, failure.CodeInternal, "seed run cancelled", err)
		}
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) record(name manifest.StepName, status manifest.StepStatus, summary string) {
	summary = logging.Redact(summary)
	r.m.Append(name, status, summary)
	r.logger.Debug("step recorded", "step", name, "status", status, "summary", summary)
}

func (r *run) fail(name manifest.StepName, err error) error {
	r.record(name, manifest.StepFailed, err.Error())
	return err
}

// validateInput checks the request before anything is read or generated.
// Every failure here ends the run BLOCKED.
func (r *run) validateInput(context.Context) error {
	err := r.checkRequest()
	if err != nil {
		r.record(manifest.StepValidateInput, manifest.StepFailed, err.Error())
		return &stepError{err: err, blocked: true}
	}
	r.m.Platforms = append([]string{}, r.platforms...)
	r.record(manifest.StepValidateInput, manifest.StepSuccess,
		fmt.Sprintf("%d platform(s) accepted: %s", len(r.platforms), strings.Join(r.platforms, ", ")))
	return nil
}

func (r *run) checkRequest() error {
	if err := runid.Check(r.m.RunID); err != nil {
		return err
	}
	if strings.TrimSpace(r.req.TenantID) == "" {
		return failure.Input(failure.CodeInvalidRequest, "tenant id is required")
	}
	mode, ok := manifest.ParseMode(string(r.req.Mode))
	if !ok {
		return failure.Input(failure.CodeInvalidRequest,
			"mode %q must be one of %s, %s, %s", r.req.Mode,
			manifest.ModeGenerated, manifest.ModeFixture, manifest.ModeHybrid)
	}
	r.req.Mode = mode
	r.m.Mode = mode
	if r.req.Days < 0 || r.req.Days > MaxDays {
		return failure.Input(failure.CodeInvalidDays, "days must be an integer in [1, %d]", MaxDays)
	}
	platforms, err := simulate.ParsePlatforms(r.req.Platforms)
	if err != nil {
		return err
	}
	r.platforms = platforms
	return nil
}

func (r *run) loadScenario(context.Context) error {
	spec, err := r.deps.Scenarios.Load(r.req.ScenarioID)
	if err != nil {
		return r.fail(manifest.StepLoadScenario, err)
	}
	r.spec = spec
	r.days = spec.EffectiveDays(r.req.Days)
	r.m.ScenarioID = spec.ScenarioID
	r.m.SetDays(r.days)

	summary := fmt.Sprintf("loaded scenario %s (%s, %d days)", spec.ScenarioID, spec.Trend, r.days)
	if spec.ScenarioID != r.req.ScenarioID {
		summary += fmt.Sprintf(" via alias %q", r.req.ScenarioID)
	}
	r.record(manifest.StepLoadScenario, manifest.StepSuccess, summary)
	return nil
}

func (r *run) loadFixtures(context.Context) error {
	if r.req.Mode == manifest.ModeGenerated {
		r.record(manifest.StepLoadFixtures, manifest.StepSkipped, "fixtures are not used in GENERATED mode")
		return nil
	}
	if r.deps.Fixtures == nil {
		return r.fail(manifest.StepLoadFixtures,
			failure.New(failure.ClassRuntime, failure.CodeInternal, "no fixture provider configured"))
	}
	g, err := r.deps.Fixtures.LoadFixture(r.spec.ScenarioID, r.req.Seed)
	if err != nil {
		return r.fail(manifest.StepLoadFixtures, err)
	}
	r.golden = g
	r.m.SetFixtureChecksum(g.Checksum)
	r.record(manifest.StepLoadFixtures, manifest.StepSuccess,
		fmt.Sprintf("loaded fixture %s (%d metric rows, %s)",
			fixture.FileName(r.spec.ScenarioID, r.req.Seed), g.Shape.TotalMetricRows, g.Checksum))
	return nil
}

func (r *run) executeMode(ctx context.Context) error {
	if r.req.Mode == manifest.ModeFixture {
		shape := r.golden.Shape
		r.m.SetPlanned(manifest.NewCounts(shape.TotalCampaigns, shape.TotalMetricRows))
		r.m.SetApplied(manifest.Counts{})
		r.record(manifest.StepExecute, manifest.StepSuccess,
			fmt.Sprintf("generation bypassed; fixture shape declares %d campaigns and %d metric rows",
				shape.TotalCampaigns, shape.TotalMetricRows))
		return nil
	}

	out := simulate.Generate(simulate.Input{
		Spec:      r.spec,
		Seed:      r.req.Seed,
		Days:      r.days,
		Platforms: r.platforms,
		TenantID:  r.req.TenantID,
	})
	shape := simulate.ShapeOf(out)
	r.m.SetPlanned(manifest.NewCounts(shape.TotalCampaigns, shape.TotalMetricRows))

	if r.req.Mode == manifest.ModeHybrid {
		if diff := fixture.Diff(shape, r.golden.Shape); diff != "" {
			err := failure.Input(failure.CodeShapeMismatch, "generated shape does not match fixture shape").
				WithDetail("diff", diff)
			r.logger.Debug("shape mismatch", "diff", diff)
			return r.fail(manifest.StepExecute, err)
		}
	}

	if r.req.DryRun {
		r.m.SetApplied(manifest.Counts{})
		r.record(manifest.StepExecute, manifest.StepSuccess,
			fmt.Sprintf("dry run: planned %d campaigns and %d metric rows across %d platform(s); nothing written",
				shape.TotalCampaigns, shape.TotalMetricRows, len(r.platforms)))
		return nil
	}

	if r.deps.Store == nil {
		return r.fail(manifest.StepExecute,
			failure.New(failure.ClassRuntime, failure.CodeStoreError, "no metrics store configured"))
	}
	counts, err := r.deps.Store.ReplaceSeed(ctx, store.Batch{
		TenantID:  r.req.TenantID,
		Source:    provenance.Source(r.spec.ScenarioID),
		CreatedAt: r.deps.Now().UTC().Format(time.RFC3339),
		Campaigns: out.Campaigns,
		Rows:      out.Rows,
	})
	if err != nil {
		return r.fail(manifest.StepExecute,
			failure.Wrap(failure.ClassRuntime, failure.CodeStoreError, "persist generated rows", err))
	}
	r.persisted = int(counts.MetricRows)
	r.m.SetApplied(manifest.NewCounts(int(counts.Campaigns), int(counts.MetricRows)))

	summary := fmt.Sprintf("wrote %d campaigns and %d metric rows across %d platform(s)",
		counts.Campaigns, counts.MetricRows, len(r.platforms))
	if r.req.Mode == manifest.ModeHybrid {
		summary += "; shape matches fixture"
	}
	r.record(manifest.StepExecute, manifest.StepSuccess, summary)
	return nil
}

func (r *run) verify(ctx context.Context) error {
	if !r.req.Verify {
		return nil
	}
	if r.persisted == 0 {
		r.record(manifest.StepVerify, manifest.StepSkipped, "no rows were persisted by this run")
		return nil
	}
	if r.deps.Verifier == nil {
		return r.fail(manifest.StepVerify,
			failure.New(failure.ClassRuntime, failure.CodeInternal, "no verifier configured"))
	}

	res, err := r.deps.Verifier.VerifyScenario(ctx, verify.Request{
		ScenarioID: r.spec.ScenarioID,
		TenantID:   r.req.TenantID,
		RunID:      r.m.RunID,
		Days:       r.days,
	})
	if err != nil {
		return r.fail(manifest.StepVerify, err)
	}

	s := res.Summary
	summary := fmt.Sprintf("verification %s: %d passed, %d failed, %d warned of %d checks",
		s.Status, s.Passed, s.Failed, s.Warned, s.Total)
	if !res.Passed() {
		return r.fail(manifest.StepVerify,
			failure.New(failure.ClassRuntime, failure.CodeVerificationFailed, summary))
	}
	r.record(manifest.StepVerify, manifest.StepSuccess, summary)
	return nil
}
