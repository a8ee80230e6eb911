// Package verify independently checks mock data already persisted in the
// metrics store.
//
// Verification is strictly read-only: the service depends on a Reader that
// can only count and aggregate. Every query carries the tenant and the
// toolkit provenance filter (is_mock_data = true, source prefix "toolkit:"),
// except the mock-flag consistency count, which looks for toolkit-sourced
// rows with is_mock_data = false.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/seedkit/internal/failure"
	"github.com/roach88/seedkit/internal/metricquery"
	"github.com/roach88/seedkit/internal/rules"
	"github.com/roach88/seedkit/internal/runid"
	"github.com/roach88/seedkit/internal/scenario"
	"github.com/roach88/seedkit/internal/store"
	"github.com/roach88/seedkit/internal/version"
)

// Reader is the read-only view of the metrics store.
type Reader interface {
	CountMetrics(ctx context.Context, pred metricquery.Predicate) (int64, error)
	AggregateMetrics(ctx context.Context, pred metricquery.Predicate) ([]store.Aggregate, error)
}

// ScenarioLoader resolves scenario ids and aliases.
type ScenarioLoader interface {
	Load(nameOrID string) (*scenario.Spec, error)
}

// Options configures a Service. Zero values select defaults.
type Options struct {
	Logger  *slog.Logger
	Now     func() time.Time
	RunIDs  runid.Generator
	Version string
	// Rules are evaluated after the built-in business and anomaly catalogs
	// on every run.
	Rules []rules.Rule
}

// Request selects what to verify.
type Request struct {
	ScenarioID string
	TenantID   string
	// RunID is generated when empty.
	RunID  string
	DryRun bool
	// Days overrides the scenario's day count when positive.
	Days int
	// ExtraRules are appended after Options.Rules for this run only.
	ExtraRules []rules.Rule
}

// Service runs verifications.
type Service struct {
	scenarios ScenarioLoader
	reader    Reader
	evaluator *rules.Evaluator
	logger    *slog.Logger
	now       func() time.Time
	runIDs    runid.Generator
	version   string
	custom    []rules.Rule
}

// NewService wires a Service from its collaborators.
func NewService(scenarios ScenarioLoader, reader Reader, evaluator *rules.Evaluator, opts Options) *Service {
	s := &Service{
		scenarios: scenarios,
		reader:    reader,
		evaluator: evaluator,
		logger:    opts.Logger,
		now:       opts.Now,
		runIDs:    opts.RunIDs,
		version:   opts.Version,
		custom:    append([]rules.Rule(nil), opts.Rules...),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.runIDs == nil {
		s.runIDs = runid.UUIDv7Generator{}
	}
	if s.version == "" {
		s.version = version.Version
	}
	return s
}

// observations are the raw query results of one run.
type observations struct {
	outsideWindow int64
	mistagged     int64
	withinWindow  int64
	aggregates    []store.Aggregate
}

// VerifyScenario verifies the tenant's persisted rows for one scenario.
//
// Query and rule failures do not abort the run: they surface as a single
// SYS-ERR RULE_EVAL_ERROR FAIL check. Only request, scenario-loading and
// context errors are returned as errors.
func (s *Service) VerifyScenario(ctx context.Context, req Request) (*Result, error) {
	started := s.now()

	if req.TenantID == "" {
		return nil, failure.Input(failure.CodeInvalidRequest, "tenant id is required")
	}
	if req.ScenarioID == "" {
		return nil, failure.Input(failure.CodeInvalidRequest, "scenario id is required")
	}
	runID := req.RunID
	if runID == "" {
		runID = s.runIDs.Generate()
	}

	spec, err := s.scenarios.Load(req.ScenarioID)
	if err != nil {
		return nil, err
	}

	window := spec.Window(spec.EffectiveDays(req.Days))
	logger := s.logger.With("run_id", runID, "scenario", spec.ScenarioID, "tenant", req.TenantID)
	logger.Debug("verifying", "window", window.String())

	var checks []rules.Check
	obs, err := s.observe(ctx, req.TenantID, window)
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, failure.Wrap(failure.ClassRuntime, failure.CodeStoreError, "verification cancelled", ctx.Err())
	case err != nil:
		logger.Error("verification query failed", "error", err)
		checks = []rules.Check{systemError(err)}
	default:
		checks = integrityChecks(obs, window)
		ruleChecks, err := s.evaluate(obs.aggregates, s.catalog(req.ExtraRules))
		if err != nil {
			logger.Error("rule evaluation failed", "error", err)
			ruleChecks = []rules.Check{systemError(err)}
		}
		checks = append(checks, ruleChecks...)
	}

	finished := s.now()
	summary := Summarize(checks)
	summary.DurationMs = finished.Sub(started).Milliseconds()

	result := &Result{
		Meta: Meta{
			Version:    s.version,
			Generator:  version.Generator,
			Timestamp:  finished.UTC().Format(TimestampLayout),
			RunID:      runID,
			ScenarioID: spec.ScenarioID,
			TenantID:   req.TenantID,
			DryRun:     req.DryRun,
		},
		Summary:    summary,
		Results:    checks,
		Provenance: toolkitProvenance(),
	}

	logger.Info("verification complete",
		"status", summary.Status,
		"total", summary.Total,
		"failed", summary.Failed,
		"warned", summary.Warned,
	)
	return result, nil
}

// observe issues the three counts and the aggregate query concurrently.
// Each query writes its own field, so results do not depend on completion
// order.
func (s *Service) observe(ctx context.Context, tenantID string, w scenario.Window) (observations, error) {
	var obs observations
	base := metricquery.Provenance(tenantID)
	start, end := w.StartDate(), w.EndDate()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(guard("date window count", func() (err error) {
		obs.outsideWindow, err = s.reader.CountMetrics(gctx, metricquery.AllOf(base, metricquery.Outside{From: start, To: end}))
		return err
	}))
	g.Go(guard("mock flag count", func() (err error) {
		obs.mistagged, err = s.reader.CountMetrics(gctx, metricquery.MistaggedProvenance(tenantID))
		return err
	}))
	g.Go(guard("row count", func() (err error) {
		obs.withinWindow, err = s.reader.CountMetrics(gctx, metricquery.AllOf(base, metricquery.Within{From: start, To: end}))
		return err
	}))
	g.Go(guard("aggregate", func() (err error) {
		obs.aggregates, err = s.reader.AggregateMetrics(gctx, metricquery.AllOf(base, metricquery.Within{From: start, To: end}))
		return err
	}))

	if err := g.Wait(); err != nil {
		return observations{}, err
	}
	return obs, nil
}

// guard converts a panic in fn into an error.
func guard(name string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("%s query panicked: %v", name, p)
			}
		}()
		if err := fn(); err != nil {
			return fmt.Errorf("%s query: %w", name, err)
		}
		return nil
	}
}

// catalog returns the rules applied to each aggregate, in evaluation order.
func (s *Service) catalog(extra []rules.Rule) []rules.Rule {
	catalog := append(rules.BusinessRules(), rules.AnomalyRules()...)
	catalog = append(catalog, s.custom...)
	return append(catalog, extra...)
}

// evaluate runs the catalog over every aggregate in the order returned.
func (s *Service) evaluate(aggregates []store.Aggregate, catalog []rules.Rule) (checks []rules.Check, err error) {
	defer func() {
		if p := recover(); p != nil {
			checks, err = nil, fmt.Errorf("rule evaluation panicked: %v", p)
		}
	}()
	for _, a := range aggregates {
		checks = append(checks, s.evaluator.Evaluate(ruleAggregate(a), catalog)...)
	}
	return checks, nil
}

func ruleAggregate(a store.Aggregate) rules.Aggregate {
	return rules.Aggregate{
		CampaignID:  a.CampaignID,
		Platform:    a.Platform,
		Impressions: a.Impressions,
		Clicks:      a.Clicks,
		Spend:       a.Spend,
		Conversions: a.Conversions,
		Revenue:     a.Revenue,
		IsMockData:  a.IsMockData,
		Source:      a.Source,
	}
}

// integrityChecks returns INT-003, INT-004 and INT-001, in that order.
func integrityChecks(obs observations, w scenario.Window) []rules.Check {
	windowDetails := func(key string, n int64) map[string]any {
		return map[string]any{key: n, "windowStart": w.StartDate(), "windowEnd": w.EndDate()}
	}

	drift := rules.Check{
		RuleID:   RuleDateWindow,
		Name:     NameDateWindow,
		Status:   rules.StatusPass,
		Severity: rules.SeverityFail,
		Message:  fmt.Sprintf("all toolkit rows fall within %s", w),
		Details:  windowDetails("outsideWindow", obs.outsideWindow),
	}
	if obs.outsideWindow > 0 {
		drift.Status = rules.StatusFail
		drift.Message = fmt.Sprintf("%d toolkit rows fall outside %s", obs.outsideWindow, w)
	}

	consistency := rules.Check{
		RuleID:   RuleMockFlag,
		Name:     NameMockFlag,
		Status:   rules.StatusPass,
		Severity: rules.SeverityFail,
		Message:  "every toolkit-sourced row is flagged as mock data",
		Details:  map[string]any{"mistaggedRows": obs.mistagged},
	}
	if obs.mistagged > 0 {
		consistency.Status = rules.StatusFail
		consistency.Message = fmt.Sprintf("%d toolkit-sourced rows are not flagged as mock data", obs.mistagged)
	}

	total := rules.Check{
		RuleID:   RuleRowCount,
		Name:     NameRowCount,
		Status:   rules.StatusPass,
		Severity: rules.SeverityFail,
		Message:  fmt.Sprintf("%d toolkit rows within %s", obs.withinWindow, w),
		Details:  windowDetails("rowCount", obs.withinWindow),
	}
	if obs.withinWindow == 0 {
		total.Status = rules.StatusFail
		total.Message = fmt.Sprintf("no toolkit rows within %s", w)
	}

	return []rules.Check{drift, consistency, total}
}

func systemError(err error) rules.Check {
	return rules.Check{
		RuleID:   RuleSystemError,
		Name:     NameRuleEvalError,
		Status:   rules.StatusFail,
		Severity: rules.SeverityFail,
		Message:  fmt.Sprintf("Evaluation Error: %v", err),
	}
}
