// Package app is the composition root: it builds every seedkit service from
// a config.Config. Commands get their collaborators from an App and nothing
// else constructs them.
//
// The metrics store is opened lazily, on first use, so commands that only
// read scenario files never need a database.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/seedkit/internal/config"
	"github.com/roach88/seedkit/internal/executor"
	"github.com/roach88/seedkit/internal/failure"
	"github.com/roach88/seedkit/internal/fixture"
	"github.com/roach88/seedkit/internal/manifest"
	"github.com/roach88/seedkit/internal/objectstore"
	"github.com/roach88/seedkit/internal/pathpolicy"
	"github.com/roach88/seedkit/internal/pipeline"
	"github.com/roach88/seedkit/internal/report"
	"github.com/roach88/seedkit/internal/rules"
	"github.com/roach88/seedkit/internal/runid"
	"github.com/roach88/seedkit/internal/scenario"
	"github.com/roach88/seedkit/internal/store"
	"github.com/roach88/seedkit/internal/verify"
)

// App holds the wired services of one process.
type App struct {
	Config    config.Config
	Logger    *slog.Logger
	Policy    *pathpolicy.Policy
	Scenarios *scenario.Loader
	Fixtures  *fixture.Provider
	Evaluator *rules.Evaluator
	Executor  *executor.Executor
	Manifests *manifest.Writer
	Reports   *report.Writer

	// CustomRules come from Config.RulesFile and run on every verification.
	CustomRules []rules.Rule

	Now    func() time.Time
	RunIDs runid.Generator

	openStore func(context.Context, store.Config) (*store.Store, error)

	mu    sync.Mutex
	store *store.Store
}

// Option customises New.
type Option func(*App)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.Now = now }
}

// WithRunIDs replaces the run id generator.
func WithRunIDs(g runid.Generator) Option {
	return func(a *App) { a.RunIDs = g }
}

// WithExecutor shares an admission gate between Apps. Without it every App
// gets its own gate sized by Config.MaxConcurrentCommands.
func WithExecutor(e *executor.Executor) Option {
	return func(a *App) { a.Executor = e }
}

// New wires an App. It reads the custom rule catalog and connects the object
// store client when configured, but does not touch the metrics store.
func New(cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	evaluator, err := rules.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("rule evaluator: %w", err)
	}

	var custom []rules.Rule
	if cfg.RulesFile != "" {
		custom, err = rules.LoadCatalogCUE(cfg.RulesFile, evaluator)
		if err != nil {
			return nil, err
		}
		logger.Debug("custom rules loaded", "path", cfg.RulesFile, "rules", len(custom))
	}

	var publisher report.Publisher
	if cfg.ObjectStore.Enabled() {
		p, err := objectstore.NewPublisher(cfg.ObjectStore)
		if err != nil {
			return nil, fmt.Errorf("object store: %w", err)
		}
		publisher = p
		logger.Debug("report publishing enabled", "endpoint", cfg.ObjectStore.Endpoint, "bucket", cfg.ObjectStore.Bucket)
	}

	policy := pathpolicy.New(cfg.WorkDir, cfg.AllowedOutputRoots)
	a := &App{
		Config:      cfg,
		Logger:      logger,
		Policy:      policy,
		Scenarios:   scenario.NewLoader(cfg.ScenariosDir, logger),
		Fixtures:    fixture.NewProvider(cfg.FixturesDir),
		Evaluator:   evaluator,
		Executor:    executor.New(cfg.MaxConcurrentCommands, logger),
		Manifests:   manifest.NewWriter(policy),
		Reports:     report.NewWriter(policy, publisher, logger),
		CustomRules: custom,
		Now:         time.Now,
		RunIDs:      runid.UUIDv7Generator{},
		openStore:   store.Open,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Store returns the metrics store, opening it on first use.
func (a *App) Store(ctx context.Context) (*store.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store != nil {
		return a.store, nil
	}
	s, err := a.openStore(ctx, a.Config.Store)
	if err != nil {
		return nil, failure.Wrap(failure.ClassRuntime, failure.CodeStoreError, "open metrics store", err)
	}
	a.Logger.Debug("metrics store opened", "driver", a.Config.Store.Driver)
	a.store = s
	return s, nil
}

// Verifier returns a verification service reading from the metrics store.
func (a *App) Verifier(ctx context.Context) (*verify.Service, error) {
	s, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}
	return verify.NewService(a.Scenarios, s, a.Evaluator, verify.Options{
		Logger: a.Logger,
		Now:    a.Now,
		RunIDs: a.RunIDs,
		Rules:  a.CustomRules,
	}), nil
}

// Pipeline returns a seed pipeline. The store and verifier are wired only
// when needsStore is set, which callers derive from the run's mode and
// dry-run flag.
func (a *App) Pipeline(ctx context.Context, needsStore bool) (*pipeline.Pipeline, error) {
	deps := pipeline.Deps{
		Scenarios: a.Scenarios,
		Fixtures:  a.Fixtures,
		Manifests: a.Manifests,
		Logger:    a.Logger,
		Now:       a.Now,
		RunIDs:    a.RunIDs,
	}
	if needsStore {
		s, err := a.Store(ctx)
		if err != nil {
			return nil, err
		}
		deps.Store = s
		v, err := a.Verifier(ctx)
		if err != nil {
			return nil, err
		}
		deps.Verifier = v
	}
	return pipeline.New(deps), nil
}

// Close releases the metrics store if it was opened.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}
