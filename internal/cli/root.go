// Package cli implements the seedkit command line.
//
// Every command builds its services through internal/app and runs inside the
// admission-controlled executor, so at most SEEDKIT_MAX_CONCURRENT_COMMANDS
// commands run at once in a process. Failures are reported through the
// OutputFormatter and returned as *ExitError carrying the exit code of the
// failure package.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/spf13/cobra"

	"github.com/roach88/seedkit/internal/app"
	"github.com/roach88/seedkit/internal/config"
	"github.com/roach88/seedkit/internal/executor"
	"github.com/roach88/seedkit/internal/failure"
	"github.com/roach88/seedkit/internal/logging"
	"github.com/roach88/seedkit/internal/store"
	"github.com/roach88/seedkit/internal/version"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	DBDriver string // overrides SEEDKIT_DB_DRIVER when set
	DBURL    string // overrides SEEDKIT_DB_URL when set

	// Lookup reads the environment. Defaults to the process environment.
	Lookup config.Lookup
	// WorkDir anchors default directories and output roots. Defaults to the
	// process working directory.
	WorkDir string
	// AppOptions are passed to app.New (tests inject clocks and run ids).
	AppOptions []app.Option
	// Executor replaces the process-wide admission gate.
	Executor *executor.Executor
}

var (
	processGateMu sync.Mutex
	processGate   *executor.Executor
)

// sharedExecutor returns the admission gate every command of the process
// goes through. The first configuration loaded in the process sizes it.
func sharedExecutor(limit int, logger *slog.Logger) *executor.Executor {
	processGateMu.Lock()
	defer processGateMu.Unlock()
	if processGate == nil {
		processGate = executor.New(limit, logger)
	}
	return processGate
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the seedkit CLI.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithOptions(&RootOptions{})
}

// NewRootCommandWithOptions creates the root command bound to opts.
func NewRootCommandWithOptions(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "seedkit",
		Short:   "seedkit - deterministic mock data for analytics stores",
		Version: version.Version,
		Long: `Seed deterministic, provenance-tagged mock advertising metrics into a
metrics store, and verify what was written.

Every row seedkit writes carries is_mock_data = true and a "toolkit:" source
tag, and every query seedkit runs is scoped to one tenant and that tag.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DBDriver, "db-driver", "", "database driver (sqlite3|pgx), overrides "+config.EnvDBDriver)
	cmd.PersistentFlags().StringVar(&opts.DBURL, "db", "", "database URL, overrides "+config.EnvDBURL)

	// Add subcommands
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewScenariosCommand(opts))
	cmd.AddCommand(NewFixtureCommand(opts))
	cmd.AddCommand(NewCleanCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
// Errors not yet reported by a command (flag parsing, argument counts) are
// printed to stderr and exit with ExitCommandError.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return executeCommand(ctx, NewRootCommand(), args, stdout, stderr)
}

func executeCommand(ctx context.Context, cmd *cobra.Command, args []string, stdout, stderr io.Writer) int {
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return failure.ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	fmt.Fprintf(stderr, "Error: %s\n", logging.Redact(err.Error()))
	return failure.ExitCommandError
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// loadConfig reads the environment and applies the global flag overrides.
func (o *RootOptions) loadConfig() (config.Config, error) {
	lookup := o.Lookup
	if lookup == nil {
		lookup = config.OSLookup()
	}
	workDir := o.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return config.Config{}, err
		}
		workDir = wd
	}

	cfg, err := config.Load(workDir, lookup)
	if err != nil {
		return config.Config{}, err
	}
	if o.DBDriver != "" {
		cfg.Store.Driver = store.Dialect(o.DBDriver)
	}
	if o.DBURL != "" {
		cfg.Store.URL = o.DBURL
	}
	return cfg, cfg.Validate()
}

func (o *RootOptions) logger(cmd *cobra.Command, format string) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return logging.New(logging.Options{Writer: cmd.ErrOrStderr(), Level: level, Format: format})
}

// commandFunc is the body of a command, run once admitted by the executor.
type commandFunc func(ctx context.Context, a *app.App, f *OutputFormatter) error

// run builds the App and runs fn through the executor. Errors returned by fn
// that are not yet ExitErrors are reported here.
func (o *RootOptions) run(cmd *cobra.Command, name string, fn commandFunc) error {
	f := o.formatter(cmd)

	cfg, err := o.loadConfig()
	if err != nil {
		return f.Fail(failure.Wrap(failure.ClassInput, failure.CodeInvalidRequest, "invalid configuration", err), nil)
	}
	logger := o.logger(cmd, cfg.LogFormat)

	gate := o.Executor
	if gate == nil {
		gate = sharedExecutor(cfg.MaxConcurrentCommands, logger)
	}
	appOpts := append([]app.Option{app.WithExecutor(gate)}, o.AppOptions...)

	a, err := app.New(cfg, logger, appOpts...)
	if err != nil {
		return f.Fail(err, nil)
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("closing metrics store", "error", cerr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	err = a.Executor.Submit(ctx, name, func(ctx context.Context) error {
		return fn(ctx, a, f)
	})
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return f.Fail(err, nil)
}
