package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/seedkit/internal/app"
	"github.com/roach88/seedkit/internal/manifest"
	"github.com/roach88/seedkit/internal/pipeline"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	TenantID    string
	Mode        string
	Seed        int64
	Days        int
	Platforms   string
	DryRun      bool
	Verify      bool
	RunID       string
	ManifestDir string
	NoManifest  bool
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed <scenario>",
		Short: "Seed mock metrics for a scenario",
		Long: `Run the seed pipeline for a scenario and write its manifest.

Modes:
  GENERATED  simulate rows from the scenario and persist them
  FIXTURE    use a golden fixture's shape, generation is bypassed
  HYBRID     simulate, then require the shape to match the golden fixture

Example:
  seedkit seed steady-state --tenant acme --platforms line,shopee
  seedkit seed steady --tenant acme --mode hybrid --seed 7 --verify
  seedkit seed steady-state --tenant acme --dry-run --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, "seed", func(ctx context.Context, a *app.App, f *OutputFormatter) error {
				return runSeed(ctx, opts, args[0], a, f)
			})
		},
	}

	cmd.Flags().StringVar(&opts.TenantID, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&opts.Mode, "mode", string(manifest.ModeGenerated), "GENERATED|FIXTURE|HYBRID")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 42, "generation seed")
	cmd.Flags().IntVar(&opts.Days, "days", 0, "day count override (default: scenario days)")
	cmd.Flags().StringVar(&opts.Platforms, "platforms", "", "comma-separated platforms (default: all seedable)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "plan without writing rows")
	cmd.Flags().BoolVar(&opts.Verify, "verify", false, "verify persisted rows after seeding")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run id (default: generated UUIDv7)")
	cmd.Flags().StringVar(&opts.ManifestDir, "manifest-dir", "", "manifest directory (default: toolkit-manifests)")
	cmd.Flags().BoolVar(&opts.NoManifest, "no-manifest", false, "do not write the manifest file")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runSeed(ctx context.Context, opts *SeedOptions, scenarioID string, a *app.App, f *OutputFormatter) error {
	mode, _ := manifest.ParseMode(opts.Mode)
	needsStore := !opts.DryRun && mode != manifest.ModeFixture && mode != ""

	p, err := a.Pipeline(ctx, needsStore)
	if err != nil {
		return err
	}

	f.VerboseLog("Seeding %s for tenant %s (mode %s, seed %d)", scenarioID, opts.TenantID, opts.Mode, opts.Seed)
	m, runErr := p.Run(ctx, pipeline.Request{
		ScenarioID:    scenarioID,
		TenantID:      opts.TenantID,
		Mode:          manifest.Mode(opts.Mode),
		Seed:          opts.Seed,
		Days:          opts.Days,
		Platforms:     opts.Platforms,
		DryRun:        opts.DryRun,
		Verify:        opts.Verify,
		RunID:         opts.RunID,
		WriteManifest: !opts.NoManifest,
		ManifestDir:   opts.ManifestDir,
	})

	if f.Format == "json" {
		if runErr != nil {
			return f.Fail(runErr, m)
		}
		return f.Success(m)
	}

	printManifest(f, m)
	if runErr != nil {
		return f.Fail(runErr, nil)
	}
	return nil
}

func printManifest(f *OutputFormatter, m *manifest.Manifest) {
	f.Printf("Run %s: scenario %s, mode %s, tenant %s\n", m.RunID, m.ScenarioID, m.Mode, m.TenantID)
	for _, s := range m.StepList() {
		fmt.Fprintf(f.Writer, "  %-15s %-8s %s\n", s.Name, s.Status, s.Summary)
	}
	f.Printf("Planned rows: %d\n", m.Results.WritesPlanned.EstimatedCounts.TotalRows)
	f.Printf("Applied rows: %d\n", m.Results.WritesApplied.ActualCounts.TotalRows)
	if m.FixtureChecksum != "" {
		fmt.Fprintf(f.Writer, "Fixture: %s\n", m.FixtureChecksum)
	}
	if m.ManifestPath != "" {
		fmt.Fprintf(f.Writer, "Manifest: %s\n", m.ManifestPath)
	}
	fmt.Fprintf(f.Writer, "Status: %s (exit %d)\n", m.Status, m.ExitCode)
}
