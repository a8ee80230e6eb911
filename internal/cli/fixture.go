package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/seedkit/internal/app"
	"github.com/roach88/seedkit/internal/failure"
	"github.com/roach88/seedkit/internal/fixture"
	"github.com/roach88/seedkit/internal/pathpolicy"
	"github.com/roach88/seedkit/internal/simulate"
)

// DefaultSampleRows is the number of sample rows embedded in a fixture.
const DefaultSampleRows = 3

// FixtureOptions holds flags for the fixture generate command.
type FixtureOptions struct {
	*RootOptions
	Seed      int64
	Days      int
	Platforms string
	OutputDir string
	Samples   int
}

// FixtureOutput is the JSON payload of fixture generate.
type FixtureOutput struct {
	Path     string        `json:"path"`
	Checksum string        `json:"checksum"`
	Shape    fixture.Shape `json:"shape"`
}

// NewFixtureCommand creates the fixture command group.
func NewFixtureCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Manage golden fixtures",
	}
	cmd.AddCommand(newFixtureGenerateCommand(rootOpts))
	return cmd
}

func newFixtureGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FixtureOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate <scenario>",
		Short: "Record the generated shape of a scenario as a golden fixture",
		Long: `Generate a scenario in memory and write its shape, checksum and a few
sample rows as {scenario}_seed{seed}.fixture.json. Nothing is written to the
metrics store.

Example:
  seedkit fixture generate steady-state --seed 42 --platforms line,shopee`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, "fixture generate", func(ctx context.Context, a *app.App, f *OutputFormatter) error {
				return runFixtureGenerate(opts, args[0], a, f)
			})
		},
	}

	cmd.Flags().Int64Var(&opts.Seed, "seed", 42, "generation seed")
	cmd.Flags().IntVar(&opts.Days, "days", 0, "day count override (default: scenario days)")
	cmd.Flags().StringVar(&opts.Platforms, "platforms", "", "comma-separated platforms (default: all seedable)")
	cmd.Flags().StringVar(&opts.OutputDir, "output-dir", "", "fixture directory (default: toolkit/fixtures)")
	cmd.Flags().IntVar(&opts.Samples, "samples", DefaultSampleRows, "sample rows to embed")

	return cmd
}

func runFixtureGenerate(opts *FixtureOptions, scenarioID string, a *app.App, f *OutputFormatter) error {
	platforms, err := simulate.ParsePlatforms(opts.Platforms)
	if err != nil {
		return err
	}
	spec, err := a.Scenarios.Load(scenarioID)
	if err != nil {
		return err
	}

	out := simulate.Generate(simulate.Input{
		Spec:      spec,
		Seed:      opts.Seed,
		Days:      opts.Days,
		Platforms: platforms,
		TenantID:  "fixture",
	})
	shape := simulate.ShapeOf(out)
	if shape.TotalMetricRows > fixture.MaxMetricRows {
		return failure.Input(failure.CodeFixtureRowLimit,
			"generated %d metric rows, fixtures allow at most %d", shape.TotalMetricRows, fixture.MaxMetricRows)
	}

	g, err := fixture.Build(spec.ScenarioID, shape, simulate.Samples(out, opts.Samples))
	if err != nil {
		return err
	}
	data, err := fixture.Encode(g)
	if err != nil {
		return err
	}
	// What the provider will accept is what gets written.
	if _, err := fixture.Parse(data, spec.ScenarioID); err != nil {
		return err
	}

	dir, err := a.Policy.ResolveOutputDir(pathpolicy.KindFixture, opts.OutputDir)
	if err != nil {
		return err
	}
	path, err := pathpolicy.Join(dir, fixture.FileName(spec.ScenarioID, opts.Seed))
	if err != nil {
		return err
	}
	if err := pathpolicy.WriteFileAtomic(path, data); err != nil {
		return failure.Wrap(failure.ClassRuntime, failure.CodeWriteFailed, "write fixture", err)
	}

	res := FixtureOutput{Path: path, Checksum: g.Checksum, Shape: g.Shape}
	if f.Format == "json" {
		return f.Success(res)
	}
	f.Printf("Fixture: %s\n", res.Path)
	f.Printf("Checksum: %s\n", res.Checksum)
	f.Printf("Shape: %d campaigns, %d metric rows across %d platform(s)\n",
		shape.TotalCampaigns, shape.TotalMetricRows, len(shape.PerPlatform))
	return nil
}
