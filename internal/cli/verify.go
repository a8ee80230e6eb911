package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/seedkit/internal/app"
	"github.com/roach88/seedkit/internal/failure"
	"github.com/roach88/seedkit/internal/rules"
	"github.com/roach88/seedkit/internal/verify"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	TenantID  string
	RunID     string
	Days      int
	RulesFile string
	OutputDir string
	DryRun    bool
	NoPublish bool
}

// VerifyOutput is the JSON payload of the verify command.
type VerifyOutput struct {
	Result     *verify.Result `json:"result"`
	ReportPath string         `json:"reportPath,omitempty"`
	Location   string         `json:"location,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify <scenario>",
		Short: "Verify persisted mock metrics for a scenario",
		Long: `Re-query the tenant's toolkit rows for a scenario and check them.

Integrity checks cover rows outside the scenario's date window, toolkit rows
not flagged as mock data, and the row count in the window. Every campaign
aggregate is then evaluated against the business and anomaly rule catalogs
and any custom CUE rules.

The report is written to artifacts/reports/verify-<run-id>.json unless
--dry-run is set. Exit code 3 means the verification status is FAIL.

Example:
  seedkit verify steady-state --tenant acme
  seedkit verify steady --tenant acme --rules ./rules.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, "verify", func(ctx context.Context, a *app.App, f *OutputFormatter) error {
				return runVerify(ctx, opts, args[0], a, f)
			})
		},
	}

	cmd.Flags().StringVar(&opts.TenantID, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run id (default: generated UUIDv7)")
	cmd.Flags().IntVar(&opts.Days, "days", 0, "window length override (default: scenario days)")
	cmd.Flags().StringVar(&opts.RulesFile, "rules", "", "additional CUE rule catalog")
	cmd.Flags().StringVar(&opts.OutputDir, "output-dir", "", "report directory (default: artifacts/reports)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "verify without writing or publishing the report")
	cmd.Flags().BoolVar(&opts.NoPublish, "no-publish", false, "do not publish the report to the object store")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runVerify(ctx context.Context, opts *VerifyOptions, scenarioID string, a *app.App, f *OutputFormatter) error {
	var extra []rules.Rule
	if opts.RulesFile != "" {
		loaded, err := rules.LoadCatalogCUE(opts.RulesFile, a.Evaluator)
		if err != nil {
			return err
		}
		f.VerboseLog("Loaded %d custom rule(s) from %s", len(loaded), opts.RulesFile)
		extra = loaded
	}

	v, err := a.Verifier(ctx)
	if err != nil {
		return err
	}
	res, err := v.VerifyScenario(ctx, verify.Request{
		ScenarioID: scenarioID,
		TenantID:   opts.TenantID,
		RunID:      opts.RunID,
		DryRun:     opts.DryRun,
		Days:       opts.Days,
		ExtraRules: extra,
	})
	if err != nil {
		return err
	}

	out := VerifyOutput{Result: res}
	if !opts.DryRun {
		out.ReportPath, err = a.Reports.WriteReport(res, opts.OutputDir)
		if err != nil {
			return err
		}
		if !opts.NoPublish {
			out.Location, err = a.Reports.Publish(ctx, res)
			if err != nil {
				return err
			}
		}
	}

	if f.Format == "json" {
		if err := f.Success(out); err != nil {
			return err
		}
	} else {
		printVerification(f, out)
	}

	if !res.Passed() {
		return NewExitError(failure.ExitVerificationFailed,
			fmt.Sprintf("verification %s: %d of %d checks failed", res.Summary.Status, res.Summary.Failed, res.Summary.Total))
	}
	return nil
}

func printVerification(f *OutputFormatter, out VerifyOutput) {
	res := out.Result
	fmt.Fprintf(f.Writer, "Verification %s: scenario %s, tenant %s\n", res.Meta.RunID, res.Meta.ScenarioID, res.Meta.TenantID)
	for _, c := range res.Results {
		if c.Status == rules.StatusPass && !f.Verbose {
			continue
		}
		fmt.Fprintf(f.Writer, "  %-4s %-9s %-24s %s\n", c.Status, c.RuleID, c.Name, c.Message)
	}
	s := res.Summary
	f.Printf("Checks: %d total, %d passed, %d failed, %d warned (%d ms)\n",
		s.Total, s.Passed, s.Failed, s.Warned, s.DurationMs)
	if out.ReportPath != "" {
		fmt.Fprintf(f.Writer, "Report: %s\n", out.ReportPath)
	}
	if out.Location != "" {
		fmt.Fprintf(f.Writer, "Published: %s\n", out.Location)
	}
	fmt.Fprintf(f.Writer, "Status: %s\n", s.Status)
}
