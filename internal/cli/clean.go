package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/seedkit/internal/app"
	"github.com/roach88/seedkit/internal/failure"
)

// CleanOptions holds flags for the clean command.
type CleanOptions struct {
	*RootOptions
	TenantID string
	DryRun   bool
}

// CleanOutput is the JSON payload of the clean command.
type CleanOutput struct {
	TenantID   string `json:"tenantId"`
	DryRun     bool   `json:"dryRun"`
	Campaigns  int64  `json:"campaigns"`
	MetricRows int64  `json:"metricRows"`
}

// NewCleanCommand creates the clean command.
func NewCleanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CleanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove a tenant's toolkit rows",
		Long: `Delete every row of the tenant flagged as mock data with a "toolkit:"
source. Real data and rows of other tenants are never touched.

Example:
  seedkit clean --tenant acme --dry-run
  seedkit clean --tenant acme`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, "clean", func(ctx context.Context, a *app.App, f *OutputFormatter) error {
				return runClean(ctx, opts, a, f)
			})
		},
	}

	cmd.Flags().StringVar(&opts.TenantID, "tenant", "", "tenant id (required)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "count rows without deleting")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runClean(ctx context.Context, opts *CleanOptions, a *app.App, f *OutputFormatter) error {
	s, err := a.Store(ctx)
	if err != nil {
		return err
	}
	counts, err := s.PurgeMock(ctx, opts.TenantID, opts.DryRun)
	if err != nil {
		return failure.Wrap(failure.ClassRuntime, failure.CodeStoreError, "purge mock rows", err)
	}

	out := CleanOutput{
		TenantID:   opts.TenantID,
		DryRun:     opts.DryRun,
		Campaigns:  counts.Campaigns,
		MetricRows: counts.MetricRows,
	}
	if f.Format == "json" {
		return f.Success(out)
	}
	verb := "Removed"
	if opts.DryRun {
		verb = "Would remove"
	}
	f.Printf("%s %d campaigns and %d metric rows for tenant %s\n", verb, out.Campaigns, out.MetricRows, out.TenantID)
	return nil
}
