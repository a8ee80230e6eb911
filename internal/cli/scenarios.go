package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/seedkit/internal/app"
)

// NewScenariosCommand creates the scenarios command group.
func NewScenariosCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "Inspect scenario definitions",
	}
	cmd.AddCommand(newScenariosListCommand(rootOpts))
	return cmd
}

func newScenariosListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List loadable scenarios",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, "scenarios list", runScenariosList)
		},
	}
}

func runScenariosList(_ context.Context, a *app.App, f *OutputFormatter) error {
	list, err := a.Scenarios.ListAvailableScenarios()
	if err != nil {
		return err
	}
	if f.Format == "json" {
		return f.Success(list)
	}

	if len(list) == 0 {
		fmt.Fprintf(f.Writer, "No scenarios found in %s\n", a.Scenarios.BaseDir())
		return nil
	}
	for _, s := range list {
		line := fmt.Sprintf("%-24s %-8s %3d days  %s", s.ScenarioID, s.Trend, s.Days, s.Name)
		if len(s.Aliases) > 0 {
			line += " (aliases: " + strings.Join(s.Aliases, ", ") + ")"
		}
		fmt.Fprintln(f.Writer, line)
	}
	return nil
}
