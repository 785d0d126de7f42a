package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsj9346/spock-sub005/internal/regression"
)

// addReferenceCommands adds regression reference commands.
func addReferenceCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "reference",
		Short: "Manage regression references",
		Long: `Snapshot strategy results as named references and re-test later runs
against them. A metric drifting outside its tolerance fails the test.`,
	}
	cmd.AddCommand(newReferenceCreateCmd(app))
	cmd.AddCommand(newReferenceTestCmd(app))
	cmd.AddCommand(newReferenceListCmd(app))
	rootCmd.AddCommand(cmd)
}

func buildTester(app *App, symbol string, cmd *cobra.Command, ctx context.Context) (*regression.Tester, error) {
	bars, err := loadBars(ctx, app, cmd, symbol)
	if err != nil {
		return nil, err
	}
	runner, err := app.engineRunner()
	if err != nil {
		return nil, err
	}
	refStore, err := regression.NewFileStore(app.Config.Regression.ReferenceDir)
	if err != nil {
		return nil, err
	}
	return regression.NewTester(refStore, runner, app.MetricsEng, symbol, bars,
		app.Config.Regression.Tolerances, app.Logger), nil
}

func newReferenceCreateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name> <strategy> <symbol>",
		Short: "Snapshot a strategy run as a named reference",
		Example: `  backtester reference create sma-baseline sma_cross 005930
  backtester reference create sma-baseline sma_cross 005930 --force`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			name := args[0]
			symbol := strings.ToUpper(args[2])

			params, err := paramFlags(cmd)
			if err != nil {
				return err
			}
			gen, err := app.Registry.Build(args[1], params)
			if err != nil {
				output.Error("Failed to build strategy: %v", err)
				return err
			}

			tester, err := buildTester(app, symbol, cmd, ctx)
			if err != nil {
				output.Error("%v", err)
				return err
			}

			force, _ := cmd.Flags().GetBool("force")
			ref, err := tester.CreateReference(ctx, name, gen, force)
			if err != nil {
				output.Error("Failed to create reference: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(ref)
			}
			output.Success("Reference %q created (%d metrics)", name, len(ref.Metrics))
			return nil
		},
	}
	addRunFlags(cmd)
	cmd.Flags().Bool("force", false, "overwrite an existing reference")
	return cmd
}

func newReferenceTestCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "test <name> <strategy> <symbol>",
		Short:   "Re-run a strategy and compare against a stored reference",
		Example: `  backtester reference test sma-baseline sma_cross 005930`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			name := args[0]
			symbol := strings.ToUpper(args[2])

			params, err := paramFlags(cmd)
			if err != nil {
				return err
			}
			gen, err := app.Registry.Build(args[1], params)
			if err != nil {
				output.Error("Failed to build strategy: %v", err)
				return err
			}

			tester, err := buildTester(app, symbol, cmd, ctx)
			if err != nil {
				output.Error("%v", err)
				return err
			}

			result, err := tester.TestRegression(ctx, name, gen)
			if err != nil {
				output.Error("Regression test failed to run: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}

			if result.Passed {
				output.Success("PASSED: all metrics within tolerance")
				return nil
			}
			output.Error("FAILED: %d metric(s) outside tolerance", len(result.Failures))
			table := NewTable(output, "METRIC", "REFERENCE", "ACTUAL", "DELTA", "TOLERANCE")
			for _, f := range result.Failures {
				table.AddRow(f.Metric, fmt.Sprintf("%.6f", f.Reference),
					fmt.Sprintf("%.6f", f.Actual), fmt.Sprintf("%.6f", f.Delta),
					fmt.Sprintf("%.6f", f.Tolerance))
			}
			table.Render()
			return nil
		},
	}
	addRunFlags(cmd)
	return cmd
}

func newReferenceListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored references",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			refStore, err := regression.NewFileStore(app.Config.Regression.ReferenceDir)
			if err != nil {
				return err
			}
			names, err := refStore.List()
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(names)
			}
			if len(names) == 0 {
				output.Dim("No references stored")
				return nil
			}
			for _, n := range names {
				output.Println(n)
			}
			return nil
		},
	}
}
