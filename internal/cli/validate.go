package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsj9346/spock-sub005/internal/models"
	"github.com/jsj9346/spock-sub005/internal/perf"
	"github.com/jsj9346/spock-sub005/internal/report"
	"github.com/jsj9346/spock-sub005/internal/strategy"
	"github.com/jsj9346/spock-sub005/internal/validator"
)

// addValidateCommands adds engine validation commands.
func addValidateCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newValidateCmd(app))
}

func newValidateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <symbol> [strategy]",
		Short: "Cross-check both simulators on identical inputs",
		Long: `Run the event-driven engine and the vectorized simulator on the same
bars and signals, then score their agreement on total return, trade
count, Sharpe and max drawdown.

With no strategy argument, all registered strategies are validated in
parallel and ranked by consistency score.`,
		Example: `  backtester validate 005930 sma_cross
  backtester validate 005930 --tolerance 0.01
  backtester validate 005930`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			symbol := strings.ToUpper(args[0])

			bars, err := loadBars(ctx, app, cmd, symbol)
			if err != nil {
				output.Error("Failed to load bars: %v", err)
				return err
			}

			v, err := buildValidator(cmd, app, symbol, bars)
			if err != nil {
				return err
			}

			if len(args) == 2 {
				params, err := paramFlags(cmd)
				if err != nil {
					return err
				}
				gen, err := app.Registry.Build(args[1], params)
				if err != nil {
					output.Error("Failed to build strategy: %v", err)
					return err
				}
				rep, err := v.Validate(ctx, gen)
				if err != nil {
					output.Error("Validation failed: %v", err)
					return err
				}
				if output.IsJSON() {
					return output.JSON(rep)
				}
				report.WriteValidation(output.Writer(), rep)
				if rep.Passed {
					output.Success("PASSED")
				} else {
					output.Error("FAILED")
				}
				return nil
			}

			return validateAll(ctx, output, app, v)
		},
	}

	addRunFlags(cmd)
	cmd.Flags().Float64("tolerance", 0, "override the per-metric agreement tolerance")
	return cmd
}

func buildValidator(cmd *cobra.Command, app *App, symbol string, bars []models.Bar) (*validator.Validator, error) {
	engineRun, err := app.engineRunner()
	if err != nil {
		return nil, err
	}
	batchRun, err := app.batchRunner()
	if err != nil {
		return nil, err
	}

	cfg := app.Config.Validation
	if tol, _ := cmd.Flags().GetFloat64("tolerance"); tol > 0 {
		cfg.Tolerance = tol
	}

	history, err := validator.NewHistory(app.Config.Regression.HistoryPath)
	if err != nil {
		app.Logger.Warn().Err(err).Msg("Validation history unavailable")
		history = nil
	}

	return validator.New(cfg, engineRun, batchRun, symbol, bars, history, app.Logger)
}

func validateAll(ctx context.Context, output *Output, app *App, v *validator.Validator) error {
	gens := make([]strategy.SignalGenerator, 0)
	for _, name := range app.Registry.Names() {
		gen, err := app.Registry.Build(name, nil)
		if err != nil {
			output.Warning("Skipping %s: %v", name, err)
			continue
		}
		gens = append(gens, gen)
	}
	if len(gens) == 0 {
		return fmt.Errorf("no strategies available")
	}

	pool := perf.NewWorkerPool(0)
	pool.Start()
	defer pool.Stop()

	ranked := v.ValidateBatch(ctx, gens, pool)

	if output.IsJSON() {
		return output.JSON(ranked)
	}

	table := NewTable(output, "GENERATOR", "SCORE", "PASSED", "DISCREPANCIES")
	for _, r := range ranked {
		if r.Err != nil {
			table.AddRow("-", "-", "-", r.Err.Error())
			continue
		}
		passed := output.ColoredString(ColorGreen, "yes")
		if !r.Report.Passed {
			passed = output.ColoredString(ColorRed, "no")
		}
		table.AddRow(
			r.Report.GeneratorName,
			fmtFloat(r.Report.ConsistencyScore),
			passed,
			fmt.Sprintf("%d", len(r.Report.Discrepancies)),
		)
	}
	table.Render()
	return nil
}
