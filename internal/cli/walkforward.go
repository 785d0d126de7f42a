package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsj9346/spock-sub005/internal/walkforward"
)

// addWalkForwardCommands adds the walkforward command.
func addWalkForwardCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newWalkForwardCmd(app))
}

func newWalkForwardCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "walkforward <strategy> <symbol>",
		Short: "Walk-forward test a strategy's parameter grid",
		Long: `Partition the bar history into train/test windows, grid-search the
parameter space on each train slice, score the winner out of sample,
and aggregate degradation and parameter stability into a robustness
verdict.`,
		Example: `  backtester walkforward sma_cross 005930 --grid fast=5,10,20 --grid slow=50,100
  backtester walkforward rsi_reversion 005930 --grid period=7,14,21 --mode anchored
  backtester walkforward sma_cross 005930 --grid fast=5,10 --objective total_return`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()

			symbol := strings.ToUpper(args[1])
			factory, err := app.Registry.Factory(args[0])
			if err != nil {
				output.Error("Unknown strategy: %v", err)
				return err
			}

			grid, err := gridFlags(cmd)
			if err != nil {
				return err
			}

			bars, err := loadBars(ctx, app, cmd, symbol)
			if err != nil {
				output.Error("Failed to load bars: %v", err)
				return err
			}

			cfg := app.Config.WalkForward
			applyWalkForwardFlags(cmd, &cfg)

			runner, err := app.engineRunner()
			if err != nil {
				return err
			}

			opt := walkforward.New(cfg, factory, runner, app.MetricsEng, app.Logger)
			result, err := opt.Optimize(ctx, symbol, bars, grid)
			if err != nil {
				output.Error("Walk-forward failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}

			table := NewTable(output, "WINDOW", "TRAIN", "TEST", "DEGRADATION", "TRADES", "PARAMS")
			for i, w := range result.Windows {
				label := fmt.Sprintf("%d", i+1)
				if w.Excluded {
					label += "*"
				}
				table.AddRow(label,
					fmtFloat(w.TrainMetric), fmtFloat(w.TestMetric),
					output.FormatPercent(w.Degradation*100),
					fmt.Sprintf("%d", w.TestTrades),
					formatParams(w.BestParams))
			}
			table.Render()
			if result.IncludedWindows < len(result.Windows) {
				output.Dim("* excluded from scoring (fewer than %d test trades)", cfg.MinTrades)
			}

			output.Printf("%-20s %.4f\n", "robustness_score", result.RobustnessScore)
			output.Printf("%-20s %.4f\n", "mean_degradation", result.MeanDegradation)
			output.Printf("%-20s %.4f\n", "stability", result.Stability)
			if result.Overfit {
				output.Error("OVERFIT: out-of-sample results do not support these parameters")
			} else {
				output.Success("Parameters look robust across windows")
			}
			return nil
		},
	}

	addRunFlags(cmd)
	cmd.Flags().StringSlice("grid", nil, "parameter axis as key=v1,v2,... (repeatable)")
	cmd.Flags().String("mode", "", "windowing mode: rolling or anchored")
	cmd.Flags().String("objective", "", "optimization objective: sharpe, total_return, win_rate")
	cmd.Flags().Int("train", 0, "train window length in bars")
	cmd.Flags().Int("test", 0, "test window length in bars")
	cmd.Flags().Int("step", 0, "window step in bars")
	return cmd
}

// gridFlags reads the repeated --grid key=v1,v2 flags into a parameter grid.
func gridFlags(cmd *cobra.Command) (map[string][]float64, error) {
	raw, _ := cmd.Flags().GetStringSlice("grid")
	return parseGrid(raw)
}

func parseGrid(raw []string) (map[string][]float64, error) {
	grid := make(map[string][]float64, len(raw))
	for _, axis := range raw {
		parts := strings.SplitN(axis, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --grid %q, expected key=v1,v2,...", axis)
		}
		var values []float64
		for _, s := range strings.Split(parts[1], ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid --grid %q: %w", axis, err)
			}
			values = append(values, v)
		}
		grid[parts[0]] = values
	}
	return grid, nil
}

func applyWalkForwardFlags(cmd *cobra.Command, cfg *walkforward.Config) {
	if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
		cfg.Mode = walkforward.Mode(mode)
	}
	if objective, _ := cmd.Flags().GetString("objective"); objective != "" {
		cfg.Objective = objective
	}
	if train, _ := cmd.Flags().GetInt("train"); train > 0 {
		cfg.TrainBars = train
	}
	if test, _ := cmd.Flags().GetInt("test"); test > 0 {
		cfg.TestBars = test
	}
	if step, _ := cmd.Flags().GetInt("step"); step > 0 {
		cfg.StepBars = step
	}
}

func formatParams(params map[string]float64) string {
	if len(params) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, params[k]))
	}
	return strings.Join(parts, " ")
}
