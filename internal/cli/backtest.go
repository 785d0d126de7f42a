package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsj9346/spock-sub005/internal/engine"
	"github.com/jsj9346/spock-sub005/internal/models"
	"github.com/jsj9346/spock-sub005/internal/report"
	"github.com/jsj9346/spock-sub005/internal/store"
)

// addBacktestCommands adds the backtest command.
func addBacktestCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newBacktestCmd(app))
}

func newBacktestCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest <strategy> <symbol>",
		Short: "Run a strategy through the execution engine",
		Long: `Run a signal generator over a historical bar series through the
event-driven execution engine and report performance.

Results can be persisted to the run database and exported as CSV.`,
		Example: `  backtester backtest sma_cross 005930
  backtester backtest rsi_reversion 005930 --param period=14 --param oversold=30
  backtester backtest sma_cross 005930 --csv bars.csv --export-trades trades.csv`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			strategyName := args[0]
			symbol := strings.ToUpper(args[1])

			params, err := paramFlags(cmd)
			if err != nil {
				return err
			}
			gen, err := app.Registry.Build(strategyName, params)
			if err != nil {
				output.Error("Failed to build strategy: %v", err)
				return err
			}

			bars, err := loadBars(ctx, app, cmd, symbol)
			if err != nil {
				output.Error("Failed to load bars: %v", err)
				return err
			}

			runner, err := engine.NewRunner(app.Config.Engine, app.Config.Costs,
				app.TickTable, app.Config.Data.InitialCash, app.Logger)
			if err != nil {
				return err
			}

			signals := gen.Generate(bars)
			result, err := runner.Run(ctx, symbol, bars, signals)
			if err != nil {
				output.Error("Run failed: %v", err)
				return err
			}

			perfReport, err := app.MetricsEng.Compute(result.Curve, result.Trades, nil)
			if err != nil {
				output.Error("Metrics failed: %v", err)
				return err
			}

			if save, _ := cmd.Flags().GetBool("save"); save && app.Store != nil {
				record := store.RunRecord{
					ID:          result.RunID,
					CreatedAt:   time.Now().UTC(),
					Strategy:    gen.Name(),
					Instrument:  symbol,
					Bars:        len(bars),
					TotalReturn: perfReport.TotalReturn,
					Sharpe:      perfReport.Sharpe,
					MaxDrawdown: perfReport.MaxDrawdown,
					TradeCount:  len(result.Trades),
				}
				if err := app.Store.SaveRun(ctx, record, result.Trades); err != nil {
					output.Warning("Failed to persist run: %v", err)
				}
			}

			if err := exportResults(cmd, result, perfReport); err != nil {
				output.Warning("Export failed: %v", err)
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"run_id":  result.RunID,
					"report":  perfReport,
					"trades":  len(result.Trades),
					"fills":   len(result.Fills),
					"elapsed": result.Perf.Duration.String(),
				})
			}

			output.Bold("Run %s", result.RunID)
			output.Printf("%-24s %s\n", "strategy", gen.Name())
			output.Printf("%-24s %s\n", "instrument", symbol)
			output.Printf("%-24s %d\n", "fills", len(result.Fills))
			report.WriteReport(output.Writer(), perfReport)
			for _, w := range result.Warnings {
				output.Warning("%s", w)
			}
			output.Dim("%d bars in %s (%.0f bars/sec)",
				result.Perf.Bars, result.Perf.Duration, result.Perf.BarsPerSec)
			return nil
		},
	}

	addRunFlags(cmd)
	cmd.Flags().Bool("save", false, "persist the run and its trades to the database")
	cmd.Flags().String("export-trades", "", "write the trade log to a CSV file")
	cmd.Flags().String("export-curve", "", "write the equity/drawdown series to a CSV file")
	return cmd
}

func exportResults(cmd *cobra.Command, result *engine.Result, perfReport *models.PerformanceReport) error {
	if path, _ := cmd.Flags().GetString("export-trades"); path != "" {
		if err := report.ExportTrades(path, result.Trades); err != nil {
			return err
		}
	}
	if path, _ := cmd.Flags().GetString("export-curve"); path != "" {
		if err := report.ExportCurve(path, result.Curve, perfReport.DrawdownSeries); err != nil {
			return err
		}
	}
	return nil
}

// fmtFloat keeps table cells compact.
func fmtFloat(v float64) string {
	return fmt.Sprintf("%.4f", v)
}
