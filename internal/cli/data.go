package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"github.com/jsj9346/spock-sub005/internal/models"
)

// barRow is the CSV shape for imported bar data.
type barRow struct {
	Timestamp string  `csv:"timestamp"`
	Open      float64 `csv:"open"`
	High      float64 `csv:"high"`
	Low       float64 `csv:"low"`
	Close     float64 `csv:"close"`
	Volume    int64   `csv:"volume"`
}

// addDataCommands adds bar data commands.
func addDataCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Manage historical bar data",
	}
	cmd.AddCommand(newDataImportCmd(app))
	cmd.AddCommand(newDataShowCmd(app))
	rootCmd.AddCommand(cmd)
}

func newDataImportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <symbol> <csv-file>",
		Short: "Import OHLCV bars from a CSV file",
		Long: `Import a bar series into the local database.

The CSV must have a header row with columns:
timestamp, open, high, low, close, volume.
Timestamps are RFC3339 or "2006-01-02".`,
		Example: `  backtester data import 005930 samsung_daily.csv
  backtester data import 005930 bars.csv --timeframe 60minute`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				output.Error("Store not available")
				return fmt.Errorf("store not available")
			}

			symbol := strings.ToUpper(args[0])
			timeframe, _ := cmd.Flags().GetString("timeframe")

			bars, err := readBarsCSV(args[1])
			if err != nil {
				output.Error("Failed to read bars: %v", err)
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			if err := app.Store.SaveBars(ctx, symbol, timeframe, bars); err != nil {
				output.Error("Failed to save bars: %v", err)
				return err
			}

			output.Success("Imported %d bars for %s (%s)", len(bars), symbol, timeframe)
			return nil
		},
	}
	cmd.Flags().String("timeframe", "day", "bar timeframe")
	return cmd
}

func newDataShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <symbol>",
		Short: "Show stored bar range for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("store not available")
			}

			symbol := strings.ToUpper(args[0])
			timeframe, _ := cmd.Flags().GetString("timeframe")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			latest, err := app.Store.LatestBar(ctx, symbol, timeframe)
			if err != nil {
				return err
			}
			if latest.IsZero() {
				output.Warning("No bars stored for %s (%s)", symbol, timeframe)
				return nil
			}

			bars, err := app.Store.LoadBars(ctx, symbol, timeframe, time.Time{}, latest)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"symbol":    symbol,
					"timeframe": timeframe,
					"bars":      len(bars),
					"first":     bars[0].Timestamp,
					"last":      latest,
				})
			}
			output.Printf("%-12s %s\n", "symbol", symbol)
			output.Printf("%-12s %s\n", "timeframe", timeframe)
			output.Printf("%-12s %d\n", "bars", len(bars))
			output.Printf("%-12s %s\n", "first", bars[0].Timestamp.Format(time.RFC3339))
			output.Printf("%-12s %s\n", "last", latest.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().String("timeframe", "day", "bar timeframe")
	return cmd
}

// readBarsCSV loads and sorts a bar series from a CSV file.
func readBarsCSV(path string) ([]models.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var rows []barRow
	if err := gocsv.Unmarshal(f, &rows); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	bars := make([]models.Bar, 0, len(rows))
	for i, r := range rows {
		ts, err := parseTimestamp(r.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		bars = append(bars, models.Bar{
			Timestamp: ts,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}

	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	return bars, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// loadBars resolves the bar series for a run: --csv wins, otherwise the
// symbol is loaded from the store over the requested date range.
func loadBars(ctx context.Context, app *App, cmd *cobra.Command, symbol string) ([]models.Bar, error) {
	csvPath, _ := cmd.Flags().GetString("csv")
	if csvPath != "" {
		return readBarsCSV(csvPath)
	}

	if app.Store == nil {
		return nil, fmt.Errorf("store not available and no --csv given")
	}

	timeframe, _ := cmd.Flags().GetString("timeframe")
	if timeframe == "" {
		timeframe = app.Config.Data.Timeframe
	}

	from, err := parseDateFlag(cmd, "from", time.Time{})
	if err != nil {
		return nil, err
	}
	to, err := parseDateFlag(cmd, "to", time.Now())
	if err != nil {
		return nil, err
	}

	bars, err := app.Store.LoadBars(ctx, symbol, timeframe, from, to)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars for %s (%s); run 'backtester data import' first", symbol, timeframe)
	}
	return bars, nil
}

func parseDateFlag(cmd *cobra.Command, name string, def time.Time) (time.Time, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		return def, nil
	}
	return parseTimestamp(s)
}

// addRunFlags registers the flags shared by commands that execute runs.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("csv", "", "load bars from CSV instead of the store")
	cmd.Flags().String("timeframe", "", "bar timeframe (default from config)")
	cmd.Flags().String("from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "end date (YYYY-MM-DD)")
	cmd.Flags().StringSlice("param", nil, "strategy parameter as key=value (repeatable)")
}

// paramFlags reads the repeated --param key=value flags.
func paramFlags(cmd *cobra.Command) (map[string]float64, error) {
	raw, _ := cmd.Flags().GetStringSlice("param")
	return parseParams(raw)
}

func parseParams(raw []string) (map[string]float64, error) {
	params := make(map[string]float64, len(raw))
	for _, kv := range raw {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", kv)
		}
		v, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --param %q: %w", kv, err)
		}
		params[parts[0]] = v
	}
	return params, nil
}
