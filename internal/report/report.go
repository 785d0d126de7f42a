// Package report renders performance results as flat key-value tables and
// exports trade logs and chart-ready series as CSV.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/jsj9346/spock-sub005/internal/models"
)

// WriteReport renders a performance report as a flat key-value table.
// Undefined statistics are printed as "n/a" rather than zeros.
func WriteReport(w io.Writer, r *models.PerformanceReport) {
	row := func(name string, value float64, format string) {
		if r.IsUndefined(name) {
			fmt.Fprintf(w, "%-24s n/a\n", name)
			return
		}
		fmt.Fprintf(w, "%-24s "+format+"\n", name, value)
	}

	fmt.Fprintf(w, "%-24s %d\n", "periods", r.Periods)
	row("total_return", r.TotalReturn, "%+.4f")
	row("annualized_return", r.AnnualizedReturn, "%+.4f")
	row("volatility", r.Volatility, "%.4f")
	row("downside_deviation", r.DownsideDeviation, "%.4f")
	row("skewness", r.Skewness, "%+.4f")
	row("kurtosis", r.Kurtosis, "%+.4f")
	row("sharpe", r.Sharpe, "%+.4f")
	row("sortino", r.Sortino, "%+.4f")
	row("calmar", r.Calmar, "%+.4f")
	row("information_ratio", r.InformationRatio, "%+.4f")
	row("omega", r.Omega, "%.4f")
	row("max_drawdown", r.MaxDrawdown, "%.4f")
	fmt.Fprintf(w, "%-24s %s\n", "max_drawdown_duration", r.MaxDrawdownDuration)
	row("recovery_factor", r.RecoveryFactor, "%.4f")
	row("var", r.VaR, "%.4f")
	row("cvar", r.CVaR, "%.4f")

	fmt.Fprintf(w, "%-24s %d\n", "trade_count", r.Trades.Count)
	if r.Trades.Defined {
		fmt.Fprintf(w, "%-24s %d\n", "winners", r.Trades.Winners)
		fmt.Fprintf(w, "%-24s %d\n", "losers", r.Trades.Losers)
		fmt.Fprintf(w, "%-24s %.4f\n", "win_rate", r.Trades.WinRate)
		fmt.Fprintf(w, "%-24s %.4f\n", "profit_factor", r.Trades.ProfitFactor)
		fmt.Fprintf(w, "%-24s %+.2f\n", "expectancy", r.Trades.Expectancy)
		fmt.Fprintf(w, "%-24s %+.2f\n", "avg_win", r.Trades.AvgWin)
		fmt.Fprintf(w, "%-24s %+.2f\n", "avg_loss", r.Trades.AvgLoss)
		fmt.Fprintf(w, "%-24s %.4f\n", "win_loss_ratio", r.Trades.WinLossRatio)
		fmt.Fprintf(w, "%-24s %s\n", "avg_hold", r.Trades.AvgHold)
		fmt.Fprintf(w, "%-24s %s\n", "max_hold", r.Trades.MaxHold)
	}
}

// WriteValidation renders a validation report.
func WriteValidation(w io.Writer, v *models.ValidationReport) {
	fmt.Fprintf(w, "%-24s %s\n", "generator", v.GeneratorName)
	fmt.Fprintf(w, "%-24s %.4f\n", "consistency_score", v.ConsistencyScore)
	fmt.Fprintf(w, "%-24s %.4f\n", "tolerance", v.Tolerance)
	fmt.Fprintf(w, "%-24s %t\n", "passed", v.Passed)
	for _, d := range v.Discrepancies {
		fmt.Fprintf(w, "  %-22s a=%.6f b=%.6f delta=%.6f\n", d.Metric, d.ValueA, d.ValueB, d.Delta)
	}
}

// ExportTrades writes the trade log as CSV.
func ExportTrades(path string, trades []models.Trade) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := gocsv.Marshal(trades, f); err != nil {
		return fmt.Errorf("failed to write trade log: %w", err)
	}
	return nil
}

// curvePoint is one row of the chart-ready series export.
type curvePoint struct {
	Timestamp time.Time `csv:"timestamp"`
	Equity    float64   `csv:"equity"`
	Drawdown  float64   `csv:"drawdown"`
}

// ExportCurve writes the equity and drawdown series as CSV. The drawdown
// series must be aligned to the curve; a shorter series pads with zeros.
func ExportCurve(path string, curve models.EquityCurve, drawdowns []float64) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	points := make([]curvePoint, len(curve))
	for i, p := range curve {
		points[i] = curvePoint{Timestamp: p.Timestamp, Equity: p.Equity}
		if i < len(drawdowns) {
			points[i].Drawdown = drawdowns[i]
		}
	}

	if err := gocsv.Marshal(points, f); err != nil {
		return fmt.Errorf("failed to write curve: %w", err)
	}
	return nil
}

func createFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, nil
}
