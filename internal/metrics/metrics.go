// Package metrics computes standardized performance statistics from an
// equity curve and a trade list. Computation is a pure function of its
// inputs; degenerate inputs yield defined values or explicitly undefined
// statistics, never NaN or Inf.
package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/jsj9346/spock-sub005/internal/errors"
	"github.com/jsj9346/spock-sub005/internal/models"
)

// Config holds the statistical conventions for one venue.
type Config struct {
	// TradingDaysPerYear scales per-period statistics to annual terms.
	TradingDaysPerYear int `mapstructure:"trading_days_per_year"`

	// RiskFreeRate is the annual risk-free rate used for excess returns.
	RiskFreeRate float64 `mapstructure:"risk_free_rate"`

	// MinimumAcceptableReturn is the annual threshold for downside
	// deviation and the Omega split.
	MinimumAcceptableReturn float64 `mapstructure:"minimum_acceptable_return"`

	// VaRConfidence is the confidence level for VaR/CVaR, e.g. 0.95.
	VaRConfidence float64 `mapstructure:"var_confidence"`
}

// DefaultConfig returns daily-bar conventions.
func DefaultConfig() Config {
	return Config{
		TradingDaysPerYear:      252,
		RiskFreeRate:            0.03,
		MinimumAcceptableReturn: 0,
		VaRConfidence:           0.95,
	}
}

// Engine computes performance reports.
type Engine struct {
	cfg    Config
	logger zerolog.Logger
}

// NewEngine creates a metrics engine.
func NewEngine(cfg Config, logger zerolog.Logger) (*Engine, error) {
	if cfg.TradingDaysPerYear <= 0 {
		return nil, errors.NewValidationError("trading_days_per_year", cfg.TradingDaysPerYear, "must be positive")
	}
	if cfg.VaRConfidence <= 0 || cfg.VaRConfidence >= 1 {
		return nil, errors.NewValidationError("var_confidence", cfg.VaRConfidence, "must be in (0,1)")
	}
	return &Engine{cfg: cfg, logger: logger}, nil
}

// Compute builds a performance report for the curve and trade list.
// A benchmark return series may be nil; the information ratio is then
// reported as undefined. Unsorted curves are fatal.
func (e *Engine) Compute(curve models.EquityCurve, trades []models.Trade, benchmark []float64) (*models.PerformanceReport, error) {
	if !curve.IsSorted() {
		return nil, errors.Wrap(errors.ErrUnsortedSeries, "equity curve")
	}

	report := &models.PerformanceReport{Periods: len(curve)}
	report.Trades = computeTradeStats(trades)

	returns := curve.Returns()
	if len(returns) < 1 {
		// Single-point or empty series: series statistics are undefined,
		// not zero.
		report.Undefined = append(report.Undefined,
			"total_return", "annualized_return", "volatility", "downside_deviation",
			"skewness", "kurtosis", "sharpe", "sortino", "calmar", "information_ratio",
			"omega", "max_drawdown", "recovery_factor", "var", "cvar")
		e.logger.Warn().Int("points", len(curve)).Msg("Equity curve too short for series statistics")
		return report, nil
	}

	periodsPerYear := float64(e.cfg.TradingDaysPerYear)

	// Return group
	first, last := curve[0].Equity, curve[len(curve)-1].Equity
	if first != 0 {
		report.TotalReturn = last/first - 1
	}
	report.CumulativeReturns = cumulative(returns)
	years := float64(len(returns)) / periodsPerYear
	if years > 0 && 1+report.TotalReturn > 0 {
		report.AnnualizedReturn = math.Pow(1+report.TotalReturn, 1/years) - 1
	} else {
		// Equity at or below zero has no geometric annualization.
		report.Undefined = append(report.Undefined, "annualized_return")
	}

	// Volatility group
	mean, std := meanStd(returns)
	report.Volatility = std * math.Sqrt(periodsPerYear)
	marPerPeriod := e.cfg.MinimumAcceptableReturn / periodsPerYear
	downside := downsideDeviation(returns, marPerPeriod)
	report.DownsideDeviation = downside * math.Sqrt(periodsPerYear)
	report.Skewness, report.Kurtosis = shapeStats(returns, mean, std, &report.Undefined)

	// Risk-adjusted group. Zero-variance series define the ratios as 0.
	rfPerPeriod := e.cfg.RiskFreeRate / periodsPerYear
	excess := mean - rfPerPeriod
	if std == 0 {
		report.Sharpe = 0
		e.logger.Debug().Msg("Zero-variance return series, Sharpe defined as 0")
	} else {
		report.Sharpe = excess / std * math.Sqrt(periodsPerYear)
	}
	if downside == 0 {
		report.Sortino = 0
	} else {
		report.Sortino = excess / downside * math.Sqrt(periodsPerYear)
	}

	// Drawdown group
	report.DrawdownSeries, report.MaxDrawdown, report.MaxDrawdownDuration = drawdowns(curve)
	switch {
	case report.MaxDrawdown == 0:
		report.Calmar = 0
		report.RecoveryFactor = 0
	case report.IsUndefined("annualized_return"):
		report.Undefined = append(report.Undefined, "calmar")
		report.RecoveryFactor = report.TotalReturn / report.MaxDrawdown
	default:
		report.Calmar = report.AnnualizedReturn / report.MaxDrawdown
		report.RecoveryFactor = report.TotalReturn / report.MaxDrawdown
	}

	// Information ratio vs benchmark
	if len(benchmark) == len(returns) && len(benchmark) > 0 {
		report.InformationRatio = informationRatio(returns, benchmark, periodsPerYear)
	} else {
		report.Undefined = append(report.Undefined, "information_ratio")
	}

	// Omega at the MAR threshold
	report.Omega = omega(returns, marPerPeriod, &report.Undefined)

	// Tail-risk group
	report.VaR, report.CVaR = valueAtRisk(returns, e.cfg.VaRConfidence)

	return report, nil
}

func cumulative(returns []float64) []float64 {
	out := make([]float64, len(returns))
	acc := 1.0
	for i, r := range returns {
		acc *= 1 + r
		out[i] = acc - 1
	}
	return out
}

func meanStd(xs []float64) (mean, std float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var variance float64
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	variance /= float64(len(xs))
	return mean, math.Sqrt(variance)
}

func downsideDeviation(returns []float64, mar float64) float64 {
	var sum float64
	for _, r := range returns {
		if r < mar {
			d := r - mar
			sum += d * d
		}
	}
	return math.Sqrt(sum / float64(len(returns)))
}

// shapeStats computes skewness and excess kurtosis. Both need variance
// and enough observations to mean anything.
func shapeStats(returns []float64, mean, std float64, undefined *[]string) (skew, kurt float64) {
	if std == 0 || len(returns) < 3 {
		*undefined = append(*undefined, "skewness", "kurtosis")
		return 0, 0
	}
	n := float64(len(returns))
	var m3, m4 float64
	for _, r := range returns {
		d := (r - mean) / std
		m3 += d * d * d
		m4 += d * d * d * d
	}
	return m3 / n, m4/n - 3
}

// drawdowns returns the full drawdown series (as positive fractions), the
// maximum drawdown, and the longest peak-to-recovery duration.
func drawdowns(curve models.EquityCurve) ([]float64, float64, time.Duration) {
	series := make([]float64, len(curve))
	var maxDD float64
	var maxDuration time.Duration

	peak := curve[0].Equity
	peakTime := curve[0].Timestamp
	for i, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
			peakTime = p.Timestamp
		}
		var dd float64
		if peak > 0 {
			dd = (peak - p.Equity) / peak
		}
		series[i] = dd
		if dd > maxDD {
			maxDD = dd
		}
		if dd > 0 {
			if d := p.Timestamp.Sub(peakTime); d > maxDuration {
				maxDuration = d
			}
		}
	}
	return series, maxDD, maxDuration
}

func informationRatio(returns, benchmark []float64, periodsPerYear float64) float64 {
	active := make([]float64, len(returns))
	for i := range returns {
		active[i] = returns[i] - benchmark[i]
	}
	mean, std := meanStd(active)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}

// omega computes the probability-weighted gain/loss ratio split at the
// threshold. With no losing periods the ratio is undefined rather than
// infinite.
func omega(returns []float64, threshold float64, undefined *[]string) float64 {
	var gains, losses float64
	for _, r := range returns {
		if r > threshold {
			gains += r - threshold
		} else {
			losses += threshold - r
		}
	}
	if losses == 0 {
		*undefined = append(*undefined, "omega")
		return 0
	}
	return gains / losses
}

// valueAtRisk computes empirical VaR and CVaR as positive loss fractions.
func valueAtRisk(returns []float64, confidence float64) (float64, float64) {
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	cutoff := sorted[idx]

	var tailSum float64
	tailCount := 0
	for _, r := range sorted {
		if r <= cutoff {
			tailSum += r
			tailCount++
		}
	}

	v := -cutoff
	cv := v
	if tailCount > 0 {
		cv = -tailSum / float64(tailCount)
	}
	if v < 0 {
		v = 0
	}
	if cv < 0 {
		cv = 0
	}
	return v, cv
}

// computeTradeStats aggregates trade-quality statistics. An empty trade
// list yields Defined == false so callers cannot mistake "no trades" for
// "bad strategy".
func computeTradeStats(trades []models.Trade) models.TradeStats {
	stats := models.TradeStats{Count: len(trades)}
	if len(trades) == 0 {
		return stats
	}
	stats.Defined = true

	var grossProfit, grossLoss, totalPnL float64
	var holdSum time.Duration
	for _, t := range trades {
		totalPnL += t.PnL
		holdSum += t.Hold
		if t.Hold > stats.MaxHold {
			stats.MaxHold = t.Hold
		}
		if t.Win() {
			stats.Winners++
			grossProfit += t.PnL
		} else {
			stats.Losers++
			grossLoss += -t.PnL
		}
	}

	stats.WinRate = float64(stats.Winners) / float64(stats.Count)
	stats.Expectancy = totalPnL / float64(stats.Count)
	stats.AvgHold = holdSum / time.Duration(stats.Count)
	if stats.Winners > 0 {
		stats.AvgWin = grossProfit / float64(stats.Winners)
	}
	if stats.Losers > 0 {
		stats.AvgLoss = grossLoss / float64(stats.Losers)
	}
	if grossLoss > 0 {
		stats.ProfitFactor = grossProfit / grossLoss
	}
	if stats.AvgLoss > 0 {
		stats.WinLossRatio = stats.AvgWin / stats.AvgLoss
	}
	return stats
}
