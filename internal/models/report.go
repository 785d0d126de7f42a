package models

import "time"

// TradeStats groups trade-quality statistics. Defined is false when the
// trade list was empty; in that case the numeric fields carry no meaning
// and must not be read as zeros.
type TradeStats struct {
	Defined      bool          `json:"defined"`
	Count        int           `json:"count"`
	Winners      int           `json:"winners"`
	Losers       int           `json:"losers"`
	WinRate      float64       `json:"win_rate"`
	ProfitFactor float64       `json:"profit_factor"`
	Expectancy   float64       `json:"expectancy"`
	AvgWin       float64       `json:"avg_win"`
	AvgLoss      float64       `json:"avg_loss"`
	WinLossRatio float64       `json:"win_loss_ratio"`
	AvgHold      time.Duration `json:"avg_hold"`
	MaxHold      time.Duration `json:"max_hold"`
}

// PerformanceReport aggregates return, risk and trade statistics for one
// run. Reports are derived values: recomputed on demand, never patched.
type PerformanceReport struct {
	Periods int `json:"periods"`

	// Return group
	TotalReturn       float64   `json:"total_return"`
	AnnualizedReturn  float64   `json:"annualized_return"`
	CumulativeReturns []float64 `json:"-"`

	// Volatility group
	Volatility        float64 `json:"volatility"` // annualized
	DownsideDeviation float64 `json:"downside_deviation"`
	Skewness          float64 `json:"skewness"`
	Kurtosis          float64 `json:"kurtosis"` // excess

	// Risk-adjusted group
	Sharpe           float64 `json:"sharpe"`
	Sortino          float64 `json:"sortino"`
	Calmar           float64 `json:"calmar"`
	InformationRatio float64 `json:"information_ratio"`
	Omega            float64 `json:"omega"`

	// Drawdown group
	MaxDrawdown         float64       `json:"max_drawdown"` // fraction, >= 0
	MaxDrawdownDuration time.Duration `json:"max_drawdown_duration"`
	RecoveryFactor      float64       `json:"recovery_factor"`
	DrawdownSeries      []float64     `json:"-"`

	// Tail-risk group, empirical at the configured confidence
	VaR  float64 `json:"var"`
	CVaR float64 `json:"cvar"`

	Trades TradeStats `json:"trades"`

	// Undefined lists statistics that could not be computed from the
	// given input (too few bars, no benchmark, no losing periods).
	Undefined []string `json:"undefined,omitempty"`
}

// IsUndefined reports whether the named statistic was marked undefined.
func (r *PerformanceReport) IsUndefined(name string) bool {
	for _, u := range r.Undefined {
		if u == name {
			return true
		}
	}
	return false
}

// Discrepancy records one metric disagreement between two simulators.
type Discrepancy struct {
	Metric string  `json:"metric"`
	ValueA float64 `json:"value_a"`
	ValueB float64 `json:"value_b"`
	Delta  float64 `json:"delta"`
}

// ValidationReport is the outcome of cross-checking the event-driven and
// vectorized simulators on identical inputs. Immutable once produced.
type ValidationReport struct {
	ID               string             `json:"id"`
	Timestamp        time.Time          `json:"timestamp"`
	GeneratorName    string             `json:"signal_generator_name"`
	ConsistencyScore float64            `json:"consistency_score"`
	Passed           bool               `json:"validation_passed"`
	Tolerance        float64            `json:"tolerance"`
	Deltas           map[string]float64 `json:"deltas"`
	Discrepancies    []Discrepancy      `json:"discrepancies"`
}
