package regression

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/jsj9346/spock-sub005/internal/metrics"
	"github.com/jsj9346/spock-sub005/internal/models"
	"github.com/jsj9346/spock-sub005/internal/strategy"
	"github.com/jsj9346/spock-sub005/internal/validator"
)

// DefaultTolerances returns the per-metric comparison tolerances.
// Absolute deltas; trade_count must match exactly by default.
func DefaultTolerances() map[string]float64 {
	return map[string]float64{
		"total_return":      0.0001,
		"annualized_return": 0.0001,
		"sharpe":            0.01,
		"sortino":           0.01,
		"calmar":            0.01,
		"max_drawdown":      0.0001,
		"volatility":        0.0001,
		"win_rate":          0.0001,
		"profit_factor":     0.01,
		"expectancy":        0.01,
		"trade_count":       0,
	}
}

// MetricFailure records one metric outside its regression tolerance.
type MetricFailure struct {
	Metric    string  `json:"metric"`
	Reference float64 `json:"reference"`
	Actual    float64 `json:"actual"`
	Delta     float64 `json:"delta"`
	Tolerance float64 `json:"tolerance"`
}

// Result is the outcome of one regression test. Failures are data the
// caller acts on, not errors.
type Result struct {
	Name     string          `json:"name"`
	Passed   bool            `json:"passed"`
	Failures []MetricFailure `json:"failures"`
}

// Tester snapshots reference results and re-runs strategies against them.
type Tester struct {
	store      Store
	runner     validator.Runner
	metrics    *metrics.Engine
	instrument string
	bars       []models.Bar
	tolerances map[string]float64
	logger     zerolog.Logger
}

// NewTester creates a regression tester over a fixed bar series. Passing
// nil tolerances selects DefaultTolerances.
func NewTester(store Store, runner validator.Runner, metricsEng *metrics.Engine, instrument string, bars []models.Bar, tolerances map[string]float64, logger zerolog.Logger) *Tester {
	if tolerances == nil {
		tolerances = DefaultTolerances()
	}
	return &Tester{
		store:      store,
		runner:     runner,
		metrics:    metricsEng,
		instrument: instrument,
		bars:       bars,
		tolerances: tolerances,
		logger:     logger,
	}
}

// CreateReference runs the generator and snapshots its performance report
// under the given name. An existing name is rejected unless force is set.
func (t *Tester) CreateReference(ctx context.Context, name string, gen strategy.SignalGenerator, force bool) (*ReferenceResult, error) {
	metricsMap, err := t.run(ctx, gen)
	if err != nil {
		return nil, err
	}

	ref := &ReferenceResult{
		TestName:      name,
		CreatedAt:     time.Now().UTC(),
		GeneratorName: gen.Name(),
		Parameters:    gen.Params(),
		Metrics:       metricsMap,
	}
	if err := t.store.Save(ref, force); err != nil {
		return nil, err
	}

	t.logger.Info().Str("reference", name).Str("generator", gen.Name()).Msg("Reference created")
	return ref, nil
}

// TestRegression re-runs the generator and compares each stored metric
// within its tolerance. Metrics present in the reference but absent from
// the current run are treated as failures with a NaN actual.
func (t *Tester) TestRegression(ctx context.Context, name string, gen strategy.SignalGenerator) (*Result, error) {
	ref, err := t.store.Load(name)
	if err != nil {
		return nil, err
	}

	actual, err := t.run(ctx, gen)
	if err != nil {
		return nil, err
	}

	result := &Result{Name: name}

	metricNames := make([]string, 0, len(ref.Metrics))
	for m := range ref.Metrics {
		metricNames = append(metricNames, m)
	}
	sort.Strings(metricNames)

	for _, metric := range metricNames {
		want := ref.Metrics[metric]
		tolerance := t.tolerances[metric]
		got, ok := actual[metric]
		if !ok {
			result.Failures = append(result.Failures, MetricFailure{
				Metric:    metric,
				Reference: want,
				Actual:    math.NaN(),
				Delta:     math.NaN(),
				Tolerance: tolerance,
			})
			continue
		}
		delta := math.Abs(got - want)
		if delta > tolerance {
			result.Failures = append(result.Failures, MetricFailure{
				Metric:    metric,
				Reference: want,
				Actual:    got,
				Delta:     delta,
				Tolerance: tolerance,
			})
		}
	}

	result.Passed = len(result.Failures) == 0

	t.logger.Info().
		Str("reference", name).
		Bool("passed", result.Passed).
		Int("failures", len(result.Failures)).
		Msg("Regression test complete")

	return result, nil
}

// run executes one simulation and flattens its performance report into
// the snapshot metric map.
func (t *Tester) run(ctx context.Context, gen strategy.SignalGenerator) (map[string]float64, error) {
	signals := gen.Generate(t.bars)
	summary, err := t.runner.Run(ctx, t.instrument, t.bars, signals)
	if err != nil {
		return nil, err
	}
	report, err := t.metrics.Compute(summary.Curve, summary.Trades, nil)
	if err != nil {
		return nil, err
	}
	return SnapshotMetrics(report), nil
}

// SnapshotMetrics flattens a performance report into the persisted metric
// map. Field names are stable: extend additively only; undefined
// statistics are omitted rather than written as zeros.
func SnapshotMetrics(r *models.PerformanceReport) map[string]float64 {
	m := make(map[string]float64)
	put := func(name string, v float64) {
		if !r.IsUndefined(name) {
			m[name] = v
		}
	}
	put("total_return", r.TotalReturn)
	put("annualized_return", r.AnnualizedReturn)
	put("volatility", r.Volatility)
	put("sharpe", r.Sharpe)
	put("sortino", r.Sortino)
	put("calmar", r.Calmar)
	put("max_drawdown", r.MaxDrawdown)
	m["trade_count"] = float64(r.Trades.Count)
	if r.Trades.Defined {
		m["win_rate"] = r.Trades.WinRate
		m["profit_factor"] = r.Trades.ProfitFactor
		m["expectancy"] = r.Trades.Expectancy
	}
	return m
}
