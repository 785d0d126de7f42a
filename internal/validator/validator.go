// Package validator cross-checks the event-driven engine and the
// vectorized batch simulator on identical inputs and scores their
// agreement.
package validator

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jsj9346/spock-sub005/internal/batchsim"
	"github.com/jsj9346/spock-sub005/internal/costs"
	"github.com/jsj9346/spock-sub005/internal/engine"
	"github.com/jsj9346/spock-sub005/internal/errors"
	"github.com/jsj9346/spock-sub005/internal/metrics"
	"github.com/jsj9346/spock-sub005/internal/models"
	"github.com/jsj9346/spock-sub005/internal/perf"
	"github.com/jsj9346/spock-sub005/internal/strategy"
	"github.com/jsj9346/spock-sub005/internal/ticks"
)

// RunSummary is the comparable outcome of one simulation path.
type RunSummary struct {
	TotalReturn float64
	TradeCount  int
	Sharpe      float64
	MaxDrawdown float64
	Curve       models.EquityCurve
	Trades      []models.Trade
}

// Runner adapts one execution path to a common contract so both
// simulators can be driven from identical inputs.
type Runner interface {
	Name() string
	Run(ctx context.Context, instrument string, bars []models.Bar, signals []models.Signal) (*RunSummary, error)
}

// Per-metric agreement weights. Return dominates; drawdown is the most
// noise-prone and weighs least.
const (
	weightReturn     = 0.4
	weightTradeCount = 0.3
	weightSharpe     = 0.2
	weightDrawdown   = 0.1
)

// Config holds validator parameters.
type Config struct {
	Tolerance     float64 `mapstructure:"tolerance"`
	PassThreshold float64 `mapstructure:"pass_threshold"`
}

// DefaultConfig returns the standard tolerance and pass bar.
func DefaultConfig() Config {
	return Config{
		Tolerance:     0.05,
		PassThreshold: 0.90,
	}
}

// Validator runs both execution paths and compares their outputs.
type Validator struct {
	cfg        Config
	engineRun  Runner
	batchRun   Runner
	instrument string
	bars       []models.Bar
	history    *History
	logger     zerolog.Logger
}

// New creates a validator over a fixed bar series. history may be nil to
// skip persistence.
func New(cfg Config, engineRun, batchRun Runner, instrument string, bars []models.Bar, history *History, logger zerolog.Logger) (*Validator, error) {
	if cfg.PassThreshold < 0 || cfg.PassThreshold > 1 {
		return nil, errors.NewValidationError("pass_threshold", cfg.PassThreshold, "must be in [0,1]")
	}
	return &Validator{
		cfg:        cfg,
		engineRun:  engineRun,
		batchRun:   batchRun,
		instrument: instrument,
		bars:       bars,
		history:    history,
		logger:     logger,
	}, nil
}

// Validate runs both simulators on the generator's signals and produces a
// consistency report. Disagreement is data for the caller, not an error;
// only run failures return a non-nil error.
func (v *Validator) Validate(ctx context.Context, gen strategy.SignalGenerator) (*models.ValidationReport, error) {
	signals := gen.Generate(v.bars)

	a, err := v.engineRun.Run(ctx, v.instrument, v.bars, signals)
	if err != nil {
		return nil, errors.Wrapf(err, "%s run", v.engineRun.Name())
	}
	b, err := v.batchRun.Run(ctx, v.instrument, v.bars, signals)
	if err != nil {
		return nil, errors.Wrapf(err, "%s run", v.batchRun.Name())
	}

	report := v.compare(gen.Name(), a, b)

	if v.history != nil {
		if err := v.history.Append(report); err != nil {
			v.logger.Warn().Err(err).Msg("Failed to append validation history")
		}
	}
	return report, nil
}

// compare scores per-metric agreement and itemizes discrepancies beyond
// tolerance.
func (v *Validator) compare(generatorName string, a, b *RunSummary) *models.ValidationReport {
	report := &models.ValidationReport{
		ID:            uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		GeneratorName: generatorName,
		Tolerance:     v.cfg.Tolerance,
		Deltas:        make(map[string]float64),
	}

	type comparison struct {
		metric string
		va, vb float64
		weight float64
	}
	comparisons := []comparison{
		{"total_return", a.TotalReturn, b.TotalReturn, weightReturn},
		{"trade_count", float64(a.TradeCount), float64(b.TradeCount), weightTradeCount},
		{"sharpe", a.Sharpe, b.Sharpe, weightSharpe},
		{"max_drawdown", a.MaxDrawdown, b.MaxDrawdown, weightDrawdown},
	}

	var score float64
	for _, c := range comparisons {
		delta := math.Abs(c.va - c.vb)
		report.Deltas[c.metric] = delta
		agreement := Agreement(c.va, c.vb, v.cfg.Tolerance)
		score += c.weight * agreement
		if agreement < 1 {
			report.Discrepancies = append(report.Discrepancies, models.Discrepancy{
				Metric: c.metric,
				ValueA: c.va,
				ValueB: c.vb,
				Delta:  delta,
			})
		}
	}

	report.ConsistencyScore = clamp01(score)
	report.Passed = report.ConsistencyScore >= v.cfg.PassThreshold

	v.logger.Info().
		Str("generator", generatorName).
		Float64("score", report.ConsistencyScore).
		Bool("passed", report.Passed).
		Int("discrepancies", len(report.Discrepancies)).
		Msg("Validation complete")

	return report
}

// Agreement scores how closely two metric values agree under a tolerance:
// 1 - min(1, |a-b|/tolerance). A non-positive tolerance degrades to exact
// matching. The result is always in [0,1], whatever the inputs.
func Agreement(a, b, tolerance float64) float64 {
	delta := math.Abs(a - b)
	if math.IsNaN(delta) {
		return 0
	}
	if tolerance <= 0 {
		if delta == 0 {
			return 1
		}
		return 0
	}
	ratio := delta / tolerance
	if ratio > 1 || math.IsNaN(ratio) {
		ratio = 1
	}
	return clamp01(1 - ratio)
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Ranked pairs a generator with its validation outcome.
type Ranked struct {
	Report *models.ValidationReport
	Err    error
}

// ValidateBatch validates multiple generators in parallel and returns
// reports ranked by consistency score, best first. Each generator's run
// is independent; results are merged after all runs complete.
func (v *Validator) ValidateBatch(ctx context.Context, gens []strategy.SignalGenerator, pool *perf.WorkerPool) []Ranked {
	results := make([]Ranked, len(gens))
	run := func(i int) {
		report, err := v.Validate(ctx, gens[i])
		results[i] = Ranked{Report: report, Err: err}
	}

	if pool != nil {
		pool.Run(len(gens), run)
	} else {
		for i := range gens {
			run(i)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		ri, rj := results[i], results[j]
		if ri.Err != nil {
			return false
		}
		if rj.Err != nil {
			return true
		}
		return ri.Report.ConsistencyScore > rj.Report.ConsistencyScore
	})
	return results
}

// NewEngineRunner adapts the event-driven runner to the Runner contract.
func NewEngineRunner(cfg engine.Config, costsCfg costs.Config, tickTable *ticks.Table, metricsEng *metrics.Engine, initialCapital float64, logger zerolog.Logger) (Runner, error) {
	r, err := engine.NewRunner(cfg, costsCfg, tickTable, initialCapital, logger)
	if err != nil {
		return nil, err
	}
	return &engineRunner{runner: r, metrics: metricsEng}, nil
}

type engineRunner struct {
	runner  *engine.Runner
	metrics *metrics.Engine
}

func (r *engineRunner) Name() string { return "order_execution_engine" }

func (r *engineRunner) Run(ctx context.Context, instrument string, bars []models.Bar, signals []models.Signal) (*RunSummary, error) {
	res, err := r.runner.Run(ctx, instrument, bars, signals)
	if err != nil {
		return nil, err
	}
	report, err := r.metrics.Compute(res.Curve, res.Trades, nil)
	if err != nil {
		return nil, err
	}
	return &RunSummary{
		TotalReturn: report.TotalReturn,
		TradeCount:  len(res.Trades),
		Sharpe:      report.Sharpe,
		MaxDrawdown: report.MaxDrawdown,
		Curve:       res.Curve,
		Trades:      res.Trades,
	}, nil
}

// NewBatchRunner adapts the vectorized simulator to the Runner contract.
func NewBatchRunner(cfg engine.Config, costsCfg costs.Config, tickTable *ticks.Table, metricsEng *metrics.Engine, initialCapital float64, logger zerolog.Logger) (Runner, error) {
	s, err := batchsim.New(cfg, costsCfg, tickTable, initialCapital, logger)
	if err != nil {
		return nil, err
	}
	return &batchRunner{sim: s, metrics: metricsEng}, nil
}

type batchRunner struct {
	sim     *batchsim.Simulator
	metrics *metrics.Engine
}

func (r *batchRunner) Name() string { return "batch_simulator" }

func (r *batchRunner) Run(ctx context.Context, instrument string, bars []models.Bar, signals []models.Signal) (*RunSummary, error) {
	res, err := r.sim.Run(ctx, instrument, bars, signals)
	if err != nil {
		return nil, err
	}
	report, err := r.metrics.Compute(res.Curve, res.Trades, nil)
	if err != nil {
		return nil, err
	}
	return &RunSummary{
		TotalReturn: report.TotalReturn,
		TradeCount:  res.TradeCount,
		Sharpe:      report.Sharpe,
		MaxDrawdown: report.MaxDrawdown,
		Curve:       res.Curve,
		Trades:      res.Trades,
	}, nil
}
