// Package walkforward partitions a bar history into train/test windows,
// optimizes strategy parameters on each train slice, and measures how
// much of the in-sample edge survives out of sample.
package walkforward

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jsj9346/spock-sub005/internal/errors"
	"github.com/jsj9346/spock-sub005/internal/metrics"
	"github.com/jsj9346/spock-sub005/internal/models"
	"github.com/jsj9346/spock-sub005/internal/perf"
	"github.com/jsj9346/spock-sub005/internal/strategy"
	"github.com/jsj9346/spock-sub005/internal/validator"
)

// Mode selects how the train window moves between folds.
type Mode string

const (
	// ModeRolling slides a fixed-width train window forward each step.
	ModeRolling Mode = "rolling"
	// ModeAnchored grows the train window from a fixed start while the
	// test window slides.
	ModeAnchored Mode = "anchored"
)

// Optimization objectives.
const (
	ObjectiveSharpe      = "sharpe"
	ObjectiveTotalReturn = "total_return"
	ObjectiveWinRate     = "win_rate"
)

// Config holds walk-forward parameters.
type Config struct {
	Mode                 Mode    `mapstructure:"mode"`
	TrainBars            int     `mapstructure:"train_bars"`
	TestBars             int     `mapstructure:"test_bars"`
	StepBars             int     `mapstructure:"step_bars"`
	Objective            string  `mapstructure:"objective"`
	MinTrades            int     `mapstructure:"min_trades"`
	DegradationThreshold float64 `mapstructure:"degradation_threshold"`
	StabilityThreshold   float64 `mapstructure:"stability_threshold"`
	Workers              int     `mapstructure:"workers"`
}

// DefaultConfig returns the standard walk-forward setup: rolling windows
// stepping by one full test slice, optimizing Sharpe.
func DefaultConfig() Config {
	return Config{
		Mode:                 ModeRolling,
		TrainBars:            252,
		TestBars:             63,
		StepBars:             63,
		Objective:            ObjectiveSharpe,
		MinTrades:            5,
		DegradationThreshold: 0.5,
		StabilityThreshold:   0.5,
		Workers:              0,
	}
}

// Window is one train/test partition. Indices are half-open bar ranges
// into the full series; TestStart always equals TrainEnd.
type Window struct {
	TrainStart int `json:"train_start"`
	TrainEnd   int `json:"train_end"`
	TestStart  int `json:"test_start"`
	TestEnd    int `json:"test_end"`
}

// WindowResult is the outcome of optimizing one window.
type WindowResult struct {
	Window      Window             `json:"window"`
	BestParams  map[string]float64 `json:"best_params"`
	TrainMetric float64            `json:"train_metric"`
	TestMetric  float64            `json:"test_metric"`
	Degradation float64            `json:"degradation"`
	TestTrades  int                `json:"test_trades"`
	Excluded    bool               `json:"excluded"`
}

// Result aggregates all windows into a robustness verdict. Overfit is
// data the caller acts on, not an error.
type Result struct {
	Strategy        string         `json:"strategy"`
	Objective       string         `json:"objective"`
	Windows         []WindowResult `json:"windows"`
	IncludedWindows int            `json:"included_windows"`
	MeanDegradation float64        `json:"mean_degradation"`
	Stability       float64        `json:"stability"`
	RobustnessScore float64        `json:"robustness_score"`
	Overfit         bool           `json:"overfit"`
}

// Optimizer runs walk-forward analysis for one strategy factory over one
// execution path.
type Optimizer struct {
	cfg     Config
	factory strategy.Factory
	runner  validator.Runner
	metrics *metrics.Engine
	logger  zerolog.Logger
}

// New creates a walk-forward optimizer.
func New(cfg Config, factory strategy.Factory, runner validator.Runner, metricsEng *metrics.Engine, logger zerolog.Logger) *Optimizer {
	if cfg.StepBars <= 0 {
		cfg.StepBars = cfg.TestBars
	}
	return &Optimizer{
		cfg:     cfg,
		factory: factory,
		runner:  runner,
		metrics: metricsEng,
		logger:  logger,
	}
}

// Optimize grid-searches the parameter space on each train window, then
// scores the winner on the untouched test window. Windows are independent
// and evaluated in parallel; the merge happens after all complete.
func (o *Optimizer) Optimize(ctx context.Context, instrument string, bars []models.Bar, grid map[string][]float64) (*Result, error) {
	if err := validateObjective(o.cfg.Objective); err != nil {
		return nil, err
	}
	combos := expandGrid(grid)
	if len(combos) == 0 {
		return nil, errors.Wrapf(errors.ErrEmptyParameterGrid, "strategy %s", o.factory.Name())
	}
	windows := buildWindows(o.cfg, len(bars))
	if len(windows) == 0 {
		return nil, errors.Wrapf(errors.ErrInsufficientWindowSpan,
			"have %d bars, need at least %d", len(bars), o.cfg.TrainBars+o.cfg.TestBars)
	}

	o.logger.Info().
		Str("strategy", o.factory.Name()).
		Str("mode", string(o.cfg.Mode)).
		Int("windows", len(windows)).
		Int("candidates", len(combos)).
		Msg("Walk-forward optimization started")

	results := make([]WindowResult, len(windows))
	errs := make([]error, len(windows))

	pool := perf.NewWorkerPool(o.cfg.Workers)
	pool.Start()
	defer pool.Stop()

	var mu sync.Mutex
	pool.Run(len(windows), func(i int) {
		if ctx.Err() != nil {
			mu.Lock()
			errs[i] = ctx.Err()
			mu.Unlock()
			return
		}
		wr, err := o.evaluateWindow(ctx, instrument, bars, windows[i], combos)
		mu.Lock()
		results[i] = wr
		errs[i] = err
		mu.Unlock()
	})

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	res := o.aggregate(results)
	o.logger.Info().
		Str("strategy", res.Strategy).
		Float64("robustness", res.RobustnessScore).
		Float64("mean_degradation", res.MeanDegradation).
		Float64("stability", res.Stability).
		Bool("overfit", res.Overfit).
		Msg("Walk-forward optimization complete")
	return res, nil
}

// evaluateWindow grid-searches the train slice, then scores the winning
// parameters on the test slice. Ties break toward the earlier candidate
// so results are deterministic.
func (o *Optimizer) evaluateWindow(ctx context.Context, instrument string, bars []models.Bar, w Window, combos []map[string]float64) (WindowResult, error) {
	wr := WindowResult{Window: w}

	bestMetric := math.Inf(-1)
	var bestParams map[string]float64
	train := bars[w.TrainStart:w.TrainEnd]

	for _, params := range combos {
		if ctx.Err() != nil {
			return wr, ctx.Err()
		}
		metric, _, err := o.score(ctx, instrument, train, params)
		if err != nil {
			return wr, err
		}
		if metric > bestMetric {
			bestMetric = metric
			bestParams = params
		}
	}

	test := bars[w.TestStart:w.TestEnd]
	testMetric, testTrades, err := o.score(ctx, instrument, test, bestParams)
	if err != nil {
		return wr, err
	}

	wr.BestParams = bestParams
	wr.TrainMetric = bestMetric
	wr.TestMetric = testMetric
	wr.TestTrades = testTrades
	wr.Degradation = degradation(bestMetric, testMetric)
	wr.Excluded = testTrades < o.cfg.MinTrades
	return wr, nil
}

// score runs one candidate over one slice and extracts the objective.
func (o *Optimizer) score(ctx context.Context, instrument string, bars []models.Bar, params map[string]float64) (float64, int, error) {
	gen, err := o.factory.Build(params)
	if err != nil {
		return 0, 0, err
	}
	signals := gen.Generate(bars)
	summary, err := o.runner.Run(ctx, instrument, bars, signals)
	if err != nil {
		return 0, 0, err
	}
	report, err := o.metrics.Compute(summary.Curve, summary.Trades, nil)
	if err != nil {
		return 0, 0, err
	}
	return objectiveValue(o.cfg.Objective, report), len(summary.Trades), nil
}

// aggregate merges window results into the robustness verdict. Excluded
// windows stay in the result for inspection but do not contribute to
// the aggregate scores.
func (o *Optimizer) aggregate(windows []WindowResult) *Result {
	res := &Result{
		Strategy:  o.factory.Name(),
		Objective: o.cfg.Objective,
		Windows:   windows,
	}

	var sumDeg float64
	paramCounts := make(map[string]int)
	for _, w := range windows {
		if w.Excluded {
			continue
		}
		res.IncludedWindows++
		sumDeg += clamp01(w.Degradation)
		paramCounts[paramKey(w.BestParams)]++
	}
	if res.IncludedWindows == 0 {
		o.logger.Warn().Int("windows", len(windows)).Msg("All windows excluded by minimum trade count")
		return res
	}

	res.MeanDegradation = sumDeg / float64(res.IncludedWindows)

	// Stability is the share of windows agreeing with the modal
	// parameter set. 1.0 means every window picked the same winner.
	modal := 0
	for _, c := range paramCounts {
		if c > modal {
			modal = c
		}
	}
	res.Stability = float64(modal) / float64(res.IncludedWindows)

	res.RobustnessScore = 0.6*(1-res.MeanDegradation) + 0.4*res.Stability
	res.Overfit = res.MeanDegradation > o.cfg.DegradationThreshold ||
		res.Stability < o.cfg.StabilityThreshold
	return res
}

// degradation measures in-sample edge lost out of sample as a fraction
// of the train metric. A non-positive train metric carries no edge to
// lose, so a weaker test result counts as full degradation.
func degradation(train, test float64) float64 {
	if train <= 0 {
		if test >= train {
			return 0
		}
		return 1
	}
	return (train - test) / train
}

func validateObjective(objective string) error {
	switch objective {
	case ObjectiveSharpe, ObjectiveTotalReturn, ObjectiveWinRate:
		return nil
	default:
		return errors.Wrapf(errors.ErrUnknownObjective, "%q", objective)
	}
}

func objectiveValue(objective string, r *models.PerformanceReport) float64 {
	switch objective {
	case ObjectiveTotalReturn:
		return r.TotalReturn
	case ObjectiveWinRate:
		if !r.Trades.Defined {
			return 0
		}
		return r.Trades.WinRate
	default:
		return r.Sharpe
	}
}

// buildWindows lays out train/test partitions over n bars. The test
// slice never overlaps its train slice, and the final partial window is
// dropped rather than scored on a truncated test range.
func buildWindows(cfg Config, n int) []Window {
	step := cfg.StepBars
	if step <= 0 {
		step = cfg.TestBars
	}
	if cfg.TrainBars <= 0 || cfg.TestBars <= 0 || step <= 0 {
		return nil
	}

	var windows []Window
	for start := 0; start+cfg.TrainBars+cfg.TestBars <= n; start += step {
		trainStart := start
		if cfg.Mode == ModeAnchored {
			trainStart = 0
		}
		trainEnd := start + cfg.TrainBars
		windows = append(windows, Window{
			TrainStart: trainStart,
			TrainEnd:   trainEnd,
			TestStart:  trainEnd,
			TestEnd:    trainEnd + cfg.TestBars,
		})
	}
	return windows
}

// expandGrid produces the cartesian product of the parameter axes in a
// deterministic order. An axis with no values empties the grid.
func expandGrid(grid map[string][]float64) []map[string]float64 {
	if len(grid) == 0 {
		return nil
	}
	axes := make([]string, 0, len(grid))
	for k := range grid {
		if len(grid[k]) == 0 {
			return nil
		}
		axes = append(axes, k)
	}
	sort.Strings(axes)

	combos := []map[string]float64{{}}
	for _, axis := range axes {
		next := make([]map[string]float64, 0, len(combos)*len(grid[axis]))
		for _, base := range combos {
			for _, v := range grid[axis] {
				combo := make(map[string]float64, len(base)+1)
				for k, bv := range base {
					combo[k] = bv
				}
				combo[axis] = v
				next = append(next, combo)
			}
		}
		combos = next
	}
	return combos
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// paramKey canonicalizes a parameter set for stability counting.
func paramKey(params map[string]float64) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := ""
	for _, k := range keys {
		s += fmt.Sprintf("%s=%g;", k, params[k])
	}
	return s
}
