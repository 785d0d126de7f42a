package walkforward

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsj9346/spock-sub005/internal/errors"
	"github.com/jsj9346/spock-sub005/internal/metrics"
	"github.com/jsj9346/spock-sub005/internal/models"
	"github.com/jsj9346/spock-sub005/internal/strategy"
	"github.com/jsj9346/spock-sub005/internal/validator"
)

func TestBuildWindowsRolling(t *testing.T) {
	cfg := Config{Mode: ModeRolling, TrainBars: 100, TestBars: 25, StepBars: 25}

	windows := buildWindows(cfg, 200)
	require.Len(t, windows, 4)

	for i, w := range windows {
		assert.Equal(t, i*25, w.TrainStart, "window %d", i)
		assert.Equal(t, w.TrainStart+100, w.TrainEnd)
		assert.Equal(t, w.TrainEnd, w.TestStart, "test must start where train ends")
		assert.Equal(t, w.TestStart+25, w.TestEnd)
		assert.LessOrEqual(t, w.TestEnd, 200, "partial windows must be dropped")
	}
}

func TestBuildWindowsAnchored(t *testing.T) {
	cfg := Config{Mode: ModeAnchored, TrainBars: 100, TestBars: 25, StepBars: 25}

	windows := buildWindows(cfg, 200)
	require.Len(t, windows, 4)

	for i, w := range windows {
		assert.Equal(t, 0, w.TrainStart, "anchored train always starts at the origin")
		assert.Equal(t, 100+i*25, w.TrainEnd, "train grows by one step per window")
		assert.Equal(t, w.TrainEnd, w.TestStart)
	}
}

func TestBuildWindowsInsufficientSpan(t *testing.T) {
	cfg := Config{Mode: ModeRolling, TrainBars: 252, TestBars: 63, StepBars: 63}
	assert.Empty(t, buildWindows(cfg, 300))
	assert.Len(t, buildWindows(cfg, 315), 1)
}

func TestExpandGrid(t *testing.T) {
	t.Run("cartesian product", func(t *testing.T) {
		combos := expandGrid(map[string][]float64{
			"fast": {5, 10},
			"slow": {20, 40, 60},
		})
		require.Len(t, combos, 6)

		seen := make(map[string]bool)
		for _, c := range combos {
			require.Len(t, c, 2)
			seen[paramKey(c)] = true
		}
		assert.Len(t, seen, 6, "combinations must be distinct")
	})

	t.Run("deterministic order", func(t *testing.T) {
		a := expandGrid(map[string][]float64{"b": {1, 2}, "a": {3}})
		b := expandGrid(map[string][]float64{"a": {3}, "b": {1, 2}})
		require.Equal(t, len(a), len(b))
		for i := range a {
			assert.Equal(t, paramKey(a[i]), paramKey(b[i]))
		}
	})

	t.Run("empty grid", func(t *testing.T) {
		assert.Nil(t, expandGrid(nil))
		assert.Nil(t, expandGrid(map[string][]float64{}))
	})

	t.Run("empty axis empties the grid", func(t *testing.T) {
		assert.Nil(t, expandGrid(map[string][]float64{"fast": {5}, "slow": {}}))
	})
}

// Property: degradation of a positive train metric is the lost fraction,
// so test == train scores 0 and test == 0 scores 1.
func TestProperty_DegradationFraction(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("degradation(train, train) == 0", prop.ForAll(
		func(train float64) bool {
			return degradation(train, train) == 0
		},
		gen.Float64Range(0.001, 100),
	))

	properties.Property("degradation(train, 0) == 1 for positive train", prop.ForAll(
		func(train float64) bool {
			d := degradation(train, 0)
			if d != 1 {
				t.Logf("degradation(%f, 0) = %f", train, d)
				return false
			}
			return true
		},
		gen.Float64Range(0.001, 100),
	))

	properties.TestingRun(t)
}

func TestDegradationNonPositiveTrain(t *testing.T) {
	assert.Equal(t, 0.0, degradation(0, 0))
	assert.Equal(t, 0.0, degradation(-0.5, -0.2), "improving on a losing train metric is not degradation")
	assert.Equal(t, 1.0, degradation(-0.5, -0.8), "losing more out of sample is full degradation")
	assert.InDelta(t, 0.5, degradation(2, 1), 1e-9)
	assert.InDelta(t, 1.5, degradation(2, -1), 1e-9, "clamping happens at aggregation, not here")
}

// scriptedRunner synthesizes a constant-return curve per run, letting
// tests script train and test outcomes through the closure.
type scriptedRunner struct {
	perBarReturn func(instrument string, bars []models.Bar, signals []models.Signal) float64
	trades       int
}

func (r *scriptedRunner) Name() string { return "scripted" }

func (r *scriptedRunner) Run(ctx context.Context, instrument string, bars []models.Bar, signals []models.Signal) (*validator.RunSummary, error) {
	ret := r.perBarReturn(instrument, bars, signals)
	curve := make(models.EquityCurve, len(bars))
	equity := 1_000_000.0
	for i, b := range bars {
		curve[i] = models.EquityPoint{Timestamp: b.Timestamp, Equity: equity}
		equity *= 1 + ret
	}
	trades := make([]models.Trade, r.trades)
	for i := range trades {
		trades[i] = models.Trade{PnL: 1}
	}
	return &validator.RunSummary{Curve: curve, Trades: trades}, nil
}

// paramGen ignores bars and simply carries its parameters through.
type paramGen struct {
	params map[string]float64
}

func (g paramGen) Name() string               { return "tunable" }
func (g paramGen) Params() map[string]float64 { return g.params }
func (g paramGen) Generate(bars []models.Bar) []models.Signal {
	signals := make([]models.Signal, len(bars))
	for i, b := range bars {
		signals[i] = models.Signal{Timestamp: b.Timestamp, Action: models.ActionHold}
	}
	return signals
}

type paramFactory struct{}

func (paramFactory) Name() string { return "tunable" }
func (paramFactory) Build(params map[string]float64) (strategy.SignalGenerator, error) {
	return paramGen{params: params}, nil
}

func flatBars(n int) []models.Bar {
	bars := make([]models.Bar, n)
	base := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = models.Bar{Timestamp: base.AddDate(0, 0, i), Close: 60_000, Volume: 1_000_000}
	}
	return bars
}

func newTestOptimizer(t *testing.T, cfg Config, runner validator.Runner) *Optimizer {
	t.Helper()
	metricsEng, err := metrics.NewEngine(metrics.DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	return New(cfg, paramFactory{}, runner, metricsEng, zerolog.Nop())
}

func TestOptimizeValidatesInputs(t *testing.T) {
	runner := &scriptedRunner{
		perBarReturn: func(string, []models.Bar, []models.Signal) float64 { return 0.001 },
		trades:       10,
	}
	ctx := context.Background()

	t.Run("unknown objective", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Objective = "alpha_decay"
		o := newTestOptimizer(t, cfg, runner)
		_, err := o.Optimize(ctx, "005930", flatBars(400), map[string][]float64{"fast": {5}})
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrUnknownObjective)
	})

	t.Run("empty grid", func(t *testing.T) {
		o := newTestOptimizer(t, DefaultConfig(), runner)
		_, err := o.Optimize(ctx, "005930", flatBars(400), nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrEmptyParameterGrid)
	})

	t.Run("insufficient bars", func(t *testing.T) {
		o := newTestOptimizer(t, DefaultConfig(), runner)
		_, err := o.Optimize(ctx, "005930", flatBars(100), map[string][]float64{"fast": {5}})
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInsufficientWindowSpan)
	})
}

// A strategy whose out-of-sample return is less than half its in-sample
// return degrades by more than the default threshold in every window, so
// the aggregate must flag overfitting.
func TestOptimizeFlagsOverfitting(t *testing.T) {
	cfg := Config{
		Mode: ModeRolling, TrainBars: 100, TestBars: 50, StepBars: 50,
		Objective: ObjectiveTotalReturn, MinTrades: 1,
		DegradationThreshold: 0.5, StabilityThreshold: 0.5,
	}
	runner := &scriptedRunner{
		perBarReturn: func(_ string, bars []models.Bar, _ []models.Signal) float64 {
			if len(bars) == cfg.TrainBars {
				return 0.002 // in sample
			}
			return 0.0002 // out of sample
		},
		trades: 10,
	}
	o := newTestOptimizer(t, cfg, runner)

	res, err := o.Optimize(context.Background(), "005930", flatBars(400), map[string][]float64{"fast": {5, 10}})
	require.NoError(t, err)

	assert.Equal(t, len(res.Windows), res.IncludedWindows)
	assert.Greater(t, res.MeanDegradation, 0.5)
	assert.True(t, res.Overfit)
	assert.Equal(t, 1.0, res.Stability, "every window picks the same winner on identical scores")
	for _, w := range res.Windows {
		assert.Greater(t, w.Degradation, 0.5, "window %+v", w.Window)
	}
}

func TestOptimizeStablePerformancePasses(t *testing.T) {
	// Equal train and test widths so the total-return objective compares
	// slices of the same length.
	cfg := Config{
		Mode: ModeRolling, TrainBars: 50, TestBars: 50, StepBars: 50,
		Objective: ObjectiveTotalReturn, MinTrades: 1,
		DegradationThreshold: 0.5, StabilityThreshold: 0.5,
	}
	runner := &scriptedRunner{
		perBarReturn: func(string, []models.Bar, []models.Signal) float64 { return 0.001 },
		trades:       10,
	}
	o := newTestOptimizer(t, cfg, runner)

	res, err := o.Optimize(context.Background(), "005930", flatBars(400), map[string][]float64{"fast": {5, 10}})
	require.NoError(t, err)

	assert.False(t, res.Overfit)
	assert.Less(t, res.MeanDegradation, 0.5)
	assert.Equal(t, 1.0, res.Stability)
	assert.Greater(t, res.RobustnessScore, 0.5)
}

func TestOptimizeExcludesQuietWindows(t *testing.T) {
	cfg := Config{
		Mode: ModeRolling, TrainBars: 100, TestBars: 50, StepBars: 50,
		Objective: ObjectiveTotalReturn, MinTrades: 5,
		DegradationThreshold: 0.5, StabilityThreshold: 0.5,
	}
	runner := &scriptedRunner{
		perBarReturn: func(string, []models.Bar, []models.Signal) float64 { return 0.001 },
		trades:       2, // below the minimum
	}
	o := newTestOptimizer(t, cfg, runner)

	res, err := o.Optimize(context.Background(), "005930", flatBars(400), map[string][]float64{"fast": {5}})
	require.NoError(t, err)

	assert.Equal(t, 0, res.IncludedWindows)
	assert.False(t, res.Overfit, "an all-excluded result carries no verdict")
	for _, w := range res.Windows {
		assert.True(t, w.Excluded)
	}
}

func TestNewDefaultsStepToTestBars(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StepBars = 0
	o := New(cfg, paramFactory{}, nil, nil, zerolog.Nop())
	assert.Equal(t, cfg.TestBars, o.cfg.StepBars)
}
