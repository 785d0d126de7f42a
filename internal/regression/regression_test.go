package regression

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsj9346/spock-sub005/internal/errors"
	"github.com/jsj9346/spock-sub005/internal/metrics"
	"github.com/jsj9346/spock-sub005/internal/models"
	"github.com/jsj9346/spock-sub005/internal/validator"
)

type stubGen struct {
	name   string
	params map[string]float64
}

func (g stubGen) Name() string               { return g.name }
func (g stubGen) Params() map[string]float64 { return g.params }
func (g stubGen) Generate(bars []models.Bar) []models.Signal {
	signals := make([]models.Signal, len(bars))
	for i, b := range bars {
		signals[i] = models.Signal{Timestamp: b.Timestamp, Action: models.ActionHold}
	}
	return signals
}

// stubRunner replays a fixed summary so regression outcomes are fully
// controlled by the test.
type stubRunner struct {
	summary *validator.RunSummary
}

func (r *stubRunner) Name() string { return "stub" }

func (r *stubRunner) Run(ctx context.Context, instrument string, bars []models.Bar, signals []models.Signal) (*validator.RunSummary, error) {
	return r.summary, nil
}

func summaryWithReturn(t *testing.T, perBarReturn float64, trades []models.Trade) *validator.RunSummary {
	t.Helper()
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	curve := make(models.EquityCurve, 30)
	equity := 10_000_000.0
	for i := range curve {
		curve[i] = models.EquityPoint{Timestamp: base.AddDate(0, 0, i), Equity: equity}
		equity *= 1 + perBarReturn
	}
	return &validator.RunSummary{Curve: curve, Trades: trades}
}

func testTrades() []models.Trade {
	return []models.Trade{
		{ID: "T1", PnL: 50_000, Hold: 48 * time.Hour},
		{ID: "T2", PnL: -20_000, Hold: 24 * time.Hour},
	}
}

func newTestTester(t *testing.T, runner validator.Runner) *Tester {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	metricsEng, err := metrics.NewEngine(metrics.DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)

	bars := make([]models.Bar, 30)
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = models.Bar{Timestamp: base.AddDate(0, 0, i), Close: 60_000, Volume: 1_000_000}
	}
	return NewTester(store, runner, metricsEng, "005930", bars, nil, zerolog.Nop())
}

func TestCreateReferenceAndPass(t *testing.T) {
	runner := &stubRunner{summary: summaryWithReturn(t, 0.001, testTrades())}
	tester := newTestTester(t, runner)
	gen := stubGen{name: "sma_cross", params: map[string]float64{"fast": 5, "slow": 20}}
	ctx := context.Background()

	ref, err := tester.CreateReference(ctx, "baseline", gen, false)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, ref.SchemaVersion)
	assert.Equal(t, "sma_cross", ref.GeneratorName)
	assert.Equal(t, 2.0, ref.Metrics["trade_count"])
	assert.Contains(t, ref.Metrics, "total_return")
	assert.Contains(t, ref.Metrics, "win_rate")

	result, err := tester.TestRegression(ctx, "baseline", gen)
	require.NoError(t, err)
	assert.True(t, result.Passed, "unchanged behavior must pass: %+v", result.Failures)
	assert.Empty(t, result.Failures)
}

func TestRegressionDetectsBehaviorDrift(t *testing.T) {
	runner := &stubRunner{summary: summaryWithReturn(t, 0.001, testTrades())}
	tester := newTestTester(t, runner)
	gen := stubGen{name: "sma_cross"}
	ctx := context.Background()

	_, err := tester.CreateReference(ctx, "baseline", gen, false)
	require.NoError(t, err)

	// Same strategy, drifted execution: lower returns and one extra trade.
	drifted := append(testTrades(), models.Trade{ID: "T3", PnL: 1_000})
	runner.summary = summaryWithReturn(t, 0.0005, drifted)

	result, err := tester.TestRegression(ctx, "baseline", gen)
	require.NoError(t, err)
	assert.False(t, result.Passed)

	failed := make(map[string]MetricFailure, len(result.Failures))
	for _, f := range result.Failures {
		failed[f.Metric] = f
	}
	assert.Contains(t, failed, "total_return")
	assert.Contains(t, failed, "trade_count", "trade_count tolerance is exact")
	assert.Equal(t, 0.0, failed["trade_count"].Tolerance)
	assert.Equal(t, 1.0, failed["trade_count"].Delta)
}

func TestRegressionMissingMetricFails(t *testing.T) {
	runner := &stubRunner{summary: summaryWithReturn(t, 0.001, testTrades())}
	tester := newTestTester(t, runner)
	gen := stubGen{name: "sma_cross"}
	ctx := context.Background()

	_, err := tester.CreateReference(ctx, "baseline", gen, false)
	require.NoError(t, err)

	// The re-run produces no trades, so the trade-quality metrics the
	// reference recorded are now undefined and absent.
	runner.summary = summaryWithReturn(t, 0.001, nil)

	result, err := tester.TestRegression(ctx, "baseline", gen)
	require.NoError(t, err)
	assert.False(t, result.Passed)

	var winRate *MetricFailure
	for i := range result.Failures {
		if result.Failures[i].Metric == "win_rate" {
			winRate = &result.Failures[i]
		}
	}
	require.NotNil(t, winRate, "missing win_rate must be reported")
	assert.True(t, math.IsNaN(winRate.Actual))
}

func TestCreateReferenceConflict(t *testing.T) {
	runner := &stubRunner{summary: summaryWithReturn(t, 0.001, testTrades())}
	tester := newTestTester(t, runner)
	gen := stubGen{name: "sma_cross"}
	ctx := context.Background()

	_, err := tester.CreateReference(ctx, "baseline", gen, false)
	require.NoError(t, err)

	_, err = tester.CreateReference(ctx, "baseline", gen, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrReferenceConflict)

	_, err = tester.CreateReference(ctx, "baseline", gen, true)
	assert.NoError(t, err, "force overwrites an existing reference")
}

func TestRegressionUnknownReference(t *testing.T) {
	runner := &stubRunner{summary: summaryWithReturn(t, 0.001, testTrades())}
	tester := newTestTester(t, runner)

	_, err := tester.TestRegression(context.Background(), "missing", stubGen{name: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrReferenceNotFound)
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	ref := &ReferenceResult{
		TestName:      "alpha",
		CreatedAt:     time.Now().UTC(),
		GeneratorName: "sma_cross",
		Parameters:    map[string]float64{"fast": 5},
		Metrics:       map[string]float64{"total_return": 0.12, "trade_count": 7},
	}
	require.NoError(t, store.Save(ref, false))

	t.Run("load survives a cold cache", func(t *testing.T) {
		cold, err := NewFileStore(dir)
		require.NoError(t, err)
		got, err := cold.Load("alpha")
		require.NoError(t, err)
		assert.Equal(t, ref.Metrics, got.Metrics)
		assert.Equal(t, SchemaVersion, got.SchemaVersion)
	})

	t.Run("list", func(t *testing.T) {
		second := &ReferenceResult{TestName: "beta", Metrics: map[string]float64{}}
		require.NoError(t, store.Save(second, false))
		names, err := store.List()
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "beta"}, names)
	})

	t.Run("empty name rejected", func(t *testing.T) {
		assert.Error(t, store.Save(&ReferenceResult{}, false))
	})

	t.Run("path separators rejected", func(t *testing.T) {
		for _, name := range []string{"../escape", "a/b", `a\b`} {
			err := store.Save(&ReferenceResult{TestName: name}, false)
			assert.Error(t, err, name)
		}
		if _, err := os.Stat(filepath.Join(dir, "..", "escape.json")); !os.IsNotExist(err) {
			t.Fatalf("reference escaped the store directory")
		}
	})
}

func TestSnapshotMetricsOmitsUndefined(t *testing.T) {
	report := &models.PerformanceReport{
		TotalReturn: 0.1,
		Sharpe:      1.2,
		Undefined:   []string{"sortino", "calmar"},
		Trades:      models.TradeStats{Count: 0},
	}
	m := SnapshotMetrics(report)

	assert.Contains(t, m, "total_return")
	assert.Contains(t, m, "sharpe")
	assert.NotContains(t, m, "sortino")
	assert.NotContains(t, m, "calmar")
	assert.Equal(t, 0.0, m["trade_count"], "trade_count is always recorded")
	assert.NotContains(t, m, "win_rate", "undefined trade stats are omitted")
}
