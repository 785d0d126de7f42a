package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsj9346/spock-sub005/internal/costs"
	"github.com/jsj9346/spock-sub005/internal/errors"
	"github.com/jsj9346/spock-sub005/internal/models"
)

func newTestRunner(t *testing.T, initialCapital float64) *Runner {
	t.Helper()
	r, err := NewRunner(DefaultConfig(), costs.DefaultConfig(), nil, initialCapital, zerolog.Nop())
	require.NoError(t, err)
	return r
}

func runnerBars(closes []float64) []models.Bar {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = models.Bar{
			Timestamp: base.AddDate(0, 0, i),
			Open:      c,
			High:      c * 1.02,
			Low:       c * 0.98,
			Close:     c,
			Volume:    5_000_000,
		}
	}
	return bars
}

func runnerSignals(bars []models.Bar, actions map[int]models.Action) []models.Signal {
	signals := make([]models.Signal, len(bars))
	for i, b := range bars {
		action := models.ActionHold
		if a, ok := actions[i]; ok {
			action = a
		}
		signals[i] = models.Signal{Timestamp: b.Timestamp, Action: action}
	}
	return signals
}

func TestRunnerValidatesInputs(t *testing.T) {
	r := newTestRunner(t, 10_000_000)
	ctx := context.Background()
	bars := runnerBars([]float64{60_000, 60_100})

	t.Run("empty series", func(t *testing.T) {
		_, err := r.Run(ctx, "005930", nil, nil)
		assert.ErrorIs(t, err, errors.ErrInsufficientData)
	})

	t.Run("signal misalignment", func(t *testing.T) {
		_, err := r.Run(ctx, "005930", bars, runnerSignals(bars, nil)[:1])
		assert.ErrorIs(t, err, errors.ErrSeriesSignalMismatch)
	})

	t.Run("unsorted bars", func(t *testing.T) {
		bad := runnerBars([]float64{60_000, 60_100, 60_200})
		bad[0].Timestamp, bad[2].Timestamp = bad[2].Timestamp, bad[0].Timestamp
		_, err := r.Run(ctx, "005930", bad, runnerSignals(bad, nil))
		assert.ErrorIs(t, err, errors.ErrUnsortedSeries)
	})

	t.Run("non-positive capital", func(t *testing.T) {
		_, err := NewRunner(DefaultConfig(), costs.DefaultConfig(), nil, 0, zerolog.Nop())
		assert.Error(t, err)
	})
}

func TestRunnerRoundTrip(t *testing.T) {
	r := newTestRunner(t, 10_000_000)
	bars := runnerBars([]float64{60_000, 60_000, 63_000, 66_000, 66_000})
	signals := runnerSignals(bars, map[int]models.Action{
		1: models.ActionBuy,
		4: models.ActionSell,
	})

	res, err := r.Run(context.Background(), "005930", bars, signals)
	require.NoError(t, err)

	assert.Equal(t, 2, res.OrdersPlaced)
	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.Equal(t, models.SideBuy, trade.Direction)
	assert.Equal(t, 60_000.0, trade.EntryPrice)
	assert.Equal(t, 66_000.0, trade.ExitPrice)
	assert.Greater(t, trade.PnL, 0.0)
	assert.True(t, trade.Costs.Consistent())

	require.Len(t, res.Curve, len(bars))
	assert.InDelta(t, 10_000_000+trade.PnL, res.FinalEquity, 1e-6)
}

func TestRunnerClosesOutAtEnd(t *testing.T) {
	r := newTestRunner(t, 10_000_000)
	bars := runnerBars([]float64{60_000, 60_000, 61_000, 62_000})
	signals := runnerSignals(bars, map[int]models.Action{1: models.ActionBuy})

	res, err := r.Run(context.Background(), "005930", bars, signals)
	require.NoError(t, err)

	require.Len(t, res.Trades, 1, "open position must close on the final bar")
	last := res.Fills[len(res.Fills)-1]
	assert.Equal(t, models.SideSell, last.Side)
	assert.Equal(t, "end_of_run", last.Metadata["close_out"])
	assert.InDelta(t, res.Curve[len(res.Curve)-1].Equity, res.FinalEquity, 1e-9)
}

func TestRunnerRedundantSignals(t *testing.T) {
	r := newTestRunner(t, 10_000_000)
	bars := runnerBars([]float64{60_000, 60_000, 60_500, 61_000, 61_500, 61_500})
	signals := runnerSignals(bars, map[int]models.Action{
		0: models.ActionSell, // flat, nothing to sell
		1: models.ActionBuy,
		2: models.ActionBuy, // already long
		4: models.ActionSell,
		5: models.ActionSell, // flat again
	})

	res, err := r.Run(context.Background(), "005930", bars, signals)
	require.NoError(t, err)
	assert.Equal(t, 2, res.OrdersPlaced, "redundant signals place no orders")
	assert.Len(t, res.Trades, 1)
}

func TestRunnerSellWhileExitStillWorking(t *testing.T) {
	// A thin market forces the exit to fill across several bars. A second
	// SELL arriving mid-liquidation must replace the working exit, not
	// stack a full-size sell on top of it.
	r := newTestRunner(t, 10_000_000)
	closes := make([]float64, 16)
	for i := range closes {
		closes[i] = 100
	}
	bars := runnerBars(closes)
	for i := range bars {
		bars[i].Volume = 400_000 // 5% cap = 20,000 shares per bar
	}
	signals := runnerSignals(bars, map[int]models.Action{
		0: models.ActionBuy, // 95,000 shares, fills over five bars
		6: models.ActionSell,
		9: models.ActionSell, // first exit still has 35,000 working
	})

	res, err := r.Run(context.Background(), "005930", bars, signals)
	require.NoError(t, err)

	var pos int64
	for _, f := range res.Fills {
		if f.Side == models.SideBuy {
			pos += f.Quantity
		} else {
			pos -= f.Quantity
		}
		require.GreaterOrEqual(t, pos, int64(0), "sold more than held")
	}
	assert.Equal(t, int64(0), pos, "run must end flat")

	assert.Equal(t, 3, res.OrdersPlaced)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, int64(95_000), res.Trades[0].Quantity)
	for _, f := range res.Fills {
		assert.Empty(t, f.Metadata["close_out"], "flat run needs no end-of-run close")
	}
}

func TestRunnerHonorsContextCancellation(t *testing.T) {
	r := newTestRunner(t, 10_000_000)
	bars := runnerBars(make([]float64, 100))
	for i := range bars {
		bars[i].Close = 60_000
		bars[i].Open = 60_000
		bars[i].High = 60_000
		bars[i].Low = 60_000
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, "005930", bars, runnerSignals(bars, nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunnerPerfSample(t *testing.T) {
	r := newTestRunner(t, 10_000_000)
	bars := runnerBars([]float64{60_000, 60_100, 60_200})

	res, err := r.Run(context.Background(), "005930", bars, runnerSignals(bars, nil))
	require.NoError(t, err)
	assert.Equal(t, len(bars), res.Perf.Bars)
	assert.GreaterOrEqual(t, res.Perf.Duration, time.Duration(0))
}
