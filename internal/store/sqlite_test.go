package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsj9346/spock-sub005/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleBars(n int) []models.Bar {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	for i := range bars {
		close := 60_000 + float64(i)*100
		bars[i] = models.Bar{
			Timestamp: base.AddDate(0, 0, i),
			Open:      close - 50,
			High:      close + 100,
			Low:       close - 100,
			Close:     close,
			Volume:    1_000_000 + int64(i),
		}
	}
	return bars
}

func TestSaveAndLoadBars(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	bars := sampleBars(10)

	require.NoError(t, s.SaveBars(ctx, "005930", "day", bars))

	loaded, err := s.LoadBars(ctx, "005930", "day", bars[0].Timestamp, bars[9].Timestamp)
	require.NoError(t, err)
	require.Len(t, loaded, 10)
	for i := range loaded {
		assert.True(t, loaded[i].Timestamp.Equal(bars[i].Timestamp), "bar %d", i)
		assert.Equal(t, bars[i].Close, loaded[i].Close)
		assert.Equal(t, bars[i].Volume, loaded[i].Volume)
	}

	t.Run("date range narrows the result", func(t *testing.T) {
		partial, err := s.LoadBars(ctx, "005930", "day", bars[3].Timestamp, bars[6].Timestamp)
		require.NoError(t, err)
		assert.Len(t, partial, 4)
	})

	t.Run("other symbol is empty", func(t *testing.T) {
		other, err := s.LoadBars(ctx, "000660", "day", bars[0].Timestamp, bars[9].Timestamp)
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("re-import upserts instead of duplicating", func(t *testing.T) {
		amended := sampleBars(10)
		amended[0].Close = 59_000
		require.NoError(t, s.SaveBars(ctx, "005930", "day", amended))

		again, err := s.LoadBars(ctx, "005930", "day", bars[0].Timestamp, bars[9].Timestamp)
		require.NoError(t, err)
		require.Len(t, again, 10)
		assert.Equal(t, 59_000.0, again[0].Close)
	})
}

func TestLatestBar(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("empty table", func(t *testing.T) {
		latest, err := s.LatestBar(ctx, "005930", "day")
		require.NoError(t, err)
		assert.True(t, latest.IsZero())
	})

	bars := sampleBars(5)
	require.NoError(t, s.SaveBars(ctx, "005930", "day", bars))

	latest, err := s.LatestBar(ctx, "005930", "day")
	require.NoError(t, err)
	assert.True(t, latest.Equal(bars[4].Timestamp))
}

func TestSaveRunAndLoadTrades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	trades := []models.Trade{
		{
			ID: "T1", Instrument: "005930", Direction: models.SideBuy, Quantity: 100,
			EntryTime: entry, ExitTime: entry.AddDate(0, 0, 3),
			EntryPrice: 60_000, ExitPrice: 63_000, PnL: 280_000, PnLPercent: 4.67,
			Costs: models.NewCostBreakdown(1_800, 14_490, 6_150),
		},
		{
			ID: "T2", Instrument: "005930", Direction: models.SideBuy, Quantity: 50,
			EntryTime: entry.AddDate(0, 0, 5), ExitTime: entry.AddDate(0, 0, 6),
			EntryPrice: 63_000, ExitPrice: 62_000, PnL: -60_000, PnLPercent: -1.9,
			Costs: models.NewCostBreakdown(945, 7_130, 3_125),
		},
	}
	run := RunRecord{
		ID: "run-1", CreatedAt: time.Now().UTC(), Strategy: "sma_cross",
		Instrument: "005930", Bars: 250, TotalReturn: 0.022, Sharpe: 1.1,
		MaxDrawdown: 0.04, TradeCount: len(trades),
	}
	require.NoError(t, s.SaveRun(ctx, run, trades))

	t.Run("filter by run", func(t *testing.T) {
		got, err := s.LoadTrades(ctx, TradeFilter{RunID: "run-1"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "T1", got[0].ID, "ordered by entry time")
		assert.Equal(t, models.SideBuy, got[0].Direction)
		assert.InDelta(t, 22_440.0, got[0].Costs.Total, 1e-9, "breakdown is rebuilt additively")
		assert.Equal(t, 3*24*time.Hour, got[0].Hold)
	})

	t.Run("filter by date", func(t *testing.T) {
		got, err := s.LoadTrades(ctx, TradeFilter{StartDate: entry.AddDate(0, 0, 4)})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "T2", got[0].ID)
	})

	t.Run("limit", func(t *testing.T) {
		got, err := s.LoadTrades(ctx, TradeFilter{RunID: "run-1", Limit: 1})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("duplicate run id rejected", func(t *testing.T) {
		assert.Error(t, s.SaveRun(ctx, run, nil))
	})
}

func TestListRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, strat := range []string{"sma_cross", "rsi_reversion", "sma_cross"} {
		run := RunRecord{
			ID: "run-" + strat + string(rune('a'+i)), CreatedAt: base.AddDate(0, 0, i),
			Strategy: strat, Instrument: "005930", Bars: 100,
		}
		require.NoError(t, s.SaveRun(ctx, run, nil))
	}

	all, err := s.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].CreatedAt.After(all[1].CreatedAt), "most recent first")

	filtered, err := s.ListRuns(ctx, "sma_cross", 0)
	require.NoError(t, err)
	assert.Len(t, filtered, 2)

	limited, err := s.ListRuns(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
