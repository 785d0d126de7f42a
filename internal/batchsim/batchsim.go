// Package batchsim implements a vectorized batch simulator: an
// independent execution path over columnar arrays that must agree with
// the event-driven engine within tolerance. It deliberately shares no
// code with internal/engine beyond the cost model and tick table.
package batchsim

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/jsj9346/spock-sub005/internal/costs"
	"github.com/jsj9346/spock-sub005/internal/engine"
	"github.com/jsj9346/spock-sub005/internal/errors"
	"github.com/jsj9346/spock-sub005/internal/models"
	"github.com/jsj9346/spock-sub005/internal/perf"
	"github.com/jsj9346/spock-sub005/internal/ticks"
)

// Result is the outcome of one vectorized simulation run.
type Result struct {
	Instrument     string
	InitialCapital float64
	FinalEquity    float64
	Curve          models.EquityCurve
	TradeCount     int
	Trades         []models.Trade
}

// columns is the struct-of-arrays view of a bar series. Bulk numeric
// passes operate on these slices; the hot path never walks Bar structs.
type columns struct {
	times  []int64
	closes []float64
	volume []float64
	vol    []float64 // rolling realized volatility per bar
}

// Simulator produces an equity curve from a signal sequence using bulk
// columnar arithmetic.
type Simulator struct {
	cfg            engine.Config
	costsCfg       costs.Config
	tickTable      *ticks.Table
	initialCapital float64
	logger         zerolog.Logger
}

// New creates a batch simulator with the same economic parameters as the
// event-driven runner, so that differences between the two paths reflect
// implementation divergence rather than configuration skew.
func New(cfg engine.Config, costsCfg costs.Config, tickTable *ticks.Table, initialCapital float64, logger zerolog.Logger) (*Simulator, error) {
	if initialCapital <= 0 {
		return nil, errors.NewValidationError("initial_capital", initialCapital, "must be positive")
	}
	if tickTable == nil {
		tickTable = ticks.DefaultTable()
	}
	return &Simulator{
		cfg:            cfg,
		costsCfg:       costsCfg,
		tickTable:      tickTable,
		initialCapital: initialCapital,
		logger:         logger,
	}, nil
}

// Run simulates the signals over the bars. Fills are assumed complete at
// the signal bar's reference price; the participation cap is an
// event-engine refinement, so heavily capped runs are expected to show up
// as validator discrepancies rather than being hidden here.
func (s *Simulator) Run(ctx context.Context, instrument string, bars []models.Bar, signals []models.Signal) (*Result, error) {
	if len(bars) == 0 {
		return nil, errors.Wrap(errors.ErrInsufficientData, "empty bar series")
	}
	if err := engine.ValidateBars(instrument, bars); err != nil {
		return nil, err
	}
	if len(signals) != len(bars) {
		return nil, errors.Wrapf(errors.ErrSeriesSignalMismatch, "%d signals vs %d bars", len(signals), len(bars))
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	tracker := perf.NewRunTracker("batchsim/"+instrument, s.logger)
	defer tracker.Finish()

	costModel, err := costs.NewModel(s.costsCfg, s.logger)
	if err != nil {
		return nil, err
	}

	cols := buildColumns(bars, s.cfg.VolatilityWindow)

	cash := s.initialCapital
	var position int64
	var entryPrice float64
	var entryCosts models.CostBreakdown
	var entryTime int
	equity := make([]float64, len(bars))

	result := &Result{Instrument: instrument, InitialCapital: s.initialCapital}

	for i := range cols.closes {
		action := signals[i].Action
		switch {
		case action == models.ActionBuy && position == 0:
			qty := int64(cash * s.cfg.PositionFraction / cols.closes[i])
			if qty > 0 {
				fillPrice, costsBD, err := s.price(costModel, models.SideBuy, qty, bars[i], cols.vol[i])
				if err != nil {
					return nil, err
				}
				cash -= fillPrice*float64(qty) + costsBD.Total
				position = qty
				entryPrice = fillPrice
				entryCosts = costsBD
				entryTime = i
			}
		case action == models.ActionSell && position > 0:
			if err := s.exit(costModel, &cash, &position, entryPrice, entryCosts, entryTime, i, bars, cols, result); err != nil {
				return nil, err
			}
		}
		equity[i] = cash + float64(position)*cols.closes[i]
	}

	// Mirror the event engine's end-of-run close-out.
	if position > 0 {
		last := len(bars) - 1
		if err := s.exit(costModel, &cash, &position, entryPrice, entryCosts, entryTime, last, bars, cols, result); err != nil {
			return nil, err
		}
		equity[last] = cash
	}

	result.Curve = make(models.EquityCurve, len(bars))
	for i := range equity {
		result.Curve[i] = models.EquityPoint{Timestamp: bars[i].Timestamp, Equity: equity[i]}
	}
	result.FinalEquity = equity[len(equity)-1]

	tracker.SetBars(len(bars))
	return result, nil
}

// exit closes the open position at bar i and records the round trip.
func (s *Simulator) exit(costModel *costs.Model, cash *float64, position *int64, entryPrice float64, entryCosts models.CostBreakdown, entryIdx, i int, bars []models.Bar, cols columns, result *Result) error {
	qty := *position
	fillPrice, exitCosts, err := s.price(costModel, models.SideSell, qty, bars[i], cols.vol[i])
	if err != nil {
		return err
	}
	*cash += fillPrice*float64(qty) - exitCosts.Total
	*position = 0

	costsSum := entryCosts.Add(exitCosts)
	entryNotional := entryPrice * float64(qty)
	pnl := fillPrice*float64(qty) - entryNotional - costsSum.Total
	trade := models.Trade{
		Instrument: result.Instrument,
		Direction:  models.SideBuy,
		Quantity:   qty,
		EntryTime:  bars[entryIdx].Timestamp,
		ExitTime:   bars[i].Timestamp,
		EntryPrice: entryPrice,
		ExitPrice:  fillPrice,
		PnL:        pnl,
		Costs:      costsSum,
	}
	trade.Hold = trade.ExitTime.Sub(trade.EntryTime)
	if entryNotional != 0 {
		trade.PnLPercent = pnl / entryNotional * 100
	}
	result.Trades = append(result.Trades, trade)
	result.TradeCount++
	return nil
}

// price rounds the bar reference to a legal tick and prices the frictions
// for a complete fill.
func (s *Simulator) price(costModel *costs.Model, side models.Side, qty int64, bar models.Bar, recentVol float64) (float64, models.CostBreakdown, error) {
	fillPrice, err := s.tickTable.Round(bar.Close)
	if err != nil {
		return 0, models.CostBreakdown{}, err
	}
	order := &models.Order{Side: side, Quantity: qty, Type: models.OrderTypeMarket}
	breakdown, _, err := costModel.Breakdown(order, bar, fillPrice*float64(qty), recentVol)
	if err != nil {
		return 0, models.CostBreakdown{}, err
	}
	return fillPrice, breakdown, nil
}

// buildColumns extracts the columnar view and precomputes the rolling
// realized-volatility column in single bulk passes.
func buildColumns(bars []models.Bar, window int) columns {
	n := len(bars)
	cols := columns{
		times:  make([]int64, n),
		closes: make([]float64, n),
		volume: make([]float64, n),
		vol:    make([]float64, n),
	}
	for i, b := range bars {
		cols.times[i] = b.Timestamp.UnixNano()
		cols.closes[i] = b.Close
		cols.volume[i] = float64(b.Volume)
	}

	if window <= 0 {
		window = engine.DefaultConfig().VolatilityWindow
	}

	// Rolling population std of simple returns over the trailing window,
	// matching the event engine's warmup behavior (0 until at least two
	// returns are available).
	returns := make([]float64, n)
	for i := 1; i < n; i++ {
		if cols.closes[i-1] != 0 {
			returns[i] = cols.closes[i]/cols.closes[i-1] - 1
		}
	}
	for i := 2; i < n; i++ {
		lo := i - window + 1
		if lo < 1 {
			lo = 1
		}
		count := i - lo + 1
		if count < 2 {
			continue
		}
		var mean float64
		for j := lo; j <= i; j++ {
			mean += returns[j]
		}
		mean /= float64(count)
		var variance float64
		for j := lo; j <= i; j++ {
			d := returns[j] - mean
			variance += d * d
		}
		cols.vol[i] = math.Sqrt(variance / float64(count))
	}
	return cols
}
