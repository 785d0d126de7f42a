package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jsj9346/spock-sub005/internal/costs"
	"github.com/jsj9346/spock-sub005/internal/errors"
	"github.com/jsj9346/spock-sub005/internal/models"
	"github.com/jsj9346/spock-sub005/internal/perf"
	"github.com/jsj9346/spock-sub005/internal/ticks"
)

// Result is the outcome of one event-driven simulation run.
type Result struct {
	RunID          string
	Instrument     string
	InitialCapital float64
	FinalEquity    float64
	Curve          models.EquityCurve
	Fills          []models.Fill
	Trades         []models.Trade
	OrdersPlaced   int
	Warnings       []string
	Perf           perf.Sample
}

// TradeCount returns the number of closed round trips.
func (r *Result) TradeCount() int { return len(r.Trades) }

// Runner drives the execution engine from a signal sequence: it owns the
// signal-to-order translation, the ledger, and the equity curve. One run
// over one range is a pure function of its inputs.
type Runner struct {
	cfg            Config
	costsCfg       costs.Config
	tickTable      *ticks.Table
	initialCapital float64
	logger         zerolog.Logger
}

// NewRunner creates a runner. Each Run constructs a fresh engine and
// ledger so runs never share mutable state.
func NewRunner(cfg Config, costsCfg costs.Config, tickTable *ticks.Table, initialCapital float64, logger zerolog.Logger) (*Runner, error) {
	if initialCapital <= 0 {
		return nil, errors.NewValidationError("initial_capital", initialCapital, "must be positive")
	}
	if tickTable == nil {
		tickTable = ticks.DefaultTable()
	}
	return &Runner{
		cfg:            cfg,
		costsCfg:       costsCfg,
		tickTable:      tickTable,
		initialCapital: initialCapital,
		logger:         logger,
	}, nil
}

// Run simulates the signal sequence against the bar series. The series
// must be sorted and the signals aligned one-to-one with the bars; both
// are fatal errors otherwise. Orders for a bar's signal are submitted and
// executed against that bar; unfilled remainders carry forward.
// Cancellation applies at run granularity via ctx.
func (r *Runner) Run(ctx context.Context, instrument string, bars []models.Bar, signals []models.Signal) (*Result, error) {
	if len(bars) == 0 {
		return nil, errors.Wrap(errors.ErrInsufficientData, "empty bar series")
	}
	if err := ValidateBars(instrument, bars); err != nil {
		return nil, err
	}
	if len(signals) != len(bars) {
		return nil, errors.Wrapf(errors.ErrSeriesSignalMismatch, "%d signals vs %d bars", len(signals), len(bars))
	}

	runID := uuid.NewString()
	logger := r.logger.With().Str("run_id", runID).Str("instrument", instrument).Logger()
	tracker := perf.NewRunTracker("engine/"+instrument, logger)
	defer tracker.Finish()

	costModel, err := costs.NewModel(r.costsCfg, logger)
	if err != nil {
		return nil, err
	}
	eng, err := New(r.cfg, costModel, r.tickTable, []string{instrument}, logger)
	if err != nil {
		return nil, err
	}
	ledger := NewLedger(instrument, r.initialCapital, logger)

	result := &Result{
		RunID:          runID,
		Instrument:     instrument,
		InitialCapital: r.initialCapital,
		Curve:          make(models.EquityCurve, 0, len(bars)),
	}

	var orderSeq int
	var entryOrderID, exitOrderID string

	for i, bar := range bars {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		// Translate this bar's signal into an order before stepping, so
		// a signal executes against its own bar's prices.
		switch signals[i].Action {
		case models.ActionBuy:
			if ledger.Position() == 0 && entryOrderID == "" {
				cancelIfOpen(eng, exitOrderID)
				exitOrderID = ""
				qty := int64(ledger.Cash() * r.cfg.PositionFraction / bar.Close)
				if qty > 0 {
					orderSeq++
					order := &models.Order{
						ID:         fmt.Sprintf("%s-O%04d", runID[:8], orderSeq),
						Side:       models.SideBuy,
						Instrument: instrument,
						Quantity:   qty,
						Type:       models.OrderTypeMarket,
						Timestamp:  bar.Timestamp,
					}
					if err := eng.Submit(order); err != nil {
						return nil, err
					}
					entryOrderID = order.ID
					result.OrdersPlaced++
				}
			}
		case models.ActionSell:
			// Cancel any unfilled remainders first, so the replacement
			// exit is sized to the true remaining position. Without this
			// a second sell could exceed the holding while an earlier
			// capped sell is still working off.
			cancelIfOpen(eng, entryOrderID)
			entryOrderID = ""
			cancelIfOpen(eng, exitOrderID)
			exitOrderID = ""
			if pos := ledger.Position(); pos > 0 {
				orderSeq++
				order := &models.Order{
					ID:         fmt.Sprintf("%s-O%04d", runID[:8], orderSeq),
					Side:       models.SideSell,
					Instrument: instrument,
					Quantity:   pos,
					Type:       models.OrderTypeMarket,
					Timestamp:  bar.Timestamp,
				}
				if err := eng.Submit(order); err != nil {
					return nil, err
				}
				exitOrderID = order.ID
				result.OrdersPlaced++
			}
		}

		fills := eng.Step(bar)
		for _, f := range fills {
			ledger.ApplyFill(f)
			if f.Metadata["slippage_fallback"] != "" {
				result.Warnings = append(result.Warnings, fmt.Sprintf("bar %d: slippage fallback to fixed", i))
			}
			if !f.Partial {
				switch f.OrderID {
				case entryOrderID:
					entryOrderID = ""
				case exitOrderID:
					exitOrderID = ""
				}
			}
		}
		if ledger.Position() == 0 {
			entryOrderID = ""
		}
		result.Fills = append(result.Fills, fills...)

		result.Curve = append(result.Curve, models.EquityPoint{
			Timestamp: bar.Timestamp,
			Equity:    ledger.Equity(bar.Close),
		})
	}

	// Close any open position at the final bar so every entry produces a
	// measurable round trip.
	if pos := ledger.Position(); pos > 0 {
		last := bars[len(bars)-1]
		fill, err := r.closeOut(eng, costModel, pos, last, runID)
		if err != nil {
			return nil, err
		}
		ledger.ApplyFill(*fill)
		result.Fills = append(result.Fills, *fill)
		result.Curve[len(result.Curve)-1] = models.EquityPoint{
			Timestamp: last.Timestamp,
			Equity:    ledger.Equity(last.Close),
		}
	}

	result.Trades = ledger.Trades()
	result.FinalEquity = result.Curve[len(result.Curve)-1].Equity

	tracker.SetBars(len(bars))
	result.Perf = tracker.Finish()

	logger.Info().
		Int("trades", len(result.Trades)).
		Int("fills", len(result.Fills)).
		Float64("final_equity", result.FinalEquity).
		Msg("Run complete")

	return result, nil
}

// cancelIfOpen cancels the order if it is still working. A blank ID or
// an already-completed order is a no-op.
func cancelIfOpen(eng *Engine, orderID string) {
	if orderID == "" {
		return
	}
	for _, o := range eng.Open() {
		if o.ID == orderID {
			_ = eng.Cancel(orderID)
			return
		}
	}
}

// closeOut flattens the remaining position at the final bar's reference
// price. The participation cap is not applied: this is a valuation event,
// not simulated matching.
func (r *Runner) closeOut(eng *Engine, costModel *costs.Model, qty int64, bar models.Bar, runID string) (*models.Fill, error) {
	price, err := r.tickTable.Round(bar.Close)
	if err != nil {
		return nil, err
	}
	order := &models.Order{
		ID:         runID[:8] + "-CLOSE",
		Side:       models.SideSell,
		Instrument: "",
		Quantity:   qty,
		Type:       models.OrderTypeMarket,
		Timestamp:  bar.Timestamp,
	}
	notional := price * float64(qty)
	breakdown, _, err := costModel.Breakdown(order, bar, notional, eng.recentVol())
	if err != nil {
		return nil, err
	}
	return &models.Fill{
		OrderID:   order.ID,
		Side:      models.SideSell,
		Quantity:  qty,
		Price:     price,
		Costs:     breakdown,
		Timestamp: bar.Timestamp,
		Metadata:  map[string]string{"close_out": "end_of_run"},
	}, nil
}

// ValidateBars checks series ordering; unsorted input is fatal.
func ValidateBars(instrument string, bars []models.Bar) error {
	for i := 1; i < len(bars); i++ {
		if bars[i].Timestamp.Before(bars[i-1].Timestamp) {
			return errors.NewDataError(instrument, i, "timestamps not monotonically increasing", errors.ErrUnsortedSeries)
		}
	}
	return nil
}
