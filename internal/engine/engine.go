// Package engine implements the event-driven order execution simulator:
// a per-bar order state machine with realistic volume participation
// limits, tick rounding and cost accounting.
package engine

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/jsj9346/spock-sub005/internal/costs"
	"github.com/jsj9346/spock-sub005/internal/errors"
	"github.com/jsj9346/spock-sub005/internal/models"
	"github.com/jsj9346/spock-sub005/internal/ticks"
)

// Config holds execution parameters.
type Config struct {
	// ParticipationCap is the maximum fraction of a bar's volume one
	// order may fill in that bar. 0 disables the cap.
	ParticipationCap float64 `mapstructure:"participation_cap"`

	// PositionFraction is the fraction of available cash committed when
	// opening a position.
	PositionFraction float64 `mapstructure:"position_fraction"`

	// VolatilityWindow is the number of recent bars used for the
	// realized-volatility input to the volatility slippage model.
	VolatilityWindow int `mapstructure:"volatility_window"`
}

// DefaultConfig returns standard execution parameters.
func DefaultConfig() Config {
	return Config{
		ParticipationCap: 0.05,
		PositionFraction: 0.95,
		VolatilityWindow: 20,
	}
}

// Engine executes orders bar by bar. Orders transition
// PENDING -> PARTIALLY_FILLED -> FILLED | CANCELLED, at most one
// transition per simulated bar.
type Engine struct {
	cfg    Config
	costs  *costs.Model
	ticks  *ticks.Table
	logger zerolog.Logger

	known   map[string]bool
	pending []*models.Order

	closes []float64 // rolling close window for realized vol
}

// New creates an execution engine for the given instrument universe.
func New(cfg Config, costModel *costs.Model, tickTable *ticks.Table, instruments []string, logger zerolog.Logger) (*Engine, error) {
	if cfg.ParticipationCap < 0 || cfg.ParticipationCap > 1 {
		return nil, errors.NewValidationError("participation_cap", cfg.ParticipationCap, "must be in [0,1]")
	}
	if cfg.PositionFraction <= 0 || cfg.PositionFraction > 1 {
		return nil, errors.NewValidationError("position_fraction", cfg.PositionFraction, "must be in (0,1]")
	}
	if cfg.VolatilityWindow <= 0 {
		cfg.VolatilityWindow = DefaultConfig().VolatilityWindow
	}

	known := make(map[string]bool, len(instruments))
	for _, in := range instruments {
		known[in] = true
	}

	return &Engine{
		cfg:    cfg,
		costs:  costModel,
		ticks:  tickTable,
		logger: logger,
		known:  known,
	}, nil
}

// Submit validates an order and queues it. Invalid orders are rejected
// synchronously and never enter PENDING.
func (e *Engine) Submit(order *models.Order) error {
	if order.Quantity <= 0 {
		return errors.NewOrderError(order.ID, order.Instrument, "non-positive quantity", errors.ErrInvalidOrderValue)
	}
	if order.Type == models.OrderTypeLimit && order.LimitPrice <= 0 {
		return errors.NewOrderError(order.ID, order.Instrument, "non-positive limit price", errors.ErrInvalidOrderValue)
	}
	if !e.known[order.Instrument] {
		return errors.NewOrderError(order.ID, order.Instrument, "instrument not in universe", errors.ErrUnknownInstrument)
	}

	order.Status = models.OrderPending
	order.FilledQty = 0
	e.pending = append(e.pending, order)
	return nil
}

// Cancel cancels an open order.
func (e *Engine) Cancel(orderID string) error {
	for _, o := range e.pending {
		if o.ID == orderID && o.Open() {
			o.Status = models.OrderCancelled
			return nil
		}
	}
	return errors.NewOrderError(orderID, "", "not open", nil)
}

// Open returns the currently open orders.
func (e *Engine) Open() []*models.Order {
	open := make([]*models.Order, 0, len(e.pending))
	for _, o := range e.pending {
		if o.Open() {
			open = append(open, o)
		}
	}
	return open
}

// Step advances the simulation one bar: every open order gets one chance
// to fill against the bar. A bar with zero volume produces no fills and
// leaves orders PENDING; that is not an error.
func (e *Engine) Step(bar models.Bar) []models.Fill {
	e.pushClose(bar.Close)

	var fills []models.Fill
	remaining := e.pending[:0]
	for _, o := range e.pending {
		if !o.Open() {
			continue
		}
		if fill := e.tryFill(o, bar); fill != nil {
			fills = append(fills, *fill)
		}
		if o.Open() {
			remaining = append(remaining, o)
		}
	}
	e.pending = remaining
	return fills
}

// tryFill attempts to fill one order against one bar.
func (e *Engine) tryFill(o *models.Order, bar models.Bar) *models.Fill {
	if bar.Volume <= 0 {
		return nil
	}

	reference, err := e.ticks.Round(bar.Close)
	if err != nil {
		return nil
	}

	var price float64
	switch o.Type {
	case models.OrderTypeLimit:
		limit, err := e.ticks.Round(o.LimitPrice)
		if err != nil {
			return nil
		}
		// Price improvement: execute at the better of limit and the
		// bar reference, not exactly at the limit.
		if o.Side == models.SideBuy {
			if bar.Low > limit {
				return nil
			}
			price = math.Min(limit, reference)
		} else {
			if bar.High < limit {
				return nil
			}
			price = math.Max(limit, reference)
		}
	default:
		price = reference
	}

	qty := o.Remaining()
	if e.cfg.ParticipationCap > 0 {
		maxQty := int64(math.Floor(e.cfg.ParticipationCap * float64(bar.Volume)))
		if maxQty <= 0 {
			return nil
		}
		if qty > maxQty {
			qty = maxQty
		}
	}

	notional := price * float64(qty)
	breakdown, fellBack, err := e.costs.Breakdown(o, bar, notional, e.recentVol())
	if err != nil {
		e.logger.Error().Err(err).Str("order_id", o.ID).Msg("Cost pricing failed, no fill")
		return nil
	}

	o.FilledQty += qty
	if o.Remaining() == 0 {
		o.Status = models.OrderFilled
	} else {
		o.Status = models.OrderPartiallyFilled
	}

	fill := &models.Fill{
		OrderID:   o.ID,
		Side:      o.Side,
		Quantity:  qty,
		Price:     price,
		Costs:     breakdown,
		Timestamp: bar.Timestamp,
		Partial:   o.Status == models.OrderPartiallyFilled,
	}
	if fellBack {
		fill.Metadata = map[string]string{"slippage_fallback": "fixed"}
	}

	e.logger.Debug().
		Str("order_id", o.ID).
		Str("side", string(o.Side)).
		Int64("quantity", qty).
		Float64("price", price).
		Bool("partial", fill.Partial).
		Msg("Fill")

	return fill
}

func (e *Engine) pushClose(c float64) {
	e.closes = append(e.closes, c)
	if len(e.closes) > e.cfg.VolatilityWindow+1 {
		e.closes = e.closes[len(e.closes)-e.cfg.VolatilityWindow-1:]
	}
}

// recentVol returns the realized per-bar volatility over the rolling
// close window, or 0 while the window is warming up.
func (e *Engine) recentVol() float64 {
	if len(e.closes) < 3 {
		return 0
	}
	rets := make([]float64, 0, len(e.closes)-1)
	for i := 1; i < len(e.closes); i++ {
		if e.closes[i-1] == 0 {
			continue
		}
		rets = append(rets, e.closes[i]/e.closes[i-1]-1)
	}
	if len(rets) < 2 {
		return 0
	}
	var mean float64
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	var variance float64
	for _, r := range rets {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(rets))
	return math.Sqrt(variance)
}
