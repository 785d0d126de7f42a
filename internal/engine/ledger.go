package engine

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jsj9346/spock-sub005/internal/logging"
	"github.com/jsj9346/spock-sub005/internal/models"
)

// Ledger tracks cash and the single-instrument position as fills arrive,
// and constructs Trade records when the position returns to flat.
type Ledger struct {
	instrument string
	cash       float64
	position   int64
	logger     zerolog.Logger

	entryFills []models.Fill
	exitFills  []models.Fill
	trades     []models.Trade
	tradeSeq   int
}

// NewLedger creates a ledger with the given starting cash.
func NewLedger(instrument string, initialCash float64, logger zerolog.Logger) *Ledger {
	return &Ledger{
		instrument: instrument,
		cash:       initialCash,
		logger:     logger,
	}
}

// ApplyFill books one fill against cash and position. When the position
// transitions back to flat, the accumulated entry and exit fills are
// folded into an immutable Trade.
func (l *Ledger) ApplyFill(f models.Fill) {
	notional := f.Notional()
	if f.Side == models.SideBuy {
		l.cash -= notional + f.Costs.Total
		l.position += f.Quantity
		l.entryFills = append(l.entryFills, f)
	} else {
		l.cash += notional - f.Costs.Total
		l.position -= f.Quantity
		l.exitFills = append(l.exitFills, f)
	}

	if l.position == 0 && len(l.entryFills) > 0 {
		l.closeTrade()
	}
}

// closeTrade folds the open round trip into a Trade record.
func (l *Ledger) closeTrade() {
	var entryQty, exitQty int64
	var entryNotional, exitNotional float64
	costs := models.CostBreakdown{}

	for _, f := range l.entryFills {
		entryQty += f.Quantity
		entryNotional += f.Notional()
		costs = costs.Add(f.Costs)
	}
	for _, f := range l.exitFills {
		exitQty += f.Quantity
		exitNotional += f.Notional()
		costs = costs.Add(f.Costs)
	}

	entryPrice := entryNotional / float64(entryQty)
	exitPrice := exitNotional / float64(exitQty)
	pnl := exitNotional - entryNotional - costs.Total

	l.tradeSeq++
	trade := models.Trade{
		ID:         fmt.Sprintf("T%04d", l.tradeSeq),
		Instrument: l.instrument,
		Direction:  l.entryFills[0].Side,
		Quantity:   entryQty,
		EntryTime:  l.entryFills[0].Timestamp,
		ExitTime:   l.exitFills[len(l.exitFills)-1].Timestamp,
		EntryPrice: entryPrice,
		ExitPrice:  exitPrice,
		PnL:        pnl,
		Costs:      costs,
	}
	trade.Hold = trade.ExitTime.Sub(trade.EntryTime)
	if entryNotional != 0 {
		trade.PnLPercent = pnl / entryNotional * 100
	}

	l.trades = append(l.trades, trade)
	l.entryFills = nil
	l.exitFills = nil

	logging.LogTrade(l.logger, trade.Instrument, string(trade.Direction), trade.Quantity, trade.PnL)
}

// Equity marks the account to the given price.
func (l *Ledger) Equity(price float64) float64 {
	return l.cash + float64(l.position)*price
}

// Cash returns available cash.
func (l *Ledger) Cash() float64 { return l.cash }

// Position returns the current signed position.
func (l *Ledger) Position() int64 { return l.position }

// Trades returns the closed round trips, in order.
func (l *Ledger) Trades() []models.Trade { return l.trades }
