package models

import "time"

// Trade represents a closed round trip: the entry fill(s) and exit fill(s)
// for one position. Trades are created when a position goes flat and are
// never mutated afterwards.
type Trade struct {
	ID         string        `csv:"trade_id"`
	Instrument string        `csv:"instrument"`
	Direction  Side          `csv:"direction"` // side of the entry
	Quantity   int64         `csv:"quantity"`
	EntryTime  time.Time     `csv:"entry_time"`
	ExitTime   time.Time     `csv:"exit_time"`
	EntryPrice float64       `csv:"entry_price"` // volume-weighted across entry fills
	ExitPrice  float64       `csv:"exit_price"`  // volume-weighted across exit fills
	PnL        float64       `csv:"pnl"`         // realized, net of costs
	PnLPercent float64       `csv:"pnl_percent"`
	Costs      CostBreakdown `csv:"-"` // summed over all fills in the round trip
	Hold       time.Duration `csv:"-"`
}

// Win reports whether the trade closed with a positive realized P&L.
func (t *Trade) Win() bool {
	return t.PnL > 0
}
