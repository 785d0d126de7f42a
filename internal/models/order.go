package models

import (
	"math"
	"time"
)

// Order represents a trading order. The identifying fields are immutable once
// created; only FilledQty and Status change as fills arrive.
type Order struct {
	ID         string
	Side       Side
	Instrument string
	Quantity   int64
	Type       OrderType
	LimitPrice float64 // only meaningful for LIMIT orders
	Timestamp  time.Time

	FilledQty int64
	Status    OrderStatus
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() int64 {
	return o.Quantity - o.FilledQty
}

// Open reports whether the order can still receive fills.
func (o *Order) Open() bool {
	return o.Status == OrderPending || o.Status == OrderPartiallyFilled
}

// CostBreakdown itemizes the frictions attached to one fill.
// Total always equals the sum of the components.
type CostBreakdown struct {
	Commission float64 `json:"commission" csv:"commission"`
	Tax        float64 `json:"tax" csv:"tax"`
	Slippage   float64 `json:"slippage" csv:"slippage"`
	Total      float64 `json:"total" csv:"total_cost"`
}

// NewCostBreakdown builds a breakdown with the additivity invariant enforced
// at construction.
func NewCostBreakdown(commission, tax, slippage float64) CostBreakdown {
	return CostBreakdown{
		Commission: commission,
		Tax:        tax,
		Slippage:   slippage,
		Total:      commission + tax + slippage,
	}
}

// Add returns the component-wise sum of two breakdowns.
func (c CostBreakdown) Add(o CostBreakdown) CostBreakdown {
	return NewCostBreakdown(c.Commission+o.Commission, c.Tax+o.Tax, c.Slippage+o.Slippage)
}

// Consistent reports whether Total matches the component sum within epsilon.
func (c CostBreakdown) Consistent() bool {
	return math.Abs(c.Total-(c.Commission+c.Tax+c.Slippage)) < 1e-9
}

// Fill is the record of quantity executed against an order in one bar.
// Fills are append-only and never mutated after creation.
type Fill struct {
	OrderID   string
	Side      Side
	Quantity  int64
	Price     float64 // tick-rounded execution price
	Costs     CostBreakdown
	Timestamp time.Time
	Partial   bool
	// Metadata carries non-fatal execution notes, e.g. a slippage model
	// fallback when bar volume was missing.
	Metadata map[string]string
}

// Notional returns the gross value of the fill.
func (f *Fill) Notional() float64 {
	return f.Price * float64(f.Quantity)
}
