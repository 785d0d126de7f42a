// Package ticks maps arbitrary prices to legal exchange tick increments
// using a price-tiered step table.
package ticks

import (
	"math"
	"sort"

	"github.com/jsj9346/spock-sub005/internal/errors"
)

// Tier is one row of the tick table: all prices at or above Floor (and
// below the next tier's floor) move in increments of Tick.
type Tier struct {
	Floor float64 `mapstructure:"floor" json:"floor"`
	Tick  float64 `mapstructure:"tick" json:"tick"`
}

// Table is an immutable, validated tick-size table. Tier boundaries and
// tick sizes are configuration; new venues are added by supplying a
// different table, not by touching the rounding algorithm.
type Table struct {
	tiers []Tier
}

// NewTable validates and builds a tick table. Tiers must start at floor 0,
// be strictly ascending, and carry positive tick sizes. Each tier floor
// must be a multiple of both its own tick and the previous tier's tick;
// this keeps boundary prices legal in both tiers and makes rounding
// idempotent.
func NewTable(tiers []Tier) (*Table, error) {
	if len(tiers) == 0 {
		return nil, errors.NewValidationError("tiers", len(tiers), "tick table must have at least one tier")
	}

	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Floor < sorted[j].Floor })

	if sorted[0].Floor != 0 {
		return nil, errors.NewValidationError("floor", sorted[0].Floor, "first tier must start at 0")
	}

	for i, t := range sorted {
		if t.Tick <= 0 {
			return nil, errors.NewValidationError("tick", t.Tick, "tick size must be positive")
		}
		if i > 0 {
			prev := sorted[i-1]
			if t.Floor <= prev.Floor {
				return nil, errors.NewValidationError("floor", t.Floor, "tier floors must be strictly ascending")
			}
			if !isMultiple(t.Floor, t.Tick) || !isMultiple(t.Floor, prev.Tick) {
				return nil, errors.NewValidationError("floor", t.Floor,
					"tier floor must be a multiple of the adjacent tick sizes")
			}
		}
	}

	return &Table{tiers: sorted}, nil
}

// DefaultTable returns a 7-tier table modeled on KRX equity tick rules:
// sub-1,000 prices move in 1-unit ticks, rising through 1,000-unit ticks
// at 500,000 and above.
func DefaultTable() *Table {
	t, err := NewTable([]Tier{
		{Floor: 0, Tick: 1},
		{Floor: 1_000, Tick: 5},
		{Floor: 5_000, Tick: 10},
		{Floor: 10_000, Tick: 50},
		{Floor: 50_000, Tick: 100},
		{Floor: 100_000, Tick: 500},
		{Floor: 500_000, Tick: 1_000},
	})
	if err != nil {
		panic(err) // static table, validated by tests
	}
	return t
}

// DefaultTiers returns the rows of the default table, for seeding
// configuration.
func DefaultTiers() []Tier {
	return DefaultTable().Tiers()
}

// Tiers returns a copy of the table rows.
func (t *Table) Tiers() []Tier {
	out := make([]Tier, len(t.tiers))
	copy(out, t.tiers)
	return out
}

// TickSize returns the legal increment for the given price level.
func (t *Table) TickSize(price float64) float64 {
	size := t.tiers[0].Tick
	for _, tier := range t.tiers {
		if price < tier.Floor {
			break
		}
		size = tier.Tick
	}
	return size
}

// Round maps a price to the nearest legal tick. Rounding is idempotent:
// Round(Round(p)) == Round(p) for all p >= 0.
func (t *Table) Round(price float64) (float64, error) {
	if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, errors.Wrapf(errors.ErrInvalidOrderValue, "price %v not roundable", price)
	}
	tick := t.TickSize(price)
	return math.Round(price/tick) * tick, nil
}

func isMultiple(v, step float64) bool {
	q := v / step
	return math.Abs(q-math.Round(q)) < 1e-9
}
