package ticks

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Property: rounding is idempotent. A price that already sits on a legal
// tick must round to itself, so round(round(p)) == round(p) for any
// non-negative price, including prices on tier boundaries.
func TestProperty_RoundIdempotent(t *testing.T) {
	table := DefaultTable()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("round(round(p)) == round(p)", prop.ForAll(
		func(price float64) bool {
			once, err := table.Round(price)
			if err != nil {
				return false
			}
			twice, err := table.Round(once)
			if err != nil {
				return false
			}
			if once != twice {
				t.Logf("price %f rounded to %f then %f", price, once, twice)
				return false
			}
			return true
		},
		gen.Float64Range(0, 2_000_000),
	))

	properties.TestingRun(t)
}

func TestRoundTierBoundaries(t *testing.T) {
	table := DefaultTable()

	cases := []struct {
		name  string
		price float64
		want  float64
	}{
		{"sub thousand unit tick", 999.4, 999},
		{"first boundary", 1000, 1000},
		{"just above first boundary", 1002, 1000},
		{"five unit tick", 1003, 1005},
		{"ten unit tick", 5004, 5000},
		{"fifty unit tick", 10026, 10050},
		{"hundred unit tick", 60049, 60000},
		{"hundred unit tick up", 60051, 60100},
		{"five hundred unit tick", 100200, 100000},
		{"thousand unit tick", 500400, 500000},
		{"thousand unit tick up", 500600, 501000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := table.Round(tc.price)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRoundNearBoundaryStaysLegal(t *testing.T) {
	table := DefaultTable()

	// Just below a boundary the coarser tick of the upper tier must not
	// leak downward: 49,990 lives in the 50-unit tier.
	got, err := table.Round(49_990)
	require.NoError(t, err)
	assert.Equal(t, 50_000.0, got)

	got, err = table.Round(49_960)
	require.NoError(t, err)
	assert.Equal(t, 49_950.0, got)
}

func TestRoundRejectsBadPrices(t *testing.T) {
	table := DefaultTable()

	for _, price := range []float64{-1, -0.0001} {
		_, err := table.Round(price)
		assert.Error(t, err, "price %f", price)
	}
}

func TestTickSize(t *testing.T) {
	table := DefaultTable()
	assert.Equal(t, 1.0, table.TickSize(500))
	assert.Equal(t, 5.0, table.TickSize(1000))
	assert.Equal(t, 100.0, table.TickSize(60_000))
	assert.Equal(t, 1000.0, table.TickSize(750_000))
}

func TestNewTableValidation(t *testing.T) {
	t.Run("first floor must be zero", func(t *testing.T) {
		_, err := NewTable([]Tier{{Floor: 100, Tick: 1}})
		assert.Error(t, err)
	})

	t.Run("floors must ascend", func(t *testing.T) {
		_, err := NewTable([]Tier{
			{Floor: 0, Tick: 1},
			{Floor: 1000, Tick: 5},
			{Floor: 500, Tick: 10},
		})
		assert.Error(t, err)
	})

	t.Run("ticks must be positive", func(t *testing.T) {
		_, err := NewTable([]Tier{{Floor: 0, Tick: 0}})
		assert.Error(t, err)
	})

	t.Run("boundary must be a multiple of both ticks", func(t *testing.T) {
		// 1,001 is not a multiple of 5, so a price rounded in either
		// adjacent tier could cross the boundary illegally.
		_, err := NewTable([]Tier{
			{Floor: 0, Tick: 1},
			{Floor: 1001, Tick: 5},
		})
		assert.Error(t, err)
	})
}
