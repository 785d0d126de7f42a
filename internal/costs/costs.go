// Package costs prices transaction frictions: commission, transaction tax
// and slippage.
package costs

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/jsj9346/spock-sub005/internal/errors"
	"github.com/jsj9346/spock-sub005/internal/models"
)

// SlippageModel selects how slippage is estimated.
type SlippageModel string

const (
	// SlippageFixed charges a flat basis-point spread on notional.
	SlippageFixed SlippageModel = "fixed"
	// SlippageVolume scales impact with the square root of volume
	// participation, capturing nonlinear market impact.
	SlippageVolume SlippageModel = "volume"
	// SlippageVolatility scales a base spread by the recent realized
	// volatility regime.
	SlippageVolatility SlippageModel = "volatility"
)

// CommissionSchedule is the brokerage fee schedule. MaxCommission of 0
// means uncapped.
type CommissionSchedule struct {
	BaseRate      float64 `mapstructure:"base_rate"`
	MinCommission float64 `mapstructure:"min_commission"`
	MaxCommission float64 `mapstructure:"max_commission"`
}

// Config holds the full cost schedule for one venue.
type Config struct {
	Commission CommissionSchedule `mapstructure:"commission"`

	// TaxRate is the sell-side transaction tax rate.
	TaxRate float64 `mapstructure:"tax_rate"`

	Slippage SlippageConfig `mapstructure:"slippage"`
}

// SlippageConfig parameterizes the selectable slippage models.
type SlippageConfig struct {
	Model SlippageModel `mapstructure:"model"`

	// FixedBps is the flat spread for the fixed model, and the fallback
	// when the volume model has no bar volume to work with.
	FixedBps float64 `mapstructure:"fixed_bps"`

	// ImpactBps scales sqrt(order_qty / bar_volume) for the volume model.
	ImpactBps float64 `mapstructure:"impact_bps"`

	// BaseBps and ReferenceVol drive the volatility model: the multiplier
	// is recent_vol / reference_vol clamped to [1, 10].
	BaseBps      float64 `mapstructure:"base_bps"`
	ReferenceVol float64 `mapstructure:"reference_vol"`
}

// DefaultConfig returns a KRX-flavoured cost schedule: 0.015% commission
// with a 900-unit floor, 0.23% sell-side tax, 5bps fixed slippage.
func DefaultConfig() Config {
	return Config{
		Commission: CommissionSchedule{
			BaseRate:      0.00015,
			MinCommission: 900,
		},
		TaxRate: 0.0023,
		Slippage: SlippageConfig{
			Model:        SlippageFixed,
			FixedBps:     5,
			ImpactBps:    25,
			BaseBps:      5,
			ReferenceVol: 0.015,
		},
	}
}

// Model prices a single transaction. Leaf component; stateless apart from
// its configuration.
type Model struct {
	cfg    Config
	logger zerolog.Logger
}

// NewModel creates a cost model from the given schedule.
func NewModel(cfg Config, logger zerolog.Logger) (*Model, error) {
	if cfg.Commission.BaseRate < 0 {
		return nil, errors.NewValidationError("commission.base_rate", cfg.Commission.BaseRate, "must be non-negative")
	}
	if cfg.Commission.MaxCommission > 0 && cfg.Commission.MaxCommission < cfg.Commission.MinCommission {
		return nil, errors.NewValidationError("commission.max_commission", cfg.Commission.MaxCommission,
			"must be at least min_commission")
	}
	if cfg.TaxRate < 0 {
		return nil, errors.NewValidationError("tax_rate", cfg.TaxRate, "must be non-negative")
	}
	switch cfg.Slippage.Model {
	case SlippageFixed, SlippageVolume, SlippageVolatility:
	case "":
		cfg.Slippage.Model = SlippageFixed
	default:
		return nil, errors.NewValidationError("slippage.model", cfg.Slippage.Model, "unknown slippage model")
	}
	return &Model{cfg: cfg, logger: logger}, nil
}

// Commission prices brokerage on a notional value, clamped to the
// schedule's min/max.
func (m *Model) Commission(notional float64) (float64, error) {
	if notional <= 0 {
		return 0, errors.Wrapf(errors.ErrInvalidOrderValue, "notional %.2f", notional)
	}
	c := notional * m.cfg.Commission.BaseRate
	if c < m.cfg.Commission.MinCommission {
		c = m.cfg.Commission.MinCommission
	}
	if m.cfg.Commission.MaxCommission > 0 && c > m.cfg.Commission.MaxCommission {
		c = m.cfg.Commission.MaxCommission
	}
	return c, nil
}

// Tax prices the transaction tax. Applied on the SELL side only.
func (m *Model) Tax(notional float64, side models.Side) (float64, error) {
	if notional <= 0 {
		return 0, errors.Wrapf(errors.ErrInvalidOrderValue, "notional %.2f", notional)
	}
	if side != models.SideSell {
		return 0, nil
	}
	return notional * m.cfg.TaxRate, nil
}

// Slippage prices execution slippage for an order against a bar.
// recentVol is the realized per-period volatility over a recent window,
// used only by the volatility model. The returned bool reports whether
// the volume model fell back to the fixed spread because the bar carried
// no volume; the fallback is logged and never fatal.
func (m *Model) Slippage(order *models.Order, bar models.Bar, notional, recentVol float64) (float64, bool, error) {
	if notional <= 0 {
		return 0, false, errors.Wrapf(errors.ErrInvalidOrderValue, "notional %.2f", notional)
	}

	switch m.cfg.Slippage.Model {
	case SlippageVolume:
		if bar.Volume <= 0 {
			m.logger.Warn().
				Str("order_id", order.ID).
				Time("bar", bar.Timestamp).
				Msg("Bar volume missing, falling back to fixed slippage")
			return notional * bps(m.cfg.Slippage.FixedBps), true, nil
		}
		participation := float64(order.Quantity) / float64(bar.Volume)
		return notional * bps(m.cfg.Slippage.ImpactBps) * math.Sqrt(participation), false, nil

	case SlippageVolatility:
		mult := 1.0
		if m.cfg.Slippage.ReferenceVol > 0 && recentVol > 0 {
			mult = recentVol / m.cfg.Slippage.ReferenceVol
		}
		if mult < 1 {
			mult = 1
		}
		if mult > 10 {
			mult = 10
		}
		return notional * bps(m.cfg.Slippage.BaseBps) * mult, false, nil

	default:
		return notional * bps(m.cfg.Slippage.FixedBps), false, nil
	}
}

// Breakdown prices all three components for one prospective fill and
// returns them as a cost breakdown with the additivity invariant already
// enforced. The bool mirrors Slippage's fallback flag.
func (m *Model) Breakdown(order *models.Order, bar models.Bar, notional, recentVol float64) (models.CostBreakdown, bool, error) {
	commission, err := m.Commission(notional)
	if err != nil {
		return models.CostBreakdown{}, false, err
	}
	tax, err := m.Tax(notional, order.Side)
	if err != nil {
		return models.CostBreakdown{}, false, err
	}
	slippage, fellBack, err := m.Slippage(order, bar, notional, recentVol)
	if err != nil {
		return models.CostBreakdown{}, false, err
	}
	return models.NewCostBreakdown(commission, tax, slippage), fellBack, nil
}

func bps(v float64) float64 {
	return v / 10_000
}
