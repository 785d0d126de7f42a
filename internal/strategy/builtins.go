package strategy

import (
	"github.com/jsj9346/spock-sub005/internal/errors"
	"github.com/jsj9346/spock-sub005/internal/models"
)

// SMACross goes long when the short SMA crosses above the long SMA and
// exits on the opposite cross.
type SMACross struct {
	Short int
	Long  int
	name  string
}

type smaCrossFactory struct{}

func (smaCrossFactory) Name() string { return "sma_cross" }

func (f smaCrossFactory) Build(params map[string]float64) (SignalGenerator, error) {
	g := &SMACross{
		Short: paramInt(params, "short", 10),
		Long:  paramInt(params, "long", 20),
	}
	if g.Short <= 0 || g.Long <= 0 || g.Short >= g.Long {
		return nil, errors.NewValidationError("short/long", params, "need 0 < short < long")
	}
	g.name = describe(f.Name(), g.Params())
	return g, nil
}

func (g *SMACross) Name() string { return g.name }

func (g *SMACross) Params() map[string]float64 {
	return map[string]float64{"short": float64(g.Short), "long": float64(g.Long)}
}

func (g *SMACross) Generate(bars []models.Bar) []models.Signal {
	closes := closePrices(bars)
	short := smaSeries(closes, g.Short)
	long := smaSeries(closes, g.Long)

	signals := make([]models.Signal, len(bars))
	for i, b := range bars {
		signals[i] = models.Signal{Timestamp: b.Timestamp, Action: models.ActionHold}
		if i < g.Long {
			continue
		}
		crossedUp := short[i-1] <= long[i-1] && short[i] > long[i]
		crossedDown := short[i-1] >= long[i-1] && short[i] < long[i]
		if crossedUp {
			signals[i].Action = models.ActionBuy
		} else if crossedDown {
			signals[i].Action = models.ActionSell
		}
	}
	return signals
}

// RSIReversion buys when RSI crosses back above the oversold level and
// sells when it crosses back below the overbought level.
type RSIReversion struct {
	Period     int
	Oversold   float64
	Overbought float64
	name       string
}

type rsiReversionFactory struct{}

func (rsiReversionFactory) Name() string { return "rsi_reversion" }

func (f rsiReversionFactory) Build(params map[string]float64) (SignalGenerator, error) {
	g := &RSIReversion{
		Period:     paramInt(params, "period", 14),
		Oversold:   paramFloat(params, "oversold", 30),
		Overbought: paramFloat(params, "overbought", 70),
	}
	if g.Period <= 1 {
		return nil, errors.NewValidationError("period", g.Period, "must be greater than 1")
	}
	if g.Oversold >= g.Overbought {
		return nil, errors.NewValidationError("oversold/overbought", params, "oversold must be below overbought")
	}
	g.name = describe(f.Name(), g.Params())
	return g, nil
}

func (g *RSIReversion) Name() string { return g.name }

func (g *RSIReversion) Params() map[string]float64 {
	return map[string]float64{
		"period":     float64(g.Period),
		"oversold":   g.Oversold,
		"overbought": g.Overbought,
	}
}

func (g *RSIReversion) Generate(bars []models.Bar) []models.Signal {
	rsi := rsiSeries(closePrices(bars), g.Period)

	signals := make([]models.Signal, len(bars))
	for i, b := range bars {
		signals[i] = models.Signal{Timestamp: b.Timestamp, Action: models.ActionHold}
		if i <= g.Period {
			continue
		}
		if rsi[i-1] <= g.Oversold && rsi[i] > g.Oversold {
			signals[i].Action = models.ActionBuy
		} else if rsi[i-1] >= g.Overbought && rsi[i] < g.Overbought {
			signals[i].Action = models.ActionSell
		}
	}
	return signals
}

// MACDCross trades MACD line crossings of its signal line.
type MACDCross struct {
	Fast   int
	Slow   int
	Signal int
	name   string
}

type macdCrossFactory struct{}

func (macdCrossFactory) Name() string { return "macd_cross" }

func (f macdCrossFactory) Build(params map[string]float64) (SignalGenerator, error) {
	g := &MACDCross{
		Fast:   paramInt(params, "fast", 12),
		Slow:   paramInt(params, "slow", 26),
		Signal: paramInt(params, "signal", 9),
	}
	if g.Fast <= 0 || g.Slow <= 0 || g.Signal <= 0 || g.Fast >= g.Slow {
		return nil, errors.NewValidationError("fast/slow/signal", params, "need 0 < fast < slow and signal > 0")
	}
	g.name = describe(f.Name(), g.Params())
	return g, nil
}

func (g *MACDCross) Name() string { return g.name }

func (g *MACDCross) Params() map[string]float64 {
	return map[string]float64{
		"fast":   float64(g.Fast),
		"slow":   float64(g.Slow),
		"signal": float64(g.Signal),
	}
}

func (g *MACDCross) Generate(bars []models.Bar) []models.Signal {
	macd, sig := macdSeries(closePrices(bars), g.Fast, g.Slow, g.Signal)

	warmup := g.Slow + g.Signal
	signals := make([]models.Signal, len(bars))
	for i, b := range bars {
		signals[i] = models.Signal{Timestamp: b.Timestamp, Action: models.ActionHold}
		if i < warmup {
			continue
		}
		if macd[i-1] <= sig[i-1] && macd[i] > sig[i] {
			signals[i].Action = models.ActionBuy
		} else if macd[i-1] >= sig[i-1] && macd[i] < sig[i] {
			signals[i].Action = models.ActionSell
		}
	}
	return signals
}
