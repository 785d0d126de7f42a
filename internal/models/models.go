// Package models provides domain models for the backtesting engine.
package models

import (
	"time"
)

// Side represents the side of an order or trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Action represents a strategy signal action.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending         OrderStatus = "PENDING"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCancelled       OrderStatus = "CANCELLED"
)

// Bar represents OHLCV data for one time interval.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Signal represents one strategy decision aligned to a bar timestamp.
type Signal struct {
	Timestamp  time.Time
	Action     Action
	Instrument string
}

// EquityPoint is one sample of account equity.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// EquityCurve is a time-ordered sequence of equity samples.
type EquityCurve []EquityPoint

// Returns computes simple per-period returns from the curve.
func (c EquityCurve) Returns() []float64 {
	if len(c) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(c)-1)
	for i := 1; i < len(c); i++ {
		prev := c[i-1].Equity
		if prev == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (c[i].Equity-prev)/prev)
	}
	return returns
}

// IsSorted reports whether timestamps are monotonically non-decreasing.
func (c EquityCurve) IsSorted() bool {
	for i := 1; i < len(c); i++ {
		if c[i].Timestamp.Before(c[i-1].Timestamp) {
			return false
		}
	}
	return true
}
