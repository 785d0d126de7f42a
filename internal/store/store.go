// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/jsj9346/spock-sub005/internal/models"
)

// DataStore defines the interface for bar and run persistence.
type DataStore interface {
	// Bars
	SaveBars(ctx context.Context, symbol, timeframe string, bars []models.Bar) error
	LoadBars(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Bar, error)
	LatestBar(ctx context.Context, symbol, timeframe string) (time.Time, error)

	// Runs & Trades
	SaveRun(ctx context.Context, run RunRecord, trades []models.Trade) error
	LoadTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error)
	ListRuns(ctx context.Context, strategy string, limit int) ([]RunRecord, error)

	Close() error
}
