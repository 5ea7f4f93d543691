package bot

import (
	"context"
	"time"

	"gap-reversion-bot/internal/execution"
	"gap-reversion-bot/internal/market"
	"gap-reversion-bot/internal/strategy"
)

// MarketData supplies bars and gap reference prices. Any method may return
// market.ErrNoData when the feed has nothing yet.
type MarketData interface {
	RecentBars(ctx context.Context, symbol string, lookbackMinutes int) ([]market.Bar, error)
	PriorSessionClose(ctx context.Context, symbol string) (float64, error)
	SessionOpen(ctx context.Context, symbol string) (float64, error)
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}

// Broker places market orders and reports account equity
type Broker interface {
	SubmitEntry(ctx context.Context, symbol string, dir strategy.Direction, qty int, dryRun bool) (*execution.Fill, error)
	SubmitExit(ctx context.Context, symbol string, dir strategy.Direction, qty int, dryRun bool) (*execution.Fill, error)
	AccountEquity(ctx context.Context) (float64, error)
	FlattenAll(ctx context.Context, dryRun bool) error
}

// Calendar answers market-hours questions for a given clock
type Calendar interface {
	TradingDay(now time.Time) string
	IsMarketOpen(now time.Time) bool
	IsWithinEntryWindow(now time.Time, windowMinutes int) bool
	SecondsUntilClose(now time.Time) float64
	SecondsUntilOpen(now time.Time) float64
}

// CycleEngine runs one evaluation cycle against the trading context
type CycleEngine interface {
	Tick(ctx context.Context, tc *TradingContext, now time.Time) error
}

// CycleEngineFunc adapts a function to CycleEngine
type CycleEngineFunc func(ctx context.Context, tc *TradingContext, now time.Time) error

func (f CycleEngineFunc) Tick(ctx context.Context, tc *TradingContext, now time.Time) error {
	return f(ctx, tc, now)
}

var (
	_ Broker      = (*execution.Gateway)(nil)
	_ Calendar    = (*market.Calendar)(nil)
	_ CycleEngine = (*Engine)(nil)
)
