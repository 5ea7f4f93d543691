package alpaca

import (
	"context"

	"github.com/shopspring/decimal"

	"gap-reversion-bot/internal/market"
)

// DataAPI defines the market data operations the bot consumes
type DataAPI interface {
	RecentBars(ctx context.Context, symbol string, lookbackMinutes int) ([]market.Bar, error)
	PriorSessionClose(ctx context.Context, symbol string) (float64, error)
	SessionOpen(ctx context.Context, symbol string) (float64, error)
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}

// TradingAPI defines the account and order operations the bot consumes
type TradingAPI interface {
	GetAccount(ctx context.Context) (*Account, error)
	SubmitMarketOrder(ctx context.Context, symbol, side string, qty int, clientOrderID string) (*Order, error)
	GetPosition(ctx context.Context, symbol string) (decimal.Decimal, error)
	CloseAllPositions(ctx context.Context, cancelOrders bool) error
}

// Ensure both Client and MockClient implement the APIs
var _ DataAPI = (*Client)(nil)
var _ DataAPI = (*MockClient)(nil)
var _ TradingAPI = (*Client)(nil)
var _ TradingAPI = (*MockClient)(nil)
var _ market.SessionSource = (*Client)(nil)
