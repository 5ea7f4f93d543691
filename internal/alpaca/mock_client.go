package alpaca

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gap-reversion-bot/internal/market"
)

// MockClient provides simulated market data and instant fills for
// development without Alpaca credentials
type MockClient struct {
	mu          sync.Mutex
	rng         *rand.Rand
	price       float64
	priorClose  float64
	sessionOpen float64
	equity      decimal.Decimal
	positions   map[string]decimal.Decimal
	lastUpdate  time.Time
}

// NewMockClient creates a mock around basePrice. The session opens with a
// 1% gap down so the gap fade has something to work with.
func NewMockClient(basePrice float64) *MockClient {
	if basePrice <= 0 {
		basePrice = 500.0
	}
	return &MockClient{
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		price:       basePrice * 0.99,
		priorClose:  basePrice,
		sessionOpen: basePrice * 0.99,
		equity:      decimal.NewFromInt(100000),
		positions:   make(map[string]decimal.Decimal),
	}
}

// step advances the random walk at most once per second
func (mc *MockClient) step() float64 {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if time.Since(mc.lastUpdate) >= time.Second {
		// Random walk: -0.2% to +0.2% change
		change := (mc.rng.Float64() - 0.5) * 0.004
		mc.price *= 1 + change
		mc.lastUpdate = time.Now()
	}
	return mc.price
}

// RecentBars returns a simulated one-minute window ending at the current price
func (mc *MockClient) RecentBars(ctx context.Context, symbol string, lookbackMinutes int) ([]market.Bar, error) {
	last := mc.step()

	mc.mu.Lock()
	defer mc.mu.Unlock()

	n := lookbackMinutes
	if n <= 0 {
		return nil, market.ErrNoData
	}

	bars := make([]market.Bar, n)
	now := time.Now().Truncate(time.Minute)
	price := last
	for i := n - 1; i >= 0; i-- {
		open := price * (1 + (mc.rng.Float64()-0.5)*0.002)
		high := maxFloat(open, price) * (1 + mc.rng.Float64()*0.001)
		low := minFloat(open, price) * (1 - mc.rng.Float64()*0.001)
		bars[i] = market.Bar{
			Time:   now.Add(-time.Duration(n-1-i) * time.Minute),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  price,
			Volume: float64(1000 + mc.rng.Intn(9000)),
		}
		price = open
	}
	return bars, nil
}

func (mc *MockClient) PriorSessionClose(ctx context.Context, symbol string) (float64, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.priorClose, nil
}

func (mc *MockClient) SessionOpen(ctx context.Context, symbol string) (float64, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.sessionOpen, nil
}

func (mc *MockClient) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	return mc.step(), nil
}

func (mc *MockClient) GetAccount(ctx context.Context) (*Account, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return &Account{
		ID:          "mock-account",
		Status:      "ACTIVE",
		Currency:    "USD",
		Equity:      mc.equity,
		Cash:        mc.equity,
		BuyingPower: mc.equity.Mul(decimal.NewFromInt(2)),
	}, nil
}

// SubmitMarketOrder fills immediately at the current simulated price
func (mc *MockClient) SubmitMarketOrder(ctx context.Context, symbol, side string, qty int, clientOrderID string) (*Order, error) {
	if qty <= 0 {
		return nil, &APIError{StatusCode: 422, Body: fmt.Sprintf("qty must be > 0, got %d", qty)}
	}
	price := decimal.NewFromFloat(mc.step()).Round(2)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	delta := decimal.NewFromInt(int64(qty))
	if side == "sell" {
		delta = delta.Neg()
	}
	mc.positions[symbol] = mc.positions[symbol].Add(delta)

	return &Order{
		ID:             uuid.New().String(),
		ClientOrderID:  clientOrderID,
		Symbol:         symbol,
		Side:           side,
		Type:           "market",
		TimeInForce:    "day",
		Status:         "filled",
		Qty:            decimal.NewFromInt(int64(qty)),
		FilledQty:      decimal.NewFromInt(int64(qty)),
		FilledAvgPrice: decimal.NewNullDecimal(price),
		SubmittedAt:    time.Now(),
	}, nil
}

func (mc *MockClient) GetPosition(ctx context.Context, symbol string) (decimal.Decimal, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.positions[symbol], nil
}

func (mc *MockClient) CloseAllPositions(ctx context.Context, cancelOrders bool) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.positions = make(map[string]decimal.Decimal)
	return nil
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
