package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"gap-reversion-bot/internal/alpaca"
	"gap-reversion-bot/internal/events"
	"gap-reversion-bot/internal/logging"
	"gap-reversion-bot/internal/metrics"
	"gap-reversion-bot/internal/strategy"
)

const (
	// DryRunOrderID marks fills that never reached the broker
	DryRunOrderID = "dry-run"

	clientOrderIDPrefix = "gapbot-"

	IntentEntry = "entry"
	IntentExit  = "exit"
)

var (
	ErrOrderRejected = errors.New("order rejected")
	ErrInvalidOrder  = errors.New("invalid order request")
)

// Fill is the broker's acknowledgement of a market order. Price is zero
// when the broker has not reported an average fill price yet.
type Fill struct {
	OrderID string
	Symbol  string
	Side    string
	Qty     int
	Price   float64
	DryRun  bool
}

// Gateway submits market orders through the trading API, or simulates them
// in dry-run mode
type Gateway struct {
	client     alpaca.TradingAPI
	bus        *events.EventBus
	logger     *logging.Logger
	newOrderID func() string
}

// NewGateway creates an execution gateway. bus may be nil.
func NewGateway(client alpaca.TradingAPI, bus *events.EventBus) *Gateway {
	return &Gateway{
		client:     client,
		bus:        bus,
		logger:     logging.WithComponent("execution"),
		newOrderID: NewClientOrderID,
	}
}

// NewClientOrderID returns a unique client order id for Alpaca
func NewClientOrderID() string {
	return clientOrderIDPrefix + uuid.New().String()
}

// IsBotOrder reports whether a client order id was generated by this bot
func IsBotOrder(clientOrderID string) bool {
	return strings.HasPrefix(clientOrderID, clientOrderIDPrefix)
}

// SubmitEntry opens a position: buy for long, sell for short
func (g *Gateway) SubmitEntry(ctx context.Context, symbol string, dir strategy.Direction, qty int, dryRun bool) (*Fill, error) {
	if !dir.Valid() {
		return nil, fmt.Errorf("%w: direction %s", ErrInvalidOrder, dir)
	}
	return g.submit(ctx, IntentEntry, symbol, dir.EntrySide(), qty, dryRun)
}

// SubmitExit closes a position with the opposite side of its direction
func (g *Gateway) SubmitExit(ctx context.Context, symbol string, dir strategy.Direction, qty int, dryRun bool) (*Fill, error) {
	if !dir.Valid() {
		return nil, fmt.Errorf("%w: direction %s", ErrInvalidOrder, dir)
	}
	return g.submit(ctx, IntentExit, symbol, dir.ExitSide(), qty, dryRun)
}

func (g *Gateway) submit(ctx context.Context, intent, symbol, side string, qty int, dryRun bool) (*Fill, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: qty %d", ErrInvalidOrder, qty)
	}

	log := logging.OrderContext(ctx, symbol, side, qty)

	if dryRun {
		log.Info("Dry-run order", "event", "dry_run_"+intent, "intent", intent)
		metrics.OrdersSubmitted.WithLabelValues(intent, side).Inc()
		g.bus.PublishOrderPlaced(DryRunOrderID, symbol, intent, side, qty, 0, true)
		return &Fill{
			OrderID: DryRunOrderID,
			Symbol:  symbol,
			Side:    side,
			Qty:     qty,
			DryRun:  true,
		}, nil
	}

	clientID := g.newOrderID()
	order, err := g.client.SubmitMarketOrder(ctx, symbol, side, qty, clientID)
	if err == nil && isRejected(order.Status) {
		err = fmt.Errorf("%w: status %s", ErrOrderRejected, order.Status)
	}
	if err != nil {
		log.Error("Order submission failed", "event", intent+"_order", "intent", intent, "client_order_id", clientID, "error", err)
		metrics.OrdersFailed.WithLabelValues(intent).Inc()
		g.bus.PublishOrderFailed(symbol, intent, side, qty, err)
		return nil, fmt.Errorf("%s order for %s failed: %w", intent, symbol, err)
	}

	fill := &Fill{
		OrderID: order.ID,
		Symbol:  symbol,
		Side:    side,
		Qty:     qty,
	}
	if order.FilledAvgPrice.Valid {
		fill.Price, _ = order.FilledAvgPrice.Decimal.Float64()
	}

	log.Info("Order submitted", "event", intent+"_order", "intent", intent, "order_id", order.ID, "status", order.Status, "price", fill.Price)
	metrics.OrdersSubmitted.WithLabelValues(intent, side).Inc()
	g.bus.PublishOrderPlaced(order.ID, symbol, intent, side, qty, fill.Price, false)

	return fill, nil
}

// AccountEquity returns the account equity in dollars
func (g *Gateway) AccountEquity(ctx context.Context) (float64, error) {
	acct, err := g.client.GetAccount(ctx)
	if err != nil {
		return 0, err
	}
	equity, _ := acct.Equity.Float64()
	return equity, nil
}

// FlattenAll cancels open orders and closes every position
func (g *Gateway) FlattenAll(ctx context.Context, dryRun bool) error {
	if dryRun {
		g.logger.Info("Dry-run close all positions", "event", "dry_run_close_all")
		g.bus.PublishFlattened("close_all", true)
		return nil
	}

	if err := g.client.CloseAllPositions(ctx, true); err != nil {
		g.logger.Error("Close all positions failed", "event", "close_all", "error", err)
		g.bus.PublishError("execution", "close all positions failed", err)
		return err
	}

	g.logger.Info("Closed all positions", "event", "close_all")
	g.bus.PublishFlattened("close_all", false)
	return nil
}

// PositionQty returns the broker's signed share count for symbol
func (g *Gateway) PositionQty(ctx context.Context, symbol string) (int, error) {
	qty, err := g.client.GetPosition(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return int(qty.IntPart()), nil
}

func isRejected(status string) bool {
	switch status {
	case "rejected", "canceled", "expired", "suspended":
		return true
	}
	return false
}
