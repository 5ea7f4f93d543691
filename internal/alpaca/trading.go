package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"gap-reversion-bot/internal/market"
)

// Account is the subset of the Alpaca account used for sizing
type Account struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Currency    string          `json:"currency"`
	Equity      decimal.Decimal `json:"equity"`
	Cash        decimal.Decimal `json:"cash"`
	BuyingPower decimal.Decimal `json:"buying_power"`
}

// Order represents an Alpaca order
type Order struct {
	ID             string              `json:"id"`
	ClientOrderID  string              `json:"client_order_id"`
	Symbol         string              `json:"symbol"`
	Side           string              `json:"side"`
	Type           string              `json:"type"`
	TimeInForce    string              `json:"time_in_force"`
	Status         string              `json:"status"`
	Qty            decimal.Decimal     `json:"qty"`
	FilledQty      decimal.Decimal     `json:"filled_qty"`
	FilledAvgPrice decimal.NullDecimal `json:"filled_avg_price"`
	SubmittedAt    time.Time           `json:"submitted_at"`
}

// Position is an open position
type Position struct {
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Qty           decimal.Decimal `json:"qty"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPL  decimal.Decimal `json:"unrealized_pl"`
}

// CalendarDay is one row of the exchange calendar. Open and Close are
// HH:MM in exchange time.
type CalendarDay struct {
	Date  string `json:"date"`
	Open  string `json:"open"`
	Close string `json:"close"`
}

type orderRequest struct {
	Symbol        string          `json:"symbol"`
	Qty           decimal.Decimal `json:"qty"`
	Side          string          `json:"side"`
	Type          string          `json:"type"`
	TimeInForce   string          `json:"time_in_force"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
}

// GetAccount fetches the trading account
func (c *Client) GetAccount(ctx context.Context) (*Account, error) {
	var acct Account
	if err := c.get(ctx, c.tradingURL, "/v2/account", nil, &acct); err != nil {
		return nil, fmt.Errorf("error fetching account: %w", err)
	}
	return &acct, nil
}

// SubmitMarketOrder places a day market order for a whole number of shares
func (c *Client) SubmitMarketOrder(ctx context.Context, symbol, side string, qty int, clientOrderID string) (*Order, error) {
	req := orderRequest{
		Symbol:        symbol,
		Qty:           decimal.NewFromInt(int64(qty)),
		Side:          side,
		Type:          "market",
		TimeInForce:   "day",
		ClientOrderID: clientOrderID,
	}

	body, err := c.doRequest(ctx, http.MethodPost, c.tradingURL, "/v2/orders", nil, req)
	if err != nil {
		return nil, fmt.Errorf("error placing order: %w", err)
	}

	var order Order
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, fmt.Errorf("error parsing order response: %w", err)
	}
	return &order, nil
}

// GetPosition returns the signed share quantity held in symbol. A flat
// symbol returns zero.
func (c *Client) GetPosition(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var pos Position
	path := "/v2/positions/" + url.PathEscape(symbol)
	if err := c.get(ctx, c.tradingURL, path, nil, &pos); err != nil {
		if IsNotFound(err) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("error fetching position: %w", err)
	}

	qty := pos.Qty
	if pos.Side == "short" && qty.IsPositive() {
		qty = qty.Neg()
	}
	return qty, nil
}

// CloseAllPositions liquidates every open position, optionally cancelling
// open orders first.
func (c *Client) CloseAllPositions(ctx context.Context, cancelOrders bool) error {
	params := url.Values{}
	params.Set("cancel_orders", strconv.FormatBool(cancelOrders))

	if _, err := c.doRequest(ctx, http.MethodDelete, c.tradingURL, "/v2/positions", params, nil); err != nil {
		return fmt.Errorf("error closing positions: %w", err)
	}
	return nil
}

// GetCalendar returns the trading days between start and end inclusive
func (c *Client) GetCalendar(ctx context.Context, start, end time.Time) ([]CalendarDay, error) {
	params := url.Values{}
	params.Set("start", start.Format("2006-01-02"))
	params.Set("end", end.Format("2006-01-02"))

	var days []CalendarDay
	if err := c.get(ctx, c.tradingURL, "/v2/calendar", params, &days); err != nil {
		return nil, fmt.Errorf("error fetching calendar: %w", err)
	}
	return days, nil
}

// SessionFor returns the exchange session on day, or false when the
// exchange is closed.
func (c *Client) SessionFor(ctx context.Context, day time.Time) (market.Session, bool, error) {
	local := day.In(c.loc)
	days, err := c.GetCalendar(ctx, local, local)
	if err != nil {
		return market.Session{}, false, err
	}

	key := local.Format("2006-01-02")
	for _, d := range days {
		if d.Date != key {
			continue
		}
		open, err := time.ParseInLocation("2006-01-02 15:04", d.Date+" "+d.Open, c.loc)
		if err != nil {
			return market.Session{}, false, fmt.Errorf("error parsing session open %q: %w", d.Open, err)
		}
		closeAt, err := time.ParseInLocation("2006-01-02 15:04", d.Date+" "+d.Close, c.loc)
		if err != nil {
			return market.Session{}, false, fmt.Errorf("error parsing session close %q: %w", d.Close, err)
		}
		return market.Session{Open: open, Close: closeAt}, true, nil
	}

	return market.Session{}, false, nil
}
