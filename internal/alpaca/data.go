package alpaca

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"gap-reversion-bot/internal/market"
)

const (
	TimeframeMinute = "1Min"
	TimeframeDay    = "1Day"

	maxBarPages = 10
)

type barsResponse struct {
	Bars          []market.Bar `json:"bars"`
	Symbol        string       `json:"symbol"`
	NextPageToken *string      `json:"next_page_token"`
}

// Quote is the latest NBBO (or IEX top of book) for a symbol
type Quote struct {
	AskPrice  float64   `json:"ap"`
	AskSize   float64   `json:"as"`
	BidPrice  float64   `json:"bp"`
	BidSize   float64   `json:"bs"`
	Timestamp time.Time `json:"t"`
}

type latestQuoteResponse struct {
	Symbol string `json:"symbol"`
	Quote  Quote  `json:"quote"`
}

// Snapshot bundles the latest quote with the current and previous daily bars
type Snapshot struct {
	LatestQuote  *Quote      `json:"latestQuote"`
	MinuteBar    *market.Bar `json:"minuteBar"`
	DailyBar     *market.Bar `json:"dailyBar"`
	PrevDailyBar *market.Bar `json:"prevDailyBar"`
}

// GetBars fetches bars between start and end, oldest first, following
// pagination until limit bars are collected. limit <= 0 means no limit.
func (c *Client) GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time, limit int) ([]market.Bar, error) {
	params := url.Values{}
	params.Set("timeframe", timeframe)
	params.Set("start", start.UTC().Format(time.RFC3339))
	if !end.IsZero() {
		params.Set("end", end.UTC().Format(time.RFC3339))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	params.Set("feed", c.feed)
	params.Set("adjustment", "raw")
	params.Set("sort", "asc")

	path := fmt.Sprintf("/v2/stocks/%s/bars", url.PathEscape(symbol))

	var bars []market.Bar
	for page := 0; page < maxBarPages; page++ {
		var resp barsResponse
		if err := c.get(ctx, c.dataURL, path, params, &resp); err != nil {
			return nil, fmt.Errorf("error fetching bars: %w", err)
		}
		bars = append(bars, resp.Bars...)

		if limit > 0 && len(bars) >= limit {
			return bars[:limit], nil
		}
		if resp.NextPageToken == nil || *resp.NextPageToken == "" {
			break
		}
		params.Set("page_token", *resp.NextPageToken)
	}

	return bars, nil
}

// RecentBars returns one-minute bars covering roughly the last
// lookbackMinutes minutes.
func (c *Client) RecentBars(ctx context.Context, symbol string, lookbackMinutes int) ([]market.Bar, error) {
	now := c.now()
	start := now.Add(-time.Duration(lookbackMinutes+5) * time.Minute)

	bars, err := c.GetBars(ctx, symbol, TimeframeMinute, start, now, 0)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, market.ErrNoData
	}
	return bars, nil
}

// PriorSessionClose returns the close of the last completed daily bar
// before today.
func (c *Client) PriorSessionClose(ctx context.Context, symbol string) (float64, error) {
	if c.gapSource == GapSourceSnapshot {
		prior, _, err := c.GapData(ctx, symbol)
		return prior, err
	}

	now := c.now()
	bars, err := c.GetBars(ctx, symbol, TimeframeDay, now.AddDate(0, 0, -5), now, 0)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, market.ErrNoData
	}

	today := now.In(c.loc).Format("2006-01-02")
	for i := len(bars) - 1; i >= 0; i-- {
		if bars[i].Time.In(c.loc).Format("2006-01-02") < today {
			return bars[i].Close, nil
		}
	}
	return bars[len(bars)-1].Close, nil
}

// SessionOpen returns the open of today's first regular-session minute bar.
func (c *Client) SessionOpen(ctx context.Context, symbol string) (float64, error) {
	if c.gapSource == GapSourceSnapshot {
		_, open, err := c.GapData(ctx, symbol)
		return open, err
	}

	now := c.now()
	local := now.In(c.loc)
	y, m, d := local.Date()
	open := time.Date(y, m, d, market.OpenHour, market.OpenMinute, 0, 0, c.loc)
	if now.Before(open) {
		return 0, market.ErrNoData
	}

	bars, err := c.GetBars(ctx, symbol, TimeframeMinute, open, now, 1)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, market.ErrNoData
	}
	return bars[0].Open, nil
}

// GetSnapshot fetches the symbol snapshot
func (c *Client) GetSnapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	params := url.Values{}
	params.Set("feed", c.feed)

	var snap Snapshot
	path := fmt.Sprintf("/v2/stocks/%s/snapshot", url.PathEscape(symbol))
	if err := c.get(ctx, c.dataURL, path, params, &snap); err != nil {
		return nil, fmt.Errorf("error fetching snapshot: %w", err)
	}
	return &snap, nil
}

// GapData returns the previous daily close and today's open from a single
// snapshot call.
func (c *Client) GapData(ctx context.Context, symbol string) (priorClose, sessionOpen float64, err error) {
	snap, err := c.GetSnapshot(ctx, symbol)
	if err != nil {
		return 0, 0, err
	}
	if snap.PrevDailyBar == nil || snap.DailyBar == nil {
		return 0, 0, market.ErrNoData
	}
	return snap.PrevDailyBar.Close, snap.DailyBar.Open, nil
}

// GetLatestQuote fetches the latest quote for symbol
func (c *Client) GetLatestQuote(ctx context.Context, symbol string) (*Quote, error) {
	params := url.Values{}
	params.Set("feed", c.feed)

	var resp latestQuoteResponse
	path := fmt.Sprintf("/v2/stocks/%s/quotes/latest", url.PathEscape(symbol))
	if err := c.get(ctx, c.dataURL, path, params, &resp); err != nil {
		return nil, fmt.Errorf("error fetching latest quote: %w", err)
	}
	return &resp.Quote, nil
}

// LatestPrice returns the quote midpoint. A one-sided or empty book yields
// market.ErrNoData.
func (c *Client) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	q, err := c.GetLatestQuote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if q.AskPrice <= 0 || q.BidPrice <= 0 {
		return 0, market.ErrNoData
	}
	return (q.AskPrice + q.BidPrice) / 2, nil
}
