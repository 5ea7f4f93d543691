package alpaca

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gap-reversion-bot/internal/market"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, now time.Time) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	c := NewClient(Config{
		APIKey:     "key",
		SecretKey:  "secret",
		TradingURL: srv.URL,
		DataURL:    srv.URL,
		Location:   ny,
	})
	c.now = func() time.Time { return now }
	return c
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestAuthHeadersAndAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "secret", r.Header.Get("APCA-API-SECRET-KEY"))
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"message":"forbidden"}`)
	}, time.Now())

	_, err := c.GetAccount(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.False(t, IsNotFound(err))
}

func TestPriorSessionCloseSkipsToday(t *testing.T) {
	// 2024-03-13 10:00 ET
	now := time.Date(2024, 3, 13, 14, 0, 0, 0, time.UTC)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/stocks/SPY/bars", r.URL.Path)
		assert.Equal(t, TimeframeDay, r.URL.Query().Get("timeframe"))
		assert.Equal(t, "iex", r.URL.Query().Get("feed"))
		writeJSON(w, map[string]interface{}{
			"symbol": "SPY",
			"bars": []map[string]interface{}{
				{"t": "2024-03-11T04:00:00Z", "o": 510, "h": 512, "l": 508, "c": 511, "v": 1000},
				{"t": "2024-03-12T04:00:00Z", "o": 511, "h": 515, "l": 510, "c": 514.5, "v": 1000},
				{"t": "2024-03-13T04:00:00Z", "o": 509, "h": 510, "l": 505, "c": 506, "v": 500},
			},
			"next_page_token": nil,
		})
	}, now)

	prior, err := c.PriorSessionClose(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, 514.5, prior)
}

func TestSessionOpenBeforeOpenIsAbsent(t *testing.T) {
	// 09:00 ET
	now := time.Date(2024, 3, 13, 13, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected before the open")
	}, now)

	_, err := c.SessionOpen(context.Background(), "SPY")
	assert.ErrorIs(t, err, market.ErrNoData)
}

func TestSessionOpenFirstBar(t *testing.T) {
	now := time.Date(2024, 3, 13, 14, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2024-03-13T13:30:00Z", r.URL.Query().Get("start"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		writeJSON(w, map[string]interface{}{
			"bars": []map[string]interface{}{
				{"t": "2024-03-13T13:30:00Z", "o": 98, "h": 98.5, "l": 97.5, "c": 98.2, "v": 1200, "vw": 98.1},
			},
		})
	}, now)

	open, err := c.SessionOpen(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, 98.0, open)
}

func TestRecentBarsFollowsPages(t *testing.T) {
	now := time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("page_token") == "" {
			token := "next"
			writeJSON(w, map[string]interface{}{
				"bars":            []map[string]interface{}{{"t": "2024-03-13T14:00:00Z", "c": 1}},
				"next_page_token": token,
			})
			return
		}
		writeJSON(w, map[string]interface{}{
			"bars": []map[string]interface{}{{"t": "2024-03-13T14:01:00Z", "c": 2, "vw": 1.5}},
		})
	}, now)

	bars, err := c.RecentBars(context.Background(), "SPY", 60)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1.5, bars[1].VWAP)
}

func TestRecentBarsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"bars": nil})
	}, time.Now())

	_, err := c.RecentBars(context.Background(), "SPY", 60)
	assert.ErrorIs(t, err, market.ErrNoData)
}

func TestLatestPriceMid(t *testing.T) {
	tests := []struct {
		name    string
		ask     float64
		bid     float64
		want    float64
		wantErr bool
	}{
		{"two sided", 100.2, 100.0, 100.1, false},
		{"no bid", 100.2, 0, 0, true},
		{"no ask", 0, 100.0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v2/stocks/SPY/quotes/latest", r.URL.Path)
				writeJSON(w, map[string]interface{}{
					"symbol": "SPY",
					"quote":  map[string]interface{}{"ap": tt.ask, "bp": tt.bid},
				})
			}, time.Now())

			got, err := c.LatestPrice(context.Background(), "SPY")
			if tt.wantErr {
				assert.ErrorIs(t, err, market.ErrNoData)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestSnapshotGapSource(t *testing.T) {
	now := time.Date(2024, 3, 13, 14, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/stocks/SPY/snapshot", r.URL.Path)
		writeJSON(w, map[string]interface{}{
			"dailyBar":     map[string]interface{}{"t": "2024-03-13T04:00:00Z", "o": 98},
			"prevDailyBar": map[string]interface{}{"t": "2024-03-12T04:00:00Z", "c": 100},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{DataURL: srv.URL, TradingURL: srv.URL, GapSource: GapSourceSnapshot})
	c.now = func() time.Time { return now }

	prior, err := c.PriorSessionClose(context.Background(), "SPY")
	require.NoError(t, err)
	open, err := c.SessionOpen(context.Background(), "SPY")
	require.NoError(t, err)

	assert.Equal(t, 100.0, prior)
	assert.Equal(t, 98.0, open)
}

func TestSubmitMarketOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/orders", r.URL.Path)

		var req map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "SPY", req["symbol"])
		assert.Equal(t, "10", req["qty"])
		assert.Equal(t, "buy", req["side"])
		assert.Equal(t, "market", req["type"])
		assert.Equal(t, "day", req["time_in_force"])
		assert.Equal(t, "gapbot-abc", req["client_order_id"])

		writeJSON(w, map[string]interface{}{
			"id":               "order-1",
			"client_order_id":  "gapbot-abc",
			"symbol":           "SPY",
			"side":             "buy",
			"qty":              "10",
			"filled_qty":       "10",
			"filled_avg_price": "95.25",
			"status":           "filled",
		})
	}, time.Now())

	order, err := c.SubmitMarketOrder(context.Background(), "SPY", "buy", 10, "gapbot-abc")
	require.NoError(t, err)
	assert.Equal(t, "order-1", order.ID)
	require.True(t, order.FilledAvgPrice.Valid)
	assert.Equal(t, "95.25", order.FilledAvgPrice.Decimal.String())
}

func TestSubmitMarketOrderUnfilled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"id":               "order-2",
			"qty":              "5",
			"filled_qty":       "0",
			"filled_avg_price": nil,
			"status":           "accepted",
		})
	}, time.Now())

	order, err := c.SubmitMarketOrder(context.Background(), "SPY", "sell", 5, "")
	require.NoError(t, err)
	assert.False(t, order.FilledAvgPrice.Valid)
}

func TestGetAccountDecimalEquity(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/account", r.URL.Path)
		io.WriteString(w, `{"id":"a1","status":"ACTIVE","equity":"100000.55","cash":"50000","buying_power":"200000"}`)
	}, time.Now())

	acct, err := c.GetAccount(context.Background())
	require.NoError(t, err)
	f, _ := acct.Equity.Float64()
	assert.InDelta(t, 100000.55, f, 1e-9)
}

func TestGetPosition(t *testing.T) {
	t.Run("flat on 404", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"code":40410000,"message":"position does not exist"}`)
		}, time.Now())

		qty, err := c.GetPosition(context.Background(), "SPY")
		require.NoError(t, err)
		assert.True(t, qty.IsZero())
	})

	t.Run("short is negative", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"symbol":"SPY","side":"short","qty":"12"}`)
		}, time.Now())

		qty, err := c.GetPosition(context.Background(), "SPY")
		require.NoError(t, err)
		assert.Equal(t, int64(-12), qty.IntPart())
	})
}

func TestCloseAllPositionsCancelsOrders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "true", r.URL.Query().Get("cancel_orders"))
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, `[]`)
	}, time.Now())

	require.NoError(t, c.CloseAllPositions(context.Background(), true))
}

func TestSessionForHalfDayAndHoliday(t *testing.T) {
	ny, _ := time.LoadLocation("America/New_York")

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		day := r.URL.Query().Get("start")
		if day == "2024-11-29" {
			writeJSON(w, []map[string]string{{"date": "2024-11-29", "open": "09:30", "close": "13:00"}})
			return
		}
		// Thanksgiving is absent from the calendar
		writeJSON(w, []map[string]string{})
	}, time.Now())

	s, open, err := c.SessionFor(context.Background(), time.Date(2024, 11, 29, 12, 0, 0, 0, ny))
	require.NoError(t, err)
	require.True(t, open)
	assert.Equal(t, 13, s.Close.Hour())

	_, open, err = c.SessionFor(context.Background(), time.Date(2024, 11, 28, 12, 0, 0, 0, ny))
	require.NoError(t, err)
	assert.False(t, open)
}

func TestMockClientFills(t *testing.T) {
	mc := NewMockClient(100)
	ctx := context.Background()

	order, err := mc.SubmitMarketOrder(ctx, "SPY", "sell", 3, "x")
	require.NoError(t, err)
	assert.True(t, order.FilledAvgPrice.Valid)

	qty, _ := mc.GetPosition(ctx, "SPY")
	assert.Equal(t, int64(-3), qty.IntPart())

	require.NoError(t, mc.CloseAllPositions(ctx, true))
	qty, _ = mc.GetPosition(ctx, "SPY")
	assert.True(t, qty.IsZero())

	bars, err := mc.RecentBars(ctx, "SPY", 30)
	require.NoError(t, err)
	assert.Len(t, bars, 30)
	assert.True(t, bars[0].Time.Before(bars[29].Time))
}
