package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gap-reversion-bot/internal/logging"
	"gap-reversion-bot/internal/market"
)

const (
	gapKeyFormat = "gapbot:gap:%s:%s:%s"

	FieldPriorClose  = "prior_close"
	FieldSessionOpen = "session_open"

	DefaultGapTTL = 24 * time.Hour
)

// MarketData is the data source the gap cache decorates
type MarketData interface {
	RecentBars(ctx context.Context, symbol string, lookbackMinutes int) ([]market.Bar, error)
	PriorSessionClose(ctx context.Context, symbol string) (float64, error)
	SessionOpen(ctx context.Context, symbol string) (float64, error)
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}

// GapCache keeps the day's prior close and session open in Redis so a
// restart mid-session does not refetch them. Bars and quotes pass through.
type GapCache struct {
	source   MarketData
	store    Store
	calendar interface{ TradingDay(time.Time) string }
	ttl      time.Duration
	now      func() time.Time
	logger   *logging.Logger
}

// NewGapCache wraps source. store may be nil, in which case every call
// passes through.
func NewGapCache(source MarketData, store Store, calendar interface{ TradingDay(time.Time) string }) *GapCache {
	return &GapCache{
		source:   source,
		store:    store,
		calendar: calendar,
		ttl:      DefaultGapTTL,
		now:      time.Now,
		logger:   logging.WithComponent("gap-cache"),
	}
}

// GapKey returns the cache key for one gap field on one trading day
func GapKey(symbol, day, field string) string {
	return fmt.Sprintf(gapKeyFormat, symbol, day, field)
}

func (g *GapCache) RecentBars(ctx context.Context, symbol string, lookbackMinutes int) ([]market.Bar, error) {
	return g.source.RecentBars(ctx, symbol, lookbackMinutes)
}

func (g *GapCache) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	return g.source.LatestPrice(ctx, symbol)
}

func (g *GapCache) PriorSessionClose(ctx context.Context, symbol string) (float64, error) {
	return g.cached(ctx, symbol, FieldPriorClose, g.source.PriorSessionClose)
}

func (g *GapCache) SessionOpen(ctx context.Context, symbol string) (float64, error) {
	return g.cached(ctx, symbol, FieldSessionOpen, g.source.SessionOpen)
}

func (g *GapCache) cached(ctx context.Context, symbol, field string, fetch func(context.Context, string) (float64, error)) (float64, error) {
	if g.store == nil || !g.store.IsHealthy() {
		return fetch(ctx, symbol)
	}

	key := GapKey(symbol, g.calendar.TradingDay(g.now()), field)

	raw, err := g.store.Get(ctx, key)
	switch {
	case err == nil:
		if v, perr := strconv.ParseFloat(raw, 64); perr == nil && v > 0 {
			g.logger.Debug("Gap cache hit", "key", key, "price", v)
			return v, nil
		}
		g.logger.Warn("Dropping bad cached gap value", "key", key, "value", raw)
		if derr := g.store.Delete(ctx, key); derr != nil {
			g.logger.Debug("Gap cache delete failed", "key", key, "error", derr)
		}
	case !errors.Is(err, ErrMiss):
		g.logger.Debug("Gap cache read failed", "key", key, "error", err)
	}

	v, err := fetch(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if v > 0 {
		if err := g.store.Set(ctx, key, strconv.FormatFloat(v, 'f', -1, 64), g.ttl); err != nil {
			g.logger.Debug("Gap cache write failed", "key", key, "error", err)
		}
	}
	return v, nil
}
