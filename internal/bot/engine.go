package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gap-reversion-bot/internal/events"
	"gap-reversion-bot/internal/logging"
	"gap-reversion-bot/internal/market"
	"gap-reversion-bot/internal/metrics"
	"gap-reversion-bot/internal/risk"
	"gap-reversion-bot/internal/strategy"
)

const (
	minBarLookback     = 60
	openWaitLogSeconds = 120
)

// Config holds the engine settings
type Config struct {
	Symbol             string
	EntryWindowMinutes int
	DryRun             bool
	EODFlattenBuffer   time.Duration
	Strategy           strategy.Config
}

// Engine drives the gap fade state machine one cycle at a time
type Engine struct {
	cfg      Config
	data     MarketData
	broker   Broker
	calendar Calendar
	risk     *risk.RiskManager
	bus      *events.EventBus
}

// NewEngine creates an engine. bus may be nil.
func NewEngine(cfg Config, data MarketData, broker Broker, calendar Calendar, rm *risk.RiskManager, bus *events.EventBus) *Engine {
	if cfg.EODFlattenBuffer <= 0 {
		cfg.EODFlattenBuffer = 5 * time.Minute
	}
	return &Engine{
		cfg:      cfg,
		data:     data,
		broker:   broker,
		calendar: calendar,
		risk:     rm,
		bus:      bus,
	}
}

// Tick runs one evaluation cycle. Recoverable conditions (missing data,
// rejected orders, closed market) return nil; only unexpected collaborator
// failures are returned.
func (e *Engine) Tick(ctx context.Context, tc *TradingContext, now time.Time) error {
	tc.Cycle++
	tc.LastCycle = now
	defer e.publishStatus(tc)

	log := logging.FromContext(ctx).WithComponent("engine").WithField("symbol", e.cfg.Symbol)

	// 1. Day rollover
	if day := e.calendar.TradingDay(now); day != tc.LastTradingDay {
		if tc.HasPosition() {
			log.Warn("Position carried across day boundary, dropping it from state", "event", "new_day", "direction", tc.Direction.String(), "qty", tc.Quantity)
		}
		tc.resetDay(day)
		e.risk.ResetDaily()
		e.transition(log, tc, StateIdle, "new_day")
		log.Info("New trading day", "event", "new_day", "day", day)
		e.bus.PublishNewTradingDay(e.cfg.Symbol, day)
	}

	// 2. Market closed. Locked stays locked until the next day.
	if !e.calendar.IsMarketOpen(now) {
		if tc.State != StateLocked {
			if tc.HasPosition() {
				log.Warn("Market closed with a position held, dropping it from state", "event", "market_closed", "direction", tc.Direction.String(), "qty", tc.Quantity)
				tc.clearPosition()
			}
			e.transition(log, tc, StateIdle, "market_closed")
		}
		if secs := e.calendar.SecondsUntilOpen(now); secs > openWaitLogSeconds {
			log.Debug("Market closed", "seconds_until_open", secs)
		}
		return nil
	}

	// 3. Gap reference prices, once per day
	if !e.ensureGapData(ctx, log, tc) {
		return nil
	}

	// 4. End of day flatten
	if e.calendar.SecondsUntilClose(now) <= e.cfg.EODFlattenBuffer.Seconds() {
		e.flattenForClose(ctx, log, tc, now)
		return nil
	}

	switch tc.State {
	case StateIdle:
		// 5. Arm for the session
		e.transition(log, tc, StateArmed, "session_open")
		return nil
	case StateLocked:
		// 6. Done for the day
		return nil
	}

	// 7. Bars and latest price
	lookback := e.cfg.Strategy.BandLookback + 10
	if lookback < minBarLookback {
		lookback = minBarLookback
	}
	bars, err := e.data.RecentBars(ctx, e.cfg.Symbol, lookback)
	if err != nil || len(bars) == 0 {
		log.Debug("No bars available, skipping cycle", "error", err)
		return nil
	}
	latest := e.latestPrice(ctx, log, bars)

	switch tc.State {
	case StateArmed:
		return e.handleArmed(ctx, log, tc, now, bars, latest)
	case StateInTrade:
		e.handleInTrade(ctx, log, tc, now, bars, latest)
	}
	return nil
}

func (e *Engine) ensureGapData(ctx context.Context, log *logging.Logger, tc *TradingContext) bool {
	if tc.PriorClose <= 0 {
		v, err := e.data.PriorSessionClose(ctx, e.cfg.Symbol)
		switch {
		case err != nil:
			logFetchError(log, "prior close", err)
		case v > 0 && isFinite(v):
			tc.PriorClose = v
			log.Info("Prior session close", "event", "prior_close", "price", v)
		}
	}

	if tc.SessionOpen <= 0 {
		v, err := e.data.SessionOpen(ctx, e.cfg.Symbol)
		switch {
		case err != nil:
			logFetchError(log, "session open", err)
		case v > 0 && isFinite(v):
			tc.SessionOpen = v
			log.Info("Session open", "event", "today_open", "price", v,
				"gap_pct", strategy.GapPercent(tc.PriorClose, v))
		}
	}

	return tc.PriorClose > 0 && tc.SessionOpen > 0
}

// latestPrice prefers the live quote and falls back to the newest close
func (e *Engine) latestPrice(ctx context.Context, log *logging.Logger, bars []market.Bar) float64 {
	price, err := e.data.LatestPrice(ctx, e.cfg.Symbol)
	if err == nil && price > 0 && isFinite(price) {
		return price
	}
	if last, ok := market.Last(bars); ok {
		log.Debug("Latest price unavailable, using last close", "error", err, "price", last.Close)
		return last.Close
	}
	return 0
}

func (e *Engine) handleArmed(ctx context.Context, log *logging.Logger, tc *TradingContext, now time.Time, bars []market.Bar, latest float64) error {
	if !e.risk.CanTrade() {
		e.transition(log, tc, StateLocked, "trade_limit")
		return nil
	}

	if !e.calendar.IsWithinEntryWindow(now, e.cfg.EntryWindowMinutes) {
		return nil
	}

	sig, ok := strategy.EvaluateEntry(e.cfg.Strategy, bars, latest, tc.PriorClose, tc.SessionOpen)
	if !ok {
		return nil
	}

	kind := "entry_" + strings.ToLower(sig.Direction.String())
	logging.SignalContext(ctx, e.cfg.Symbol, kind, sig.Price).
		Info("Entry signal", "event", "signal", "direction", sig.Direction.String(), "gap_pct", sig.GapPct, "band", sig.BandValue)
	metrics.SignalsTotal.WithLabelValues(kind).Inc()
	e.bus.PublishSignal(e.cfg.Symbol, kind, sig.Price, map[string]interface{}{
		"direction": sig.Direction.String(),
		"gap_pct":   sig.GapPct,
		"band":      sig.BandValue,
	})

	equity, err := e.broker.AccountEquity(ctx)
	if err != nil {
		return fmt.Errorf("error fetching account equity: %w", err)
	}

	qty := e.risk.ComputeShares(equity, latest)
	if qty <= 0 {
		log.Info("Position size is zero, skipping entry", "equity", equity, "price", latest)
		return nil
	}

	fill, err := e.broker.SubmitEntry(ctx, e.cfg.Symbol, sig.Direction, qty, e.cfg.DryRun)
	if err != nil || fill == nil {
		log.Warn("Entry order failed, staying armed", "event", "entry_order", "qty", qty, "error", err)
		return nil
	}

	entryPrice := fill.Price
	if entryPrice <= 0 {
		entryPrice = latest
	}
	if fill.Qty > 0 {
		qty = fill.Qty
	}

	tc.setPosition(sig.Direction, entryPrice, qty, now)
	e.risk.RecordTrade()
	e.transition(log, tc, StateInTrade, "entry_filled")

	logging.PositionContext(ctx, e.cfg.Symbol, sig.Direction.EntrySide(), entryPrice, qty).
		Info("Position opened", "event", "entry_order", "order_id", fill.OrderID, "dry_run", fill.DryRun)
	e.bus.PublishTradeOpened(e.cfg.Symbol, sig.Direction.String(), entryPrice, qty, sig.GapPct)
	return nil
}

func (e *Engine) handleInTrade(ctx context.Context, log *logging.Logger, tc *TradingContext, now time.Time, bars []market.Bar, latest float64) {
	if !tc.HasPosition() {
		log.Error("In trade without a consistent position, flattening", "entry_price", tc.EntryPrice, "direction", tc.Direction.String(), "qty", tc.Quantity)
		if err := e.broker.FlattenAll(ctx, e.cfg.DryRun); err != nil {
			log.Error("Flatten after inconsistent state failed", "error", err)
		}
		tc.clearPosition()
		e.transition(log, tc, StateArmed, "inconsistent_position")
		return
	}

	sig, ok := strategy.EvaluateExit(e.cfg.Strategy, bars, latest, tc.EntryPrice, tc.Direction, false)
	if !ok {
		return
	}

	if !e.closePosition(ctx, log, tc, sig, now) {
		return
	}

	if e.risk.CanTrade() {
		e.transition(log, tc, StateArmed, "exit_filled")
	} else {
		e.transition(log, tc, StateLocked, "trade_limit")
	}
}

func (e *Engine) flattenForClose(ctx context.Context, log *logging.Logger, tc *TradingContext, now time.Time) {
	switch {
	case tc.HasPosition():
		price := e.livePrice(ctx, tc.EntryPrice)
		sig, _ := strategy.EvaluateExit(e.cfg.Strategy, nil, price, tc.EntryPrice, tc.Direction, true)
		log.Info("End of day flatten", "event", "eod_flatten", "direction", tc.Direction.String(), "qty", tc.Quantity)
		if !e.closePosition(ctx, log, tc, sig, now) {
			if err := e.broker.FlattenAll(ctx, e.cfg.DryRun); err != nil {
				log.Error("End of day flatten failed", "event", "eod_flatten", "error", err)
				e.bus.PublishError("engine", "end of day flatten failed", err)
			}
			tc.clearPosition()
		}
	case tc.State == StateInTrade:
		if err := e.broker.FlattenAll(ctx, e.cfg.DryRun); err != nil {
			log.Error("End of day flatten failed", "event", "eod_flatten", "error", err)
		}
		tc.clearPosition()
	}

	e.transition(log, tc, StateLocked, "end_of_day")
}

// closePosition submits the exit and clears the position on a fill. It
// reports false when the exit did not go through.
func (e *Engine) closePosition(ctx context.Context, log *logging.Logger, tc *TradingContext, sig strategy.ExitSignal, now time.Time) bool {
	kind := "exit_" + strings.ToLower(sig.Reason.String())
	logging.SignalContext(ctx, e.cfg.Symbol, kind, sig.Price).
		Info("Exit signal", "event", "exit_signal", "reason", sig.Reason.String(), "entry_price", tc.EntryPrice)
	metrics.SignalsTotal.WithLabelValues(kind).Inc()
	e.bus.PublishSignal(e.cfg.Symbol, kind, sig.Price, map[string]interface{}{
		"reason":    sig.Reason.String(),
		"direction": tc.Direction.String(),
	})

	fill, err := e.broker.SubmitExit(ctx, e.cfg.Symbol, tc.Direction, tc.Quantity, e.cfg.DryRun)
	if err != nil || fill == nil {
		log.Warn("Exit order failed, will retry next cycle", "event", "exit_order", "reason", sig.Reason.String(), "error", err)
		return false
	}

	exitPrice := fill.Price
	if exitPrice <= 0 {
		exitPrice = sig.Price
	}
	pnl := (exitPrice - tc.EntryPrice) * float64(tc.Quantity)
	if tc.Direction == strategy.Short {
		pnl = -pnl
	}

	logging.PositionContext(ctx, e.cfg.Symbol, tc.Direction.ExitSide(), tc.EntryPrice, tc.Quantity).
		Info("Trade closed", "event", "trade_closed", "exit_price", exitPrice, "pnl", pnl, "reason", sig.Reason.String(), "order_id", fill.OrderID)
	e.bus.PublishTradeClosed(e.cfg.Symbol, tc.Direction.String(), sig.Reason.String(),
		tc.EntryPrice, exitPrice, tc.Quantity, pnl, tc.EntryTime)

	tc.clearPosition()
	return true
}

// livePrice returns the latest quote or fallback when none is available
func (e *Engine) livePrice(ctx context.Context, fallback float64) float64 {
	price, err := e.data.LatestPrice(ctx, e.cfg.Symbol)
	if err != nil || price <= 0 || !isFinite(price) {
		return fallback
	}
	return price
}

func (e *Engine) transition(log *logging.Logger, tc *TradingContext, to State, reason string) {
	if tc.State == to {
		return
	}
	from := tc.State
	tc.State = to

	log.Info("State change", "event", "state_change", "from", from.String(), "to", to.String(), "reason", reason)
	e.bus.PublishStateChanged(e.cfg.Symbol, from.String(), to.String())
}

func (e *Engine) publishStatus(tc *TradingContext) {
	metrics.State.Set(float64(tc.State.Ordinal()))
	metrics.TradesToday.Set(float64(e.risk.TradesToday()))
	metrics.PositionQty.Set(float64(tc.SignedQuantity()))

	status := tc.Snapshot().ToMap()
	status["symbol"] = e.cfg.Symbol
	status["dry_run"] = e.cfg.DryRun
	status["risk"] = e.risk.GetRiskMetrics()
	e.bus.PublishStatus(status)
}

func logFetchError(log *logging.Logger, what string, err error) {
	if errors.Is(err, market.ErrNoData) {
		log.Debug("No data for "+what, "error", err)
		return
	}
	log.Warn("Failed to fetch "+what, "error", err)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
