package bot

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gap-reversion-bot/internal/events"
	"gap-reversion-bot/internal/execution"
	"gap-reversion-bot/internal/market"
	"gap-reversion-bot/internal/risk"
	"gap-reversion-bot/internal/strategy"
)

// ============================================================================
// FAKES
// ============================================================================

type fakeCalendar struct {
	day        string
	open       bool
	inWindow   bool
	secsClose  float64
	secsOpen   float64
	panicOnDay bool
}

func (c *fakeCalendar) TradingDay(now time.Time) string {
	if c.panicOnDay {
		panic("calendar exploded")
	}
	return c.day
}
func (c *fakeCalendar) IsMarketOpen(now time.Time) bool { return c.open }
func (c *fakeCalendar) IsWithinEntryWindow(now time.Time, _ int) bool { return c.inWindow }
func (c *fakeCalendar) SecondsUntilClose(now time.Time) float64 { return c.secsClose }
func (c *fakeCalendar) SecondsUntilOpen(now time.Time) float64 { return c.secsOpen }

type fakeData struct {
	bars       []market.Bar
	barsErr    error
	latest     float64
	latestErr  error
	prior      float64
	open       float64
	gapErr     error
	priorCalls int
}

func (d *fakeData) RecentBars(ctx context.Context, symbol string, lookback int) ([]market.Bar, error) {
	return d.bars, d.barsErr
}

func (d *fakeData) PriorSessionClose(ctx context.Context, symbol string) (float64, error) {
	d.priorCalls++
	return d.prior, d.gapErr
}

func (d *fakeData) SessionOpen(ctx context.Context, symbol string) (float64, error) {
	return d.open, d.gapErr
}

func (d *fakeData) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	return d.latest, d.latestErr
}

type fakeBroker struct {
	equity       float64
	equityErr    error
	entryErr     error
	exitErr      error
	fillPrice    float64
	entries      []int
	exits        []int
	flattenCalls int
}

func (b *fakeBroker) SubmitEntry(ctx context.Context, symbol string, dir strategy.Direction, qty int, dryRun bool) (*execution.Fill, error) {
	b.entries = append(b.entries, qty)
	if b.entryErr != nil {
		return nil, b.entryErr
	}
	return &execution.Fill{OrderID: execution.DryRunOrderID, Symbol: symbol, Side: dir.EntrySide(), Qty: qty, Price: b.fillPrice, DryRun: dryRun}, nil
}

func (b *fakeBroker) SubmitExit(ctx context.Context, symbol string, dir strategy.Direction, qty int, dryRun bool) (*execution.Fill, error) {
	b.exits = append(b.exits, qty)
	if b.exitErr != nil {
		return nil, b.exitErr
	}
	return &execution.Fill{OrderID: execution.DryRunOrderID, Symbol: symbol, Side: dir.ExitSide(), Qty: qty, DryRun: dryRun}, nil
}

func (b *fakeBroker) AccountEquity(ctx context.Context) (float64, error) {
	return b.equity, b.equityErr
}

func (b *fakeBroker) FlattenAll(ctx context.Context, dryRun bool) error {
	b.flattenCalls++
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

// gapWindow returns 20 bars with mean close 97 and sample std 1, so the
// default bands are 95 / 99.
func gapWindow() []market.Bar {
	a := math.Sqrt(19.0 / 20.0)
	start := time.Date(2024, 3, 13, 13, 30, 0, 0, time.UTC)
	bars := make([]market.Bar, 20)
	for i := range bars {
		c := 97 + a
		if i%2 == 1 {
			c = 97 - a
		}
		bars[i] = market.Bar{Time: start.Add(time.Duration(i) * time.Minute), Open: c, High: c, Low: c, Close: c, Volume: 1000}
	}
	return bars
}

type harness struct {
	engine *Engine
	tc     *TradingContext
	cal    *fakeCalendar
	data   *fakeData
	broker *fakeBroker
	risk   *risk.RiskManager
	events *[]events.Event
	now    time.Time
}

func newHarness(maxTrades int) *harness {
	cal := &fakeCalendar{day: "2024-03-13", open: true, inWindow: true, secsClose: 3 * 3600}
	data := &fakeData{bars: gapWindow(), latest: 97.5, prior: 100, open: 98}
	broker := &fakeBroker{equity: 100000}
	rm := risk.NewRiskManager(&risk.Config{MaxTradesPerDay: maxTrades, RiskPct: 0.01, StopPct: 0.01})

	bus := events.NewSyncEventBus()
	var got []events.Event
	bus.SubscribeAll(func(e events.Event) { got = append(got, e) })

	eng := NewEngine(Config{
		Symbol:             "SPY",
		EntryWindowMinutes: 30,
		DryRun:             true,
		EODFlattenBuffer:   5 * time.Minute,
		Strategy:           strategy.DefaultConfig(),
	}, data, broker, cal, rm, bus)

	return &harness{
		engine: eng,
		tc:     NewTradingContext(),
		cal:    cal,
		data:   data,
		broker: broker,
		risk:   rm,
		events: &got,
		now:    time.Date(2024, 3, 13, 14, 0, 0, 0, time.UTC),
	}
}

func (h *harness) tick(t *testing.T) {
	t.Helper()
	h.now = h.now.Add(time.Minute)
	require.NoError(t, h.engine.Tick(context.Background(), h.tc, h.now))
}

func (h *harness) count(typ events.EventType) int {
	n := 0
	for _, e := range *h.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func (h *harness) last(typ events.EventType) (events.Event, bool) {
	for i := len(*h.events) - 1; i >= 0; i-- {
		if (*h.events)[i].Type == typ {
			return (*h.events)[i], true
		}
	}
	return events.Event{}, false
}

// ============================================================================
// TESTS
// ============================================================================

func TestArmingTakesOneCycle(t *testing.T) {
	h := newHarness(5)
	h.data.latest = 94.9 // would signal, but arming comes first

	h.tick(t)

	assert.Equal(t, StateArmed, h.tc.State)
	assert.Equal(t, "2024-03-13", h.tc.LastTradingDay)
	assert.Equal(t, 100.0, h.tc.PriorClose)
	assert.Equal(t, 98.0, h.tc.SessionOpen)
	assert.Empty(t, h.broker.entries)
	assert.Equal(t, 1, h.count(events.EventNewTradingDay))
}

func TestGapFadeRoundTrip(t *testing.T) {
	h := newHarness(5)
	h.tick(t) // arm

	h.data.latest = 94.9
	h.tick(t)

	require.Equal(t, StateInTrade, h.tc.State)
	assert.Equal(t, strategy.Long, h.tc.Direction)
	// dry-run fill carries no price, so the latest price is used
	assert.Equal(t, 94.9, h.tc.EntryPrice)
	// min(floor(1000/0.949), floor(10000/94.9)) = 105
	assert.Equal(t, 105, h.tc.Quantity)
	assert.Equal(t, 1, h.risk.TradesToday())
	assert.Equal(t, 1, h.count(events.EventTradeOpened))

	// Between stop (93.95) and mean (97): hold
	h.data.latest = 96
	h.tick(t)
	assert.Equal(t, StateInTrade, h.tc.State)
	assert.Empty(t, h.broker.exits)

	h.data.latest = 97.1
	h.tick(t)

	assert.Equal(t, StateArmed, h.tc.State)
	assert.False(t, h.tc.HasPosition())
	require.Equal(t, []int{105}, h.broker.exits)

	closed, ok := h.last(events.EventTradeClosed)
	require.True(t, ok)
	assert.Equal(t, string(strategy.ExitMeanReversion), closed.Data["reason"])
	assert.InDelta(t, (97.1-94.9)*105, closed.Data["pnl"].(float64), 1e-9)
}

func TestShortStopLoss(t *testing.T) {
	h := newHarness(5)
	h.data.prior = 96
	h.data.open = 97
	h.tick(t)

	h.data.latest = 99.5
	h.tick(t)
	require.Equal(t, strategy.Short, h.tc.Direction)

	h.data.latest = 99.5 * 1.011
	h.tick(t)

	closed, ok := h.last(events.EventTradeClosed)
	require.True(t, ok)
	assert.Equal(t, string(strategy.ExitStopLoss), closed.Data["reason"])
	assert.Less(t, closed.Data["pnl"].(float64), 0.0)
}

func TestFailedEntryStaysArmed(t *testing.T) {
	h := newHarness(5)
	h.broker.entryErr = errors.New("insufficient buying power")
	h.tick(t)

	h.data.latest = 94.9
	h.tick(t)

	assert.Equal(t, StateArmed, h.tc.State)
	assert.False(t, h.tc.HasPosition())
	assert.Equal(t, 0, h.risk.TradesToday())
	assert.Len(t, h.broker.entries, 1)
}

func TestZeroSizeIsNoop(t *testing.T) {
	h := newHarness(5)
	h.broker.equity = 50
	h.tick(t)

	h.data.latest = 94.9
	h.tick(t)

	assert.Equal(t, StateArmed, h.tc.State)
	assert.Empty(t, h.broker.entries)
}

func TestEquityErrorIsReturned(t *testing.T) {
	h := newHarness(5)
	h.broker.equityErr = errors.New("account endpoint down")
	h.tick(t)

	h.data.latest = 94.9
	h.now = h.now.Add(time.Minute)
	err := h.engine.Tick(context.Background(), h.tc, h.now)

	assert.ErrorIs(t, err, h.broker.equityErr)
	assert.Equal(t, StateArmed, h.tc.State)
}

func TestOutsideEntryWindowWaits(t *testing.T) {
	h := newHarness(5)
	h.cal.inWindow = false
	h.tick(t)

	h.data.latest = 94.9
	h.tick(t)

	assert.Equal(t, StateArmed, h.tc.State)
	assert.Empty(t, h.broker.entries)
}

func TestLatestPriceFallsBackToLastClose(t *testing.T) {
	h := newHarness(5)
	h.tick(t)

	bars := gapWindow()
	bars[len(bars)-1].Close = 94.5
	h.data.bars = bars
	h.data.latestErr = market.ErrNoData
	h.tick(t)

	require.Equal(t, StateInTrade, h.tc.State)
	assert.Equal(t, 94.5, h.tc.EntryPrice)
}

func TestMissingGapDataStaysIdle(t *testing.T) {
	h := newHarness(5)
	h.data.gapErr = market.ErrNoData

	h.tick(t)
	h.tick(t)

	assert.Equal(t, StateIdle, h.tc.State)
	assert.Equal(t, 2, h.data.priorCalls)

	h.data.gapErr = nil
	h.tick(t)
	h.tick(t)
	assert.Equal(t, StateArmed, h.tc.State)
	assert.Equal(t, 3, h.data.priorCalls, "prior close is fetched once it succeeds")
}

func TestTradeLimitLocks(t *testing.T) {
	h := newHarness(1)
	h.tick(t)

	h.data.latest = 94.9
	h.tick(t)
	h.data.latest = 97.1
	h.tick(t)

	assert.Equal(t, StateLocked, h.tc.State)

	// A fresh signal on the same day is ignored
	h.data.latest = 94.9
	h.tick(t)
	assert.Equal(t, StateLocked, h.tc.State)
	assert.Len(t, h.broker.entries, 1)
}

func TestEndOfDayFlattenLocks(t *testing.T) {
	h := newHarness(5)
	h.tick(t)
	h.data.latest = 94.9
	h.tick(t)
	require.Equal(t, StateInTrade, h.tc.State)

	h.cal.secsClose = 200
	h.data.latest = 95.2
	h.tick(t)

	assert.Equal(t, StateLocked, h.tc.State)
	assert.False(t, h.tc.HasPosition())
	closed, ok := h.last(events.EventTradeClosed)
	require.True(t, ok)
	assert.Equal(t, string(strategy.ExitEndOfDay), closed.Data["reason"])

	// Locked persists through signals and the close
	h.cal.secsClose = 3 * 3600
	h.data.latest = 94.9
	h.tick(t)
	assert.Equal(t, StateLocked, h.tc.State)

	h.cal.open = false
	h.tick(t)
	assert.Equal(t, StateLocked, h.tc.State)
	assert.Len(t, h.broker.entries, 1)
}

func TestEndOfDayExitFailureFallsBackToFlatten(t *testing.T) {
	h := newHarness(5)
	h.tick(t)
	h.data.latest = 94.9
	h.tick(t)

	h.broker.exitErr = errors.New("exchange halted")
	h.cal.secsClose = 60
	h.tick(t)

	assert.Equal(t, StateLocked, h.tc.State)
	assert.False(t, h.tc.HasPosition())
	assert.Equal(t, 1, h.broker.flattenCalls)
}

func TestEndOfDayWithoutPositionLocks(t *testing.T) {
	h := newHarness(5)
	h.tick(t)

	h.cal.secsClose = 100
	h.tick(t)

	assert.Equal(t, StateLocked, h.tc.State)
	assert.Empty(t, h.broker.exits)
	assert.Equal(t, 0, h.broker.flattenCalls)
}

func TestExitFailureRetriesNextCycle(t *testing.T) {
	h := newHarness(5)
	h.tick(t)
	h.data.latest = 94.9
	h.tick(t)

	h.broker.exitErr = errors.New("timeout")
	h.data.latest = 97.1
	h.tick(t)

	assert.Equal(t, StateInTrade, h.tc.State)
	assert.True(t, h.tc.HasPosition())

	h.broker.exitErr = nil
	h.tick(t)
	assert.Equal(t, StateArmed, h.tc.State)
	assert.Len(t, h.broker.exits, 2)
}

func TestInconsistentPositionRecovers(t *testing.T) {
	h := newHarness(5)
	h.tick(t)

	h.tc.State = StateInTrade
	h.tc.EntryPrice = 95
	h.tick(t)

	assert.Equal(t, StateArmed, h.tc.State)
	assert.Equal(t, 1, h.broker.flattenCalls)
	assert.Equal(t, 0.0, h.tc.EntryPrice)
}

func TestDayRolloverResets(t *testing.T) {
	h := newHarness(1)
	h.tick(t)
	h.data.latest = 94.9
	h.tick(t)
	h.data.latest = 97.1
	h.tick(t)
	require.Equal(t, StateLocked, h.tc.State)

	h.cal.day = "2024-03-14"
	h.data.prior = 97.3
	h.data.open = 97.3
	h.tick(t)

	// The new day resets to Idle and re-arms in the same cycle once fresh
	// gap data is in.
	assert.Equal(t, 0, h.risk.TradesToday())
	assert.Equal(t, "2024-03-14", h.tc.LastTradingDay)
	assert.Equal(t, 97.3, h.tc.PriorClose)
	assert.Equal(t, StateArmed, h.tc.State)
	assert.Equal(t, 2, h.count(events.EventNewTradingDay))
}

func TestMarketClosedForcesIdle(t *testing.T) {
	h := newHarness(5)
	h.tick(t)
	require.Equal(t, StateArmed, h.tc.State)

	h.cal.open = false
	h.cal.secsOpen = 3600
	h.tick(t)

	assert.Equal(t, StateIdle, h.tc.State)
}

func TestMarketClosedInTradeClearsPosition(t *testing.T) {
	h := newHarness(5)
	h.tick(t)
	h.data.latest = 94.9
	h.tick(t)
	require.Equal(t, StateInTrade, h.tc.State)

	h.cal.open = false
	h.cal.secsOpen = 3600
	h.tick(t)

	assert.Equal(t, StateIdle, h.tc.State)
	assert.False(t, h.tc.HasPosition())
	assert.Equal(t, strategy.DirectionNone, h.tc.Direction)
	assert.Equal(t, 0.0, h.tc.EntryPrice)
	assert.Equal(t, 0, h.tc.Quantity)
}

func TestStatusPublishedEveryCycle(t *testing.T) {
	h := newHarness(5)
	h.tick(t)
	h.tick(t)

	assert.Equal(t, 2, h.count(events.EventStatusUpdate))
	status, _ := h.last(events.EventStatusUpdate)
	assert.Equal(t, uint64(2), status.Data["cycle"])
	assert.Equal(t, "ARMED", status.Data["state"])
	assert.Equal(t, "SPY", status.Symbol())
}
