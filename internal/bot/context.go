package bot

import (
	"time"

	"gap-reversion-bot/internal/strategy"
)

// State of the per-day trading state machine
type State string

const (
	StateIdle    State = "IDLE"
	StateArmed   State = "ARMED"
	StateInTrade State = "IN_TRADE"
	StateLocked  State = "LOCKED"
)

func (s State) String() string {
	return string(s)
}

// Ordinal maps the state to 0..3 for the state gauge
func (s State) Ordinal() int {
	switch s {
	case StateArmed:
		return 1
	case StateInTrade:
		return 2
	case StateLocked:
		return 3
	default:
		return 0
	}
}

// TradingContext is the engine's mutable per-day state. It is owned by a
// single Runner and must not be shared across goroutines.
type TradingContext struct {
	State State

	// Position fields are either all set or all clear.
	EntryPrice float64
	Direction  strategy.Direction
	Quantity   int
	EntryTime  time.Time

	// Gap reference prices, fetched once per trading day. Zero means unset.
	PriorClose  float64
	SessionOpen float64

	LastTradingDay string

	Cycle     uint64
	LastCycle time.Time
}

// NewTradingContext returns an Idle context with nothing cached
func NewTradingContext() *TradingContext {
	return &TradingContext{State: StateIdle}
}

// HasPosition reports whether all position fields are set
func (tc *TradingContext) HasPosition() bool {
	return tc.EntryPrice > 0 && tc.Direction.Valid() && tc.Quantity > 0
}

func (tc *TradingContext) clearPosition() {
	tc.EntryPrice = 0
	tc.Direction = strategy.DirectionNone
	tc.Quantity = 0
	tc.EntryTime = time.Time{}
}

func (tc *TradingContext) setPosition(dir strategy.Direction, entryPrice float64, qty int, at time.Time) {
	tc.Direction = dir
	tc.EntryPrice = entryPrice
	tc.Quantity = qty
	tc.EntryTime = at
}

// resetDay clears everything scoped to a trading day. State is left to the
// caller so the transition gets logged.
func (tc *TradingContext) resetDay(day string) {
	tc.LastTradingDay = day
	tc.PriorClose = 0
	tc.SessionOpen = 0
	tc.clearPosition()
}

// SignedQuantity is positive for long and negative for short
func (tc *TradingContext) SignedQuantity() int {
	if tc.Direction == strategy.Short {
		return -tc.Quantity
	}
	return tc.Quantity
}

// Snapshot is a read-only copy of the context for status reporting
type Snapshot struct {
	State       string    `json:"state"`
	TradingDay  string    `json:"trading_day"`
	Direction   string    `json:"direction"`
	EntryPrice  float64   `json:"entry_price"`
	Quantity    int       `json:"quantity"`
	EntryTime   time.Time `json:"entry_time,omitempty"`
	PriorClose  float64   `json:"prior_close"`
	SessionOpen float64   `json:"session_open"`
	GapPct      float64   `json:"gap_pct"`
	Cycle       uint64    `json:"cycle"`
	LastCycle   time.Time `json:"last_cycle"`
}

// Snapshot copies the context
func (tc *TradingContext) Snapshot() Snapshot {
	return Snapshot{
		State:       tc.State.String(),
		TradingDay:  tc.LastTradingDay,
		Direction:   tc.Direction.String(),
		EntryPrice:  tc.EntryPrice,
		Quantity:    tc.Quantity,
		EntryTime:   tc.EntryTime,
		PriorClose:  tc.PriorClose,
		SessionOpen: tc.SessionOpen,
		GapPct:      strategy.GapPercent(tc.PriorClose, tc.SessionOpen),
		Cycle:       tc.Cycle,
		LastCycle:   tc.LastCycle,
	}
}

// ToMap flattens the snapshot for event payloads
func (s Snapshot) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"state":        s.State,
		"trading_day":  s.TradingDay,
		"direction":    s.Direction,
		"entry_price":  s.EntryPrice,
		"quantity":     s.Quantity,
		"entry_time":   s.EntryTime,
		"prior_close":  s.PriorClose,
		"session_open": s.SessionOpen,
		"gap_pct":      s.GapPct,
		"cycle":        s.Cycle,
		"last_cycle":   s.LastCycle,
	}
}
