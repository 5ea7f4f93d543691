package risk

import (
	"math"
	"sync"
)

// DefaultMaxPositionPct caps any position at 10% of equity. It is also the
// ceiling for a configured MaxPositionPct.
const DefaultMaxPositionPct = 0.10

// maxShares bounds a single order so the float to int conversion never wraps.
const maxShares = math.MaxInt32

// Config holds risk management configuration
type Config struct {
	MaxTradesPerDay int     // Entries allowed per trading day
	RiskPct         float64 // Fraction of equity risked per trade
	StopPct         float64 // Stop distance as a fraction of price
	MaxPositionPct  float64 // Position notional ceiling as a fraction of equity
}

// RiskManager counts the day's entries and sizes new positions
type RiskManager struct {
	config      *Config
	tradesToday int
	mu          sync.RWMutex
}

// NewRiskManager creates a new risk manager
func NewRiskManager(config *Config) *RiskManager {
	if config.MaxPositionPct <= 0 || config.MaxPositionPct > DefaultMaxPositionPct || !isFinite(config.MaxPositionPct) {
		config.MaxPositionPct = DefaultMaxPositionPct
	}
	return &RiskManager{config: config}
}

// ResetDaily zeroes the trade counter. Called once per new trading day.
func (rm *RiskManager) ResetDaily() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.tradesToday = 0
}

// CanTrade reports whether another entry is allowed today
func (rm *RiskManager) CanTrade() bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.tradesToday < rm.config.MaxTradesPerDay
}

// RecordTrade counts a completed entry. Only call after a confirmed fill.
func (rm *RiskManager) RecordTrade() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.tradesToday++
}

// TradesToday returns the number of entries recorded today
func (rm *RiskManager) TradesToday() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.tradesToday
}

// ComputeShares sizes a position so that a stop-out loses RiskPct of
// equity, capped at MaxPositionPct of equity in notional. Invalid inputs
// and sizes too large for one order yield 0.
func (rm *RiskManager) ComputeShares(equity, price float64) int {
	if equity <= 0 || price <= 0 || !isFinite(equity) || !isFinite(price) {
		return 0
	}

	riskAmount := equity * rm.config.RiskPct
	lossPerShare := price * rm.config.StopPct
	if lossPerShare <= 0 || !isFinite(lossPerShare) {
		return 0
	}

	rawShares := math.Floor(riskAmount / lossPerShare)
	capShares := math.Floor(equity * rm.config.MaxPositionPct / price)

	shares := math.Min(rawShares, capShares)
	if shares <= 0 || shares > maxShares || !isFinite(shares) {
		return 0
	}
	return int(shares)
}

// GetRiskMetrics returns current risk metrics
func (rm *RiskManager) GetRiskMetrics() map[string]interface{} {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	return map[string]interface{}{
		"trades_today":       rm.tradesToday,
		"max_trades_per_day": rm.config.MaxTradesPerDay,
		"risk_pct":           rm.config.RiskPct,
		"stop_pct":           rm.config.StopPct,
		"max_position_pct":   rm.config.MaxPositionPct,
		"can_trade":          rm.tradesToday < rm.config.MaxTradesPerDay,
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
