package strategy

import (
	"math"

	"gap-reversion-bot/internal/market"
)

// ============================================================================
// GAP
// ============================================================================

// GapPercent returns the session gap as a fraction of the prior close.
// A non-positive prior close yields 0.
func GapPercent(priorClose, sessionOpen float64) float64 {
	if priorClose <= 0 {
		return 0
	}
	return (sessionOpen - priorClose) / priorClose
}

// ============================================================================
// VOLATILITY BANDS
// ============================================================================

// Bands holds rolling mean +/- mult*std of close
type Bands struct {
	Mean  float64
	Std   float64
	Upper float64
	Lower float64
}

// CalculateBands computes bands over the last lookback closes using the
// sample standard deviation. ok is false when there are fewer than lookback
// bars or the result is not finite.
func CalculateBands(window []market.Bar, lookback int, mult float64) (Bands, bool) {
	if lookback <= 0 || len(window) < lookback {
		return Bands{}, false
	}

	startIdx := len(window) - lookback

	sum := 0.0
	for i := startIdx; i < len(window); i++ {
		sum += window[i].Close
	}
	mean := sum / float64(lookback)

	if lookback < 2 {
		return Bands{}, false
	}

	variance := 0.0
	for i := startIdx; i < len(window); i++ {
		diff := window[i].Close - mean
		variance += diff * diff
	}
	std := math.Sqrt(variance / float64(lookback-1))

	if !isFinite(mean) || !isFinite(std) {
		return Bands{}, false
	}

	return Bands{
		Mean:  mean,
		Std:   std,
		Upper: mean + mult*std,
		Lower: mean - mult*std,
	}, true
}

// ============================================================================
// VWAP
// ============================================================================

// CalculateVWAP returns the feed's VWAP on the latest bar when present,
// otherwise the cumulative typical-price VWAP over the whole window. ok is
// false for an empty window or zero cumulative volume.
func CalculateVWAP(window []market.Bar) (float64, bool) {
	last, ok := market.Last(window)
	if !ok {
		return 0, false
	}
	if last.VWAP > 0 && isFinite(last.VWAP) {
		return last.VWAP, true
	}

	pv := 0.0
	volume := 0.0
	for _, b := range window {
		pv += b.TypicalPrice() * b.Volume
		volume += b.Volume
	}

	if volume == 0 {
		return 0, false
	}

	vwap := pv / volume
	if !isFinite(vwap) {
		return 0, false
	}
	return vwap, true
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
