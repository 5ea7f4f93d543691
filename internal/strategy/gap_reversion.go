package strategy

import (
	"math"

	"gap-reversion-bot/internal/market"
)

// EvaluateEntry fades an opening gap once price stretches to the far band:
// a gap down that touches the lower band goes long, a gap up that touches
// the upper band goes short. The gap sign gates the direction so at most
// one branch can fire.
func EvaluateEntry(cfg Config, window []market.Bar, latestPrice, priorClose, sessionOpen float64) (EntrySignal, bool) {
	gap := GapPercent(priorClose, sessionOpen)
	if math.Abs(gap) < cfg.GapThreshold {
		return EntrySignal{}, false
	}

	bands, ok := CalculateBands(window, cfg.BandLookback, cfg.BandMult)
	if !ok {
		return EntrySignal{}, false
	}

	switch {
	case gap < 0 && latestPrice <= bands.Lower:
		return EntrySignal{
			Direction: Long,
			Price:     latestPrice,
			GapPct:    gap,
			BandValue: bands.Lower,
		}, true
	case gap > 0 && latestPrice >= bands.Upper:
		return EntrySignal{
			Direction: Short,
			Price:     latestPrice,
			GapPct:    gap,
			BandValue: bands.Upper,
		}, true
	}

	return EntrySignal{}, false
}

// EvaluateExit checks exit rules in priority order: forced end of day,
// stop loss, mean reversion, then VWAP reversion when enabled. The first
// rule that matches wins.
func EvaluateExit(cfg Config, window []market.Bar, latestPrice, entryPrice float64, dir Direction, forceEndOfDay bool) (ExitSignal, bool) {
	if forceEndOfDay {
		return ExitSignal{Reason: ExitEndOfDay, Price: latestPrice}, true
	}

	if !dir.Valid() {
		return ExitSignal{}, false
	}

	// Stop loss
	switch dir {
	case Long:
		if latestPrice <= entryPrice*(1-cfg.StopPct) {
			return ExitSignal{Reason: ExitStopLoss, Price: latestPrice}, true
		}
	case Short:
		if latestPrice >= entryPrice*(1+cfg.StopPct) {
			return ExitSignal{Reason: ExitStopLoss, Price: latestPrice}, true
		}
	}

	// Mean reversion
	if bands, ok := CalculateBands(window, cfg.BandLookback, cfg.BandMult); ok {
		if crossed(dir, latestPrice, bands.Mean) {
			return ExitSignal{Reason: ExitMeanReversion, Price: latestPrice}, true
		}
	}

	// VWAP reversion
	if cfg.UseVWAPExit {
		if vwap, ok := CalculateVWAP(window); ok && crossed(dir, latestPrice, vwap) {
			return ExitSignal{Reason: ExitVWAPReversion, Price: latestPrice}, true
		}
	}

	return ExitSignal{}, false
}

// crossed reports whether price has reverted to target from the side the
// position was opened on.
func crossed(dir Direction, price, target float64) bool {
	if dir == Long {
		return price >= target
	}
	return price <= target
}
