package market

import (
	"errors"
	"time"
)

// ErrNoData is returned by data collaborators when a request succeeded but
// the feed had nothing to return for it.
var ErrNoData = errors.New("no market data")

// Bar is a single OHLCV sample. VWAP is zero when the feed did not supply a
// per-bar volume-weighted price.
type Bar struct {
	Time   time.Time `json:"t"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume float64   `json:"v"`
	VWAP   float64   `json:"vw"`
}

// TypicalPrice returns (high+low+close)/3
func (b Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3
}

// Last returns the newest bar of a window ordered oldest to newest.
func Last(window []Bar) (Bar, bool) {
	if len(window) == 0 {
		return Bar{}, false
	}
	return window[len(window)-1], true
}
