package risk

import (
	"math"
	"testing"
)

func newTestManager() *RiskManager {
	return NewRiskManager(&Config{
		MaxTradesPerDay: 3,
		RiskPct:         0.01,
		StopPct:         0.01,
	})
}

func TestComputeShares(t *testing.T) {
	rm := newTestManager()

	tests := []struct {
		name     string
		equity   float64
		price    float64
		expected int
	}{
		// risk 1000/(100*0.01)=1000 shares, cap 100000*0.1/100=100
		{"capped at 10% of equity", 100000, 100, 100},
		{"zero equity", 0, 100, 0},
		{"negative equity", -5000, 100, 0},
		{"zero price", 100000, 0, 0},
		{"price above cap", 1000, 500, 0},
		{"nan price", 100000, math.NaN(), 0},
		{"infinite equity", math.Inf(1), 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rm.ComputeShares(tt.equity, tt.price)
			if got != tt.expected {
				t.Errorf("Expected %d shares, got %d", tt.expected, got)
			}
		})
	}
}

func TestComputeSharesRiskBound(t *testing.T) {
	// Wide stop makes the risk-based size smaller than the cap.
	rm := NewRiskManager(&Config{MaxTradesPerDay: 1, RiskPct: 0.01, StopPct: 0.5})

	// risk 1000/(100*0.5)=20, cap 100
	if got := rm.ComputeShares(100000, 100); got != 20 {
		t.Errorf("Expected 20 shares, got %d", got)
	}
}

func TestComputeSharesZeroStop(t *testing.T) {
	rm := NewRiskManager(&Config{MaxTradesPerDay: 1, RiskPct: 0.01, StopPct: 0})
	if got := rm.ComputeShares(100000, 100); got != 0 {
		t.Errorf("Expected 0 shares with zero stop, got %d", got)
	}
}

func TestComputeSharesNeverExceedsCap(t *testing.T) {
	rm := newTestManager()

	for _, equity := range []float64{1, 999.99, 25000, 123456.78, 1e7, 1e25} {
		for _, price := range []float64{0.5, 1, 17.3, 99.99, 450, 3000} {
			got := rm.ComputeShares(equity, price)
			limit := math.Floor(equity * 0.10 / price)
			if got < 0 {
				t.Errorf("equity=%v price=%v: negative shares %d", equity, price, got)
			}
			if float64(got) > limit {
				t.Errorf("equity=%v price=%v: %d shares exceeds cap %v", equity, price, got, limit)
			}
		}
	}
}

func TestComputeSharesCapCannotBeRaised(t *testing.T) {
	tests := []struct {
		name   string
		capPct float64
	}{
		{"half of equity", 0.5},
		{"whole equity", 1},
		{"infinite", math.Inf(1)},
		{"nan", math.NaN()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := NewRiskManager(&Config{MaxTradesPerDay: 1, RiskPct: 0.5, StopPct: 0.01, MaxPositionPct: tt.capPct})

			// risk 50000/(100*0.01)=50000, hard cap 100000*0.1/100=100
			if got := rm.ComputeShares(100000, 100); got != 100 {
				t.Errorf("Expected 100 shares, got %d", got)
			}
		})
	}
}

func TestComputeSharesTighterCap(t *testing.T) {
	rm := NewRiskManager(&Config{MaxTradesPerDay: 1, RiskPct: 0.5, StopPct: 0.01, MaxPositionPct: 0.05})
	if got := rm.ComputeShares(100000, 100); got != 50 {
		t.Errorf("Expected 50 shares, got %d", got)
	}
}

func TestComputeSharesHugeEquity(t *testing.T) {
	rm := newTestManager()
	for _, equity := range []float64{1e25, math.MaxFloat64} {
		if got := rm.ComputeShares(equity, 1); got != 0 {
			t.Errorf("equity=%v: Expected 0 shares, got %d", equity, got)
		}
	}
}

func TestDailyCounter(t *testing.T) {
	rm := newTestManager()

	for i := 0; i < 3; i++ {
		if !rm.CanTrade() {
			t.Fatalf("Expected CanTrade before trade %d", i+1)
		}
		rm.RecordTrade()
	}

	if rm.CanTrade() {
		t.Error("Expected CanTrade to be false after hitting the daily cap")
	}
	if rm.TradesToday() != 3 {
		t.Errorf("Expected 3 trades today, got %d", rm.TradesToday())
	}

	rm.ResetDaily()
	rm.ResetDaily()

	if rm.TradesToday() != 0 {
		t.Errorf("Expected 0 trades after reset, got %d", rm.TradesToday())
	}
	if !rm.CanTrade() {
		t.Error("Expected CanTrade after reset")
	}
}

func TestCanTradeHasNoSideEffects(t *testing.T) {
	rm := newTestManager()
	for i := 0; i < 10; i++ {
		rm.CanTrade()
	}
	if rm.TradesToday() != 0 {
		t.Errorf("Expected CanTrade to leave the counter alone, got %d", rm.TradesToday())
	}
}

func TestRiskMetrics(t *testing.T) {
	rm := newTestManager()
	rm.RecordTrade()

	metrics := rm.GetRiskMetrics()
	if metrics["trades_today"] != 1 {
		t.Errorf("Expected trades_today 1, got %v", metrics["trades_today"])
	}
	if metrics["max_position_pct"] != DefaultMaxPositionPct {
		t.Errorf("Expected default max position pct, got %v", metrics["max_position_pct"])
	}
}
