package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal      = prometheus.NewCounter(prometheus.CounterOpts{Name: "gapbot_cycles_total", Help: "Engine cycles executed"})
	CycleErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{Name: "gapbot_cycle_errors_total", Help: "Cycles that returned an error or panicked"})
	SignalsTotal     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "gapbot_signals_total", Help: "Entry and exit signals by kind"}, []string{"kind"})
	OrdersSubmitted  = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "gapbot_orders_submitted_total", Help: "Orders accepted by the broker or dry run"}, []string{"intent", "side"})
	OrdersFailed     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "gapbot_orders_failed_total", Help: "Order submissions that failed"}, []string{"intent"})
	State            = prometheus.NewGauge(prometheus.GaugeOpts{Name: "gapbot_state", Help: "0=idle, 1=armed, 2=in_trade, 3=locked"})
	TradesToday      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "gapbot_trades_today", Help: "Entries taken in the current trading day"})
	PositionQty      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "gapbot_position_qty", Help: "Signed share quantity held by the engine"})
)

func init() {
	prometheus.MustRegister(
		CyclesTotal, CycleErrorsTotal, SignalsTotal,
		OrdersSubmitted, OrdersFailed,
		State, TradesToday, PositionQty,
	)
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
