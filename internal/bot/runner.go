package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gap-reversion-bot/internal/events"
	"gap-reversion-bot/internal/logging"
	"gap-reversion-bot/internal/metrics"
)

const shutdownFlattenTimeout = 30 * time.Second

// RunnerConfig holds the loop settings
type RunnerConfig struct {
	Symbol       string
	DryRun       bool
	PollInterval time.Duration
}

// Runner owns the trading context and runs engine cycles on a fixed
// cadence. Cycles never overlap.
type Runner struct {
	cfg      RunnerConfig
	engine   CycleEngine
	broker   Broker
	bus      *events.EventBus
	logger   *logging.Logger
	tc       *TradingContext
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
	flatOnce sync.Once
}

// NewRunner creates a runner. bus may be nil.
func NewRunner(cfg RunnerConfig, engine CycleEngine, broker Broker, bus *events.EventBus) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	return &Runner{
		cfg:      cfg,
		engine:   engine,
		broker:   broker,
		bus:      bus,
		logger:   logging.WithComponent("runner").WithField("symbol", cfg.Symbol),
		tc:       NewTradingContext(),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Run executes cycles until ctx is cancelled or Stop is called, then
// flattens all positions once and returns.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("Bot started", "event", "bot_start", "dry_run", r.cfg.DryRun, "poll_interval", r.cfg.PollInterval)
	r.bus.PublishBotStarted(r.cfg.Symbol, r.cfg.DryRun)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.runCycle(ctx)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-r.stopChan:
			break loop
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}

	r.shutdown()
	return nil
}

// Stop requests a graceful shutdown after the current cycle
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
}

// runCycle runs one Tick. Shutdown never interrupts a cycle midway, and a
// failing or panicking cycle is contained here.
func (r *Runner) runCycle(parent context.Context) {
	ctx, log := logging.WithTraceContext(context.WithoutCancel(parent), r.logger)
	metrics.CyclesTotal.Inc()

	defer func() {
		if rec := recover(); rec != nil {
			r.cycleFailed(log, fmt.Errorf("panic in cycle: %v", rec))
		}
	}()

	if err := r.engine.Tick(ctx, r.tc, r.now()); err != nil {
		r.cycleFailed(log, err)
	}
}

func (r *Runner) cycleFailed(log *logging.Logger, err error) {
	log.Error("Cycle failed", "event", "tick_error", "error", err)
	metrics.CycleErrorsTotal.Inc()
	r.bus.PublishError("runner", "cycle failed", err)
}

func (r *Runner) shutdown() {
	r.flatOnce.Do(func() {
		r.logger.Info("Shutting down, flattening positions", "event", "bot_shutdown")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownFlattenTimeout)
		defer cancel()

		if err := r.broker.FlattenAll(ctx, r.cfg.DryRun); err != nil {
			r.logger.Error("Flatten on shutdown failed", "event", "bot_shutdown", "error", err)
		}

		r.bus.PublishBotStopped(r.cfg.Symbol)
		r.logger.Info("Bot stopped", "event", "bot_stopped")
	})
}
