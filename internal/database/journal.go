package database

import (
	"context"
	"sync"
	"time"

	"gap-reversion-bot/internal/events"
	"gap-reversion-bot/internal/logging"
)

const (
	journalBuffer       = 256
	journalWriteTimeout = 5 * time.Second
)

// JournalWriter is the write side of Repository
type JournalWriter interface {
	InsertEvent(ctx context.Context, rec EventRecord) error
	InsertTrade(ctx context.Context, rec TradeRecord) error
}

// Journal persists every bus event on a single background writer.
// Writes are best effort: failures are logged and never reach the engine.
type Journal struct {
	writer JournalWriter
	dryRun bool
	logger *logging.Logger

	queue     chan events.Event
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewJournal starts the writer goroutine. Call Close to drain it.
func NewJournal(writer JournalWriter, dryRun bool) *Journal {
	j := &Journal{
		writer: writer,
		dryRun: dryRun,
		logger: logging.DatabaseContext("journal", "bot_events"),
		queue:  make(chan events.Event, journalBuffer),
		done:   make(chan struct{}),
	}
	go j.run()
	return j
}

// Attach subscribes the journal to every event on the bus
func (j *Journal) Attach(bus *events.EventBus) {
	bus.SubscribeAll(j.Record)
}

// Record enqueues an event without blocking the publisher
func (j *Journal) Record(e events.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	select {
	case j.queue <- e:
	default:
		j.dropped++
		j.logger.Warn("Journal queue full, dropping event", "event_type", string(e.Type), "dropped", j.dropped)
	}
}

// Dropped reports how many events were discarded because the queue was full
func (j *Journal) Dropped() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

// Close stops accepting events and waits for queued writes to finish
func (j *Journal) Close() {
	j.closeOnce.Do(func() {
		j.mu.Lock()
		j.closed = true
		close(j.queue)
		j.mu.Unlock()
		<-j.done
	})
}

func (j *Journal) run() {
	defer close(j.done)
	for e := range j.queue {
		j.write(e)
	}
}

func (j *Journal) write(e events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()

	rec, err := EventRecordFrom(e)
	if err != nil {
		j.logger.WithError(err).Warn("Failed to map event", "event_type", string(e.Type))
		return
	}
	if err := j.writer.InsertEvent(ctx, rec); err != nil {
		j.logger.WithError(err).Warn("Failed to journal event", "event_type", rec.EventType)
	}

	if e.Type != events.EventTradeClosed {
		return
	}
	trade, err := TradeRecordFrom(e, j.dryRun)
	if err != nil {
		j.logger.WithError(err).Warn("Failed to map closed trade")
		return
	}
	if err := j.writer.InsertTrade(ctx, trade); err != nil {
		logging.DatabaseContext("insert", "trades").WithError(err).Warn("Failed to journal trade", "symbol", trade.Symbol)
	}
}
