package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventBotStarted         EventType = "BOT_STARTED"
	EventBotStopped         EventType = "BOT_STOPPED"
	EventNewTradingDay      EventType = "NEW_TRADING_DAY"
	EventStateChanged       EventType = "STATE_CHANGED"
	EventSignalGenerated    EventType = "SIGNAL_GENERATED"
	EventOrderPlaced        EventType = "ORDER_PLACED"
	EventOrderFailed        EventType = "ORDER_FAILED"
	EventTradeOpened        EventType = "TRADE_OPENED"
	EventTradeClosed        EventType = "TRADE_CLOSED"
	EventPositionsFlattened EventType = "POSITIONS_FLATTENED"
	EventStatusUpdate       EventType = "STATUS_UPDATE"
	EventError              EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Symbol returns the event's symbol field, or "" when it has none.
func (e Event) Symbol() string {
	if s, ok := e.Data["symbol"].(string); ok {
		return s
	}
	return ""
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
	sync        bool
}

// NewEventBus creates a new event bus. Each subscriber runs in its own
// goroutine so slow consumers never block the publisher.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// NewSyncEventBus creates a bus that calls subscribers inline, in
// subscription order.
func NewSyncEventBus() *EventBus {
	eb := NewEventBus()
	eb.sync = true
	return eb
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, sub := range eb.subscribers[event.Type] {
		eb.deliver(sub, event)
	}
	for _, sub := range eb.allSubs {
		eb.deliver(sub, event)
	}
}

func (eb *EventBus) deliver(sub Subscriber, event Event) {
	if eb.sync {
		sub(event)
		return
	}
	go sub(event)
}

// PublishBotStarted publishes a bot started event
func (eb *EventBus) PublishBotStarted(symbol string, dryRun bool) {
	eb.Publish(Event{
		Type: EventBotStarted,
		Data: map[string]interface{}{
			"symbol":  symbol,
			"dry_run": dryRun,
		},
	})
}

// PublishBotStopped publishes a bot stopped event
func (eb *EventBus) PublishBotStopped(symbol string) {
	eb.Publish(Event{
		Type: EventBotStopped,
		Data: map[string]interface{}{
			"symbol": symbol,
		},
	})
}

// PublishNewTradingDay publishes a day rollover
func (eb *EventBus) PublishNewTradingDay(symbol, day string) {
	eb.Publish(Event{
		Type: EventNewTradingDay,
		Data: map[string]interface{}{
			"symbol": symbol,
			"day":    day,
		},
	})
}

// PublishStateChanged publishes a state machine transition
func (eb *EventBus) PublishStateChanged(symbol, from, to string) {
	eb.Publish(Event{
		Type: EventStateChanged,
		Data: map[string]interface{}{
			"symbol": symbol,
			"from":   from,
			"to":     to,
		},
	})
}

// PublishSignal publishes a signal generated event
func (eb *EventBus) PublishSignal(symbol, signal string, price float64, extra map[string]interface{}) {
	data := map[string]interface{}{
		"symbol": symbol,
		"signal": signal,
		"price":  price,
	}
	for k, v := range extra {
		data[k] = v
	}
	eb.Publish(Event{
		Type: EventSignalGenerated,
		Data: data,
	})
}

// PublishOrderPlaced publishes an order placed event
func (eb *EventBus) PublishOrderPlaced(orderID, symbol, intent, side string, qty int, price float64, dryRun bool) {
	eb.Publish(Event{
		Type: EventOrderPlaced,
		Data: map[string]interface{}{
			"order_id": orderID,
			"symbol":   symbol,
			"intent":   intent,
			"side":     side,
			"qty":      qty,
			"price":    price,
			"dry_run":  dryRun,
		},
	})
}

// PublishOrderFailed publishes an order submission failure
func (eb *EventBus) PublishOrderFailed(symbol, intent, side string, qty int, err error) {
	data := map[string]interface{}{
		"symbol": symbol,
		"intent": intent,
		"side":   side,
		"qty":    qty,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventOrderFailed,
		Data: data,
	})
}

// PublishTradeOpened publishes a trade opened event
func (eb *EventBus) PublishTradeOpened(symbol, direction string, entryPrice float64, qty int, gapPct float64) {
	eb.Publish(Event{
		Type: EventTradeOpened,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"direction":   direction,
			"entry_price": entryPrice,
			"qty":         qty,
			"gap_pct":     gapPct,
		},
	})
}

// PublishTradeClosed publishes a trade closed event
func (eb *EventBus) PublishTradeClosed(symbol, direction, reason string, entryPrice, exitPrice float64, qty int, pnl float64, openedAt time.Time) {
	eb.Publish(Event{
		Type: EventTradeClosed,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"direction":   direction,
			"reason":      reason,
			"entry_price": entryPrice,
			"exit_price":  exitPrice,
			"qty":         qty,
			"pnl":         pnl,
			"opened_at":   openedAt,
		},
	})
}

// PublishFlattened publishes a flatten-all event
func (eb *EventBus) PublishFlattened(reason string, dryRun bool) {
	eb.Publish(Event{
		Type: EventPositionsFlattened,
		Data: map[string]interface{}{
			"reason":  reason,
			"dry_run": dryRun,
		},
	})
}

// PublishStatus publishes an engine status snapshot
func (eb *EventBus) PublishStatus(status map[string]interface{}) {
	eb.Publish(Event{
		Type: EventStatusUpdate,
		Data: status,
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
