package notification

import (
	"context"
	"fmt"
	"time"

	"gap-reversion-bot/internal/events"
	"gap-reversion-bot/internal/logging"
)

const sendTimeout = 10 * time.Second

// NotificationType represents the type of notification
type NotificationType string

const (
	NotifyTradeOpen  NotificationType = "trade_open"
	NotifyTradeClose NotificationType = "trade_close"
	NotifyError      NotificationType = "error"
)

// Notification represents a notification message
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Symbol    string
	Price     float64
	PnL       float64
	Timestamp time.Time
}

// Notifier interface for different notification providers
type Notifier interface {
	Send(ctx context.Context, notification *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager fans notifications out to every enabled provider
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new notification manager
func NewManager(notifiers ...Notifier) *Manager {
	m := &Manager{}
	for _, n := range notifiers {
		m.AddNotifier(n)
	}
	return m
}

// AddNotifier adds a notification provider. Disabled providers are dropped.
func (m *Manager) AddNotifier(n Notifier) {
	if n == nil || !n.IsEnabled() {
		return
	}
	m.notifiers = append(m.notifiers, n)
}

// Enabled reports whether at least one provider will receive messages
func (m *Manager) Enabled() bool {
	return len(m.notifiers) > 0
}

// Send sends a notification to all providers, returning the last error
func (m *Manager) Send(ctx context.Context, notification *Notification) error {
	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, notification); err != nil {
			logging.NotificationContext(n.Name()).WithError(err).Warn("Notification failed", "type", string(notification.Type))
			lastErr = err
		}
	}
	return lastErr
}

// Attach subscribes the manager to trade and error events
func (m *Manager) Attach(bus *events.EventBus) {
	if !m.Enabled() {
		return
	}
	handler := func(e events.Event) {
		n := FromEvent(e)
		if n == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		m.Send(ctx, n)
	}
	bus.Subscribe(events.EventTradeOpened, handler)
	bus.Subscribe(events.EventTradeClosed, handler)
	bus.Subscribe(events.EventError, handler)
}

// FromEvent renders a bus event as a notification, or nil if the event
// is not one operators are paged for
func FromEvent(e events.Event) *Notification {
	symbol := e.Symbol()
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	switch e.Type {
	case events.EventTradeOpened:
		direction, _ := e.Data["direction"].(string)
		price := floatOf(e.Data["entry_price"])
		return &Notification{
			Type:      NotifyTradeOpen,
			Title:     fmt.Sprintf("Trade Opened: %s", symbol),
			Message:   fmt.Sprintf("%s %v %s @ %.2f\nGap: %.2f%%", direction, e.Data["qty"], symbol, price, floatOf(e.Data["gap_pct"])*100),
			Symbol:    symbol,
			Price:     price,
			Timestamp: ts,
		}

	case events.EventTradeClosed:
		direction, _ := e.Data["direction"].(string)
		reason, _ := e.Data["reason"].(string)
		entry := floatOf(e.Data["entry_price"])
		exit := floatOf(e.Data["exit_price"])
		pnl := floatOf(e.Data["pnl"])
		return &Notification{
			Type:      NotifyTradeClose,
			Title:     fmt.Sprintf("Trade Closed: %s", symbol),
			Message:   fmt.Sprintf("%s %s\nEntry: %.2f -> Exit: %.2f\nP&L: %.2f\nReason: %s", direction, symbol, entry, exit, pnl, reason),
			Symbol:    symbol,
			Price:     exit,
			PnL:       pnl,
			Timestamp: ts,
		}

	case events.EventError:
		source, _ := e.Data["source"].(string)
		message, _ := e.Data["message"].(string)
		if errText, ok := e.Data["error"].(string); ok && errText != "" {
			message = fmt.Sprintf("%s: %s", message, errText)
		}
		return &Notification{
			Type:      NotifyError,
			Title:     fmt.Sprintf("Error in %s", source),
			Message:   message,
			Timestamp: ts,
		}
	}
	return nil
}

func floatOf(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}
