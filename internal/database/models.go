package database

import (
	"encoding/json"
	"fmt"
	"time"

	"gap-reversion-bot/internal/events"
)

// EventRecord is one row of bot_events
type EventRecord struct {
	EventType string
	Symbol    string
	Payload   []byte
	CreatedAt time.Time
}

// TradeRecord is one row of trades
type TradeRecord struct {
	Symbol     string
	Direction  string
	Quantity   int
	EntryPrice float64
	ExitPrice  float64
	ExitReason string
	PnL        float64
	DryRun     bool
	OpenedAt   *time.Time
	ClosedAt   time.Time
}

// EventRecordFrom maps a bus event to a bot_events row
func EventRecordFrom(e events.Event) (EventRecord, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return EventRecord{}, fmt.Errorf("failed to encode event payload: %w", err)
	}
	return EventRecord{
		EventType: string(e.Type),
		Symbol:    e.Symbol(),
		Payload:   payload,
		CreatedAt: e.Timestamp,
	}, nil
}

// TradeRecordFrom maps a TRADE_CLOSED event to a trades row
func TradeRecordFrom(e events.Event, dryRun bool) (TradeRecord, error) {
	if e.Type != events.EventTradeClosed {
		return TradeRecord{}, fmt.Errorf("event %s is not a closed trade", e.Type)
	}

	rec := TradeRecord{
		Symbol:     e.Symbol(),
		Direction:  stringField(e.Data, "direction"),
		Quantity:   intField(e.Data, "qty"),
		EntryPrice: floatField(e.Data, "entry_price"),
		ExitPrice:  floatField(e.Data, "exit_price"),
		ExitReason: stringField(e.Data, "reason"),
		PnL:        floatField(e.Data, "pnl"),
		DryRun:     dryRun,
		ClosedAt:   e.Timestamp,
	}
	if t, ok := e.Data["opened_at"].(time.Time); ok && !t.IsZero() {
		rec.OpenedAt = &t
	}
	if rec.Symbol == "" || rec.Quantity <= 0 {
		return TradeRecord{}, fmt.Errorf("closed trade event is missing symbol or quantity")
	}
	return rec, nil
}

func stringField(data map[string]interface{}, key string) string {
	s, _ := data[key].(string)
	return s
}

func floatField(data map[string]interface{}, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func intField(data map[string]interface{}, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
