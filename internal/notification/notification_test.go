package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"gap-reversion-bot/internal/events"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []*Notification
	fail bool
}

func (r *recordingNotifier) Send(ctx context.Context, n *Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	if r.fail {
		return errors.New("provider down")
	}
	return nil
}

func (r *recordingNotifier) Name() string    { return "recording" }
func (r *recordingNotifier) IsEnabled() bool { return true }

func TestFromEvent(t *testing.T) {
	tests := []struct {
		name      string
		event     events.Event
		wantType  NotificationType
		wantInMsg string
	}{
		{
			name: "trade opened",
			event: events.Event{Type: events.EventTradeOpened, Data: map[string]interface{}{
				"symbol": "SPY", "direction": "LONG", "entry_price": 99.5, "qty": 10, "gap_pct": -0.01,
			}},
			wantType:  NotifyTradeOpen,
			wantInMsg: "LONG 10 SPY @ 99.50",
		},
		{
			name: "trade closed",
			event: events.Event{Type: events.EventTradeClosed, Data: map[string]interface{}{
				"symbol": "SPY", "direction": "SHORT", "reason": "STOP_LOSS", "entry_price": 101.0, "exit_price": 102.0, "qty": 10, "pnl": -10.0,
			}},
			wantType:  NotifyTradeClose,
			wantInMsg: "Reason: STOP_LOSS",
		},
		{
			name: "error",
			event: events.Event{Type: events.EventError, Data: map[string]interface{}{
				"source": "runner", "message": "cycle failed", "error": "timeout",
			}},
			wantType:  NotifyError,
			wantInMsg: "cycle failed: timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := FromEvent(tt.event)
			if n == nil {
				t.Fatal("Expected notification, got nil")
			}
			if n.Type != tt.wantType {
				t.Errorf("Expected type %s, got %s", tt.wantType, n.Type)
			}
			if !strings.Contains(n.Message, tt.wantInMsg) {
				t.Errorf("Expected message to contain %q, got %q", tt.wantInMsg, n.Message)
			}
		})
	}

	if n := FromEvent(events.Event{Type: events.EventStatusUpdate}); n != nil {
		t.Errorf("Expected nil for status update, got %+v", n)
	}
}

func TestManagerAttach(t *testing.T) {
	rec := &recordingNotifier{fail: true}
	m := NewManager(rec, NewTelegramNotifier(TelegramConfig{Enabled: false}))
	if !m.Enabled() {
		t.Fatal("Expected manager to be enabled")
	}

	bus := events.NewSyncEventBus()
	m.Attach(bus)

	bus.PublishStateChanged("SPY", "IDLE", "ARMED")
	bus.PublishTradeClosed("SPY", "LONG", "MEAN_REVERSION", 99, 100, 10, 10, time.Now())
	bus.PublishError("engine", "equity unavailable", nil)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.sent) != 2 {
		t.Fatalf("Expected 2 notifications, got %d", len(rec.sent))
	}
	if rec.sent[0].PnL != 10 {
		t.Errorf("Expected pnl 10, got %f", rec.sent[0].PnL)
	}
}

func TestManagerWithoutProviders(t *testing.T) {
	m := NewManager(NewDiscordNotifier(DiscordConfig{Enabled: true}))
	if m.Enabled() {
		t.Error("Expected manager without a webhook URL to be disabled")
	}
}

func TestTelegramSend(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegramNotifier(TelegramConfig{BotToken: "TOKEN", ChatID: "42", Enabled: true, APIBase: srv.URL})
	err := tg.Send(context.Background(), &Notification{Title: "Trade Closed: SPY", Message: "P&L: 1.00"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if body["chat_id"] != "42" {
		t.Errorf("Expected chat_id 42, got %v", body["chat_id"])
	}
	if !strings.Contains(body["text"].(string), "Trade Closed: SPY") {
		t.Errorf("Expected title in text, got %v", body["text"])
	}
}

func TestDiscordSend(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		pnl       float64
		wantColor float64
		wantErr   bool
	}{
		{"winning trade", http.StatusNoContent, 5, 0x00FF00, false},
		{"losing trade", http.StatusNoContent, -5, 0xFF0000, false},
		{"webhook rejects", http.StatusBadRequest, 5, 0x00FF00, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var payload struct {
				Embeds []map[string]interface{} `json:"embeds"`
			}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewDecoder(r.Body).Decode(&payload)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			d := NewDiscordNotifier(DiscordConfig{WebhookURL: srv.URL, Enabled: true})
			err := d.Send(context.Background(), &Notification{
				Type:      NotifyTradeClose,
				Title:     "Trade Closed: SPY",
				Symbol:    "SPY",
				Price:     100,
				PnL:       tt.pnl,
				Timestamp: time.Now(),
			})

			if tt.wantErr != (err != nil) {
				t.Fatalf("Expected error=%v, got %v", tt.wantErr, err)
			}
			if len(payload.Embeds) != 1 {
				t.Fatalf("Expected 1 embed, got %d", len(payload.Embeds))
			}
			if payload.Embeds[0]["color"] != tt.wantColor {
				t.Errorf("Expected color %v, got %v", tt.wantColor, payload.Embeds[0]["color"])
			}
		})
	}
}
