package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gap-reversion-bot/internal/events"
)

func statusEvent(cycle uint64, state string) events.Event {
	return events.Event{
		Type:      events.EventStatusUpdate,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"cycle": cycle, "state": state},
	}
}

func TestStatusStoreKeepsNewestCycle(t *testing.T) {
	s := NewStatusStore(10)
	assert.Nil(t, s.Status())

	s.UpdateStatus(statusEvent(2, "ARMED"))
	s.UpdateStatus(statusEvent(1, "IDLE"))

	status := s.Status()
	require.NotNil(t, status)
	assert.Equal(t, "ARMED", status["state"])

	s.UpdateStatus(statusEvent(3, "IN_TRADE"))
	assert.Equal(t, "IN_TRADE", s.Status()["state"])
}

func TestStatusStoreReturnsCopy(t *testing.T) {
	s := NewStatusStore(10)
	s.UpdateStatus(statusEvent(1, "IDLE"))

	status := s.Status()
	status["state"] = "LOCKED"
	assert.Equal(t, "IDLE", s.Status()["state"])
}

func TestStatusStoreEventRing(t *testing.T) {
	s := NewStatusStore(3)

	for _, day := range []string{"d1", "d2", "d3", "d4"} {
		s.Record(events.Event{Type: events.EventNewTradingDay, Data: map[string]interface{}{"day": day}})
	}
	s.Record(statusEvent(9, "IDLE"))

	got := s.Events(0)
	require.Len(t, got, 3)
	assert.Equal(t, "d2", got[0].Data["day"])
	assert.Equal(t, "d4", got[2].Data["day"])

	latest := s.Events(1)
	require.Len(t, latest, 1)
	assert.Equal(t, "d4", latest[0].Data["day"])
}

func TestStatusStoreAttach(t *testing.T) {
	bus := events.NewSyncEventBus()
	s := NewStatusStore(0)
	s.Attach(bus)

	bus.PublishBotStarted("SPY", true)
	bus.PublishStatus(map[string]interface{}{"cycle": uint64(1), "state": "IDLE"})

	assert.Len(t, s.Events(0), 1)
	assert.Equal(t, "IDLE", s.Status()["state"])
}
