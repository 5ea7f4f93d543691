package api

import (
	"sync"

	"gap-reversion-bot/internal/events"
)

// DefaultEventHistory is how many recent events /api/events can return
const DefaultEventHistory = 200

// StatusStore keeps the newest engine snapshot and a ring of recent
// events. It is fed from the bus and read by HTTP handlers.
type StatusStore struct {
	mu     sync.RWMutex
	status map[string]interface{}
	cycle  uint64
	ring   []events.Event
	next   int
	full   bool
}

// NewStatusStore creates a store remembering up to history events
func NewStatusStore(history int) *StatusStore {
	if history <= 0 {
		history = DefaultEventHistory
	}
	return &StatusStore{
		ring: make([]events.Event, history),
	}
}

// Attach subscribes the store to the bus
func (s *StatusStore) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventStatusUpdate, s.UpdateStatus)
	bus.SubscribeAll(s.Record)
}

// UpdateStatus stores a STATUS_UPDATE payload. Async delivery can reorder
// updates, so an older cycle never replaces a newer one.
func (s *StatusStore) UpdateStatus(e events.Event) {
	cycle := cycleOf(e.Data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != nil && cycle < s.cycle {
		return
	}
	copied := make(map[string]interface{}, len(e.Data)+1)
	for k, v := range e.Data {
		copied[k] = v
	}
	copied["updated_at"] = e.Timestamp
	s.status = copied
	s.cycle = cycle
}

// Status returns a copy of the latest snapshot, or nil before the first cycle
func (s *StatusStore) Status() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.status == nil {
		return nil
	}
	copied := make(map[string]interface{}, len(s.status))
	for k, v := range s.status {
		copied[k] = v
	}
	return copied
}

// Record appends an event to the ring. Status updates are skipped since
// they would crowd out everything else.
func (s *StatusStore) Record(e events.Event) {
	if e.Type == events.EventStatusUpdate {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ring[s.next] = e
	s.next = (s.next + 1) % len(s.ring)
	if s.next == 0 {
		s.full = true
	}
}

// Events returns up to limit recent events, oldest first
func (s *StatusStore) Events(limit int) []events.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ordered []events.Event
	if s.full {
		ordered = append(ordered, s.ring[s.next:]...)
	}
	ordered = append(ordered, s.ring[:s.next]...)

	if limit > 0 && len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}
	return ordered
}

func cycleOf(data map[string]interface{}) uint64 {
	switch v := data["cycle"].(type) {
	case uint64:
		return v
	case int:
		if v > 0 {
			return uint64(v)
		}
	case float64:
		if v > 0 {
			return uint64(v)
		}
	}
	return 0
}
