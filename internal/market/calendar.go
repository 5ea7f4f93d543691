package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gap-reversion-bot/internal/logging"
)

// Regular US equity session in exchange time.
const (
	OpenHour    = 9
	OpenMinute  = 30
	CloseHour   = 16
	CloseMinute = 0

	dayKeyLayout = "2006-01-02"
)

// Session is one trading day's regular session bounds.
type Session struct {
	Open  time.Time
	Close time.Time
}

// SessionSource supplies the official session for a calendar day. A false
// return with a nil error means the exchange is closed that day.
type SessionSource interface {
	SessionFor(ctx context.Context, day time.Time) (Session, bool, error)
}

type sessionEntry struct {
	session Session
	open    bool
}

// Calendar answers market-hours questions for a given clock. Without a
// SessionSource it applies regular weekday hours; with one, holidays and
// half-days come from the source and are cached per day.
type Calendar struct {
	loc     *time.Location
	source  SessionSource
	timeout time.Duration
	logger  *logging.Logger

	mu    sync.Mutex
	cache map[string]sessionEntry
}

// LoadNewYork returns the exchange time zone.
func LoadNewYork() (*time.Location, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("failed to load exchange time zone: %w", err)
	}
	return loc, nil
}

// NewCalendar creates a calendar in the given location. source may be nil.
func NewCalendar(loc *time.Location, source SessionSource) *Calendar {
	return &Calendar{
		loc:     loc,
		source:  source,
		timeout: 5 * time.Second,
		logger:  logging.WithComponent("calendar"),
		cache:   make(map[string]sessionEntry),
	}
}

// Location returns the calendar's time zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// TradingDay returns the exchange-local date key for now.
func (c *Calendar) TradingDay(now time.Time) string {
	return now.In(c.loc).Format(dayKeyLayout)
}

// IsMarketOpen reports whether now falls inside today's regular session.
func (c *Calendar) IsMarketOpen(now time.Time) bool {
	s, ok := c.sessionOn(now)
	if !ok {
		return false
	}
	return !now.Before(s.Open) && now.Before(s.Close)
}

// IsWithinEntryWindow reports whether now is in [open, open+windowMinutes).
func (c *Calendar) IsWithinEntryWindow(now time.Time, windowMinutes int) bool {
	s, ok := c.sessionOn(now)
	if !ok {
		return false
	}
	end := s.Open.Add(time.Duration(windowMinutes) * time.Minute)
	return !now.Before(s.Open) && now.Before(end)
}

// SecondsUntilClose is negative once today's close has passed.
func (c *Calendar) SecondsUntilClose(now time.Time) float64 {
	s, ok := c.sessionOn(now)
	if !ok {
		s = regularSession(now.In(c.loc))
	}
	return s.Close.Sub(now).Seconds()
}

// SecondsUntilOpen returns the time until the next session open, skipping
// weekends and (with a source) holidays.
func (c *Calendar) SecondsUntilOpen(now time.Time) float64 {
	local := now.In(c.loc)
	for i := 0; i < 10; i++ {
		day := local.AddDate(0, 0, i)
		s, ok := c.sessionOn(day)
		if ok && now.Before(s.Open) {
			return s.Open.Sub(now).Seconds()
		}
	}
	return 0
}

func (c *Calendar) sessionOn(t time.Time) (Session, bool) {
	local := t.In(c.loc)
	key := local.Format(dayKeyLayout)

	c.mu.Lock()
	entry, cached := c.cache[key]
	c.mu.Unlock()
	if cached {
		return entry.session, entry.open
	}

	if c.source == nil {
		return regularSession(local), isWeekday(local)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	s, open, err := c.source.SessionFor(ctx, local)
	if err != nil {
		c.logger.Warn("Session lookup failed, using regular hours", "day", key, "error", err)
		return regularSession(local), isWeekday(local)
	}

	c.mu.Lock()
	c.cache[key] = sessionEntry{session: s, open: open}
	c.mu.Unlock()

	return s, open
}

func regularSession(local time.Time) Session {
	y, m, d := local.Date()
	return Session{
		Open:  time.Date(y, m, d, OpenHour, OpenMinute, 0, 0, local.Location()),
		Close: time.Date(y, m, d, CloseHour, CloseMinute, 0, 0, local.Location()),
	}
}

func isWeekday(local time.Time) bool {
	wd := local.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}
