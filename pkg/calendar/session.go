package calendar

import (
	"fmt"
	"time"
)

// Session holds the named boundaries of one trading day, all in the exchange timezone.
type Session struct {
	Date           time.Time
	Open           time.Time
	Close          time.Time
	NearCloseStart time.Time
	QuietStart     time.Time
	QuietEnd       time.Time
	// PreMarketStart is the previous trading day's close.
	PreMarketStart time.Time
	EarlyClose     bool
}

// Contains reports whether t lies in [Open, Close).
func (s Session) Contains(t time.Time) bool {
	return !t.Before(s.Open) && t.Before(s.Close)
}

// InNearClose reports whether t is at or after the start of the near-close window.
func (s Session) InNearClose(t time.Time) bool {
	return !t.Before(s.NearCloseStart)
}

// InQuietWindow reports whether t lies in [QuietStart, QuietEnd).
func (s Session) InQuietWindow(t time.Time) bool {
	return !t.Before(s.QuietStart) && t.Before(s.QuietEnd)
}

// MinutesFromOpen is the whole minutes elapsed since the open; negative before it.
func (s Session) MinutesFromOpen(t time.Time) int {
	return int(t.Sub(s.Open) / time.Minute)
}

// Session returns the boundaries for d's exchange date.
func (c *Calendar) Session(d time.Time) (Session, error) {
	day := c.Day(d)
	if !c.IsTradingDay(day) {
		return Session{}, fmt.Errorf("%s: %w", c.FormatDate(day), ErrNotTradingDay)
	}
	s := c.bounds(day)

	prev := c.PrevTradingDay(day)
	s.PreMarketStart = c.bounds(prev).Close
	return s, nil
}

func (c *Calendar) bounds(day time.Time) Session {
	at := func(off time.Duration) time.Time {
		// Adding hours to midnight crosses DST incorrectly; build the wall clock explicitly.
		y, m, d := day.Date()
		return time.Date(y, m, d, int(off/time.Hour), int(off%time.Hour/time.Minute), 0, 0, c.loc)
	}

	closeAt := regularClose
	early := c.IsEarlyClose(day)
	if early {
		closeAt = earlyClose
	}
	quietStart, quietEnd := c.quietStart, c.quietEnd
	if quietEnd > closeAt {
		quietEnd = closeAt
	}
	if quietStart > quietEnd {
		quietStart = quietEnd
	}

	return Session{
		Date:           day,
		Open:           at(regularOpen),
		Close:          at(closeAt),
		NearCloseStart: at(closeAt - c.nearClose),
		QuietStart:     at(quietStart),
		QuietEnd:       at(quietEnd),
		EarlyClose:     early,
	}
}

// IsOpen reports whether the regular session is in progress at t.
func (c *Calendar) IsOpen(t time.Time) bool {
	s, err := c.Session(t)
	return err == nil && s.Contains(t)
}

// InNearClose reports whether t falls in the near-close window of its trading day.
// Non-trading days have no near-close window.
func (c *Calendar) InNearClose(t time.Time) bool {
	s, err := c.Session(t)
	return err == nil && s.InNearClose(t.In(c.loc))
}

// InQuietWindow reports whether t falls in the midday quiet window of its trading day.
func (c *Calendar) InQuietWindow(t time.Time) bool {
	s, err := c.Session(t)
	return err == nil && s.InQuietWindow(t.In(c.loc))
}
