// Package calendar implements exchange trading-day and session-time arithmetic.
package calendar

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"
)

var (
	ErrNotTradingDay = errors.New("calendar: not a trading day")
	ErrInvalidDate   = errors.New("calendar: invalid trading date")
)

var (
	// Eastern is the exchange timezone; all session boundaries are expressed in it.
	Eastern = mustLoad("America/New_York")
	// Central is the timezone the CME futures data is stamped in.
	Central = mustLoad("America/Chicago")
)

const (
	regularOpen  = 9*time.Hour + 30*time.Minute
	regularClose = 16 * time.Hour
	earlyClose   = 13 * time.Hour
	dateLayout   = "2006-01-02"
)

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("calendar: load %s: %v", name, err))
	}
	return loc
}

// Option configures a Calendar.
type Option func(*Calendar)

// WithNearClose sets how long before the close the near-close window opens.
func WithNearClose(d time.Duration) Option {
	return func(c *Calendar) {
		c.nearClose = d
	}
}

// WithQuietWindow sets the midday quiet window as offsets from local midnight.
func WithQuietWindow(start, end time.Duration) Option {
	return func(c *Calendar) {
		c.quietStart = start
		c.quietEnd = end
	}
}

// WithLocation overrides the exchange timezone.
func WithLocation(loc *time.Location) Option {
	return func(c *Calendar) {
		c.loc = loc
	}
}

// Calendar answers trading-day and session questions. It is immutable and safe for concurrent use.
type Calendar struct {
	loc        *time.Location
	nearClose  time.Duration
	quietStart time.Duration
	quietEnd   time.Duration
}

// New creates a calendar for the US equity/index futures day session.
func New(opts ...Option) *Calendar {
	c := &Calendar{
		loc:        Eastern,
		nearClose:  10 * time.Minute,
		quietStart: 12 * time.Hour,
		quietEnd:   13 * time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Location returns the exchange timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Day truncates t to local midnight of its exchange date.
func (c *Calendar) Day(t time.Time) time.Time {
	y, m, d := t.In(c.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc)
}

// ParseDate parses a YYYY-MM-DD trading date in the exchange timezone.
func (c *Calendar) ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, s, c.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrInvalidDate, s, err)
	}
	return d, nil
}

// FormatDate renders the exchange date of t as YYYY-MM-DD.
func (c *Calendar) FormatDate(t time.Time) string {
	return t.In(c.loc).Format(dateLayout)
}

// IsTradingDay reports whether the exchange holds a session on d's date.
func (c *Calendar) IsTradingDay(d time.Time) bool {
	d = c.Day(d)
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	_, holiday := c.Holiday(d)
	return !holiday
}

// IsEarlyClose reports whether d is a trading day that closes at 13:00.
func (c *Calendar) IsEarlyClose(d time.Time) bool {
	d = c.Day(d)
	if !c.IsTradingDay(d) {
		return false
	}
	y, m, day := d.Date()
	tg := thanksgiving(y, c.loc)
	switch {
	case m == time.July && day == 3:
		return true
	case d.Equal(tg.AddDate(0, 0, -1)), d.Equal(tg.AddDate(0, 0, 1)):
		return true
	case m == time.December && day == 24:
		return true
	}
	return false
}

// NextTradingDay returns the first trading day strictly after d.
func (c *Calendar) NextTradingDay(d time.Time) time.Time {
	d = c.Day(d)
	for {
		d = d.AddDate(0, 0, 1)
		if c.IsTradingDay(d) {
			return d
		}
	}
}

// PrevTradingDay returns the last trading day strictly before d.
func (c *Calendar) PrevTradingDay(d time.Time) time.Time {
	d = c.Day(d)
	for {
		d = d.AddDate(0, 0, -1)
		if c.IsTradingDay(d) {
			return d
		}
	}
}

// TradingDaysBack walks n trading days back from d. n == 0 returns d's date.
func (c *Calendar) TradingDaysBack(d time.Time, n int) time.Time {
	d = c.Day(d)
	for i := 0; i < n; i++ {
		d = c.PrevTradingDay(d)
	}
	return d
}

// TradingDaysBetween lists trading days in [from, to].
func (c *Calendar) TradingDaysBetween(from, to time.Time) []time.Time {
	var days []time.Time
	for d := c.Day(from); !d.After(c.Day(to)); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			days = append(days, d)
		}
	}
	return days
}
