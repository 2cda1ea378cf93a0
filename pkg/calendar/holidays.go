package calendar

import (
	"sort"
	"time"
)

// Holiday is a full-day exchange closure.
type Holiday struct {
	Date time.Time
	Name string
}

// Holidays returns the full-day closures observed in year, in date order.
func (c *Calendar) Holidays(year int) []Holiday {
	day := func(m time.Month, d int) time.Time { return time.Date(year, m, d, 0, 0, 0, 0, c.loc) }

	hs := make([]Holiday, 0, 10)
	add := func(name string, d time.Time) {
		hs = append(hs, Holiday{Date: d, Name: name})
	}

	// A Saturday New Year's Day is not moved back into December.
	if ny := day(time.January, 1); ny.Weekday() != time.Saturday {
		add("New Year's Day", observed(ny))
	}
	add("Martin Luther King Jr. Day", nthWeekday(year, time.January, time.Monday, 3, c.loc))
	add("Presidents' Day", nthWeekday(year, time.February, time.Monday, 3, c.loc))
	add("Good Friday", easter(year, c.loc).AddDate(0, 0, -2))
	add("Memorial Day", lastWeekday(year, time.May, time.Monday, c.loc))
	if year >= 2022 {
		add("Juneteenth", observed(day(time.June, 19)))
	}
	add("Independence Day", observed(day(time.July, 4)))
	add("Labor Day", nthWeekday(year, time.September, time.Monday, 1, c.loc))
	add("Thanksgiving Day", thanksgiving(year, c.loc))
	add("Christmas Day", observed(day(time.December, 25)))

	sort.Slice(hs, func(i, j int) bool { return hs[i].Date.Before(hs[j].Date) })
	return hs
}

// Holiday reports whether d is a full-day closure and its name.
func (c *Calendar) Holiday(d time.Time) (string, bool) {
	d = c.Day(d)
	for _, h := range c.Holidays(d.Year()) {
		if h.Date.Equal(d) {
			return h.Name, true
		}
	}
	return "", false
}

// observed shifts a fixed-date holiday off the weekend: Saturday to Friday, Sunday to Monday.
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+7*(n-1))
}

func lastWeekday(year int, month time.Month, wd time.Weekday, loc *time.Location) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, loc)
	offset := (int(last.Weekday()) - int(wd) + 7) % 7
	return last.AddDate(0, 0, -offset)
}

func thanksgiving(year int, loc *time.Location) time.Time {
	return nthWeekday(year, time.November, time.Thursday, 4, loc)
}

// easter uses the anonymous Gregorian algorithm.
func easter(year int, loc *time.Location) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
}
