package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, Eastern)
}

func TestIsTradingDay(t *testing.T) {
	cal := New()

	cases := []struct {
		name string
		date time.Time
		want bool
	}{
		{"regular thursday", day(2024, 3, 14), true},
		{"saturday", day(2024, 3, 16), false},
		{"sunday", day(2024, 3, 17), false},
		{"new year", day(2024, 1, 1), false},
		{"mlk", day(2024, 1, 15), false},
		{"presidents", day(2024, 2, 19), false},
		{"good friday", day(2024, 3, 29), false},
		{"good friday 2025", day(2025, 4, 18), false},
		{"memorial", day(2024, 5, 27), false},
		{"juneteenth", day(2024, 6, 19), false},
		{"juneteenth before 2022", day(2021, 6, 18), true},
		{"juneteenth observed monday", day(2022, 6, 20), false},
		{"independence", day(2024, 7, 4), false},
		{"independence saturday observed friday", day(2020, 7, 3), false},
		{"independence sunday observed monday", day(2021, 7, 5), false},
		{"labor", day(2024, 9, 2), false},
		{"thanksgiving", day(2024, 11, 28), false},
		{"christmas", day(2024, 12, 25), false},
		{"christmas sunday observed monday", day(2022, 12, 26), false},
		{"saturday new year not moved", day(2021, 12, 31), true},
		{"day after thanksgiving", day(2024, 11, 29), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, cal.IsTradingDay(tc.date))
		})
	}
}

func TestIsTradingDayAcceptsOtherZones(t *testing.T) {
	cal := New()
	// 2024-07-05 02:00 UTC is still July 4th in New York.
	assert.False(t, cal.IsTradingDay(time.Date(2024, 7, 5, 2, 0, 0, 0, time.UTC)))
	assert.True(t, cal.IsTradingDay(time.Date(2024, 7, 5, 14, 0, 0, 0, time.UTC)))
}

func TestIsEarlyClose(t *testing.T) {
	cal := New()

	assert.True(t, cal.IsEarlyClose(day(2024, 11, 27)), "weekday before thanksgiving")
	assert.True(t, cal.IsEarlyClose(day(2024, 11, 29)), "day after thanksgiving")
	assert.True(t, cal.IsEarlyClose(day(2024, 7, 3)))
	assert.True(t, cal.IsEarlyClose(day(2024, 12, 24)))
	assert.False(t, cal.IsEarlyClose(day(2024, 3, 14)))
	// July 3rd 2020 was the observed holiday, not a half day.
	assert.False(t, cal.IsEarlyClose(day(2020, 7, 3)))
	// Christmas Eve 2022 was a Saturday.
	assert.False(t, cal.IsEarlyClose(day(2022, 12, 24)))
}

func TestSessionBoundaries(t *testing.T) {
	cal := New()

	s, err := cal.Session(day(2024, 3, 14))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 14, 13, 30, 0, 0, time.UTC), s.Open.UTC())
	assert.Equal(t, time.Date(2024, 3, 14, 20, 0, 0, 0, time.UTC), s.Close.UTC())
	assert.Equal(t, time.Date(2024, 3, 14, 15, 50, 0, 0, Eastern), s.NearCloseStart)
	assert.Equal(t, time.Date(2024, 3, 13, 16, 0, 0, 0, Eastern), s.PreMarketStart)
	assert.False(t, s.EarlyClose)

	monday, err := cal.Session(day(2024, 3, 18))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 16, 0, 0, 0, Eastern), monday.PreMarketStart)
}

func TestSessionAcrossDSTChange(t *testing.T) {
	cal := New()
	// DST began 2024-03-10; the Friday before opened at 14:30 UTC.
	s, err := cal.Session(day(2024, 3, 8))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 8, 14, 30, 0, 0, time.UTC), s.Open.UTC())
}

func TestEarlyCloseSession(t *testing.T) {
	cal := New()

	s, err := cal.Session(day(2024, 11, 29))
	require.NoError(t, err)
	assert.True(t, s.EarlyClose)
	assert.Equal(t, time.Date(2024, 11, 29, 13, 0, 0, 0, Eastern), s.Close)
	assert.Equal(t, time.Date(2024, 11, 29, 12, 50, 0, 0, Eastern), s.NearCloseStart)
	assert.Equal(t, s.Close, s.QuietEnd)
}

func TestSessionRejectsHoliday(t *testing.T) {
	_, err := New().Session(day(2024, 12, 25))
	assert.True(t, errors.Is(err, ErrNotTradingDay))
}

func TestWindows(t *testing.T) {
	cal := New(WithNearClose(15 * time.Minute))

	at := func(h, m int) time.Time { return time.Date(2024, 3, 14, h, m, 0, 0, Eastern) }
	assert.False(t, cal.InNearClose(at(15, 44)))
	assert.True(t, cal.InNearClose(at(15, 45)))
	assert.True(t, cal.InNearClose(at(16, 0)))

	// Same instant expressed in Chicago time.
	assert.True(t, cal.InNearClose(time.Date(2024, 3, 14, 14, 50, 0, 0, Central)))

	assert.True(t, cal.InQuietWindow(at(12, 0)))
	assert.False(t, cal.InQuietWindow(at(13, 0)))
	assert.True(t, cal.IsOpen(at(9, 30)))
	assert.False(t, cal.IsOpen(at(16, 0)))
	assert.False(t, cal.InNearClose(time.Date(2024, 3, 16, 15, 55, 0, 0, Eastern)))
}

func TestNavigation(t *testing.T) {
	cal := New()

	assert.Equal(t, day(2024, 4, 1), cal.NextTradingDay(day(2024, 3, 28)))
	assert.Equal(t, day(2024, 3, 28), cal.PrevTradingDay(day(2024, 4, 1)))
	assert.Equal(t, day(2024, 3, 11), cal.TradingDaysBack(day(2024, 3, 14), 3))
	assert.Len(t, cal.TradingDaysBetween(day(2024, 3, 25), day(2024, 3, 31)), 4)
}

func TestHolidaysSorted(t *testing.T) {
	hs := New().Holidays(2024)
	require.Len(t, hs, 10)
	for i := 1; i < len(hs); i++ {
		assert.True(t, hs[i-1].Date.Before(hs[i].Date))
	}
	assert.Equal(t, "New Year's Day", hs[0].Name)
}

func TestParseDate(t *testing.T) {
	cal := New()
	d, err := cal.ParseDate("2024-03-14")
	require.NoError(t, err)
	assert.Equal(t, day(2024, 3, 14), d)
	assert.Equal(t, "2024-03-14", cal.FormatDate(d))

	_, err = cal.ParseDate("14/03/2024")
	assert.True(t, errors.Is(err, ErrInvalidDate))
}
