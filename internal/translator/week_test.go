package translator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-report-api/internal/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestFirstFriday(t *testing.T) {
	assert.Equal(t, day(2025, time.January, 3), FirstFriday(2025))
	assert.Equal(t, day(2026, time.January, 2), FirstFriday(2026))
	// 2021-01-01 was itself a Friday.
	assert.Equal(t, day(2021, time.January, 1), FirstFriday(2021))
}

func TestWeekOfFirstFridayIsOne(t *testing.T) {
	for _, year := range []int{2020, 2021, 2024, 2025, 2026} {
		first := FirstFriday(year)
		w := WeekOf(first)
		assert.Equal(t, 1, w.Number, year)
		assert.Equal(t, year, w.Year, year)
	}
}

func TestWeekOfFridaysIncrementByOne(t *testing.T) {
	friday := FirstFriday(2025)
	for i := 1; friday.Year() == 2025; i++ {
		require.Equal(t, i, WeekOf(friday).Number, friday.Format("2006-01-02"))
		friday = friday.AddDate(0, 0, 7)
	}
}

func TestWeekOfDaysShareEndingFriday(t *testing.T) {
	// Saturday 2025-10-04 .. Friday 2025-10-10 all end on 2025-10-10.
	want := WeekOf(day(2025, time.October, 10))
	for d := day(2025, time.October, 4); !d.After(day(2025, time.October, 10)); d = d.AddDate(0, 0, 1) {
		assert.Equal(t, want, WeekOf(d), d.Format("Mon 2006-01-02"))
	}
	assert.Equal(t, day(2025, time.October, 4), want.Start())
	assert.Equal(t, want.Number+1, WeekOf(day(2025, time.October, 11)).Number)
}

func TestWeekOfYearBoundary(t *testing.T) {
	// Tuesday 2025-12-30 ends on Friday 2026-01-02, the first week of 2026.
	w := WeekOf(day(2025, time.December, 30))
	assert.Equal(t, 2026, w.Year)
	assert.Equal(t, 1, w.Number)

	// 2025-12-26 is the last Friday of 2025.
	assert.Equal(t, 52, WeekOf(day(2025, time.December, 26)).Number)
}

func TestWeekOfIgnoresTimezoneAndClock(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	local := time.Date(2025, time.March, 7, 23, 30, 0, 0, jakarta)
	assert.Equal(t, WeekOf(day(2025, time.March, 7)), WeekOf(local))
}

func TestApplyWeek(t *testing.T) {
	a := models.Activity{ReportDate: time.Date(2025, time.January, 8, 15, 4, 5, 0, time.UTC)}
	ApplyWeek(&a)
	assert.Equal(t, day(2025, time.January, 8), a.ReportDate)
	assert.Equal(t, 2025, a.WeekYear)
	assert.Equal(t, 2, a.WeekNumber)
}

func TestRoundHalfUp(t *testing.T) {
	cases := []struct {
		in   float64
		want int64
	}{
		{5.6, 6},
		{82.4, 82},
		{2.5, 3},
		{3.5, 4},
		{0.49999999999999994, 0},
		{0, 0},
		{99.5, 100},
		{100, 100},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, RoundHalfUp(tc.in), tc.in)
	}
}
