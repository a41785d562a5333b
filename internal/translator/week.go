package translator

import (
	"math"
	"time"

	"github.com/noah-isme/activity-report-api/internal/models"
)

// Week identifies a work week by its terminal Friday.
type Week struct {
	Year   int
	Number int
	Ending time.Time
}

// Start returns the Saturday opening the week.
func (w Week) Start() time.Time {
	return w.Ending.AddDate(0, 0, -6)
}

// DateOnly keeps the calendar date of t and pins it to UTC midnight.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FridayOnOrAfter returns the first Friday at or after the calendar date of t.
func FridayOnOrAfter(t time.Time) time.Time {
	d := DateOnly(t)
	offset := (int(time.Friday) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset)
}

// FirstFriday returns the first Friday on or after January 1 of year.
func FirstFriday(year int) time.Time {
	return FridayOnOrAfter(time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC))
}

// WeekOf derives the week containing date. The week belongs to the year of its
// ending Friday and is numbered by counting Fridays from that year's first Friday.
func WeekOf(date time.Time) Week {
	ending := FridayOnOrAfter(date)
	first := FirstFriday(ending.Year())
	days := int(ending.Sub(first).Hours() / 24)
	return Week{Year: ending.Year(), Number: days/7 + 1, Ending: ending}
}

// ApplyWeek normalises the report date and stamps the derived week fields.
func ApplyWeek(a *models.Activity) {
	a.ReportDate = DateOnly(a.ReportDate)
	w := WeekOf(a.ReportDate)
	a.WeekYear = w.Year
	a.WeekNumber = w.Number
}

// RoundHalfUp rounds non-negative v to the nearest integer, halves going up.
func RoundHalfUp(v float64) int64 {
	f := math.Floor(v)
	if v-f >= 0.5 {
		f++
	}
	return int64(f)
}
