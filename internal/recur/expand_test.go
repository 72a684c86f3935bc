package recur

import (
	"errors"
	"testing"
	"time"

	"github.com/matryer/is"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// fakeCalendar treats weekends and the listed dates as non-working.
type fakeCalendar struct {
	holidays map[string]bool
}

func (f fakeCalendar) IsNonWorkingDay(t time.Time) bool {
	if f.holidays[t.Format(time.DateOnly)] {
		return true
	}
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}

// closedCalendar has no working days at all.
type closedCalendar struct{}

func (closedCalendar) IsNonWorkingDay(time.Time) bool { return true }

func TestExpand_Once(t *testing.T) {
	is := is.New(t)

	start := time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC) // Saturday
	got, err := NewEngine(fakeCalendar{}).Expand(NewRule(start, Once, 1, time.Time{}, Before))
	is.NoErr(err)
	is.Equal(got, []time.Time{start})
}

func TestExpand_DailyNoChange(t *testing.T) {
	is := is.New(t)

	rule := NewRule(day(2024, 1, 1), Daily, 1, day(2024, 1, 4), NoChange)
	got, err := NewEngine(nil).Expand(rule)
	is.NoErr(err)
	is.Equal(got, []time.Time{day(2024, 1, 1), day(2024, 1, 2), day(2024, 1, 3)})
}

func TestNewRule_DefaultEnd(t *testing.T) {
	is := is.New(t)

	loc := time.FixedZone("CST", 8*3600)
	rule := NewRule(time.Date(2024, 3, 15, 10, 0, 0, 0, loc), Monthly, 1, time.Time{}, NoChange)
	is.True(rule.End.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, loc)))

	got, err := NewEngine(nil).Expand(rule)
	is.NoErr(err)
	is.Equal(len(got), 10) // March through December
}

func TestExpand_MonthlyPaydayBefore(t *testing.T) {
	is := is.New(t)

	cal := fakeCalendar{holidays: map[string]bool{"2024-10-15": true}}
	rule := NewRule(day(2024, 1, 15), Monthly, 1, time.Time{}, Before)
	got, err := NewEngine(cal).Expand(rule)
	is.NoErr(err)

	want := []time.Time{
		day(2024, 1, 15), day(2024, 2, 15), day(2024, 3, 15), day(2024, 4, 15),
		day(2024, 5, 15), day(2024, 6, 14), day(2024, 7, 15), day(2024, 8, 15),
		day(2024, 9, 13), day(2024, 10, 14), day(2024, 11, 15), day(2024, 12, 13),
	}
	is.Equal(got, want)
}

func TestExpand_MonthlyAfter(t *testing.T) {
	is := is.New(t)

	rule := NewRule(day(2024, 5, 15), Monthly, 1, day(2024, 10, 1), After)
	got, err := NewEngine(fakeCalendar{}).Expand(rule)
	is.NoErr(err)
	is.Equal(got, []time.Time{
		day(2024, 5, 15), day(2024, 6, 17), day(2024, 7, 15), day(2024, 8, 15), day(2024, 9, 16),
	})
}

func TestExpand_StartIsNeverAdjusted(t *testing.T) {
	is := is.New(t)

	start := day(2024, 6, 15) // Saturday
	got, err := NewEngine(fakeCalendar{}).Expand(NewRule(start, Monthly, 1, day(2024, 8, 1), After))
	is.NoErr(err)
	is.Equal(got, []time.Time{start, day(2024, 7, 15)})
}

func TestExpand_WeeklyAddsToDayField(t *testing.T) {
	is := is.New(t)

	// Frequency counts days on the weekly cadence.
	rule := NewRule(day(2024, 1, 29), Weekly, 7, day(2024, 2, 20), NoChange)
	got, err := NewEngine(nil).Expand(rule)
	is.NoErr(err)
	is.Equal(got, []time.Time{day(2024, 1, 29), day(2024, 2, 5), day(2024, 2, 12), day(2024, 2, 19)})

	rule = NewRule(day(2024, 1, 1), Weekly, 3, day(2024, 1, 10), NoChange)
	got, err = NewEngine(nil).Expand(rule)
	is.NoErr(err)
	is.Equal(got, []time.Time{day(2024, 1, 1), day(2024, 1, 4), day(2024, 1, 7)})
}

func TestExpand_MonthlyDayOverflow(t *testing.T) {
	is := is.New(t)

	// "Feb 31" normalises to Mar 2 and the cadence continues from there.
	rule := NewRule(day(2024, 1, 31), Monthly, 1, day(2024, 5, 1), NoChange)
	got, err := NewEngine(nil).Expand(rule)
	is.NoErr(err)
	is.Equal(got, []time.Time{day(2024, 1, 31), day(2024, 3, 2), day(2024, 4, 2)})
}

func TestExpand_MonthlyYearRollover(t *testing.T) {
	is := is.New(t)

	rule := NewRule(day(2024, 11, 15), Monthly, 2, day(2025, 6, 1), NoChange)
	got, err := NewEngine(nil).Expand(rule)
	is.NoErr(err)
	is.Equal(got, []time.Time{day(2024, 11, 15), day(2025, 1, 15), day(2025, 3, 15), day(2025, 5, 15)})

	// Past twelve months the month field normalises into the year after.
	rule = NewRule(day(2024, 6, 1), Monthly, 18, day(2028, 1, 1), NoChange)
	got, err = NewEngine(nil).Expand(rule)
	is.NoErr(err)
	is.Equal(got, []time.Time{day(2024, 6, 1), day(2025, 12, 1), day(2027, 6, 1)})
}

func TestExpand_Yearly(t *testing.T) {
	is := is.New(t)

	rule := NewRule(day(2024, 3, 10), Yearly, 1, day(2027, 1, 1), NoChange)
	got, err := NewEngine(nil).Expand(rule)
	is.NoErr(err)
	is.Equal(got, []time.Time{day(2024, 3, 10), day(2025, 3, 10), day(2026, 3, 10)})

	rule = NewRule(day(2024, 2, 29), Yearly, 1, day(2033, 1, 1), NoChange)
	got, err = NewEngine(nil).Expand(rule)
	is.NoErr(err)
	is.Equal(got, []time.Time{day(2024, 2, 29), day(2028, 2, 29), day(2032, 2, 29)})

	// 2025-03-08 is a Saturday.
	rule = NewRule(day(2023, 3, 8), Yearly, 2, day(2028, 1, 1), Before)
	got, err = NewEngine(fakeCalendar{}).Expand(rule)
	is.NoErr(err)
	is.Equal(got, []time.Time{day(2023, 3, 8), day(2025, 3, 7), day(2027, 3, 8)})
}

func TestExpand_CarriesTimeOfDay(t *testing.T) {
	is := is.New(t)

	loc := time.FixedZone("CST", 8*3600)
	start := time.Date(2024, 1, 15, 9, 30, 0, 0, loc)
	got, err := NewEngine(fakeCalendar{}).Expand(NewRule(start, Monthly, 1, time.Date(2024, 7, 1, 0, 0, 0, 0, loc), Before))
	is.NoErr(err)
	for _, d := range got {
		is.Equal(d.Hour(), 9)
		is.Equal(d.Minute(), 30)
		is.Equal(d.Location(), loc)
	}
	is.Equal(got[5].Day(), 14) // June 15 is a Saturday
}

func TestExpand_CursorFollowsRawDate(t *testing.T) {
	is := is.New(t)

	// Sat and Sun both move to Monday; the cursor keeps walking raw days so
	// Monday appears three times.
	rule := NewRule(day(2024, 1, 5), Daily, 1, day(2024, 1, 9), After)
	got, err := NewEngine(fakeCalendar{}).Expand(rule)
	is.NoErr(err)
	is.Equal(got, []time.Time{day(2024, 1, 5), day(2024, 1, 8), day(2024, 1, 8), day(2024, 1, 8)})
}

func TestExpand_AdjustedDateDecidesEnd(t *testing.T) {
	is := is.New(t)

	// Raw 01-07 equals End but moves back to 01-05, so it is kept.
	rule := NewRule(day(2024, 1, 5), Daily, 1, day(2024, 1, 7), Before)
	occ, err := NewEngine(fakeCalendar{}).ExpandOccurrences(rule)
	is.NoErr(err)
	is.Equal(len(occ), 3)
	is.True(occ[2].Raw.Equal(day(2024, 1, 7)))
	is.True(occ[2].Date.Equal(day(2024, 1, 5)))
	is.True(occ[2].Shifted())
	is.True(!occ[0].Shifted())
}

func TestExpand_PolicyDirection(t *testing.T) {
	is := is.New(t)

	cal := fakeCalendar{holidays: map[string]bool{
		"2024-02-12": true, "2024-02-13": true, "2024-02-14": true,
		"2024-05-01": true, "2024-10-01": true, "2024-10-02": true,
	}}
	engine := NewEngine(cal)

	before, err := engine.ExpandOccurrences(NewRule(day(2024, 1, 1), Daily, 1, time.Time{}, Before))
	is.NoErr(err)
	after, err := engine.ExpandOccurrences(NewRule(day(2024, 1, 1), Daily, 1, time.Time{}, After))
	is.NoErr(err)

	for _, o := range before[1:] {
		is.True(!o.Date.After(o.Raw))
		is.True(!cal.IsNonWorkingDay(o.Date))
	}
	for _, o := range after[1:] {
		is.True(!o.Date.Before(o.Raw))
		is.True(!cal.IsNonWorkingDay(o.Date))
	}
}

func TestExpand_ShiftBound(t *testing.T) {
	is := is.New(t)

	rule := NewRule(day(2024, 1, 1), Daily, 1, day(2024, 2, 1), After)
	_, err := NewEngine(closedCalendar{}, WithMaxShiftDays(5)).Expand(rule)
	is.True(errors.Is(err, ErrShiftBoundExceeded))
}

func TestExpand_MalformedRules(t *testing.T) {
	is := is.New(t)
	engine := NewEngine(fakeCalendar{})

	cases := []Rule{
		NewRule(day(2024, 1, 1), Monthly, 0, time.Time{}, NoChange),
		NewRule(day(2024, 1, 1), Daily, -2, time.Time{}, NoChange),
		NewRule(day(2024, 1, 1), Daily, 1, day(2024, 1, 1), NoChange),
		NewRule(day(2024, 1, 1), Daily, 1, day(2023, 1, 1), NoChange),
		NewRule(day(2024, 1, 1), Repeat(9), 1, time.Time{}, NoChange),
		NewRule(day(2024, 1, 1), Daily, 1, time.Time{}, Policy(7)),
		NewRule(time.Time{}, Daily, 1, day(2024, 1, 1), NoChange),
	}
	for _, rule := range cases {
		_, err := engine.Expand(rule)
		is.True(errors.Is(err, ErrMalformedRule))
	}

	_, err := NewEngine(nil).Expand(NewRule(day(2024, 1, 1), Daily, 1, time.Time{}, Before))
	is.True(errors.Is(err, ErrMalformedRule))

	// Once ignores frequency and end.
	got, err := engine.Expand(NewRule(day(2024, 1, 1), Once, 0, day(2023, 1, 1), NoChange))
	is.NoErr(err)
	is.Equal(len(got), 1)
}

func TestParseRepeatAndPolicy(t *testing.T) {
	is := is.New(t)

	r, err := ParseRepeat("MONTHLY")
	is.NoErr(err)
	is.Equal(r, Monthly)
	r, err = ParseRepeat(" yearly ")
	is.NoErr(err)
	is.Equal(r, Yearly)
	_, err = ParseRepeat("fortnightly")
	is.True(errors.Is(err, ErrMalformedRule))

	p, err := ParsePolicy("")
	is.NoErr(err)
	is.Equal(p, NoChange)
	p, err = ParsePolicy("NO-CHANGE")
	is.NoErr(err)
	is.Equal(p, NoChange)
	p, err = ParsePolicy("Before")
	is.NoErr(err)
	is.Equal(p, Before)
	_, err = ParsePolicy("sideways")
	is.True(errors.Is(err, ErrMalformedRule))

	is.Equal(After.String(), "after")
	is.Equal(Weekly.String(), "weekly")
}
