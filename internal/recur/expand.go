package recur

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "holical/internal/log"
)

// DefaultMaxShiftDays bounds how far a holiday policy may move a single
// occurrence. The longest official break is well under a month.
const DefaultMaxShiftDays = 31

// ErrShiftBoundExceeded is returned when no working day is found within the
// shift bound, which points at a corrupt holiday dataset.
var ErrShiftBoundExceeded = errors.New("holiday adjustment bound exceeded")

// Classifier is the part of the holiday classifier the engine needs.
type Classifier interface {
	IsNonWorkingDay(t time.Time) bool
}

// Occurrence pairs an emitted date with the cadence date it was derived from.
type Occurrence struct {
	// Raw is the cadence-advanced date before adjustment.
	Raw time.Time
	// Date is the emitted, holiday-adjusted date.
	Date time.Time
}

// Shifted reports whether the holiday policy moved this occurrence.
func (o Occurrence) Shifted() bool {
	return !o.Raw.Equal(o.Date)
}

// Engine expands rules into occurrence dates.
type Engine struct {
	classifier   Classifier
	maxShiftDays int
}

type Option func(*Engine)

// WithMaxShiftDays overrides DefaultMaxShiftDays. Values below one are ignored.
func WithMaxShiftDays(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxShiftDays = n
		}
	}
}

// NewEngine returns an Engine that consults classifier for Before/After
// rules. classifier may be nil if only NoChange rules are expanded.
func NewEngine(classifier Classifier, opts ...Option) *Engine {
	e := &Engine{
		classifier:   classifier,
		maxShiftDays: DefaultMaxShiftDays,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand returns the occurrence dates of rule in order. The first date is
// always rule.Start unchanged.
func (e *Engine) Expand(rule Rule) ([]time.Time, error) {
	occ, err := e.ExpandOccurrences(rule)
	if err != nil {
		return nil, err
	}
	dates := make([]time.Time, len(occ))
	for i, o := range occ {
		dates[i] = o.Date
	}
	return dates, nil
}

// ExpandOccurrences is Expand with the raw cadence date kept next to each
// adjusted date.
//
// The cursor always advances from the previous raw date, never from the
// adjusted one, so adjustment cannot stall or reverse the cadence. Expansion
// stops at the first adjusted date that is not before rule.End.
func (e *Engine) ExpandOccurrences(rule Rule) ([]Occurrence, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if rule.Policy != NoChange && e.classifier == nil {
		return nil, fmt.Errorf("%w: policy %s needs a holiday classifier", ErrMalformedRule, rule.Policy)
	}

	result := []Occurrence{{Raw: rule.Start, Date: rule.Start}}
	if rule.Repeat == Once {
		return result, nil
	}

	next, err := newStepper(rule)
	if err != nil {
		return nil, err
	}

	cursor := rule.Start
	for {
		raw, ok := next(cursor)
		if !ok {
			break
		}
		date, err := e.adjust(raw, rule.Policy)
		if err != nil {
			return nil, err
		}
		if !date.Before(rule.End) {
			break
		}
		if !date.Equal(raw) {
			appLog.Debug("occurrence moved off non-working day",
				"raw", raw,
				"date", date,
				"policy", rule.Policy.String(),
			)
		}
		result = append(result, Occurrence{Raw: raw, Date: date})
		cursor = raw
	}

	return result, nil
}

// adjust walks from raw according to policy until a working day is found.
func (e *Engine) adjust(raw time.Time, policy Policy) (time.Time, error) {
	var step int
	switch policy {
	case NoChange:
		return raw, nil
	case Before:
		step = -1
	case After:
		step = 1
	}

	date := raw
	for shifted := 0; e.classifier.IsNonWorkingDay(date); shifted++ {
		if shifted == e.maxShiftDays {
			return time.Time{}, fmt.Errorf("%w: %s moved %d days %s without reaching a working day",
				ErrShiftBoundExceeded, raw.Format(time.DateOnly), shifted, policy)
		}
		date = date.AddDate(0, 0, step)
	}
	return date, nil
}

// stepper yields the next raw date after cursor. ok is false once the
// cadence has no further dates.
type stepper func(cursor time.Time) (next time.Time, ok bool)

func newStepper(rule Rule) (stepper, error) {
	n := rule.Frequency
	switch rule.Repeat {
	case Daily:
		return func(c time.Time) (time.Time, bool) {
			return c.AddDate(0, 0, n), true
		}, nil
	case Weekly:
		return func(c time.Time) (time.Time, bool) {
			return addDayField(c, n), true
		}, nil
	case Monthly:
		return func(c time.Time) (time.Time, bool) {
			return addMonthField(c, n), true
		}, nil
	case Yearly:
		return yearlyStepper(rule)
	}
	return nil, fmt.Errorf("%w: unknown repeat %d", ErrMalformedRule, int(rule.Repeat))
}

// addDayField rebuilds t with its day-of-month field increased by n. The
// weekly cadence is expressed this way, so n counts days, not weeks. A day
// past the end of the month normalises into the next month.
func addDayField(t time.Time, n int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+n,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// addMonthField adds n to the month field with a single year rollover and
// keeps the day field as is. A day that does not exist in the target month
// (Jan 31 -> "Feb 31") normalises into the following month, and every later
// occurrence continues from that normalised date.
func addMonthField(t time.Time, n int) time.Time {
	year := t.Year()
	month := int(t.Month()) + n
	if month > 12 {
		month -= 12
		year++
	}
	return time.Date(year, time.Month(month), t.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// yearlyStepper follows FREQ=YEARLY;INTERVAL=n from rule.Start. A Feb 29
// start therefore only recurs in leap years.
func yearlyStepper(rule Rule) (stepper, error) {
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:     rrule.YEARLY,
		Interval: rule.Frequency,
		Dtstart:  rule.Start,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRule, err)
	}
	iter := r.Iterator()
	// The first value is Dtstart itself.
	if _, ok := iter(); !ok {
		return nil, fmt.Errorf("%w: yearly rule has no occurrences", ErrMalformedRule)
	}
	return func(time.Time) (time.Time, bool) {
		return iter()
	}, nil
}
