package holiday

import (
	"errors"
	"time"

	"github.com/rickar/cal/v2"

	appLog "holical/internal/log"
)

const (
	// DefaultMaxScanDays bounds each direction of the consecutive workday
	// scan used by IsMakeupWorkday.
	DefaultMaxScanDays = 14

	// maxConsecutiveWorkdays is the longest run a makeup Saturday may
	// complete. A run of seven or more rejects the redesignation.
	maxConsecutiveWorkdays = 6
)

// ErrScanBoundExceeded is reported when a run of working days around a
// makeup workday candidate is longer than the scan bound.
var ErrScanBoundExceeded = errors.New("consecutive workday scan bound exceeded")

// Classifier answers whether a calendar day is a working day. It combines
// the per-year dataset with the last-Saturday makeup workday rule.
type Classifier struct {
	store         *Store
	maxScanDays   int
	zeroIsWorkday bool
}

type Option func(*Classifier)

// WithMaxScanDays overrides DefaultMaxScanDays. Non-positive values are
// ignored; anything shorter than the longest allowed run is raised to it so
// the bound never changes a result.
func WithMaxScanDays(n int) Option {
	return func(c *Classifier) {
		if n <= 0 {
			return
		}
		c.maxScanDays = max(n, maxConsecutiveWorkdays)
	}
}

// WithZeroIsWorkday makes an explicit zero status a working day even when it
// falls on a weekend. By default a zero status defers to the weekend rule.
func WithZeroIsWorkday(v bool) Option {
	return func(c *Classifier) {
		c.zeroIsWorkday = v
	}
}

func NewClassifier(store *Store, opts ...Option) *Classifier {
	c := &Classifier{
		store:       store,
		maxScanDays: DefaultMaxScanDays,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsOfficialHoliday reports whether the dataset marks t as a non-working day,
// falling back to Saturday/Sunday when the dataset has no say.
func (c *Classifier) IsOfficialHoliday(t time.Time) bool {
	if status, ok := c.store.Lookup(t); ok {
		if status != 0 {
			return true
		}
		if c.zeroIsWorkday {
			return false
		}
	}
	return cal.IsWeekend(t)
}

// IsMakeupWorkday reports whether t is the last Saturday of its month and
// can be worked without producing seven or more consecutive working days.
func (c *Classifier) IsMakeupWorkday(t time.Time) bool {
	if t.Weekday() != time.Saturday {
		return false
	}
	if t.AddDate(0, 0, 7).Month() == t.Month() {
		return false
	}

	before, okBefore := c.workRun(t, -1)
	after, okAfter := c.workRun(t, 1)
	if !okBefore || !okAfter {
		appLog.Error("makeup workday check gave up", ErrScanBoundExceeded,
			"date", t,
			"bound", c.maxScanDays,
		)
		return false
	}

	return before+after+1 <= maxConsecutiveWorkdays
}

// IsNonWorkingDay is the combined classification: a makeup workday is always
// worked, otherwise official holidays and weekends are off.
func (c *Classifier) IsNonWorkingDay(t time.Time) bool {
	if c.IsMakeupWorkday(t) {
		return false
	}
	return c.IsOfficialHoliday(t)
}

// workRun counts consecutive working days next to t in direction step
// (-1 or +1). ok is false if no holiday was found within maxScanDays.
func (c *Classifier) workRun(t time.Time, step int) (n int, ok bool) {
	for i := 1; i <= c.maxScanDays; i++ {
		if c.IsOfficialHoliday(t.AddDate(0, 0, step*i)) {
			return i - 1, true
		}
	}
	return c.maxScanDays, false
}
