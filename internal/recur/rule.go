package recur

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedRule is returned for rules that cannot be expanded.
var ErrMalformedRule = errors.New("malformed rule")

// Repeat is the cadence kind of a Rule.
type Repeat int

const (
	Once Repeat = iota
	Daily
	Weekly
	Monthly
	Yearly
)

var repeatNames = map[Repeat]string{
	Once:    "once",
	Daily:   "daily",
	Weekly:  "weekly",
	Monthly: "monthly",
	Yearly:  "yearly",
}

func (r Repeat) String() string {
	if s, ok := repeatNames[r]; ok {
		return s
	}
	return fmt.Sprintf("Repeat(%d)", int(r))
}

// ParseRepeat accepts the lower or upper case cadence name.
func ParseRepeat(s string) (Repeat, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for r, name := range repeatNames {
		if name == key {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown repeat %q", ErrMalformedRule, s)
}

// Policy says how an occurrence that lands on a non-working day moves.
type Policy int

const (
	NoChange Policy = iota
	Before          // earlier, to the closest working day
	After           // later, to the closest working day
)

var policyNames = map[Policy]string{
	NoChange: "no_change",
	Before:   "before",
	After:    "after",
}

func (p Policy) String() string {
	if s, ok := policyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy accepts "no_change", "before" or "after" in any case. An empty
// string is NoChange.
func ParsePolicy(s string) (Policy, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "_")
	if key == "" || key == "none" {
		return NoChange, nil
	}
	for p, name := range policyNames {
		if name == key {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown holiday policy %q", ErrMalformedRule, s)
}

// Rule describes one recurring event.
type Rule struct {
	// Start is the first occurrence, emitted unchanged.
	Start time.Time
	// Repeat and Frequency give the cadence, e.g. Monthly/1.
	Repeat    Repeat
	Frequency int
	// End is an exclusive bound on adjusted occurrences.
	End time.Time
	// Policy controls holiday adjustment of every occurrence after Start.
	Policy Policy
}

// NewRule builds a Rule. A zero end defaults to January 1 of the year after
// start, in start's location.
func NewRule(start time.Time, repeat Repeat, frequency int, end time.Time, policy Policy) Rule {
	if end.IsZero() {
		end = DefaultEnd(start)
	}
	return Rule{
		Start:     start,
		Repeat:    repeat,
		Frequency: frequency,
		End:       end,
		Policy:    policy,
	}
}

// DefaultEnd is midnight on January 1 of the following year.
func DefaultEnd(start time.Time) time.Time {
	return time.Date(start.Year()+1, time.January, 1, 0, 0, 0, 0, start.Location())
}

// Validate reports why r cannot be expanded. A Once rule only needs a known
// policy; End and Frequency are not consulted for it.
func (r Rule) Validate() error {
	if _, ok := policyNames[r.Policy]; !ok {
		return fmt.Errorf("%w: unknown holiday policy %d", ErrMalformedRule, int(r.Policy))
	}
	if _, ok := repeatNames[r.Repeat]; !ok {
		return fmt.Errorf("%w: unknown repeat %d", ErrMalformedRule, int(r.Repeat))
	}
	if r.Start.IsZero() {
		return fmt.Errorf("%w: missing start", ErrMalformedRule)
	}
	if r.Repeat == Once {
		return nil
	}
	if r.Frequency < 1 {
		return fmt.Errorf("%w: frequency %d must be positive", ErrMalformedRule, r.Frequency)
	}
	if !r.End.After(r.Start) {
		return fmt.Errorf("%w: end %s is not after start %s", ErrMalformedRule,
			r.End.Format(time.DateOnly), r.Start.Format(time.DateOnly))
	}
	return nil
}
