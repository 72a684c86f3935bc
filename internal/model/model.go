package model

import "time"

// Event is a configured recurring reminder before expansion.
type Event struct {
	ID          string // config event ID, used for UIDs and logging
	Title       string
	Description string
}

// Occurrence is one concrete calendar entry produced from an Event.
type Occurrence struct {
	EventID string
	UID     string

	Title       string
	Description string

	AllDay bool

	// Raw is the cadence date before holiday adjustment; Date is what the
	// calendar entry is written for. Both are equal for the first
	// occurrence and for NoChange rules.
	Raw  time.Time
	Date time.Time
}

// Shifted reports whether a holiday policy moved the occurrence.
func (o Occurrence) Shifted() bool {
	return !o.Raw.IsZero() && !o.Raw.Equal(o.Date)
}
