package ics

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"holical/internal/model"
)

const (
	DefaultProdID    = "-//holical//Holiday Aware Calendar//CN"
	DefaultUIDDomain = "holical"

	// stampLayout is the minute-resolution serialisation timestamp that
	// prefixes every UID.
	stampLayout = "200601021504"

	// PropertyAllDay is the non-standard all-day marker some clients expect.
	PropertyAllDay = ical.ComponentProperty("X-ALLDAY")
)

// BuildOptions controls calendar serialisation.
type BuildOptions struct {
	ProdID    string
	UIDDomain string
	// Stamp is the serialisation time used for UIDs and DTSTAMP. Zero means
	// time.Now().
	Stamp time.Time
}

// Build creates one all-day VEVENT per occurrence. The UID of each entry is
// derived from the serialisation timestamp plus a name-based UUID of the
// event ID and date, so entries in the same document never collide.
func Build(occurrences []model.Occurrence, opts BuildOptions) *ical.Calendar {
	if opts.ProdID == "" {
		opts.ProdID = DefaultProdID
	}
	if opts.UIDDomain == "" {
		opts.UIDDomain = DefaultUIDDomain
	}
	if opts.Stamp.IsZero() {
		opts.Stamp = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetVersion("2.0")
	cal.SetProductId(opts.ProdID)

	stamp := opts.Stamp.Format(stampLayout)
	for i := range occurrences {
		occ := &occurrences[i]
		occ.UID = EventUID(stamp, occ.EventID, occ.Date, opts.UIDDomain)
		occ.AllDay = true

		ev := cal.AddEvent(occ.UID)
		ev.SetDtStampTime(opts.Stamp.UTC())
		ev.SetAllDayStartAt(occ.Date)
		ev.SetProperty(PropertyAllDay, "1")
		ev.SetSummary(occ.Title)
		desc := occ.Description
		if desc == "" {
			desc = occ.Title
		}
		ev.SetDescription(desc)
	}

	return cal
}

// EventUID formats "<stamp>-<uuid>@<domain>".
func EventUID(stamp, eventID string, date time.Time, domain string) string {
	name := eventID + "/" + date.Format("20060102")
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(name))
	return stamp + "-" + id.String() + "@" + domain
}

// WriteFile serialises cal to path via a temp file and rename.
func WriteFile(path string, cal *ical.Calendar) error {
	if path == "" {
		return errors.New("output path is empty")
	}
	if cal == nil {
		return errors.New("calendar is nil")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".holical-*.ics.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(cal.Serialize()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
