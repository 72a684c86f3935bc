package ics

import (
	"bytes"
	"errors"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "holical/internal/log"
	"holical/internal/model"
)

// ParseOccurrences reads a calendar document back into occurrences, sorted
// by date. Dates are interpreted in loc (time.Local if nil). VEVENTs without
// a UID or DTSTART are logged and skipped.
func ParseOccurrences(body []byte, loc *time.Location) ([]model.Occurrence, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	out := make([]model.Occurrence, 0)
	for _, ve := range cal.Events() {
		occ, perr := parseVEvent(ve, loc)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr)
			continue
		}
		out = append(out, occ)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (model.Occurrence, error) {
	var out model.Occurrence

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return out, errors.New("missing DTSTART")
	}

	// VALUE=DATE, a bare YYYYMMDD value or the X-ALLDAY marker make an
	// all-day entry.
	allDay := !strings.Contains(dtStart.Value, "T")
	if vs, ok := dtStart.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		allDay = true
	}
	if p := ve.GetProperty(PropertyAllDay); p != nil && strings.TrimSpace(p.Value) == "1" {
		allDay = true
	}
	out.AllDay = allDay

	start, err := parseICSTime(dtStart.Value, loc)
	if err != nil {
		return out, err
	}
	out.Date = start
	out.Raw = start

	return out, nil
}

// parseICSTime parses the basic DATE / DATE-TIME / UTC forms.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	// 20250101T090000
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	// 20250101
	return time.ParseInLocation("20060102", v, loc)
}
