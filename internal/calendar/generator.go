package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"holical/internal/config"
	"holical/internal/holiday"
	"holical/internal/ics"
	appLog "holical/internal/log"
	"holical/internal/model"
	"holical/internal/recur"
)

// Result is one generation run.
type Result struct {
	Year        int
	GeneratedAt time.Time
	Calendar    *ical.Calendar
	Occurrences []model.Occurrence
}

// Generator turns the configured events into a calendar for a given year.
// Every Generate call is a separate run with its own holiday store, so
// datasets refreshed between runs are picked up while staying fixed within
// one run.
type Generator struct {
	cfg    *config.Config
	loader holiday.Loader
	loc    *time.Location
	now    func() time.Time
}

func NewGenerator(cfg *config.Config, loader holiday.Loader) *Generator {
	if loader == nil {
		loader = holiday.DirLoader{Dir: cfg.DataDir}
	}
	return &Generator{
		cfg:    cfg,
		loader: loader,
		loc:    ResolveLocation(cfg.Timezone),
		now:    time.Now,
	}
}

// Location is the zone occurrences are computed in.
func (g *Generator) Location() *time.Location {
	return g.loc
}

// CurrentYear is the year of "now" in the configured zone.
func (g *Generator) CurrentYear() int {
	return g.now().In(g.loc).Year()
}

// Generate expands every configured event for year and builds the calendar.
// A malformed event fails the whole run.
func (g *Generator) Generate(year int) (*Result, error) {
	store := holiday.NewStore(g.loader)
	classifier := holiday.NewClassifier(store,
		holiday.WithMaxScanDays(g.cfg.MaxScanDays),
		holiday.WithZeroIsWorkday(g.cfg.ZeroIsWorkday),
	)
	engine := recur.NewEngine(classifier, recur.WithMaxShiftDays(g.cfg.MaxShiftDays))

	all := make([]model.Occurrence, 0)
	for _, ev := range g.cfg.Events {
		rule, err := g.Rule(ev, year)
		if err != nil {
			return nil, fmt.Errorf("event %q: %w", ev.ID, err)
		}
		occ, err := engine.ExpandOccurrences(rule)
		if err != nil {
			return nil, fmt.Errorf("event %q: %w", ev.ID, err)
		}

		shifted := 0
		for _, o := range occ {
			if !o.Date.Equal(o.Raw) {
				shifted++
			}
			all = append(all, model.Occurrence{
				EventID:     ev.ID,
				Title:       ev.Title,
				Description: ev.Description,
				Raw:         o.Raw,
				Date:        o.Date,
			})
		}
		appLog.Info("event expanded",
			"id", ev.ID,
			"repeat", rule.Repeat.String(),
			"policy", rule.Policy.String(),
			"occurrences", len(occ),
			"shifted", shifted,
		)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Date.Before(all[j].Date)
	})

	generatedAt := g.now()
	cal := ics.Build(all, ics.BuildOptions{
		ProdID:    g.cfg.ProdID,
		UIDDomain: g.cfg.UIDDomain,
		Stamp:     generatedAt,
	})

	return &Result{
		Year:        year,
		GeneratedAt: generatedAt,
		Calendar:    cal,
		Occurrences: all,
	}, nil
}

// WriteFile generates year and writes it to path.
func (g *Generator) WriteFile(path string, year int) (*Result, error) {
	res, err := g.Generate(year)
	if err != nil {
		return nil, err
	}
	if err := ics.WriteFile(path, res.Calendar); err != nil {
		return nil, err
	}
	appLog.Info("calendar written", "path", path, "year", year, "occurrences", len(res.Occurrences))
	return res, nil
}

// Rule converts an event config into a recurrence rule for year.
func (g *Generator) Rule(ev config.EventConfig, year int) (recur.Rule, error) {
	repeat, err := recur.ParseRepeat(ev.Repeat)
	if err != nil {
		return recur.Rule{}, err
	}
	policy, err := recur.ParsePolicy(ev.Holiday)
	if err != nil {
		return recur.Rule{}, err
	}
	start, err := parseStart(ev.Start, ev.Time, year, g.loc)
	if err != nil {
		return recur.Rule{}, fmt.Errorf("%w: %v", recur.ErrMalformedRule, err)
	}

	var end time.Time
	if strings.TrimSpace(ev.End) != "" {
		end, err = time.ParseInLocation(time.DateOnly, strings.TrimSpace(ev.End), g.loc)
		if err != nil {
			return recur.Rule{}, fmt.Errorf("%w: end: %v", recur.ErrMalformedRule, err)
		}
	}

	return recur.NewRule(start, repeat, ev.Frequency, end, policy), nil
}

// DatasetYears lists the dataset years a run for year may consult: every
// rule's span plus one year either side for the makeup workday scan and
// holiday shifts across New Year.
func (g *Generator) DatasetYears(year int) ([]int, error) {
	lo, hi := year, year
	for _, ev := range g.cfg.Events {
		rule, err := g.Rule(ev, year)
		if err != nil {
			return nil, fmt.Errorf("event %q: %w", ev.ID, err)
		}
		lo = min(lo, rule.Start.Year())
		hi = max(hi, rule.End.Year())
	}
	years := make([]int, 0, hi-lo+3)
	for y := lo - 1; y <= hi+1; y++ {
		years = append(years, y)
	}
	return years, nil
}

// parseStart accepts "YYYY-MM-DD" or "MM-DD" (placed in year) and an
// optional "HH:MM" time of day.
func parseStart(date, clock string, year int, loc *time.Location) (time.Time, error) {
	date = strings.TrimSpace(date)
	var d time.Time
	var err error
	switch len(date) {
	case len("2006-01-02"):
		d, err = time.ParseInLocation(time.DateOnly, date, loc)
	case len("01-02"):
		d, err = time.ParseInLocation("01-02", date, loc)
		d = time.Date(year, d.Month(), d.Day(), 0, 0, 0, 0, loc)
	default:
		return time.Time{}, fmt.Errorf("start %q: want YYYY-MM-DD or MM-DD", date)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("start: %w", err)
	}

	if clock = strings.TrimSpace(clock); clock != "" {
		c, err := time.Parse("15:04", clock)
		if err != nil {
			return time.Time{}, fmt.Errorf("time: %w", err)
		}
		d = time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), 0, 0, loc)
	}
	return d, nil
}

// ResolveLocation loads an IANA zone, falling back to time.Local.
func ResolveLocation(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}
