package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EventConfig describes one recurring reminder.
type EventConfig struct {
	// ID is a stable identifier used in UIDs and logs. Defaults to Title.
	ID string `yaml:"id" json:"id"`
	// Title is written to SUMMARY (and DESCRIPTION unless Description is set).
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Start is either "YYYY-MM-DD" or "MM-DD". The short form is placed in
	// the year being generated.
	Start string `yaml:"start" json:"start"`
	// Time is an optional "HH:MM" carried through to every occurrence.
	Time string `yaml:"time,omitempty" json:"time,omitempty"`

	// Repeat is one of once, daily, weekly, monthly, yearly.
	Repeat string `yaml:"repeat" json:"repeat"`
	// Frequency is the interval in Repeat units. Weekly counts days.
	Frequency int `yaml:"frequency" json:"frequency"`

	// End is an optional exclusive "YYYY-MM-DD" bound. Empty means
	// January 1 of the following year.
	End string `yaml:"end,omitempty" json:"end,omitempty"`

	// Holiday is one of no_change, before, after.
	Holiday string `yaml:"holiday" json:"holiday"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the feed server.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the calendar feed.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone occurrences are computed in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// DataDir holds "<year>_data.json" holiday datasets.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// DatasetURL, if set, is a template containing "{year}" from which
	// datasets are mirrored into DataDir.
	DatasetURL string `yaml:"dataset_url,omitempty" json:"dataset_url,omitempty"`

	// ZeroIsWorkday makes an explicit zero status a working day even on a
	// weekend. Off by default: zero defers to the weekend rule.
	ZeroIsWorkday bool `yaml:"zero_is_workday" json:"zero_is_workday"`

	// MaxScanDays bounds the makeup workday run scan in each direction.
	MaxScanDays int `yaml:"max_scan_days" json:"max_scan_days"`

	// MaxShiftDays bounds how far a holiday policy may move an occurrence.
	MaxShiftDays int `yaml:"max_shift_days" json:"max_shift_days"`

	// Output is where the generated calendar is written.
	Output string `yaml:"output" json:"output"`

	ProdID    string `yaml:"prodid" json:"prodid"`
	UIDDomain string `yaml:"uid_domain" json:"uid_domain"`

	// RefreshCron is a cron schedule (e.g. "0 3 * * *") for regenerating
	// the output in daemon mode.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	Events []EventConfig `yaml:"events" json:"events"`
}

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "Asia/Shanghai"
	defaultDataDir     = "holidays_api/data"
	defaultOutput      = "example.ics"
	defaultProdID      = "-//SWM's Calendar//SWM//CN"
	defaultUIDDomain   = "SWM"
	defaultRefreshCron = "0 3 * * *"
	defaultLogLevel    = "info"
)

// DefaultEvents is the monthly payday on the 15th, moved to the previous
// working day.
func DefaultEvents() []EventConfig {
	return []EventConfig{
		{
			ID:        "payday",
			Title:     "发工资",
			Start:     "01-15",
			Repeat:    "monthly",
			Frequency: 1,
			Holiday:   "before",
		},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       defaultListen,
		Timezone:     defaultTimezone,
		DataDir:      defaultDataDir,
		MaxScanDays:  14,
		MaxShiftDays: 31,
		Output:       defaultOutput,
		ProdID:       defaultProdID,
		UIDDomain:    defaultUIDDomain,
		RefreshCron:  defaultRefreshCron,
		LogLevel:     defaultLogLevel,
		Events:       DefaultEvents(),
	}
}

// Normalize fills in missing/zero values so partially-filled configs still
// behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.MaxScanDays <= 0 {
		c.MaxScanDays = 14
	}
	if c.MaxShiftDays <= 0 {
		c.MaxShiftDays = 31
	}
	if c.Output == "" {
		c.Output = defaultOutput
	}
	if c.ProdID == "" {
		c.ProdID = defaultProdID
	}
	if c.UIDDomain == "" {
		c.UIDDomain = defaultUIDDomain
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.Events == nil {
		c.Events = DefaultEvents()
	}
	for i := range c.Events {
		ev := &c.Events[i]
		if ev.ID == "" {
			ev.ID = ev.Title
		}
		if ev.Frequency == 0 {
			ev.Frequency = 1
		}
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "" || c.BasicAuth.Password == "") {
		c.BasicAuth = nil
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and returned.
//   - Otherwise the YAML is unmarshalled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".holical-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
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

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
