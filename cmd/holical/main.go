package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"holical/internal/calendar"
	"holical/internal/config"
	"holical/internal/holiday"
	"holical/internal/ics"
	appLog "holical/internal/log"
	"holical/internal/web"
)

type flagConfig struct {
	configPath string
	out        string
	listen     string
	year       int
	once       bool
	fetch      bool
	check      string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	if flags.out != "" {
		conf.Output = flags.out
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("holical starting",
		"config_path", flags.configPath,
		"timezone", conf.Timezone,
		"data_dir", conf.DataDir,
		"output", conf.Output,
		"events", len(conf.Events),
		"once", flags.once,
	)

	if flags.check != "" {
		if err := check(flags.check, calendar.ResolveLocation(conf.Timezone)); err != nil {
			appLog.Error("check failed", err, "path", flags.check)
			os.Exit(1)
		}
		return
	}

	gen := calendar.NewGenerator(conf, holiday.DirLoader{Dir: conf.DataDir})
	year := flags.year
	if year == 0 {
		year = gen.CurrentYear()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if flags.once {
		if flags.fetch {
			fetchDatasets(ctx, conf, gen, year)
		}
		if _, err := gen.WriteFile(conf.Output, year); err != nil {
			appLog.Error("generation failed", err, "year", year)
			os.Exit(1)
		}
		return
	}

	srv := web.NewServer(conf, gen)

	// Daemon: regenerate the current year's file on the refresh schedule.
	refresh := func() {
		y := year
		if flags.year == 0 {
			y = gen.CurrentYear()
		}
		if conf.DatasetURL != "" {
			fetchDatasets(ctx, conf, gen, y)
			srv.Invalidate()
		}
		if _, err := gen.WriteFile(conf.Output, y); err != nil {
			appLog.Error("scheduled generation failed", err, "year", y)
		}
	}

	if flags.fetch && conf.DatasetURL == "" {
		appLog.Warn("-fetch ignored: dataset_url is not configured")
	}
	refresh()

	sched := cron.New(cron.WithLogger(cronLogger{}))
	if _, err := sched.AddFunc(conf.RefreshCron, refresh); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	sched.Start()
	defer func() {
		<-sched.Stop().Done()
	}()

	if err := srv.Run(ctx); err != nil {
		appLog.Error("http server failed", err, "listen", conf.Listen)
		cancel()
	}

	// Give an in-flight refresh a moment to finish writing.
	time.Sleep(100 * time.Millisecond)
	appLog.Info("holical exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/holical/config.yaml", "Path to config file")
	flag.StringVar(&cfg.out, "out", "", "Output .ics path (overrides config if set)")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.IntVar(&cfg.year, "year", 0, "Year to generate (default: current year)")
	flag.BoolVar(&cfg.once, "once", false, "Generate the calendar file once and exit")
	flag.BoolVar(&cfg.fetch, "fetch", false, "Mirror holiday datasets from dataset_url before generating")
	flag.StringVar(&cfg.check, "check", "", "Parse an existing .ics file, list its entries and exit")

	flag.Parse()

	return cfg
}

func fetchDatasets(ctx context.Context, conf *config.Config, gen *calendar.Generator, year int) {
	if conf.DatasetURL == "" {
		appLog.Warn("dataset fetch skipped: dataset_url is not configured")
		return
	}
	f, err := holiday.NewFetcher(conf.DatasetURL, conf.DataDir)
	if err != nil {
		appLog.Error("dataset fetcher setup failed", err)
		return
	}
	years, err := gen.DatasetYears(year)
	if err != nil {
		appLog.Error("dataset years unavailable", err)
		return
	}
	results, errs := f.FetchAll(ctx, years)
	appLog.Info("dataset fetch finished", "years", len(years), "ok", len(results), "failed", len(errs))
}

func check(path string, loc *time.Location) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	occ, err := ics.ParseOccurrences(body, loc)
	if err != nil {
		return err
	}
	if len(occ) == 0 {
		return errors.New("no events found")
	}
	for _, o := range occ {
		appLog.Info("entry",
			"date", o.Date.Format(time.DateOnly),
			"weekday", o.Date.Weekday().String(),
			"title", o.Title,
			"all_day", o.AllDay,
			"uid", o.UID,
		)
	}
	appLog.Info("check ok", "path", path, "entries", len(occ))
	return nil
}

// cronLogger routes cron's own diagnostics through the app logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
