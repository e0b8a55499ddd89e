package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"coursecal/internal/config"
	"coursecal/internal/course"
	"coursecal/internal/export"
	"coursecal/internal/feed"
	appLog "coursecal/internal/log"
	"coursecal/internal/metrics"
	"coursecal/internal/model"
	"coursecal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool

	// -once export inputs
	input    string
	yms      string
	unit     string
	teacher  string
	location string
	campus   string
	title    string
	out      string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.Configure(conf.LogLevel, conf.LogFormat)
	defer appLog.Sync()

	appLog.Info("coursecal starting", "version", "0.1.0")
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"feed", conf.FeedBaseURL,
		"refresh", conf.RefreshCron,
		"occurrences", conf.Export.Occurrences,
		"anchor", conf.Export.Anchor,
		"campuses", len(conf.Campuses),
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	exp, err := export.New(conf, m)
	if err != nil {
		appLog.Error("failed to set up exporter", err)
		os.Exit(1)
	}
	fetcher := feed.NewFetcher(conf.FeedBaseURL, conf.CacheDir, m)
	client := feed.NewClient(fetcher)

	if flags.once {
		if err := runOnce(ctx, flags, client, exp); err != nil {
			appLog.Error("export failed", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, conf, client, fetcher, exp, m); err != nil {
		appLog.Error("server exited with error", err)
		os.Exit(1)
	}
	appLog.Info("coursecal exiting")
}

// serve runs the HTTP API with a background feed refresh until ctx ends.
func serve(ctx context.Context, conf *config.Config, client *feed.Client, fetcher *feed.Fetcher, exp *export.Exporter, m *metrics.Metrics) error {
	blobs := feed.NewFetcherBlobCache(fetcher, m)
	defer blobs.Close()

	refresh := func() {
		rctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		for _, err := range client.Refresh(rctx) {
			appLog.Error("feed refresh", err)
		}
		blobs.InvalidateAll()
	}

	sched := cron.New()
	if _, err := sched.AddFunc(conf.RefreshCron, refresh); err != nil {
		return fmt.Errorf("refresh schedule %q: %w", conf.RefreshCron, err)
	}
	sched.Start()
	defer func() {
		<-sched.Stop().Done()
	}()

	go refresh()

	srv := web.NewServer(conf, client, blobs, exp, m)
	return srv.Run(ctx)
}

// runOnce exports one schedule to an .ics file and exits.
func runOnce(ctx context.Context, flags flagConfig, client *feed.Client, exp *export.Exporter) error {
	title, courses, err := loadCourses(ctx, flags, client)
	if err != nil {
		return err
	}
	if flags.title != "" {
		title = flags.title
	}

	doc, err := exp.Export(course.ParseCourses(courses), flags.campus, title)
	if err != nil {
		return err
	}
	for _, s := range doc.Skipped {
		appLog.Info("slot skipped", "id", s.Slot.ID, "period", s.Slot.Period, "reason", string(s.Reason))
	}
	for _, f := range doc.Fallbacks {
		appLog.Info("fallback end used", "id", f.Slot.ID, "end_period", f.EndPeriod, "reason", string(f.Reason))
	}

	if err := os.MkdirAll(flags.out, 0o755); err != nil {
		return err
	}
	path := filepath.Join(flags.out, doc.Filename())
	if err := os.WriteFile(path, doc.Bytes(), 0o644); err != nil {
		return err
	}
	appLog.Info("calendar written", "path", path, "events", doc.Events)
	return nil
}

// loadCourses reads -input if given, otherwise looks the teacher or
// location up in the feed.
func loadCourses(ctx context.Context, flags flagConfig, client *feed.Client) (string, []model.Course, error) {
	if flags.input != "" {
		f, err := os.Open(flags.input)
		if err != nil {
			return "", nil, err
		}
		defer f.Close()
		courses, err := course.DecodeCourses(f)
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", flags.input, err)
		}
		return "", courses, nil
	}

	yms := flags.yms
	if yms == "" {
		sem, err := client.DefaultSemester(ctx)
		if err != nil {
			return "", nil, err
		}
		yms = sem.Code
	}

	switch {
	case flags.teacher != "":
		t, err := client.FindTeacher(ctx, yms, flags.unit, flags.teacher)
		if err != nil {
			return "", nil, err
		}
		return t.Name + " 教師的課表", t.Courses, nil
	case flags.location != "":
		l, err := client.FindLocation(ctx, yms, flags.location)
		if err != nil {
			return "", nil, err
		}
		return l.Name + " 教室課表", l.Courses, nil
	}
	return "", nil, errors.New("-once needs -input, -teacher or -location")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/coursecal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Export one calendar file and exit")

	flag.StringVar(&cfg.input, "input", "", "JSON array of courses to export (with -once)")
	flag.StringVar(&cfg.yms, "yms", "", "Semester code such as 113#1 (default: feed default)")
	flag.StringVar(&cfg.unit, "unit", "", "Unit code narrowing -teacher")
	flag.StringVar(&cfg.teacher, "teacher", "", "Teacher code to export")
	flag.StringVar(&cfg.location, "location", "", "Classroom code to export")
	flag.StringVar(&cfg.campus, "campus", "", "Campus period table (default from config)")
	flag.StringVar(&cfg.title, "title", "", "Calendar title")
	flag.StringVar(&cfg.out, "out", ".", "Output directory for the .ics file")

	flag.Parse()

	return cfg
}
