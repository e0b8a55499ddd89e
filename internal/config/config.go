package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"coursecal/internal/model"
)

// Anchor policies for the first week of an exported calendar.
const (
	AnchorOnOrAfter    = "on_or_after"
	AnchorStrictlyNext = "strictly_next"
)

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "Asia/Taipei"
	defaultFeedBaseURL = "https://allen0099.github.io/utaipei-course-crawler"
	defaultCacheDir    = "./var/feed-cache"
	defaultRefreshCron = "0 */6 * * *"
	defaultCampus      = "main"
	defaultProdID      = "-//coursecal//Weekly Schedule//ZH-TW"
)

// ExportConfig controls calendar export.
type ExportConfig struct {
	// Occurrences is how many weekly repetitions each event gets.
	Occurrences int `yaml:"occurrences" json:"occurrences"`

	// FallbackPeriodMinutes is the per-period length used when the table has
	// no definition for a slot's last period.
	FallbackPeriodMinutes int `yaml:"fallback_period_minutes" json:"fallback_period_minutes"`

	// Anchor is "on_or_after" (a Monday export starts today) or
	// "strictly_next" (a Monday export starts a week later).
	Anchor string `yaml:"anchor" json:"anchor"`

	ProdID string `yaml:"prod_id" json:"prod_id"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone exported events are anchored in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// FeedBaseURL is the root of the crawler's static JSON/PDF feed.
	FeedBaseURL string `yaml:"feed_base_url" json:"feed_base_url"`

	// CacheDir holds the on-disk HTTP cache for feed files.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// RefreshCron is a cron schedule for warming the feed cache.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`

	Export ExportConfig `yaml:"export" json:"export"`

	// DefaultCampus selects the period table when a request names none.
	DefaultCampus string `yaml:"default_campus" json:"default_campus"`

	Campuses []model.Campus `yaml:"campuses" json:"campuses"`
}

// ErrUnknownCampus is returned by Campus for an unconfigured ID.
var ErrUnknownCampus = errors.New("unknown campus")

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		Timezone:    defaultTimezone,
		FeedBaseURL: defaultFeedBaseURL,
		CacheDir:    defaultCacheDir,
		RefreshCron: defaultRefreshCron,
		LogLevel:    "info",
		LogFormat:   "console",
		Export: ExportConfig{
			Occurrences:           18,
			FallbackPeriodMinutes: 50,
			Anchor:                AnchorOnOrAfter,
			ProdID:                defaultProdID,
		},
		DefaultCampus: defaultCampus,
		Campuses:      DefaultCampuses(),
	}
}

// DefaultCampuses returns the period tables of the main campus (校本部) and
// the Bo'ai campus (博愛校區).
func DefaultCampuses() []model.Campus {
	mainRows := []struct{ start, end, tod string }{
		{"08:10", "09:00", model.Morning},
		{"09:10", "10:00", model.Morning},
		{"10:10", "11:00", model.Morning},
		{"11:10", "12:00", model.Morning},
		{"12:10", "13:00", model.Noon},
		{"13:10", "14:00", model.Noon},
		{"14:10", "15:00", model.Noon},
		{"15:10", "16:00", model.Noon},
		{"16:10", "17:00", model.Noon},
		{"17:10", "18:00", model.Evening},
		{"18:20", "19:10", model.Evening},
		{"19:15", "20:05", model.Evening},
		{"20:10", "21:00", model.Evening},
		{"21:05", "21:55", model.Evening},
	}
	boaiRows := []struct{ start, end, tod string }{
		{"08:00", "08:50", model.Morning},
		{"09:00", "09:50", model.Morning},
		{"10:00", "10:50", model.Morning},
		{"11:00", "11:50", model.Morning},
		{"12:00", "12:50", model.Noon},
		{"13:00", "13:50", model.Noon},
		{"14:00", "14:50", model.Noon},
		{"15:00", "15:50", model.Noon},
		{"16:00", "16:50", model.Noon},
		{"17:00", "17:50", model.Evening},
		{"18:10", "19:00", model.Evening},
		{"19:05", "19:55", model.Evening},
		{"20:00", "20:50", model.Evening},
		{"20:55", "21:45", model.Evening},
	}

	build := func(rows []struct{ start, end, tod string }) []model.PeriodDefinition {
		out := make([]model.PeriodDefinition, 0, len(rows))
		for i, r := range rows {
			out = append(out, model.PeriodDefinition{
				Period:    i + 1,
				StartTime: r.start,
				EndTime:   r.end,
				Label:     fmt.Sprintf("第%d節", i+1),
				TimeOfDay: r.tod,
			})
		}
		return out
	}

	return []model.Campus{
		{ID: "main", Name: "校本部", Periods: build(mainRows)},
		{ID: "secondary", Name: "博愛校區", Periods: build(boaiRows)},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.FeedBaseURL == "" {
		c.FeedBaseURL = defaultFeedBaseURL
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}
	if c.Export.Occurrences <= 0 {
		c.Export.Occurrences = 18
	}
	if c.Export.FallbackPeriodMinutes <= 0 {
		c.Export.FallbackPeriodMinutes = 50
	}
	switch c.Export.Anchor {
	case AnchorOnOrAfter, AnchorStrictlyNext:
	default:
		c.Export.Anchor = AnchorOnOrAfter
	}
	if c.Export.ProdID == "" {
		c.Export.ProdID = defaultProdID
	}
	if len(c.Campuses) == 0 {
		c.Campuses = DefaultCampuses()
	}
	if c.DefaultCampus == "" {
		c.DefaultCampus = c.Campuses[0].ID
	}
}

// Validate checks every campus period table. Normalize should run first.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Campuses))
	for _, cp := range c.Campuses {
		if cp.ID == "" {
			return errors.New("config: campus with empty id")
		}
		if seen[cp.ID] {
			return fmt.Errorf("config: duplicate campus %q", cp.ID)
		}
		seen[cp.ID] = true
		if _, err := cp.Table(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if !seen[c.DefaultCampus] {
		return fmt.Errorf("config: default campus %q: %w", c.DefaultCampus, ErrUnknownCampus)
	}
	return nil
}

// Campus returns the campus with the given ID; an empty ID selects
// DefaultCampus.
func (c *Config) Campus(id string) (model.Campus, error) {
	if id == "" {
		id = c.DefaultCampus
	}
	for _, cp := range c.Campuses {
		if cp.ID == id {
			return cp, nil
		}
	}
	return model.Campus{}, fmt.Errorf("%w: %q", ErrUnknownCampus, id)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is decoded, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically
// (temp file + rename) with 0600 permissions.
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

	tmp, err := os.CreateTemp(dir, ".coursecal-config-*.tmp")
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
