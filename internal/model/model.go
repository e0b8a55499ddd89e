package model

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Course is a single course record as published by the crawler feed.
// Code is not unique across class sections.
type Course struct {
	Code    string `json:"code" validate:"required"`
	Name    string `json:"name" validate:"required"`
	Class   string `json:"class"`
	Time    string `json:"time"`
	Teacher string `json:"teacher"`
}

// WeeklySlot is one weekly meeting of a course, derived from Course.Time.
//
// ID is a display key (code-day-period) and is NOT unique: duplicate feed
// entries produce identical IDs. Use it for keyed rendering only.
type WeeklySlot struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Name    string `json:"name"`
	Teacher string `json:"teacher"`
	Class   string `json:"class"`

	// Day is 0 (Monday) .. 6 (Sunday).
	Day int `json:"day"`
	// Period is the first occupied period, 1-based.
	Period int `json:"period"`
	// Duration is the number of contiguous periods, inclusive.
	Duration int `json:"duration"`
}

// EndPeriod returns the last period occupied by the slot.
func (s WeeklySlot) EndPeriod() int {
	return s.Period + s.Duration - 1
}

// SlotID builds the display key for a slot.
func SlotID(code string, day, period int) string {
	return code + "-" + strconv.Itoa(day) + "-" + strconv.Itoa(period)
}

// Time-of-day groups used by the weekly grid.
const (
	Morning = "morning"
	Noon    = "noon"
	Evening = "evening"
)

// MaxPeriod is the highest period number accepted anywhere. Feed text and
// period tables beyond it are rejected.
const MaxPeriod = 99

// PeriodDefinition maps a period number to wall-clock times for one campus.
type PeriodDefinition struct {
	Period    int    `yaml:"period" json:"period"`
	StartTime string `yaml:"start_time" json:"startTime"`
	EndTime   string `yaml:"end_time" json:"endTime"`
	Label     string `yaml:"label" json:"label"`
	TimeOfDay string `yaml:"time_of_day,omitempty" json:"timeOfDay,omitempty"`
}

// ParseClock parses a 24-hour "HH:MM" string.
func ParseClock(v string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(v), ":")
	if !ok {
		return 0, 0, fmt.Errorf("clock %q: missing ':'", v)
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("clock %q: invalid hour", v)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 || len(m) != 2 {
		return 0, 0, fmt.Errorf("clock %q: invalid minute", v)
	}
	return hour, minute, nil
}

// Start returns the parsed start clock.
func (p PeriodDefinition) Start() (int, int, error) { return ParseClock(p.StartTime) }

// End returns the parsed end clock.
func (p PeriodDefinition) End() (int, int, error) { return ParseClock(p.EndTime) }

// ErrInvalidPeriodTable is returned when a period table breaks its invariants.
var ErrInvalidPeriodTable = errors.New("invalid period table")

// PeriodTable indexes a campus period list by period number. The source list
// need not be sorted.
type PeriodTable map[int]PeriodDefinition

// NewPeriodTable validates defs (unique period numbers, HH:MM clocks) and
// returns them indexed by period.
func NewPeriodTable(defs []PeriodDefinition) (PeriodTable, error) {
	t := make(PeriodTable, len(defs))
	for _, d := range defs {
		if d.Period < 1 || d.Period > MaxPeriod {
			return nil, fmt.Errorf("%w: period %d out of range", ErrInvalidPeriodTable, d.Period)
		}
		if _, dup := t[d.Period]; dup {
			return nil, fmt.Errorf("%w: duplicate period %d", ErrInvalidPeriodTable, d.Period)
		}
		if _, _, err := d.Start(); err != nil {
			return nil, fmt.Errorf("%w: period %d start: %v", ErrInvalidPeriodTable, d.Period, err)
		}
		if _, _, err := d.End(); err != nil {
			return nil, fmt.Errorf("%w: period %d end: %v", ErrInvalidPeriodTable, d.Period, err)
		}
		t[d.Period] = d
	}
	return t, nil
}

// Sorted returns the definitions ordered by period number.
func (t PeriodTable) Sorted() []PeriodDefinition {
	out := make([]PeriodDefinition, 0, len(t))
	for _, d := range t {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}

// Campus is a named period table.
type Campus struct {
	ID      string             `yaml:"id" json:"id"`
	Name    string             `yaml:"name" json:"name"`
	Periods []PeriodDefinition `yaml:"periods" json:"periods"`
}

// Table validates and indexes the campus periods.
func (c Campus) Table() (PeriodTable, error) {
	t, err := NewPeriodTable(c.Periods)
	if err != nil {
		return nil, fmt.Errorf("campus %q: %w", c.ID, err)
	}
	return t, nil
}
