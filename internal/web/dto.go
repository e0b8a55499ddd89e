package web

import (
	"time"

	"coursecal/internal/grid"
	"coursecal/internal/ics"
	"coursecal/internal/model"
)

type teacherDTO struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Courses int    `json:"courses"`
}

type unitDTO struct {
	Code     string       `json:"code"`
	Name     string       `json:"name"`
	Teachers []teacherDTO `json:"teachers"`
}

type locationDTO struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Courses int    `json:"courses"`
}

type periodsResponse struct {
	Campus  string                   `json:"campus"`
	Name    string                   `json:"name"`
	Periods []model.PeriodDefinition `json:"periods"`
}

// scheduleResponse is the JSON shape for /api/schedule. Untimed lists
// courses whose time field produced no slot (e.g. time not yet assigned).
type scheduleResponse struct {
	Semester string             `json:"semester"`
	Title    string             `json:"title"`
	Courses  []model.Course     `json:"courses"`
	Slots    []model.WeeklySlot `json:"slots"`
	Untimed  []model.Course     `json:"untimed"`
}

type timetableResponse struct {
	Title     string          `json:"title"`
	Timetable *grid.Timetable `json:"timetable"`
}

type previewResponse struct {
	Title       string             `json:"title"`
	Anchor      time.Time          `json:"anchor"`
	Events      int                `json:"events"`
	Skipped     []ics.SkippedSlot  `json:"skipped"`
	Fallbacks   []ics.FallbackSlot `json:"fallbacks"`
	Occurrences []ics.Occurrence   `json:"occurrences"`
	Truncated   []string           `json:"truncated_uids,omitempty"`
}
