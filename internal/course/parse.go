// Package course turns crawler course records into weekly time slots.
package course

import (
	"regexp"
	"strconv"

	"golang.org/x/text/unicode/norm"

	appLog "coursecal/internal/log"
	"coursecal/internal/model"
)

// segmentPattern matches one "(<glyph>) <start>[-<end>]" segment.
var segmentPattern = regexp.MustCompile(`\((\S)\)\s*(\d+)(?:-(\d+))?`)

// dayIndex maps day glyphs to Monday=0 .. Sunday=6.
var dayIndex = map[string]int{
	"一": 0,
	"二": 1,
	"三": 2,
	"四": 3,
	"五": 4,
	"六": 5,
	"日": 6,
}

// Meeting is one parsed segment of a time string.
type Meeting struct {
	Day      int
	Period   int
	Duration int
}

// ParseTime scans s left to right and returns the meetings in order of
// appearance. Segments with an unknown glyph, unparsable numbers, a start
// period below 1, an end before the start or a period above
// model.MaxPeriod are dropped.
//
// Full-width forms ("（一）８－１０") are folded to ASCII before scanning.
func ParseTime(s string) []Meeting {
	if s == "" {
		return nil
	}
	s = norm.NFKC.String(s)

	var out []Meeting
	for _, m := range segmentPattern.FindAllStringSubmatch(s, -1) {
		day, ok := dayIndex[m[1]]
		if !ok {
			appLog.Debug("course time: unknown day glyph", "segment", m[0])
			continue
		}
		start, err := strconv.Atoi(m[2])
		if err != nil || start < 1 || start > model.MaxPeriod {
			appLog.Debug("course time: bad start period", "segment", m[0])
			continue
		}
		end := start
		if m[3] != "" {
			end, err = strconv.Atoi(m[3])
			if err != nil || end > model.MaxPeriod {
				appLog.Debug("course time: bad end period", "segment", m[0])
				continue
			}
		}
		duration := end - start + 1
		if duration < 1 {
			appLog.Debug("course time: end before start", "segment", m[0], "start", start, "end", end)
			continue
		}
		out = append(out, Meeting{Day: day, Period: start, Duration: duration})
	}
	return out
}

// ParseCourse expands one course record into weekly slots. An empty or
// unparsable time yields no slots.
func ParseCourse(c model.Course) []model.WeeklySlot {
	meetings := ParseTime(c.Time)
	if len(meetings) == 0 {
		return nil
	}
	out := make([]model.WeeklySlot, 0, len(meetings))
	for _, m := range meetings {
		out = append(out, model.WeeklySlot{
			ID:       model.SlotID(c.Code, m.Day, m.Period),
			Code:     c.Code,
			Name:     c.Name,
			Teacher:  c.Teacher,
			Class:    c.Class,
			Day:      m.Day,
			Period:   m.Period,
			Duration: m.Duration,
		})
	}
	return out
}

// ParseCourses flattens the slots of every record, keeping record order and
// per-record order.
func ParseCourses(cs []model.Course) []model.WeeklySlot {
	out := make([]model.WeeklySlot, 0, len(cs))
	for _, c := range cs {
		out = append(out, ParseCourse(c)...)
	}
	return out
}
