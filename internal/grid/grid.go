// Package grid lays weekly slots out on a day x period timetable.
package grid

import (
	"coursecal/internal/model"
)

// Days is the number of day columns, Monday first.
const Days = 7

// DayNames are the column headers.
var DayNames = [Days]string{"星期一", "星期二", "星期三", "星期四", "星期五", "星期六", "星期日"}

// Cell is one day/period position. Slots lists every slot starting here;
// more than one means a clash or a duplicated feed entry. CoveredBy lists
// slots that started in an earlier period and still occupy this one.
type Cell struct {
	Slots     []model.WeeklySlot `json:"slots,omitempty"`
	CoveredBy []model.WeeklySlot `json:"covered_by,omitempty"`
}

// Empty reports whether nothing starts in or covers the cell.
func (c Cell) Empty() bool {
	return len(c.Slots) == 0 && len(c.CoveredBy) == 0
}

// Row is one period across the week.
type Row struct {
	Period model.PeriodDefinition `json:"period"`
	Cells  [Days]Cell             `json:"cells"`
}

// Section groups consecutive rows of one time of day.
type Section struct {
	TimeOfDay string `json:"time_of_day"`
	Rows      []Row  `json:"rows"`
}

// Timetable is the rendered grid for one campus.
type Timetable struct {
	Campus   string    `json:"campus"`
	Name     string    `json:"name"`
	Sections []Section `json:"sections"`

	// Colors maps course code to a palette index, in first-appearance order.
	Colors map[string]int `json:"colors"`

	// Unplaced holds slots whose starting period is not in the table.
	Unplaced []model.WeeklySlot `json:"unplaced,omitempty"`
}

// Palette is the number of distinct course colors before reuse.
const Palette = 8

// Build lays slots out on the campus period table. It fails only when the
// table itself is invalid.
func Build(slots []model.WeeklySlot, campus model.Campus) (*Timetable, error) {
	table, err := campus.Table()
	if err != nil {
		return nil, err
	}
	periods := table.Sorted()

	rowOf := make(map[int]int, len(periods))
	rows := make([]Row, len(periods))
	for i, p := range periods {
		rowOf[p.Period] = i
		rows[i].Period = p
	}

	tt := &Timetable{
		Campus: campus.ID,
		Name:   campus.Name,
		Colors: make(map[string]int),
	}

	next := 0
	for _, s := range slots {
		if _, ok := tt.Colors[s.Code]; !ok {
			tt.Colors[s.Code] = next % Palette
			next++
		}
		i, ok := rowOf[s.Period]
		if !ok || s.Day < 0 || s.Day >= Days {
			tt.Unplaced = append(tt.Unplaced, s)
			continue
		}
		rows[i].Cells[s.Day].Slots = append(rows[i].Cells[s.Day].Slots, s)
		last := s.EndPeriod()
		for j := i + 1; j < len(rows) && rows[j].Period.Period <= last; j++ {
			rows[j].Cells[s.Day].CoveredBy = append(rows[j].Cells[s.Day].CoveredBy, s)
		}
	}

	tt.Sections = group(rows)
	return tt, nil
}

// group splits rows into runs of equal TimeOfDay, keeping period order.
// Rows without a TimeOfDay join the preceding run.
func group(rows []Row) []Section {
	var out []Section
	for _, r := range rows {
		tod := r.Period.TimeOfDay
		n := len(out)
		if n > 0 && (tod == "" || out[n-1].TimeOfDay == tod) {
			out[n-1].Rows = append(out[n-1].Rows, r)
			continue
		}
		out = append(out, Section{TimeOfDay: tod, Rows: []Row{r}})
	}
	return out
}

// At returns the cell for a day and period, or false when the period is
// not in the timetable.
func (t *Timetable) At(day, period int) (Cell, bool) {
	if day < 0 || day >= Days {
		return Cell{}, false
	}
	for _, sec := range t.Sections {
		for _, r := range sec.Rows {
			if r.Period.Period == period {
				return r.Cells[day], true
			}
		}
	}
	return Cell{}, false
}

// Index groups slots by display ID. IDs are not unique, so each key keeps
// every slot that shares it, in input order.
func Index(slots []model.WeeklySlot) map[string][]model.WeeklySlot {
	out := make(map[string][]model.WeeklySlot, len(slots))
	for _, s := range slots {
		out[s.ID] = append(out[s.ID], s)
	}
	return out
}
