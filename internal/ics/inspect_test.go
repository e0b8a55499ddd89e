package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursecal/internal/model"
)

func TestInspectGenerated(t *testing.T) {
	t.Parallel()

	slots := []model.WeeklySlot{slot("A", 0, 1, 2), slot("B", 2, 5, 1)}
	doc, err := Generate(slots, testPeriods(), testOptions(t))
	require.NoError(t, err)

	events, err := Inspect(doc.Bytes())
	require.NoError(t, err)
	require.Len(t, events, 2)

	loc := taipei(t)
	a := events[0]
	assert.Equal(t, "course-A-0-1-uid1@coursecal", a.UID)
	assert.Equal(t, "課程 A", a.Summary)
	assert.Equal(t, "資科二", a.Location)
	assert.True(t, strings.HasPrefix(a.Description, "課程代碼: A\n授課教師: 王小明"))
	assert.True(t, time.Date(2024, time.September, 9, 8, 10, 0, 0, loc).Equal(a.Start))
	assert.True(t, time.Date(2024, time.September, 9, 10, 0, 0, 0, loc).Equal(a.End))
	assert.NotEmpty(t, a.RawRRule)

	b := events[1]
	assert.True(t, time.Date(2024, time.September, 11, 12, 10, 0, 0, loc).Equal(b.Start))
}

func TestInspectEmpty(t *testing.T) {
	t.Parallel()

	_, err := Inspect(nil)
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestExpandWeekly(t *testing.T) {
	t.Parallel()

	slots := []model.WeeklySlot{slot("A", 0, 1, 2), slot("B", 2, 5, 1)}
	doc, err := Generate(slots, testPeriods(), testOptions(t))
	require.NoError(t, err)
	events, err := Inspect(doc.Bytes())
	require.NoError(t, err)

	res := Expand(events, 0)
	require.Len(t, res.Occurrences, 2*DefaultOccurrences)
	assert.Empty(t, res.TruncatedEvents)

	var weeks []Occurrence
	for _, o := range res.Occurrences {
		if strings.HasPrefix(o.UID, "course-A-") {
			weeks = append(weeks, o)
		}
	}
	require.Len(t, weeks, DefaultOccurrences)
	for i := 1; i < len(weeks); i++ {
		assert.Equal(t, 7*24*time.Hour, weeks[i].Start.Sub(weeks[i-1].Start))
		assert.Equal(t, i+1, weeks[i].Week)
		assert.Equal(t, 110*time.Minute, weeks[i].End.Sub(weeks[i].Start))
	}

	for i := 1; i < len(res.Occurrences); i++ {
		assert.False(t, res.Occurrences[i].Start.Before(res.Occurrences[i-1].Start))
	}
}

func TestExpandCapAndPlainEvents(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, time.September, 9, 8, 10, 0, 0, time.UTC)
	events := []ExportedEvent{
		{UID: "open", Start: start, End: start.Add(time.Hour), RawRRule: "FREQ=WEEKLY"},
		{UID: "once", Start: start.Add(time.Hour), End: start.Add(2 * time.Hour)},
		{UID: "broken", Start: start, End: start, RawRRule: "FREQ=SOMETIMES"},
	}

	res := Expand(events, 5)
	assert.Len(t, res.Occurrences, 6)
	assert.Equal(t, []string{"open"}, res.TruncatedEvents)
}
