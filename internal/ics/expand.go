package ics

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "coursecal/internal/log"
)

const defaultMaxOccurrencesPerEvent = 60

// Occurrence is one concrete meeting of an exported event.
type Occurrence struct {
	UID      string `json:"uid"`
	Summary  string `json:"summary"`
	Location string `json:"location"`

	// Week counts from 1 for the first meeting of the event.
	Week int `json:"week"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ExpandResult wraps the expanded occurrences and the UIDs that hit the cap.
type ExpandResult struct {
	Occurrences     []Occurrence `json:"occurrences"`
	TruncatedEvents []string     `json:"truncated_uids,omitempty"`
}

// Expand turns each event's RRULE into dated occurrences sorted by start.
// Events without RRULE yield one occurrence; events with an unparsable RRULE
// are logged and skipped. maxPerEvent <= 0 uses a default cap.
func Expand(events []ExportedEvent, maxPerEvent int) ExpandResult {
	if maxPerEvent <= 0 {
		maxPerEvent = defaultMaxOccurrencesPerEvent
	}

	var result ExpandResult
	result.Occurrences = make([]Occurrence, 0)

	for _, ev := range events {
		starts, capped, ok := eventStarts(ev, maxPerEvent)
		if !ok {
			continue
		}
		if capped {
			result.TruncatedEvents = append(result.TruncatedEvents, ev.UID)
			appLog.Info("expand: truncated occurrences", "uid", ev.UID, "cap", maxPerEvent)
		}

		dur := ev.End.Sub(ev.Start)
		for i, st := range starts {
			result.Occurrences = append(result.Occurrences, Occurrence{
				UID:      ev.UID,
				Summary:  ev.Summary,
				Location: ev.Location,
				Week:     i + 1,
				Start:    st,
				End:      st.Add(dur),
			})
		}
	}

	sort.SliceStable(result.Occurrences, func(i, j int) bool {
		return result.Occurrences[i].Start.Before(result.Occurrences[j].Start)
	})
	return result
}

func eventStarts(ev ExportedEvent, max int) ([]time.Time, bool, bool) {
	if ev.RawRRule == "" {
		return []time.Time{ev.Start}, false, true
	}

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false, false
	}
	r.DTStart(ev.Start)

	// Open-ended rules stop at max.
	var starts []time.Time
	iter := r.Iterator()
	for {
		t, ok := iter()
		if !ok {
			return starts, false, true
		}
		if len(starts) == max {
			return starts, true, true
		}
		starts = append(starts, t)
	}
}
