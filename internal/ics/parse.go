package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "coursecal/internal/log"
)

// ExportedEvent is a VEVENT read back from a calendar document.
type ExportedEvent struct {
	UID         string    `json:"uid"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	RawRRule    string    `json:"rrule,omitempty"`
}

// ErrEmptyDocument is returned by Inspect for an empty body.
var ErrEmptyDocument = errors.New("ics: empty document")

// Inspect parses a calendar document into its events.
//
//   - Text values are unescaped with UnescapeText.
//   - DTSTART/DTEND honour a TZID parameter; UTC "Z" values stay UTC.
//   - Events without UID or DTSTART are logged and skipped.
func Inspect(body []byte) ([]ExportedEvent, error) {
	if len(body) == 0 {
		return nil, ErrEmptyDocument
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse: %w", err)
	}

	events := make([]ExportedEvent, 0)
	for _, ve := range cal.Events() {
		ev, perr := inspectVEvent(ve)
		if perr != nil {
			appLog.Error("ics vevent inspect failed", perr)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func inspectVEvent(ve *ical.VEvent) (ExportedEvent, error) {
	var out ExportedEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = UnescapeText(uidProp.Value)

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = UnescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = UnescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = UnescapeText(p.Value)
	}

	start, err := propertyTime(ve.GetProperty(ical.ComponentPropertyDtStart))
	if err != nil {
		return out, fmt.Errorf("uid %s: DTSTART: %w", out.UID, err)
	}
	out.Start = start

	out.End = start
	if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil {
		end, err := propertyTime(p)
		if err != nil {
			return out, fmt.Errorf("uid %s: DTEND: %w", out.UID, err)
		}
		out.End = end
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}
	return out, nil
}

// propertyTime parses a DATE-TIME property using its TZID parameter.
func propertyTime(p *ical.IANAProperty) (time.Time, error) {
	if p == nil {
		return time.Time{}, errors.New("missing")
	}
	v := strings.TrimSpace(p.Value)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	if strings.HasSuffix(v, "Z") {
		return time.Parse(utcLayout, v)
	}

	loc := time.Local
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		l, err := time.LoadLocation(tzs[0])
		if err != nil {
			return time.Time{}, fmt.Errorf("TZID %q: %w", tzs[0], err)
		}
		loc = l
	}
	return time.ParseInLocation(localLayout, v, loc)
}
