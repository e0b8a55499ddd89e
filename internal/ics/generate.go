// Package ics builds, inspects and expands iCalendar documents for weekly
// course schedules.
package ics

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"coursecal/internal/model"
)

const (
	// DefaultOccurrences approximates one semester of weekly meetings.
	DefaultOccurrences = 18
	// DefaultFallbackPeriod is the per-period length assumed when the period
	// table has no entry for a slot's last period.
	DefaultFallbackPeriod = 50 * time.Minute
	maxFallbackPeriod     = 24 * time.Hour
	DefaultTitle          = "課程表"
	DefaultProdID         = "-//coursecal//Weekly Schedule//ZH-TW"

	uidDomain     = "coursecal"
	utcLayout     = "20060102T150405Z"
	localLayout   = "20060102T150405"
	fileExtension = ".ics"
)

// AnchorPolicy decides which Monday the first exported week starts on.
type AnchorPolicy int

const (
	// AnchorOnOrAfter starts on the Monday on or after today, so an export
	// made on a Monday starts that same day.
	AnchorOnOrAfter AnchorPolicy = iota
	// AnchorStrictlyNext always starts on a later Monday, one week out when
	// today is Monday.
	AnchorStrictlyNext
)

// ParseAnchorPolicy maps config values to a policy; unknown values map to
// AnchorOnOrAfter.
func ParseAnchorPolicy(v string) AnchorPolicy {
	if v == "strictly_next" {
		return AnchorStrictlyNext
	}
	return AnchorOnOrAfter
}

var (
	ErrNoLocation         = errors.New("ics: location is required")
	ErrInvalidOccurrences = errors.New("ics: occurrences must be positive")
	ErrInvalidFallback    = errors.New("ics: fallback period must be between 0 and 24h")
)

// Options controls Generate. Zero values pick the package defaults, except
// Location which is required.
type Options struct {
	Title string

	// Location anchors event times; its name is written as TZID.
	Location *time.Location

	Occurrences    int
	FallbackPeriod time.Duration
	Anchor         AnchorPolicy
	ProdID         string

	// Now and NewUID are injectable for reproducible output.
	Now    func() time.Time
	NewUID func() string
}

// SkipReason explains why a slot produced no event.
type SkipReason string

const (
	SkipUnknownPeriod SkipReason = "unknown_period"
	SkipInvalidSlot   SkipReason = "invalid_slot"
)

// SkippedSlot is a slot that was dropped from the document.
type SkippedSlot struct {
	Slot   model.WeeklySlot `json:"slot"`
	Reason SkipReason       `json:"reason"`
}

// FallbackReason explains why an event end was computed from the fallback
// period length instead of the period table.
type FallbackReason string

const (
	FallbackMissingEndPeriod FallbackReason = "missing_end_period"
	FallbackEndBeforeStart   FallbackReason = "end_not_after_start"
)

// FallbackSlot records an event whose end time used the fallback length.
type FallbackSlot struct {
	Slot      model.WeeklySlot `json:"slot"`
	EndPeriod int              `json:"end_period"`
	Reason    FallbackReason   `json:"reason"`
}

// Document is one generated calendar. Lines holds unfolded content lines;
// String and Bytes apply folding.
type Document struct {
	Title  string
	Anchor time.Time
	Lines  []string

	Events    int
	Skipped   []SkippedSlot
	Fallbacks []FallbackSlot
}

// String renders the folded document with CRLF line endings.
func (d *Document) String() string {
	var b strings.Builder
	for _, l := range d.Lines {
		b.WriteString(FoldLine(l))
		b.WriteString(CRLF)
	}
	return b.String()
}

// Bytes is String as a byte slice.
func (d *Document) Bytes() []byte {
	return []byte(d.String())
}

// Filename returns the download name for the document.
func (d *Document) Filename() string {
	return Filename(d.Title)
}

// AnchorMonday returns local midnight of the Monday the export starts on.
func AnchorMonday(now time.Time, policy AnchorPolicy) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	offset := (8 - int(now.Weekday())) % 7
	if offset == 0 && policy == AnchorStrictlyNext {
		offset = 7
	}
	return midnight.AddDate(0, 0, offset)
}

// Generate renders slots as weekly recurring events. Slots whose period is
// not in periods are skipped and reported; slots whose last period is
// missing get an end of start + duration*FallbackPeriod and are reported.
// A malformed period table or invalid options fail the whole document.
func Generate(slots []model.WeeklySlot, periods []model.PeriodDefinition, opts Options) (*Document, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	table, err := model.NewPeriodTable(periods)
	if err != nil {
		return nil, fmt.Errorf("ics: %w", err)
	}

	now := opts.Now().In(opts.Location)
	stamp := now.UTC().Format(utcLayout)
	tzid := opts.Location.String()
	rule := recurrenceRule(opts.Occurrences)

	doc := &Document{
		Title:  opts.Title,
		Anchor: AnchorMonday(now, opts.Anchor),
	}

	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:" + opts.ProdID,
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
		"X-WR-CALNAME:" + EscapeText(opts.Title),
		"X-WR-TIMEZONE:" + tzid,
	}

	for _, s := range slots {
		if s.Day < 0 || s.Day > 6 || s.Period < 1 || s.Duration < 1 ||
			s.Period > model.MaxPeriod || s.Duration > model.MaxPeriod {
			doc.Skipped = append(doc.Skipped, SkippedSlot{Slot: s, Reason: SkipInvalidSlot})
			continue
		}
		startDef, ok := table[s.Period]
		if !ok {
			doc.Skipped = append(doc.Skipped, SkippedSlot{Slot: s, Reason: SkipUnknownPeriod})
			continue
		}

		day := doc.Anchor.AddDate(0, 0, s.Day)
		sh, sm, _ := startDef.Start()
		start := time.Date(day.Year(), day.Month(), day.Day(), sh, sm, 0, 0, opts.Location)

		end, reason := eventEnd(table, s, start, opts.FallbackPeriod)
		if reason != "" {
			doc.Fallbacks = append(doc.Fallbacks, FallbackSlot{Slot: s, EndPeriod: s.EndPeriod(), Reason: reason})
		}

		uid := fmt.Sprintf("course-%s-%d-%d-%s@%s", s.Code, s.Day, s.Period, opts.NewUID(), uidDomain)

		lines = append(lines,
			"BEGIN:VEVENT",
			"UID:"+EscapeText(uid),
			"DTSTAMP:"+stamp,
			"CREATED:"+stamp,
			"LAST-MODIFIED:"+stamp,
			"DTSTART;TZID="+tzid+":"+start.Format(localLayout),
			"DTEND;TZID="+tzid+":"+end.Format(localLayout),
			rule,
			"SUMMARY:"+EscapeText(s.Name),
			"DESCRIPTION:"+EscapeText(description(s)),
		)
		if s.Class != "" {
			lines = append(lines, "LOCATION:"+EscapeText(s.Class))
		}
		lines = append(lines, "END:VEVENT")
		doc.Events++
	}

	doc.Lines = append(lines, "END:VCALENDAR")
	return doc, nil
}

func (o *Options) normalize() error {
	if o.Location == nil {
		return ErrNoLocation
	}
	if o.Occurrences < 0 {
		return ErrInvalidOccurrences
	}
	if o.Occurrences == 0 {
		o.Occurrences = DefaultOccurrences
	}
	if o.FallbackPeriod < 0 || o.FallbackPeriod > maxFallbackPeriod {
		return ErrInvalidFallback
	}
	if o.FallbackPeriod == 0 {
		o.FallbackPeriod = DefaultFallbackPeriod
	}
	if strings.TrimSpace(o.Title) == "" {
		o.Title = DefaultTitle
	}
	if o.ProdID == "" {
		o.ProdID = DefaultProdID
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewUID == nil {
		o.NewUID = uuid.NewString
	}
	return nil
}

// eventEnd returns the end of the slot's last period, or the fallback end
// and the reason it was used.
func eventEnd(table model.PeriodTable, s model.WeeklySlot, start time.Time, fallback time.Duration) (time.Time, FallbackReason) {
	fallbackEnd := start.Add(time.Duration(s.Duration) * fallback)

	endDef, ok := table[s.EndPeriod()]
	if !ok {
		return fallbackEnd, FallbackMissingEndPeriod
	}
	eh, em, _ := endDef.End()
	end := time.Date(start.Year(), start.Month(), start.Day(), eh, em, 0, 0, start.Location())
	if !end.After(start) {
		return fallbackEnd, FallbackEndBeforeStart
	}
	return end, ""
}

func recurrenceRule(count int) string {
	opt := rrule.ROption{Freq: rrule.WEEKLY, Count: count}
	return "RRULE:" + opt.RRuleString()
}

func description(s model.WeeklySlot) string {
	parts := []string{
		"課程代碼: " + s.Code,
		"授課教師: " + s.Teacher,
		"班級: " + s.Class,
	}
	if s.Duration > 1 {
		parts = append(parts, "課程時長: "+strconv.Itoa(s.Duration)+"節課")
	}
	return strings.Join(parts, "\n")
}

// Filename keeps letters, digits, spaces, '-' and '_' from title and appends
// the calendar extension. An empty result becomes "schedule.ics".
func Filename(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == ' ', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	name := strings.TrimSpace(b.String())
	if name == "" {
		name = "schedule"
	}
	return name + fileExtension
}
