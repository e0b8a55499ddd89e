// Package export wires configuration, the period tables and metrics around
// the calendar serializer.
package export

import (
	"fmt"
	"time"

	"coursecal/internal/config"
	"coursecal/internal/ics"
	appLog "coursecal/internal/log"
	"coursecal/internal/metrics"
	"coursecal/internal/model"
)

// Exporter generates calendar documents with the configured campus tables.
type Exporter struct {
	cfg     *config.Config
	loc     *time.Location
	metrics *metrics.Metrics

	// Now and NewUID are passed through to ics.Options; nil uses the
	// serializer defaults.
	Now    func() time.Time
	NewUID func() string
}

// New resolves the configured time zone.
func New(cfg *config.Config, m *metrics.Metrics) (*Exporter, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("export: timezone %q: %w", cfg.Timezone, err)
	}
	return &Exporter{cfg: cfg, loc: loc, metrics: m}, nil
}

// Location is the zone events are anchored in.
func (e *Exporter) Location() *time.Location { return e.loc }

// Campus resolves a campus ID; empty selects the default campus.
func (e *Exporter) Campus(id string) (model.Campus, error) {
	return e.cfg.Campus(id)
}

// Export renders slots against the campus period table.
func (e *Exporter) Export(slots []model.WeeklySlot, campusID, title string) (*ics.Document, error) {
	campus, err := e.cfg.Campus(campusID)
	if err != nil {
		return nil, err
	}

	doc, err := ics.Generate(slots, campus.Periods, ics.Options{
		Title:          title,
		Location:       e.loc,
		Occurrences:    e.cfg.Export.Occurrences,
		FallbackPeriod: time.Duration(e.cfg.Export.FallbackPeriodMinutes) * time.Minute,
		Anchor:         ics.ParseAnchorPolicy(e.cfg.Export.Anchor),
		ProdID:         e.cfg.Export.ProdID,
		Now:            e.Now,
		NewUID:         e.NewUID,
	})
	if err != nil {
		return nil, err
	}

	skipped := make(map[string]int)
	for _, s := range doc.Skipped {
		skipped[string(s.Reason)]++
	}
	fallbacks := make(map[string]int)
	for _, f := range doc.Fallbacks {
		fallbacks[string(f.Reason)]++
	}
	e.metrics.ObserveExport(doc.Events, skipped, fallbacks)

	appLog.Info("calendar exported",
		"title", doc.Title,
		"campus", campus.ID,
		"anchor", doc.Anchor.Format("2006-01-02"),
		"events", doc.Events,
		"skipped", len(doc.Skipped),
		"fallbacks", len(doc.Fallbacks),
	)
	return doc, nil
}
