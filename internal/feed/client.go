// Package feed reads the crawler's static JSON/PDF feed.
package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"coursecal/internal/course"
	appLog "coursecal/internal/log"
	"coursecal/internal/model"
)

var (
	ErrTeacherNotFound  = errors.New("teacher not found")
	ErrLocationNotFound = errors.New("location not found")
	ErrNoSemester       = errors.New("no semester published")
)

// Client exposes the feed files as typed values.
type Client struct {
	fetcher *Fetcher
}

// NewClient wraps a Fetcher.
func NewClient(f *Fetcher) *Client {
	return &Client{fetcher: f}
}

// Fetcher returns the underlying fetcher.
func (c *Client) Fetcher() *Fetcher { return c.fetcher }

// Semesters reads yms.json.
func (c *Client) Semesters(ctx context.Context) ([]model.YearSemester, error) {
	res, err := c.fetcher.Fetch(ctx, "yms.json")
	if err != nil {
		return nil, err
	}
	return course.DecodeSemesters(bytes.NewReader(res.Body))
}

// DefaultSemester returns the entry flagged default, else the last one.
func (c *Client) DefaultSemester(ctx context.Context) (model.YearSemester, error) {
	list, err := c.Semesters(ctx)
	if err != nil {
		return model.YearSemester{}, err
	}
	if len(list) == 0 {
		return model.YearSemester{}, ErrNoSemester
	}
	for _, s := range list {
		if s.Default {
			return s, nil
		}
	}
	return list[len(list)-1], nil
}

// Units reads <year>/<semester>/teachers.json for a "113#1" code.
func (c *Client) Units(ctx context.Context, yms string) ([]model.Unit, error) {
	path, err := semesterPath(yms, "teachers.json")
	if err != nil {
		return nil, err
	}
	res, err := c.fetcher.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	units, err := course.DecodeUnits(bytes.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("feed: %s: %w", path, err)
	}
	return units, nil
}

// Locations reads <year>/<semester>/locations.json.
func (c *Client) Locations(ctx context.Context, yms string) ([]model.Location, error) {
	path, err := semesterPath(yms, "locations.json")
	if err != nil {
		return nil, err
	}
	res, err := c.fetcher.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	locs, err := course.DecodeLocations(bytes.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("feed: %s: %w", path, err)
	}
	return locs, nil
}

// Calendars reads calendar.json and fills in each PDF link.
func (c *Client) Calendars(ctx context.Context) ([]model.CalendarItem, error) {
	res, err := c.fetcher.Fetch(ctx, "calendar.json")
	if err != nil {
		return nil, err
	}
	items, err := course.DecodeCalendars(bytes.NewReader(res.Body))
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Link = CalendarPDFPath(items[i])
	}
	return items, nil
}

// CalendarPDFPath is the feed path of a campus calendar PDF.
func CalendarPDFPath(item model.CalendarItem) string {
	return fmt.Sprintf("calendar/%d/%s.pdf", item.Year, item.Title)
}

// Announcements reads announcement.json.
func (c *Client) Announcements(ctx context.Context) ([]model.Announcement, error) {
	res, err := c.fetcher.Fetch(ctx, "announcement.json")
	if err != nil {
		return nil, err
	}
	return course.DecodeAnnouncements(bytes.NewReader(res.Body))
}

// FindTeacher looks a teacher up by code. An empty unit searches all units.
func (c *Client) FindTeacher(ctx context.Context, yms, unit, teacher string) (model.Teacher, error) {
	units, err := c.Units(ctx, yms)
	if err != nil {
		return model.Teacher{}, err
	}
	for _, u := range units {
		if unit != "" && u.Code != unit {
			continue
		}
		for _, t := range u.Teachers {
			if t.Code == teacher {
				return t, nil
			}
		}
	}
	return model.Teacher{}, fmt.Errorf("%w: %s (unit %q, %s)", ErrTeacherNotFound, teacher, unit, yms)
}

// FindLocation looks a classroom up by code.
func (c *Client) FindLocation(ctx context.Context, yms, code string) (model.Location, error) {
	locs, err := c.Locations(ctx, yms)
	if err != nil {
		return model.Location{}, err
	}
	for _, l := range locs {
		if l.Code == code {
			return l, nil
		}
	}
	return model.Location{}, fmt.Errorf("%w: %s (%s)", ErrLocationNotFound, code, yms)
}

// Refresh warms the disk cache with the index files and the default
// semester's teacher and location lists. Individual failures are returned
// together; a failing yms.json stops the refresh.
func (c *Client) Refresh(ctx context.Context) []error {
	sem, err := c.DefaultSemester(ctx)
	if err != nil {
		return []error{err}
	}

	paths := []string{"calendar.json", "announcement.json"}
	for _, name := range []string{"teachers.json", "locations.json"} {
		p, err := semesterPath(sem.Code, name)
		if err != nil {
			return []error{err}
		}
		paths = append(paths, p)
	}

	results, errs := c.fetcher.FetchAll(ctx, paths)
	appLog.Info("feed refresh completed", "semester", sem.Code, "fetched", len(results), "failed", len(errs))
	return errs
}

func semesterPath(yms, name string) (string, error) {
	year, semester, err := course.ParseYMS(yms)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d/%d/%s", year, semester, name), nil
}
