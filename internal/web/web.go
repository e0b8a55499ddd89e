package web

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"coursecal/internal/config"
	"coursecal/internal/course"
	"coursecal/internal/export"
	"coursecal/internal/feed"
	"coursecal/internal/grid"
	"coursecal/internal/ics"
	appLog "coursecal/internal/log"
	"coursecal/internal/metrics"
	"coursecal/internal/model"
)

// Server provides the HTTP API over the course feed.
type Server struct {
	cfg      *config.Config
	feed     *feed.Client
	blobs    *feed.BlobCache
	exporter *export.Exporter
	metrics  *metrics.Metrics
	mux      *http.ServeMux
}

// NewServer constructs a new Server. blobs is owned by the caller.
func NewServer(cfg *config.Config, client *feed.Client, blobs *feed.BlobCache, exp *export.Exporter, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:      cfg,
		feed:     client,
		blobs:    blobs,
		exporter: exp,
		metrics:  m,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", s.metrics.Handler())

	s.mux.HandleFunc("/api/semesters", s.handleSemesters)
	s.mux.HandleFunc("/api/units", s.handleUnits)
	s.mux.HandleFunc("/api/locations", s.handleLocations)
	s.mux.HandleFunc("/api/calendars", s.handleCalendars)
	s.mux.HandleFunc("/api/announcements", s.handleAnnouncements)
	s.mux.HandleFunc("/api/periods", s.handlePeriods)

	s.mux.HandleFunc("/api/schedule", s.handleSchedule)
	s.mux.HandleFunc("/api/timetable", s.handleTimetable)
	s.mux.HandleFunc("/api/export.ics", s.handleExport)
	s.mux.HandleFunc("/api/preview", s.handlePreview)

	// Feed PDFs (calendar/<year>/<title>.pdf, timetable.pdf) via the blob cache.
	s.mux.HandleFunc("/files/", s.handleFile)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleSemesters(w http.ResponseWriter, r *http.Request) {
	list, err := s.feed.Semesters(r.Context())
	if err != nil {
		s.fail(w, "semesters", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	yms, err := s.semester(r)
	if err != nil {
		s.fail(w, "units", err)
		return
	}
	units, err := s.feed.Units(r.Context(), yms)
	if err != nil {
		s.fail(w, "units", err)
		return
	}

	out := make([]unitDTO, 0, len(units))
	for _, u := range units {
		dto := unitDTO{Code: u.Code, Name: u.Name, Teachers: make([]teacherDTO, 0, len(u.Teachers))}
		for _, t := range u.Teachers {
			dto.Teachers = append(dto.Teachers, teacherDTO{Code: t.Code, Name: t.Name, Courses: len(t.Courses)})
		}
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	yms, err := s.semester(r)
	if err != nil {
		s.fail(w, "locations", err)
		return
	}
	locs, err := s.feed.Locations(r.Context(), yms)
	if err != nil {
		s.fail(w, "locations", err)
		return
	}
	out := make([]locationDTO, 0, len(locs))
	for _, l := range locs {
		out = append(out, locationDTO{Code: l.Code, Name: l.Name, Courses: len(l.Courses)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCalendars(w http.ResponseWriter, r *http.Request) {
	items, err := s.feed.Calendars(r.Context())
	if err != nil {
		s.fail(w, "calendars", err)
		return
	}
	for i := range items {
		items[i].Link = "/files/" + items[i].Link
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleAnnouncements(w http.ResponseWriter, r *http.Request) {
	items, err := s.feed.Announcements(r.Context())
	if err != nil {
		s.fail(w, "announcements", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handlePeriods(w http.ResponseWriter, r *http.Request) {
	campus, err := s.exporter.Campus(r.URL.Query().Get("campus"))
	if err != nil {
		s.fail(w, "periods", err)
		return
	}
	table, err := campus.Table()
	if err != nil {
		s.fail(w, "periods", err)
		return
	}
	writeJSON(w, http.StatusOK, periodsResponse{Campus: campus.ID, Name: campus.Name, Periods: table.Sorted()})
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	sch, err := s.resolveSchedule(r)
	if err != nil {
		s.fail(w, "schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, sch)
}

func (s *Server) handleTimetable(w http.ResponseWriter, r *http.Request) {
	sch, err := s.resolveSchedule(r)
	if err != nil {
		s.fail(w, "timetable", err)
		return
	}
	campus, err := s.exporter.Campus(r.URL.Query().Get("campus"))
	if err != nil {
		s.fail(w, "timetable", err)
		return
	}
	tt, err := grid.Build(sch.Slots, campus)
	if err != nil {
		s.fail(w, "timetable", err)
		return
	}
	writeJSON(w, http.StatusOK, timetableResponse{Title: sch.Title, Timetable: tt})
}

// handleExport serves the schedule as an iCalendar attachment. Skipped
// slots and fallback ends are reported in response headers.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	doc, err := s.exportSchedule(r)
	if err != nil {
		s.fail(w, "export", err)
		return
	}

	body := doc.Bytes()
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename()}))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("X-Events", strconv.Itoa(doc.Events))
	w.Header().Set("X-Skipped-Slots", strconv.Itoa(len(doc.Skipped)))
	w.Header().Set("X-Fallback-Ends", strconv.Itoa(len(doc.Fallbacks)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handlePreview reads the generated document back and lists every dated
// meeting it will create in a calendar application.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	doc, err := s.exportSchedule(r)
	if err != nil {
		s.fail(w, "preview", err)
		return
	}
	events, err := ics.Inspect(doc.Bytes())
	if err != nil {
		s.fail(w, "preview", err)
		return
	}
	expanded := ics.Expand(events, parseIntDefault(r.URL.Query().Get("max"), 0))

	writeJSON(w, http.StatusOK, previewResponse{
		Title:       doc.Title,
		Anchor:      doc.Anchor,
		Events:      doc.Events,
		Skipped:     doc.Skipped,
		Fallbacks:   doc.Fallbacks,
		Occurrences: expanded.Occurrences,
		Truncated:   expanded.TruncatedEvents,
	})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/files/")
	if path == "" || strings.Contains(path, "..") || !strings.HasSuffix(path, ".pdf") {
		http.NotFound(w, r)
		return
	}
	body, err := s.blobs.Get(r.Context(), path)
	if err != nil {
		s.fail(w, "file", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) exportSchedule(r *http.Request) (*ics.Document, error) {
	sch, err := s.resolveSchedule(r)
	if err != nil {
		return nil, err
	}
	title := sch.Title
	if t := strings.TrimSpace(r.URL.Query().Get("title")); t != "" {
		title = t
	}
	return s.exporter.Export(sch.Slots, r.URL.Query().Get("campus"), title)
}

// resolveSchedule loads the courses for ?teacher= (optionally narrowed by
// ?unit=) or ?location= in ?yms= (default semester if empty).
func (s *Server) resolveSchedule(r *http.Request) (scheduleResponse, error) {
	ctx := r.Context()
	q := r.URL.Query()

	yms, err := s.semester(r)
	if err != nil {
		return scheduleResponse{}, err
	}

	var (
		title   string
		courses []model.Course
	)
	switch {
	case q.Get("teacher") != "":
		t, err := s.feed.FindTeacher(ctx, yms, q.Get("unit"), q.Get("teacher"))
		if err != nil {
			return scheduleResponse{}, err
		}
		title = t.Name + " 教師的課表"
		courses = t.Courses
	case q.Get("location") != "":
		l, err := s.feed.FindLocation(ctx, yms, q.Get("location"))
		if err != nil {
			return scheduleResponse{}, err
		}
		title = l.Name + " 教室課表"
		courses = l.Courses
	default:
		return scheduleResponse{}, errMissingSubject
	}

	slots := course.ParseCourses(courses)
	untimed := make([]model.Course, 0)
	for _, c := range courses {
		if len(course.ParseTime(c.Time)) == 0 {
			untimed = append(untimed, c)
		}
	}

	return scheduleResponse{
		Semester: yms,
		Title:    title,
		Courses:  courses,
		Slots:    slots,
		Untimed:  untimed,
	}, nil
}

// semester returns ?yms= or the feed's default semester.
func (s *Server) semester(r *http.Request) (string, error) {
	if yms := strings.TrimSpace(r.URL.Query().Get("yms")); yms != "" {
		if _, _, err := course.ParseYMS(yms); err != nil {
			return "", err
		}
		return yms, nil
	}
	sem, err := s.feed.DefaultSemester(r.Context())
	if err != nil {
		return "", err
	}
	return sem.Code, nil
}

var errMissingSubject = errors.New("either teacher or location is required")

// fail logs err and maps it to an HTTP status.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		appLog.Error("api "+op+" failed", err, "status", status)
	} else {
		appLog.Debug("api "+op+" rejected", "err", err, "status", status)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	var se *feed.StatusError
	var de *course.DecodeError
	switch {
	case errors.Is(err, errMissingSubject),
		errors.Is(err, course.ErrInvalidYMS),
		errors.Is(err, config.ErrUnknownCampus):
		return http.StatusBadRequest
	case errors.Is(err, feed.ErrTeacherNotFound),
		errors.Is(err, feed.ErrLocationNotFound):
		return http.StatusNotFound
	case errors.As(err, &se):
		if se.StatusCode == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	case errors.As(err, &de),
		errors.Is(err, course.ErrEmptyFeed),
		errors.Is(err, feed.ErrNoSemester):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
