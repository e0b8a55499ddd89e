package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursecal/internal/config"
	"coursecal/internal/export"
	"coursecal/internal/feed"
	"coursecal/internal/metrics"
)

var feedFiles = map[string]string{
	"/yms.json": `[{"code":"113#1","displayName":"113學年度 第1學期","default":true}]`,
	"/113/1/teachers.json": `[
		{"code":"U1","name":"資訊科學系","teachers":[
			{"code":"T1","name":"王小明","class":[
				{"code":"C1","name":"資料結構","class":"資科二","time":"(二) 3-4","teacher":"王小明"},
				{"code":"C2","name":"專題","class":"資科四","time":"","teacher":"王小明"},
				{"code":"C3","name":"夜間課","class":"","time":"(三) 13-15","teacher":"王小明"}
			]}
		]},
		{"code":"U2","name":"數學系","teachers":[]}
	]`,
	"/113/1/locations.json": `[
		{"code":"A101","name":"A101","courses":[
			{"code":"C1","name":"資料結構","class":"資科二","time":"(二) 3-4","teacher":"王小明"}
		]}
	]`,
	"/calendar.json":       `[{"year":113,"semester":1,"title":"行事曆"}]`,
	"/announcement.json":   `[]`,
	"/calendar/113/行事曆.pdf": "%PDF-1.4 test",
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := feedFiles[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(upstream.Close)

	cfg := config.DefaultConfig()
	cfg.FeedBaseURL = upstream.URL
	cfg.CacheDir = t.TempDir()

	m := metrics.New()
	exp, err := export.New(cfg, m)
	require.NoError(t, err)
	exp.Now = func() time.Time {
		return time.Date(2024, time.September, 4, 9, 0, 0, 0, exp.Location())
	}

	fetcher := feed.NewFetcher(cfg.FeedBaseURL, cfg.CacheDir, m)
	blobs := feed.NewFetcherBlobCache(fetcher, m)
	t.Cleanup(blobs.Close)

	return NewServer(cfg, feed.NewClient(fetcher), blobs, exp, m)
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(t), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestSchedule(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(t), "/api/schedule?teacher=T1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp scheduleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "113#1", resp.Semester)
	assert.Equal(t, "王小明 教師的課表", resp.Title)
	assert.Len(t, resp.Courses, 3)
	require.Len(t, resp.Slots, 2)
	assert.Equal(t, "C1-1-3", resp.Slots[0].ID)
	require.Len(t, resp.Untimed, 1)
	assert.Equal(t, "C2", resp.Untimed[0].Code)
}

func TestScheduleErrors(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	cases := []struct {
		target string
		status int
	}{
		{"/api/schedule", http.StatusBadRequest},
		{"/api/schedule?yms=oops&teacher=T1", http.StatusBadRequest},
		{"/api/schedule?teacher=T9", http.StatusNotFound},
		{"/api/schedule?location=Z1", http.StatusNotFound},
		{"/api/schedule?yms=100%231&teacher=T1", http.StatusNotFound},
		{"/api/timetable?teacher=T1&campus=nowhere", http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := get(t, s, tc.target)
		assert.Equal(t, tc.status, rec.Code, tc.target)
		assert.Contains(t, rec.Body.String(), `"error"`, tc.target)
	}
}

func TestExport(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(t), "/api/export.ics?teacher=T1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "2", rec.Header().Get("X-Events"))
	assert.Equal(t, "0", rec.Header().Get("X-Skipped-Slots"))
	assert.Equal(t, "1", rec.Header().Get("X-Fallback-Ends"))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "BEGIN:VCALENDAR\r\n"))
	assert.True(t, strings.HasSuffix(body, "END:VCALENDAR\r\n"))
	assert.Contains(t, body, "DTSTART;TZID=Asia/Taipei:20240910T101000")
}

func TestExportCustomTitle(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(t), "/api/export.ics?location=A101&title=Room+A101")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Room A101.ics")
	assert.Contains(t, rec.Body.String(), "X-WR-CALNAME:Room A101")
}

func TestPreview(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(t), "/api/preview?teacher=T1&max=5")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp previewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Events)
	assert.Len(t, resp.Fallbacks, 1)
	assert.Len(t, resp.Occurrences, 10)
	assert.Len(t, resp.Truncated, 2)
	assert.Equal(t, time.Monday, resp.Anchor.Weekday())
}

func TestTimetable(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(t), "/api/timetable?location=A101&campus=secondary")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Title     string `json:"title"`
		Timetable struct {
			Campus   string `json:"campus"`
			Sections []struct {
				TimeOfDay string `json:"time_of_day"`
			} `json:"sections"`
		} `json:"timetable"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "A101 教室課表", resp.Title)
	assert.Equal(t, "secondary", resp.Timetable.Campus)
	assert.Len(t, resp.Timetable.Sections, 3)
}

func TestListings(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	rec := get(t, s, "/api/units")
	require.Equal(t, http.StatusOK, rec.Code)
	var units []unitDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &units))
	require.Len(t, units, 2)
	assert.Equal(t, "U1", units[0].Code)
	assert.Equal(t, 3, units[0].Teachers[0].Courses)
	assert.Empty(t, units[1].Teachers)

	rec = get(t, s, "/api/locations?yms=113%231")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"A101"`)

	rec = get(t, s, "/api/periods?campus=secondary")
	require.Equal(t, http.StatusOK, rec.Code)
	var periods periodsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &periods))
	assert.Len(t, periods.Periods, 14)
	assert.Equal(t, "08:00", periods.Periods[0].StartTime)

	rec = get(t, s, "/api/calendars")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `/files/calendar/113/`)

	rec = get(t, s, "/api/announcements")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFiles(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	rec := get(t, s, "/files/calendar/113/%E8%A1%8C%E4%BA%8B%E6%9B%86.pdf")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.4 test", rec.Body.String())
	assert.Equal(t, 1, s.blobs.Len())

	assert.Equal(t, http.StatusNotFound, get(t, s, "/files/yms.json").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/files/missing.pdf").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	require.Equal(t, http.StatusOK, get(t, s, "/api/export.ics?teacher=T1").Code)

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "coursecal_exports_total 1")
}
