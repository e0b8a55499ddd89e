package model

// Teacher groups the courses taught by one teacher within a unit.
type Teacher struct {
	Code    string   `json:"code" validate:"required"`
	Name    string   `json:"name"`
	Courses []Course `json:"class" validate:"dive"`
}

// Unit is a department/grade entry in teachers.json.
type Unit struct {
	Code     string    `json:"code" validate:"required"`
	Name     string    `json:"name"`
	Teachers []Teacher `json:"teachers" validate:"dive"`
}

// Location is a classroom entry in locations.json.
type Location struct {
	Code    string   `json:"code" validate:"required"`
	Name    string   `json:"name"`
	Courses []Course `json:"courses" validate:"dive"`
}

// YearSemester is an entry of yms.json. Code has the form "<year>#<semester>".
type YearSemester struct {
	Code        string `json:"code" validate:"required"`
	DisplayName string `json:"displayName"`
	Default     bool   `json:"default"`
}

// CalendarItem is an entry of calendar.json pointing at a campus calendar PDF.
type CalendarItem struct {
	Year     int    `json:"year"`
	Semester int    `json:"semester"`
	Title    string `json:"title"`
	Link     string `json:"link,omitempty"`
}

// AnnouncementLink is an inline link inside an announcement.
type AnnouncementLink struct {
	Link string `json:"link"`
	Text string `json:"text"`
}

// Announcement is an entry of announcement.json.
type Announcement struct {
	Text  string             `json:"text"`
	Href  []AnnouncementLink `json:"href,omitempty"`
	Level int                `json:"level"`
}
