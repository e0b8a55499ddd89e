package course

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"coursecal/internal/model"
)

var (
	// ErrEmptyFeed is returned when a feed body is empty or JSON null.
	ErrEmptyFeed = errors.New("empty feed")
	// ErrInvalidYMS is returned for a malformed "<year>#<semester>" code.
	ErrInvalidYMS = errors.New("invalid year/semester code")
)

var validate = validator.New()

// DecodeError reports which record of a feed failed validation.
type DecodeError struct {
	Index int
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("record %d: field %s: %v", e.Index, e.Field, e.Err)
	}
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeCourses decodes a JSON array of course records. Unknown fields are
// ignored; a record without code or name is a *DecodeError.
func DecodeCourses(r io.Reader) ([]model.Course, error) {
	return decodeList[model.Course](r)
}

// DecodeUnits decodes teachers.json.
func DecodeUnits(r io.Reader) ([]model.Unit, error) {
	return decodeList[model.Unit](r)
}

// DecodeLocations decodes locations.json.
func DecodeLocations(r io.Reader) ([]model.Location, error) {
	return decodeList[model.Location](r)
}

// DecodeSemesters decodes yms.json.
func DecodeSemesters(r io.Reader) ([]model.YearSemester, error) {
	return decodeList[model.YearSemester](r)
}

// DecodeCalendars decodes calendar.json.
func DecodeCalendars(r io.Reader) ([]model.CalendarItem, error) {
	return decodeList[model.CalendarItem](r)
}

// DecodeAnnouncements decodes announcement.json.
func DecodeAnnouncements(r io.Reader) ([]model.Announcement, error) {
	return decodeList[model.Announcement](r)
}

func decodeList[T any](r io.Reader) ([]T, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFeed
		}
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	if raw == nil {
		return nil, ErrEmptyFeed
	}

	out := make([]T, 0, len(raw))
	for i, msg := range raw {
		var v T
		if err := json.Unmarshal(msg, &v); err != nil {
			return nil, &DecodeError{Index: i, Err: err}
		}
		if err := validate.Struct(v); err != nil {
			return nil, validationError(i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func validationError(index int, err error) *DecodeError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &DecodeError{
			Index: index,
			Field: fe.Namespace(),
			Err:   fmt.Errorf("failed %q check", fe.Tag()),
		}
	}
	return &DecodeError{Index: index, Err: err}
}

// ParseYMS splits a "<year>#<semester>" code such as "113#1".
func ParseYMS(code string) (year, semester int, err error) {
	y, s, ok := strings.Cut(strings.TrimSpace(code), "#")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidYMS, code)
	}
	year, err = strconv.Atoi(y)
	if err != nil || year <= 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidYMS, code)
	}
	semester, err = strconv.Atoi(s)
	if err != nil || semester <= 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidYMS, code)
	}
	return year, semester, nil
}
