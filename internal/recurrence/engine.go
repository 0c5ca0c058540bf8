// Package recurrence expands weekly course slots into dated lessons and
// applies per-date overrides.
package recurrence

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"
	_ "time/tzdata"

	"github.com/example/studio-admin/internal/persistence"
)

// Layouts for the string forms used in stored documents.
const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
	ClockLayout = "15:04"
)

// DefaultLocation is the studio's timezone.
const DefaultLocation = "Europe/Rome"

// maxExpandDays bounds Expand so a bad request cannot walk years of dates.
const maxExpandDays = 366

var (
	// ErrInvalidDate indicates a malformed "YYYY-MM-DD" value.
	ErrInvalidDate = errors.New("recurrence: invalid date")
	// ErrInvalidWindow indicates a range that ends before it starts or is too long.
	ErrInvalidWindow = errors.New("recurrence: invalid date range")
)

// Lesson is one dated occurrence of a course slot after overrides.
type Lesson struct {
	CourseID          string
	CourseName        string
	Date              string
	StartTime         string
	EndTime           string
	OriginalStartTime string
	OriginalEndTime   string
	Capacity          int
	Cancelled         bool
	Rescheduled       bool
	OverrideID        string
}

// Engine resolves schedules in a fixed location.
type Engine struct {
	location *time.Location
}

// NewEngine returns an engine for loc, defaulting to Europe/Rome.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = defaultLocation()
	}
	return &Engine{location: loc}
}

func defaultLocation() *time.Location {
	loc, err := time.LoadLocation(DefaultLocation)
	if err != nil {
		return time.FixedZone("CET", 3600)
	}
	return loc
}

// Location returns the engine timezone.
func (e *Engine) Location() *time.Location {
	return e.location
}

// ParseDate parses a "YYYY-MM-DD" date at midnight in the engine location.
func (e *Engine) ParseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, value, e.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return t, nil
}

// Today formats now as a date in the engine location.
func (e *Engine) Today(now time.Time) string {
	return now.In(e.location).Format(DateLayout)
}

// WeekWindow returns every date from the Monday of now's week through the
// Sunday weeks-1 weeks later.
func (e *Engine) WeekWindow(now time.Time, weeks int) []string {
	if weeks <= 0 {
		weeks = 1
	}
	local := now.In(e.location)
	offset := (int(local.Weekday()) + 6) % 7
	monday := time.Date(local.Year(), local.Month(), local.Day()-offset, 0, 0, 0, 0, e.location)

	dates := make([]string, 0, weeks*7)
	for i := 0; i < weeks*7; i++ {
		dates = append(dates, monday.AddDate(0, 0, i).Format(DateLayout))
	}
	return dates
}

// LastMonths returns n "YYYY-MM" values ending with now's month, most recent first.
func (e *Engine) LastMonths(now time.Time, n int) []string {
	local := now.In(e.location)
	first := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, e.location)
	months := make([]string, 0, n)
	for i := 0; i < n; i++ {
		months = append(months, first.AddDate(0, -i, 0).Format(MonthLayout))
	}
	return months
}

// CurrentMonth formats now as "YYYY-MM".
func (e *Engine) CurrentMonth(now time.Time) string {
	return now.In(e.location).Format(MonthLayout)
}

// Resolve returns the lessons of course on date. Without an override the
// weekly pattern is returned unchanged. A cancelled override cancels every
// slot of the day; new times apply to the earliest slot of the day.
func (e *Engine) Resolve(course persistence.Course, date string, override *persistence.LessonOverride) ([]Lesson, error) {
	day, err := e.ParseDate(date)
	if err != nil {
		return nil, err
	}

	slots := make([]persistence.Slot, 0, len(course.Schedule))
	for _, slot := range course.Schedule {
		if slot.Weekday == day.Weekday() {
			slots = append(slots, slot)
		}
	}
	slices.SortStableFunc(slots, func(a, b persistence.Slot) int {
		return cmp.Compare(a.StartTime, b.StartTime)
	})

	lessons := make([]Lesson, 0, len(slots))
	for i, slot := range slots {
		lesson := Lesson{
			CourseID:          course.ID,
			CourseName:        course.Name,
			Date:              date,
			StartTime:         slot.StartTime,
			EndTime:           slot.EndTime,
			OriginalStartTime: slot.StartTime,
			OriginalEndTime:   slot.EndTime,
			Capacity:          course.Capacity,
		}
		if override != nil && override.CourseID == course.ID && override.OriginalDate == date {
			lesson.OverrideID = override.ID
			lesson.Cancelled = override.Cancelled
			if i == 0 {
				if override.NewStartTime != nil {
					lesson.StartTime = *override.NewStartTime
				}
				if override.NewEndTime != nil {
					lesson.EndTime = *override.NewEndTime
				}
				lesson.Rescheduled = lesson.StartTime != slot.StartTime || lesson.EndTime != slot.EndTime
			}
		}
		lessons = append(lessons, lesson)
	}
	return lessons, nil
}

// Expand resolves course for every date in [from, to]. overrides is keyed by
// original date.
func (e *Engine) Expand(course persistence.Course, overrides map[string]persistence.LessonOverride, from, to string) ([]Lesson, error) {
	start, err := e.ParseDate(from)
	if err != nil {
		return nil, err
	}
	end, err := e.ParseDate(to)
	if err != nil {
		return nil, err
	}
	if end.Before(start) || end.Sub(start) > maxExpandDays*24*time.Hour {
		return nil, fmt.Errorf("%w: %s..%s", ErrInvalidWindow, from, to)
	}

	var lessons []Lesson
	for current := start; !current.After(end); current = current.AddDate(0, 0, 1) {
		date := current.Format(DateLayout)
		var override *persistence.LessonOverride
		if o, ok := overrides[date]; ok {
			override = &o
		}
		day, err := e.Resolve(course, date, override)
		if err != nil {
			return nil, err
		}
		lessons = append(lessons, day...)
	}
	return lessons, nil
}

// ValidDate reports whether value is a "YYYY-MM-DD" date.
func ValidDate(value string) bool {
	_, err := time.Parse(DateLayout, value)
	return err == nil
}

// ValidMonth reports whether value is a "YYYY-MM" month.
func ValidMonth(value string) bool {
	_, err := time.Parse(MonthLayout, value)
	return err == nil
}

// ValidClock reports whether value is an "HH:mm" time of day.
func ValidClock(value string) bool {
	_, err := time.Parse(ClockLayout, value)
	return err == nil && len(value) == len(ClockLayout)
}
