package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/studio-admin/internal/persistence"
)

var (
	courseCounter uint64
	memberCounter uint64
	personCounter uint64
)

// ----------------------------- Course fixtures -----------------------------

// CourseFixture describes a deterministic course.
type CourseFixture struct {
	Name        string
	Description string
	Color       string
	Capacity    int
	Schedule    []persistence.Slot
}

// CourseOption configures the generated course fixture.
type CourseOption func(*CourseFixture)

// NewCourseFixture returns a course meeting on Monday and Wednesday evenings.
func NewCourseFixture(opts ...CourseOption) CourseFixture {
	idx := atomic.AddUint64(&courseCounter, 1)
	fixture := CourseFixture{
		Name:     fmt.Sprintf("Course %03d", idx),
		Color:    "#3366ff",
		Capacity: 8,
		Schedule: []persistence.Slot{
			{Weekday: time.Monday, StartTime: "18:00", EndTime: "19:00"},
			{Weekday: time.Wednesday, StartTime: "18:00", EndTime: "19:00"},
		},
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithCourseName overrides the course name.
func WithCourseName(name string) CourseOption {
	return func(f *CourseFixture) {
		f.Name = name
	}
}

// WithCourseCapacity overrides the capacity.
func WithCourseCapacity(capacity int) CourseOption {
	return func(f *CourseFixture) {
		f.Capacity = capacity
	}
}

// WithCourseSlots replaces the weekly schedule.
func WithCourseSlots(slots ...persistence.Slot) CourseOption {
	return func(f *CourseFixture) {
		f.Schedule = append([]persistence.Slot(nil), slots...)
	}
}

// Input converts the fixture into a create request.
func (f CourseFixture) Input() persistence.CourseInput {
	return persistence.CourseInput{
		Name:        f.Name,
		Description: f.Description,
		Color:       f.Color,
		Capacity:    f.Capacity,
		Schedule:    append([]persistence.Slot(nil), f.Schedule...),
	}
}

// ----------------------------- Member fixtures -----------------------------

// MemberFixture describes a deterministic member profile.
type MemberFixture struct {
	ID              string
	DisplayName     string
	Email           string
	PaymentType     persistence.PaymentType
	LessonsPaid     int
	LessonsAttended int
}

// MemberOption configures the generated member fixture.
type MemberOption func(*MemberFixture)

// NewMemberFixture returns a monthly-paying member.
func NewMemberFixture(opts ...MemberOption) MemberFixture {
	idx := atomic.AddUint64(&memberCounter, 1)
	id := fmt.Sprintf("uid-%03d", idx)
	fixture := MemberFixture{
		ID:          id,
		DisplayName: fmt.Sprintf("Member %03d", idx),
		Email:       id + "@example.com",
		PaymentType: persistence.PaymentMonthly,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithMemberID overrides the profile key.
func WithMemberID(id string) MemberOption {
	return func(f *MemberFixture) {
		f.ID = id
	}
}

// WithMemberName overrides the display name.
func WithMemberName(name string) MemberOption {
	return func(f *MemberFixture) {
		f.DisplayName = name
	}
}

// WithPaymentType overrides the payment type.
func WithPaymentType(pt persistence.PaymentType) MemberOption {
	return func(f *MemberFixture) {
		f.PaymentType = pt
	}
}

// WithLessons sets both per-lesson counters.
func WithLessons(paid, attended int) MemberOption {
	return func(f *MemberFixture) {
		f.LessonsPaid = paid
		f.LessonsAttended = attended
	}
}

// Input converts the fixture into a create request.
func (f MemberFixture) Input() persistence.MemberInput {
	return persistence.MemberInput{
		DisplayName:     f.DisplayName,
		Email:           f.Email,
		PaymentType:     f.PaymentType,
		LessonsPaid:     f.LessonsPaid,
		LessonsAttended: f.LessonsAttended,
	}
}

// ----------------------------- Census fixtures -----------------------------

// NewCensusInput returns a census entry with generated names.
func NewCensusInput(pt persistence.PaymentType) persistence.CensusInput {
	idx := atomic.AddUint64(&personCounter, 1)
	return persistence.CensusInput{
		FirstName:   fmt.Sprintf("Name%03d", idx),
		LastName:    fmt.Sprintf("Surname%03d", idx),
		PaymentType: pt,
	}
}
