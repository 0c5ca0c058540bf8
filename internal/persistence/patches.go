package persistence

import (
	"github.com/example/studio-admin/internal/docstore"
	"github.com/example/studio-admin/internal/field"
)

// CourseInput creates a course.
type CourseInput struct {
	Name        string
	Description string
	Color       string
	Capacity    int
	Schedule    []Slot
}

// CoursePatch updates a course. Undefined members are not written.
type CoursePatch struct {
	Name        field.Value[string]
	Description field.Value[string]
	Color       field.Value[string]
	Capacity    field.Value[int]
	Schedule    field.Value[[]Slot]
}

// Fields returns only the defined members; null members map to nil.
func (p CoursePatch) Fields() docstore.Fields {
	f := docstore.Fields{}
	put(f, fieldName, p.Name, nil)
	put(f, fieldDescription, p.Description, nil)
	put(f, fieldColor, p.Color, nil)
	put(f, fieldCapacity, p.Capacity, nil)
	put(f, fieldSchedule, p.Schedule, func(s []Slot) any { return encodeSlots(s) })
	return f
}

// Apply merges the patch into a cached row.
func (p CoursePatch) Apply(c *Course) {
	apply(&c.Name, p.Name)
	apply(&c.Description, p.Description)
	apply(&c.Color, p.Color)
	apply(&c.Capacity, p.Capacity)
	if p.Schedule.IsDefined() {
		slots, _ := p.Schedule.Get()
		c.Schedule = append([]Slot(nil), slots...)
	}
}

// OverrideInput upserts the override of one dated lesson.
type OverrideInput struct {
	CourseID     string
	Date         string
	NewStartTime *string
	NewEndTime   *string
	Cancelled    bool
}

// BookingInput creates a booking.
type BookingInput struct {
	CourseID string
	Date     string
	UserID   string
	UserName string
}

// MemberInput creates a member profile.
type MemberInput struct {
	DisplayName     string
	Email           string
	PaymentType     PaymentType
	LessonsPaid     int
	LessonsAttended int
	Notes           string
}

// MemberPatch updates a member profile.
type MemberPatch struct {
	DisplayName     field.Value[string]
	Email           field.Value[string]
	PaymentType     field.Value[PaymentType]
	LessonsPaid     field.Value[int]
	LessonsAttended field.Value[int]
	Notes           field.Value[string]
}

func (p MemberPatch) Fields() docstore.Fields {
	f := docstore.Fields{}
	put(f, fieldDisplayName, p.DisplayName, nil)
	put(f, fieldEmail, p.Email, nil)
	put(f, fieldPaymentType, p.PaymentType, encodeString[PaymentType])
	put(f, fieldLessonsPaid, p.LessonsPaid, nil)
	put(f, fieldLessonsAttended, p.LessonsAttended, nil)
	put(f, fieldNotes, p.Notes, nil)
	return f
}

func (p MemberPatch) Apply(m *Member) {
	apply(&m.DisplayName, p.DisplayName)
	apply(&m.Email, p.Email)
	apply(&m.PaymentType, p.PaymentType)
	apply(&m.LessonsPaid, p.LessonsPaid)
	apply(&m.LessonsAttended, p.LessonsAttended)
	apply(&m.Notes, p.Notes)
}

// ExpenseInput creates a fixed expense.
type ExpenseInput struct {
	Type        ExpenseType
	Amount      float64
	YearMonth   string
	Description string
}

// ExpensePatch updates a fixed expense.
type ExpensePatch struct {
	Type        field.Value[ExpenseType]
	Amount      field.Value[float64]
	YearMonth   field.Value[string]
	Description field.Value[string]
}

func (p ExpensePatch) Fields() docstore.Fields {
	f := docstore.Fields{}
	put(f, fieldType, p.Type, encodeString[ExpenseType])
	put(f, fieldAmount, p.Amount, nil)
	put(f, fieldYearMonth, p.YearMonth, nil)
	put(f, fieldDescription, p.Description, nil)
	return f
}

func (p ExpensePatch) Apply(e *FixedExpense) {
	apply(&e.Type, p.Type)
	apply(&e.Amount, p.Amount)
	apply(&e.YearMonth, p.YearMonth)
	apply(&e.Description, p.Description)
}

// PendingUserInput creates a pending signup.
type PendingUserInput struct {
	DisplayName string
	Email       string
	PaymentType PaymentType
	Notes       string
}

// PendingUserPatch updates a pending signup.
type PendingUserPatch struct {
	DisplayName field.Value[string]
	Email       field.Value[string]
	PaymentType field.Value[PaymentType]
	Notes       field.Value[string]
	Status      field.Value[string]
}

func (p PendingUserPatch) Fields() docstore.Fields {
	f := docstore.Fields{}
	put(f, fieldDisplayName, p.DisplayName, nil)
	put(f, fieldEmail, p.Email, nil)
	put(f, fieldPaymentType, p.PaymentType, encodeString[PaymentType])
	put(f, fieldNotes, p.Notes, nil)
	put(f, fieldStatus, p.Status, nil)
	return f
}

func (p PendingUserPatch) Apply(u *PendingUser) {
	apply(&u.DisplayName, p.DisplayName)
	apply(&u.Email, p.Email)
	apply(&u.PaymentType, p.PaymentType)
	apply(&u.Notes, p.Notes)
	apply(&u.Status, p.Status)
}

// CensusInput creates a census entry.
type CensusInput struct {
	FirstName   string
	LastName    string
	PaymentType PaymentType
	LessonsPaid int
	Notes       string
}

// CensusPatch updates a census entry.
type CensusPatch struct {
	FirstName   field.Value[string]
	LastName    field.Value[string]
	PaymentType field.Value[PaymentType]
	LessonsPaid field.Value[int]
	Notes       field.Value[string]
}

func (p CensusPatch) Fields() docstore.Fields {
	f := docstore.Fields{}
	put(f, fieldFirstName, p.FirstName, nil)
	put(f, fieldLastName, p.LastName, nil)
	put(f, fieldPaymentType, p.PaymentType, encodeString[PaymentType])
	put(f, fieldLessonsPaid, p.LessonsPaid, nil)
	put(f, fieldNotes, p.Notes, nil)
	return f
}

func (p CensusPatch) Apply(c *CensusPerson) {
	apply(&c.FirstName, p.FirstName)
	apply(&c.LastName, p.LastName)
	apply(&c.PaymentType, p.PaymentType)
	apply(&c.LessonsPaid, p.LessonsPaid)
	apply(&c.Notes, p.Notes)
}

// apply sets dst for defined values; null resets dst to its zero value.
func apply[T any](dst *T, v field.Value[T]) {
	if !v.IsDefined() {
		return
	}
	value, _ := v.Get()
	*dst = value
}

func encodeString[T ~string](v T) any {
	return string(v)
}
