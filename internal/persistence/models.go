package persistence

import (
	"strings"
	"time"
)

// Collection paths in the document store.
const (
	CoursesCollection         = "courses"
	LessonOverridesCollection = "lessonOverrides"
	BookingsCollection        = "bookings"
	MembersCollection         = "users"
	FixedExpensesCollection   = "fixedExpenses"
	PendingUsersCollection    = "pendingUsers"
	CensusCollection          = "censusPersons"
	paymentsSubcollection     = "payments"
)

// DefaultCourseCapacity applies when a course is created without a capacity.
const DefaultCourseCapacity = 10

// Slot is one weekly recurring lesson of a course. Times are "HH:mm".
type Slot struct {
	Weekday   time.Weekday
	StartTime string
	EndTime   string
}

// Course is a recurring class.
type Course struct {
	ID          string
	Name        string
	Description string
	Color       string
	Capacity    int
	Schedule    []Slot
	CreatedAt   time.Time
}

// LessonOverride replaces or cancels one dated occurrence of a course.
type LessonOverride struct {
	ID           string
	CourseID     string
	OriginalDate string
	NewStartTime *string
	NewEndTime   *string
	Cancelled    bool
	UpdatedAt    time.Time
}

// Booking reserves a spot in a dated lesson. Duplicates are not prevented.
type Booking struct {
	ID        string
	CourseID  string
	Date      string
	UserID    string
	UserName  string
	CreatedAt time.Time
}

// PaymentType describes how a person pays for lessons.
type PaymentType string

const (
	PaymentMonthly       PaymentType = "mensile"
	PaymentMonthlyOnce   PaymentType = "mensile-1x"
	PaymentMonthlyTwice  PaymentType = "mensile-2x"
	PaymentMonthlyThrice PaymentType = "mensile-3x"
	PaymentPerLesson     PaymentType = "per-lesson"
)

// IsMonthly reports whether the type is any monthly subscription tier.
func (p PaymentType) IsMonthly() bool {
	return p == PaymentMonthly || strings.HasPrefix(string(p), string(PaymentMonthly)+"-")
}

// Valid reports whether p is a known payment type.
func (p PaymentType) Valid() bool {
	switch p {
	case PaymentMonthly, PaymentMonthlyOnce, PaymentMonthlyTwice, PaymentMonthlyThrice, PaymentPerLesson:
		return true
	}
	return false
}

// Member is a registered studio user.
type Member struct {
	ID              string
	DisplayName     string
	Email           string
	PaymentType     PaymentType
	LessonsPaid     int
	LessonsAttended int
	Notes           string
	CreatedAt       time.Time
}

// MonthlyPayment records whether a month ("YYYY-MM", also the document key)
// was paid.
type MonthlyPayment struct {
	YearMonth string
	Paid      bool
	UpdatedAt time.Time
}

// ExpenseType categorises fixed expenses.
type ExpenseType string

const (
	ExpenseRent        ExpenseType = "affitto"
	ExpenseElectricity ExpenseType = "bolletta_luce"
	ExpenseWater       ExpenseType = "bolletta_acqua"
	ExpenseGas         ExpenseType = "bolletta_gas"
	ExpenseOther       ExpenseType = "altro"
)

// Valid reports whether t is a known expense category.
func (t ExpenseType) Valid() bool {
	switch t {
	case ExpenseRent, ExpenseElectricity, ExpenseWater, ExpenseGas, ExpenseOther:
		return true
	}
	return false
}

// FixedExpense is a recurring studio cost booked against a month.
type FixedExpense struct {
	ID          string
	Type        ExpenseType
	Amount      float64
	YearMonth   string
	Description string
	CreatedAt   time.Time
}

// PendingStatus is the only status a pending user is created with.
const PendingStatus = "pending"

// PendingUser is a signup awaiting approval.
type PendingUser struct {
	ID          string
	DisplayName string
	Email       string
	PaymentType PaymentType
	Notes       string
	Status      string
	CreatedAt   time.Time
}

// CensusPerson is a registry entry independent of user accounts.
type CensusPerson struct {
	ID          string
	FirstName   string
	LastName    string
	PaymentType PaymentType
	LessonsPaid int
	Notes       string
	CreatedAt   time.Time
}

// FullName joins first and last name.
func (p CensusPerson) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}
