package http

import (
	"time"

	"github.com/example/studio-admin/internal/application"
	"github.com/example/studio-admin/internal/field"
	"github.com/example/studio-admin/internal/persistence"
	"github.com/example/studio-admin/internal/recurrence"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// mapValue converts a three-state value while keeping undefined and null.
func mapValue[A, B any](v field.Value[A], fn func(A) B) field.Value[B] {
	if !v.IsDefined() {
		return field.Value[B]{}
	}
	if a, ok := v.Get(); ok {
		return field.Set(fn(a))
	}
	return field.Null[B]()
}

func mapSlice[A, B any](in []A, fn func(A) B) []B {
	out := make([]B, 0, len(in))
	for _, a := range in {
		out = append(out, fn(a))
	}
	return out
}

// ----------------------------- courses -----------------------------

type slotDTO struct {
	DayOfWeek int    `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

func (s slotDTO) toSlot() persistence.Slot {
	return persistence.Slot{Weekday: time.Weekday(s.DayOfWeek), StartTime: s.StartTime, EndTime: s.EndTime}
}

func toSlotDTO(s persistence.Slot) slotDTO {
	return slotDTO{DayOfWeek: int(s.Weekday), StartTime: s.StartTime, EndTime: s.EndTime}
}

func toSlots(in []slotDTO) []persistence.Slot { return mapSlice(in, slotDTO.toSlot) }

type courseDTO struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color,omitempty"`
	Capacity    int       `json:"capacity"`
	Schedule    []slotDTO `json:"schedule"`
	CreatedAt   string    `json:"createdAt,omitempty"`
}

func toCourseDTO(c persistence.Course) courseDTO {
	return courseDTO{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Color:       c.Color,
		Capacity:    c.Capacity,
		Schedule:    mapSlice(c.Schedule, toSlotDTO),
		CreatedAt:   formatTime(c.CreatedAt),
	}
}

type courseRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Color       string    `json:"color"`
	Capacity    int       `json:"capacity"`
	Schedule    []slotDTO `json:"schedule"`
}

func (r courseRequest) toInput() persistence.CourseInput {
	return persistence.CourseInput{
		Name:        r.Name,
		Description: r.Description,
		Color:       r.Color,
		Capacity:    r.Capacity,
		Schedule:    toSlots(r.Schedule),
	}
}

type coursePatchRequest struct {
	Name        field.Value[string]    `json:"name"`
	Description field.Value[string]    `json:"description"`
	Color       field.Value[string]    `json:"color"`
	Capacity    field.Value[int]       `json:"capacity"`
	Schedule    field.Value[[]slotDTO] `json:"schedule"`
}

func (r coursePatchRequest) toPatch() persistence.CoursePatch {
	return persistence.CoursePatch{
		Name:        r.Name,
		Description: r.Description,
		Color:       r.Color,
		Capacity:    r.Capacity,
		Schedule:    mapValue(r.Schedule, toSlots),
	}
}

type overrideDTO struct {
	ID           string  `json:"id"`
	CourseID     string  `json:"courseId"`
	OriginalDate string  `json:"originalDate"`
	NewStartTime *string `json:"newStartTime"`
	NewEndTime   *string `json:"newEndTime"`
	Cancelled    bool    `json:"cancelled"`
	UpdatedAt    string  `json:"updatedAt,omitempty"`
}

func toOverrideDTO(o persistence.LessonOverride) overrideDTO {
	return overrideDTO{
		ID:           o.ID,
		CourseID:     o.CourseID,
		OriginalDate: o.OriginalDate,
		NewStartTime: o.NewStartTime,
		NewEndTime:   o.NewEndTime,
		Cancelled:    o.Cancelled,
		UpdatedAt:    formatTime(o.UpdatedAt),
	}
}

type overrideRequest struct {
	NewStartTime *string `json:"newStartTime"`
	NewEndTime   *string `json:"newEndTime"`
	Cancelled    bool    `json:"cancelled"`
}

type lessonDTO struct {
	CourseID          string `json:"courseId"`
	CourseName        string `json:"courseName"`
	Date              string `json:"date"`
	StartTime         string `json:"startTime"`
	EndTime           string `json:"endTime"`
	OriginalStartTime string `json:"originalStartTime"`
	OriginalEndTime   string `json:"originalEndTime"`
	Capacity          int    `json:"capacity"`
	Cancelled         bool   `json:"cancelled"`
	Rescheduled       bool   `json:"rescheduled"`
	OverrideID        string `json:"overrideId,omitempty"`
	Booked            *int   `json:"booked,omitempty"`
	FreeSpots         *int   `json:"freeSpots,omitempty"`
}

func toLessonDTO(l recurrence.Lesson) lessonDTO {
	return lessonDTO{
		CourseID:          l.CourseID,
		CourseName:        l.CourseName,
		Date:              l.Date,
		StartTime:         l.StartTime,
		EndTime:           l.EndTime,
		OriginalStartTime: l.OriginalStartTime,
		OriginalEndTime:   l.OriginalEndTime,
		Capacity:          l.Capacity,
		Cancelled:         l.Cancelled,
		Rescheduled:       l.Rescheduled,
		OverrideID:        l.OverrideID,
	}
}

func toLessonViewDTO(v application.LessonView) lessonDTO {
	dto := toLessonDTO(v.Lesson)
	booked, free := v.Booked, v.FreeSpots
	dto.Booked = &booked
	dto.FreeSpots = &free
	return dto
}

// ----------------------------- bookings -----------------------------

type bookingDTO struct {
	ID        string `json:"id"`
	CourseID  string `json:"courseId"`
	Date      string `json:"date"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

func toBookingDTO(b persistence.Booking) bookingDTO {
	return bookingDTO{
		ID:        b.ID,
		CourseID:  b.CourseID,
		Date:      b.Date,
		UserID:    b.UserID,
		UserName:  b.UserName,
		CreatedAt: formatTime(b.CreatedAt),
	}
}

type bookingRequest struct {
	CourseID string `json:"courseId"`
	Date     string `json:"date"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

func (r bookingRequest) toInput() persistence.BookingInput {
	return persistence.BookingInput{CourseID: r.CourseID, Date: r.Date, UserID: r.UserID, UserName: r.UserName}
}

// ----------------------------- members -----------------------------

type memberDTO struct {
	ID              string                  `json:"id"`
	DisplayName     string                  `json:"displayName"`
	Email           string                  `json:"email,omitempty"`
	PaymentType     persistence.PaymentType `json:"paymentType"`
	LessonsPaid     int                     `json:"lessonsPaid"`
	LessonsAttended int                     `json:"lessonsAttended"`
	Notes           string                  `json:"notes,omitempty"`
	CreatedAt       string                  `json:"createdAt,omitempty"`
}

func toMemberDTO(m persistence.Member) memberDTO {
	return memberDTO{
		ID:              m.ID,
		DisplayName:     m.DisplayName,
		Email:           m.Email,
		PaymentType:     m.PaymentType,
		LessonsPaid:     m.LessonsPaid,
		LessonsAttended: m.LessonsAttended,
		Notes:           m.Notes,
		CreatedAt:       formatTime(m.CreatedAt),
	}
}

type memberRequest struct {
	ID              string                  `json:"id"`
	DisplayName     string                  `json:"displayName"`
	Email           string                  `json:"email"`
	PaymentType     persistence.PaymentType `json:"paymentType"`
	LessonsPaid     int                     `json:"lessonsPaid"`
	LessonsAttended int                     `json:"lessonsAttended"`
	Notes           string                  `json:"notes"`
}

func (r memberRequest) toInput() persistence.MemberInput {
	return persistence.MemberInput{
		DisplayName:     r.DisplayName,
		Email:           r.Email,
		PaymentType:     r.PaymentType,
		LessonsPaid:     r.LessonsPaid,
		LessonsAttended: r.LessonsAttended,
		Notes:           r.Notes,
	}
}

type memberPatchRequest struct {
	DisplayName     field.Value[string]                  `json:"displayName"`
	Email           field.Value[string]                  `json:"email"`
	PaymentType     field.Value[persistence.PaymentType] `json:"paymentType"`
	LessonsPaid     field.Value[int]                     `json:"lessonsPaid"`
	LessonsAttended field.Value[int]                     `json:"lessonsAttended"`
	Notes           field.Value[string]                  `json:"notes"`
}

func (r memberPatchRequest) toPatch() persistence.MemberPatch {
	return persistence.MemberPatch(r)
}

type paymentDTO struct {
	YearMonth string `json:"yearMonth"`
	Paid      bool   `json:"paid"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

func toPaymentDTO(p persistence.MonthlyPayment) paymentDTO {
	return paymentDTO{YearMonth: p.YearMonth, Paid: p.Paid, UpdatedAt: formatTime(p.UpdatedAt)}
}

type paidRequest struct {
	Paid bool `json:"paid"`
}

type deltaRequest struct {
	Delta int `json:"delta"`
}

type lessonCountsRequest struct {
	LessonsAttended int `json:"lessonsAttended"`
	LessonsPaid     int `json:"lessonsPaid"`
}

type balanceDTO struct {
	MemberID string `json:"memberId"`
	Paid     int    `json:"paid"`
	Attended int    `json:"attended"`
	Delta    int    `json:"delta"`
}

type unpaidReportDTO struct {
	Month  string      `json:"month"`
	Paid   []memberDTO `json:"paid"`
	Unpaid []memberDTO `json:"unpaid"`
}

type cascadeStepDTO struct {
	Kind       string `json:"kind"`
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Done       bool   `json:"done"`
	Error      string `json:"error,omitempty"`
}

type cascadeResponse struct {
	Complete bool             `json:"complete"`
	Message  string           `json:"message,omitempty"`
	Steps    []cascadeStepDTO `json:"steps"`
}

func toCascadeResponse(plan *application.CascadePlan) cascadeResponse {
	resp := cascadeResponse{Complete: plan.Complete()}
	for _, step := range plan.Steps {
		dto := cascadeStepDTO{Kind: string(step.Kind), Collection: step.Collection, ID: step.ID, Done: step.Done}
		if step.Err != nil {
			dto.Error = step.Err.Error()
		}
		resp.Steps = append(resp.Steps, dto)
	}
	return resp
}

// ----------------------------- expenses -----------------------------

type expenseDTO struct {
	ID          string                  `json:"id"`
	Type        persistence.ExpenseType `json:"type"`
	Amount      float64                 `json:"amount"`
	YearMonth   string                  `json:"yearMonth"`
	Description string                  `json:"description,omitempty"`
	CreatedAt   string                  `json:"createdAt,omitempty"`
}

func toExpenseDTO(e persistence.FixedExpense) expenseDTO {
	return expenseDTO{
		ID:          e.ID,
		Type:        e.Type,
		Amount:      e.Amount,
		YearMonth:   e.YearMonth,
		Description: e.Description,
		CreatedAt:   formatTime(e.CreatedAt),
	}
}

type expenseRequest struct {
	Type        persistence.ExpenseType `json:"type"`
	Amount      float64                 `json:"amount"`
	YearMonth   string                  `json:"yearMonth"`
	Description string                  `json:"description"`
}

func (r expenseRequest) toInput() persistence.ExpenseInput {
	return persistence.ExpenseInput(r)
}

type expensePatchRequest struct {
	Type        field.Value[persistence.ExpenseType] `json:"type"`
	Amount      field.Value[float64]                 `json:"amount"`
	YearMonth   field.Value[string]                  `json:"yearMonth"`
	Description field.Value[string]                  `json:"description"`
}

func (r expensePatchRequest) toPatch() persistence.ExpensePatch {
	return persistence.ExpensePatch(r)
}

type monthTotalDTO struct {
	YearMonth string       `json:"yearMonth"`
	Total     float64      `json:"total"`
	Expenses  []expenseDTO `json:"expenses"`
}

type expenseSummaryDTO struct {
	Month       string          `json:"month"`
	MonthTotal  float64         `json:"monthTotal"`
	PeriodTotal float64         `json:"periodTotal"`
	Months      []monthTotalDTO `json:"months"`
}

func toExpenseSummaryDTO(s application.ExpenseSummary) expenseSummaryDTO {
	return expenseSummaryDTO{
		Month:       s.Month,
		MonthTotal:  s.MonthTotal,
		PeriodTotal: s.PeriodTotal,
		Months: mapSlice(s.Months, func(m application.MonthTotal) monthTotalDTO {
			return monthTotalDTO{YearMonth: m.YearMonth, Total: m.Total, Expenses: mapSlice(m.Expenses, toExpenseDTO)}
		}),
	}
}

// ----------------------------- registry -----------------------------

type pendingUserDTO struct {
	ID          string                  `json:"id"`
	DisplayName string                  `json:"displayName"`
	Email       string                  `json:"email,omitempty"`
	PaymentType persistence.PaymentType `json:"paymentType"`
	Notes       string                  `json:"notes,omitempty"`
	Status      string                  `json:"status"`
	CreatedAt   string                  `json:"createdAt,omitempty"`
}

func toPendingUserDTO(u persistence.PendingUser) pendingUserDTO {
	return pendingUserDTO{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		PaymentType: u.PaymentType,
		Notes:       u.Notes,
		Status:      u.Status,
		CreatedAt:   formatTime(u.CreatedAt),
	}
}

type pendingUserRequest struct {
	DisplayName string                  `json:"displayName"`
	Email       string                  `json:"email"`
	PaymentType persistence.PaymentType `json:"paymentType"`
	Notes       string                  `json:"notes"`
}

func (r pendingUserRequest) toInput() persistence.PendingUserInput {
	return persistence.PendingUserInput(r)
}

type pendingUserPatchRequest struct {
	DisplayName field.Value[string]                  `json:"displayName"`
	Email       field.Value[string]                  `json:"email"`
	PaymentType field.Value[persistence.PaymentType] `json:"paymentType"`
	Notes       field.Value[string]                  `json:"notes"`
	Status      field.Value[string]                  `json:"status"`
}

func (r pendingUserPatchRequest) toPatch() persistence.PendingUserPatch {
	return persistence.PendingUserPatch(r)
}

type claimRequest struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

type censusPersonDTO struct {
	ID          string                  `json:"id"`
	FirstName   string                  `json:"firstName"`
	LastName    string                  `json:"lastName"`
	PaymentType persistence.PaymentType `json:"paymentType"`
	LessonsPaid int                     `json:"lessonsPaid"`
	Notes       string                  `json:"notes,omitempty"`
	CreatedAt   string                  `json:"createdAt,omitempty"`
}

func toCensusPersonDTO(p persistence.CensusPerson) censusPersonDTO {
	return censusPersonDTO{
		ID:          p.ID,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		PaymentType: p.PaymentType,
		LessonsPaid: p.LessonsPaid,
		Notes:       p.Notes,
		CreatedAt:   formatTime(p.CreatedAt),
	}
}

type censusRequest struct {
	FirstName   string                  `json:"firstName"`
	LastName    string                  `json:"lastName"`
	PaymentType persistence.PaymentType `json:"paymentType"`
	LessonsPaid int                     `json:"lessonsPaid"`
	Notes       string                  `json:"notes"`
}

func (r censusRequest) toInput() persistence.CensusInput {
	return persistence.CensusInput(r)
}

type censusPatchRequest struct {
	FirstName   field.Value[string]                  `json:"firstName"`
	LastName    field.Value[string]                  `json:"lastName"`
	PaymentType field.Value[persistence.PaymentType] `json:"paymentType"`
	LessonsPaid field.Value[int]                     `json:"lessonsPaid"`
	Notes       field.Value[string]                  `json:"notes"`
}

func (r censusPatchRequest) toPatch() persistence.CensusPatch {
	return persistence.CensusPatch(r)
}
