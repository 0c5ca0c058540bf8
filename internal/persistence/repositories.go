package persistence

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/example/studio-admin/internal/docstore"
)

// Repositories groups the per-collection adapters over one document store.
// Every method is a single remote round trip unless documented otherwise.
type Repositories struct {
	Courses   *CourseRepository
	Overrides *OverrideRepository
	Bookings  *BookingRepository
	Members   *MemberRepository
	Expenses  *ExpenseRepository
	Pending   *PendingUserRepository
	Census    *CensusRepository
	Payments  *PaymentRepository
}

// NewRepositories builds every adapter. now stamps rows echoed back to the
// caller; the stored timestamps come from the server clock.
func NewRepositories(store docstore.Store, now func() time.Time) *Repositories {
	if now == nil {
		now = time.Now
	}
	b := base{store: store, now: now}
	return &Repositories{
		Courses:   &CourseRepository{b},
		Overrides: &OverrideRepository{b},
		Bookings:  &BookingRepository{b},
		Members:   &MemberRepository{b},
		Expenses:  &ExpenseRepository{b},
		Pending:   &PendingUserRepository{b},
		Census:    &CensusRepository{b},
		Payments:  &PaymentRepository{b},
	}
}

type base struct {
	store docstore.Store
	now   func() time.Time
}

func (b base) find(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	return b.store.Find(ctx, q)
}

// CourseRepository stores courses.
type CourseRepository struct{ base }

// List returns every course ordered by name.
func (r *CourseRepository) List(ctx context.Context) ([]Course, error) {
	docs, err := r.find(ctx, docstore.Query{Collection: CoursesCollection, OrderBy: fieldName})
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, decodeCourse)
}

// Get loads one course.
func (r *CourseRepository) Get(ctx context.Context, id string) (Course, error) {
	doc, err := r.store.Get(ctx, CoursesCollection, id)
	if err != nil {
		return Course{}, err
	}
	return decodeCourse(doc)
}

// Create stores a course, defaulting capacity to DefaultCourseCapacity.
func (r *CourseRepository) Create(ctx context.Context, in CourseInput) (Course, error) {
	if in.Capacity <= 0 {
		in.Capacity = DefaultCourseCapacity
	}
	id, err := r.store.Create(ctx, CoursesCollection, docstore.Fields{
		fieldName:        in.Name,
		fieldDescription: in.Description,
		fieldColor:       in.Color,
		fieldCapacity:    in.Capacity,
		fieldSchedule:    encodeSlots(in.Schedule),
		fieldCreatedAt:   docstore.ServerTimestamp,
	})
	if err != nil {
		return Course{}, err
	}
	return Course{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		Color:       in.Color,
		Capacity:    in.Capacity,
		Schedule:    append([]Slot(nil), in.Schedule...),
		CreatedAt:   r.now(),
	}, nil
}

// Update writes the defined members of the patch.
func (r *CourseRepository) Update(ctx context.Context, id string, patch CoursePatch) error {
	return r.store.Update(ctx, CoursesCollection, id, patch.Fields())
}

// Delete removes a course.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, CoursesCollection, id)
}

// OverrideKey derives the document key of the override for one course date.
// Writers racing on the same lesson address the same document.
func OverrideKey(courseID, date string) string {
	sum := blake2b.Sum256([]byte(courseID + "\x00" + date))
	return hex.EncodeToString(sum[:20])
}

// OverrideRepository stores lesson overrides.
type OverrideRepository struct{ base }

// ListForCourse returns the overrides of one course.
func (r *OverrideRepository) ListForCourse(ctx context.Context, courseID string) ([]LessonOverride, error) {
	docs, err := r.find(ctx, docstore.Query{
		Collection: LessonOverridesCollection,
		Where:      []docstore.Filter{docstore.Eq(fieldCourseID, courseID)},
	})
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, decodeOverride)
}

// Upsert writes the override for (CourseID, Date) in a single merge.
func (r *OverrideRepository) Upsert(ctx context.Context, in OverrideInput) (LessonOverride, error) {
	id := OverrideKey(in.CourseID, in.Date)
	fields := docstore.Fields{
		fieldCourseID:     in.CourseID,
		fieldOriginalDate: in.Date,
		fieldNewStartTime: optionalString(in.NewStartTime),
		fieldNewEndTime:   optionalString(in.NewEndTime),
		fieldCancelled:    in.Cancelled,
		fieldUpdatedAt:    docstore.ServerTimestamp,
	}
	if err := r.store.Set(ctx, LessonOverridesCollection, id, fields, docstore.Merge); err != nil {
		return LessonOverride{}, err
	}
	return LessonOverride{
		ID:           id,
		CourseID:     in.CourseID,
		OriginalDate: in.Date,
		NewStartTime: copyString(in.NewStartTime),
		NewEndTime:   copyString(in.NewEndTime),
		Cancelled:    in.Cancelled,
		UpdatedAt:    r.now(),
	}, nil
}

// Delete removes an override.
func (r *OverrideRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, LessonOverridesCollection, id)
}

// BookingRepository stores bookings.
type BookingRepository struct{ base }

// ListByDate returns the bookings of one day.
func (r *BookingRepository) ListByDate(ctx context.Context, date string) ([]Booking, error) {
	return r.list(ctx, docstore.Eq(fieldDate, date))
}

// ListByDates returns the bookings of several days in one query.
func (r *BookingRepository) ListByDates(ctx context.Context, dates []string) ([]Booking, error) {
	if len(dates) == 0 {
		return nil, nil
	}
	return r.list(ctx, docstore.InValues(fieldDate, dates))
}

// ListByUser returns every booking of a user.
func (r *BookingRepository) ListByUser(ctx context.Context, userID string) ([]Booking, error) {
	return r.list(ctx, docstore.Eq(fieldUserID, userID))
}

// ListByLesson returns the bookings of one dated lesson.
func (r *BookingRepository) ListByLesson(ctx context.Context, courseID, date string) ([]Booking, error) {
	return r.list(ctx, docstore.Eq(fieldCourseID, courseID), docstore.Eq(fieldDate, date))
}

func (r *BookingRepository) list(ctx context.Context, filters ...docstore.Filter) ([]Booking, error) {
	docs, err := r.find(ctx, docstore.Query{Collection: BookingsCollection, Where: filters})
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, decodeBooking)
}

// Create stores a booking.
func (r *BookingRepository) Create(ctx context.Context, in BookingInput) (Booking, error) {
	id, err := r.store.Create(ctx, BookingsCollection, docstore.Fields{
		fieldCourseID:  in.CourseID,
		fieldDate:      in.Date,
		fieldUserID:    in.UserID,
		fieldUserName:  in.UserName,
		fieldCreatedAt: docstore.ServerTimestamp,
	})
	if err != nil {
		return Booking{}, err
	}
	return Booking{ID: id, CourseID: in.CourseID, Date: in.Date, UserID: in.UserID, UserName: in.UserName, CreatedAt: r.now()}, nil
}

// Delete removes a booking.
func (r *BookingRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, BookingsCollection, id)
}

// MemberRepository stores user profiles.
type MemberRepository struct{ base }

// List returns every member ordered by display name.
func (r *MemberRepository) List(ctx context.Context) ([]Member, error) {
	docs, err := r.find(ctx, docstore.Query{Collection: MembersCollection, OrderBy: fieldDisplayName})
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, decodeMember)
}

// Get loads one member.
func (r *MemberRepository) Get(ctx context.Context, id string) (Member, error) {
	doc, err := r.store.Get(ctx, MembersCollection, id)
	if err != nil {
		return Member{}, err
	}
	return decodeMember(doc)
}

// Create stores a profile under an explicit key, usually the auth uid.
func (r *MemberRepository) Create(ctx context.Context, id string, in MemberInput) (Member, error) {
	err := r.store.Set(ctx, MembersCollection, id, docstore.Fields{
		fieldDisplayName:     in.DisplayName,
		fieldEmail:           in.Email,
		fieldPaymentType:     string(in.PaymentType),
		fieldLessonsPaid:     in.LessonsPaid,
		fieldLessonsAttended: in.LessonsAttended,
		fieldNotes:           in.Notes,
		fieldCreatedAt:       docstore.ServerTimestamp,
	}, docstore.Replace)
	if err != nil {
		return Member{}, err
	}
	return Member{
		ID:              id,
		DisplayName:     in.DisplayName,
		Email:           in.Email,
		PaymentType:     in.PaymentType,
		LessonsPaid:     in.LessonsPaid,
		LessonsAttended: in.LessonsAttended,
		Notes:           in.Notes,
		CreatedAt:       r.now(),
	}, nil
}

func (r *MemberRepository) Update(ctx context.Context, id string, patch MemberPatch) error {
	return r.store.Update(ctx, MembersCollection, id, patch.Fields())
}

// Delete removes the profile document only; bookings and payments are
// handled by the caller.
func (r *MemberRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, MembersCollection, id)
}

// PaymentOwner selects the parent collection of a payments sub-collection.
type PaymentOwner string

const (
	MemberPayments PaymentOwner = MembersCollection
	CensusPayments PaymentOwner = CensusCollection
)

// PaymentsCollection returns the nested path holding a person's payments.
func PaymentsCollection(owner PaymentOwner, personID string) string {
	return docstore.Path(string(owner), personID, paymentsSubcollection)
}

// PaymentRepository stores monthly payment records for members and census entries.
type PaymentRepository struct{ base }

// List returns every month recorded for a person.
func (r *PaymentRepository) List(ctx context.Context, owner PaymentOwner, personID string) ([]MonthlyPayment, error) {
	docs, err := r.find(ctx, docstore.Query{Collection: PaymentsCollection(owner, personID)})
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, decodePayment)
}

// Get loads one month record. A month that was never written returns ErrNotFound.
func (r *PaymentRepository) Get(ctx context.Context, owner PaymentOwner, personID, yearMonth string) (MonthlyPayment, error) {
	doc, err := r.store.Get(ctx, PaymentsCollection(owner, personID), yearMonth)
	if err != nil {
		return MonthlyPayment{}, err
	}
	return decodePayment(doc)
}

// SetPaid merges {paid, updatedAt} into the month document, creating it if needed.
func (r *PaymentRepository) SetPaid(ctx context.Context, owner PaymentOwner, personID, yearMonth string, paid bool) (MonthlyPayment, error) {
	err := r.store.Set(ctx, PaymentsCollection(owner, personID), yearMonth, docstore.Fields{
		fieldPaid:      paid,
		fieldUpdatedAt: docstore.ServerTimestamp,
	}, docstore.Merge)
	if err != nil {
		return MonthlyPayment{}, err
	}
	return MonthlyPayment{YearMonth: yearMonth, Paid: paid, UpdatedAt: r.now()}, nil
}

// Delete removes one month record.
func (r *PaymentRepository) Delete(ctx context.Context, owner PaymentOwner, personID, yearMonth string) error {
	return r.store.Delete(ctx, PaymentsCollection(owner, personID), yearMonth)
}

// ExpenseRepository stores fixed expenses.
type ExpenseRepository struct{ base }

// List returns every expense, most recent month first.
func (r *ExpenseRepository) List(ctx context.Context) ([]FixedExpense, error) {
	docs, err := r.find(ctx, docstore.Query{Collection: FixedExpensesCollection, OrderBy: fieldYearMonth, Direction: docstore.Desc})
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, decodeExpense)
}

// ListByMonth returns the expenses of one month.
func (r *ExpenseRepository) ListByMonth(ctx context.Context, yearMonth string) ([]FixedExpense, error) {
	docs, err := r.find(ctx, docstore.Query{
		Collection: FixedExpensesCollection,
		Where:      []docstore.Filter{docstore.Eq(fieldYearMonth, yearMonth)},
	})
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, decodeExpense)
}

func (r *ExpenseRepository) Create(ctx context.Context, in ExpenseInput) (FixedExpense, error) {
	id, err := r.store.Create(ctx, FixedExpensesCollection, docstore.Fields{
		fieldType:        string(in.Type),
		fieldAmount:      in.Amount,
		fieldYearMonth:   in.YearMonth,
		fieldDescription: in.Description,
		fieldCreatedAt:   docstore.ServerTimestamp,
	})
	if err != nil {
		return FixedExpense{}, err
	}
	return FixedExpense{ID: id, Type: in.Type, Amount: in.Amount, YearMonth: in.YearMonth, Description: in.Description, CreatedAt: r.now()}, nil
}

func (r *ExpenseRepository) Update(ctx context.Context, id string, patch ExpensePatch) error {
	return r.store.Update(ctx, FixedExpensesCollection, id, patch.Fields())
}

func (r *ExpenseRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, FixedExpensesCollection, id)
}

// PendingUserRepository stores pending signups.
type PendingUserRepository struct{ base }

func (r *PendingUserRepository) List(ctx context.Context) ([]PendingUser, error) {
	docs, err := r.find(ctx, docstore.Query{Collection: PendingUsersCollection})
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, decodePendingUser)
}

// Create stores a signup with a generated key and status "pending".
func (r *PendingUserRepository) Create(ctx context.Context, in PendingUserInput) (PendingUser, error) {
	id, err := r.store.Create(ctx, PendingUsersCollection, docstore.Fields{
		fieldDisplayName: in.DisplayName,
		fieldEmail:       in.Email,
		fieldPaymentType: string(in.PaymentType),
		fieldNotes:       in.Notes,
		fieldStatus:      PendingStatus,
		fieldCreatedAt:   docstore.ServerTimestamp,
	})
	if err != nil {
		return PendingUser{}, err
	}
	return PendingUser{
		ID:          id,
		DisplayName: in.DisplayName,
		Email:       in.Email,
		PaymentType: in.PaymentType,
		Notes:       in.Notes,
		Status:      PendingStatus,
		CreatedAt:   r.now(),
	}, nil
}

func (r *PendingUserRepository) Update(ctx context.Context, id string, patch PendingUserPatch) error {
	return r.store.Update(ctx, PendingUsersCollection, id, patch.Fields())
}

func (r *PendingUserRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, PendingUsersCollection, id)
}

// CensusRepository stores the census registry.
type CensusRepository struct{ base }

// List returns every person ordered by last name.
func (r *CensusRepository) List(ctx context.Context) ([]CensusPerson, error) {
	docs, err := r.find(ctx, docstore.Query{Collection: CensusCollection, OrderBy: fieldLastName})
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, decodeCensusPerson)
}

func (r *CensusRepository) Get(ctx context.Context, id string) (CensusPerson, error) {
	doc, err := r.store.Get(ctx, CensusCollection, id)
	if err != nil {
		return CensusPerson{}, err
	}
	return decodeCensusPerson(doc)
}

// Create stores a person. lessonsPaid is only written for per-lesson payers.
func (r *CensusRepository) Create(ctx context.Context, in CensusInput) (CensusPerson, error) {
	fields := docstore.Fields{
		fieldFirstName:   in.FirstName,
		fieldLastName:    in.LastName,
		fieldPaymentType: string(in.PaymentType),
		fieldNotes:       in.Notes,
		fieldCreatedAt:   docstore.ServerTimestamp,
	}
	if in.PaymentType == PaymentPerLesson {
		fields[fieldLessonsPaid] = in.LessonsPaid
	} else {
		in.LessonsPaid = 0
	}
	id, err := r.store.Create(ctx, CensusCollection, fields)
	if err != nil {
		return CensusPerson{}, err
	}
	return CensusPerson{
		ID:          id,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		PaymentType: in.PaymentType,
		LessonsPaid: in.LessonsPaid,
		Notes:       in.Notes,
		CreatedAt:   r.now(),
	}, nil
}

func (r *CensusRepository) Update(ctx context.Context, id string, patch CensusPatch) error {
	return r.store.Update(ctx, CensusCollection, id, patch.Fields())
}

// Delete removes the person document only.
func (r *CensusRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, CensusCollection, id)
}

func optionalString(v *string) any {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return trimmed
}

func copyString(v *string) *string {
	if s, ok := optionalString(v).(string); ok {
		return &s
	}
	return nil
}
