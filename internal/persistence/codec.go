package persistence

import (
	"fmt"
	"math"
	"time"

	"github.com/example/studio-admin/internal/docstore"
	"github.com/example/studio-admin/internal/field"
)

// Document field names.
const (
	fieldName            = "name"
	fieldDescription     = "description"
	fieldColor           = "color"
	fieldCapacity        = "capacity"
	fieldSchedule        = "schedule"
	fieldDayOfWeek       = "dayOfWeek"
	fieldStartTime       = "startTime"
	fieldEndTime         = "endTime"
	fieldCreatedAt       = "createdAt"
	fieldUpdatedAt       = "updatedAt"
	fieldCourseID        = "courseId"
	fieldOriginalDate    = "originalDate"
	fieldNewStartTime    = "newStartTime"
	fieldNewEndTime      = "newEndTime"
	fieldCancelled       = "cancelled"
	fieldDate            = "date"
	fieldUserID          = "userId"
	fieldUserName        = "userName"
	fieldDisplayName     = "displayName"
	fieldEmail           = "email"
	fieldPaymentType     = "paymentType"
	fieldLessonsPaid     = "lessonsPaid"
	fieldLessonsAttended = "lessonsAttended"
	fieldNotes           = "notes"
	fieldPaid            = "paid"
	fieldType            = "type"
	fieldAmount          = "amount"
	fieldYearMonth       = "yearMonth"
	fieldStatus          = "status"
	fieldFirstName       = "firstName"
	fieldLastName        = "lastName"
)

// reader decodes loosely typed document fields. Backends differ in numeric
// representation, so numbers are accepted as int64 or float64.
type reader struct {
	fields docstore.Fields
	err    error
}

func (r *reader) fail(key string, v any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: field %s has type %T", ErrMalformedDocument, key, v)
	}
}

func (r *reader) str(key string) string {
	switch v := r.fields[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		r.fail(key, v)
		return ""
	}
}

func (r *reader) strPtr(key string) *string {
	v, ok := r.fields[key].(string)
	if !ok {
		if r.fields[key] != nil {
			r.fail(key, r.fields[key])
		}
		return nil
	}
	return &v
}

func (r *reader) integer(key string) int {
	switch v := r.fields[key].(type) {
	case nil:
		return 0
	case int64:
		return int(v)
	case float64:
		return int(math.Round(v))
	default:
		r.fail(key, v)
		return 0
	}
}

func (r *reader) number(key string) float64 {
	switch v := r.fields[key].(type) {
	case nil:
		return 0
	case int64:
		return float64(v)
	case float64:
		return v
	default:
		r.fail(key, v)
		return 0
	}
}

func (r *reader) boolean(key string) bool {
	switch v := r.fields[key].(type) {
	case nil:
		return false
	case bool:
		return v
	default:
		r.fail(key, v)
		return false
	}
}

func (r *reader) timestamp(key string) time.Time {
	switch v := r.fields[key].(type) {
	case nil:
		return time.Time{}
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			r.fail(key, v)
		}
		return t
	default:
		r.fail(key, v)
		return time.Time{}
	}
}

func (r *reader) slots(key string) []Slot {
	raw, ok := r.fields[key].([]any)
	if !ok {
		if r.fields[key] != nil {
			r.fail(key, r.fields[key])
		}
		return nil
	}
	out := make([]Slot, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			r.fail(key, item)
			continue
		}
		inner := reader{fields: m}
		out = append(out, Slot{
			Weekday:   time.Weekday(inner.integer(fieldDayOfWeek)),
			StartTime: inner.str(fieldStartTime),
			EndTime:   inner.str(fieldEndTime),
		})
		if inner.err != nil {
			r.fail(key, item)
		}
	}
	return out
}

func encodeSlots(slots []Slot) []any {
	out := make([]any, len(slots))
	for i, s := range slots {
		out[i] = map[string]any{
			fieldDayOfWeek: int64(s.Weekday),
			fieldStartTime: s.StartTime,
			fieldEndTime:   s.EndTime,
		}
	}
	return out
}

// put writes v under key when it is defined, encoding null as nil.
func put[T any](fields docstore.Fields, key string, v field.Value[T], encode func(T) any) {
	if !v.IsDefined() {
		return
	}
	if value, ok := v.Get(); ok {
		if encode != nil {
			fields[key] = encode(value)
			return
		}
		fields[key] = value
		return
	}
	fields[key] = nil
}

func decodeCourse(doc docstore.Document) (Course, error) {
	r := reader{fields: doc.Fields}
	c := Course{
		ID:          doc.ID,
		Name:        r.str(fieldName),
		Description: r.str(fieldDescription),
		Color:       r.str(fieldColor),
		Capacity:    r.integer(fieldCapacity),
		Schedule:    r.slots(fieldSchedule),
		CreatedAt:   r.timestamp(fieldCreatedAt),
	}
	return c, wrapDecode(CoursesCollection, doc.ID, r.err)
}

func decodeOverride(doc docstore.Document) (LessonOverride, error) {
	r := reader{fields: doc.Fields}
	o := LessonOverride{
		ID:           doc.ID,
		CourseID:     r.str(fieldCourseID),
		OriginalDate: r.str(fieldOriginalDate),
		NewStartTime: r.strPtr(fieldNewStartTime),
		NewEndTime:   r.strPtr(fieldNewEndTime),
		Cancelled:    r.boolean(fieldCancelled),
		UpdatedAt:    r.timestamp(fieldUpdatedAt),
	}
	return o, wrapDecode(LessonOverridesCollection, doc.ID, r.err)
}

func decodeBooking(doc docstore.Document) (Booking, error) {
	r := reader{fields: doc.Fields}
	b := Booking{
		ID:        doc.ID,
		CourseID:  r.str(fieldCourseID),
		Date:      r.str(fieldDate),
		UserID:    r.str(fieldUserID),
		UserName:  r.str(fieldUserName),
		CreatedAt: r.timestamp(fieldCreatedAt),
	}
	return b, wrapDecode(BookingsCollection, doc.ID, r.err)
}

func decodeMember(doc docstore.Document) (Member, error) {
	r := reader{fields: doc.Fields}
	m := Member{
		ID:              doc.ID,
		DisplayName:     r.str(fieldDisplayName),
		Email:           r.str(fieldEmail),
		PaymentType:     PaymentType(r.str(fieldPaymentType)),
		LessonsPaid:     r.integer(fieldLessonsPaid),
		LessonsAttended: r.integer(fieldLessonsAttended),
		Notes:           r.str(fieldNotes),
		CreatedAt:       r.timestamp(fieldCreatedAt),
	}
	return m, wrapDecode(MembersCollection, doc.ID, r.err)
}

func decodePayment(doc docstore.Document) (MonthlyPayment, error) {
	r := reader{fields: doc.Fields}
	p := MonthlyPayment{
		YearMonth: doc.ID,
		Paid:      r.boolean(fieldPaid),
		UpdatedAt: r.timestamp(fieldUpdatedAt),
	}
	return p, wrapDecode(paymentsSubcollection, doc.ID, r.err)
}

func decodeExpense(doc docstore.Document) (FixedExpense, error) {
	r := reader{fields: doc.Fields}
	e := FixedExpense{
		ID:          doc.ID,
		Type:        ExpenseType(r.str(fieldType)),
		Amount:      r.number(fieldAmount),
		YearMonth:   r.str(fieldYearMonth),
		Description: r.str(fieldDescription),
		CreatedAt:   r.timestamp(fieldCreatedAt),
	}
	return e, wrapDecode(FixedExpensesCollection, doc.ID, r.err)
}

func decodePendingUser(doc docstore.Document) (PendingUser, error) {
	r := reader{fields: doc.Fields}
	p := PendingUser{
		ID:          doc.ID,
		DisplayName: r.str(fieldDisplayName),
		Email:       r.str(fieldEmail),
		PaymentType: PaymentType(r.str(fieldPaymentType)),
		Notes:       r.str(fieldNotes),
		Status:      r.str(fieldStatus),
		CreatedAt:   r.timestamp(fieldCreatedAt),
	}
	return p, wrapDecode(PendingUsersCollection, doc.ID, r.err)
}

func decodeCensusPerson(doc docstore.Document) (CensusPerson, error) {
	r := reader{fields: doc.Fields}
	p := CensusPerson{
		ID:          doc.ID,
		FirstName:   r.str(fieldFirstName),
		LastName:    r.str(fieldLastName),
		PaymentType: PaymentType(r.str(fieldPaymentType)),
		LessonsPaid: r.integer(fieldLessonsPaid),
		Notes:       r.str(fieldNotes),
		CreatedAt:   r.timestamp(fieldCreatedAt),
	}
	return p, wrapDecode(CensusCollection, doc.ID, r.err)
}

func wrapDecode(collection, id string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s/%s: %w", collection, id, err)
}

func decodeAll[T any](docs []docstore.Document, decode func(docstore.Document) (T, error)) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		row, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}
