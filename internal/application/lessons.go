package application

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/example/studio-admin/internal/cache"
	"github.com/example/studio-admin/internal/persistence"
	"github.com/example/studio-admin/internal/recurrence"
)

// LessonView is a resolved lesson with its booking count.
type LessonView struct {
	recurrence.Lesson
	Booked    int
	FreeSpots int
}

// OverridesFor returns the cached overrides of one course.
func (s *Studio) OverridesFor(ctx context.Context, courseID string) ([]persistence.LessonOverride, error) {
	rows, err := s.overrides.Load(ctx)
	if err != nil {
		return nil, remoteError("OverridesFor", persistence.LessonOverridesCollection, err)
	}
	return slices.DeleteFunc(rows, func(o persistence.LessonOverride) bool { return o.CourseID != courseID }), nil
}

// SetOverride cancels or reschedules one dated lesson. Writes for the same
// course and date address the same document, so the last write wins.
func (s *Studio) SetOverride(ctx context.Context, input persistence.OverrideInput) (override persistence.LessonOverride, err error) {
	logger := s.loggerWith(ctx, "SetOverride", "course_id", input.CourseID, "date", input.Date)
	defer s.finish(ctx, logger, "SetOverride", &err)

	input.NewStartTime = blankToNil(input.NewStartTime)
	input.NewEndTime = blankToNil(input.NewEndTime)
	if vErr := validateOverrideInput(input); vErr.HasErrors() {
		err = vErr
		return
	}
	if _, err = s.Course(ctx, input.CourseID); err != nil {
		return
	}

	override, err = s.repos.Overrides.Upsert(ctx, input)
	if err != nil {
		err = remoteError("SetOverride", persistence.LessonOverridesCollection, err)
		return
	}
	s.overrides.Apply(cache.Upsert(override, nil))
	return
}

// RemoveOverride restores the weekly pattern for one dated lesson.
func (s *Studio) RemoveOverride(ctx context.Context, courseID, date string) (err error) {
	logger := s.loggerWith(ctx, "RemoveOverride", "course_id", courseID, "date", date)
	defer s.finish(ctx, logger, "RemoveOverride", &err)

	id := persistence.OverrideKey(courseID, date)
	if err = s.repos.Overrides.Delete(ctx, id); err != nil {
		err = remoteError("RemoveOverride", persistence.LessonOverridesCollection, err)
		return
	}
	s.overrides.Apply(cache.Remove[persistence.LessonOverride](id))
	return
}

// blankToNil treats a blank time as not provided.
func blankToNil(v *string) *string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	return &trimmed
}

func validateOverrideInput(input persistence.OverrideInput) *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(input.CourseID) == "" {
		vErr.add("courseId", "course is required")
	}
	if !recurrence.ValidDate(input.Date) {
		vErr.add("originalDate", "date must be YYYY-MM-DD")
	}
	if input.NewStartTime != nil && !recurrence.ValidClock(*input.NewStartTime) {
		vErr.add("newStartTime", "start time must be HH:mm")
	}
	if input.NewEndTime != nil && !recurrence.ValidClock(*input.NewEndTime) {
		vErr.add("newEndTime", "end time must be HH:mm")
	}
	if !input.Cancelled && input.NewStartTime == nil && input.NewEndTime == nil {
		vErr.add("cancelled", "an override must cancel or reschedule the lesson")
	}
	return vErr
}

// ResolveLesson returns the lessons of a course on date after applying its
// override, if any.
func (s *Studio) ResolveLesson(ctx context.Context, courseID, date string) ([]recurrence.Lesson, error) {
	if !recurrence.ValidDate(date) {
		return nil, &ValidationError{FieldErrors: map[string]string{"date": "date must be YYYY-MM-DD"}}
	}
	course, err := s.Course(ctx, courseID)
	if err != nil {
		return nil, err
	}
	overrides, err := s.OverridesFor(ctx, courseID)
	if err != nil {
		return nil, err
	}
	var override *persistence.LessonOverride
	for i := range overrides {
		if overrides[i].OriginalDate == date {
			override = &overrides[i]
			break
		}
	}
	return s.engine.Resolve(course, date, override)
}

// Lessons expands every course over [from, to] with booking counts. Dates
// inside the booking window are counted from the cache; other dates are
// queried remotely.
func (s *Studio) Lessons(ctx context.Context, from, to string) ([]LessonView, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	courses := s.courses.Rows()
	byCourse := make(map[string]map[string]persistence.LessonOverride)
	for _, o := range s.overrides.Rows() {
		if byCourse[o.CourseID] == nil {
			byCourse[o.CourseID] = make(map[string]persistence.LessonOverride)
		}
		byCourse[o.CourseID][o.OriginalDate] = o
	}

	var lessons []recurrence.Lesson
	for _, course := range courses {
		expanded, err := s.engine.Expand(course, byCourse[course.ID], from, to)
		if err != nil {
			return nil, &ValidationError{FieldErrors: map[string]string{"range": err.Error()}}
		}
		lessons = append(lessons, expanded...)
	}

	counts, err := s.bookingCounts(ctx, lessons)
	if err != nil {
		return nil, err
	}

	views := make([]LessonView, 0, len(lessons))
	for _, l := range lessons {
		booked := counts[lessonKey(l.CourseID, l.Date)]
		views = append(views, LessonView{Lesson: l, Booked: booked, FreeSpots: max(l.Capacity-booked, 0)})
	}
	slices.SortStableFunc(views, func(a, b LessonView) int {
		return cmp.Or(
			cmp.Compare(a.Date, b.Date),
			cmp.Compare(a.StartTime, b.StartTime),
			cmp.Compare(a.CourseName, b.CourseName),
		)
	})
	return views, nil
}

func lessonKey(courseID, date string) string {
	return courseID + "|" + date
}

func (s *Studio) bookingCounts(ctx context.Context, lessons []recurrence.Lesson) (map[string]int, error) {
	counts := make(map[string]int)
	var outside []string
	seen := make(map[string]bool)
	for _, l := range lessons {
		if s.inWindow(l.Date) || seen[l.Date] {
			continue
		}
		seen[l.Date] = true
		outside = append(outside, l.Date)
	}

	for _, b := range s.bookings.Rows() {
		if s.inWindow(b.Date) {
			counts[lessonKey(b.CourseID, b.Date)]++
		}
	}
	for chunk := range slices.Chunk(outside, maxInValues) {
		rows, err := s.repos.Bookings.ListByDates(ctx, chunk)
		if err != nil {
			return nil, remoteError("Lessons", persistence.BookingsCollection, err)
		}
		for _, b := range rows {
			counts[lessonKey(b.CourseID, b.Date)]++
		}
	}
	return counts, nil
}

// Book creates a booking. Booking the same lesson twice is allowed.
func (s *Studio) Book(ctx context.Context, input persistence.BookingInput) (booking persistence.Booking, err error) {
	logger := s.loggerWith(ctx, "Book", "course_id", input.CourseID, "date", input.Date, "user_id", input.UserID)
	defer s.finish(ctx, logger, "Book", &err)

	input.UserName = strings.TrimSpace(input.UserName)
	if vErr := validateBookingInput(input); vErr.HasErrors() {
		err = vErr
		return
	}
	if _, err = s.Course(ctx, input.CourseID); err != nil {
		return
	}

	booking, err = s.repos.Bookings.Create(ctx, input)
	if err != nil {
		err = remoteError("Book", persistence.BookingsCollection, err)
		return
	}
	s.bookings.Apply(cache.Insert(booking, nil))
	s.lookups.Forget(booking.Date)
	return
}

// CancelBooking deletes a booking.
func (s *Studio) CancelBooking(ctx context.Context, id string) (err error) {
	logger := s.loggerWith(ctx, "CancelBooking", "booking_id", id)
	defer s.finish(ctx, logger, "CancelBooking", &err)

	if err = s.repos.Bookings.Delete(ctx, id); err != nil {
		err = remoteError("CancelBooking", persistence.BookingsCollection, err)
		return
	}
	if cached, ok := s.bookings.Find(id); ok {
		s.lookups.Forget(cached.Date)
	} else {
		s.lookups.Invalidate()
	}
	s.bookings.Apply(cache.Remove[persistence.Booking](id))
	return
}

func validateBookingInput(input persistence.BookingInput) *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(input.CourseID) == "" {
		vErr.add("courseId", "course is required")
	}
	if !recurrence.ValidDate(input.Date) {
		vErr.add("date", "date must be YYYY-MM-DD")
	}
	if strings.TrimSpace(input.UserID) == "" {
		vErr.add("userId", "user is required")
	}
	return vErr
}

// MyBookings returns the cached bookings of one user.
func (s *Studio) MyBookings(ctx context.Context, userID string) ([]persistence.Booking, error) {
	return s.selectBookings(ctx, "MyBookings", func(b persistence.Booking) bool { return b.UserID == userID })
}

// BookingsForDate returns the cached bookings of one day.
func (s *Studio) BookingsForDate(ctx context.Context, date string) ([]persistence.Booking, error) {
	return s.selectBookings(ctx, "BookingsForDate", func(b persistence.Booking) bool { return b.Date == date })
}

// BookingsForLesson returns the cached bookings of one dated lesson.
func (s *Studio) BookingsForLesson(ctx context.Context, courseID, date string) ([]persistence.Booking, error) {
	return s.selectBookings(ctx, "BookingsForLesson", func(b persistence.Booking) bool {
		return b.CourseID == courseID && b.Date == date
	})
}

func (s *Studio) selectBookings(ctx context.Context, op string, keep func(persistence.Booking) bool) ([]persistence.Booking, error) {
	rows, err := s.bookings.Load(ctx)
	if err != nil {
		return nil, remoteError(op, persistence.BookingsCollection, err)
	}
	return slices.DeleteFunc(rows, func(b persistence.Booking) bool { return !keep(b) }), nil
}

// RemoteBookingsForDate reads the bookings of a day from the store. Dates in
// the booking window are served from the cache.
func (s *Studio) RemoteBookingsForDate(ctx context.Context, date string) ([]persistence.Booking, error) {
	if !recurrence.ValidDate(date) {
		return nil, &ValidationError{FieldErrors: map[string]string{"date": "date must be YYYY-MM-DD"}}
	}
	if _, err := s.bookings.Load(ctx); err != nil {
		return nil, remoteError("RemoteBookingsForDate", persistence.BookingsCollection, err)
	}
	if s.inWindow(date) {
		return s.BookingsForDate(ctx, date)
	}
	if rows, ok := s.lookups.Get(date); ok {
		return rows, nil
	}
	rows, err := s.repos.Bookings.ListByDate(ctx, date)
	if err != nil {
		return nil, remoteError("RemoteBookingsForDate", persistence.BookingsCollection, err)
	}
	s.lookups.Store(date, rows)
	return rows, nil
}

// UserBookings reads every booking of a user from the store, including
// dates outside the booking window.
func (s *Studio) UserBookings(ctx context.Context, userID string) ([]persistence.Booking, error) {
	rows, err := s.repos.Bookings.ListByUser(ctx, userID)
	if err != nil {
		return nil, remoteError("UserBookings", persistence.BookingsCollection, err)
	}
	slices.SortStableFunc(rows, func(a, b persistence.Booking) int { return cmp.Compare(a.Date, b.Date) })
	return rows, nil
}
