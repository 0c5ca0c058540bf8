package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/studio-admin/internal/cache"
	"github.com/example/studio-admin/internal/persistence"
	"github.com/example/studio-admin/internal/recurrence"
)

// Courses returns every course ordered by name.
func (s *Studio) Courses(ctx context.Context) ([]persistence.Course, error) {
	rows, err := s.courses.Load(ctx)
	if err != nil {
		return nil, remoteError("Courses", persistence.CoursesCollection, err)
	}
	return rows, nil
}

// Course returns one cached course.
func (s *Studio) Course(ctx context.Context, id string) (persistence.Course, error) {
	if _, err := s.Courses(ctx); err != nil {
		return persistence.Course{}, err
	}
	course, ok := s.courses.Find(id)
	if !ok {
		return persistence.Course{}, fmt.Errorf("course %q: %w", id, ErrNotFound)
	}
	return course, nil
}

// AddCourse validates and stores a course, then inserts it into the cache
// keeping the name order.
func (s *Studio) AddCourse(ctx context.Context, input persistence.CourseInput) (course persistence.Course, err error) {
	if s == nil {
		err = fmt.Errorf("Studio is nil")
		return
	}
	logger := s.loggerWith(ctx, "AddCourse", "course_name", input.Name)
	defer s.finish(ctx, logger, "AddCourse", &err)

	input.Name = strings.TrimSpace(input.Name)
	if vErr := validateCourseInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	course, err = s.repos.Courses.Create(ctx, input)
	if err != nil {
		err = remoteError("AddCourse", persistence.CoursesCollection, err)
		return
	}
	s.courses.Apply(cache.Insert(course, courseByName))
	return
}

// EditCourse writes the defined members of patch and merges them into the
// cached row.
func (s *Studio) EditCourse(ctx context.Context, id string, patch persistence.CoursePatch) (err error) {
	logger := s.loggerWith(ctx, "EditCourse", "course_id", id)
	defer s.finish(ctx, logger, "EditCourse", &err)

	if vErr := validateCoursePatch(patch); vErr.HasErrors() {
		err = vErr
		return
	}

	if err = s.repos.Courses.Update(ctx, id, patch); err != nil {
		err = remoteError("EditCourse", persistence.CoursesCollection, err)
		return
	}
	s.courses.Apply(cache.Chain(
		cache.Merge(id, patch.Apply),
		sortedBy(courseByName, patch.Name.IsDefined()),
	))
	return
}

// RemoveCourse deletes a course. Its overrides and bookings stay in the store.
func (s *Studio) RemoveCourse(ctx context.Context, id string) (err error) {
	logger := s.loggerWith(ctx, "RemoveCourse", "course_id", id)
	defer s.finish(ctx, logger, "RemoveCourse", &err)

	if err = s.repos.Courses.Delete(ctx, id); err != nil {
		err = remoteError("RemoveCourse", persistence.CoursesCollection, err)
		return
	}
	s.courses.Apply(cache.Remove[persistence.Course](id))
	return
}

func validateCourseInput(input persistence.CourseInput) *ValidationError {
	vErr := &ValidationError{}
	if input.Name == "" {
		vErr.add("name", "name is required")
	}
	if input.Capacity < 0 {
		vErr.add("capacity", "capacity must not be negative")
	}
	vErr.merge(validateSchedule(input.Schedule))
	return vErr
}

func validateCoursePatch(patch persistence.CoursePatch) *ValidationError {
	vErr := &ValidationError{}
	if patch.Name.IsDefined() {
		if name, ok := patch.Name.Get(); !ok || strings.TrimSpace(name) == "" {
			vErr.add("name", "name cannot be cleared")
		}
	}
	if patch.Capacity.IsDefined() {
		if capacity, ok := patch.Capacity.Get(); !ok || capacity <= 0 {
			vErr.add("capacity", "capacity must be positive")
		}
	}
	if slots, ok := patch.Schedule.Get(); ok {
		vErr.merge(validateSchedule(slots))
	}
	return vErr
}

func validateSchedule(slots []persistence.Slot) *ValidationError {
	vErr := &ValidationError{}
	for i, slot := range slots {
		prefix := fmt.Sprintf("schedule[%d]", i)
		if slot.Weekday < 0 || slot.Weekday > 6 {
			vErr.add(prefix+".dayOfWeek", "weekday must be between 0 and 6")
		}
		if !recurrence.ValidClock(slot.StartTime) {
			vErr.add(prefix+".startTime", "start time must be HH:mm")
		}
		if !recurrence.ValidClock(slot.EndTime) {
			vErr.add(prefix+".endTime", "end time must be HH:mm")
		}
		if recurrence.ValidClock(slot.StartTime) && recurrence.ValidClock(slot.EndTime) && slot.EndTime <= slot.StartTime {
			vErr.add(prefix+".endTime", "end time must be after start time")
		}
	}
	return vErr
}
