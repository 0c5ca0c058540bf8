package application_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/example/studio-admin/internal/application"
	"github.com/example/studio-admin/internal/field"
	"github.com/example/studio-admin/internal/persistence"
	"github.com/example/studio-admin/internal/testfixtures"
)

func newHarness(t *testing.T) *testfixtures.StudioHarness {
	t.Helper()
	return testfixtures.NewStudioFactory().NewStudio()
}

func mustAddCourse(t *testing.T, h *testfixtures.StudioHarness, opts ...testfixtures.CourseOption) persistence.Course {
	t.Helper()
	course, err := h.Studio.AddCourse(context.Background(), testfixtures.NewCourseFixture(opts...).Input())
	if err != nil {
		t.Fatalf("AddCourse failed: %v", err)
	}
	return course
}

func TestStudio_Init(t *testing.T) {
	t.Parallel()

	t.Run("loads once", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		ctx := context.Background()
		mustAddCourse(t, h)

		for i := 0; i < 3; i++ {
			if err := h.Studio.Init(ctx); err != nil {
				t.Fatalf("Init failed: %v", err)
			}
		}
		if got := h.Remote.Count("find", persistence.CoursesCollection); got != 1 {
			t.Fatalf("expected one course query, got %d", got)
		}
		if got := h.Remote.Count("find", persistence.BookingsCollection); got != 1 {
			t.Fatalf("expected one booking query, got %d", got)
		}
		if got := h.Remote.Count("find", persistence.LessonOverridesCollection); got != 1 {
			t.Fatalf("expected one override query per course, got %d", got)
		}
		if !h.Studio.Loaded() {
			t.Fatalf("expected studio to report loaded")
		}
	})

	t.Run("bookings are loaded for the two week window in one query", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		if err := h.Studio.Init(context.Background()); err != nil {
			t.Fatalf("Init failed: %v", err)
		}
		window := h.Studio.Window()
		if len(window) != 14 || window[0] != "2024-03-04" || window[13] != "2024-03-17" {
			t.Fatalf("unexpected window %v", window)
		}
		for _, call := range h.Remote.Calls() {
			if call.Collection == persistence.BookingsCollection {
				if len(call.Query.Where) != 1 || call.Query.Where[0].Field != "date" {
					t.Fatalf("expected a single date filter, got %+v", call.Query.Where)
				}
			}
		}
	})

	t.Run("refresh fetches again", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		ctx := context.Background()
		if err := h.Studio.Init(ctx); err != nil {
			t.Fatalf("Init failed: %v", err)
		}
		if err := h.Studio.Refresh(ctx); err != nil {
			t.Fatalf("Refresh failed: %v", err)
		}
		if got := h.Remote.Count("find", persistence.CoursesCollection); got != 2 {
			t.Fatalf("expected two course queries, got %d", got)
		}
	})

	t.Run("a failed load reports a remote error and retries later", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		ctx := context.Background()
		h.Remote.FailOn("find", persistence.BookingsCollection, "", nil)

		err := h.Studio.Init(ctx)
		var rErr *application.RemoteError
		if !errors.As(err, &rErr) {
			t.Fatalf("expected RemoteError, got %v", err)
		}
		h.Remote.Heal()
		if err := h.Studio.Init(ctx); err != nil {
			t.Fatalf("Init after heal failed: %v", err)
		}
	})
}

func TestStudio_ConcurrentFirstLoadFetchesTwice(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	mustAddCourse(t, h, testfixtures.WithCourseName("Yoga"))
	h.Remote.ResetCalls()

	// AddCourse patched an unloaded cache; a fresh studio shares the store.
	studio := application.NewStudio(h.Repos, application.Config{}, h.Clock.NowFunc())
	release := h.Remote.Hold(persistence.CoursesCollection)

	var wg sync.WaitGroup
	results := make([][]persistence.Course, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rows, err := studio.Courses(context.Background())
			if err != nil {
				t.Errorf("Courses failed: %v", err)
			}
			results[i] = rows
		}(i)
	}
	<-h.Remote.Entered()
	<-h.Remote.Entered()
	release()
	wg.Wait()

	if got := h.Remote.Count("find", persistence.CoursesCollection); got != 2 {
		t.Fatalf("expected two fetches, got %d", got)
	}
	for i, rows := range results {
		if len(rows) != 1 || rows[0].Name != "Yoga" {
			t.Fatalf("result %d: unexpected rows %+v", i, rows)
		}
	}
}

func TestStudio_CreateDuringFirstLoadIsKept(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	release := h.Remote.Hold(persistence.CoursesCollection)

	var wg sync.WaitGroup
	var loaded []persistence.Course
	wg.Add(1)
	go func() {
		defer wg.Done()
		rows, err := h.Studio.Courses(context.Background())
		if err != nil {
			t.Errorf("Courses failed: %v", err)
		}
		loaded = rows
	}()
	// The fetch has read the empty collection and waits to reply.
	<-h.Remote.Entered()
	course := mustAddCourse(t, h, testfixtures.WithCourseName("Yoga"))
	release()
	wg.Wait()

	if len(loaded) != 1 || loaded[0].ID != course.ID {
		t.Fatalf("load must include the course created while it was in flight, got %+v", loaded)
	}
	rows, err := h.Studio.Courses(context.Background())
	if err != nil {
		t.Fatalf("Courses failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != course.ID {
		t.Fatalf("expected exactly the created course, got %+v", rows)
	}
	if got := h.Remote.Count("find", persistence.CoursesCollection); got != 1 {
		t.Fatalf("expected one fetch, got %d", got)
	}
}

func TestStudio_Courses(t *testing.T) {
	t.Parallel()

	t.Run("write then read without refetch", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		ctx := context.Background()
		if _, err := h.Studio.Courses(ctx); err != nil {
			t.Fatalf("Courses failed: %v", err)
		}
		mustAddCourse(t, h, testfixtures.WithCourseName("Zumba"))
		mustAddCourse(t, h, testfixtures.WithCourseName("Aerial"))

		courses, err := h.Studio.Courses(ctx)
		if err != nil {
			t.Fatalf("Courses failed: %v", err)
		}
		if len(courses) != 2 || courses[0].Name != "Aerial" || courses[1].Name != "Zumba" {
			t.Fatalf("expected sorted courses, got %+v", courses)
		}
		if got := h.Remote.Count("find", persistence.CoursesCollection); got != 1 {
			t.Fatalf("expected a single course query, got %d", got)
		}
	})

	t.Run("validation short-circuits before the remote call", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, err := h.Studio.AddCourse(context.Background(), persistence.CourseInput{
			Name:     "  ",
			Schedule: []persistence.Slot{{Weekday: 9, StartTime: "25:00", EndTime: "10:00"}},
		})
		var vErr *application.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, key := range []string{"name", "schedule[0].dayOfWeek", "schedule[0].startTime"} {
			if _, ok := vErr.FieldErrors[key]; !ok {
				t.Fatalf("expected %s error, got %v", key, vErr.FieldErrors)
			}
		}
		if len(h.Remote.Calls()) != 0 {
			t.Fatalf("expected no remote calls, got %d", len(h.Remote.Calls()))
		}
	})

	t.Run("remote failure leaves the cache unchanged", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		ctx := context.Background()
		course := mustAddCourse(t, h, testfixtures.WithCourseName("Boxe"))
		before, _ := h.Studio.Courses(ctx)

		h.Remote.FailOn("", persistence.CoursesCollection, "", nil)
		if _, err := h.Studio.AddCourse(ctx, testfixtures.NewCourseFixture().Input()); application.ErrorKind(err) != "remote" {
			t.Fatalf("expected remote error, got %v", err)
		}
		if err := h.Studio.EditCourse(ctx, course.ID, persistence.CoursePatch{Name: field.Set("Kick")}); !errors.Is(err, testfixtures.ErrRemoteUnavailable) {
			t.Fatalf("expected remote failure to be wrapped, got %v", err)
		}
		if err := h.Studio.RemoveCourse(ctx, course.ID); err == nil {
			t.Fatalf("expected RemoveCourse to fail")
		}

		after, _ := h.Studio.Courses(ctx)
		if len(after) != len(before) || after[0].Name != "Boxe" {
			t.Fatalf("cache changed after failures: before %+v after %+v", before, after)
		}
	})

	t.Run("edit sends only defined fields and merges the cache", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		ctx := context.Background()
		course := mustAddCourse(t, h, testfixtures.WithCourseName("Yoga"))
		h.Remote.ResetCalls()

		if err := h.Studio.EditCourse(ctx, course.ID, persistence.CoursePatch{Capacity: field.Set(12)}); err != nil {
			t.Fatalf("EditCourse failed: %v", err)
		}
		calls := h.Remote.Calls()
		if len(calls) != 1 || len(calls[0].Fields) != 1 {
			t.Fatalf("expected a single one-field update, got %+v", calls)
		}
		cached, _ := h.Studio.Course(ctx, course.ID)
		if cached.Capacity != 12 || cached.Name != "Yoga" {
			t.Fatalf("unexpected cached course %+v", cached)
		}
	})

	t.Run("edit of a missing course", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		err := h.Studio.EditCourse(context.Background(), "missing", persistence.CoursePatch{Capacity: field.Set(3)})
		if !errors.Is(err, application.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("failed mutations are counted", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.Remote.FailOn("create", persistence.CoursesCollection, "", nil)
		_, _ = h.Studio.AddCourse(context.Background(), testfixtures.NewCourseFixture().Input())

		expected := `
# HELP studio_relay_mutations_total Relayed mutations by operation and outcome.
# TYPE studio_relay_mutations_total counter
studio_relay_mutations_total{operation="AddCourse",outcome="failure"} 1
`
		if err := testutil.GatherAndCompare(h.Registry, strings.NewReader(expected), "studio_relay_mutations_total"); err != nil {
			t.Fatalf("unexpected metrics: %v", err)
		}
	})
}
