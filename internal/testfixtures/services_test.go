package testfixtures

import (
	"context"
	"testing"
)

func TestStudioFactoryNewStudio(t *testing.T) {
	factory := NewStudioFactory()
	harness := factory.NewStudio()

	ctx := context.Background()
	course, err := harness.Studio.AddCourse(ctx, NewCourseFixture(WithCourseName("Pilates")).Input())
	if err != nil {
		t.Fatalf("AddCourse failed: %v", err)
	}
	if course.ID != "doc-001" {
		t.Fatalf("expected deterministic id doc-001, got %q", course.ID)
	}
	if !course.CreatedAt.Equal(ReferenceTime()) {
		t.Fatalf("expected CreatedAt from the factory clock, got %v", course.CreatedAt)
	}
	if harness.Remote.Count("create", "courses") != 1 {
		t.Fatalf("expected one create call")
	}
}

func TestStudioFactoryOptions(t *testing.T) {
	clock := NewClock(ReferenceTime().AddDate(0, 1, 0))
	ids := NewIDGenerator("x")
	factory := NewStudioFactory(WithClock(clock), WithIDGenerator(ids), WithLogger(nil))

	if factory.Clock != clock || factory.IDGenerator != ids {
		t.Fatalf("options were not applied")
	}
	if factory.Logger == nil {
		t.Fatalf("expected a discard logger when none is supplied")
	}
}
