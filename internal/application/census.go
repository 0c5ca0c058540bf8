package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/studio-admin/internal/cache"
	"github.com/example/studio-admin/internal/field"
	"github.com/example/studio-admin/internal/persistence"
)

// Census returns the registry ordered by last name.
func (s *Studio) Census(ctx context.Context) ([]persistence.CensusPerson, error) {
	rows, err := s.census.Load(ctx)
	if err != nil {
		return nil, remoteError("Census", persistence.CensusCollection, err)
	}
	return rows, nil
}

// Person returns one cached census entry.
func (s *Studio) Person(ctx context.Context, id string) (persistence.CensusPerson, error) {
	if _, err := s.Census(ctx); err != nil {
		return persistence.CensusPerson{}, err
	}
	person, ok := s.census.Find(id)
	if !ok {
		return persistence.CensusPerson{}, fmt.Errorf("census person %q: %w", id, ErrNotFound)
	}
	return person, nil
}

// SearchCensus matches text against full names, ignoring case. Empty text
// returns the whole registry.
func (s *Studio) SearchCensus(ctx context.Context, text string) ([]persistence.CensusPerson, error) {
	people, err := s.Census(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return people, nil
	}
	var out []persistence.CensusPerson
	for _, p := range people {
		full := strings.ToLower(p.FullName())
		reversed := strings.ToLower(p.LastName + " " + p.FirstName)
		if strings.Contains(full, needle) || strings.Contains(reversed, needle) {
			out = append(out, p)
		}
	}
	return out, nil
}

// AddPerson validates and stores a census entry.
func (s *Studio) AddPerson(ctx context.Context, input persistence.CensusInput) (person persistence.CensusPerson, err error) {
	logger := s.loggerWith(ctx, "AddPerson")
	defer s.finish(ctx, logger, "AddPerson", &err)

	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Notes = strings.TrimSpace(input.Notes)
	if input.PaymentType == "" {
		input.PaymentType = persistence.PaymentMonthly
	}

	vErr := &ValidationError{}
	if input.FirstName == "" {
		vErr.add("firstName", "first name is required")
	}
	if input.LastName == "" {
		vErr.add("lastName", "last name is required")
	}
	validatePaymentType(vErr, input.PaymentType)
	if input.LessonsPaid < 0 {
		vErr.add("lessonsPaid", "lessons paid must not be negative")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	person, err = s.repos.Census.Create(ctx, input)
	if err != nil {
		err = remoteError("AddPerson", persistence.CensusCollection, err)
		return
	}
	s.census.Apply(cache.Insert(person, censusByLastName))
	s.censusMonth.Apply(cache.Upsert(PaidStatus{PersonID: person.ID, YearMonth: s.engine.CurrentMonth(s.now())}, nil))
	return
}

// EditPerson writes the defined members of patch.
func (s *Studio) EditPerson(ctx context.Context, id string, patch persistence.CensusPatch) (err error) {
	logger := s.loggerWith(ctx, "EditPerson", "person_id", id)
	defer s.finish(ctx, logger, "EditPerson", &err)

	vErr := &ValidationError{}
	for name, v := range map[string]field.Value[string]{"firstName": patch.FirstName, "lastName": patch.LastName} {
		if v.IsDefined() {
			if value, ok := v.Get(); !ok || strings.TrimSpace(value) == "" {
				vErr.add(name, "name cannot be cleared")
			}
		}
	}
	if pt, ok := patch.PaymentType.Get(); ok {
		validatePaymentType(vErr, pt)
	}
	if n, ok := patch.LessonsPaid.Get(); ok && n < 0 {
		vErr.add("lessonsPaid", "lessons paid must not be negative")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if err = s.repos.Census.Update(ctx, id, patch); err != nil {
		err = remoteError("EditPerson", persistence.CensusCollection, err)
		return
	}
	s.census.Apply(cache.Chain(
		cache.Merge(id, patch.Apply),
		sortedBy(censusByLastName, patch.FirstName.IsDefined() || patch.LastName.IsDefined()),
	))
	return
}

// AdjustPersonLessons adds delta to a per-lesson payer's counter, clamped at zero.
func (s *Studio) AdjustPersonLessons(ctx context.Context, id string, delta int) (person persistence.CensusPerson, err error) {
	person, err = s.Person(ctx, id)
	if err != nil {
		return
	}
	if person.PaymentType != persistence.PaymentPerLesson {
		err = &ValidationError{FieldErrors: map[string]string{"paymentType": "lesson counter applies to per-lesson payers only"}}
		return
	}
	paid := max(person.LessonsPaid+delta, 0)
	if err = s.EditPerson(ctx, id, persistence.CensusPatch{LessonsPaid: field.Set(paid)}); err != nil {
		return
	}
	person.LessonsPaid = paid
	return
}

// RemovePerson deletes a census entry after its payment months.
func (s *Studio) RemovePerson(ctx context.Context, id string) (plan *CascadePlan, err error) {
	logger := s.loggerWith(ctx, "RemovePerson", "person_id", id)
	defer s.finish(ctx, logger, "RemovePerson", &err)

	plan, err = s.planCensusRemoval(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.runCascade(ctx, logger, plan)
	return plan, err
}
