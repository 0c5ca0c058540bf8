package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/studio-admin/internal/cache"
	"github.com/example/studio-admin/internal/field"
	"github.com/example/studio-admin/internal/persistence"
)

// LessonBalance compares the lessons a per-lesson payer attended with the
// lessons they paid for. A positive Delta means lessons are owed.
type LessonBalance struct {
	MemberID string
	Paid     int
	Attended int
	Delta    int
}

// Members returns every member ordered by display name. The collection is
// loaded on first use.
func (s *Studio) Members(ctx context.Context) ([]persistence.Member, error) {
	rows, err := s.members.Load(ctx)
	if err != nil {
		return nil, remoteError("Members", persistence.MembersCollection, err)
	}
	return rows, nil
}

// Member returns one cached member.
func (s *Studio) Member(ctx context.Context, id string) (persistence.Member, error) {
	if _, err := s.Members(ctx); err != nil {
		return persistence.Member{}, err
	}
	member, ok := s.members.Find(id)
	if !ok {
		return persistence.Member{}, fmt.Errorf("member %q: %w", id, ErrNotFound)
	}
	return member, nil
}

// AddMember stores a profile under id, normally the uid issued by the
// authentication provider.
func (s *Studio) AddMember(ctx context.Context, id string, input persistence.MemberInput) (member persistence.Member, err error) {
	logger := s.loggerWith(ctx, "AddMember", "member_id", id)
	defer s.finish(ctx, logger, "AddMember", &err)

	id = strings.TrimSpace(id)
	input = normalizeMemberInput(input)
	vErr := validateMemberInput(input)
	if id == "" {
		vErr.add("id", "id is required")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	member, err = s.repos.Members.Create(ctx, id, input)
	if err != nil {
		err = remoteError("AddMember", persistence.MembersCollection, err)
		return
	}
	s.members.Apply(cache.Upsert(member, memberByName))
	s.memberMonth.Apply(cache.Upsert(PaidStatus{PersonID: id, YearMonth: s.engine.CurrentMonth(s.now())}, nil))
	return
}

// EditMember writes the defined members of patch.
func (s *Studio) EditMember(ctx context.Context, id string, patch persistence.MemberPatch) (err error) {
	logger := s.loggerWith(ctx, "EditMember", "member_id", id)
	defer s.finish(ctx, logger, "EditMember", &err)

	if vErr := validateMemberPatch(patch); vErr.HasErrors() {
		err = vErr
		return
	}
	if err = s.repos.Members.Update(ctx, id, patch); err != nil {
		err = remoteError("EditMember", persistence.MembersCollection, err)
		return
	}
	s.members.Apply(cache.Chain(
		cache.Merge(id, patch.Apply),
		sortedBy(memberByName, patch.DisplayName.IsDefined()),
	))
	return
}

// AdjustLessonsPaid adds delta to the paid lessons counter. The result never
// drops below zero.
func (s *Studio) AdjustLessonsPaid(ctx context.Context, id string, delta int) (member persistence.Member, err error) {
	member, err = s.Member(ctx, id)
	if err != nil {
		return
	}
	paid := max(member.LessonsPaid+delta, 0)
	if err = s.EditMember(ctx, id, persistence.MemberPatch{LessonsPaid: field.Set(paid)}); err != nil {
		return
	}
	member.LessonsPaid = paid
	return
}

// SetLessonCounts overwrites both per-lesson counters.
func (s *Studio) SetLessonCounts(ctx context.Context, id string, attended, paid int) error {
	return s.EditMember(ctx, id, persistence.MemberPatch{
		LessonsAttended: field.Set(attended),
		LessonsPaid:     field.Set(paid),
	})
}

// LessonBalance reports attended minus paid lessons. When the attended
// counter was never set, the member's bookings are counted instead.
func (s *Studio) LessonBalance(ctx context.Context, id string) (LessonBalance, error) {
	member, err := s.Member(ctx, id)
	if err != nil {
		return LessonBalance{}, err
	}
	attended := member.LessonsAttended
	if attended == 0 {
		bookings, err := s.UserBookings(ctx, id)
		if err != nil {
			return LessonBalance{}, err
		}
		attended = len(bookings)
	}
	return LessonBalance{
		MemberID: id,
		Paid:     member.LessonsPaid,
		Attended: attended,
		Delta:    attended - member.LessonsPaid,
	}, nil
}

// RemoveMember deletes a member together with their bookings and payment
// records. The returned plan reports every step; a non-nil error means at
// least one step failed and the plan can be passed to RetryCascade.
func (s *Studio) RemoveMember(ctx context.Context, id string) (plan *CascadePlan, err error) {
	logger := s.loggerWith(ctx, "RemoveMember", "member_id", id)
	defer s.finish(ctx, logger, "RemoveMember", &err)

	plan, err = s.planMemberRemoval(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.runCascade(ctx, logger, plan)
	return plan, err
}

func normalizeMemberInput(input persistence.MemberInput) persistence.MemberInput {
	input.DisplayName = strings.TrimSpace(input.DisplayName)
	input.Email = strings.TrimSpace(input.Email)
	input.Notes = strings.TrimSpace(input.Notes)
	if input.PaymentType == "" {
		input.PaymentType = persistence.PaymentMonthly
	}
	return input
}

func validateMemberInput(input persistence.MemberInput) *ValidationError {
	vErr := &ValidationError{}
	if input.DisplayName == "" {
		vErr.add("displayName", "display name is required")
	}
	validateEmail(vErr, input.Email)
	validatePaymentType(vErr, input.PaymentType)
	if input.LessonsPaid < 0 {
		vErr.add("lessonsPaid", "lessons paid must not be negative")
	}
	if input.LessonsAttended < 0 {
		vErr.add("lessonsAttended", "lessons attended must not be negative")
	}
	return vErr
}

func validateMemberPatch(patch persistence.MemberPatch) *ValidationError {
	vErr := &ValidationError{}
	if patch.DisplayName.IsDefined() {
		if name, ok := patch.DisplayName.Get(); !ok || strings.TrimSpace(name) == "" {
			vErr.add("displayName", "display name cannot be cleared")
		}
	}
	if email, ok := patch.Email.Get(); ok {
		validateEmail(vErr, strings.TrimSpace(email))
	}
	if pt, ok := patch.PaymentType.Get(); ok {
		validatePaymentType(vErr, pt)
	}
	if n, ok := patch.LessonsPaid.Get(); ok && n < 0 {
		vErr.add("lessonsPaid", "lessons paid must not be negative")
	}
	if n, ok := patch.LessonsAttended.Get(); ok && n < 0 {
		vErr.add("lessonsAttended", "lessons attended must not be negative")
	}
	return vErr
}

func validateEmail(vErr *ValidationError, email string) {
	if email == "" {
		return
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		vErr.add("email", "email is not valid")
	}
}

func validatePaymentType(vErr *ValidationError, pt persistence.PaymentType) {
	if !pt.Valid() {
		vErr.add("paymentType", fmt.Sprintf("unknown payment type %q", pt))
	}
}

// sortedBy re-sorts rows with less when enabled is true.
func sortedBy[T any](less func(a, b T) int, enabled bool) cache.Patch[T] {
	if !enabled {
		return nil
	}
	return cache.Sort(less)
}
