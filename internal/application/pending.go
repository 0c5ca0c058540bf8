package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/studio-admin/internal/cache"
	"github.com/example/studio-admin/internal/persistence"
)

// PendingUsers returns the onboarding queue.
func (s *Studio) PendingUsers(ctx context.Context) ([]persistence.PendingUser, error) {
	rows, err := s.pending.Load(ctx)
	if err != nil {
		return nil, remoteError("PendingUsers", persistence.PendingUsersCollection, err)
	}
	return rows, nil
}

// AddPendingUser queues a signup and returns its generated key.
func (s *Studio) AddPendingUser(ctx context.Context, input persistence.PendingUserInput) (user persistence.PendingUser, err error) {
	logger := s.loggerWith(ctx, "AddPendingUser")
	defer s.finish(ctx, logger, "AddPendingUser", &err)

	input.DisplayName = strings.TrimSpace(input.DisplayName)
	input.Email = strings.TrimSpace(input.Email)
	input.Notes = strings.TrimSpace(input.Notes)
	if input.PaymentType == "" {
		input.PaymentType = persistence.PaymentMonthly
	}

	vErr := &ValidationError{}
	if input.DisplayName == "" {
		vErr.add("displayName", "display name is required")
	}
	validateEmail(vErr, input.Email)
	validatePaymentType(vErr, input.PaymentType)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	user, err = s.repos.Pending.Create(ctx, input)
	if err != nil {
		err = remoteError("AddPendingUser", persistence.PendingUsersCollection, err)
		return
	}
	s.pending.Apply(cache.Insert(user, nil))
	return
}

// EditPendingUser writes the defined members of patch.
func (s *Studio) EditPendingUser(ctx context.Context, id string, patch persistence.PendingUserPatch) (err error) {
	logger := s.loggerWith(ctx, "EditPendingUser", "pending_id", id)
	defer s.finish(ctx, logger, "EditPendingUser", &err)

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
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if err = s.repos.Pending.Update(ctx, id, patch); err != nil {
		err = remoteError("EditPendingUser", persistence.PendingUsersCollection, err)
		return
	}
	s.pending.Apply(cache.Merge(id, patch.Apply))
	return
}

// RemovePendingUser drops a signup from the queue.
func (s *Studio) RemovePendingUser(ctx context.Context, id string) (err error) {
	logger := s.loggerWith(ctx, "RemovePendingUser", "pending_id", id)
	defer s.finish(ctx, logger, "RemovePendingUser", &err)

	if err = s.repos.Pending.Delete(ctx, id); err != nil {
		err = remoteError("RemovePendingUser", persistence.PendingUsersCollection, err)
		return
	}
	s.pending.Apply(cache.Remove[persistence.PendingUser](id))
	return
}

// ClaimPendingUser turns the queued signup matching email into a member
// profile stored under uid, then drops it from the queue. It returns
// ErrNotFound when no signup carries that email.
func (s *Studio) ClaimPendingUser(ctx context.Context, uid, email string) (member persistence.Member, err error) {
	queue, err := s.PendingUsers(ctx)
	if err != nil {
		return persistence.Member{}, err
	}
	email = strings.TrimSpace(email)
	var match *persistence.PendingUser
	for i := range queue {
		if email != "" && strings.EqualFold(queue[i].Email, email) {
			match = &queue[i]
			break
		}
	}
	if match == nil {
		return persistence.Member{}, fmt.Errorf("pending signup for %q: %w", email, ErrNotFound)
	}

	member, err = s.AddMember(ctx, uid, persistence.MemberInput{
		DisplayName: match.DisplayName,
		Email:       match.Email,
		PaymentType: match.PaymentType,
		Notes:       match.Notes,
	})
	if err != nil {
		return persistence.Member{}, err
	}
	if err = s.RemovePendingUser(ctx, match.ID); err != nil {
		return member, err
	}
	return member, nil
}
