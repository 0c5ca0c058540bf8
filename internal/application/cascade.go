package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/example/studio-admin/internal/cache"
	"github.com/example/studio-admin/internal/persistence"
)

// StepKind names what a cascade step deletes.
type StepKind string

const (
	StepProfile StepKind = "profile"
	StepBooking StepKind = "booking"
	StepPayment StepKind = "payment"
)

// DeletionStep is one idempotent delete of a cascade.
type DeletionStep struct {
	Kind       StepKind
	Collection string
	ID         string
	// Phase orders steps: a phase starts only once every earlier phase completed.
	Phase int
	Done  bool
	Err   error
}

// CascadePlan lists the deletes needed to remove a person and their
// dependent documents.
type CascadePlan struct {
	Owner    persistence.PaymentOwner
	PersonID string
	Steps    []*DeletionStep

	mu sync.Mutex
}

// Complete reports whether every step succeeded.
func (p *CascadePlan) Complete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, step := range p.Steps {
		if !step.Done {
			return false
		}
	}
	return true
}

// Pending returns the steps that did not succeed yet.
func (p *CascadePlan) Pending() []*DeletionStep {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*DeletionStep
	for _, step := range p.Steps {
		if !step.Done {
			out = append(out, step)
		}
	}
	return out
}

// Err joins the errors of failed steps.
func (p *CascadePlan) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for _, step := range p.Steps {
		if step.Err != nil {
			errs = append(errs, step.Err)
		}
	}
	return errors.Join(errs...)
}

func (p *CascadePlan) record(step *DeletionStep, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	step.Err = err
	step.Done = err == nil
}

func (p *CascadePlan) phases() [][]*DeletionStep {
	p.mu.Lock()
	defer p.mu.Unlock()
	last := 0
	for _, step := range p.Steps {
		last = max(last, step.Phase)
	}
	out := make([][]*DeletionStep, last+1)
	for _, step := range p.Steps {
		if !step.Done {
			out[step.Phase] = append(out[step.Phase], step)
		}
	}
	return out
}

// ErrCascadeBlocked marks steps skipped because an earlier phase failed.
var ErrCascadeBlocked = errors.New("application: waiting for earlier cascade steps")

// planMemberRemoval reads the bookings and payment months of a member. Every
// delete is independent, so all steps share one phase.
func (s *Studio) planMemberRemoval(ctx context.Context, id string) (*CascadePlan, error) {
	plan := &CascadePlan{Owner: persistence.MemberPayments, PersonID: id}
	plan.Steps = append(plan.Steps, &DeletionStep{Kind: StepProfile, Collection: persistence.MembersCollection, ID: id})

	var bookings []persistence.Booking
	var payments []persistence.MonthlyPayment
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		bookings, err = s.repos.Bookings.ListByUser(gctx, id)
		return remoteError("RemoveMember", persistence.BookingsCollection, err)
	})
	g.Go(func() (err error) {
		payments, err = s.repos.Payments.List(gctx, persistence.MemberPayments, id)
		return remoteError("RemoveMember", persistence.PaymentsCollection(persistence.MemberPayments, id), err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, b := range bookings {
		plan.Steps = append(plan.Steps, &DeletionStep{Kind: StepBooking, Collection: persistence.BookingsCollection, ID: b.ID})
	}
	for _, p := range payments {
		plan.Steps = append(plan.Steps, &DeletionStep{
			Kind:       StepPayment,
			Collection: persistence.PaymentsCollection(persistence.MemberPayments, id),
			ID:         p.YearMonth,
		})
	}
	return plan, nil
}

// planCensusRemoval deletes the payment months before the profile so a
// partial failure never leaves payments without their owner.
func (s *Studio) planCensusRemoval(ctx context.Context, id string) (*CascadePlan, error) {
	payments, err := s.repos.Payments.List(ctx, persistence.CensusPayments, id)
	if err != nil {
		return nil, remoteError("RemovePerson", persistence.PaymentsCollection(persistence.CensusPayments, id), err)
	}
	plan := &CascadePlan{Owner: persistence.CensusPayments, PersonID: id}
	for _, p := range payments {
		plan.Steps = append(plan.Steps, &DeletionStep{
			Kind:       StepPayment,
			Collection: persistence.PaymentsCollection(persistence.CensusPayments, id),
			ID:         p.YearMonth,
		})
	}
	plan.Steps = append(plan.Steps, &DeletionStep{Kind: StepProfile, Collection: persistence.CensusCollection, ID: id, Phase: 1})
	return plan, nil
}

// RetryCascade runs the steps of plan that have not succeeded yet.
func (s *Studio) RetryCascade(ctx context.Context, plan *CascadePlan) (err error) {
	if plan == nil {
		return nil
	}
	logger := s.loggerWith(ctx, "RetryCascade", "person_id", plan.PersonID, "pending_steps", len(plan.Pending()))
	defer s.finish(ctx, logger, "RetryCascade", &err)
	return s.runCascade(ctx, logger, plan)
}

// runCascade executes pending steps phase by phase with bounded parallelism.
// A failed step never stops its siblings; it only blocks later phases.
func (s *Studio) runCascade(ctx context.Context, logger *slog.Logger, plan *CascadePlan) error {
	blocked := false
	for _, steps := range plan.phases() {
		if blocked {
			for _, step := range steps {
				plan.record(step, ErrCascadeBlocked)
			}
			continue
		}

		var g errgroup.Group
		g.SetLimit(s.cfg.CascadeParallelism)
		for _, step := range steps {
			g.Go(func() error {
				err := s.deleteStep(ctx, plan, step)
				plan.record(step, err)
				s.metrics.CascadeStep(string(step.Kind), err)
				if err != nil {
					logger.WarnContext(ctx, "cascade step failed",
						"kind", step.Kind, "collection", step.Collection, "id", step.ID,
						"error", err, "error_kind", ErrorKind(err))
				}
				return nil
			})
		}
		_ = g.Wait()

		for _, step := range steps {
			if !step.Done {
				blocked = true
				break
			}
		}
	}
	return plan.Err()
}

// deleteStep performs one delete and patches the matching cache on success.
func (s *Studio) deleteStep(ctx context.Context, plan *CascadePlan, step *DeletionStep) error {
	switch step.Kind {
	case StepProfile:
		if plan.Owner == persistence.CensusPayments {
			if err := s.repos.Census.Delete(ctx, step.ID); err != nil {
				return remoteError("RemovePerson", step.Collection, err)
			}
			s.census.Apply(cache.Remove[persistence.CensusPerson](step.ID))
			s.censusMonth.Apply(cache.Remove[PaidStatus](step.ID))
			return nil
		}
		if err := s.repos.Members.Delete(ctx, step.ID); err != nil {
			return remoteError("RemoveMember", step.Collection, err)
		}
		s.members.Apply(cache.Remove[persistence.Member](step.ID))
		s.memberMonth.Apply(cache.Remove[PaidStatus](step.ID))
		return nil
	case StepBooking:
		if err := s.repos.Bookings.Delete(ctx, step.ID); err != nil {
			return remoteError("RemoveMember", step.Collection, err)
		}
		s.bookings.Apply(cache.Remove[persistence.Booking](step.ID))
		s.lookups.Invalidate()
		return nil
	case StepPayment:
		if err := s.repos.Payments.Delete(ctx, plan.Owner, plan.PersonID, step.ID); err != nil {
			return remoteError("RemovePayment", step.Collection, err)
		}
		return nil
	}
	return errors.New("application: unknown cascade step " + string(step.Kind))
}
