package application

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/example/studio-admin/internal/cache"
	"github.com/example/studio-admin/internal/persistence"
	"github.com/example/studio-admin/internal/recurrence"
)

// PaidStatus is the payment state of one person for one month.
type PaidStatus struct {
	PersonID  string
	YearMonth string
	Paid      bool
}

func paidStatusKey(p PaidStatus) string { return p.PersonID }

// UnpaidReport splits the monthly-tier members into paid and unpaid for a month.
type UnpaidReport struct {
	Month  string
	Paid   []persistence.Member
	Unpaid []persistence.Member
}

// MonthPaid reports whether a person paid for month. A month without a
// record counts as unpaid.
func (s *Studio) MonthPaid(ctx context.Context, owner persistence.PaymentOwner, personID, month string) (bool, error) {
	if vErr := validatePaymentKey(personID, month); vErr.HasErrors() {
		return false, vErr
	}
	payment, err := s.repos.Payments.Get(ctx, owner, personID, month)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return false, nil
		}
		return false, remoteError("MonthPaid", persistence.PaymentsCollection(owner, personID), err)
	}
	return payment.Paid, nil
}

// Payments returns every recorded month of a person, most recent first.
func (s *Studio) Payments(ctx context.Context, owner persistence.PaymentOwner, personID string) ([]persistence.MonthlyPayment, error) {
	rows, err := s.repos.Payments.List(ctx, owner, personID)
	if err != nil {
		return nil, remoteError("Payments", persistence.PaymentsCollection(owner, personID), err)
	}
	slices.SortFunc(rows, func(a, b persistence.MonthlyPayment) int { return cmp.Compare(b.YearMonth, a.YearMonth) })
	return rows, nil
}

// SetMonthPaid writes the paid flag of one month, creating the record when
// missing and merging into it otherwise.
func (s *Studio) SetMonthPaid(ctx context.Context, owner persistence.PaymentOwner, personID, month string, paid bool) (payment persistence.MonthlyPayment, err error) {
	logger := s.loggerWith(ctx, "SetMonthPaid", "owner", owner, "person_id", personID, "month", month, "paid", paid)
	defer s.finish(ctx, logger, "SetMonthPaid", &err)

	if vErr := validatePaymentKey(personID, month); vErr.HasErrors() {
		err = vErr
		return
	}
	return s.writeMonthPaid(ctx, owner, personID, month, paid)
}

// ToggleMonthPaid flips the paid flag of one month. Toggles for the same
// person and month run one at a time, so two rapid toggles always end where
// they started.
func (s *Studio) ToggleMonthPaid(ctx context.Context, owner persistence.PaymentOwner, personID, month string) (payment persistence.MonthlyPayment, err error) {
	logger := s.loggerWith(ctx, "ToggleMonthPaid", "owner", owner, "person_id", personID, "month", month)
	defer s.finish(ctx, logger, "ToggleMonthPaid", &err)

	if vErr := validatePaymentKey(personID, month); vErr.HasErrors() {
		err = vErr
		return
	}

	unlock := s.locks.Lock(string(owner) + "/" + personID + "/" + month)
	defer unlock()

	var current bool
	if current, err = s.MonthPaid(ctx, owner, personID, month); err != nil {
		return
	}
	return s.writeMonthPaid(ctx, owner, personID, month, !current)
}

func (s *Studio) writeMonthPaid(ctx context.Context, owner persistence.PaymentOwner, personID, month string, paid bool) (persistence.MonthlyPayment, error) {
	payment, err := s.repos.Payments.SetPaid(ctx, owner, personID, month, paid)
	if err != nil {
		return persistence.MonthlyPayment{}, remoteError("SetMonthPaid", persistence.PaymentsCollection(owner, personID), err)
	}
	status := PaidStatus{PersonID: personID, YearMonth: month, Paid: paid}
	s.monthCache(owner).Apply(func(rows []PaidStatus, key func(PaidStatus) string) []PaidStatus {
		for i := range rows {
			if rows[i].PersonID == personID && rows[i].YearMonth == month {
				rows[i] = status
			}
		}
		return rows
	})
	return payment, nil
}

func validatePaymentKey(personID, month string) *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(personID) == "" {
		vErr.add("personId", "person is required")
	}
	if !recurrence.ValidMonth(month) {
		vErr.add("yearMonth", "month must be YYYY-MM")
	}
	return vErr
}

func (s *Studio) monthCache(owner persistence.PaymentOwner) *cache.Collection[PaidStatus] {
	if owner == persistence.CensusPayments {
		return s.censusMonth
	}
	return s.memberMonth
}

// CurrentMonthStatus returns the current-month paid flag of every member or
// census person. The map is loaded once and kept up to date by SetMonthPaid
// and ToggleMonthPaid.
func (s *Studio) CurrentMonthStatus(ctx context.Context, owner persistence.PaymentOwner) (map[string]bool, error) {
	rows, err := s.monthCache(owner).Load(ctx)
	if err != nil {
		return nil, remoteError("CurrentMonthStatus", string(owner), err)
	}
	out := make(map[string]bool, len(rows))
	for _, row := range rows {
		out[row.PersonID] = row.Paid
	}
	return out, nil
}

func (s *Studio) monthFetcher(owner persistence.PaymentOwner) cache.Fetcher[PaidStatus] {
	return func(ctx context.Context) ([]PaidStatus, error) {
		var ids []string
		if owner == persistence.CensusPayments {
			people, err := s.census.Load(ctx)
			if err != nil {
				return nil, err
			}
			for _, p := range people {
				ids = append(ids, p.ID)
			}
		} else {
			members, err := s.members.Load(ctx)
			if err != nil {
				return nil, err
			}
			for _, m := range members {
				ids = append(ids, m.ID)
			}
		}

		month := s.engine.CurrentMonth(s.now())
		rows := make([]PaidStatus, len(ids))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.CascadeParallelism)
		for i, id := range ids {
			g.Go(func() error {
				rows[i] = PaidStatus{PersonID: id, YearMonth: month}
				payment, err := s.repos.Payments.Get(gctx, owner, id, month)
				if errors.Is(err, persistence.ErrNotFound) {
					return nil
				}
				if err != nil {
					return err
				}
				rows[i].Paid = payment.Paid
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return rows, nil
	}
}

// UnpaidReport lists the monthly-tier members who paid and did not pay for
// month. A member whose payment lookup fails is listed as unpaid.
func (s *Studio) UnpaidReport(ctx context.Context, month string) (UnpaidReport, error) {
	if !recurrence.ValidMonth(month) {
		return UnpaidReport{}, &ValidationError{FieldErrors: map[string]string{"yearMonth": "month must be YYYY-MM"}}
	}
	members, err := s.Members(ctx)
	if err != nil {
		return UnpaidReport{}, err
	}
	logger := s.loggerWith(ctx, "UnpaidReport", "month", month)

	var monthly []persistence.Member
	for _, m := range members {
		if m.PaymentType.IsMonthly() {
			monthly = append(monthly, m)
		}
	}

	paid := make([]bool, len(monthly))
	var g errgroup.Group
	g.SetLimit(s.cfg.CascadeParallelism)
	var warnOnce sync.Once
	for i, m := range monthly {
		g.Go(func() error {
			ok, err := s.MonthPaid(ctx, persistence.MemberPayments, m.ID, month)
			if err != nil {
				warnOnce.Do(func() {
					logger.WarnContext(ctx, "payment lookup failed, counting as unpaid", "member_id", m.ID, "error", err, "error_kind", ErrorKind(err))
				})
				return nil
			}
			paid[i] = ok
			return nil
		})
	}
	_ = g.Wait()

	report := UnpaidReport{Month: month}
	for i, m := range monthly {
		if paid[i] {
			report.Paid = append(report.Paid, m)
		} else {
			report.Unpaid = append(report.Unpaid, m)
		}
	}
	return report, nil
}
