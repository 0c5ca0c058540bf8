package application

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/example/studio-admin/internal/cache"
	"github.com/example/studio-admin/internal/persistence"
	"github.com/example/studio-admin/internal/recurrence"
)

// MonthTotal groups the expenses of one month.
type MonthTotal struct {
	YearMonth string
	Total     float64
	Expenses  []persistence.FixedExpense
}

// ExpenseSummary totals expenses for a month and the months before it.
type ExpenseSummary struct {
	Month       string
	MonthTotal  float64
	PeriodTotal float64
	Months      []MonthTotal
}

// Expenses returns every fixed expense, most recent month first.
func (s *Studio) Expenses(ctx context.Context) ([]persistence.FixedExpense, error) {
	rows, err := s.expenses.Load(ctx)
	if err != nil {
		return nil, remoteError("Expenses", persistence.FixedExpensesCollection, err)
	}
	return rows, nil
}

// AddExpense validates and stores an expense.
func (s *Studio) AddExpense(ctx context.Context, input persistence.ExpenseInput) (expense persistence.FixedExpense, err error) {
	logger := s.loggerWith(ctx, "AddExpense", "type", input.Type, "month", input.YearMonth)
	defer s.finish(ctx, logger, "AddExpense", &err)

	input.Description = strings.TrimSpace(input.Description)
	if vErr := validateExpenseInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	expense, err = s.repos.Expenses.Create(ctx, input)
	if err != nil {
		err = remoteError("AddExpense", persistence.FixedExpensesCollection, err)
		return
	}
	s.expenses.Apply(cache.Insert(expense, expenseByMonthDesc))
	return
}

// EditExpense writes the defined members of patch.
func (s *Studio) EditExpense(ctx context.Context, id string, patch persistence.ExpensePatch) (err error) {
	logger := s.loggerWith(ctx, "EditExpense", "expense_id", id)
	defer s.finish(ctx, logger, "EditExpense", &err)

	if vErr := validateExpensePatch(patch); vErr.HasErrors() {
		err = vErr
		return
	}
	if err = s.repos.Expenses.Update(ctx, id, patch); err != nil {
		err = remoteError("EditExpense", persistence.FixedExpensesCollection, err)
		return
	}
	s.expenses.Apply(cache.Chain(
		cache.Merge(id, patch.Apply),
		sortedBy(expenseByMonthDesc, patch.YearMonth.IsDefined()),
	))
	return
}

// RemoveExpense deletes an expense.
func (s *Studio) RemoveExpense(ctx context.Context, id string) (err error) {
	logger := s.loggerWith(ctx, "RemoveExpense", "expense_id", id)
	defer s.finish(ctx, logger, "RemoveExpense", &err)

	if err = s.repos.Expenses.Delete(ctx, id); err != nil {
		err = remoteError("RemoveExpense", persistence.FixedExpensesCollection, err)
		return
	}
	s.expenses.Apply(cache.Remove[persistence.FixedExpense](id))
	return
}

// ExpenseSummary totals the cached expenses of month and of the months
// preceding it, months in all. A zero months uses the configured report length.
func (s *Studio) ExpenseSummary(ctx context.Context, month string, months int) (ExpenseSummary, error) {
	if !recurrence.ValidMonth(month) {
		return ExpenseSummary{}, &ValidationError{FieldErrors: map[string]string{"yearMonth": "month must be YYYY-MM"}}
	}
	if months <= 0 {
		months = s.cfg.ReportMonths
	}
	rows, err := s.Expenses(ctx)
	if err != nil {
		return ExpenseSummary{}, err
	}

	anchor, _ := time.ParseInLocation(recurrence.MonthLayout, month, s.engine.Location())
	period := s.engine.LastMonths(anchor, months)
	byMonth := make(map[string]*MonthTotal, len(period))
	summary := ExpenseSummary{Month: month, Months: make([]MonthTotal, len(period))}
	for i, ym := range period {
		summary.Months[i].YearMonth = ym
		byMonth[ym] = &summary.Months[i]
	}

	for _, e := range rows {
		group, ok := byMonth[e.YearMonth]
		if !ok {
			continue
		}
		group.Total += e.Amount
		group.Expenses = append(group.Expenses, e)
		summary.PeriodTotal += e.Amount
	}
	for i := range summary.Months {
		summary.Months[i].Total = roundCents(summary.Months[i].Total)
	}
	summary.MonthTotal = summary.Months[0].Total
	summary.PeriodTotal = roundCents(summary.PeriodTotal)
	return summary, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func validateExpenseInput(input persistence.ExpenseInput) *ValidationError {
	vErr := &ValidationError{}
	validateExpenseType(vErr, input.Type)
	validateAmount(vErr, input.Amount)
	if !recurrence.ValidMonth(input.YearMonth) {
		vErr.add("yearMonth", "month must be YYYY-MM")
	}
	return vErr
}

func validateExpensePatch(patch persistence.ExpensePatch) *ValidationError {
	vErr := &ValidationError{}
	if patch.Type.IsDefined() {
		t, _ := patch.Type.Get()
		validateExpenseType(vErr, t)
	}
	if patch.Amount.IsDefined() {
		amount, _ := patch.Amount.Get()
		validateAmount(vErr, amount)
	}
	if patch.YearMonth.IsDefined() {
		if ym, ok := patch.YearMonth.Get(); !ok || !recurrence.ValidMonth(ym) {
			vErr.add("yearMonth", "month must be YYYY-MM")
		}
	}
	return vErr
}

func validateExpenseType(vErr *ValidationError, t persistence.ExpenseType) {
	if !t.Valid() {
		vErr.add("type", fmt.Sprintf("unknown expense type %q", t))
	}
}

func validateAmount(vErr *ValidationError, amount float64) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		vErr.add("amount", "amount must be greater than zero")
	}
}
