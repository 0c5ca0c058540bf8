package application_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/example/studio-admin/internal/application"
	"github.com/example/studio-admin/internal/field"
	"github.com/example/studio-admin/internal/persistence"
)

func TestStudio_Expenses(t *testing.T) {
	t.Parallel()

	t.Run("validation", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, err := h.Studio.AddExpense(context.Background(), persistence.ExpenseInput{Type: "cibo", Amount: math.NaN(), YearMonth: "2024/03"})
		var vErr *application.ValidationError
		if !errors.As(err, &vErr) || len(vErr.FieldErrors) != 3 {
			t.Fatalf("expected three field errors, got %v", err)
		}
		if _, err := h.Studio.AddExpense(context.Background(), persistence.ExpenseInput{Type: persistence.ExpenseRent, Amount: -1, YearMonth: "2024-03"}); err == nil {
			t.Fatalf("negative amounts must be rejected")
		}
	})

	t.Run("summary over the last months", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		ctx := context.Background()
		for _, in := range []persistence.ExpenseInput{
			{Type: persistence.ExpenseRent, Amount: 700, YearMonth: "2024-03"},
			{Type: persistence.ExpenseElectricity, Amount: 50.5, YearMonth: "2024-03"},
			{Type: persistence.ExpenseWater, Amount: 30, YearMonth: "2024-02"},
			{Type: persistence.ExpenseOther, Amount: 10, YearMonth: "2023-12"},
			{Type: persistence.ExpenseGas, Amount: 99, YearMonth: "2023-11"},
		} {
			if _, err := h.Studio.AddExpense(ctx, in); err != nil {
				t.Fatalf("AddExpense failed: %v", err)
			}
		}

		summary, err := h.Studio.ExpenseSummary(ctx, "2024-03", 3)
		if err != nil {
			t.Fatalf("ExpenseSummary failed: %v", err)
		}
		if summary.MonthTotal != 750.5 || summary.PeriodTotal != 780.5 {
			t.Fatalf("unexpected totals month=%v period=%v", summary.MonthTotal, summary.PeriodTotal)
		}
		if len(summary.Months) != 3 || summary.Months[2].YearMonth != "2024-01" || summary.Months[2].Total != 0 {
			t.Fatalf("unexpected months %+v", summary.Months)
		}

		rows, _ := h.Studio.Expenses(ctx)
		if rows[0].YearMonth != "2024-03" || rows[len(rows)-1].YearMonth != "2023-11" {
			t.Fatalf("expenses must be ordered by month, newest first: %+v", rows)
		}
	})

	t.Run("moving an expense re-sorts the cache", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		ctx := context.Background()
		old, err := h.Studio.AddExpense(ctx, persistence.ExpenseInput{Type: persistence.ExpenseRent, Amount: 700, YearMonth: "2024-01"})
		if err != nil {
			t.Fatalf("AddExpense failed: %v", err)
		}
		if _, err := h.Studio.AddExpense(ctx, persistence.ExpenseInput{Type: persistence.ExpenseRent, Amount: 700, YearMonth: "2024-02"}); err != nil {
			t.Fatalf("AddExpense failed: %v", err)
		}

		if err := h.Studio.EditExpense(ctx, old.ID, persistence.ExpensePatch{YearMonth: field.Set("2024-03")}); err != nil {
			t.Fatalf("EditExpense failed: %v", err)
		}
		rows, _ := h.Studio.Expenses(ctx)
		if rows[0].ID != old.ID {
			t.Fatalf("expected moved expense first, got %+v", rows)
		}

		if err := h.Studio.RemoveExpense(ctx, old.ID); err != nil {
			t.Fatalf("RemoveExpense failed: %v", err)
		}
		rows, _ = h.Studio.Expenses(ctx)
		if len(rows) != 1 {
			t.Fatalf("expected one expense left, got %d", len(rows))
		}
	})
}
