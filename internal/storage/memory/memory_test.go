package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"finanzas/internal/core"
)

var march = core.MonthKey{Year: 2025, Month: time.March}

func TestExpensesInsertListDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	es := []core.Expense{
		{ID: "b", Owner: "ana", Category: "Casa", Month: march, Date: core.NewDate(2025, 3, 9), OriginalID: "g", Installment: 2},
		{ID: "a", Owner: "ana", Category: "Casa", Month: march, Date: core.NewDate(2025, 3, 1), OriginalID: "g", Installment: 1},
		{ID: "c", Owner: "luis", Category: "Casa", Month: march, Date: core.NewDate(2025, 3, 1)},
	}
	if err := s.InsertExpenses(ctx, es); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.InsertExpenses(ctx, es[:1]); err == nil {
		t.Fatal("expected duplicate id error")
	}

	list, _ := s.ListExpenses(ctx, "ana", march)
	if len(list) != 2 || list[0].ID != "a" {
		t.Fatalf("unexpected list: %+v", list)
	}
	siblings, _ := s.ListSiblings(ctx, "ana", "g")
	if len(siblings) != 2 || siblings[0].Installment != 1 {
		t.Fatalf("unexpected siblings: %+v", siblings)
	}
	if n, _ := s.CountExpensesByCategory(ctx, "ana", "Casa"); n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}

	if err := s.DeleteExpenses(ctx, "ana", []string{"a", "c"}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("deleting another owner's record: got %v", err)
	}
	if _, err := s.GetExpense(ctx, "ana", "a"); err != nil {
		t.Fatalf("failed delete must not remove anything: %v", err)
	}
	if err := s.DeleteExpenses(ctx, "ana", []string{"a", "b"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if all, _ := s.ListAllExpenses(ctx, "ana"); len(all) != 0 {
		t.Fatalf("expected no expenses left, got %d", len(all))
	}
}

func TestFixedIncomeExtrasAreCopied(t *testing.T) {
	ctx := context.Background()
	s := New()
	extras := []core.ExtraIncome{{ID: "x", Amount: core.Money{Cents: 100}}}
	if err := s.UpsertFixedIncome(ctx, core.FixedIncome{Owner: "ana", Month: march, Extras: extras}); err != nil {
		t.Fatal(err)
	}
	extras[0].Amount.Cents = 999

	f, err := s.GetFixedIncome(ctx, "ana", march)
	if err != nil {
		t.Fatal(err)
	}
	if f.Extras[0].Amount.Cents != 100 {
		t.Fatalf("stored extras changed through caller slice: %d", f.Extras[0].Amount.Cents)
	}
	if _, err := s.GetFixedIncome(ctx, "luis", march); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCategoryRenameMovesExpensesAndLimits(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.InsertCategory(ctx, core.Category{ID: "c1", Owner: "ana", Name: "Comida"})
	_ = s.InsertCategory(ctx, core.Category{ID: "c2", Owner: "ana", Name: "Casa"})
	_ = s.InsertExpenses(ctx, []core.Expense{{ID: "e", Owner: "ana", Category: "Comida", Month: march}})
	_ = s.UpsertLimit(ctx, core.SpendingLimit{ID: "l", Owner: "ana", Category: "Comida"})

	if err := s.InsertCategory(ctx, core.Category{ID: "c3", Owner: "ana", Name: "Casa"}); !errors.Is(err, core.ErrDuplicateCategory) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if err := s.UpdateCategory(ctx, core.Category{ID: "c1", Owner: "ana", Name: "Casa"}, "Comida"); !errors.Is(err, core.ErrDuplicateCategory) {
		t.Fatalf("rename onto existing name: got %v", err)
	}
	if err := s.UpdateCategory(ctx, core.Category{ID: "c1", Owner: "ana", Name: "Súper"}, "Comida"); err != nil {
		t.Fatal(err)
	}

	e, _ := s.GetExpense(ctx, "ana", "e")
	if e.Category != "Súper" {
		t.Fatalf("expense category = %q", e.Category)
	}
	limits, _ := s.ListLimits(ctx, "ana")
	if len(limits) != 1 || limits[0].Category != "Súper" || limits[0].ID != "l" {
		t.Fatalf("unexpected limits: %+v", limits)
	}
}

func TestRenameOntoLimitedCategoryKeepsTargetLimit(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.InsertCategory(ctx, core.Category{ID: "c1", Owner: "ana", Name: "Comida"})
	_ = s.UpsertLimit(ctx, core.SpendingLimit{ID: "l1", Owner: "ana", Category: "Comida", Amount: core.Money{Cents: 100}})
	_ = s.UpsertLimit(ctx, core.SpendingLimit{ID: "l2", Owner: "ana", Category: "Alimentos", Amount: core.Money{Cents: 999}})

	if err := s.UpdateCategory(ctx, core.Category{ID: "c1", Owner: "ana", Name: "Alimentos"}, "Comida"); err != nil {
		t.Fatal(err)
	}
	limits, _ := s.ListLimits(ctx, "ana")
	if len(limits) != 1 || limits[0].ID != "l2" || limits[0].Amount.Cents != 999 {
		t.Fatalf("unexpected limits: %+v", limits)
	}
}

func TestLimitUpsertKeepsID(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.UpsertLimit(ctx, core.SpendingLimit{ID: "first", Owner: "ana", Category: "Ocio", Amount: core.Money{Cents: 1}})
	_ = s.UpsertLimit(ctx, core.SpendingLimit{ID: "second", Owner: "ana", Category: "Ocio", Amount: core.Money{Cents: 2}})

	limits, _ := s.ListLimits(ctx, "ana")
	if len(limits) != 1 || limits[0].ID != "first" || limits[0].Amount.Cents != 2 {
		t.Fatalf("unexpected limits: %+v", limits)
	}
}

func TestGoalsUpdate(t *testing.T) {
	ctx := context.Background()
	s := New()
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = s.InsertGoal(ctx, core.Goal{ID: "g", Owner: "ana", Name: "Auto", Target: core.Money{Cents: 100}, CreatedAt: created})

	if err := s.UpdateGoal(ctx, core.Goal{ID: "g", Owner: "ana", Name: "Auto", Target: core.Money{Cents: 100}, Current: core.Money{Cents: 40}}); err != nil {
		t.Fatal(err)
	}
	g, _ := s.GetGoal(ctx, "ana", "g")
	if g.Current.Cents != 40 || !g.CreatedAt.Equal(created) {
		t.Fatalf("unexpected goal: %+v", g)
	}
	if err := s.UpdateGoal(ctx, core.Goal{ID: "g", Owner: "luis"}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNewFromFilesSeedsCategories(t *testing.T) {
	dir := t.TempDir()
	if cats, _ := NewFromFiles(dir, "ana").ListCategories(context.Background(), "ana"); len(cats) != 0 {
		t.Fatalf("missing seed file should seed nothing, got %v", cats)
	}

	content := "# categorías\nComida\nCasa\nComida\n\n"
	if err := os.WriteFile(filepath.Join(dir, "seed_categories.txt"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cats, _ := NewFromFiles(dir, "ana").ListCategories(context.Background(), "ana")
	if len(cats) != 2 || cats[0].Name != "Casa" || cats[1].Name != "Comida" {
		t.Fatalf("unexpected categories: %+v", cats)
	}
}
