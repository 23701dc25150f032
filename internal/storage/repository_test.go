package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finanzas/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "finanzas.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

var march = core.MonthKey{Year: 2025, Month: time.March}

func expense(id, owner, category string, cents int64, day int) core.Expense {
	return core.Expense{
		ID:                id,
		Owner:             owner,
		Description:       "Gasto " + id,
		Amount:            core.Money{Cents: cents},
		Category:          category,
		Date:              core.NewDate(2025, 3, day),
		Month:             march,
		Installment:       1,
		TotalInstallments: 1,
		OriginalAmount:    core.Money{Cents: cents},
		OriginalID:        id,
		CreatedAt:         time.Date(2025, 3, day, 10, 0, 0, 0, time.UTC),
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finanzas.db")
	require.NoError(t, RunMigrations(path))
	require.NoError(t, RunMigrations(path))
}

func TestExpensesRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	e := expense("e1", "ana", "Comida", 1250, 5)
	e.Recurring = true
	require.NoError(t, repo.InsertExpenses(ctx, []core.Expense{e, expense("e2", "ana", "Casa", 300, 2)}))

	got, err := repo.GetExpense(ctx, "ana", "e1")
	require.NoError(t, err)
	assert.Equal(t, e, got)

	list, err := repo.ListExpenses(ctx, "ana", march)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "e2", list[0].ID, "ordered by date")

	none, err := repo.ListExpenses(ctx, "ana", march.AddMonths(1))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestExpensesAreOwnerScoped(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.InsertExpenses(ctx, []core.Expense{expense("e1", "ana", "Comida", 100, 1)}))

	_, err := repo.GetExpense(ctx, "luis", "e1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	err = repo.DeleteExpenses(ctx, "luis", []string{"e1"})
	assert.ErrorIs(t, err, core.ErrNotFound)

	all, err := repo.ListAllExpenses(ctx, "luis")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestInsertExpensesIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.InsertExpenses(ctx, []core.Expense{expense("dup", "ana", "Casa", 100, 1)}))

	err := repo.InsertExpenses(ctx, []core.Expense{
		expense("fresh", "ana", "Casa", 100, 1),
		expense("dup", "ana", "Casa", 100, 1),
	})
	require.Error(t, err)

	_, err = repo.GetExpense(ctx, "ana", "fresh")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSiblingsUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	var group []core.Expense
	for i := 1; i <= 3; i++ {
		e := expense("s"+string(rune('0'+i)), "ana", "Hogar", 1000, i)
		e.OriginalID = "root"
		e.Installment = i
		e.TotalInstallments = 3
		e.OriginalAmount = core.Money{Cents: 3000}
		group = append(group, e)
	}
	require.NoError(t, repo.InsertExpenses(ctx, group))

	siblings, err := repo.ListSiblings(ctx, "ana", "root")
	require.NoError(t, err)
	require.Len(t, siblings, 3)
	assert.Equal(t, 1, siblings[0].Installment)

	for i := range siblings {
		siblings[i].Description = "Heladera"
	}
	require.NoError(t, repo.UpdateExpenses(ctx, siblings))
	got, err := repo.GetExpense(ctx, "ana", "s3")
	require.NoError(t, err)
	assert.Equal(t, "Heladera", got.Description)

	n, err := repo.CountExpensesByCategory(ctx, "ana", "Hogar")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, repo.DeleteExpenses(ctx, "ana", []string{"s1", "s2", "s3"}))
	left, err := repo.ListSiblings(ctx, "ana", "root")
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestFixedIncomeUpsertKeepsExtras(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.GetFixedIncome(ctx, "ana", march)
	assert.ErrorIs(t, err, core.ErrNotFound)

	f := core.FixedIncome{
		Owner:  "ana",
		Month:  march,
		Amount: core.Money{Cents: 500000},
		Extras: []core.ExtraIncome{{ID: "x1", Description: "Bono", Amount: core.Money{Cents: 2500}}},
	}
	require.NoError(t, repo.UpsertFixedIncome(ctx, f))

	f.Amount = core.Money{Cents: 600000}
	require.NoError(t, repo.UpsertFixedIncome(ctx, f))

	got, err := repo.GetFixedIncome(ctx, "ana", march)
	require.NoError(t, err)
	assert.Equal(t, int64(600000), got.Amount.Cents)
	require.Len(t, got.Extras, 1)
	assert.Equal(t, "Bono", got.Extras[0].Description)
	assert.Equal(t, int64(2500), got.Extras[0].Amount.Cents)

	all, err := repo.ListFixedIncomes(ctx, "ana")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestExtraIncomes(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	x := core.ExtraIncome{
		ID:          "x1",
		Owner:       "ana",
		Month:       march,
		Description: "Venta bici",
		Amount:      core.Money{Cents: 80000},
		Category:    "other",
		Date:        core.NewDate(2025, 3, 9),
		CreatedAt:   time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.InsertExtraIncome(ctx, x))

	got, err := repo.GetExtraIncome(ctx, "ana", "x1")
	require.NoError(t, err)
	assert.Equal(t, x, got)

	list, err := repo.ListExtraIncomes(ctx, "ana", march)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.DeleteExtraIncome(ctx, "ana", "x1"))
	assert.ErrorIs(t, repo.DeleteExtraIncome(ctx, "ana", "x1"), core.ErrNotFound)
}

func TestCategoryUniquenessAndRename(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.InsertCategory(ctx, core.Category{ID: "c1", Owner: "ana", Name: "Comida"}))
	err := repo.InsertCategory(ctx, core.Category{ID: "c2", Owner: "ana", Name: "Comida"})
	assert.ErrorIs(t, err, core.ErrDuplicateCategory)
	require.NoError(t, repo.InsertCategory(ctx, core.Category{ID: "c3", Owner: "luis", Name: "Comida"}))

	require.NoError(t, repo.InsertExpenses(ctx, []core.Expense{expense("e1", "ana", "Comida", 100, 1)}))
	require.NoError(t, repo.UpsertLimit(ctx, core.SpendingLimit{ID: "l1", Owner: "ana", Category: "Comida", Amount: core.Money{Cents: 1000}, WarningPercentage: 80}))

	renamed := core.Category{ID: "c1", Owner: "ana", Name: "Supermercado", Icon: "🛒"}
	require.NoError(t, repo.UpdateCategory(ctx, renamed, "Comida"))

	e, err := repo.GetExpense(ctx, "ana", "e1")
	require.NoError(t, err)
	assert.Equal(t, "Supermercado", e.Category)

	limits, err := repo.ListLimits(ctx, "ana")
	require.NoError(t, err)
	require.Len(t, limits, 1)
	assert.Equal(t, "Supermercado", limits[0].Category)

	c, err := repo.FindCategoryByName(ctx, "ana", "Supermercado")
	require.NoError(t, err)
	assert.Equal(t, "🛒", c.Icon)

	require.NoError(t, repo.DeleteCategory(ctx, "ana", "c1"))
	cats, err := repo.ListCategories(ctx, "ana")
	require.NoError(t, err)
	assert.Empty(t, cats)
}

func TestRenameOntoLimitedCategoryKeepsTargetLimit(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.InsertCategory(ctx, core.Category{ID: "c1", Owner: "ana", Name: "Comida"}))
	require.NoError(t, repo.UpsertLimit(ctx, core.SpendingLimit{ID: "l1", Owner: "ana", Category: "Comida", Amount: core.Money{Cents: 100}, WarningPercentage: 80}))
	require.NoError(t, repo.UpsertLimit(ctx, core.SpendingLimit{ID: "l2", Owner: "ana", Category: "Alimentos", Amount: core.Money{Cents: 999}, WarningPercentage: 90}))

	require.NoError(t, repo.UpdateCategory(ctx, core.Category{ID: "c1", Owner: "ana", Name: "Alimentos"}, "Comida"))

	limits, err := repo.ListLimits(ctx, "ana")
	require.NoError(t, err)
	require.Len(t, limits, 1)
	assert.Equal(t, "l2", limits[0].ID)
	assert.Equal(t, "Alimentos", limits[0].Category)
	assert.Equal(t, int64(999), limits[0].Amount.Cents)
}

func TestLimitUpsertByCategory(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.UpsertLimit(ctx, core.SpendingLimit{ID: "l1", Owner: "ana", Category: "Ocio", Amount: core.Money{Cents: 1000}, WarningPercentage: 80}))
	require.NoError(t, repo.UpsertLimit(ctx, core.SpendingLimit{ID: "l2", Owner: "ana", Category: "Ocio", Amount: core.Money{Cents: 2000}, WarningPercentage: 90}))

	limits, err := repo.ListLimits(ctx, "ana")
	require.NoError(t, err)
	require.Len(t, limits, 1)
	assert.Equal(t, "l1", limits[0].ID)
	assert.Equal(t, int64(2000), limits[0].Amount.Cents)
	assert.Equal(t, 90, limits[0].WarningPercentage)

	require.NoError(t, repo.DeleteLimit(ctx, "ana", "Ocio"))
	assert.ErrorIs(t, repo.DeleteLimit(ctx, "ana", "Ocio"), core.ErrNotFound)
}

func TestGoals(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	g := core.Goal{ID: "g1", Owner: "ana", Name: "Vacaciones", Target: core.Money{Cents: 100000}, CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, repo.InsertGoal(ctx, g))

	g.Current = core.Money{Cents: 25000}
	require.NoError(t, repo.UpdateGoal(ctx, g))

	got, err := repo.GetGoal(ctx, "ana", "g1")
	require.NoError(t, err)
	assert.Equal(t, g, got)

	goals, err := repo.ListGoals(ctx, "ana")
	require.NoError(t, err)
	assert.Len(t, goals, 1)

	require.NoError(t, repo.DeleteGoal(ctx, "ana", "g1"))
	_, err = repo.GetGoal(ctx, "ana", "g1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
