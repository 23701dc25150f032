package services

import (
	"context"

	"finanzas/internal/core"
)

// Lookups return core.ErrNotFound when the record does not exist for the
// owner. Every method is scoped by owner.

type ExpenseStore interface {
	// InsertExpenses stores all records or none.
	InsertExpenses(ctx context.Context, es []core.Expense) error
	GetExpense(ctx context.Context, owner, id string) (core.Expense, error)
	ListExpenses(ctx context.Context, owner string, month core.MonthKey) ([]core.Expense, error)
	ListAllExpenses(ctx context.Context, owner string) ([]core.Expense, error)
	ListSiblings(ctx context.Context, owner, originalID string) ([]core.Expense, error)
	// UpdateExpenses rewrites all records or none.
	UpdateExpenses(ctx context.Context, es []core.Expense) error
	DeleteExpenses(ctx context.Context, owner string, ids []string) error
	CountExpensesByCategory(ctx context.Context, owner, category string) (int, error)
}

type IncomeStore interface {
	GetFixedIncome(ctx context.Context, owner string, month core.MonthKey) (core.FixedIncome, error)
	UpsertFixedIncome(ctx context.Context, f core.FixedIncome) error
	ListFixedIncomes(ctx context.Context, owner string) ([]core.FixedIncome, error)
	InsertExtraIncome(ctx context.Context, x core.ExtraIncome) error
	GetExtraIncome(ctx context.Context, owner, id string) (core.ExtraIncome, error)
	DeleteExtraIncome(ctx context.Context, owner, id string) error
	ListExtraIncomes(ctx context.Context, owner string, month core.MonthKey) ([]core.ExtraIncome, error)
	ListAllExtraIncomes(ctx context.Context, owner string) ([]core.ExtraIncome, error)
}

type CategoryStore interface {
	// InsertCategory returns core.ErrDuplicateCategory when the owner already
	// has a category with that name.
	InsertCategory(ctx context.Context, c core.Category) error
	GetCategory(ctx context.Context, owner, id string) (core.Category, error)
	FindCategoryByName(ctx context.Context, owner, name string) (core.Category, error)
	// UpdateCategory rewrites c. When the name changed from previousName the
	// owner's expenses and limits follow it; if the new name already has a
	// limit, that limit is kept and the old one dropped.
	UpdateCategory(ctx context.Context, c core.Category, previousName string) error
	DeleteCategory(ctx context.Context, owner, id string) error
	ListCategories(ctx context.Context, owner string) ([]core.Category, error)
}

type LimitStore interface {
	// UpsertLimit keeps at most one limit per owner and category.
	UpsertLimit(ctx context.Context, l core.SpendingLimit) error
	DeleteLimit(ctx context.Context, owner, category string) error
	ListLimits(ctx context.Context, owner string) ([]core.SpendingLimit, error)
}

type GoalStore interface {
	InsertGoal(ctx context.Context, g core.Goal) error
	GetGoal(ctx context.Context, owner, id string) (core.Goal, error)
	UpdateGoal(ctx context.Context, g core.Goal) error
	DeleteGoal(ctx context.Context, owner, id string) error
	ListGoals(ctx context.Context, owner string) ([]core.Goal, error)
}

// Store is the persistence the ledger service runs on. It is implemented by
// storage.SQLiteRepository and memory.Store.
type Store interface {
	ExpenseStore
	IncomeStore
	CategoryStore
	LimitStore
	GoalStore
	Close() error
}
