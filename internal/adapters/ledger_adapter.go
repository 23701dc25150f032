package adapters

import (
	"context"

	"finanzas/internal/core"
	"finanzas/internal/csvio"
	"finanzas/internal/services"
)

// LedgerAdapter adapts LedgerService to the csvio collaborator interfaces so
// imports and exports go through the same validation and fan-out as the API.
type LedgerAdapter struct {
	service *services.LedgerService
}

var (
	_ csvio.Recorder = (*LedgerAdapter)(nil)
	_ csvio.Source   = (*LedgerAdapter)(nil)
)

func NewLedgerAdapter(service *services.LedgerService) *LedgerAdapter {
	return &LedgerAdapter{service: service}
}

// AddExpense implements csvio.Recorder. A row is one stored record: an
// installment row without its number becomes the first installment instead
// of being split again.
func (a *LedgerAdapter) AddExpense(ctx context.Context, e core.Expense) error {
	if e.Installment == 0 && e.TotalInstallments > 1 {
		e.Installment = 1
	}
	_, err := a.service.CreateExpense(ctx, e)
	return err
}

// SetFixedIncome implements csvio.Recorder
func (a *LedgerAdapter) SetFixedIncome(ctx context.Context, f core.FixedIncome) error {
	_, err := a.service.SetFixedIncome(ctx, f)
	return err
}

// AddExtraIncome implements csvio.Recorder
func (a *LedgerAdapter) AddExtraIncome(ctx context.Context, x core.ExtraIncome) error {
	_, err := a.service.AddExtraIncome(ctx, x)
	return err
}

// ListAllExpenses implements csvio.Source
func (a *LedgerAdapter) ListAllExpenses(ctx context.Context, owner string) ([]core.Expense, error) {
	return a.service.ListAllExpenses(ctx, owner)
}

// ListFixedIncomes implements csvio.Source
func (a *LedgerAdapter) ListFixedIncomes(ctx context.Context, owner string) ([]core.FixedIncome, error) {
	return a.service.ListFixedIncomes(ctx, owner)
}

// ListAllExtraIncomes implements csvio.Source
func (a *LedgerAdapter) ListAllExtraIncomes(ctx context.Context, owner string) ([]core.ExtraIncome, error) {
	return a.service.ListAllExtraIncomes(ctx, owner)
}
