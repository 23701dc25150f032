package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finanzas/internal/core"
	"finanzas/internal/ledger"
)

func TestMonthReport(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.CreateExpense(ctx, newExpense("Supermercado", 45000, "Comida"))
	require.NoError(t, err)
	_, err = svc.CreateExpense(ctx, newExpense("Cine", 12000, "Ocio"))
	require.NoError(t, err)
	tv := newExpense("Televisor", 30000, "Hogar")
	tv.TotalInstallments = 3
	_, err = svc.CreateExpense(ctx, tv)
	require.NoError(t, err)

	extra := core.ExtraIncome{ID: "bono", Owner: "ana", Month: march, Description: "Bono", Amount: core.Money{Cents: 20000}, Date: core.NewDate(2025, 3, 2)}
	_, err = svc.SetFixedIncome(ctx, core.FixedIncome{
		Owner:  "ana",
		Month:  march,
		Amount: core.Money{Cents: 200000},
		Extras: []core.ExtraIncome{extra},
	})
	require.NoError(t, err)
	_, err = svc.AddExtraIncome(ctx, extra)
	require.NoError(t, err)

	_, err = svc.SetLimit(ctx, core.SpendingLimit{Owner: "ana", Category: "Comida", Amount: core.Money{Cents: 50000}})
	require.NoError(t, err)
	_, err = svc.SetLimit(ctx, core.SpendingLimit{Owner: "ana", Category: "Ocio", Amount: core.Money{Cents: 10000}})
	require.NoError(t, err)
	_, err = svc.CreateGoal(ctx, core.Goal{Owner: "ana", Name: "Vacaciones", Target: core.Money{Cents: 100000}, Current: core.Money{Cents: 25000}})
	require.NoError(t, err)

	r, err := svc.MonthReport(ctx, "ana", march)
	require.NoError(t, err)

	assert.Equal(t, int64(220000), r.Balance.TotalIncome.Cents, "bono counted once")
	assert.Equal(t, int64(67000), r.Balance.TotalExpenses.Cents)
	assert.Equal(t, int64(153000), r.Balance.Available.Cents)
	assert.Equal(t, 1, r.Balance.Installments)

	require.Len(t, r.Categories, 3)
	assert.Equal(t, "Comida", r.Categories[0].Name)
	assert.Equal(t, "Ocio", r.Categories[1].Name)

	require.Len(t, r.Alerts, 2)
	assert.Equal(t, ledger.AlertWarning, r.Alerts[0].Level)
	assert.Equal(t, ledger.AlertDanger, r.Alerts[1].Level)

	require.Len(t, r.Goals, 1)
	assert.InDelta(t, 25.0, r.Goals[0].Progress, 0.001)
}

func TestMonthReportEmptyMonth(t *testing.T) {
	svc, _, _ := newTestService(t)

	r, err := svc.MonthReport(context.Background(), "nadie", march)
	require.NoError(t, err)
	assert.Zero(t, r.Balance.TotalIncome.Cents)
	assert.Empty(t, r.Categories)
	assert.NotNil(t, r.Alerts)
	assert.NotNil(t, r.Goals)
}
