package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"finanzas/internal/core"
	"finanzas/internal/ledger"
)

type GoalProgress struct {
	core.Goal
	Progress float64 `json:"progress"`
}

// Report is the month view served to clients.
type Report struct {
	Owner      string                `json:"owner"`
	Month      core.MonthKey         `json:"month"`
	Balance    core.Balance          `json:"balance"`
	Categories []core.CategoryAmount `json:"categories"`
	Alerts     []ledger.Alert        `json:"alerts"`
	Goals      []GoalProgress        `json:"goals"`
}

// Snapshot loads the records of one owner and month.
func (s *LedgerService) Snapshot(ctx context.Context, owner string, month core.MonthKey) (ledger.Snapshot, error) {
	snap := ledger.Snapshot{Month: month}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		es, err := s.store.ListExpenses(gctx, owner, month)
		if err != nil {
			return fmt.Errorf("list expenses: %w", err)
		}
		snap.Expenses = es
		return nil
	})
	g.Go(func() error {
		f, err := s.store.GetFixedIncome(gctx, owner, month)
		switch {
		case err == nil:
			snap.Fixed = &f
		case !errors.Is(err, core.ErrNotFound):
			return fmt.Errorf("get fixed income: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		xs, err := s.store.ListExtraIncomes(gctx, owner, month)
		if err != nil {
			return fmt.Errorf("list extra incomes: %w", err)
		}
		snap.ExtraIncomes = xs
		return nil
	})
	if err := g.Wait(); err != nil {
		return ledger.Snapshot{}, err
	}
	return snap, nil
}

// MonthReport aggregates a month: balance, spending by category, limit
// alerts and goal progress.
func (s *LedgerService) MonthReport(ctx context.Context, owner string, month core.MonthKey) (Report, error) {
	var (
		snap   ledger.Snapshot
		limits []core.SpendingLimit
		goals  []core.Goal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap, err = s.Snapshot(gctx, owner, month)
		return err
	})
	g.Go(func() (err error) {
		limits, err = s.store.ListLimits(gctx, owner)
		return err
	})
	g.Go(func() (err error) {
		goals, err = s.store.ListGoals(gctx, owner)
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("build report: %w", err)
	}

	r := Report{
		Owner:      owner,
		Month:      month,
		Balance:    ledger.CalculateBalance(snap),
		Categories: ledger.SortedCategories(ledger.ExpensesByCategory(snap.Expenses)),
		Alerts:     ledger.CheckSpendingLimits(snap.Expenses, limits),
		Goals:      make([]GoalProgress, 0, len(goals)),
	}
	if r.Alerts == nil {
		r.Alerts = []ledger.Alert{}
	}
	for _, goal := range goals {
		r.Goals = append(r.Goals, GoalProgress{Goal: goal, Progress: goal.Progress()})
	}
	return r, nil
}
