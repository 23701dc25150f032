package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"finanzas/internal/core"
)

// RecurringProcessor copies the recurring expenses of the previous month into
// a new month.
type RecurringProcessor struct {
	ledger *LedgerService
	now    func() time.Time
}

func NewRecurringProcessor(ledger *LedgerService) *RecurringProcessor {
	return &RecurringProcessor{ledger: ledger, now: ledger.now}
}

// RecurringResult counts what one run did.
type RecurringResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
}

func recurringKey(description, category string) string {
	return strings.ToLower(strings.TrimSpace(description)) + "\x00" + strings.ToLower(strings.TrimSpace(category))
}

// Process copies every recurring single-payment expense of month-1 into
// month unless month already holds one with the same description and
// category. A copy keeps the day of the month (clamped to the month length)
// and is only made once that day has been reached, so running it daily
// spreads the copies over the month. Failures are logged and counted.
func (p *RecurringProcessor) Process(ctx context.Context, owner string, month core.MonthKey) (RecurringResult, error) {
	var res RecurringResult
	if p.ledger == nil {
		return res, fmt.Errorf("processor not properly initialized")
	}

	previous, err := p.ledger.store.ListExpenses(ctx, owner, month.Prev())
	if err != nil {
		return res, fmt.Errorf("list previous month expenses: %w", err)
	}
	current, err := p.ledger.store.ListExpenses(ctx, owner, month)
	if err != nil {
		return res, fmt.Errorf("list month expenses: %w", err)
	}

	existing := make(map[string]struct{}, len(current))
	for _, e := range current {
		existing[recurringKey(e.Description, e.Category)] = struct{}{}
	}

	history := map[core.MonthKey]map[string]core.Expense{month.Prev(): recurringIndex(previous)}
	now := p.now()
	slog.InfoContext(ctx, "Processing recurring expenses",
		"owner", owner,
		"month", month.String(),
		"candidates", len(previous))

	for _, e := range previous {
		if !e.Recurring || e.IsInstallment() {
			continue
		}
		key := recurringKey(e.Description, e.Category)
		if _, ok := existing[key]; ok {
			res.Skipped++
			continue
		}
		day, err := p.anchorDay(ctx, owner, e, history)
		if err != nil {
			res.Failed++
			slog.ErrorContext(ctx, "Failed to trace recurring expense day",
				"owner", owner,
				"source_id", e.ID,
				"error", err)
			continue
		}
		date := copyDate(day, month)
		if date.After(core.EndOfDay(now)) {
			res.Pending++
			continue
		}

		_, err = p.ledger.CreateExpense(ctx, core.Expense{
			Owner:             owner,
			Description:       e.Description,
			Amount:            e.Amount,
			Category:          e.Category,
			Date:              date,
			Month:             month,
			Installment:       1,
			TotalInstallments: 1,
			Recurring:         true,
		})
		if err != nil {
			res.Failed++
			slog.ErrorContext(ctx, "Failed to copy recurring expense",
				"owner", owner,
				"source_id", e.ID,
				"description", e.Description,
				"error", err)
			continue
		}
		existing[key] = struct{}{}
		res.Created++
	}

	slog.InfoContext(ctx, "Recurring expense processing complete",
		"owner", owner,
		"month", month.String(),
		"created", res.Created,
		"skipped", res.Skipped,
		"pending", res.Pending,
		"failed", res.Failed)
	return res, nil
}

// maxAnchorLookback bounds how many months anchorDay walks back.
const maxAnchorLookback = 12

func recurringIndex(es []core.Expense) map[string]core.Expense {
	idx := make(map[string]core.Expense, len(es))
	for _, e := range es {
		if e.Recurring && !e.IsInstallment() {
			idx[recurringKey(e.Description, e.Category)] = e
		}
	}
	return idx
}

// anchorDay returns the day of the month e's chain was set up on. A record on
// the last day of a short month may be a clamped copy, so earlier months are
// consulted until one shows a day that was not clamped.
func (p *RecurringProcessor) anchorDay(ctx context.Context, owner string, e core.Expense, history map[core.MonthKey]map[string]core.Expense) (int, error) {
	day := e.Date.Day()
	key := recurringKey(e.Description, e.Category)
	cur := e
	for i := 0; i < maxAnchorLookback && day < 31; i++ {
		if cur.Date.Day() < cur.Month.DaysIn() {
			break
		}
		month := cur.Month.Prev()
		idx, ok := history[month]
		if !ok {
			es, err := p.ledger.store.ListExpenses(ctx, owner, month)
			if err != nil {
				return 0, fmt.Errorf("list %s expenses: %w", month, err)
			}
			idx = recurringIndex(es)
			history[month] = idx
		}
		prev, ok := idx[key]
		if !ok {
			break
		}
		day = max(day, prev.Date.Day())
		cur = prev
	}
	return day, nil
}

// copyDate places day inside month, clamped to the month's last day (a 31st
// becomes the 28th, 29th or 30th).
func copyDate(day int, month core.MonthKey) core.Date {
	if last := month.DaysIn(); day > last {
		day = last
	}
	return core.NewDate(month.Year, int(month.Month), day)
}
