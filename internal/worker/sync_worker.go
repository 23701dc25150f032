package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"finanzas/internal/amqp"
	"finanzas/internal/core"
	"finanzas/internal/services"
	"finanzas/internal/sheets"
)

// SyncWorker mirrors stored records to the spreadsheet.
type SyncWorker struct {
	store  services.Store
	mirror sheets.Mirror
}

func NewSyncWorker(store services.Store, mirror sheets.Mirror) *SyncWorker {
	return &SyncWorker{store: store, mirror: mirror}
}

// HandleMessage is the amqp.Handler of the worker.
func (w *SyncWorker) HandleMessage(ctx context.Context, msg *amqp.RecordMessage) error {
	slog.InfoContext(ctx, "Processing record message",
		"action", msg.Action,
		"kind", msg.Kind,
		"id", msg.ID,
		"owner", msg.Owner)

	switch msg.Action {
	case amqp.ActionSync:
		return w.syncRecord(ctx, msg.RecordRef)
	case amqp.ActionDelete:
		return w.deleteRecord(ctx, msg.RecordRef)
	}
	return fmt.Errorf("unknown action %q", msg.Action)
}

// syncRecord loads the record and rewrites its row. A record that is gone by
// now was deleted after the message was published, so its rows go too.
func (w *SyncWorker) syncRecord(ctx context.Context, ref amqp.RecordRef) error {
	var (
		tab sheets.Tab
		key string
		row []string
		err error
	)
	switch ref.Kind {
	case amqp.KindExpense:
		var e core.Expense
		tab, key = sheets.TabExpenses, ref.ID
		if e, err = w.store.GetExpense(ctx, ref.Owner, ref.ID); err == nil {
			row = sheets.ExpenseRow(e)
		}
	case amqp.KindExtraIncome:
		var x core.ExtraIncome
		tab, key = sheets.TabIncomes, ref.ID
		if x, err = w.store.GetExtraIncome(ctx, ref.Owner, ref.ID); err == nil {
			row = sheets.ExtraIncomeRow(x)
		}
	case amqp.KindFixedIncome:
		month, perr := core.ParseMonthKey(ref.ID)
		if perr != nil {
			return fmt.Errorf("fixed income key: %w", perr)
		}
		var f core.FixedIncome
		tab, key = sheets.TabIncomes, sheets.FixedIncomeKey(ref.Owner, month)
		if f, err = w.store.GetFixedIncome(ctx, ref.Owner, month); err == nil {
			row = sheets.FixedIncomeRow(f)
		}
	default:
		return fmt.Errorf("unknown record kind %q", ref.Kind)
	}

	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Record no longer stored, removing mirror rows",
			"kind", ref.Kind, "id", ref.ID)
		_, err = w.mirror.DeleteRows(ctx, tab, key)
		return err
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", ref.Kind, err)
	}
	if err := w.mirror.ReplaceRow(ctx, tab, key, row); err != nil {
		return fmt.Errorf("mirror %s: %w", ref.Kind, err)
	}
	slog.InfoContext(ctx, "Mirrored record", "kind", ref.Kind, "id", ref.ID)
	return nil
}

func (w *SyncWorker) deleteRecord(ctx context.Context, ref amqp.RecordRef) error {
	tab, key := sheets.TabIncomes, ref.ID
	switch ref.Kind {
	case amqp.KindExpense:
		tab = sheets.TabExpenses
	case amqp.KindExtraIncome:
	case amqp.KindFixedIncome:
		month, err := core.ParseMonthKey(ref.ID)
		if err != nil {
			return fmt.Errorf("fixed income key: %w", err)
		}
		key = sheets.FixedIncomeKey(ref.Owner, month)
	default:
		return fmt.Errorf("unknown record kind %q", ref.Kind)
	}

	n, err := w.mirror.DeleteRows(ctx, tab, key)
	if err != nil {
		return fmt.Errorf("delete mirror rows: %w", err)
	}
	slog.InfoContext(ctx, "Deleted mirror rows", "kind", ref.Kind, "id", ref.ID, "rows", n)
	return nil
}

// MirrorResult counts the rows written by MirrorMonth.
type MirrorResult struct {
	Expenses     int
	ExtraIncomes int
	FixedIncome  bool
	Errors       int
}

// MirrorMonth rewrites every row of one owner and month. Row failures are
// logged and counted; only failing to read the store is an error.
func (w *SyncWorker) MirrorMonth(ctx context.Context, owner string, month core.MonthKey) (MirrorResult, error) {
	var res MirrorResult

	expenses, err := w.store.ListExpenses(ctx, owner, month)
	if err != nil {
		return res, fmt.Errorf("list expenses: %w", err)
	}
	extras, err := w.store.ListExtraIncomes(ctx, owner, month)
	if err != nil {
		return res, fmt.Errorf("list extra incomes: %w", err)
	}
	fixed, err := w.store.GetFixedIncome(ctx, owner, month)
	hasFixed := err == nil
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return res, fmt.Errorf("get fixed income: %w", err)
	}

	for _, e := range expenses {
		if err := w.mirror.ReplaceRow(ctx, sheets.TabExpenses, e.ID, sheets.ExpenseRow(e)); err != nil {
			res.Errors++
			slog.ErrorContext(ctx, "Failed to mirror expense", "id", e.ID, "error", err)
			continue
		}
		res.Expenses++
	}
	for _, x := range extras {
		if err := w.mirror.ReplaceRow(ctx, sheets.TabIncomes, x.ID, sheets.ExtraIncomeRow(x)); err != nil {
			res.Errors++
			slog.ErrorContext(ctx, "Failed to mirror extra income", "id", x.ID, "error", err)
			continue
		}
		res.ExtraIncomes++
	}
	if hasFixed {
		key := sheets.FixedIncomeKey(owner, month)
		if err := w.mirror.ReplaceRow(ctx, sheets.TabIncomes, key, sheets.FixedIncomeRow(fixed)); err != nil {
			res.Errors++
			slog.ErrorContext(ctx, "Failed to mirror fixed income", "key", key, "error", err)
		} else {
			res.FixedIncome = true
		}
	}

	slog.InfoContext(ctx, "Month mirrored",
		"owner", owner,
		"month", month.String(),
		"expenses", res.Expenses,
		"extra_incomes", res.ExtraIncomes,
		"fixed_income", res.FixedIncome,
		"errors", res.Errors)
	return res, nil
}
