package sheets

import (
	"context"
	"fmt"
	"strconv"

	"finanzas/internal/core"
)

// Tab names a logical sheet of the mirror spreadsheet.
type Tab string

const (
	TabExpenses Tab = "expenses"
	TabIncomes  Tab = "incomes"
)

// Ports for outbound adapters.
type (
	// Mirror keeps one row per record in a spreadsheet. The first column of
	// every row holds the record key, which is how rows are found again.
	Mirror interface {
		// ReplaceRow removes the rows keyed by key and appends row.
		ReplaceRow(ctx context.Context, tab Tab, key string, row []string) error
		// DeleteRows removes the rows keyed by key and reports how many went.
		DeleteRows(ctx context.Context, tab Tab, key string) (int, error)
	}
)

var (
	ExpenseHeader = []string{"ID", "Titular", "Fecha", "Mes", "Descripción", "Categoría", "Monto", "Cuota", "Recurrente"}
	IncomeHeader  = []string{"ID", "Titular", "Mes", "Tipo", "Descripción", "Categoría", "Monto", "Fecha"}
)

// FixedIncomeKey is the mirror key of an owner's fixed income for a month.
func FixedIncomeKey(owner string, month core.MonthKey) string {
	return "fijo:" + owner + ":" + month.String()
}

func ExpenseRow(e core.Expense) []string {
	recurring := "no"
	if e.Recurring {
		recurring = "sí"
	}
	return []string{
		e.ID,
		e.Owner,
		e.Date.ISO(),
		e.Month.String(),
		e.Description,
		e.Category,
		core.FormatAmount(e.Amount),
		fmt.Sprintf("%d/%d", e.Installment, e.TotalInstallments),
		recurring,
	}
}

func ExtraIncomeRow(x core.ExtraIncome) []string {
	return []string{
		x.ID,
		x.Owner,
		x.Month.String(),
		"extra",
		x.Description,
		x.Category,
		core.FormatAmount(x.Amount),
		x.Date.ISO(),
	}
}

// FixedIncomeRow renders the fixed amount plus the extras attached to it;
// the description carries the extras count.
func FixedIncomeRow(f core.FixedIncome) []string {
	total := f.Amount
	for _, x := range f.Extras {
		total = total.Add(x.Amount)
	}
	desc := "Ingreso fijo"
	if n := len(f.Extras); n > 0 {
		desc += " + " + strconv.Itoa(n) + " extras"
	}
	date := ""
	if !f.UpdatedAt.IsZero() {
		date = core.DateOf(f.UpdatedAt).ISO()
	}
	return []string{
		FixedIncomeKey(f.Owner, f.Month),
		f.Owner,
		f.Month.String(),
		"ingreso_fijo",
		desc,
		"",
		core.FormatAmount(total),
		date,
	}
}
