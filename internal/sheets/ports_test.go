package sheets

import (
	"testing"
	"time"

	"finanzas/internal/core"
)

func TestExpenseRow(t *testing.T) {
	e := core.Expense{
		ID:                "e1",
		Owner:             "ana",
		Description:       "Televisor",
		Amount:            core.Money{Cents: 33334},
		Category:          "Hogar",
		Date:              core.NewDate(2025, 5, 10),
		Month:             core.MonthKey{Year: 2025, Month: time.May},
		Installment:       3,
		TotalInstallments: 3,
		Recurring:         false,
	}
	got := ExpenseRow(e)
	want := []string{"e1", "ana", "2025-05-10", "2025-05", "Televisor", "Hogar", "333.34", "3/3", "no"}
	if len(got) != len(ExpenseHeader) {
		t.Fatalf("row has %d columns, header %d", len(got), len(ExpenseHeader))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column %s: got %q want %q", ExpenseHeader[i], got[i], want[i])
		}
	}
}

func TestFixedIncomeRow(t *testing.T) {
	month := core.MonthKey{Year: 2025, Month: time.March}
	f := core.FixedIncome{
		Owner:     "ana",
		Month:     month,
		Amount:    core.Money{Cents: 200000},
		Extras:    []core.ExtraIncome{{Amount: core.Money{Cents: 5050}}, {Amount: core.Money{Cents: 50}}},
		UpdatedAt: time.Date(2025, 3, 4, 18, 0, 0, 0, time.UTC),
	}
	got := FixedIncomeRow(f)
	if len(got) != len(IncomeHeader) {
		t.Fatalf("row has %d columns, header %d", len(got), len(IncomeHeader))
	}
	if got[0] != "fijo:ana:2025-03" || got[0] != FixedIncomeKey("ana", month) {
		t.Errorf("unexpected key %q", got[0])
	}
	if got[4] != "Ingreso fijo + 2 extras" {
		t.Errorf("unexpected description %q", got[4])
	}
	if got[6] != "2051.00" {
		t.Errorf("unexpected total %q", got[6])
	}
	if got[7] != "2025-03-04" {
		t.Errorf("unexpected date %q", got[7])
	}
}

func TestExtraIncomeRow(t *testing.T) {
	x := core.ExtraIncome{
		ID:          "x1",
		Owner:       "ana",
		Month:       core.MonthKey{Year: 2025, Month: time.March},
		Description: "Venta",
		Amount:      core.Money{Cents: 1000},
		Category:    "other",
		Date:        core.NewDate(2025, 3, 2),
	}
	got := ExtraIncomeRow(x)
	if got[3] != "extra" || got[6] != "10.00" || got[7] != "2025-03-02" {
		t.Errorf("unexpected row %v", got)
	}
}
