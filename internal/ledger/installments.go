package ledger

import (
	"finanzas/internal/core"
)

// SplitInstallments expands a purchase paid in e.TotalInstallments parts into
// sibling records sharing OriginalID and OriginalAmount. Each sibling gets
// total/N cents and the last one absorbs the remainder. Sibling k (1-based) is
// dated k-1 months after e.Date and keyed k-1 months after e.Month.
//
// newID is called once per sibling and once more for the shared OriginalID
// when e does not carry one. An expense with a single installment is
// returned as-is with Installment and OriginalAmount filled.
func SplitInstallments(e core.Expense, newID func() string) []core.Expense {
	n := e.TotalInstallments
	if n < 1 {
		n = 1
	}
	month := e.Month
	if month.IsZero() {
		month = core.MonthKeyOf(e.Date.Time)
	}
	if n == 1 {
		e.Installment = 1
		e.TotalInstallments = 1
		e.Month = month
		if e.OriginalAmount.Cents == 0 {
			e.OriginalAmount = e.Amount
		}
		if e.ID == "" {
			e.ID = newID()
		}
		return []core.Expense{e}
	}

	groupID := e.OriginalID
	if groupID == "" {
		groupID = newID()
	}
	total := e.Amount.Cents
	each := total / int64(n)

	out := make([]core.Expense, n)
	for i := 0; i < n; i++ {
		s := e
		s.ID = newID()
		s.Installment = i + 1
		s.TotalInstallments = n
		s.OriginalID = groupID
		s.OriginalAmount = core.Money{Cents: total}
		s.Amount = core.Money{Cents: each}
		if i == n-1 {
			s.Amount = core.Money{Cents: total - each*int64(n-1)}
		}
		s.Date = e.Date.AddMonths(i)
		s.Month = month.AddMonths(i)
		out[i] = s
	}
	return out
}
