// Package ledger derives the monthly views of an owner's finances from
// records already loaded in memory. Nothing here performs I/O or fails:
// malformed amounts are read as zero.
package ledger

import (
	"fmt"
	"math"
	"sort"

	"finanzas/internal/core"
)

// Snapshot is everything the aggregator needs for one owner and month.
type Snapshot struct {
	Month        core.MonthKey
	Expenses     []core.Expense
	Fixed        *core.FixedIncome
	ExtraIncomes []core.ExtraIncome
}

type AlertLevel string

const (
	AlertWarning AlertLevel = "warning"
	AlertDanger  AlertLevel = "danger"
)

type Alert struct {
	Category   string     `json:"category"`
	Level      AlertLevel `json:"level"`
	Percentage float64    `json:"percentage"`
	Spent      core.Money `json:"spent"`
	Limit      core.Money `json:"limit"`
	Message    string     `json:"message"`
}

func amountOf(m core.Money) int64 {
	if m.Cents < 0 {
		return 0
	}
	return m.Cents
}

// CalculateBalance sums the month. Income is the fixed amount plus the
// extra-income table plus the extras attached to the fixed record; an extra
// present in both places is counted once.
func CalculateBalance(s Snapshot) core.Balance {
	var b core.Balance

	var spent int64
	for _, e := range s.Expenses {
		spent += amountOf(e.Amount)
		if e.TotalInstallments > 1 {
			b.Installments++
		}
	}

	var income int64
	seen := make(map[string]struct{}, len(s.ExtraIncomes))
	for _, x := range s.ExtraIncomes {
		if x.ID != "" {
			seen[x.ID] = struct{}{}
		}
		income += amountOf(x.Amount)
	}
	if s.Fixed != nil {
		income += amountOf(s.Fixed.Amount)
		for _, x := range s.Fixed.Extras {
			if _, dup := seen[x.ID]; dup && x.ID != "" {
				continue
			}
			income += amountOf(x.Amount)
		}
	}

	b.TotalExpenses = core.Money{Cents: spent}
	b.TotalIncome = core.Money{Cents: income}
	b.Available = b.TotalIncome.Sub(b.TotalExpenses)
	return b
}

// ExpensesByCategory groups amounts by the raw category string.
func ExpensesByCategory(expenses []core.Expense) map[string]core.Money {
	out := make(map[string]core.Money)
	for _, e := range expenses {
		out[e.Category] = out[e.Category].Add(core.Money{Cents: amountOf(e.Amount)})
	}
	return out
}

// SortedCategories orders a category breakdown by amount, largest first,
// then by name.
func SortedCategories(byCategory map[string]core.Money) []core.CategoryAmount {
	out := make([]core.CategoryAmount, 0, len(byCategory))
	for name, amount := range byCategory {
		out = append(out, core.CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// CheckSpendingLimits returns one alert per limit whose category spending
// reached its warning threshold, in the order the limits were given.
func CheckSpendingLimits(expenses []core.Expense, limits []core.SpendingLimit) []Alert {
	byCategory := ExpensesByCategory(expenses)
	var alerts []Alert
	for _, l := range limits {
		ceiling := amountOf(l.Amount)
		if ceiling == 0 {
			continue
		}
		warning := l.WarningPercentage
		if warning < core.MinWarningPercentage || warning > core.MaxWarningPercentage {
			warning = core.DefaultWarningPercentage
		}
		spent := byCategory[l.Category]
		pct := float64(spent.Cents) * 100 / float64(ceiling)

		var level AlertLevel
		switch {
		case pct >= 100:
			level = AlertDanger
		case pct >= float64(warning):
			level = AlertWarning
		default:
			continue
		}
		rounded := math.Round(pct*10) / 10
		alerts = append(alerts, Alert{
			Category:   l.Category,
			Level:      level,
			Percentage: rounded,
			Spent:      spent,
			Limit:      core.Money{Cents: ceiling},
			Message:    alertMessage(level, l.Category, rounded),
		})
	}
	return alerts
}

func alertMessage(level AlertLevel, category string, pct float64) string {
	if level == AlertDanger {
		return fmt.Sprintf("Has superado el límite de %s (%.1f%%)", category, pct)
	}
	return fmt.Sprintf("Estás cerca del límite de %s (%.1f%%)", category, pct)
}
