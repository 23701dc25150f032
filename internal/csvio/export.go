package csvio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"finanzas/internal/core"
)

// Kind selects which records an export contains.
type Kind string

const (
	KindComplete Kind = "complete"
	KindExpenses Kind = "expenses"
	KindIncomes  Kind = "incomes"
)

// ParseKind accepts the three export kinds; an empty string means complete.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindComplete, nil
	case KindComplete, KindExpenses, KindIncomes:
		return k, nil
	default:
		return "", fmt.Errorf("unknown export kind %q", s)
	}
}

// Source provides the records of one owner.
type Source interface {
	ListAllExpenses(ctx context.Context, owner string) ([]core.Expense, error)
	ListFixedIncomes(ctx context.Context, owner string) ([]core.FixedIncome, error)
	ListAllExtraIncomes(ctx context.Context, owner string) ([]core.ExtraIncome, error)
}

// Data is the record set an export is built from.
type Data struct {
	Expenses     []core.Expense
	FixedIncomes []core.FixedIncome
	ExtraIncomes []core.ExtraIncome
}

type Exporter struct {
	src Source
}

func NewExporter(src Source) *Exporter {
	return &Exporter{src: src}
}

// Export loads the owner's records and writes them to w in the given layout.
func (x *Exporter) Export(ctx context.Context, w io.Writer, owner string, kind Kind) error {
	var data Data
	var err error
	if kind != KindIncomes {
		if data.Expenses, err = x.src.ListAllExpenses(ctx, owner); err != nil {
			return fmt.Errorf("list expenses: %w", err)
		}
	}
	if kind != KindExpenses {
		if data.FixedIncomes, err = x.src.ListFixedIncomes(ctx, owner); err != nil {
			return fmt.Errorf("list fixed incomes: %w", err)
		}
		if data.ExtraIncomes, err = x.src.ListAllExtraIncomes(ctx, owner); err != nil {
			return fmt.Errorf("list extra incomes: %w", err)
		}
	}
	return Encode(w, kind, data)
}

// Encode writes data in the given layout: a header row then one row per
// record, every field double-quoted, rows separated by a newline.
func Encode(w io.Writer, kind Kind, data Data) error {
	bw := bufio.NewWriter(w)
	enc := &encoder{w: bw}

	expenses := sortedExpenses(data.Expenses)
	fixed := sortedFixed(data.FixedIncomes)
	extras := mergedExtras(data.FixedIncomes, data.ExtraIncomes)

	switch kind {
	case KindComplete:
		enc.header(HeaderComplete)
		for _, e := range expenses {
			enc.row("gasto", e.Description, money(e.Amount), e.Category, e.Date.ISO(), e.Month.String(),
				strconv.Itoa(e.Installment), strconv.Itoa(e.TotalInstallments), money(e.OriginalAmount), yesNo(e.Recurring))
		}
		for _, f := range fixed {
			enc.row("ingreso_fijo", fixedDescription, money(f.Amount), "", f.Month.FirstDay().ISO(), f.Month.String(), "", "", "", "no")
		}
		for _, x := range extras {
			enc.row("ingreso_extra", x.Description, money(x.Amount), x.Category, x.Date.ISO(), x.Month.String(), "", "", "", "no")
		}
	case KindExpenses:
		enc.header(HeaderExpenses)
		for _, e := range expenses {
			enc.row(e.Description, money(e.Amount), e.Category, e.Date.ISO(), e.Month.String(),
				strconv.Itoa(e.Installment), strconv.Itoa(e.TotalInstallments), money(e.OriginalAmount))
		}
	case KindIncomes:
		enc.header(HeaderIncomes)
		for _, f := range fixed {
			enc.row("fijo", money(f.Amount), fixedDescription, f.Month.String(), f.Month.FirstDay().ISO())
		}
		for _, x := range extras {
			enc.row("extra", money(x.Amount), x.Description, x.Month.String(), x.Date.ISO())
		}
	default:
		return fmt.Errorf("unknown export kind %q", kind)
	}

	if enc.err != nil {
		return fmt.Errorf("write csv: %w", enc.err)
	}
	return bw.Flush()
}

const fixedDescription = "Ingreso fijo"

type encoder struct {
	w    *bufio.Writer
	rows int
	err  error
}

func (e *encoder) header(h string) {
	e.row(strings.Split(h, ",")...)
}

func (e *encoder) row(fields ...string) {
	if e.err != nil {
		return
	}
	var b strings.Builder
	if e.rows > 0 {
		b.WriteByte('\n')
	}
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	_, e.err = e.w.WriteString(b.String())
	e.rows++
}

func money(m core.Money) string {
	return core.FormatAmount(m)
}

func yesNo(b bool) string {
	if b {
		return "si"
	}
	return "no"
}

func sortedExpenses(in []core.Expense) []core.Expense {
	out := append([]core.Expense(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.Before(out[j].Date.Time)
		}
		return out[i].Installment < out[j].Installment
	})
	return out
}

func sortedFixed(in []core.FixedIncome) []core.FixedIncome {
	out := append([]core.FixedIncome(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Month.String() < out[j].Month.String()
	})
	return out
}

// mergedExtras lists table extras plus extras attached to fixed records,
// skipping attached ones whose ID is already in the table.
func mergedExtras(fixed []core.FixedIncome, table []core.ExtraIncome) []core.ExtraIncome {
	out := append([]core.ExtraIncome(nil), table...)
	seen := make(map[string]bool, len(table))
	for _, x := range table {
		if x.ID != "" {
			seen[x.ID] = true
		}
	}
	for _, f := range fixed {
		for _, x := range f.Extras {
			if x.ID != "" && seen[x.ID] {
				continue
			}
			if x.Month.IsZero() {
				x.Month = f.Month
			}
			if x.Date.IsZero() {
				x.Date = f.Month.FirstDay()
			}
			out = append(out, x)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date.Time)
	})
	return out
}
