package csvio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"finanzas/internal/core"
)

var (
	// ErrNoDataRows is returned when the input has no row after the header.
	ErrNoDataRows = errors.New("csv has no data rows")
	// ErrUnknownRowType rejects a complete-layout row whose tipo is not a known kind.
	ErrUnknownRowType = errors.New("unknown row type")
)

// Recorder persists imported records. Each call stores one record.
type Recorder interface {
	AddExpense(ctx context.Context, e core.Expense) error
	SetFixedIncome(ctx context.Context, f core.FixedIncome) error
	AddExtraIncome(ctx context.Context, x core.ExtraIncome) error
}

// Hint tells Import how to read a file whose layout cannot be detected.
type Hint string

const (
	HintAuto     Hint = "auto"
	HintExpenses Hint = "expenses"
	HintIncomes  Hint = "incomes"
)

func ParseHint(s string) (Hint, error) {
	switch h := Hint(strings.ToLower(strings.TrimSpace(s))); h {
	case "":
		return HintAuto, nil
	case HintAuto, HintExpenses, HintIncomes:
		return h, nil
	default:
		return "", fmt.Errorf("unknown import type %q", s)
	}
}

type Result struct {
	Format   Format `json:"format"`
	Imported int    `json:"imported"`
	Errors   int    `json:"errors"`
	Skipped  int    `json:"skipped"`
}

type outcome int

const (
	stored outcome = iota
	skipped
)

// rowFunc turns one data row into a stored record.
type rowFunc func(ctx context.Context, owner string, cols columns, r row) (outcome, error)

type Importer struct {
	rec      Recorder
	now      func() time.Time
	logger   *slog.Logger
	progress func(done, total int)
}

type Option func(*Importer)

// WithClock overrides the clock used for date fallbacks.
func WithClock(now func() time.Time) Option {
	return func(im *Importer) { im.now = now }
}

// WithProgress registers a callback invoked after each row.
func WithProgress(fn func(done, total int)) Option {
	return func(im *Importer) { im.progress = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(im *Importer) { im.logger = l }
}

func NewImporter(rec Recorder, opts ...Option) *Importer {
	im := &Importer{rec: rec, now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(im)
	}
	return im
}

// Import reads the whole of r, detects its layout and records every data row.
// A row that fails is counted in Result.Errors and the import goes on. The
// hint only matters when the layout is unknown. A cancelled context stops the
// import between rows; the partial result is returned with the context error.
func (im *Importer) Import(ctx context.Context, owner string, r io.Reader, hint Hint) (Result, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("read csv: %w", err)
	}
	lines := dataLines(string(raw))
	if len(lines) < 2 {
		return Result{}, ErrNoDataRows
	}

	header := splitRow(lines[0])
	format := DetectFormat(header)
	handle := im.handlerFor(format, hint)
	cols := newColumns(header)

	im.logger.InfoContext(ctx, "Importing CSV",
		"owner", owner,
		"format", format.String(),
		"hint", string(hint),
		"rows", len(lines)-1)

	res := Result{Format: format}
	total := len(lines) - 1
	for i, line := range lines[1:] {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("import stopped at row %d: %w", i+1, err)
		}
		out, err := handle(ctx, owner, cols, splitRow(line))
		switch {
		case err != nil:
			res.Errors++
			im.logger.WarnContext(ctx, "Skipping CSV row", "line", i+2, "error", err)
		case out == skipped:
			res.Skipped++
		default:
			res.Imported++
		}
		if im.progress != nil {
			im.progress(i+1, total)
		}
	}

	im.logger.InfoContext(ctx, "CSV import completed",
		"owner", owner,
		"imported", res.Imported,
		"errors", res.Errors,
		"skipped", res.Skipped)
	return res, nil
}

func (im *Importer) handlerFor(format Format, hint Hint) rowFunc {
	switch format {
	case FormatComplete:
		return im.completeRow
	case FormatBank:
		return im.bankRow
	case FormatExpenses:
		return im.expenseRow
	case FormatIncomes:
		return im.incomeRow
	case FormatUnknown:
		switch hint {
		case HintExpenses:
			return im.expenseRow
		case HintIncomes:
			return im.incomeRow
		default:
			return im.detectedRow
		}
	}
	panic(fmt.Sprintf("csvio: unhandled format %d", format))
}

// Column names accepted by the expenses and incomes layouts, after folding.
var (
	descriptionCols = []string{"descripcion", "description", "concepto", "detalle", "nombre", "name"}
	amountCols      = []string{"monto", "amount", "importe", "valor", "total", "precio", "sueldo", "salario"}
	categoryCols    = []string{"categoria", "category", "rubro"}
	dateCols        = []string{"fecha", "date"}
	monthCols       = []string{"mes", "month", "periodo"}
	installmentCols = []string{"cuota_actual", "cuota", "installment"}
	totalCols       = []string{"total_cuotas", "cuotas", "installments"}
	originalCols    = []string{"monto_original", "original_amount"}
	recurringCols   = []string{"es_recurrente", "recurrente", "recurring"}
	typeCols        = []string{"tipo", "type"}
)

const (
	defaultExpenseDescription = "Sin descripción"
	defaultIncomeDescription  = "Ingreso extra"
)

// value returns the cell of the first matching named column, or the cell at
// position fallback when the header names none of them (-1 for no fallback).
func value(cols columns, r row, names []string, fallback int) string {
	if i := cols.lookup(names...); i >= 0 {
		return r.at(i)
	}
	return r.at(fallback)
}

func (im *Importer) completeRow(ctx context.Context, owner string, cols columns, r row) (outcome, error) {
	kind := strings.NewReplacer(" ", "_", "-", "_").Replace(fold(value(cols, r, typeCols, -1)))
	switch kind {
	case "gasto":
		return im.expenseRow(ctx, owner, cols, r)
	case "ingreso_fijo":
		return im.fixedIncome(ctx, owner, cols, r)
	case "ingreso_extra":
		return im.extraIncome(ctx, owner, cols, r)
	default:
		return skipped, fmt.Errorf("%w: %q", ErrUnknownRowType, kind)
	}
}

func (im *Importer) expenseRow(ctx context.Context, owner string, cols columns, r row) (outcome, error) {
	amount, err := parseAbs(value(cols, r, amountCols, 1))
	if err != nil {
		return skipped, err
	}
	date := core.NormalizeDate(value(cols, r, dateCols, -1), im.now())
	installment := positiveInt(value(cols, r, installmentCols, -1))
	total := positiveInt(value(cols, r, totalCols, -1))
	original := amount
	if s := value(cols, r, originalCols, -1); s != "" {
		original = core.ParseMoney(s)
	}

	e := core.Expense{
		Owner:             owner,
		Description:       orDefault(value(cols, r, descriptionCols, 0), defaultExpenseDescription),
		Amount:            amount,
		Category:          orDefault(value(cols, r, categoryCols, -1), core.DefaultCategory),
		Date:              date,
		Month:             monthOf(value(cols, r, monthCols, -1), date),
		Installment:       installment,
		TotalInstallments: total,
		OriginalAmount:    original,
		Recurring:         isYes(value(cols, r, recurringCols, -1)),
	}
	if err := im.rec.AddExpense(ctx, e); err != nil {
		return skipped, fmt.Errorf("add expense: %w", err)
	}
	return stored, nil
}

func (im *Importer) incomeRow(ctx context.Context, owner string, cols columns, r row) (outcome, error) {
	kind := fold(value(cols, r, typeCols, -1))
	if strings.Contains(kind, "fijo") || strings.Contains(kind, "fixed") {
		return im.fixedIncome(ctx, owner, cols, r)
	}
	return im.extraIncome(ctx, owner, cols, r)
}

func (im *Importer) fixedIncome(ctx context.Context, owner string, cols columns, r row) (outcome, error) {
	amount, err := parseAbs(value(cols, r, amountCols, 1))
	if err != nil {
		return skipped, err
	}
	date := core.NormalizeDate(value(cols, r, dateCols, -1), im.now())
	f := core.FixedIncome{
		Owner:  owner,
		Month:  monthOf(value(cols, r, monthCols, -1), date),
		Amount: amount,
	}
	if err := im.rec.SetFixedIncome(ctx, f); err != nil {
		return skipped, fmt.Errorf("set fixed income: %w", err)
	}
	return stored, nil
}

func (im *Importer) extraIncome(ctx context.Context, owner string, cols columns, r row) (outcome, error) {
	amount, err := parseAbs(value(cols, r, amountCols, 1))
	if err != nil {
		return skipped, err
	}
	date := core.NormalizeDate(value(cols, r, dateCols, -1), im.now())
	x := core.ExtraIncome{
		Owner:       owner,
		Month:       monthOf(value(cols, r, monthCols, -1), date),
		Description: orDefault(value(cols, r, descriptionCols, 0), defaultIncomeDescription),
		Amount:      amount,
		Category:    orDefault(value(cols, r, categoryCols, -1), core.DefaultIncomeCategory),
		Date:        date,
	}
	if err := im.rec.AddExtraIncome(ctx, x); err != nil {
		return skipped, fmt.Errorf("add extra income: %w", err)
	}
	return stored, nil
}

type rowType int

const (
	rowExpense rowType = iota
	rowIncome
)

// detectRowType guesses the kind of a row from an unrecognised layout. Only
// an income word in the first column makes it an income; the sign of the
// amount in column 1 never turns a row into one.
func detectRowType(r row) rowType {
	first := fold(r.at(0))
	switch {
	case strings.Contains(first, "gasto") || strings.Contains(first, "expense"):
		return rowExpense
	case strings.Contains(first, "ingreso") || strings.Contains(first, "income") || strings.Contains(first, "sueldo"):
		return rowIncome
	}
	return rowExpense
}

func (im *Importer) detectedRow(ctx context.Context, owner string, cols columns, r row) (outcome, error) {
	if detectRowType(r) == rowIncome {
		return im.extraIncome(ctx, owner, cols, r)
	}
	return im.expenseRow(ctx, owner, cols, r)
}

func parseAbs(s string) (core.Money, error) {
	c, err := core.ParseAmount(s)
	if err != nil {
		return core.Money{}, err
	}
	if c < 0 {
		c = -c
	}
	return core.Money{Cents: c}, nil
}

func positiveInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func isYes(s string) bool {
	switch fold(s) {
	case "si", "true":
		return true
	}
	return false
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func monthOf(s string, date core.Date) core.MonthKey {
	if k, err := core.ParseMonthKey(s); err == nil {
		return k
	}
	return core.MonthKeyOf(date.Time)
}
