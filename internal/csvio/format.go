// Package csvio moves ledger records in and out of comma-separated text.
//
// Export flattens an owner's records into one of three fixed layouts.
// Import accepts those layouts plus bank statements and loosely labelled
// spreadsheets, detects which one it is looking at, and feeds every row back
// through the same mutations the API uses.
package csvio

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Format is the layout detected from a header row.
type Format int

const (
	FormatUnknown Format = iota
	FormatComplete
	FormatBank
	FormatExpenses
	FormatIncomes
)

func (f Format) String() string {
	switch f {
	case FormatComplete:
		return "complete"
	case FormatBank:
		return "bank"
	case FormatExpenses:
		return "expenses"
	case FormatIncomes:
		return "incomes"
	default:
		return "unknown"
	}
}

func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Export headers, exactly as written by Encode.
const (
	HeaderComplete = "tipo,descripcion,monto,categoria,fecha,mes,cuota_actual,total_cuotas,monto_original,es_recurrente"
	HeaderExpenses = "descripcion,monto,categoria,fecha,mes,cuota_actual,total_cuotas,monto_original"
	HeaderIncomes  = "tipo,monto,descripcion,mes,fecha"
)

var (
	dateTokens        = []string{"fecha", "date"}
	movementTokens    = []string{"debito", "credito", "debit", "credit", "movimiento", "movement", "cargo", "abono", "saldo", "balance"}
	expenseTokens     = []string{"gasto", "expense", "categoria", "category"}
	descriptionTokens = []string{"descripcion", "description", "concepto", "detalle"}
	incomeTokens      = []string{"ingreso", "income", "sueldo", "salario", "salary"}
)

// DetectFormat classifies a header row. The checks run in a fixed priority
// order over the folded, comma-joined header so that each exported header
// detects as its own layout.
func DetectFormat(header []string) Format {
	joined := fold(strings.Join(header, ","))
	hasTipo := strings.Contains(joined, "tipo")

	switch {
	case strings.Contains(joined, "cuota_actual") && strings.Contains(joined, "total_cuotas") && hasTipo:
		return FormatComplete
	case containsAny(joined, dateTokens) && containsAny(joined, movementTokens):
		return FormatBank
	case containsAny(joined, expenseTokens) || (containsAny(joined, descriptionTokens) && !hasTipo):
		return FormatExpenses
	case containsAny(joined, incomeTokens) || hasTipo:
		return FormatIncomes
	}
	return FormatUnknown
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// fold lower-cases s, trims it and strips diacritics ("Débito" -> "debito").
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// splitRow splits one line on commas that sit outside double quotes. A quote
// toggles the quoted state; inside quotes a doubled quote is a literal one.
func splitRow(line string) []string {
	var (
		fields   []string
		field    strings.Builder
		inQuotes bool
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' && inQuotes && i+1 < len(runes) && runes[i+1] == '"':
			field.WriteRune('"')
			i++
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(field.String()))
			field.Reset()
		default:
			field.WriteRune(r)
		}
	}
	return append(fields, strings.TrimSpace(field.String()))
}

// dataLines returns the non-blank lines of contents with line endings and a
// leading byte-order mark removed.
func dataLines(contents string) []string {
	contents = strings.TrimPrefix(contents, "\ufeff")
	var out []string
	for _, l := range strings.Split(contents, "\n") {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
	}
	return out
}

// columns indexes a header row by folded column name.
type columns struct {
	names []string
	index map[string]int
}

func newColumns(header []string) columns {
	c := columns{names: make([]string, len(header)), index: make(map[string]int, len(header))}
	for i, h := range header {
		name := fold(h)
		c.names[i] = name
		if _, ok := c.index[name]; !ok {
			c.index[name] = i
		}
	}
	return c
}

// lookup returns the position of the first column named exactly like one of
// names, or -1.
func (c columns) lookup(names ...string) int {
	for _, n := range names {
		if i, ok := c.index[n]; ok {
			return i
		}
	}
	return -1
}

// lookupContaining returns the first column whose name contains one of subs, or -1.
func (c columns) lookupContaining(subs ...string) int {
	for _, s := range subs {
		for i, n := range c.names {
			if strings.Contains(n, s) {
				return i
			}
		}
	}
	return -1
}

type row []string

func (r row) at(i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return r[i]
}
