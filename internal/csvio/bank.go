package csvio

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"finanzas/internal/core"
)

type categoryRule struct {
	category string
	keywords []string
}

// Keywords are whole words (or word sequences) of the folded description.
// The keyword that appears earliest in the description decides; rule order
// only breaks ties at the same word.
var categoryRules = []categoryRule{
	{"Alimentación", []string{"supermercado", "autoservicio", "carrefour", "coto", "jumbo", "restaurante", "resto", "comida", "panaderia", "carniceria", "verduleria", "cafe", "cafeteria", "pedidosya", "rappi", "mcdonald", "mcdonalds", "burger"}},
	{"Transporte", []string{"uber", "cabify", "didi", "taxi", "remis", "combustible", "gasolina", "nafta", "ypf", "shell", "axion", "peaje", "estacionamiento", "subte", "metro", "colectivo", "sube"}},
	{"Servicios", []string{"luz", "agua", "gas", "internet", "telefono", "celular", "movistar", "claro", "electricidad", "edenor", "edesur", "metrogas", "aysa", "alquiler", "expensas", "seguro", "seguros"}},
	{"Entretenimiento", []string{"netflix", "spotify", "disney", "hbo", "youtube", "cine", "teatro", "steam", "playstation", "xbox", "juego", "juegos", "recital"}},
	{"Salud", []string{"farmacia", "medico", "hospital", "clinica", "sanatorio", "dental", "odontologia", "odontologo", "obra social", "prepaga", "osde", "laboratorio"}},
	{"Educación", []string{"colegio", "escuela", "universidad", "facultad", "curso", "udemy", "coursera", "libreria", "libro", "libros", "cuota escolar"}},
	{"Compras", []string{"amazon", "mercadolibre", "mercado libre", "tienda", "shopping", "ropa", "zapateria", "falabella", "ikea"}},
}

// CategorizeTransaction assigns a spending category from the words in a bank
// statement description, or core.DefaultCategory when nothing matches.
func CategorizeTransaction(description string) string {
	words := strings.FieldsFunc(fold(description), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i := range words {
		for _, rule := range categoryRules {
			for _, kw := range rule.keywords {
				if wordsAt(words, i, strings.Fields(kw)) {
					return rule.category
				}
			}
		}
	}
	return core.DefaultCategory
}

func wordsAt(words []string, i int, kw []string) bool {
	if i+len(kw) > len(words) {
		return false
	}
	for j, w := range kw {
		if words[i+j] != w {
			return false
		}
	}
	return true
}

func (im *Importer) bankRow(ctx context.Context, owner string, cols columns, r row) (outcome, error) {
	amount, err := bankAmount(cols, r)
	if err != nil {
		return skipped, err
	}
	tx := core.BankTransaction{
		Date:        core.NormalizeDate(r.at(cols.lookupContaining("fecha", "date")), im.now()),
		Description: r.at(cols.lookupContaining("descripcion", "concepto", "detalle", "description", "memo", "referencia", "movimiento")),
		Amount:      amount,
	}
	return im.recordTransaction(ctx, owner, tx)
}

// bankAmount reads a signed amount column when the statement has one,
// otherwise credit minus debit.
func bankAmount(cols columns, r row) (core.Money, error) {
	if i := cols.lookupContaining("monto", "importe", "amount", "valor"); i >= 0 {
		c, err := core.ParseAmount(r.at(i))
		if err != nil {
			return core.Money{}, err
		}
		return core.Money{Cents: c}, nil
	}
	debit, err := optionalAbs(r.at(cols.lookupContaining("debito", "debit", "cargo")))
	if err != nil {
		return core.Money{}, fmt.Errorf("debit: %w", err)
	}
	credit, err := optionalAbs(r.at(cols.lookupContaining("credito", "credit", "abono")))
	if err != nil {
		return core.Money{}, fmt.Errorf("credit: %w", err)
	}
	return credit.Sub(debit), nil
}

func optionalAbs(s string) (core.Money, error) {
	if strings.TrimSpace(s) == "" {
		return core.Money{}, nil
	}
	return parseAbs(s)
}

// ImportTransactions records already-parsed statement lines (for example from
// an OFX file) with the same rules as bank CSV rows.
func (im *Importer) ImportTransactions(ctx context.Context, owner string, txs []core.BankTransaction) (Result, error) {
	res := Result{Format: FormatBank}
	for i, tx := range txs {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("import stopped at transaction %d: %w", i+1, err)
		}
		out, err := im.recordTransaction(ctx, owner, tx)
		switch {
		case err != nil:
			res.Errors++
			im.logger.WarnContext(ctx, "Skipping bank transaction", "index", i, "reference", tx.Reference, "error", err)
		case out == skipped:
			res.Skipped++
		default:
			res.Imported++
		}
		if im.progress != nil {
			im.progress(i+1, len(txs))
		}
	}
	return res, nil
}

// recordTransaction files a debit as an expense and a credit as an extra
// income. Zero-amount lines are skipped.
func (im *Importer) recordTransaction(ctx context.Context, owner string, tx core.BankTransaction) (outcome, error) {
	if tx.Date.IsZero() {
		tx.Date = core.DateOf(im.now())
	}
	month := core.MonthKeyOf(tx.Date.Time)

	switch {
	case tx.Amount.Cents == 0:
		return skipped, nil
	case tx.Amount.Cents < 0:
		amount := core.Money{Cents: -tx.Amount.Cents}
		e := core.Expense{
			Owner:             owner,
			Description:       cleanDescription(tx.Description, defaultExpenseDescription),
			Amount:            amount,
			Category:          CategorizeTransaction(tx.Description),
			Date:              tx.Date,
			Month:             month,
			Installment:       1,
			TotalInstallments: 1,
			OriginalAmount:    amount,
		}
		if err := im.rec.AddExpense(ctx, e); err != nil {
			return skipped, fmt.Errorf("add expense: %w", err)
		}
	default:
		x := core.ExtraIncome{
			Owner:       owner,
			Month:       month,
			Description: cleanDescription(tx.Description, defaultIncomeDescription),
			Amount:      tx.Amount,
			Category:    core.DefaultIncomeCategory,
			Date:        tx.Date,
		}
		if err := im.rec.AddExtraIncome(ctx, x); err != nil {
			return skipped, fmt.Errorf("add extra income: %w", err)
		}
	}
	return stored, nil
}

// cleanDescription makes bank text acceptable as a record description:
// symbols outside the allowed set become spaces, runs of spaces collapse and
// the result is cut to the maximum length.
func cleanDescription(s, def string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(".,;:!?¿¡()-_/&%#@+'*$€°", r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	if out == "" {
		return def
	}
	if utf8.RuneCountInString(out) > core.MaxDescriptionLength {
		out = string([]rune(out)[:core.MaxDescriptionLength])
	}
	return out
}
