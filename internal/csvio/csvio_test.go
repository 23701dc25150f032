package csvio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finanzas/internal/core"
)

var testNow = time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC)

// recorder stores what the importer hands it and validates expenses the way
// the service does.
type recorder struct {
	expenses []core.Expense
	fixed    []core.FixedIncome
	extras   []core.ExtraIncome
	failOn   string
}

func (r *recorder) AddExpense(_ context.Context, e core.Expense) error {
	if r.failOn != "" && e.Description == r.failOn {
		return errors.New("store unavailable")
	}
	if err := e.Validate(testNow); err != nil {
		return err
	}
	r.expenses = append(r.expenses, e)
	return nil
}

func (r *recorder) SetFixedIncome(_ context.Context, f core.FixedIncome) error {
	if err := f.Validate(); err != nil {
		return err
	}
	r.fixed = append(r.fixed, f)
	return nil
}

func (r *recorder) AddExtraIncome(_ context.Context, x core.ExtraIncome) error {
	if err := x.Validate(); err != nil {
		return err
	}
	r.extras = append(r.extras, x)
	return nil
}

func newTestImporter(rec Recorder, opts ...Option) *Importer {
	base := []Option{
		WithClock(func() time.Time { return testNow }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return NewImporter(rec, append(base, opts...)...)
}

func TestDetectFormatOwnHeaders(t *testing.T) {
	cases := map[string]Format{
		HeaderComplete: FormatComplete,
		HeaderExpenses: FormatExpenses,
		HeaderIncomes:  FormatIncomes,
	}
	for header, want := range cases {
		assert.Equal(t, want, DetectFormat(splitRow(header)), header)
	}
}

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		header string
		want   Format
	}{
		{"Fecha,Concepto,Débito,Crédito,Saldo", FormatBank},
		{"Date,Description,Debit,Credit", FormatBank},
		{"fecha,movimiento,importe", FormatBank},
		{"Descripción,Monto,Categoría", FormatExpenses},
		{"expense,amount", FormatExpenses},
		{"concepto,importe", FormatExpenses},
		{"Sueldo,Mes", FormatIncomes},
		{"tipo,monto", FormatIncomes},
		{"a,b,c", FormatUnknown},
		{"", FormatUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectFormat(splitRow(tc.header)), tc.header)
	}
}

func TestSplitRow(t *testing.T) {
	assert.Equal(t, []string{"Rent, Utilities", "150.00"}, splitRow(`"Rent, Utilities",150.00`))
	assert.Equal(t, []string{"a", "", "c"}, splitRow(`a,,c`))
	assert.Equal(t, []string{"x", "y z"}, splitRow(` "x" , y z `))
	assert.Equal(t, []string{`He said "hi"`}, splitRow(`"He said ""hi"""`))
	assert.Equal(t, []string{`""`, "x"}, splitRow(`"""""",x`))
	assert.Equal(t, []string{"", "x"}, splitRow(`"",x`))
}

func TestImportNoDataRows(t *testing.T) {
	im := newTestImporter(&recorder{})
	for _, in := range []string{"", "\n\n", HeaderExpenses, HeaderExpenses + "\n   \n"} {
		_, err := im.Import(context.Background(), "ana", strings.NewReader(in), HintAuto)
		assert.ErrorIs(t, err, ErrNoDataRows, "%q", in)
	}
}

func TestImportCountsRowErrors(t *testing.T) {
	var b strings.Builder
	b.WriteString("descripcion,monto,categoria,fecha\n")
	for i := 0; i < 10; i++ {
		amount := fmt.Sprintf("%d.50", 10+i)
		if i%3 == 1 { // rows 1, 4, 7
			amount = "no-es-un-numero"
		}
		fmt.Fprintf(&b, "Compra %d,%s,Compras,2025-03-%02d\n", i, amount, i+1)
	}
	rec := &recorder{}

	res, err := newTestImporter(rec).Import(context.Background(), "ana", strings.NewReader(b.String()), HintAuto)

	require.NoError(t, err)
	assert.Equal(t, Result{Format: FormatExpenses, Imported: 7, Errors: 3}, res)
	assert.Len(t, rec.expenses, 7)
}

func TestImportStoreFailureIsRowError(t *testing.T) {
	rec := &recorder{failOn: "Luz"}
	in := "descripcion,monto\nLuz,10\nAgua,20\n"

	res, err := newTestImporter(rec).Import(context.Background(), "ana", strings.NewReader(in), HintAuto)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.Errors)
}

func TestExpensesRoundTrip(t *testing.T) {
	march := core.MonthKey{Year: 2025, Month: time.March}
	original := []core.Expense{
		{Description: "Rent, Utilities", Amount: core.Money{Cents: 150000}, Category: "Servicios", Date: core.NewDate(2025, 3, 1), Month: march, Installment: 1, TotalInstallments: 1, OriginalAmount: core.Money{Cents: 150000}},
		{Description: "Café", Amount: core.Money{Cents: 350}, Category: "Alimentación", Date: core.NewDate(2025, 3, 2), Month: march, Installment: 1, TotalInstallments: 1, OriginalAmount: core.Money{Cents: 350}},
		{Description: "Notebook 2/6", Amount: core.Money{Cents: 33333}, Category: `Compras "online"`, Date: core.NewDate(2025, 2, 14), Month: core.MonthKey{Year: 2025, Month: time.February}, Installment: 2, TotalInstallments: 6, OriginalAmount: core.Money{Cents: 200000}},
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, KindExpenses, Data{Expenses: original}))

	rec := &recorder{}
	res, err := newTestImporter(rec).Import(context.Background(), "ana", &buf, HintExpenses)
	require.NoError(t, err)
	require.Equal(t, 3, res.Imported)

	type tuple struct {
		desc, amount, category, date string
	}
	var want, got []tuple
	for _, e := range sortedExpenses(original) {
		want = append(want, tuple{e.Description, core.FormatAmount(e.Amount), e.Category, e.Date.ISO()})
	}
	for _, e := range rec.expenses {
		got = append(got, tuple{e.Description, core.FormatAmount(e.Amount), e.Category, e.Date.ISO()})
	}
	assert.Equal(t, want, got)
	assert.Equal(t, 2, rec.expenses[0].Installment)
	assert.Equal(t, 6, rec.expenses[0].TotalInstallments)
	assert.Equal(t, int64(200000), rec.expenses[0].OriginalAmount.Cents)
}

func TestEncodeComplete(t *testing.T) {
	march := core.MonthKey{Year: 2025, Month: time.March}
	data := Data{
		Expenses: []core.Expense{{
			Description: `Pago "A"`, Amount: core.Money{Cents: 40000}, Category: "Servicios",
			Date: core.NewDate(2025, 3, 5), Month: march, Installment: 1, TotalInstallments: 3,
			OriginalAmount: core.Money{Cents: 120000}, Recurring: true,
		}},
		FixedIncomes: []core.FixedIncome{{Month: march, Amount: core.Money{Cents: 250000}}},
		ExtraIncomes: []core.ExtraIncome{{Description: "Bono", Amount: core.Money{Cents: 1005}, Category: "other", Date: core.NewDate(2025, 3, 9), Month: march}},
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, KindComplete, data))

	want := strings.Join([]string{
		`"tipo","descripcion","monto","categoria","fecha","mes","cuota_actual","total_cuotas","monto_original","es_recurrente"`,
		`"gasto","Pago ""A""","400.00","Servicios","2025-03-05","2025-03","1","3","1200.00","si"`,
		`"ingreso_fijo","Ingreso fijo","2500.00","","2025-03-01","2025-03","","","","no"`,
		`"ingreso_extra","Bono","10.05","other","2025-03-09","2025-03","","","","no"`,
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestEncodeIncomes(t *testing.T) {
	march := core.MonthKey{Year: 2025, Month: time.March}
	data := Data{
		FixedIncomes: []core.FixedIncome{{Month: march, Amount: core.Money{Cents: 100}, Extras: []core.ExtraIncome{{ID: "x1", Description: "Venta", Amount: core.Money{Cents: 200}}}}},
		ExtraIncomes: []core.ExtraIncome{{ID: "x1", Description: "Venta", Amount: core.Money{Cents: 200}, Month: march, Date: core.NewDate(2025, 3, 3)}},
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, KindIncomes, data))

	lines := strings.Split(buf.String(), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `"tipo","monto","descripcion","mes","fecha"`, lines[0])
	assert.Equal(t, `"fijo","1.00","Ingreso fijo","2025-03","2025-03-01"`, lines[1])
	assert.Equal(t, `"extra","2.00","Venta","2025-03","2025-03-03"`, lines[2])
}

func TestImportComplete(t *testing.T) {
	in := strings.Join([]string{
		HeaderComplete,
		`"gasto","Cuota TV","100.00","Compras","2025-01-10","2025-01","1","12","1200.00","si"`,
		`"Ingreso Fijo","Ingreso fijo","3000","","2025-03-01","2025-03","","","","no"`,
		`"ingreso-extra","Venta bici","150,50","other","2025-03-02","2025-03","","","","no"`,
		`"gastos","Typo","10","Otros","2025-03-02","2025-03","1","1","10","no"`,
		`"ingreso","Ambiguo","10","Otros","2025-03-02","2025-03","","","","no"`,
	}, "\n")
	rec := &recorder{}

	res, err := newTestImporter(rec).Import(context.Background(), "ana", strings.NewReader(in), HintAuto)

	require.NoError(t, err)
	assert.Equal(t, Result{Format: FormatComplete, Imported: 3, Errors: 2}, res)
	require.Len(t, rec.expenses, 1)
	assert.True(t, rec.expenses[0].Recurring)
	assert.Equal(t, 12, rec.expenses[0].TotalInstallments)
	assert.Equal(t, "2025-01", rec.expenses[0].Month.String())
	require.Len(t, rec.fixed, 1)
	assert.Equal(t, int64(300000), rec.fixed[0].Amount.Cents)
	assert.Equal(t, "2025-03", rec.fixed[0].Month.String())
	require.Len(t, rec.extras, 1)
	assert.Equal(t, int64(15050), rec.extras[0].Amount.Cents)
}

func TestImportIncomesLayout(t *testing.T) {
	in := "tipo,monto,descripcion,mes,fecha\nfijo,2500.00,Ingreso fijo,2025-02,2025-02-01\nextra,-80,Reintegro,,2025-03-04\n"
	rec := &recorder{}

	res, err := newTestImporter(rec).Import(context.Background(), "ana", strings.NewReader(in), HintAuto)

	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	require.Len(t, rec.fixed, 1)
	assert.Equal(t, "2025-02", rec.fixed[0].Month.String())
	require.Len(t, rec.extras, 1)
	assert.Equal(t, int64(8000), rec.extras[0].Amount.Cents)
	assert.Equal(t, "2025-03", rec.extras[0].Month.String())
	assert.Equal(t, core.DefaultIncomeCategory, rec.extras[0].Category)
}

func TestImportBankStatement(t *testing.T) {
	in := strings.Join([]string{
		"Fecha,Concepto,Débito,Crédito,Saldo",
		"05/03/2025,COMPRA SUPERMERCADO DIA,\"1.234,50\",,10000",
		"06/03/2025,UBER *TRIP,850,,9150",
		"07/03/2025,TRANSFERENCIA RECIBIDA,,50000,59150",
		"08/03/2025,AJUSTE,,,59150",
		"09/03/2025,Comisión <mantenimiento>,120,,59030",
		"10/03/2025,PAGO XYZ,abc,,59030",
	}, "\n")
	rec := &recorder{}

	res, err := newTestImporter(rec).Import(context.Background(), "ana", strings.NewReader(in), HintAuto)

	require.NoError(t, err)
	assert.Equal(t, Result{Format: FormatBank, Imported: 4, Errors: 1, Skipped: 1}, res)
	require.Len(t, rec.expenses, 3)
	assert.Equal(t, "Alimentación", rec.expenses[0].Category)
	assert.Equal(t, int64(123450), rec.expenses[0].Amount.Cents)
	assert.Equal(t, "2025-03-05", rec.expenses[0].Date.ISO())
	assert.Equal(t, "Transporte", rec.expenses[1].Category)
	assert.Equal(t, core.DefaultCategory, rec.expenses[2].Category)
	assert.Equal(t, "Comisión mantenimiento", rec.expenses[2].Description)
	require.Len(t, rec.extras, 1)
	assert.Equal(t, int64(5000000), rec.extras[0].Amount.Cents)
	assert.Equal(t, "other", rec.extras[0].Category)
}

func TestImportBankSignedAmount(t *testing.T) {
	in := "fecha,descripcion,importe,saldo\n2025-03-01,Netflix,-4.99,0\n2025-03-02,Sueldo,1500,0\n2025-03-03,Nada,0,0\n"
	rec := &recorder{}

	res, err := newTestImporter(rec).Import(context.Background(), "ana", strings.NewReader(in), HintAuto)

	require.NoError(t, err)
	assert.Equal(t, Result{Format: FormatBank, Imported: 2, Skipped: 1}, res)
	require.Len(t, rec.expenses, 1)
	assert.Equal(t, "Entretenimiento", rec.expenses[0].Category)
	require.Len(t, rec.extras, 1)
}

func TestImportUnknownLayout(t *testing.T) {
	in := "a,b,c\nsueldo marzo,1000,x\ngasto luz,-50,x\nkiosco,20,x\n"

	t.Run("auto detects per row", func(t *testing.T) {
		rec := &recorder{}
		res, err := newTestImporter(rec).Import(context.Background(), "ana", strings.NewReader(in), HintAuto)
		require.NoError(t, err)
		assert.Equal(t, FormatUnknown, res.Format)
		assert.Equal(t, 3, res.Imported)
		assert.Len(t, rec.extras, 1)
		assert.Len(t, rec.expenses, 2)
		assert.Equal(t, int64(5000), rec.expenses[0].Amount.Cents)
	})

	t.Run("incomes hint", func(t *testing.T) {
		rec := &recorder{}
		res, err := newTestImporter(rec).Import(context.Background(), "ana", strings.NewReader(in), HintIncomes)
		require.NoError(t, err)
		assert.Equal(t, 3, res.Imported)
		assert.Len(t, rec.extras, 3)
		assert.Empty(t, rec.expenses)
	})
}

func TestImportHintIgnoredWhenDetected(t *testing.T) {
	rec := &recorder{}
	in := "descripcion,monto\nPan,2\n"

	res, err := newTestImporter(rec).Import(context.Background(), "ana", strings.NewReader(in), HintIncomes)

	require.NoError(t, err)
	assert.Equal(t, FormatExpenses, res.Format)
	assert.Len(t, rec.expenses, 1)
}

func TestImportStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in := "descripcion,monto\nA,1\nB,2\nC,3\n"
	rec := &recorder{}
	progress := 0
	im := newTestImporter(rec, WithProgress(func(done, total int) {
		progress = done
		assert.Equal(t, 3, total)
		if done == 1 {
			cancel()
		}
	}))

	res, err := im.Import(ctx, "ana", strings.NewReader(in), HintAuto)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, progress)
}

func TestCategorizeTransaction(t *testing.T) {
	cases := map[string]string{
		"Farmacia del Pueblo":      "Salud",
		"METROGAS FACTURA":         "Servicios",
		"MercadoLibre compra":      "Compras",
		"Spotify premium":          "Entretenimiento",
		"Universidad de la Ciudad": "Educación",
		"Transferencia a Juan":     core.DefaultCategory,
		"Farmacia Agua Viva":       "Salud",
		"Pago agua y luz":          "Servicios",
		"Carga SUBE":               "Transporte",
		"Cuota Obra Social":        "Salud",
		"Cafetería del centro":     "Alimentación",
	}
	for desc, want := range cases {
		assert.Equal(t, want, CategorizeTransaction(desc), desc)
	}
}

func TestImportTransactions(t *testing.T) {
	rec := &recorder{}
	txs := []core.BankTransaction{
		{Date: core.NewDate(2025, 3, 1), Description: "Farmacia", Amount: core.Money{Cents: -1500}},
		{Date: core.NewDate(2025, 3, 2), Description: "Interés", Amount: core.Money{Cents: 30}},
		{Description: "Sin fecha", Amount: core.Money{Cents: 0}},
	}

	res, err := newTestImporter(rec).ImportTransactions(context.Background(), "ana", txs)

	require.NoError(t, err)
	assert.Equal(t, Result{Format: FormatBank, Imported: 2, Skipped: 1}, res)
	assert.Equal(t, "Salud", rec.expenses[0].Category)
}

func TestParseHintAndKind(t *testing.T) {
	h, err := ParseHint("")
	require.NoError(t, err)
	assert.Equal(t, HintAuto, h)
	_, err = ParseHint("bank")
	assert.Error(t, err)

	k, err := ParseKind("Expenses")
	require.NoError(t, err)
	assert.Equal(t, KindExpenses, k)
	_, err = ParseKind("pdf")
	assert.Error(t, err)
}
