package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"finanzas/internal/adapters"
	"finanzas/internal/csvio"
	"finanzas/internal/ofx"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <archivo.csv>",
		Short: "Importa un CSV de gastos, ingresos, exportación completa o extracto bancario",
		Long: `Importa un archivo CSV. El formato se detecta por el encabezado:
exportación completa, gastos, ingresos o extracto bancario.

--type solo se usa cuando el encabezado no se reconoce.

Ejemplos:
  finanzas-cli import gastos.csv
  finanzas-cli import planilla.csv --type incomes --owner luis`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}
	cmd.Flags().String("type", "auto", "formato si no se detecta: auto, expenses, incomes")
	return cmd
}

func importOFXCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-ofx <archivo.ofx>",
		Short: "Importa un extracto OFX/QFX",
		Long: `Importa los movimientos de un extracto OFX o QFX. Los débitos se guardan
como gastos y los créditos como ingresos extra.`,
		Args: cobra.ExactArgs(1),
		RunE: runImportOFX,
	}
}

// newProgress returns an import progress callback that draws a bar on stderr
// once the row count is known.
func newProgress(description string) (func(done, total int), func()) {
	var bar *progressbar.ProgressBar
	update := func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription(description),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = bar.Set(done)
	}
	finish := func() {
		if bar != nil {
			_ = bar.Finish()
		}
	}
	return update, finish
}

func printResult(path string, res csvio.Result) {
	fmt.Printf("%s (%s): %d importados, %d omitidos, %d con errores\n",
		filepath.Base(path), res.Format, res.Imported, res.Skipped, res.Errors)
}

func runImport(cmd *cobra.Command, args []string) error {
	typ, _ := cmd.Flags().GetString("type")
	hint, err := csvio.ParseHint(typ)
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	progress, finish := newProgress("Importando")
	im := csvio.NewImporter(adapters.NewLedgerAdapter(s.backend.Service),
		csvio.WithProgress(progress),
		csvio.WithLogger(logger))

	res, err := im.Import(cmd.Context(), s.owner, f, hint)
	finish()
	if err != nil {
		return fmt.Errorf("import %s: %w", args[0], err)
	}
	printResult(args[0], res)
	return nil
}

func runImportOFX(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open ofx: %w", err)
	}
	defer f.Close()

	txs, err := ofx.Parse(cmd.Context(), f)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		logger.Warn("No transactions found in file", "file", filepath.Base(args[0]))
		return nil
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	progress, finish := newProgress("Importando movimientos")
	im := csvio.NewImporter(adapters.NewLedgerAdapter(s.backend.Service),
		csvio.WithProgress(progress),
		csvio.WithLogger(logger))

	res, err := im.ImportTransactions(cmd.Context(), s.owner, txs)
	finish()
	if err != nil {
		return fmt.Errorf("import %s: %w", args[0], err)
	}
	printResult(args[0], res)
	return nil
}
