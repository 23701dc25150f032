package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"finanzas/internal/adapters"
	"finanzas/internal/csvio"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Exporta los registros a CSV",
		Long: `Exporta los registros del dueño a CSV. Sin --out el archivo se escribe
en la salida estándar; los logs van a stderr.

Ejemplos:
  finanzas-cli export --kind complete --out respaldo.csv
  finanzas-cli export --kind expenses > gastos.csv`,
		Args: cobra.NoArgs,
		RunE: runExport,
	}
	cmd.Flags().String("kind", string(csvio.KindComplete), "contenido: complete, expenses, incomes")
	cmd.Flags().String("out", "", "archivo de salida (por defecto stdout)")
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	rawKind, _ := cmd.Flags().GetString("kind")
	kind, err := csvio.ParseKind(rawKind)
	if err != nil {
		return err
	}
	outPath, _ := cmd.Flags().GetString("out")

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	var out io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.OpenFile(outPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("create export file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := csvio.NewExporter(adapters.NewLedgerAdapter(s.backend.Service)).Export(cmd.Context(), out, s.owner, kind); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if outPath != "" {
		logger.Info("Export written", "file", outPath, "kind", string(kind), "owner", s.owner)
	}
	return nil
}
