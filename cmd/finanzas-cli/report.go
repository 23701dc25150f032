package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"finanzas/internal/core"
	"finanzas/internal/services"
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Muestra el resumen de un mes",
		Long: `Muestra ingresos, gastos, disponible, gastos por categoría, alertas de
límites y progreso de metas de un mes.

Ejemplos:
  finanzas-cli report --month 2025-03
  finanzas-cli report --json`,
		Args: cobra.NoArgs,
		RunE: runReport,
	}
	cmd.Flags().String("month", "", "mes YYYY-MM (por defecto el actual)")
	cmd.Flags().Bool("json", false, "salida en JSON")
	return cmd
}

// monthFlag parses --month, defaulting to the current month.
func monthFlag(cmd *cobra.Command) (core.MonthKey, error) {
	raw, _ := cmd.Flags().GetString("month")
	if raw == "" {
		return core.MonthKeyOf(time.Now()), nil
	}
	return core.ParseMonthKey(raw)
}

func runReport(cmd *cobra.Command, _ []string) error {
	month, err := monthFlag(cmd)
	if err != nil {
		return err
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.backend.Service.MonthReport(cmd.Context(), s.owner, month)
	if err != nil {
		return fmt.Errorf("month report: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return printReport(os.Stdout, report)
}

func printReport(out io.Writer, r services.Report) error {
	p := message.NewPrinter(language.Spanish)
	amount := func(m core.Money) string { return p.Sprintf("$ %.2f", m.Units()) }

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Resumen de %s (%s)\n\n", r.Month, r.Owner)
	fmt.Fprintf(w, "Ingresos\t%s\n", amount(r.Balance.TotalIncome))
	fmt.Fprintf(w, "Gastos\t%s\n", amount(r.Balance.TotalExpenses))
	fmt.Fprintf(w, "Disponible\t%s\n", amount(r.Balance.Available))
	fmt.Fprintf(w, "Cuotas\t%d\n", r.Balance.Installments)

	if len(r.Categories) > 0 {
		fmt.Fprintf(w, "\nCategoría\tMonto\n")
		for _, c := range r.Categories {
			fmt.Fprintf(w, "%s\t%s\n", c.Name, amount(c.Amount))
		}
	}
	if len(r.Alerts) > 0 {
		fmt.Fprintf(w, "\nAlertas\n")
		for _, a := range r.Alerts {
			fmt.Fprintf(w, "[%s]\t%s\n", a.Level, a.Message)
		}
	}
	if len(r.Goals) > 0 {
		fmt.Fprintf(w, "\nMeta\tAhorrado\tObjetivo\tProgreso\n")
		for _, g := range r.Goals {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", g.Name, amount(g.Current), amount(g.Target), p.Sprintf("%.1f%%", g.Progress))
		}
	}
	return w.Flush()
}
