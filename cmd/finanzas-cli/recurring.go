package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"finanzas/internal/services"
)

func recurringCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recurring",
		Short: "Copia los gastos recurrentes del mes anterior",
		Long: `Copia al mes indicado los gastos recurrentes del mes anterior que todavía
no existan. Una copia solo se crea cuando llegó su día del mes.`,
		Args: cobra.NoArgs,
		RunE: runRecurring,
	}
	cmd.Flags().String("month", "", "mes YYYY-MM (por defecto el actual)")
	return cmd
}

func runRecurring(cmd *cobra.Command, _ []string) error {
	month, err := monthFlag(cmd)
	if err != nil {
		return err
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := services.NewRecurringProcessor(s.backend.Service).Process(cmd.Context(), s.owner, month)
	if err != nil {
		return fmt.Errorf("process recurring: %w", err)
	}
	fmt.Printf("%s: %d creados, %d ya existían, %d pendientes, %d con errores\n",
		month, res.Created, res.Skipped, res.Pending, res.Failed)
	return nil
}
