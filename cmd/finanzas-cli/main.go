package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"finanzas/internal/backend"
	"finanzas/internal/cli"
	"finanzas/internal/config"
	applog "finanzas/internal/log"
)

var (
	logger  *slog.Logger
	rootCmd = &cobra.Command{
		Use:   "finanzas-cli",
		Short: "Herramientas de línea de comandos para el libro de finanzas",
		Long: `finanzas-cli importa y exporta archivos CSV, lee extractos OFX,
muestra el resumen de un mes y copia los gastos recurrentes.

Los valores por defecto salen del entorno (.env incluido); los flags
--db, --owner y --log-level también se leen de FINANZAS_DB,
FINANZAS_OWNER y FINANZAS_LOG_LEVEL.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().String("db", "", "ruta de la base SQLite (por defecto SQLITE_DB_PATH)")
	rootCmd.PersistentFlags().String("owner", "", "dueño de los registros (por defecto DEFAULT_OWNER)")
	rootCmd.PersistentFlags().String("log-level", "", "nivel de log (debug, info, warn, error)")

	_ = viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("owner", rootCmd.PersistentFlags().Lookup("owner"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(importOFXCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(recurringCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	cli.LoadEnvFile()

	viper.SetEnvPrefix("FINANZAS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	level := viper.GetString("log-level")
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	logger = cli.SetupLogger(applog.ComponentCLI, level)
	return nil
}

// session is what a command needs to work on one owner's ledger.
type session struct {
	cfg     *config.Config
	owner   string
	backend *backend.BackendResult
}

func (s *session) Close() {
	if err := s.backend.Cleanup(); err != nil {
		logger.Warn("Backend cleanup error", "error", err)
	}
}

// openSession loads the environment configuration, applies the --db and
// --owner overrides and opens the store.
func openSession(ctx context.Context) (*session, error) {
	cfg := config.Load()
	if db := viper.GetString("db"); db != "" {
		cfg.DataBackend = "sqlite"
		cfg.SQLiteDBPath = db
	}
	if owner := strings.TrimSpace(viper.GetString("owner")); owner != "" {
		cfg.DefaultOwner = owner
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.With("component", applog.ComponentBackend)).CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}
	return &session{cfg: cfg, owner: cfg.DefaultOwner, backend: res}, nil
}
