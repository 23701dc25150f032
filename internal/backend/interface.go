package backend

import (
	"context"

	"finanzas/internal/services"
	"finanzas/internal/sheets"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the ledger service and optional cleanup function
type BackendResult struct {
	Service *services.LedgerService
	Store   services.Store
	Cleanup CleanupFunc
}

// Factory creates ledger backends and mirrors based on configuration
type Factory interface {
	// CreateBackend opens the store selected by config and wraps it in a
	// ledger service, publishing to AMQP when a URL is configured.
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)

	// CreateMirror opens the spreadsheet mirror.
	CreateMirror(ctx context.Context, config Config) (sheets.Mirror, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Optional change publishing
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Memory backend specific
	DataDirectory string
	DefaultOwner  string

	// Mirror
	Sheets SheetsConfig
}

// SheetsConfig mirrors the Google Sheets settings. An empty SpreadsheetID
// selects the in-process mirror.
type SheetsConfig struct {
	SpreadsheetID      string
	ExpensesSheet      string
	IncomesSheet       string
	ServiceAccountJSON string
	ServiceAccountFile string
	OAuthClientFile    string
	OAuthTokenFile     string
	OAuthClientJSON    string
	OAuthTokenJSON     string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
