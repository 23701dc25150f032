package log

import (
	"context"
	"log/slog"
	"net/http"

	"finanzas/internal/core"
)

type contextKey struct{}

// WithLogger returns a context carrying logger.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext extracts a logger from the context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// Middleware stores a request scoped logger in the request context. The
// request ID comes from extractRequestID, normally the trace middleware.
func Middleware(logger *Logger, extractRequestID func(context.Context) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := logger.WithComponent(ComponentHTTP)
			if extractRequestID != nil {
				if id := extractRequestID(r.Context()); id != "" {
					l = l.With(FieldRequestID, id)
				}
			}
			next.ServeHTTP(w, r.WithContext(WithLogger(r.Context(), l)))
		})
	}
}

// StructuredLogger provides domain level log lines with context awareness
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

// LogMutation logs a successful write to the ledger
func (sl *StructuredLogger) LogMutation(ctx context.Context, op, owner, kind, id string) {
	fields := NewFields().
		WithOperation(op).
		WithOwner(owner).
		WithRecord(kind, id)

	sl.logger.InfoContext(ctx, "Ledger record changed", fields.ToSlice()...)
}

// LogImport logs the outcome of a CSV or OFX import
func (sl *StructuredLogger) LogImport(ctx context.Context, owner, kind string, imported, duplicates, rowErrors int) {
	fields := NewFields().
		WithOperation(OpImport).
		WithOwner(owner).
		WithImport(imported, duplicates, rowErrors)
	fields[FieldKind] = kind

	level := slog.LevelInfo
	if rowErrors > 0 {
		level = slog.LevelWarn
	}
	sl.logger.Log(ctx, level, "Import finished", fields.ToSlice()...)
}

// LogReport logs a month report computation
func (sl *StructuredLogger) LogReport(ctx context.Context, owner string, month core.MonthKey, cached bool) {
	fields := NewFields().
		WithOperation(OpReport).
		WithOwner(owner).
		WithMonth(month)
	fields["cached"] = cached

	sl.logger.DebugContext(ctx, "Month report served", fields.ToSlice()...)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	allFields := fields.
		WithError(err).
		WithOperation(operation)

	sl.logger.ErrorContext(ctx, msg, allFields.ToSlice()...)
}
