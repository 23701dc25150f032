package worker

import (
	"context"
	"testing"
	"time"

	"finanzas/internal/core"
	"finanzas/internal/sheets"
)

func TestDefaultReconcilerConfig(t *testing.T) {
	config := DefaultReconcilerConfig()

	if config.Interval != 15*time.Minute {
		t.Errorf("expected Interval 15m, got %v", config.Interval)
	}
	if !config.IncludePrevious {
		t.Error("expected IncludePrevious by default")
	}
}

func TestReconciler_IsRunning(t *testing.T) {
	r := NewReconciler(nil, DefaultReconcilerConfig())

	if r.IsRunning() {
		t.Error("reconciler should not be running initially")
	}
}

func TestReconciler_StartWithoutWorker(t *testing.T) {
	r := NewReconciler(nil, DefaultReconcilerConfig())
	if err := r.Start(context.Background()); err == nil {
		t.Error("expected error when starting without a worker")
	}
}

func TestReconciler_StopNotRunning(t *testing.T) {
	r := NewReconciler(nil, DefaultReconcilerConfig())
	if err := r.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}

func TestReconciler_StartTwiceAndStop(t *testing.T) {
	_, w, _ := setup(t)
	config := DefaultReconcilerConfig()
	config.Interval = time.Hour
	r := NewReconciler(w, config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := r.Start(ctx); err == nil {
		t.Error("expected error when starting already running reconciler")
	}
	if !r.IsRunning() {
		t.Error("reconciler should be running")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := r.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if r.IsRunning() {
		t.Error("reconciler should be stopped")
	}
}

func TestReconciler_RunOnce(t *testing.T) {
	svc, w, mirror := setup(t)
	createExpense(t, svc, "Pan")

	feb, err := svc.CreateExpense(context.Background(), core.Expense{
		Owner:       "ana",
		Description: "Luz",
		Amount:      core.Money{Cents: 9000},
		Category:    "Servicios",
		Date:        core.NewDate(2025, 2, 11),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	older, err := svc.CreateExpense(context.Background(), core.Expense{
		Owner:       "ana",
		Description: "Gas",
		Amount:      core.Money{Cents: 9000},
		Category:    "Servicios",
		Date:        core.NewDate(2025, 1, 11),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	r := NewReconciler(w, ReconcilerConfig{Interval: time.Hour, Owners: []string{"ana", "luis"}, IncludePrevious: true})
	r.now = func() time.Time { return testNow }
	r.RunOnce(context.Background())

	if len(mirror.Rows(sheets.TabExpenses)) != 2 {
		t.Fatalf("expected current and previous month mirrored, got %v", mirror.Rows(sheets.TabExpenses))
	}
	if _, ok := mirror.Row(sheets.TabExpenses, feb[0].ID); !ok {
		t.Error("previous month expense missing")
	}
	if _, ok := mirror.Row(sheets.TabExpenses, older[0].ID); ok {
		t.Error("months before the previous one should be left alone")
	}
}

func TestReconciler_RunOnceStopsOnCancel(t *testing.T) {
	svc, w, mirror := setup(t)
	createExpense(t, svc, "Pan")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewReconciler(w, ReconcilerConfig{Interval: time.Hour, Owners: []string{"ana"}})
	r.now = func() time.Time { return testNow }
	r.RunOnce(ctx)

	if n := len(mirror.Rows(sheets.TabExpenses)); n != 0 {
		t.Errorf("expected nothing mirrored after cancel, got %d rows", n)
	}
}
