package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"finanzas/internal/core"
)

// ReconcilerConfig holds configuration for the mirror reconciler
type ReconcilerConfig struct {
	// Interval is how often the current month is re-mirrored (default: 15m)
	Interval time.Duration

	// Owners whose months are re-mirrored
	Owners []string

	// IncludePrevious also re-mirrors the previous month, which still
	// receives late edits early in a month (default: true)
	IncludePrevious bool
}

// DefaultReconcilerConfig returns sensible defaults
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Interval:        15 * time.Minute,
		IncludePrevious: true,
	}
}

// Reconciler periodically rewrites the mirror from the store. Publishing is
// best effort, so messages lost while the broker was down are repaired here.
type Reconciler struct {
	worker *SyncWorker
	config ReconcilerConfig
	now    func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReconciler(worker *SyncWorker, config ReconcilerConfig) *Reconciler {
	return &Reconciler{
		worker: worker,
		config: config,
		now:    time.Now,
	}
}

// Start begins the reconcile loop. Returns an error if already running.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("reconciler is already running")
	}
	if r.worker == nil {
		return fmt.Errorf("reconciler not properly initialized")
	}
	if r.config.Interval <= 0 {
		return fmt.Errorf("invalid reconcile interval %v", r.config.Interval)
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go r.runLoop(ctx, r.stopCh, r.doneCh)

	slog.InfoContext(ctx, "Mirror reconciler started",
		"interval", r.config.Interval,
		"owners", len(r.config.Owners))
	return nil
}

// Stop signals the loop and waits for the pass in progress to finish.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Mirror reconciler stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Mirror reconciler stop timed out")
		return ctx.Err()
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	return nil
}

func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Reconciler) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	// Reconcile immediately on startup
	r.RunOnce(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce re-mirrors the current (and optionally previous) month of every
// configured owner.
func (r *Reconciler) RunOnce(ctx context.Context) {
	current := core.MonthKeyOf(r.now())
	months := []core.MonthKey{current}
	if r.config.IncludePrevious {
		months = append(months, current.Prev())
	}

	for _, owner := range r.config.Owners {
		for _, month := range months {
			if ctx.Err() != nil {
				return
			}
			if _, err := r.worker.MirrorMonth(ctx, owner, month); err != nil {
				slog.ErrorContext(ctx, "Failed to reconcile month",
					"owner", owner,
					"month", month.String(),
					"error", err)
			}
		}
	}
}
