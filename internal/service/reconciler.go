package service

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"sync"
	"time"

	"github.com/limbo/supertimer/internal/repository"
)

// Habits touched within this window are left alone by a sweep: their counter
// adjustment may still be in flight.
const DefaultSettleWindow = time.Minute

// Reconciler periodically re-derives habit counters from the completion ledger.
type Reconciler struct {
	habitsRepo repository.HabitsRepositoryI
	interval   time.Duration
	settle     time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewReconciler(habitsRepo repository.HabitsRepositoryI, interval time.Duration, logger *slog.Logger) *Reconciler {
	if habitsRepo == nil {
		log.Fatal("on reconciler provided nil habitsRepo")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		habitsRepo: habitsRepo,
		interval:   interval,
		settle:     DefaultSettleWindow,
		logger:     logger,
		now:        time.Now,
	}
}

// RunOnce performs a single sweep and returns the number of fixed habits.
func (r *Reconciler) RunOnce(ctx context.Context) (int64, error) {
	fixed, err := r.habitsRepo.ReconcileCounters(ctx, r.now().Add(-r.settle))
	if err != nil {
		return 0, errors.New("repository error: " + err.Error())
	}
	if fixed > 0 {
		r.logger.Warn("habit counters drifted from ledger and were reset", slog.Int64("habits", fixed))
	}
	return fixed, nil
}

// Start launches periodic sweeps in background. Non-positive interval disables them.
func (r *Reconciler) Start(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info("counter reconciliation disabled")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)
}

func (r *Reconciler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, r.interval)
			if _, err := r.RunOnce(sweepCtx); err != nil {
				r.logger.Error("counter reconciliation failed", slog.String("error", err.Error()))
			}
			cancel()
		}
	}
}

// Stop cancels background sweeps and waits for the running one to finish.
func (r *Reconciler) Stop() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
