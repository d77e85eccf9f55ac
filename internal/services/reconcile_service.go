// Package services – ReconcileService
//
// This file implements the reconciliation sweeper: a fixed-interval loop that
// finds transactions stuck in a non-terminal state, re-queries their provider
// for the current status, and applies any change through the same
// version-checked write path the orchestrator uses. Because every mutation
// rides the version fence, the sweep is safe to run concurrently with itself
// and with live initiate/getStatus traffic.
//
// Partial-failure isolation: an error while reconciling one transaction is
// logged and counted, and the sweep moves on to the rest.
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-payment-backend/internal/domain"
	"github.com/tbourn/go-payment-backend/internal/lock"
	"github.com/tbourn/go-payment-backend/internal/provider"
	"github.com/tbourn/go-payment-backend/internal/repo"
	"github.com/tbourn/go-payment-backend/internal/worker"
)

const (
	auditSourceSweeper = "sweeper"

	// sweepRunCounter names the monotonic counter that tags sweep runs in
	// logs, so overlapping runs across instances can be told apart.
	sweepRunCounter = "sweep_run"
)

// SweepStats summarizes one sweep run.
type SweepStats struct {
	Scanned   int
	Updated   int
	Unchanged int
	Failed    int
}

// ReconcileService periodically refreshes non-terminal transactions.
type ReconcileService struct {
	DB        *gorm.DB
	Locks     lock.Coordinator
	Providers *provider.Registry
	Notify    Notifier

	// Interval between sweeps; defaults to one minute.
	Interval time.Duration
	// Workers bounds concurrent provider checks per sweep; defaults to 4.
	Workers int
	// BatchSize caps how many rows one sweep picks up; <= 0 means no cap.
	BatchSize int
}

// NewReconcileService constructs a sweeper with sane defaults.
func NewReconcileService(db *gorm.DB, locks lock.Coordinator, providers *provider.Registry, n Notifier) *ReconcileService {
	return &ReconcileService{
		DB:        db,
		Locks:     locks,
		Providers: providers,
		Notify:    n,
		Interval:  time.Minute,
		Workers:   4,
	}
}

// Run sweeps on the configured interval until ctx is cancelled. It is meant
// to be started once per instance as a background goroutine; overlapping
// instances are harmless because all writes are version-checked.
func (s *ReconcileService) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := s.SweepOnce(ctx)
			if err != nil {
				log.Error().Err(err).Msg("reconciliation sweep aborted")
				continue
			}
			log.Info().
				Int("scanned", stats.Scanned).
				Int("updated", stats.Updated).
				Int("unchanged", stats.Unchanged).
				Int("failed", stats.Failed).
				Msg("reconciliation sweep finished")
		}
	}
}

// SweepOnce performs a single reconciliation pass. Only the initial listing
// can abort the sweep; everything per-transaction is isolated.
func (s *ReconcileService) SweepOnce(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	runID, err := s.Locks.NextKey(ctx, sweepRunCounter)
	if err != nil {
		// The run id is diagnostic only; sweep anyway.
		log.Warn().Err(err).Msg("sweep run counter unavailable")
	}
	lg := log.With().Int64("sweep_run", runID).Logger()

	pending, err := repo.ListNonTerminal(ctx, s.DB, s.BatchSize)
	if err != nil {
		return stats, err
	}
	stats.Scanned = len(pending)
	if len(pending) == 0 {
		return stats, nil
	}

	workers := s.Workers
	if workers < 1 {
		workers = 4
	}
	pool := worker.NewPool(workers)

	var mu sync.Mutex
	for i := range pending {
		t := pending[i]
		submitted := pool.Submit(ctx, func() {
			updated, rerr := s.reconcileOne(ctx, &t)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case rerr != nil:
				stats.Failed++
				sweepErrors.Inc()
				lg.Warn().Err(rerr).
					Str("transaction_id", t.ID).
					Str("idempotency_key", t.IdempotencyKey).
					Msg("reconciliation failed for transaction")
			case updated:
				stats.Updated++
			default:
				stats.Unchanged++
			}
		})
		if !submitted {
			break
		}
	}
	pool.Stop()

	return stats, nil
}

// reconcileOne refreshes a single transaction. It reports whether a status
// transition was applied. Losing a version race counts as unchanged: the
// winner already recorded the newer state.
func (s *ReconcileService) reconcileOne(ctx context.Context, t *domain.Transaction) (bool, error) {
	if t.VendorTransactionID == "" {
		// Nothing to ask the vendor about; initiate never completed its
		// provider call and the orchestrator path owns this row.
		return false, nil
	}
	gw, ok := s.Providers.ResolveVendor(t.PaymentProvider)
	if !ok {
		return false, errors.New("no gateway registered for vendor " + t.PaymentProvider)
	}

	result, err := gw.CheckStatus(ctx, t.VendorTransactionID)
	if err != nil {
		return false, err
	}
	if result.Status == t.Status {
		return false, nil
	}
	if !t.Status.CanTransitionTo(result.Status) {
		// Monotonicity guard: a vendor answer can never reopen a terminal
		// state or move backwards.
		return false, nil
	}

	prev := t.Status
	t.Status = result.Status
	updated, err := repo.UpdateTransactionWithVersionCheck(ctx, s.DB, t, t.Version)
	if err != nil {
		if errors.Is(err, repo.ErrVersionConflict) {
			return false, nil
		}
		return false, err
	}

	sweepTransitions.WithLabelValues(string(updated.Status)).Inc()

	if _, aerr := repo.CreateStatusAudit(ctx, s.DB, updated.ID, prev, updated.Status, auditSourceSweeper); aerr != nil {
		log.Warn().Err(aerr).Str("transaction_id", updated.ID).Msg("audit append failed")
	}

	if s.Notify != nil {
		if ok := s.Notify.Notify(ctx, updated.UserID, updated.IdempotencyKey, prev, updated.Status); ok {
			notificationsSent.Inc()
		} else {
			log.Warn().
				Str("transaction_id", updated.ID).
				Str("user_id", updated.UserID).
				Msg("notification sink refused status change")
		}
	}
	return true, nil
}
