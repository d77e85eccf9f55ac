// Package provider – sandbox gateway.
//
// Sandbox is the vendor stand-in used in every non-production deployment.
// It is deterministic enough to test against (statuses can be scripted per
// reference) while still exercising the full gateway contract, including
// latency and induced failures.
package provider

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-payment-backend/internal/domain"
)

// Sandbox simulates a payment vendor. Process records every submission in
// memory keyed by the vendor reference it hands out; CheckStatus serves the
// recorded (possibly later re-scripted) status back.
type Sandbox struct {
	// VendorName is reported by Name; defaults to "SANDBOX".
	VendorName string

	// InitialStatus is what Process reports for new submissions;
	// defaults to PENDING.
	InitialStatus domain.TransactionStatus

	// Latency, when set, is slept inside Process to mimic a slow vendor.
	Latency time.Duration

	// FailNext, when true, makes the next Process call return ErrUnavailable
	// (and resets the flag). Used to exercise failure paths.
	FailNext bool

	mu       sync.Mutex
	statuses map[string]domain.TransactionStatus
	calls    int
}

// NewSandbox returns a sandbox gateway reporting PENDING for new payments.
func NewSandbox() *Sandbox {
	return &Sandbox{
		VendorName:    "SANDBOX",
		InitialStatus: domain.StatusPending,
		statuses:      make(map[string]domain.TransactionStatus),
	}
}

// Name implements Gateway.
func (s *Sandbox) Name() string {
	if s.VendorName == "" {
		return "SANDBOX"
	}
	return s.VendorName
}

// Process implements Gateway. Each call mints a fresh vendor reference; the
// orchestrator's locking and unique index are what keep it to one call per
// idempotency key.
func (s *Sandbox) Process(ctx context.Context, req Request, idempotencyKey string) (Result, error) {
	if s.Latency > 0 {
		select {
		case <-time.After(s.Latency):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.FailNext {
		s.FailNext = false
		return Result{}, ErrUnavailable
	}

	status := s.InitialStatus
	if status == "" {
		status = domain.StatusPending
	}
	ref := "sbx_" + uuid.NewString()
	s.statuses[ref] = status

	log.Debug().
		Str("vendor", s.Name()).
		Str("vendor_transaction_id", ref).
		Str("idempotency_key", idempotencyKey).
		Int64("amount_cents", req.AmountCents).
		Str("currency", req.Currency).
		Msg("sandbox payment submitted")

	return Result{Status: status, VendorTransactionID: ref}, nil
}

// CheckStatus implements Gateway.
func (s *Sandbox) CheckStatus(ctx context.Context, vendorTransactionID string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[vendorTransactionID]
	if !ok {
		return Result{}, ErrUnknownReference
	}
	return Result{Status: st, VendorTransactionID: vendorTransactionID}, nil
}

// SetStatus re-scripts the status a reference will report from now on,
// simulating vendor-side settlement between sweeps.
func (s *Sandbox) SetStatus(vendorTransactionID string, status domain.TransactionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[vendorTransactionID] = status
}

// ProcessCalls returns how many times Process has been invoked.
func (s *Sandbox) ProcessCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
