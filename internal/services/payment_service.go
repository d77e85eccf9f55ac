// Package services – PaymentService
//
// This file implements the transaction-initiation orchestrator. Given a
// caller-supplied idempotency key and a payment request it guarantees that
// exactly one transaction row is created and returned for that key, even
// under concurrent duplicate submissions across service instances, by
// layering three mechanisms:
//
//  1. the idempotency-key lock (advisory, TTL-bounded) to avoid wasted
//     duplicate provider calls,
//  2. the unique index on the idempotency key, which decides insert races,
//  3. the version fence on updates, which decides refresh races.
//
// The row is the single source of truth; the lock only narrows the window.
// Lock contention is surfaced fail-fast as ErrContended so the caller can
// retry with backoff rather than block on another request's outcome.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// the idempotency key and user id.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/currency"

	"github.com/tbourn/go-payment-backend/internal/domain"
	"github.com/tbourn/go-payment-backend/internal/lock"
	"github.com/tbourn/go-payment-backend/internal/provider"
	"github.com/tbourn/go-payment-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	auditSourceOrchestrator = "orchestrator"

	// defaultLockTTL bounds how long a crashed holder can keep a key "in
	// flight". It must exceed the expected provider latency with margin.
	defaultLockTTL = 30 * time.Second
)

// InitiateRequest carries the client-asserted facts of one payment attempt.
type InitiateRequest struct {
	AmountCents int64
	Currency    string
	PaymentMode string
	PaymentType string
	Metadata    map[string]string
}

// PaymentService coordinates the lock coordinator, the transaction store and
// the provider registry to implement initiate and status lookup.
type PaymentService struct {
	DB        *gorm.DB
	Locks     lock.Coordinator
	Providers *provider.Registry

	// LockTTL overrides the default idempotency-key lock lifetime.
	LockTTL time.Duration
}

// NewPaymentService constructs a PaymentService with the default lock TTL.
func NewPaymentService(db *gorm.DB, locks lock.Coordinator, providers *provider.Registry) *PaymentService {
	return &PaymentService{DB: db, Locks: locks, Providers: providers, LockTTL: defaultLockTTL}
}

func (s *PaymentService) lockTTL() time.Duration {
	if s.LockTTL > 0 {
		return s.LockTTL
	}
	return defaultLockTTL
}

// Initiate creates (or returns the already-created) transaction for the
// given idempotency key.
//
// Flow: fast-path read → lock → double-checked read → single provider call →
// insert (falling back to re-read on a duplicate) → release. The provider is
// never invoked twice for the same key: either the reads short-circuit, or
// the lock excludes concurrent callers, or — after a lock TTL expiry — the
// unique index rejects the second insert and the loser adopts the winner's
// row.
func (s *PaymentService) Initiate(ctx context.Context, userID, idempotencyKey string, req InitiateRequest) (*domain.Transaction, error) {
	tr := otel.Tracer("services/PaymentService")
	ctx, span := tr.Start(ctx, "Initiate",
		trace.WithAttributes(
			attribute.String("payment.idempotency_key", idempotencyKey),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	if strings.TrimSpace(idempotencyKey) == "" {
		return nil, ErrMissingIdempotencyKey
	}
	if req.AmountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, err := currency.ParseISO(req.Currency); err != nil {
		return nil, ErrInvalidCurrency
	}
	gw, ok := s.Providers.Resolve(req.PaymentMode, req.PaymentType)
	if !ok {
		return nil, ErrUnsupportedMode
	}

	// 1) Idempotent fast path: an existing row answers without lock or
	// provider involvement.
	if existing, err := repo.GetTransactionByKey(ctx, s.DB, idempotencyKey); err == nil {
		idempotentReplays.Inc()
		return existing, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	// 2) Exclude concurrent initiators. Coordinator errors mean we cannot
	// prove exclusivity, which is the same as not having it.
	acquired, err := s.Locks.Acquire(ctx, idempotencyKey, s.lockTTL())
	if err != nil {
		log.Warn().Err(err).Str("idempotency_key", idempotencyKey).Msg("lock coordinator unavailable")
	}
	if !acquired {
		lockContention.Inc()
		return nil, ErrContended
	}
	defer func() {
		if rerr := s.Locks.Release(context.WithoutCancel(ctx), idempotencyKey); rerr != nil {
			log.Warn().Err(rerr).Str("idempotency_key", idempotencyKey).Msg("lock release failed; TTL will reclaim")
		}
	}()

	// 3) Double-checked read inside the critical section: a concurrent
	// writer may have finished between steps 1 and 2.
	if existing, err := repo.GetTransactionByKey(ctx, s.DB, idempotencyKey); err == nil {
		idempotentReplays.Inc()
		return existing, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	// 4) Single logical provider call for this key.
	result, perr := gw.Process(ctx, provider.Request{
		UserID:      userID,
		AmountCents: req.AmountCents,
		Currency:    strings.ToUpper(req.Currency),
		PaymentMode: req.PaymentMode,
		PaymentType: req.PaymentType,
		Metadata:    req.Metadata,
	}, idempotencyKey)
	if perr != nil {
		providerFailures.Inc()
		return s.recordProviderFailure(ctx, userID, idempotencyKey, gw.Name(), req, perr)
	}

	// 5) Persist the outcome; a duplicate here means a racer slipped past an
	// expired lock, so their row is the answer.
	return s.insertOrAdopt(ctx, &domain.Transaction{
		IdempotencyKey:      idempotencyKey,
		UserID:              userID,
		AmountCents:         req.AmountCents,
		Currency:            strings.ToUpper(req.Currency),
		PaymentMode:         req.PaymentMode,
		PaymentType:         req.PaymentType,
		PaymentProvider:     gw.Name(),
		VendorTransactionID: result.VendorTransactionID,
		Status:              result.Status,
		Metadata:            req.Metadata,
	})
}

// recordProviderFailure persists a terminal FAILED row so the key is never
// left silently pending. When even that insert fails the error propagates as
// ErrProviderUnavailable and the lock TTL bounds the stale window.
func (s *PaymentService) recordProviderFailure(ctx context.Context, userID, idempotencyKey, vendor string, req InitiateRequest, perr error) (*domain.Transaction, error) {
	log.Error().Err(perr).
		Str("idempotency_key", idempotencyKey).
		Str("vendor", vendor).
		Msg("provider call failed during initiate")

	meta := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	meta["provider_error"] = perr.Error()

	tx, err := s.insertOrAdopt(ctx, &domain.Transaction{
		IdempotencyKey:  idempotencyKey,
		UserID:          userID,
		AmountCents:     req.AmountCents,
		Currency:        strings.ToUpper(req.Currency),
		PaymentMode:     req.PaymentMode,
		PaymentType:     req.PaymentType,
		PaymentProvider: vendor,
		Status:          domain.StatusFailed,
		Metadata:        meta,
	})
	if err != nil {
		return nil, ErrProviderUnavailable
	}
	return tx, nil
}

// insertOrAdopt inserts t, falling back to the existing row on a duplicate
// key. The caller always gets the row that won.
func (s *PaymentService) insertOrAdopt(ctx context.Context, t *domain.Transaction) (*domain.Transaction, error) {
	created, err := repo.CreateTransaction(ctx, s.DB, t)
	if err == nil {
		paymentsInitiated.WithLabelValues(string(created.Status)).Inc()
		return created, nil
	}
	if errors.Is(err, repo.ErrDuplicate) {
		return repo.GetTransactionByKey(ctx, s.DB, t.IdempotencyKey)
	}
	return nil, err
}

// GetStatus returns the transaction for the given idempotency key,
// opportunistically refreshing a non-terminal status from the provider.
//
// The refresh is best-effort: when the key lock is held, or the provider
// cannot be queried, the last stored (possibly stale) status is returned
// rather than blocking the caller. A version conflict during the refresh
// means another writer already captured newer state, so the row is re-read
// once and returned as-is.
func (s *PaymentService) GetStatus(ctx context.Context, idempotencyKey string) (*domain.Transaction, error) {
	tr := otel.Tracer("services/PaymentService")
	ctx, span := tr.Start(ctx, "GetStatus",
		trace.WithAttributes(attribute.String("payment.idempotency_key", idempotencyKey)),
	)
	defer span.End()

	t, err := repo.GetTransactionByKey(ctx, s.DB, idempotencyKey)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	if t.Status.IsTerminal() || t.VendorTransactionID == "" {
		return t, nil
	}

	acquired, lerr := s.Locks.Acquire(ctx, idempotencyKey, s.lockTTL())
	if lerr != nil || !acquired {
		// Someone else is working on this key; stale is acceptable here.
		return t, nil
	}
	defer func() {
		if rerr := s.Locks.Release(context.WithoutCancel(ctx), idempotencyKey); rerr != nil {
			log.Warn().Err(rerr).Str("idempotency_key", idempotencyKey).Msg("lock release failed; TTL will reclaim")
		}
	}()

	gw, ok := s.Providers.ResolveVendor(t.PaymentProvider)
	if !ok {
		return t, nil
	}
	result, perr := gw.CheckStatus(ctx, t.VendorTransactionID)
	if perr != nil {
		log.Warn().Err(perr).
			Str("idempotency_key", idempotencyKey).
			Str("vendor", t.PaymentProvider).
			Msg("status refresh failed; returning stored status")
		return t, nil
	}
	if result.Status == t.Status || !t.Status.CanTransitionTo(result.Status) {
		return t, nil
	}

	prev := t.Status
	t.Status = result.Status
	updated, uerr := repo.UpdateTransactionWithVersionCheck(ctx, s.DB, t, t.Version)
	if uerr != nil {
		if errors.Is(uerr, repo.ErrVersionConflict) {
			// The conflicting writer already holds the newer state; one
			// re-read is sufficient.
			return repo.GetTransactionByKey(ctx, s.DB, idempotencyKey)
		}
		return nil, uerr
	}

	if _, aerr := repo.CreateStatusAudit(ctx, s.DB, updated.ID, prev, updated.Status, auditSourceOrchestrator); aerr != nil {
		log.Warn().Err(aerr).Str("transaction_id", updated.ID).Msg("audit append failed")
	}
	return updated, nil
}

// ListPage returns a page of a user's transactions and the total count.
// It applies defaults for invalid page/pageSize.
func (s *PaymentService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Transaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountTransactions(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Transaction{}, 0, nil
	}

	items, err := repo.ListTransactionsPage(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}

// AuditTrail returns the recorded status transitions for the transaction
// behind the given idempotency key, oldest first.
func (s *PaymentService) AuditTrail(ctx context.Context, idempotencyKey string) ([]domain.StatusAudit, error) {
	t, err := repo.GetTransactionByKey(ctx, s.DB, idempotencyKey)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return repo.ListStatusAudits(ctx, s.DB, t.ID)
}
