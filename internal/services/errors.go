// Package services defines the business logic of the payment gateway: the
// initiation orchestrator and the reconciliation sweeper. This file
// centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer. Storage-level races (duplicate insert, one round of
// version conflict) are recovered inside this package and never surface
// through these errors.
package services

import "errors"

var (
	// ErrContended is returned when the idempotency-key lock is held by
	// another in-flight request. The caller should retry after a backoff;
	// guessing at the other request's outcome would be wrong.
	ErrContended = errors.New("payment initiation in progress for this key")

	// ErrTransactionNotFound indicates that no transaction exists for the
	// requested idempotency key.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrMissingIdempotencyKey is returned when an initiation request
	// carries no idempotency key.
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")

	// ErrInvalidAmount is returned for a non-positive payment amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidCurrency is returned when the currency is not a well-formed
	// ISO 4217 code.
	ErrInvalidCurrency = errors.New("currency must be a valid ISO 4217 code")

	// ErrUnsupportedMode is returned when no registered provider handles the
	// requested (payment mode, payment type) pair.
	ErrUnsupportedMode = errors.New("unsupported payment mode")

	// ErrProviderUnavailable is returned when the vendor call failed and the
	// failure could not even be recorded as a FAILED transaction. The caller
	// may retry with the same idempotency key.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)
