// Package provider defines the boundary to external payment vendors.
//
// A Gateway wraps one vendor integration behind two calls: Process, invoked
// at most once per idempotency key by the orchestrator, and CheckStatus, used
// by status refreshes and the reconciliation sweeper. Gateways are selected
// through a capability Registry keyed by (payment mode, payment type), which
// doubles as the catalog lookup consulted before dispatch.
//
// The orchestrator never assumes success: a gateway may be slow, may return
// any status, or may fail outright with ErrUnavailable.
package provider

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tbourn/go-payment-backend/internal/domain"
)

// ErrUnavailable indicates the vendor could not be reached or refused the
// call. The orchestrator converts it into a FAILED transaction when feasible.
var ErrUnavailable = errors.New("payment provider unavailable")

// ErrUnknownReference is returned by CheckStatus for a vendor transaction id
// the provider has no record of.
var ErrUnknownReference = errors.New("unknown vendor transaction reference")

// Request carries the immutable facts of one payment attempt into a gateway.
type Request struct {
	UserID      string
	AmountCents int64
	Currency    string
	PaymentMode string
	PaymentType string
	Metadata    map[string]string
}

// Result is what a gateway reports back: a provisional (or terminal) status
// and the vendor's own reference for the attempt.
type Result struct {
	Status              domain.TransactionStatus
	VendorTransactionID string
}

// Gateway is the black-box vendor contract.
type Gateway interface {
	// Name identifies the vendor (stored on the transaction row).
	Name() string

	// Process submits the payment. The caller guarantees it is invoked at
	// most once per idempotency key; the key is passed so vendors that offer
	// native deduplication can use it.
	Process(ctx context.Context, req Request, idempotencyKey string) (Result, error)

	// CheckStatus re-queries the vendor for the current status of a
	// previously submitted payment.
	CheckStatus(ctx context.Context, vendorTransactionID string) (Result, error)
}

// Registry maps (payment mode, payment type) capabilities to gateways.
// It is safe for concurrent use; registration normally happens once at
// startup and lookups happen per request.
type Registry struct {
	mu       sync.RWMutex
	byMode   map[string]Gateway
	byVendor map[string]Gateway
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byMode:   make(map[string]Gateway),
		byVendor: make(map[string]Gateway),
	}
}

// Register binds a gateway to one (mode, type) capability. Later
// registrations for the same capability replace earlier ones.
func (r *Registry) Register(mode, typ string, g Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byMode[capKey(mode, typ)] = g
	r.byVendor[strings.ToUpper(g.Name())] = g
}

// Supports reports whether some gateway handles the (mode, type) pair.
// It has no side effects and is queried before dispatch.
func (r *Registry) Supports(mode, typ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byMode[capKey(mode, typ)]
	return ok
}

// Resolve returns the gateway for the (mode, type) pair, or false when the
// capability is not in the catalog.
func (r *Registry) Resolve(mode, typ string) (Gateway, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.byMode[capKey(mode, typ)]
	return g, ok
}

// ResolveVendor returns the gateway registered under the given vendor name,
// used by the sweeper to route a stored transaction back to its provider.
func (r *Registry) ResolveVendor(name string) (Gateway, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.byVendor[strings.ToUpper(name)]
	return g, ok
}

func capKey(mode, typ string) string {
	return strings.ToUpper(strings.TrimSpace(mode)) + "/" + strings.ToUpper(strings.TrimSpace(typ))
}
