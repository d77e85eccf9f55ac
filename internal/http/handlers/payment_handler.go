// Payment HTTP handlers.
//
// This file exposes REST endpoints for payment transactions:
//   - POST /payments             (initiate; requires Idempotency-Key header)
//   - GET  /payments             (list, paginated, per user)
//   - GET  /payments/{key}       (status lookup, opportunistically refreshed)
//   - GET  /payments/{key}/audit (status transition trail)
//
// Handlers are transport-thin: they validate input, call the payment service,
// and translate results into HTTP responses. Retried initiations with the
// same Idempotency-Key return the recorded transaction with
// `Idempotency-Replayed: true`.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-payment-backend/internal/domain"
	"github.com/tbourn/go-payment-backend/internal/http/middleware"
	"github.com/tbourn/go-payment-backend/internal/services"
	"github.com/tbourn/go-payment-backend/internal/utils"
)

//
// Service contract (context-aware)
//

// PaymentService defines the payment operations consumed by HTTP handlers.
//
// Implementations must be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type PaymentService interface {
	// Initiate creates or returns the transaction for the idempotency key.
	Initiate(ctx context.Context, userID, idempotencyKey string, req services.InitiateRequest) (*domain.Transaction, error)
	// GetStatus returns the transaction, refreshing non-terminal status
	// from the provider when possible.
	GetStatus(ctx context.Context, idempotencyKey string) (*domain.Transaction, error)
	// ListPage returns a page of the user's transactions and the total.
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Transaction, int64, error)
	// AuditTrail returns the recorded status transitions for a key.
	AuditTrail(ctx context.Context, idempotencyKey string) ([]domain.StatusAudit, error)
}

//
// Handler wiring
//

// Handlers groups the payment HTTP endpoints. It depends on the abstract
// service interface to keep transport concerns separate from business logic.
type Handlers struct {
	paySvc PaymentService
}

// New constructs a Handlers instance bound to the given service.
func New(paySvc PaymentService) *Handlers {
	return &Handlers{paySvc: paySvc}
}

// userID extracts the authenticated user id from Gin context (set by
// upstream middleware). If absent, it falls back to the "X-User-ID" header
// (tests use it), and finally to "demo-user".
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// InitiatePaymentRequest is the JSON payload for initiating a payment.
type InitiatePaymentRequest struct {
	// AmountCents is the charge amount in minor units; must be positive.
	AmountCents int64 `json:"amount_cents" binding:"required,gt=0" example:"10000"`
	// Currency is an ISO 4217 code.
	Currency string `json:"currency" binding:"required,len=3" example:"EUR"`
	// PaymentMode selects the rail (e.g. UPI, CARD, WALLET).
	PaymentMode string `json:"payment_mode" binding:"required" example:"UPI"`
	// PaymentType qualifies the mode (e.g. COLLECT, INTENT, ONE_TIME).
	PaymentType string `json:"payment_type" binding:"required" example:"COLLECT"`
	// Metadata is an opaque key/value payload stored with the transaction.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// TransactionResponse is the JSON envelope for a single transaction.
type TransactionResponse struct {
	Transaction *domain.Transaction `json:"transaction"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListTransactionsResponse wraps a page of transactions and pagination info.
type ListTransactionsResponse struct {
	Transactions []domain.Transaction `json:"transactions"`
	Pagination   Pagination           `json:"pagination"`
}

// AuditTrailResponse wraps the status transition history of a transaction.
type AuditTrailResponse struct {
	Audits []domain.StatusAudit `json:"audits"`
}

//
// Helpers
//

// clampPagination parses page/page_size query parameters, applies sane
// defaults and caps, and returns the validated (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// InitiatePayment godoc
// @ID          initiatePayment
// @Summary     Initiate a payment
// @Description Creates exactly one transaction for the supplied Idempotency-Key.
// @Description Retries with the same key return the recorded transaction; a request
// @Description racing another for the same key receives 409 `contended` and should
// @Description retry after a backoff.
// @Tags        Payments
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  true  "User ID initiating the payment"  example(user123)
// @Param       Idempotency-Key  header  string  true  "Idempotency key (random unique token recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.InitiatePaymentRequest  true  "Payment request payload"
//
// @Success     200  {object}  handlers.TransactionResponse  "Replayed transaction"
// @Success     201  {object}  handlers.TransactionResponse  "Newly created transaction"
// @Failure     400  {object}  handlers.ErrorResponse        "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse        "Initiation in progress for this key"
// @Failure     503  {object}  handlers.ErrorResponse        "Provider unavailable"
// @Router      /payments [post]
func (h *Handlers) InitiatePayment(c *gin.Context) {
	ctx := c.Request.Context()

	key, okKey := middleware.GetIdempotencyKey(c)
	if !okKey {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Idempotency-Key header required")
		return
	}

	var req InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "amount_cents, currency, payment_mode and payment_type are required")
		return
	}

	tx, err := h.paySvc.Initiate(ctx, userID(c), key, services.InitiateRequest{
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		PaymentMode: req.PaymentMode,
		PaymentType: req.PaymentType,
		Metadata:    req.Metadata,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissingIdempotencyKey),
			errors.Is(err, services.ErrInvalidAmount),
			errors.Is(err, services.ErrInvalidCurrency):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrUnsupportedMode):
			fail(c, http.StatusBadRequest, ErrCodeUnsupportedMode, err.Error())
		case errors.Is(err, services.ErrContended):
			c.Header("Retry-After", "1")
			fail(c, http.StatusConflict, ErrCodeContended, err.Error())
		case errors.Is(err, services.ErrProviderUnavailable):
			fail(c, http.StatusServiceUnavailable, ErrCodeProviderUnavailable, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not initiate payment")
		}
		return
	}

	status := http.StatusCreated
	if middleware.IsReplay(c) {
		c.Header("Idempotency-Replayed", "true")
		status = http.StatusOK
	}
	ok(c, status, TransactionResponse{Transaction: tx})
}

// GetPaymentStatus godoc
// @ID          getPaymentStatus
// @Summary     Get payment status
// @Description Returns the transaction for the idempotency key. Non-terminal
// @Description statuses are refreshed from the provider when the key lock is free;
// @Description otherwise the last stored status is returned.
// @Tags        Payments
// @Produce     json
//
// @Param       key  path  string  true  "Idempotency key"
//
// @Success     200  {object}  handlers.TransactionResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown idempotency key"
// @Router      /payments/{key} [get]
func (h *Handlers) GetPaymentStatus(c *gin.Context) {
	ctx := c.Request.Context()
	key := c.Param("key")

	tx, err := h.paySvc.GetStatus(ctx, key)
	if err != nil {
		if errors.Is(err, services.ErrTransactionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "transaction not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load transaction")
		return
	}
	ok(c, http.StatusOK, TransactionResponse{Transaction: tx})
}

// ListPayments godoc
// @ID          listPayments
// @Summary     List payments
// @Description Returns a page of the calling user's transactions, newest first.
// @Tags        Payments
// @Produce     json
//
// @Param       X-User-ID  header  string  true   "User ID"  example(user123)
// @Param       page       query   int     false  "Page number (1-based)"
// @Param       page_size  query   int     false  "Page size (max 100)"
//
// @Success     200  {object}  handlers.ListTransactionsResponse
// @Router      /payments [get]
func (h *Handlers) ListPayments(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	items, total, err := h.paySvc.ListPage(ctx, userID(c), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list transactions")
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListTransactionsResponse{
		Transactions: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetPaymentAudit godoc
// @ID          getPaymentAudit
// @Summary     Get payment audit trail
// @Description Returns the recorded status transitions for the transaction, oldest first.
// @Tags        Payments
// @Produce     json
//
// @Param       key  path  string  true  "Idempotency key"
//
// @Success     200  {object}  handlers.AuditTrailResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown idempotency key"
// @Router      /payments/{key}/audit [get]
func (h *Handlers) GetPaymentAudit(c *gin.Context) {
	ctx := c.Request.Context()
	key := c.Param("key")

	audits, err := h.paySvc.AuditTrail(ctx, key)
	if err != nil {
		if errors.Is(err, services.ErrTransactionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "transaction not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load audit trail")
		return
	}
	ok(c, http.StatusOK, AuditTrailResponse{Audits: audits})
}
