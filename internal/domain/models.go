// Package domain defines the persistence models for payment transactions,
// status audits, and the coordination tables used for locking and key
// generation. These types are mapped with GORM and form the core data layer
// of the payment gateway.
package domain

import (
	"time"
)

// TransactionStatus enumerates the lifecycle states of a payment attempt.
// SUCCEEDED, FAILED, and CANCELLED are terminal; a row never leaves a
// terminal state.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "PENDING"
	StatusProcessing TransactionStatus = "PROCESSING"
	StatusSucceeded  TransactionStatus = "SUCCEEDED"
	StatusFailed     TransactionStatus = "FAILED"
	StatusCancelled  TransactionStatus = "CANCELLED"
)

// IsTerminal reports whether the status permits no further transitions.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsValid reports whether s is a known status value.
func (s TransactionStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal forward
// step of the state machine: PENDING may move to PROCESSING or any terminal
// state, PROCESSING may move to a terminal state only, and terminal states
// accept nothing. Self-transitions are rejected so that every accepted
// update is a real change.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	if s.IsTerminal() || !next.IsValid() || s == next {
		return false
	}
	switch s {
	case StatusPending:
		return next == StatusProcessing || next.IsTerminal()
	case StatusProcessing:
		return next.IsTerminal()
	}
	return false
}

// Transaction is the unit of record for one payment attempt. Exactly one row
// exists per idempotency key; the unique index carries that guarantee, not
// application logic.
//
// Fields:
//   - ID: stable UUID primary key (char(36)), assigned at first insert.
//   - IdempotencyKey: caller-supplied correlation handle for retries.
//   - UserID, AmountCents, Currency, PaymentMode, PaymentType,
//     PaymentProvider: request facts, set once at creation, never mutated.
//   - VendorTransactionID: reference returned by the provider; empty until
//     the provider responds, then immutable.
//   - Status: current state-machine position.
//   - Metadata: opaque key/value payload captured at creation.
//   - Version: optimistic-concurrency fence; every successful update
//     increments it by exactly one.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type Transaction struct {
	ID                  string            `json:"id"                    gorm:"type:char(36);primaryKey"`
	IdempotencyKey      string            `json:"idempotency_key"       gorm:"type:varchar(200);not null;uniqueIndex:ux_tx_idempotency_key"`
	UserID              string            `json:"user_id"               gorm:"type:varchar(64);not null;index:idx_user_tx"`
	AmountCents         int64             `json:"amount_cents"          gorm:"not null"`
	Currency            string            `json:"currency"              gorm:"type:char(3);not null"`
	PaymentMode         string            `json:"payment_mode"          gorm:"type:varchar(32);not null"`
	PaymentType         string            `json:"payment_type"          gorm:"type:varchar(32);not null"`
	PaymentProvider     string            `json:"payment_provider"      gorm:"type:varchar(64);not null"`
	VendorTransactionID string            `json:"vendor_transaction_id,omitempty" gorm:"type:varchar(128)"`
	Status              TransactionStatus `json:"status"                gorm:"type:varchar(16);not null;index:idx_tx_status"`
	Metadata            map[string]string `json:"metadata,omitempty"    gorm:"serializer:json;type:text"`
	Version             int64             `json:"version"               gorm:"not null;default:1"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// TableName returns the database table name for Transaction.
func (Transaction) TableName() string { return "transactions" }

// StatusAudit records one observed status transition for a transaction.
// Rows are appended by the reconciliation sweeper and never updated.
type StatusAudit struct {
	ID            string            `json:"id"             gorm:"type:char(36);primaryKey"`
	TransactionID string            `json:"transaction_id" gorm:"type:char(36);not null;index:idx_audit_tx,priority:1"`
	FromStatus    TransactionStatus `json:"from_status"    gorm:"type:varchar(16);not null"`
	ToStatus      TransactionStatus `json:"to_status"      gorm:"type:varchar(16);not null"`
	Source        string            `json:"source"         gorm:"type:varchar(32);not null"`
	CreatedAt     time.Time         `json:"created_at"     gorm:"index:idx_audit_tx,priority:2"`
}

// TableName returns the database table name for StatusAudit.
func (StatusAudit) TableName() string { return "status_audits" }
