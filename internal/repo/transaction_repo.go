// Package repo implements the data persistence layer for the payment domain,
// backed by GORM. This file provides repository functions for the Transaction
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only persistence
// and query composition.
//
// Error semantics:
//   - When a transaction is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - CreateTransaction returns ErrDuplicate when the idempotency-key unique
//     index rejects the insert. Callers must treat this as "someone else
//     already created the row" and re-read, never as a user-facing failure.
//   - UpdateTransactionWithVersionCheck returns ErrVersionConflict when the
//     stored version no longer matches the expected one. The write is never
//     partially applied.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-payment-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that a transaction row already exists for the
// given idempotency key.
var ErrDuplicate = errors.New("duplicate idempotency key")

// ErrVersionConflict indicates that a version-checked update lost a race:
// the stored version moved past the expected one before the write landed.
var ErrVersionConflict = errors.New("version conflict")

// GetTransactionByKey fetches a transaction by its idempotency key with a
// plain read. Returns ErrNotFound if no row exists.
func GetTransactionByKey(ctx context.Context, db *gorm.DB, key string) (*domain.Transaction, error) {
	var t domain.Transaction
	err := db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTransactionByKeyForUpdate fetches a transaction by idempotency key while
// holding an exclusive row lock for the duration of the enclosing storage
// transaction. Use it only inside db.Transaction where a read must stay
// atomic with a conditional write.
//
// SQLite has no FOR UPDATE; its write transactions already serialize at the
// database level, so the locking clause is applied only on dialects that
// support it.
func GetTransactionByKeyForUpdate(ctx context.Context, db *gorm.DB, key string) (*domain.Transaction, error) {
	q := db.WithContext(ctx)
	if db.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var t domain.Transaction
	if err := q.Where("idempotency_key = ?", key).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTransaction inserts a new transaction row. The surrogate id, version
// and creation timestamp are assigned here; the caller provides the request
// facts and the provider outcome.
//
// On a unique-index violation for the idempotency key it returns
// ErrDuplicate. Any other DB error is propagated as-is.
func CreateTransaction(ctx context.Context, db *gorm.DB, t *domain.Transaction) (*domain.Transaction, error) {
	now := time.Now().UTC()
	t.ID = uuid.NewString()
	t.Version = 1
	t.CreatedAt = now
	t.UpdatedAt = now
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") ||
			strings.Contains(low, "duplicate key") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return t, nil
}

// UpdateTransactionWithVersionCheck applies a status (and, when newly learned,
// vendor reference) change to the row identified by t.ID, but only if the
// stored version still equals expectedVersion. On success the stored version
// becomes expectedVersion+1 and the updated row is returned.
//
// When the guard fails it distinguishes the two causes: a missing row yields
// ErrNotFound, a moved version yields ErrVersionConflict. Nothing is ever
// partially applied; the whole change rides on a single conditional UPDATE.
func UpdateTransactionWithVersionCheck(ctx context.Context, db *gorm.DB, t *domain.Transaction, expectedVersion int64) (*domain.Transaction, error) {
	fields := map[string]any{
		"status":     t.Status,
		"version":    expectedVersion + 1,
		"updated_at": time.Now().UTC(),
	}
	if t.VendorTransactionID != "" {
		fields["vendor_transaction_id"] = t.VendorTransactionID
	}

	res := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("id = ? AND version = ?", t.ID, expectedVersion).
		Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var exists int64
		if err := db.WithContext(ctx).
			Model(&domain.Transaction{}).
			Where("id = ?", t.ID).
			Count(&exists).Error; err != nil {
			return nil, err
		}
		if exists == 0 {
			return nil, ErrNotFound
		}
		return nil, ErrVersionConflict
	}

	var out domain.Transaction
	if err := db.WithContext(ctx).Where("id = ?", t.ID).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// ListNonTerminal returns up to limit transactions whose status is still
// PENDING or PROCESSING, oldest first, for the reconciliation sweeper.
// A limit <= 0 means no cap.
func ListNonTerminal(ctx context.Context, db *gorm.DB, limit int) ([]domain.Transaction, error) {
	q := db.WithContext(ctx).
		Where("status IN ?", []domain.TransactionStatus{domain.StatusPending, domain.StatusProcessing}).
		Order("created_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.Transaction
	err := q.Find(&out).Error
	return out, err
}

// CountTransactions returns the total number of transactions owned by userID.
func CountTransactions(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListTransactionsPage returns a paginated slice of transactions for userID,
// ordered by creation time descending. The caller computes offset and limit.
func ListTransactionsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
