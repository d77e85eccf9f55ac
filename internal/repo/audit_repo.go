// Package repo implements the data persistence layer for the payment domain,
// backed by GORM. This file provides repository helpers for the append-only
// StatusAudit trail.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-payment-backend/internal/domain"
)

// CreateStatusAudit appends one audit row recording a status transition
// observed for transactionID. Source names the component that applied the
// change (e.g. "sweeper", "orchestrator").
func CreateStatusAudit(ctx context.Context, db *gorm.DB, transactionID string, from, to domain.TransactionStatus, source string) (*domain.StatusAudit, error) {
	a := &domain.StatusAudit{
		ID:            uuid.NewString(),
		TransactionID: transactionID,
		FromStatus:    from,
		ToStatus:      to,
		Source:        source,
		CreatedAt:     time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

// ListStatusAudits returns the audit trail for a transaction, oldest first.
func ListStatusAudits(ctx context.Context, db *gorm.DB, transactionID string) ([]domain.StatusAudit, error) {
	var out []domain.StatusAudit
	err := db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}
