// Package domain defines the core persistence models for the application.
// This file holds the coordination tables backing the distributed lock and
// the monotonic key counter. Both are ephemeral bookkeeping, not business
// records.
package domain

import "time"

// PaymentLock is a TTL-bounded mutual-exclusion token keyed by idempotency
// key. At most one row exists per key; acquisition is a conditional insert
// (or a conditional takeover once ExpiresAt has passed), so the primary key
// is the lock.
type PaymentLock struct {
	Key       string    `gorm:"type:varchar(200);primaryKey"`
	Owner     string    `gorm:"type:char(36);not null"`
	LockedAt  time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (PaymentLock) TableName() string { return "payment_locks" }

// KeyCounter is a named monotonically increasing counter used for
// system-generated identifiers (for example sweep run ids). Increments go
// through a conditional UPDATE so concurrent callers never observe the same
// value twice.
type KeyCounter struct {
	Name      string    `gorm:"type:varchar(64);primaryKey"`
	Value     int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName implements the GORM tabler interface.
func (KeyCounter) TableName() string { return "key_counters" }
