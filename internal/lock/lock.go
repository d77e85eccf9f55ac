// Package lock provides the cross-process coordination primitives of the
// gateway: a TTL-bounded mutual-exclusion lock keyed by idempotency key, and
// a monotonically increasing named counter for system-generated identifiers.
//
// Both are backed by compare-and-swap rows in the shared database, so any
// number of service instances coordinate through the same store they already
// depend on. The lock is advisory: it exists to avoid wasted duplicate
// provider calls, while correctness is carried by the transaction table's
// unique index and version fence.
//
// Failure semantics are fail-closed. If the store cannot be reached, Acquire
// reports the lock as not acquired; a caller must never proceed as if it held
// exclusivity.
package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-payment-backend/internal/domain"
)

// Coordinator is the contract the orchestrator and sweeper depend on.
// Implementations must make Acquire a single atomic set-if-absent with
// expiry; a separate existence check followed by a set is a race and must
// not be used.
type Coordinator interface {
	// Acquire attempts to take the lock for key with the given ttl.
	// It returns true only when this caller now holds the lock.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release removes the lock unconditionally. It must be safe to call on
	// every exit path of a critical section, including after expiry.
	Release(ctx context.Context, key string) error

	// NextKey increments and returns the named monotonic counter.
	NextKey(ctx context.Context, name string) (int64, error)
}

// ErrCounterContention is returned by NextKey when the counter row keeps
// moving under the caller and the retry budget runs out.
var ErrCounterContention = errors.New("counter contention")

// Store is the database-backed Coordinator. A lock is a primary-keyed row in
// payment_locks: insertion doubles as the atomic "set if absent", and taking
// over an expired lock is a single conditional UPDATE guarded by the stored
// expiry. No read-then-write window exists in either path.
type Store struct {
	DB *gorm.DB
}

// NewStore returns a Coordinator backed by the given database handle.
func NewStore(db *gorm.DB) *Store { return &Store{DB: db} }

// Acquire implements Coordinator. The happy path is one INSERT; when the row
// already exists, one UPDATE conditioned on expires_at <= now decides whether
// the previous holder's TTL has lapsed. Exactly one concurrent caller can win
// either write.
func (s *Store) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errors.New("lock ttl must be positive")
	}
	now := time.Now().UTC()
	row := domain.PaymentLock{
		Key:       key,
		Owner:     uuid.NewString(),
		LockedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	err := s.DB.WithContext(ctx).Create(&row).Error
	if err == nil {
		return true, nil
	}
	if !isDuplicate(err) {
		// Store unavailable or misbehaving: fail closed.
		return false, err
	}

	// Held by someone. Take over only if their TTL has already lapsed.
	res := s.DB.WithContext(ctx).
		Model(&domain.PaymentLock{}).
		Where("key = ? AND expires_at <= ?", key, now).
		Updates(map[string]any{
			"owner":      row.Owner,
			"locked_at":  now,
			"expires_at": now.Add(ttl),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Release implements Coordinator. Deleting a row that is already gone is not
// an error; callers invoke Release on every exit path.
func (s *Store) Release(ctx context.Context, key string) error {
	return s.DB.WithContext(ctx).
		Where("key = ?", key).
		Delete(&domain.PaymentLock{}).Error
}

// NextKey implements Coordinator with a bounded compare-and-swap loop over
// the key_counters row. Values are never reused: the conditional UPDATE only
// succeeds when the row still holds the value this caller read.
func (s *Store) NextKey(ctx context.Context, name string) (int64, error) {
	const attempts = 5
	for i := 0; i < attempts; i++ {
		var cur domain.KeyCounter
		err := s.DB.WithContext(ctx).Where("name = ?", name).First(&cur).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			first := domain.KeyCounter{Name: name, Value: 1, UpdatedAt: time.Now().UTC()}
			if cerr := s.DB.WithContext(ctx).Create(&first).Error; cerr == nil {
				return 1, nil
			} else if !isDuplicate(cerr) {
				return 0, cerr
			}
			// Lost the insert race; retry against the winner's row.
			continue
		case err != nil:
			return 0, err
		}

		next := cur.Value + 1
		res := s.DB.WithContext(ctx).
			Model(&domain.KeyCounter{}).
			Where("name = ? AND value = ?", name, cur.Value).
			Updates(map[string]any{"value": next, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return 0, res.Error
		}
		if res.RowsAffected == 1 {
			return next, nil
		}
	}
	return 0, ErrCounterContention
}

// isDuplicate reports whether err is a primary-key/unique violation.
// glebarez/sqlite often returns plain-text errors for these.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}
