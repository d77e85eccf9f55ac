package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-payment-backend/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:txrepo_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA busy_timeout=5000;")
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedTransaction(t *testing.T, db *gorm.DB, key string) *domain.Transaction {
	t.Helper()
	tx, err := CreateTransaction(context.Background(), db, &domain.Transaction{
		IdempotencyKey:      key,
		UserID:              "u1",
		AmountCents:         10000,
		Currency:            "EUR",
		PaymentMode:         "UPI",
		PaymentType:         "COLLECT",
		PaymentProvider:     "SANDBOX",
		VendorTransactionID: "sbx_" + uuid.NewString(),
		Status:              domain.StatusPending,
	})
	if err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	return tx
}

func TestCreateTransaction_AssignsIdentityAndVersion(t *testing.T) {
	db := newTestDB(t)
	tx := seedTransaction(t, db, "k-create")

	if tx.ID == "" {
		t.Fatal("expected surrogate id to be assigned")
	}
	if tx.Version != 1 {
		t.Fatalf("expected version 1, got %d", tx.Version)
	}
	if tx.CreatedAt.IsZero() || tx.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}
}

func TestCreateTransaction_DuplicateKey(t *testing.T) {
	db := newTestDB(t)
	seedTransaction(t, db, "k-dup")

	_, err := CreateTransaction(context.Background(), db, &domain.Transaction{
		IdempotencyKey:  "k-dup",
		UserID:          "u2",
		AmountCents:     5,
		Currency:        "EUR",
		PaymentMode:     "UPI",
		PaymentType:     "COLLECT",
		PaymentProvider: "SANDBOX",
		Status:          domain.StatusPending,
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Exactly one row must exist for the key.
	var n int64
	if err := db.Model(&domain.Transaction{}).Where("idempotency_key = ?", "k-dup").Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row for key, got %d", n)
	}
}

func TestGetTransactionByKey_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := GetTransactionByKey(context.Background(), db, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetTransactionByKeyForUpdate(t *testing.T) {
	db := newTestDB(t)
	seeded := seedTransaction(t, db, "k-forupdate")

	err := db.Transaction(func(txn *gorm.DB) error {
		got, err := GetTransactionByKeyForUpdate(context.Background(), txn, "k-forupdate")
		if err != nil {
			return err
		}
		if got.ID != seeded.ID {
			t.Fatalf("expected row %s, got %s", seeded.ID, got.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestUpdateTransactionWithVersionCheck_Succeeds(t *testing.T) {
	db := newTestDB(t)
	tx := seedTransaction(t, db, "k-upd")

	tx.Status = domain.StatusSucceeded
	updated, err := UpdateTransactionWithVersionCheck(context.Background(), db, tx, tx.Version)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.StatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s", updated.Status)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}
}

func TestUpdateTransactionWithVersionCheck_NoLostUpdates(t *testing.T) {
	db := newTestDB(t)
	tx := seedTransaction(t, db, "k-race")

	// Two writers read the same version; only one conditional update wins.
	first := *tx
	first.Status = domain.StatusSucceeded
	if _, err := UpdateTransactionWithVersionCheck(context.Background(), db, &first, tx.Version); err != nil {
		t.Fatalf("first update: %v", err)
	}

	second := *tx
	second.Status = domain.StatusFailed
	_, err := UpdateTransactionWithVersionCheck(context.Background(), db, &second, tx.Version)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	// The loser must not have clobbered the winner.
	got, err := GetTransactionByKey(context.Background(), db, "k-race")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != domain.StatusSucceeded || got.Version != 2 {
		t.Fatalf("winner overwritten: status=%s version=%d", got.Status, got.Version)
	}
}

func TestUpdateTransactionWithVersionCheck_MissingRow(t *testing.T) {
	db := newTestDB(t)
	ghost := &domain.Transaction{ID: uuid.NewString(), Status: domain.StatusFailed}
	_, err := UpdateTransactionWithVersionCheck(context.Background(), db, ghost, 1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListNonTerminal(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	pending := seedTransaction(t, db, "k-nt-1")
	seedTransaction(t, db, "k-nt-2")
	done := seedTransaction(t, db, "k-nt-3")

	done.Status = domain.StatusSucceeded
	if _, err := UpdateTransactionWithVersionCheck(ctx, db, done, done.Version); err != nil {
		t.Fatalf("settle: %v", err)
	}

	got, err := ListNonTerminal(ctx, db, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 non-terminal rows, got %d", len(got))
	}
	if got[0].ID != pending.ID {
		t.Fatalf("expected oldest-first ordering")
	}

	capped, err := ListNonTerminal(ctx, db, 1)
	if err != nil {
		t.Fatalf("list capped: %v", err)
	}
	if len(capped) != 1 {
		t.Fatalf("expected cap of 1, got %d", len(capped))
	}
}

func TestListTransactionsPage_AndCount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedTransaction(t, db, fmt.Sprintf("k-page-%d", i))
	}

	total, err := CountTransactions(ctx, db, "u1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected 5, got %d", total)
	}

	page, err := ListTransactionsPage(ctx, db, "u1", 0, 2)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}

	if n, err := CountTransactions(ctx, db, "nobody"); err != nil || n != 0 {
		t.Fatalf("expected 0 for unknown user, got %d (%v)", n, err)
	}
}

func TestStatusAudit_AppendAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tx := seedTransaction(t, db, "k-audit")

	if _, err := CreateStatusAudit(ctx, db, tx.ID, domain.StatusPending, domain.StatusProcessing, "sweeper"); err != nil {
		t.Fatalf("audit 1: %v", err)
	}
	if _, err := CreateStatusAudit(ctx, db, tx.ID, domain.StatusProcessing, domain.StatusSucceeded, "sweeper"); err != nil {
		t.Fatalf("audit 2: %v", err)
	}

	trail, err := ListStatusAudits(ctx, db, tx.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(trail) != 2 {
		t.Fatalf("expected 2 audit rows, got %d", len(trail))
	}
	if trail[0].ToStatus != domain.StatusProcessing || trail[1].ToStatus != domain.StatusSucceeded {
		t.Fatalf("unexpected trail order: %+v", trail)
	}
}
