package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/tbourn/go-payment-backend/internal/domain"
	"github.com/tbourn/go-payment-backend/internal/lock"
	"github.com/tbourn/go-payment-backend/internal/provider"
	"github.com/tbourn/go-payment-backend/internal/repo"
)

// countingNotifier records every status-change notification it accepts.
type countingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *countingNotifier) Notify(ctx context.Context, userID, paymentKey string, oldStatus, newStatus domain.TransactionStatus) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, fmt.Sprintf("%s:%s->%s", paymentKey, oldStatus, newStatus))
	return true
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func newTestSweeper(t *testing.T) (*ReconcileService, *PaymentService, *provider.Sandbox, *countingNotifier) {
	t.Helper()
	db := newTestDB(t)
	sbx := provider.NewSandbox()
	reg := provider.NewRegistry()
	reg.Register("UPI", "COLLECT", sbx)
	locks := lock.NewStore(db)
	notifier := &countingNotifier{}
	return NewReconcileService(db, locks, reg, notifier),
		NewPaymentService(db, locks, reg),
		sbx, notifier
}

func TestSweepOnce_SettlesVendorSideChanges(t *testing.T) {
	sweeper, pay, sbx, notifier := newTestSweeper(t)
	ctx := context.Background()

	// Three stuck PENDING rows; the vendor has since settled two of them.
	refs := make([]string, 3)
	for i := 0; i < 3; i++ {
		tx, err := pay.Initiate(ctx, "u1", fmt.Sprintf("key-sweep-%d", i), validRequest())
		if err != nil {
			t.Fatalf("initiate %d: %v", i, err)
		}
		refs[i] = tx.VendorTransactionID
	}
	sbx.SetStatus(refs[0], domain.StatusSucceeded)
	sbx.SetStatus(refs[1], domain.StatusFailed)

	stats, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Scanned != 3 || stats.Updated != 2 || stats.Unchanged != 1 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if notifier.count() != 2 {
		t.Fatalf("expected 2 notifications, got %d", notifier.count())
	}

	settled, err := repo.GetTransactionByKey(ctx, sweeper.DB, "key-sweep-0")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if settled.Status != domain.StatusSucceeded || settled.Version != 2 {
		t.Fatalf("expected settled row at version 2, got %+v", settled)
	}

	trail, err := repo.ListStatusAudits(ctx, sweeper.DB, settled.ID)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(trail) != 1 || trail[0].Source != "sweeper" || trail[0].ToStatus != domain.StatusSucceeded {
		t.Fatalf("unexpected audit trail: %+v", trail)
	}
}

func TestSweepOnce_EmptyBacklog(t *testing.T) {
	sweeper, _, _, notifier := newTestSweeper(t)

	stats, err := sweeper.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Scanned != 0 || stats.Updated != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if notifier.count() != 0 {
		t.Fatalf("expected no notifications, got %d", notifier.count())
	}
}

func TestSweepOnce_IsolatesPerTransactionErrors(t *testing.T) {
	sweeper, pay, sbx, _ := newTestSweeper(t)
	ctx := context.Background()

	good, err := pay.Initiate(ctx, "u1", "key-good", validRequest())
	if err != nil {
		t.Fatalf("initiate good: %v", err)
	}
	bad, err := pay.Initiate(ctx, "u1", "key-bad", validRequest())
	if err != nil {
		t.Fatalf("initiate bad: %v", err)
	}

	sbx.SetStatus(good.VendorTransactionID, domain.StatusSucceeded)

	// Point the bad row at a vendor reference the provider has never seen.
	if err := sweeper.DB.Model(&domain.Transaction{}).
		Where("id = ?", bad.ID).
		Update("vendor_transaction_id", "sbx_forgotten").Error; err != nil {
		t.Fatalf("corrupt reference: %v", err)
	}

	stats, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Scanned != 2 || stats.Updated != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	reloaded, err := repo.GetTransactionByKey(ctx, sweeper.DB, "key-good")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != domain.StatusSucceeded {
		t.Fatalf("good row not settled despite bad sibling: %s", reloaded.Status)
	}
}

func TestSweepOnce_MonotonicGuard(t *testing.T) {
	sweeper, pay, sbx, notifier := newTestSweeper(t)
	ctx := context.Background()

	tx, err := pay.Initiate(ctx, "u1", "key-mono", validRequest())
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	// Settle the row, then have the vendor claim it went backwards.
	sbx.SetStatus(tx.VendorTransactionID, domain.StatusSucceeded)
	if _, err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	sbx.SetStatus(tx.VendorTransactionID, domain.StatusPending)

	stats, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	// Terminal rows never re-enter the backlog.
	if stats.Scanned != 0 {
		t.Fatalf("expected settled row out of backlog, stats=%+v", stats)
	}
	if notifier.count() != 1 {
		t.Fatalf("expected a single notification overall, got %d", notifier.count())
	}

	reloaded, err := repo.GetTransactionByKey(ctx, sweeper.DB, "key-mono")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != domain.StatusSucceeded {
		t.Fatalf("terminal status moved: %s", reloaded.Status)
	}
}

func TestSweepOnce_SkipsRowsWithoutVendorReference(t *testing.T) {
	sweeper, _, _, notifier := newTestSweeper(t)
	ctx := context.Background()

	if _, err := repo.CreateTransaction(ctx, sweeper.DB, &domain.Transaction{
		IdempotencyKey:  "key-novendor",
		UserID:          "u1",
		AmountCents:     100,
		Currency:        "EUR",
		PaymentMode:     "UPI",
		PaymentType:     "COLLECT",
		PaymentProvider: "SANDBOX",
		Status:          domain.StatusPending,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	stats, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Scanned != 1 || stats.Unchanged != 1 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if notifier.count() != 0 {
		t.Fatalf("expected no notifications, got %d", notifier.count())
	}
}

func TestSweepOnce_BatchSizeCapsScan(t *testing.T) {
	sweeper, pay, _, _ := newTestSweeper(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := pay.Initiate(ctx, "u1", fmt.Sprintf("key-batch-%d", i), validRequest()); err != nil {
			t.Fatalf("initiate %d: %v", i, err)
		}
	}

	sweeper.BatchSize = 2
	stats, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Scanned != 2 {
		t.Fatalf("expected scan capped at 2, got %d", stats.Scanned)
	}
}
