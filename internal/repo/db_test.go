package repo

import (
	"path/filepath"
	"testing"

	"github.com/tbourn/go-payment-backend/internal/domain"
)

func TestOpenSQLite_CreatesAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payments.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	for _, table := range []string{"transactions", "status_audits", "payment_locks", "key_counters"} {
		if !db.Migrator().HasTable(table) {
			t.Fatalf("missing table %s", table)
		}
	}

	// The unique index behind idempotency must exist after migration.
	if !db.Migrator().HasIndex(&domain.Transaction{}, "ux_tx_idempotency_key") {
		t.Fatal("missing unique index on idempotency key")
	}
}

func TestOpenSQLite_MissingParentDirectory(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "no", "such", "dir", "payments.db"))
	if err == nil {
		t.Fatal("expected error for missing parent directory")
	}
}
