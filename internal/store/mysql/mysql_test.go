package mysql

import (
	"os"
	"testing"
	"time"

	"github.com/loykin/walletvisor/internal/store"
	"github.com/loykin/walletvisor/internal/store/storetest"
)

func TestModelRoundTrip(t *testing.T) {
	started := time.Now().UTC()
	in := store.Record{Username: "erin", Password: "p", Created: true, Connected: true, Port: 1, Container: "c", StartedAt: started}
	out := fromModel(toModel(in))
	if out != in {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}

	m := toModel(store.Record{Username: "frank"})
	if m.StartedAt != nil {
		t.Fatal("zero StartedAt must map to NULL")
	}
	if !fromModel(m).StartedAt.IsZero() {
		t.Fatal("NULL must map back to zero time")
	}
}

func TestNewRejectsEmptyDSN(t *testing.T) {
	if _, err := New("mysql://"); err == nil {
		t.Fatal("expected error")
	}
}

// Needs a disposable database, e.g.
// WALLETVISOR_TEST_MYSQL_DSN="root:root@tcp(127.0.0.1:3306)/walletvisor_test".
func TestMySQLContract(t *testing.T) {
	dsn := os.Getenv("WALLETVISOR_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("WALLETVISOR_TEST_MYSQL_DSN not set")
	}
	db, err := New(dsn)
	if err != nil {
		t.Fatalf("mysql open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.db.Migrator().DropTable(&walletRecord{}); err != nil {
		t.Fatalf("drop: %v", err)
	}
	storetest.Run(t, db)
}
