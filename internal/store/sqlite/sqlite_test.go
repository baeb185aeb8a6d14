package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/walletvisor/internal/store"
	"github.com/loykin/walletvisor/internal/store/storetest"
)

func TestSQLiteContract(t *testing.T) {
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	storetest.Run(t, db)
}

func TestSQLiteFilePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.db")
	ctx := context.Background()

	db, err := New(path)
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	rec := store.Record{
		Username:  "dave",
		Password:  "fedcba9876543210",
		Created:   true,
		Connected: true,
		Port:      41000,
		Container: "abcdefabcdef",
		StartedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := db.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = db.Close()

	db2, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = db2.Close() })
	got, ok, err := db2.Load(ctx, "dave")
	if err != nil || !ok {
		t.Fatalf("load after reopen: ok=%v err=%v", ok, err)
	}
	if got.Port != 41000 || !got.StartedAt.Equal(rec.StartedAt) {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestNewRejectsEmptyPath(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
