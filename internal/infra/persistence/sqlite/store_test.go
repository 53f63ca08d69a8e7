package sqlite

import (
	"alignercore/pkg/domain"
	"context"
	"path/filepath"
	"testing"
)

func createCase(t *testing.T, store domain.PersistentStore, code string) {
	t.Helper()
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreateCase(domain.Case{TreatmentCode: code, Arch: domain.ArchBoth})
		return e
	}); err != nil {
		t.Fatalf("create %s: %v", code, err)
	}
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	createCase(t, store, "A-0001")

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	if got := len(reloaded.ListCases()); got != 1 {
		t.Fatalf("expected 1 case, got %d", got)
	}
	if reloaded.Revision() != 1 {
		t.Fatalf("expected revision 1 after reload, got %d", reloaded.Revision())
	}
	if reloaded.Path() != path {
		t.Fatalf("expected path %s, got %s", path, reloaded.Path())
	}
}

func TestSQLiteStoreCreatesStateTable(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "state.db"), domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	var tableName string
	if err := store.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name= ?", "state").Scan(&tableName); err != nil {
		t.Fatalf("lookup state table: %v", err)
	}
	if tableName != "state" {
		t.Fatalf("expected state table, got %s", tableName)
	}
}

func TestSQLiteStoreCatchesUpWithOtherWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	first, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = first.Close() })
	second, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("second store: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })

	createCase(t, first, "A-0001")
	createCase(t, second, "A-0002")

	if got := len(second.ListCases()); got != 2 {
		t.Fatalf("expected second writer to reload before committing, got %d cases", got)
	}
	if err := first.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := len(first.ListCases()); got != 2 {
		t.Fatalf("expected first store to see both cases, got %d", got)
	}
	if first.Revision() != 2 {
		t.Fatalf("expected revision 2, got %d", first.Revision())
	}
}
