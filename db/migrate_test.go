package db

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openMemDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateFresh(t *testing.T) {
	db := openMemDB(t)

	if err := Migrate(db, nil); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}

	// All core tables must exist.
	tables := []string{
		"schema_migrations",
		"element_types",
		"relationship_type_rules",
		"canvas_models",
		"canvas_element_instances",
		"canvas_relationships",
		"canvas_property_instances",
		"design_rules",
		"design_rule_violations",
		"audit_log",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing after migration: %v", table, err)
		}
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := openMemDB(t)

	if err := Migrate(db, nil); err != nil {
		t.Fatalf("first Migrate() error: %v", err)
	}
	if err := Migrate(db, nil); err != nil {
		t.Fatalf("second Migrate() error: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count < 2 {
		t.Errorf("expected at least 2 recorded migrations, got %d", count)
	}
}

func TestIsBusy(t *testing.T) {
	if IsBusy(nil) {
		t.Error("IsBusy(nil) = true")
	}
	if !IsBusy(errFake("database is locked")) {
		t.Error("locked error not classified as busy")
	}
	if IsBusy(errFake("no such table: foo")) {
		t.Error("schema error misclassified as busy")
	}
}

type errFake string

func (e errFake) Error() string { return string(e) }

func TestWithRetryPassesThroughRealErrors(t *testing.T) {
	calls := 0
	err := WithRetry(func() error {
		calls++
		return errFake("no such table: foo")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("non-busy error retried %d times", calls)
	}
}

func TestWithRetryRecovers(t *testing.T) {
	calls := 0
	err := WithRetry(func() error {
		calls++
		if calls < 3 {
			return errFake("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}
