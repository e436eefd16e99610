package database

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenAndMigrateSQLite(t *testing.T) {
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := Migrate(ctx, db, "sqlite"); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// a second run must be a no-op
	if err := Migrate(ctx, db, "sqlite"); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	for _, table := range []string{"users", "rooms", "room_members", "settlements", "settlement_debits", "refresh_tokens"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open("oracle", "x"); err == nil {
		t.Fatal("expected an error for an unknown driver")
	}
}
