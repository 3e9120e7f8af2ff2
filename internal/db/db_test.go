package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenCreatesSchema(t *testing.T) {
	ctx := context.Background()
	database, err := Open(ctx, filepath.Join(t.TempDir(), "nested", "agile.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer database.Close()

	for _, table := range []string{"projects", "backlogs", "users", "epics", "sprints", "stories", "tasks"} {
		cols, err := tableColumns(ctx, database, table)
		if err != nil {
			t.Fatalf("columns %s: %v", table, err)
		}
		if len(cols) == 0 {
			t.Fatalf("table %s missing", table)
		}
	}
}

func TestMigrateAddsMissingColumns(t *testing.T) {
	ctx := context.Background()
	database, err := Open(ctx, filepath.Join(t.TempDir(), "agile.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer database.Close()

	if _, err := database.ExecContext(ctx, `ALTER TABLE tasks DROP COLUMN blocked_by`); err != nil {
		t.Fatalf("drop column: %v", err)
	}
	if err := Migrate(ctx, database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cols, err := tableColumns(ctx, database, "tasks")
	if err != nil {
		t.Fatalf("columns: %v", err)
	}
	if !cols["blocked_by"] {
		t.Fatal("expected blocked_by to be restored")
	}
}
