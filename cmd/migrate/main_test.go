package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSplitSQLDropsCommentsAndBlankStatements(t *testing.T) {
	script := "-- users\nCREATE TABLE a (\n    id INT\n);\n\nCREATE INDEX a_idx ON a (id);\n"
	statements := splitSQL(script)
	if len(statements) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(statements), statements)
	}
	if strings.Contains(statements[0], "users") {
		t.Fatalf("comment leaked into statement: %q", statements[0])
	}
}

func TestReadSectionsSplitsUpAndDown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0001_test.sql")
	content := "CREATE TABLE a (id INT);\nCREATE TABLE b (id INT);\n" + downMarker + "\nDROP TABLE b;\nDROP TABLE a;\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	up, down, err := readSections(path)
	if err != nil {
		t.Fatalf("read sections: %v", err)
	}
	if len(up) != 2 || len(down) != 2 {
		t.Fatalf("expected 2 up and 2 down statements, got %d and %d", len(up), len(down))
	}
	if !strings.HasPrefix(down[0], "DROP TABLE b") {
		t.Fatalf("unexpected first down statement %q", down[0])
	}
}

func TestShippedMigrationHasDownSection(t *testing.T) {
	up, down, err := readSections(filepath.Join("..", "..", "migrations", "0001_init.sql"))
	if err != nil {
		t.Fatalf("read shipped migration: %v", err)
	}
	if len(up) == 0 || len(down) == 0 {
		t.Fatalf("expected both sections, got %d up and %d down", len(up), len(down))
	}
}

func TestShippedSchemaTracksDealActions(t *testing.T) {
	up, _, err := readSections(filepath.Join("..", "..", "migrations", "0001_init.sql"))
	if err != nil {
		t.Fatalf("read shipped migration: %v", err)
	}
	schema := strings.Join(up, "\n")
	for _, want := range []string{
		"last_action TEXT NOT NULL DEFAULT 'create'",
		"id UUID PRIMARY KEY DEFAULT gen_random_uuid()",
	} {
		if !strings.Contains(schema, want) {
			t.Fatalf("schema is missing %q", want)
		}
	}
}
