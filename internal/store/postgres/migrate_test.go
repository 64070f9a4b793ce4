package postgres

import (
	"testing"
	"testing/fstest"
)

func TestMigrationFilenamePattern(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  string
		name     string
	}{
		{"0001_init.sql", true, "0001", "init"},
		{"0002_add_ledger_index.sql", true, "0002", "add_ledger_index"},
		{"001_invalid.sql", false, "", ""},
		{"0001_test", false, "", ""},
		{"0001.sql", false, "", ""},
		{"invalid_0001_test.sql", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			m := migrationPattern.FindStringSubmatch(tt.filename)
			if (m != nil) != tt.valid {
				t.Fatalf("match = %v, want %v", m != nil, tt.valid)
			}
			if tt.valid && (m[1] != tt.version || m[2] != tt.name) {
				t.Errorf("got version %q name %q, want %q %q", m[1], m[2], tt.version, tt.name)
			}
		})
	}
}

func TestReadMigrations_SortedWithStableChecksum(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_second.sql": {Data: []byte("SELECT 2;")},
		"m/0001_first.sql":  {Data: []byte("SELECT 1;")},
		"m/README.md":       {Data: []byte("ignored")},
	}

	first, err := readMigrations(fsys, "m")
	if err != nil {
		t.Fatalf("readMigrations: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("got %d migrations, want 2", len(first))
	}
	if first[0].Version != 1 || first[1].Version != 2 {
		t.Errorf("migrations not sorted: %+v", first)
	}

	second, err := readMigrations(fsys, "m")
	if err != nil {
		t.Fatalf("readMigrations: %v", err)
	}
	if first[0].Checksum != second[0].Checksum {
		t.Error("checksum should be stable for identical content")
	}
	if first[0].Checksum == first[1].Checksum {
		t.Error("different content should produce different checksums")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := Migrations()
	if err != nil {
		t.Fatalf("Migrations: %v", err)
	}
	if len(migrations) == 0 || migrations[0].Name != "init" {
		t.Fatalf("expected 0001_init to be embedded, got %+v", migrations)
	}
}
