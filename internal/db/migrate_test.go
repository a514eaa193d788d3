package db

import (
	"io/fs"
	"testing"
	"testing/fstest"
)

func TestLoadMigrations_SortsAndSkips(t *testing.T) {
	fsys := fstest.MapFS{
		"010_late.sql":  {Data: []byte("SELECT 10;")},
		"002_mid.sql":   {Data: []byte("SELECT 2;")},
		"001_first.sql": {Data: []byte("SELECT 1;")},
		"README.md":     {Data: []byte("docs")},
		"notes.sql":     {Data: []byte("no prefix")},
		"abc_x.sql":     {Data: []byte("bad prefix")},
	}

	got, err := LoadMigrations(fsys)
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}

	want := []int{1, 2, 10}
	if len(got) != len(want) {
		t.Fatalf("expected %d migrations, got %d", len(want), len(got))
	}
	for i, v := range want {
		if got[i].Version != v {
			t.Errorf("migration %d: version = %d, want %d", i, got[i].Version, v)
		}
	}
	if got[0].SQL != "SELECT 1;" {
		t.Errorf("unexpected SQL for first migration: %q", got[0].SQL)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		t.Fatal(err)
	}
	got, err := LoadMigrations(sub)
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 embedded migrations, got %d", len(got))
	}
	for i, m := range got {
		if m.Version != i+1 {
			t.Errorf("migration %s has version %d, want %d", m.Name, m.Version, i+1)
		}
	}
}
