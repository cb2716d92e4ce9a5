package catalog

import (
	"path/filepath"
	"testing"
)

func TestCatalogLoadMissingIsEmpty(t *testing.T) {
	cat, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cat.ListTables()) != 0 {
		t.Errorf("expected empty catalog, got %v", cat.ListTables())
	}
}

func TestCatalogAddGetRemove(t *testing.T) {
	cat, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	meta := TableMeta{
		Schema: []ColumnDef{
			{Name: "id", Type: "int"},
			{Name: "name", Type: "text"},
		},
		BTreeOrder: 4,
	}
	if err := cat.AddTable("users", meta); err != nil {
		t.Fatalf("AddTable failed: %v", err)
	}

	if !cat.Has("users") {
		t.Fatal("expected users to be registered")
	}
	got, ok := cat.Get("users")
	if !ok {
		t.Fatal("Get returned ok=false")
	}
	if len(got.Schema) != 2 || got.Schema[0].Name != "id" || got.BTreeOrder != 4 {
		t.Errorf("unexpected metadata: %+v", got)
	}

	if err := cat.RemoveTable("users"); err != nil {
		t.Fatalf("RemoveTable failed: %v", err)
	}
	if cat.Has("users") {
		t.Error("expected users to be gone after RemoveTable")
	}
}

func TestCatalogPersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()

	cat, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	meta := TableMeta{
		Schema:     []ColumnDef{{Name: "id", Type: "int"}, {Name: "email", Type: "text"}},
		BTreeOrder: 4,
	}
	if err := cat.AddTable("accounts", meta); err != nil {
		t.Fatalf("AddTable failed: %v", err)
	}

	reloaded, err := Load(dir)
	if err != nil {
		t.Fatalf("reload Load failed: %v", err)
	}
	if len(reloaded.ListTables()) != 1 {
		t.Fatalf("expected 1 table after reload, got %d", len(reloaded.ListTables()))
	}
	got, ok := reloaded.Get("accounts")
	if !ok {
		t.Fatal("accounts missing after reload")
	}
	if got.Schema[1].Name != "email" || got.Schema[1].Type != "text" {
		t.Errorf("unexpected schema after reload: %+v", got.Schema)
	}
}

func TestCatalogFileIsAtDataDirRoot(t *testing.T) {
	dir := t.TempDir()
	cat, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cat.AddTable("t", TableMeta{BTreeOrder: 4}); err != nil {
		t.Fatalf("AddTable failed: %v", err)
	}

	want := filepath.Join(dir, "catalog.json")
	if cat.path != want {
		t.Errorf("expected catalog path %s, got %s", want, cat.path)
	}
}
