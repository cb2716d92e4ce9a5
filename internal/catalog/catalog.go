// Package catalog manages the database catalog: metadata about which
// tables exist and their schemas.
//
// EDUCATIONAL NOTES:
// ------------------
// Every database has a "catalog" or "system tables" that store metadata:
// what tables exist, what columns each table has, and column types. In
// production databases like PostgreSQL, this lives in special system
// tables (pg_class, pg_attribute, …). SQLite stores it in sqlite_master.
//
// This engine keeps things didactic: the whole catalog is one JSON
// document at `<data_dir>/catalog.json`, written atomically (temp file
// then rename) so a crash mid-write never leaves a half-written catalog
// behind.
package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/oursql/oursql/internal/errs"
)

// ColumnDef is one column's persisted metadata: its name and its type,
// spelled the way catalog.json spells it ("int" or "text").
type ColumnDef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableMeta is one table's persisted metadata.
type TableMeta struct {
	Schema     []ColumnDef `json:"schema"`
	BTreeOrder int         `json:"btree_order"`
}

type document struct {
	Tables map[string]TableMeta `json:"tables"`
}

// Catalog is the single source of truth for which tables exist. It is
// held entirely in memory between Load and Save calls.
type Catalog struct {
	path string
	mu   sync.RWMutex
	doc  document
}

// Load reads catalog.json from dataDir. A missing file is treated as an
// empty catalog, per spec: "Missing catalog = empty catalog on first
// open."
func Load(dataDir string) (*Catalog, error) {
	path := filepath.Join(dataDir, "catalog.json")
	c := &Catalog{path: path, doc: document{Tables: make(map[string]TableMeta)}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindIoError, err, "read catalog %s", path)
	}

	if err := json.Unmarshal(data, &c.doc); err != nil {
		return nil, errs.Wrap(errs.KindIoError, err, "parse catalog %s", path)
	}
	if c.doc.Tables == nil {
		c.doc.Tables = make(map[string]TableMeta)
	}
	return c, nil
}

// Save persists the catalog atomically: write to a temp file in the same
// directory, then rename over the destination.
func (c *Catalog) Save() error {
	c.mu.RLock()
	data, err := json.MarshalIndent(c.doc, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return errs.Wrap(errs.KindIoError, err, "encode catalog")
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errs.Wrap(errs.KindIoError, err, "create data dir %s", dir)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errs.Wrap(errs.KindIoError, err, "write temp catalog %s", tmp)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return errs.Wrap(errs.KindIoError, err, "rename catalog into place")
	}
	return nil
}

// AddTable registers meta under name and saves the catalog.
func (c *Catalog) AddTable(name string, meta TableMeta) error {
	c.mu.Lock()
	c.doc.Tables[name] = meta
	c.mu.Unlock()
	return c.Save()
}

// RemoveTable deletes name's entry and saves the catalog.
func (c *Catalog) RemoveTable(name string) error {
	c.mu.Lock()
	delete(c.doc.Tables, name)
	c.mu.Unlock()
	return c.Save()
}

// Get returns name's metadata, or ok=false if no such table is
// registered.
func (c *Catalog) Get(name string) (TableMeta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.doc.Tables[name]
	return meta, ok
}

// Has reports whether name is registered.
func (c *Catalog) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

// ListTables returns every registered table name, in no particular
// order.
func (c *Catalog) ListTables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.doc.Tables))
	for name := range c.doc.Tables {
		names = append(names, name)
	}
	return names
}
