// Package database owns the catalog and the set of open tables for one
// data directory, and is the unit of lifecycle management: opening,
// creating/dropping tables, and closing.
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/oursql/oursql/internal/catalog"
	"github.com/oursql/oursql/internal/errs"
	"github.com/oursql/oursql/internal/storage"
	"github.com/oursql/oursql/internal/table"
)

const (
	heapFileName = "heap.db"
	pkFileName   = "pk.idx"
)

// Database owns the Catalog and a map of open Tables. Tables are opened
// lazily on first use and stay open until Close or DropTable.
type Database struct {
	dataDir string
	cat     *catalog.Catalog

	mu     sync.Mutex
	tables map[string]*table.Table
}

// Open loads (or initializes) the catalog at dataDir. No table files are
// opened yet; GetTable opens them lazily.
func Open(dataDir string) (*Database, error) {
	cat, err := catalog.Load(dataDir)
	if err != nil {
		return nil, err
	}
	return &Database{
		dataDir: dataDir,
		cat:     cat,
		tables:  make(map[string]*table.Table),
	}, nil
}

func tableDir(dataDir, name string) string {
	return filepath.Join(dataDir, name)
}

func columnsToDefs(columns []table.Column) []catalog.ColumnDef {
	defs := make([]catalog.ColumnDef, len(columns))
	for i, c := range columns {
		defs[i] = catalog.ColumnDef{Name: c.Name, Type: typeName(c.Type)}
	}
	return defs
}

func defsToColumns(defs []catalog.ColumnDef) ([]table.Column, error) {
	columns := make([]table.Column, len(defs))
	for i, d := range defs {
		ct, err := parseTypeName(d.Type)
		if err != nil {
			return nil, err
		}
		columns[i] = table.Column{Name: d.Name, Type: ct}
	}
	return columns, nil
}

func typeName(t table.ColumnType) string {
	if t == table.TypeText {
		return "text"
	}
	return "int"
}

func parseTypeName(s string) (table.ColumnType, error) {
	switch s {
	case "int":
		return table.TypeInt, nil
	case "text":
		return table.TypeText, nil
	default:
		return 0, errs.New(errs.KindSchemaError, "unknown column type %q in catalog", s)
	}
}

// CreateTable registers a new table with the given columns and B+Tree
// order, and opens fresh heap and index files for it. Fails with
// TableExists if name is already registered. Any files created before a
// failure are removed so a failed DDL never leaves partial state behind.
func (d *Database) CreateTable(name string, columns []table.Column, order int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cat.Has(name) {
		return errs.New(errs.KindTableExists, "table %s already exists", name)
	}

	dir := tableDir(d.dataDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errs.Wrap(errs.KindIoError, err, "create table directory %s", dir)
	}

	heapPager, err := storage.NewPager(filepath.Join(dir, heapFileName))
	if err != nil {
		os.RemoveAll(dir)
		return err
	}
	pkPager, err := storage.NewPager(filepath.Join(dir, pkFileName))
	if err != nil {
		heapPager.Close()
		os.RemoveAll(dir)
		return err
	}

	schema := table.NewSchema(columns)
	tbl, err := table.New(name, schema, heapPager, pkPager, order)
	if err != nil {
		heapPager.Close()
		pkPager.Close()
		os.RemoveAll(dir)
		return err
	}

	meta := catalog.TableMeta{Schema: columnsToDefs(columns), BTreeOrder: order}
	if err := d.cat.AddTable(name, meta); err != nil {
		tbl.Close()
		os.RemoveAll(dir)
		return err
	}

	d.tables[name] = tbl
	return nil
}

// GetTable returns the table registered as name, opening its files on
// first use. Fails with NoSuchTable if name is not registered.
func (d *Database) GetTable(name string) (*table.Table, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.getTableLocked(name)
}

func (d *Database) getTableLocked(name string) (*table.Table, error) {
	if tbl, ok := d.tables[name]; ok {
		return tbl, nil
	}

	meta, ok := d.cat.Get(name)
	if !ok {
		return nil, errs.New(errs.KindNoSuchTable, "no such table %s", name)
	}
	columns, err := defsToColumns(meta.Schema)
	if err != nil {
		return nil, err
	}

	dir := tableDir(d.dataDir, name)
	heapPager, err := storage.NewPager(filepath.Join(dir, heapFileName))
	if err != nil {
		return nil, err
	}
	pkPager, err := storage.NewPager(filepath.Join(dir, pkFileName))
	if err != nil {
		heapPager.Close()
		return nil, err
	}

	tbl, err := table.Load(name, table.NewSchema(columns), heapPager, pkPager)
	if err != nil {
		heapPager.Close()
		pkPager.Close()
		return nil, err
	}

	d.tables[name] = tbl
	return tbl, nil
}

// DropTable closes name's table (if open), deletes its files, and
// removes it from the catalog. Fails with NoSuchTable if name is not
// registered.
func (d *Database) DropTable(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.cat.Has(name) {
		return errs.New(errs.KindNoSuchTable, "no such table %s", name)
	}
	if tbl, ok := d.tables[name]; ok {
		if err := tbl.Close(); err != nil {
			return err
		}
		delete(d.tables, name)
	}
	if err := d.cat.RemoveTable(name); err != nil {
		return err
	}
	if err := os.RemoveAll(tableDir(d.dataDir, name)); err != nil {
		return errs.Wrap(errs.KindIoError, err, "remove table directory for %s", name)
	}
	return nil
}

// ListTables returns every registered table name.
func (d *Database) ListTables() []string {
	return d.cat.ListTables()
}

// Flush forces every open table's pages to durable storage. The catalog
// itself needs no flush: Save writes it atomically on every DDL call.
func (d *Database) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for name, tbl := range d.tables {
		if err := tbl.Flush(); err != nil {
			return fmt.Errorf("flushing table %s: %w", name, err)
		}
	}
	return nil
}

// Close closes every open table. It returns the first error encountered
// but still attempts to close the rest.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	for name, tbl := range d.tables {
		if err := tbl.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing table %s: %w", name, err)
		}
		delete(d.tables, name)
	}
	return firstErr
}
