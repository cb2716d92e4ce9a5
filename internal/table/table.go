// Package table implements table storage and row operations.
//
// EDUCATIONAL NOTES:
// ------------------
// A table composes exactly two storage structures: a HeapFile holding row
// payloads, and a PageBTree indexing the table's primary key. Every
// operation here is a small orchestration of those two pieces — the hard
// invariants (page layout, split/merge, tombstoning) live in
// internal/storage, not here.
//
// The first column of a table is always its primary key: this dialect has
// no PRIMARY KEY clause, so "column zero is the key" is the whole rule.
package table

import (
	"fmt"

	"github.com/oursql/oursql/internal/errs"
	"github.com/oursql/oursql/internal/storage"
)

// ColumnType is one of the two value domains this engine supports.
type ColumnType int

const (
	TypeInt ColumnType = iota
	TypeText
)

func (t ColumnType) String() string {
	if t == TypeText {
		return "TEXT"
	}
	return "INT"
}

// Value is a tagged-sum cell value: either an int64 or UTF-8 text. There
// is no NULL in this engine's value domain.
type Value struct {
	IsText  bool
	Integer int64
	Text    string
}

// IntValue constructs an integer Value.
func IntValue(i int64) Value { return Value{Integer: i} }

// TextValue constructs a text Value.
func TextValue(s string) Value { return Value{IsText: true, Text: s} }

func (v Value) String() string {
	if v.IsText {
		return v.Text
	}
	return fmt.Sprintf("%d", v.Integer)
}

// Compare orders two values of the same type: integers numerically, text
// lexicographically by UTF-8 code unit. Comparing across types is
// undefined and callers must not do it (the executor's evalPred excludes
// the row on a cross-type comparison before calling this).
func (v Value) Compare(other Value) int {
	if v.IsText {
		switch {
		case v.Text < other.Text:
			return -1
		case v.Text > other.Text:
			return 1
		default:
			return 0
		}
	}
	switch {
	case v.Integer < other.Integer:
		return -1
	case v.Integer > other.Integer:
		return 1
	default:
		return 0
	}
}

// Row is an ordered-by-schema mapping from column name to value. Go maps
// have no intrinsic order; callers that need column order always iterate
// Schema.Columns, never the map directly.
type Row map[string]Value

// Column is one column's name and declared type.
type Column struct {
	Name string
	Type ColumnType
}

// Schema is the ordered, immutable column list of a table. Column 0 is
// always the primary key.
type Schema struct {
	Columns []Column
	lookup  map[string]int
}

// NewSchema builds a Schema from an ordered column list.
func NewSchema(columns []Column) *Schema {
	s := &Schema{
		Columns: columns,
		lookup:  make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		s.lookup[c.Name] = i
	}
	return s
}

// ColumnIndex returns the position of name in the schema.
func (s *Schema) ColumnIndex(name string) (int, bool) {
	i, ok := s.lookup[name]
	return i, ok
}

// PKColumn returns the primary key column: always column 0.
func (s *Schema) PKColumn() Column {
	return s.Columns[0]
}

// Table composes one HeapFile and one PageBTree to provide
// primary-key-indexed CRUD and range scan over a single table.
type Table struct {
	Name   string
	Schema *Schema

	heapPager *storage.Pager
	pkPager   *storage.Pager
	heap      *storage.HeapFile
	pk        *storage.PageBTree
}

// New creates a table backed by fresh heap and index files.
func New(name string, schema *Schema, heapPager, pkPager *storage.Pager, order int) (*Table, error) {
	pk, err := storage.NewPageBTree(pkPager, order)
	if err != nil {
		return nil, err
	}
	return &Table{
		Name:      name,
		Schema:    schema,
		heapPager: heapPager,
		pkPager:   pkPager,
		heap:      storage.NewHeapFile(heapPager),
		pk:        pk,
	}, nil
}

// Load reopens a table over existing heap and index files.
func Load(name string, schema *Schema, heapPager, pkPager *storage.Pager) (*Table, error) {
	pk, err := storage.LoadPageBTree(pkPager)
	if err != nil {
		return nil, err
	}
	return &Table{
		Name:      name,
		Schema:    schema,
		heapPager: heapPager,
		pkPager:   pkPager,
		heap:      storage.NewHeapFile(heapPager),
		pk:        pk,
	}, nil
}

// Close closes the table's heap and index files.
func (t *Table) Close() error {
	if err := t.heapPager.Close(); err != nil {
		return err
	}
	return t.pkPager.Close()
}

// Flush forces the table's heap and index pages to durable storage
// without closing the underlying files.
func (t *Table) Flush() error {
	if err := t.heapPager.Flush(); err != nil {
		return err
	}
	return t.pkPager.Flush()
}

func (t *Table) validate(row Row) error {
	if len(row) != len(t.Schema.Columns) {
		return errs.New(errs.KindSchemaError, "table %s: expected %d columns, got %d", t.Name, len(t.Schema.Columns), len(row))
	}
	for _, col := range t.Schema.Columns {
		v, ok := row[col.Name]
		if !ok {
			return errs.New(errs.KindSchemaError, "table %s: missing column %s", t.Name, col.Name)
		}
		if col.Type == TypeText && !v.IsText {
			return errs.New(errs.KindTypeError, "column %s expects TEXT", col.Name)
		}
		if col.Type == TypeInt && v.IsText {
			return errs.New(errs.KindTypeError, "column %s expects INT", col.Name)
		}
	}
	return nil
}

func rowToMap(schema *Schema, row Row) map[string]any {
	m := make(map[string]any, len(schema.Columns))
	for _, col := range schema.Columns {
		v := row[col.Name]
		if col.Type == TypeText {
			m[col.Name] = v.Text
		} else {
			m[col.Name] = v.Integer
		}
	}
	return m
}

// mapToRow decodes a HeapFile payload back into a Row. Payloads round
// trip through JSON, so integers surface as float64 in the generic map;
// a fresh in-memory map (not yet round-tripped) may still carry int64.
func mapToRow(schema *Schema, m map[string]any) (Row, error) {
	row := make(Row, len(schema.Columns))
	for _, col := range schema.Columns {
		raw, ok := m[col.Name]
		if !ok {
			return nil, errs.New(errs.KindSchemaError, "stored row missing column %s", col.Name)
		}
		switch col.Type {
		case TypeInt:
			switch n := raw.(type) {
			case float64:
				row[col.Name] = IntValue(int64(n))
			case int64:
				row[col.Name] = IntValue(n)
			default:
				return nil, errs.New(errs.KindTypeError, "column %s: stored value is not numeric", col.Name)
			}
		case TypeText:
			s, ok := raw.(string)
			if !ok {
				return nil, errs.New(errs.KindTypeError, "column %s: stored value is not text", col.Name)
			}
			row[col.Name] = TextValue(s)
		}
	}
	return row, nil
}

func (t *Table) pkValue(row Row) int64 {
	return row[t.Schema.PKColumn().Name].Integer
}

// Insert validates row against the schema, stores it in the heap, and
// indexes it by primary key. If the index insert fails (DuplicateKey),
// the heap insert is compensated so no orphan row survives.
func (t *Table) Insert(row Row) error {
	if err := t.validate(row); err != nil {
		return err
	}
	pk := t.pkValue(row)

	rid, err := t.heap.Insert(rowToMap(t.Schema, row))
	if err != nil {
		return err
	}
	if err := t.pk.Insert(pk, rid); err != nil {
		_ = t.heap.Delete(rid) // compensate: don't leave an orphan heap row
		return err
	}
	return nil
}

// SelectByPK returns the row with the given primary key, or ok=false if
// none exists.
func (t *Table) SelectByPK(pk int64) (Row, bool, error) {
	rid, ok, err := t.pk.Search(pk)
	if err != nil || !ok {
		return nil, ok, err
	}
	m, err := t.heap.Get(rid)
	if err != nil {
		return nil, false, err
	}
	row, err := mapToRow(t.Schema, m)
	return row, true, err
}

// SelectAll returns every row in insertion-page order (not pk order).
func (t *Table) SelectAll() ([]Row, error) {
	var rows []Row
	err := t.heap.Scan(func(_ storage.RID, m map[string]any) error {
		row, err := mapToRow(t.Schema, m)
		if err != nil {
			return err
		}
		rows = append(rows, row)
		return nil
	})
	return rows, err
}

// RangeByPK returns rows whose primary key falls within [lo, hi] per the
// given inclusive flags, in ascending pk order. Rows whose heap lookup
// fails are skipped defensively rather than causing a crash.
func (t *Table) RangeByPK(lo, hi *int64, loInclusive, hiInclusive bool) ([]Row, error) {
	_, rids, err := t.pk.RangeScan(lo, hi, loInclusive, hiInclusive)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(rids))
	for _, rid := range rids {
		m, err := t.heap.Get(rid)
		if err != nil {
			continue
		}
		row, err := mapToRow(t.Schema, m)
		if err != nil {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// UpdateByPK merges changes into the row with primary key pk. Unknown
// columns fail with SchemaError; attempting to change the primary key
// column fails with PkImmutable. Returns updated=false if no row has
// that pk.
func (t *Table) UpdateByPK(pk int64, changes map[string]Value) (bool, error) {
	rid, ok, err := t.pk.Search(pk)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	m, err := t.heap.Get(rid)
	if err != nil {
		return false, err
	}
	row, err := mapToRow(t.Schema, m)
	if err != nil {
		return false, err
	}

	pkName := t.Schema.PKColumn().Name
	for col, v := range changes {
		idx, ok := t.Schema.ColumnIndex(col)
		if !ok {
			return false, errs.New(errs.KindSchemaError, "table %s: unknown column %s", t.Name, col)
		}
		if col == pkName {
			return false, errs.New(errs.KindPkImmutable, "table %s: cannot modify primary key column %s", t.Name, col)
		}
		wantText := t.Schema.Columns[idx].Type == TypeText
		if v.IsText != wantText {
			return false, errs.New(errs.KindTypeError, "column %s: wrong value type", col)
		}
		row[col] = v
	}

	if err := t.heap.Update(rid, rowToMap(t.Schema, row)); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteByPK removes the row with primary key pk, index entry first, then
// heap entry, so a partial failure leaves the heap entry unreachable but
// not corrupt. Returns deleted=false if no row has that pk.
func (t *Table) DeleteByPK(pk int64) (bool, error) {
	rid, ok, err := t.pk.Search(pk)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := t.pk.Delete(pk); err != nil {
		return false, err
	}
	if err := t.heap.Delete(rid); err != nil {
		return false, err
	}
	return true, nil
}
