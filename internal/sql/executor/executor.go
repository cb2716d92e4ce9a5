// Package executor implements the SQL query executor.
//
// EDUCATIONAL NOTES:
// ------------------
// The executor is the component that actually runs SQL queries. It takes a
// parsed Statement and:
//  1. Resolves the table the statement targets
//  2. Picks an access path: a primary-key index lookup, a bounded index
//     range scan, or a full table scan with a row-by-row filter
//  3. Projects, orders, and limits the result rows
//
// Ours is a deliberately simple materializing executor: each statement
// pulls all of its rows at once rather than streaming, which keeps the
// access-path logic easy to follow at the cost of memory for large scans.
package executor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/oursql/oursql/internal/database"
	"github.com/oursql/oursql/internal/errs"
	"github.com/oursql/oursql/internal/sql/parser"
	"github.com/oursql/oursql/internal/table"
)

// defaultBTreeOrder is used for every CREATE TABLE's primary-key index;
// this dialect has no syntax for tuning it per table.
const defaultBTreeOrder = 4

// Result is the outcome of executing one statement: either a set of rows
// (SELECT) or a summary message with an affected-row count (everything
// else).
type Result struct {
	Columns  []string
	Rows     [][]table.Value
	RowCount int
	Message  string
}

// String formats the result as a simple boxed table, or the message for
// non-SELECT statements.
func (r *Result) String() string {
	if r.Message != "" {
		return r.Message
	}
	if len(r.Rows) == 0 {
		return "(no rows)"
	}

	widths := make([]int, len(r.Columns))
	for i, col := range r.Columns {
		widths[i] = len(col)
	}
	for _, row := range r.Rows {
		for i, val := range row {
			if len(val.String()) > widths[i] {
				widths[i] = len(val.String())
			}
		}
	}

	var sb strings.Builder
	writeRule := func() {
		sb.WriteString("+")
		for _, w := range widths {
			sb.WriteString(strings.Repeat("-", w+2))
			sb.WriteString("+")
		}
		sb.WriteString("\n")
	}

	writeRule()
	sb.WriteString("|")
	for i, col := range r.Columns {
		fmt.Fprintf(&sb, " %-*s |", widths[i], col)
	}
	sb.WriteString("\n")
	writeRule()
	for _, row := range r.Rows {
		sb.WriteString("|")
		for i, val := range row {
			fmt.Fprintf(&sb, " %-*s |", widths[i], val.String())
		}
		sb.WriteString("\n")
	}
	writeRule()
	fmt.Fprintf(&sb, "(%d rows)\n", len(r.Rows))
	return sb.String()
}

// Executor runs parsed statements against a Database.
type Executor struct {
	db *database.Database
}

// New creates an Executor over db.
func New(db *database.Database) *Executor {
	return &Executor{db: db}
}

// Execute runs stmt and returns its result.
func (e *Executor) Execute(stmt parser.Statement) (*Result, error) {
	switch s := stmt.(type) {
	case *parser.CreateTableStatement:
		return e.executeCreateTable(s)
	case *parser.DropTableStatement:
		return e.executeDropTable(s)
	case *parser.InsertStatement:
		return e.executeInsert(s)
	case *parser.SelectStatement:
		return e.executeSelect(s)
	case *parser.UpdateStatement:
		return e.executeUpdate(s)
	case *parser.DeleteStatement:
		return e.executeDelete(s)
	default:
		return nil, errs.New(errs.KindExecutionError, "unsupported statement type: %T", stmt)
	}
}

func literalToValue(lit parser.Literal) table.Value {
	switch l := lit.(type) {
	case *parser.IntegerLiteral:
		return table.IntValue(l.Value)
	case *parser.StringLiteral:
		return table.TextValue(l.Value)
	default:
		panic(fmt.Sprintf("unsupported literal type: %T", lit))
	}
}

func columnTypeLabel(t table.ColumnType) string {
	if t == table.TypeText {
		return "TEXT"
	}
	return "INT"
}

func valueTypeLabel(v table.Value) string {
	if v.IsText {
		return "TEXT"
	}
	return "INT"
}

func (e *Executor) executeCreateTable(stmt *parser.CreateTableStatement) (*Result, error) {
	columns := make([]table.Column, len(stmt.Columns))
	for i, c := range stmt.Columns {
		var ct table.ColumnType
		switch c.Type {
		case parser.ColInt:
			ct = table.TypeInt
		case parser.ColText:
			ct = table.TypeText
		default:
			return nil, errs.New(errs.KindSchemaError, "column %s: unknown type", c.Name)
		}
		columns[i] = table.Column{Name: c.Name, Type: ct}
	}

	name := stmt.Table
	if err := e.db.CreateTable(name, columns, defaultBTreeOrder); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("Table %s created", name)}, nil
}

func (e *Executor) executeDropTable(stmt *parser.DropTableStatement) (*Result, error) {
	name := stmt.Table
	if err := e.db.DropTable(name); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("Table %s dropped", name)}, nil
}

func (e *Executor) executeInsert(stmt *parser.InsertStatement) (*Result, error) {
	tbl, err := e.db.GetTable(stmt.Table)
	if err != nil {
		return nil, err
	}

	cols := tbl.Schema.Columns
	if len(stmt.Values) != len(cols) {
		return nil, errs.New(errs.KindSchemaError, "table %s: expected %d values, got %d", tbl.Name, len(cols), len(stmt.Values))
	}

	row := make(table.Row, len(cols))
	for i, lit := range stmt.Values {
		val := literalToValue(lit)
		col := cols[i]
		wantText := col.Type == table.TypeText
		if val.IsText != wantText {
			return nil, errs.New(errs.KindTypeError, "column %s: expected %s, got %s", col.Name, columnTypeLabel(col.Type), valueTypeLabel(val))
		}
		row[col.Name] = val
	}

	if err := tbl.Insert(row); err != nil {
		return nil, err
	}
	return &Result{Message: "Inserted 1 row", RowCount: 1}, nil
}

// pkEqualityValue recognizes the single pattern `pk = <int>` at the top of
// a WHERE clause: the one shape that qualifies for an index-point lookup.
func pkEqualityValue(where parser.Condition, pkCol string) (int64, bool) {
	pred, ok := where.(*parser.Pred)
	if !ok || pred.Op != parser.OpEq || pred.Column != pkCol {
		return 0, false
	}
	lit, ok := pred.Value.(*parser.IntegerLiteral)
	if !ok {
		return 0, false
	}
	return lit.Value, true
}

// pkRange recognizes `pk <op> <int> AND pk <op> <int>` where one side
// bounds from below and the other from above: the shape that qualifies
// for a bounded index range scan. Anything else, including a single
// one-sided bound, falls back to a full scan.
func pkRange(where parser.Condition, pkCol string) (lo, hi *int64, loInclusive, hiInclusive bool, ok bool) {
	and, isAnd := where.(*parser.And)
	if !isAnd || len(and.Conds) != 2 {
		return nil, nil, false, false, false
	}

	var loVal, hiVal *int64
	for _, c := range and.Conds {
		pred, isPred := c.(*parser.Pred)
		if !isPred || pred.Column != pkCol {
			return nil, nil, false, false, false
		}
		lit, isInt := pred.Value.(*parser.IntegerLiteral)
		if !isInt {
			return nil, nil, false, false, false
		}
		v := lit.Value
		switch pred.Op {
		case parser.OpGt:
			if loVal != nil {
				return nil, nil, false, false, false
			}
			loVal, loInclusive = &v, false
		case parser.OpGe:
			if loVal != nil {
				return nil, nil, false, false, false
			}
			loVal, loInclusive = &v, true
		case parser.OpLt:
			if hiVal != nil {
				return nil, nil, false, false, false
			}
			hiVal, hiInclusive = &v, false
		case parser.OpLe:
			if hiVal != nil {
				return nil, nil, false, false, false
			}
			hiVal, hiInclusive = &v, true
		default:
			return nil, nil, false, false, false
		}
	}
	if loVal == nil || hiVal == nil {
		return nil, nil, false, false, false
	}
	return loVal, hiVal, loInclusive, hiInclusive, true
}

// evalCondition walks a WHERE clause against a materialized row. A
// predicate comparing columns of different types than their literal
// excludes the row rather than erroring: `WHERE name = 5` on a TEXT
// column simply matches nothing.
func evalCondition(cond parser.Condition, row table.Row, schema *table.Schema) (bool, error) {
	switch c := cond.(type) {
	case nil:
		return true, nil
	case *parser.Pred:
		return evalPred(c, row, schema)
	case *parser.And:
		for _, sub := range c.Conds {
			match, err := evalCondition(sub, row, schema)
			if err != nil {
				return false, err
			}
			if !match {
				return false, nil
			}
		}
		return true, nil
	case *parser.Or:
		for _, sub := range c.Conds {
			match, err := evalCondition(sub, row, schema)
			if err != nil {
				return false, err
			}
			if match {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, errs.New(errs.KindExecutionError, "unsupported condition type: %T", cond)
	}
}

func evalPred(pred *parser.Pred, row table.Row, schema *table.Schema) (bool, error) {
	if _, ok := schema.ColumnIndex(pred.Column); !ok {
		return false, errs.New(errs.KindSchemaError, "unknown column %q", pred.Column)
	}
	rowVal := row[pred.Column]
	litVal := literalToValue(pred.Value)
	if rowVal.IsText != litVal.IsText {
		return false, nil
	}

	cmp := rowVal.Compare(litVal)
	switch pred.Op {
	case parser.OpEq:
		return cmp == 0, nil
	case parser.OpNeq:
		return cmp != 0, nil
	case parser.OpLt:
		return cmp < 0, nil
	case parser.OpGt:
		return cmp > 0, nil
	case parser.OpLe:
		return cmp <= 0, nil
	case parser.OpGe:
		return cmp >= 0, nil
	default:
		return false, errs.New(errs.KindExecutionError, "unsupported operator %v", pred.Op)
	}
}

// fetchRows picks the access path for where against tbl: an index point
// lookup, a bounded index range scan, or a full scan filtered in place.
func fetchRows(tbl *table.Table, where parser.Condition) ([]table.Row, error) {
	pkCol := tbl.Schema.PKColumn().Name

	if where == nil {
		return tbl.SelectAll()
	}
	if pk, ok := pkEqualityValue(where, pkCol); ok {
		row, found, err := tbl.SelectByPK(pk)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		return []table.Row{row}, nil
	}
	if lo, hi, loInc, hiInc, ok := pkRange(where, pkCol); ok {
		return tbl.RangeByPK(lo, hi, loInc, hiInc)
	}

	all, err := tbl.SelectAll()
	if err != nil {
		return nil, err
	}
	filtered := make([]table.Row, 0, len(all))
	for _, row := range all {
		match, err := evalCondition(where, row, tbl.Schema)
		if err != nil {
			return nil, err
		}
		if match {
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}

func (e *Executor) executeSelect(stmt *parser.SelectStatement) (*Result, error) {
	tbl, err := e.db.GetTable(stmt.Table)
	if err != nil {
		return nil, err
	}

	rows, err := fetchRows(tbl, stmt.Where)
	if err != nil {
		return nil, err
	}

	var columnNames []string
	if stmt.Star {
		for _, c := range tbl.Schema.Columns {
			columnNames = append(columnNames, c.Name)
		}
	} else {
		for _, name := range stmt.Columns {
			if _, ok := tbl.Schema.ColumnIndex(name); !ok {
				return nil, errs.New(errs.KindSchemaError, "unknown column %q", name)
			}
			columnNames = append(columnNames, name)
		}
	}

	if stmt.OrderBy != nil {
		ob := stmt.OrderBy
		if _, ok := tbl.Schema.ColumnIndex(ob.Column); !ok {
			return nil, errs.New(errs.KindSchemaError, "unknown ORDER BY column %q", ob.Column)
		}
		sort.SliceStable(rows, func(i, j int) bool {
			cmp := rows[i][ob.Column].Compare(rows[j][ob.Column])
			if ob.Desc {
				return cmp > 0
			}
			return cmp < 0
		})
	}

	if stmt.Limit != nil {
		limit := *stmt.Limit
		switch {
		case limit <= 0:
			rows = nil
		case int(limit) < len(rows):
			rows = rows[:limit]
		}
	}

	result := &Result{Columns: columnNames, RowCount: len(rows)}
	for _, row := range rows {
		resultRow := make([]table.Value, len(columnNames))
		for i, name := range columnNames {
			resultRow[i] = row[name]
		}
		result.Rows = append(result.Rows, resultRow)
	}
	return result, nil
}

// matchingPKs resolves the primary keys of every row where selects,
// using the same access-path rules as a SELECT.
func matchingPKs(tbl *table.Table, where parser.Condition) ([]int64, error) {
	rows, err := fetchRows(tbl, where)
	if err != nil {
		return nil, err
	}
	pkName := tbl.Schema.PKColumn().Name
	pks := make([]int64, len(rows))
	for i, row := range rows {
		pks[i] = row[pkName].Integer
	}
	return pks, nil
}

func (e *Executor) executeUpdate(stmt *parser.UpdateStatement) (*Result, error) {
	tbl, err := e.db.GetTable(stmt.Table)
	if err != nil {
		return nil, err
	}

	pks, err := matchingPKs(tbl, stmt.Where)
	if err != nil {
		return nil, err
	}

	changes := make(map[string]table.Value, len(stmt.Assignments))
	for _, a := range stmt.Assignments {
		idx, ok := tbl.Schema.ColumnIndex(a.Column)
		if !ok {
			return nil, errs.New(errs.KindSchemaError, "unknown column %q", a.Column)
		}
		val := literalToValue(a.Value)
		col := tbl.Schema.Columns[idx]
		wantText := col.Type == table.TypeText
		if val.IsText != wantText {
			return nil, errs.New(errs.KindTypeError, "column %s: expected %s, got %s", col.Name, columnTypeLabel(col.Type), valueTypeLabel(val))
		}
		changes[a.Column] = val
	}

	updated := 0
	for _, pk := range pks {
		ok, err := tbl.UpdateByPK(pk, changes)
		if err != nil {
			return nil, err
		}
		if ok {
			updated++
		}
	}
	return &Result{Message: fmt.Sprintf("Updated %d rows", updated), RowCount: updated}, nil
}

func (e *Executor) executeDelete(stmt *parser.DeleteStatement) (*Result, error) {
	tbl, err := e.db.GetTable(stmt.Table)
	if err != nil {
		return nil, err
	}

	pks, err := matchingPKs(tbl, stmt.Where)
	if err != nil {
		return nil, err
	}

	deleted := 0
	for _, pk := range pks {
		ok, err := tbl.DeleteByPK(pk)
		if err != nil {
			return nil, err
		}
		if ok {
			deleted++
		}
	}
	return &Result{Message: fmt.Sprintf("Deleted %d rows", deleted), RowCount: deleted}, nil
}
