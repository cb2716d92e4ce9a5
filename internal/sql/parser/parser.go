// Package parser - recursive-descent SQL parser.
//
// EDUCATIONAL NOTES:
// ------------------
// The parser consumes the lexer's token stream and builds the AST
// defined in ast.go. Each grammar production gets its own function;
// parseCondition/parseAndCond encode AND-binds-tighter-than-OR directly
// in the call structure rather than through a precedence table, since
// the WHERE grammar here has exactly two levels.
package parser

import (
	"strconv"

	"github.com/oursql/oursql/internal/errs"
	"github.com/oursql/oursql/internal/sql/lexer"
)

// Parser holds a token stream and the current read position.
type Parser struct {
	toks []lexer.Token
	pos  int
}

// New creates a Parser over a pre-tokenized stream. toks must end with a
// TokenEOF, as lexer.Tokenize guarantees.
func New(toks []lexer.Token) *Parser {
	return &Parser{toks: toks}
}

// Parse tokenizes and parses a single SQL statement, optionally
// terminated by ';'. Trailing tokens after the statement are an error.
func Parse(input string) (Statement, error) {
	toks, err := lexer.Tokenize(input)
	if err != nil {
		return nil, err
	}
	p := New(toks)
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if p.curIsSymbol(";") {
		p.advance()
	}
	if p.cur().Type != lexer.TokenEOF {
		return nil, p.unexpectedToken()
	}
	return stmt, nil
}

func (p *Parser) cur() lexer.Token {
	return p.toks[p.pos]
}

func (p *Parser) advance() lexer.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) curIsKeyword(name string) bool {
	c := p.cur()
	return c.Type == lexer.TokenKeyword && c.Literal == name
}

func (p *Parser) curIsSymbol(sym string) bool {
	c := p.cur()
	return c.Type == lexer.TokenSymbol && c.Literal == sym
}

// unexpectedToken distinguishes the two parser error subtypes named by
// the dialect: running out of input, versus an unexpected token.
func (p *Parser) unexpectedToken() error {
	c := p.cur()
	if c.Type == lexer.TokenEOF {
		return errs.New(errs.KindParseError, "UnexpectedEof: statement ended unexpectedly")
	}
	return errs.New(errs.KindParseError, "UnexpectedToken: unexpected %q at line %d, column %d", c.Literal, c.Line, c.Column)
}

func (p *Parser) expectKeyword(name string) error {
	if !p.curIsKeyword(name) {
		return p.unexpectedToken()
	}
	p.advance()
	return nil
}

func (p *Parser) expectSymbol(sym string) error {
	if !p.curIsSymbol(sym) {
		return p.unexpectedToken()
	}
	p.advance()
	return nil
}

func (p *Parser) expectIdent() (string, error) {
	if p.cur().Type != lexer.TokenIdent {
		return "", p.unexpectedToken()
	}
	return p.advance().Literal, nil
}

func (p *Parser) expectNumber() (int64, error) {
	if p.cur().Type != lexer.TokenNumber {
		return 0, p.unexpectedToken()
	}
	lit := p.advance().Literal
	n, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		return 0, errs.New(errs.KindParseError, "invalid integer %q", lit)
	}
	return n, nil
}

func (p *Parser) parseStatement() (Statement, error) {
	switch {
	case p.curIsKeyword("SELECT"):
		return p.parseSelect()
	case p.curIsKeyword("INSERT"):
		return p.parseInsert()
	case p.curIsKeyword("UPDATE"):
		return p.parseUpdate()
	case p.curIsKeyword("DELETE"):
		return p.parseDelete()
	case p.curIsKeyword("CREATE"):
		return p.parseCreate()
	case p.curIsKeyword("DROP"):
		return p.parseDrop()
	default:
		return nil, p.unexpectedToken()
	}
}

// parseSelect: SELECT (* | ident (',' ident)*) FROM ident
//
//	[WHERE condition] [ORDER BY ident [ASC|DESC]] [LIMIT NUMBER]
func (p *Parser) parseSelect() (*SelectStatement, error) {
	p.advance() // SELECT
	stmt := &SelectStatement{}

	if p.curIsSymbol("*") {
		p.advance()
		stmt.Star = true
	} else {
		for {
			col, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, col)
			if !p.curIsSymbol(",") {
				break
			}
			p.advance()
		}
	}

	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	stmt.Table = table

	if p.curIsKeyword("WHERE") {
		p.advance()
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		stmt.Where = cond
	}

	if p.curIsKeyword("ORDER") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		col, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		ob := &OrderBy{Column: col}
		if p.curIsKeyword("ASC") {
			p.advance()
		} else if p.curIsKeyword("DESC") {
			p.advance()
			ob.Desc = true
		}
		stmt.OrderBy = ob
	}

	if p.curIsKeyword("LIMIT") {
		p.advance()
		n, err := p.expectNumber()
		if err != nil {
			return nil, err
		}
		stmt.Limit = &n
	}

	return stmt, nil
}

// parseInsert: INSERT INTO ident VALUES '(' literal (',' literal)* ')'
func (p *Parser) parseInsert() (*InsertStatement, error) {
	p.advance() // INSERT
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}

	var values []Literal
	for {
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		values = append(values, lit)
		if !p.curIsSymbol(",") {
			break
		}
		p.advance()
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}

	return &InsertStatement{Table: table, Values: values}, nil
}

// parseUpdate: UPDATE ident SET ident '=' literal (',' ident '=' literal)*
//
//	[WHERE condition]
func (p *Parser) parseUpdate() (*UpdateStatement, error) {
	p.advance() // UPDATE
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}

	var assignments []Assignment
	for {
		col, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol("="); err != nil {
			return nil, err
		}
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, Assignment{Column: col, Value: lit})
		if !p.curIsSymbol(",") {
			break
		}
		p.advance()
	}

	stmt := &UpdateStatement{Table: table, Assignments: assignments}
	if p.curIsKeyword("WHERE") {
		p.advance()
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		stmt.Where = cond
	}
	return stmt, nil
}

// parseDelete: DELETE FROM ident [WHERE condition]
func (p *Parser) parseDelete() (*DeleteStatement, error) {
	p.advance() // DELETE
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	stmt := &DeleteStatement{Table: table}
	if p.curIsKeyword("WHERE") {
		p.advance()
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		stmt.Where = cond
	}
	return stmt, nil
}

// parseCreate: CREATE TABLE ident '(' coldef (',' coldef)* ')'
// coldef := ident (INT|TEXT)
func (p *Parser) parseCreate() (*CreateTableStatement, error) {
	p.advance() // CREATE
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}

	var columns []ColumnDef
	for {
		colName, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		colType, err := p.parseColumnType()
		if err != nil {
			return nil, err
		}
		columns = append(columns, ColumnDef{Name: colName, Type: colType})
		if !p.curIsSymbol(",") {
			break
		}
		p.advance()
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}

	return &CreateTableStatement{Table: name, Columns: columns}, nil
}

func (p *Parser) parseColumnType() (ColumnType, error) {
	switch {
	case p.curIsKeyword("INT"):
		p.advance()
		return ColInt, nil
	case p.curIsKeyword("TEXT"):
		p.advance()
		return ColText, nil
	default:
		return 0, p.unexpectedToken()
	}
}

// parseDrop: DROP TABLE ident
func (p *Parser) parseDrop() (*DropTableStatement, error) {
	p.advance() // DROP
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return &DropTableStatement{Table: name}, nil
}

// parseCondition: and_cond (OR and_cond)*
func (p *Parser) parseCondition() (Condition, error) {
	first, err := p.parseAndCond()
	if err != nil {
		return nil, err
	}
	conds := []Condition{first}
	for p.curIsKeyword("OR") {
		p.advance()
		next, err := p.parseAndCond()
		if err != nil {
			return nil, err
		}
		conds = append(conds, next)
	}
	if len(conds) == 1 {
		return conds[0], nil
	}
	return &Or{Conds: conds}, nil
}

// parseAndCond: predicate (AND predicate)*
func (p *Parser) parseAndCond() (Condition, error) {
	first, err := p.parsePredicate()
	if err != nil {
		return nil, err
	}
	conds := []Condition{first}
	for p.curIsKeyword("AND") {
		p.advance()
		next, err := p.parsePredicate()
		if err != nil {
			return nil, err
		}
		conds = append(conds, next)
	}
	if len(conds) == 1 {
		return conds[0], nil
	}
	return &And{Conds: conds}, nil
}

// parsePredicate: ident op literal
func (p *Parser) parsePredicate() (Condition, error) {
	col, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	op, err := p.parseOperator()
	if err != nil {
		return nil, err
	}
	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	return &Pred{Column: col, Op: op, Value: lit}, nil
}

func (p *Parser) parseOperator() (Operator, error) {
	c := p.cur()
	if c.Type != lexer.TokenSymbol {
		return 0, p.unexpectedToken()
	}
	switch c.Literal {
	case "=":
		p.advance()
		return OpEq, nil
	case "!=", "<>":
		p.advance()
		return OpNeq, nil
	case "<":
		p.advance()
		return OpLt, nil
	case ">":
		p.advance()
		return OpGt, nil
	case "<=":
		p.advance()
		return OpLe, nil
	case ">=":
		p.advance()
		return OpGe, nil
	default:
		return 0, p.unexpectedToken()
	}
}

func (p *Parser) parseLiteral() (Literal, error) {
	switch p.cur().Type {
	case lexer.TokenNumber:
		lit := p.advance().Literal
		n, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			return nil, errs.New(errs.KindParseError, "invalid integer %q", lit)
		}
		return &IntegerLiteral{Value: n}, nil
	case lexer.TokenString:
		return &StringLiteral{Value: p.advance().Literal}, nil
	default:
		return nil, p.unexpectedToken()
	}
}
