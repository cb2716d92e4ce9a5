package lexer

import (
	"testing"

	"github.com/oursql/oursql/internal/errs"
)

func mustTokenize(t *testing.T, input string) []Token {
	t.Helper()
	toks, err := Tokenize(input)
	if err != nil {
		t.Fatalf("Tokenize(%q) failed: %v", input, err)
	}
	return toks
}

func TestLexerBasicTokens(t *testing.T) {
	tokens := mustTokenize(t, "SELECT * FROM users")

	expected := []struct {
		tokenType TokenType
		literal   string
	}{
		{TokenKeyword, "SELECT"},
		{TokenSymbol, "*"},
		{TokenKeyword, "FROM"},
		{TokenIdent, "users"},
		{TokenEOF, ""},
	}

	if len(tokens) != len(expected) {
		t.Fatalf("expected %d tokens, got %d", len(expected), len(tokens))
	}
	for i, exp := range expected {
		if tokens[i].Type != exp.tokenType || tokens[i].Literal != exp.literal {
			t.Errorf("token %d: expected {%v %q}, got {%v %q}", i, exp.tokenType, exp.literal, tokens[i].Type, tokens[i].Literal)
		}
	}
}

func TestLexerComplexQuery(t *testing.T) {
	tokens := mustTokenize(t, "SELECT name, age FROM users WHERE age >= 18 AND name != 'admin'")

	expected := []TokenType{
		TokenKeyword,
		TokenIdent, TokenSymbol, TokenIdent,
		TokenKeyword,
		TokenIdent,
		TokenKeyword,
		TokenIdent, TokenSymbol, TokenNumber,
		TokenKeyword,
		TokenIdent, TokenSymbol, TokenString,
		TokenEOF,
	}
	if len(tokens) != len(expected) {
		t.Fatalf("expected %d tokens, got %d", len(expected), len(tokens))
	}
	for i, exp := range expected {
		if tokens[i].Type != exp {
			t.Errorf("token %d: expected type %v, got %v (literal %q)", i, exp, tokens[i].Type, tokens[i].Literal)
		}
	}
}

func TestLexerCreateTable(t *testing.T) {
	tokens := mustTokenize(t, "CREATE TABLE users (id INT, name TEXT)")

	expected := []TokenType{
		TokenKeyword, TokenKeyword, TokenIdent, TokenSymbol,
		TokenIdent, TokenKeyword, TokenSymbol,
		TokenIdent, TokenKeyword,
		TokenSymbol, TokenEOF,
	}
	if len(tokens) != len(expected) {
		t.Fatalf("expected %d tokens, got %d: %v", len(expected), len(tokens), tokens)
	}
	for i, exp := range expected {
		if tokens[i].Type != exp {
			t.Errorf("token %d: expected type %v, got %v (literal %q)", i, exp, tokens[i].Type, tokens[i].Literal)
		}
	}
}

func TestLexerInsert(t *testing.T) {
	tokens := mustTokenize(t, "INSERT INTO users VALUES ('Alice', 30)")

	expected := []TokenType{
		TokenKeyword, TokenKeyword, TokenIdent, TokenKeyword,
		TokenSymbol, TokenString, TokenSymbol, TokenNumber, TokenSymbol,
		TokenEOF,
	}
	if len(tokens) != len(expected) {
		t.Fatalf("expected %d tokens, got %d: %v", len(expected), len(tokens), tokens)
	}
	for i, exp := range expected {
		if tokens[i].Type != exp {
			t.Errorf("token %d: expected type %v, got %v (literal %q)", i, exp, tokens[i].Type, tokens[i].Literal)
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input   string
		literal string
	}{
		{"123", "123"},
		{"-42", "-42"},
		{"0", "0"},
	}
	for _, tt := range tests {
		l := New(tt.input)
		tok, err := l.NextToken()
		if err != nil {
			t.Fatalf("NextToken(%q) failed: %v", tt.input, err)
		}
		if tok.Type != TokenNumber {
			t.Errorf("expected NUMBER for %q, got %v", tt.input, tok.Type)
		}
		if tok.Literal != tt.literal {
			t.Errorf("expected literal %q, got %q", tt.literal, tok.Literal)
		}
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"'hello'", "hello"},
		{"'world'", "world"},
		{"'it''s'", "it's"},
	}
	for _, tt := range tests {
		l := New(tt.input)
		tok, err := l.NextToken()
		if err != nil {
			t.Fatalf("NextToken(%q) failed: %v", tt.input, err)
		}
		if tok.Type != TokenString {
			t.Errorf("expected STRING for %q, got %v", tt.input, tok.Type)
		}
		if tok.Literal != tt.expected {
			t.Errorf("expected literal %q, got %q", tt.expected, tok.Literal)
		}
	}
}

func TestLexerUnterminatedStringIsLexError(t *testing.T) {
	_, err := Tokenize("'oops")
	if !errs.Of(err, errs.KindLexError) {
		t.Errorf("expected LexError, got %v", err)
	}
}

func TestLexerIllegalCharacterIsLexError(t *testing.T) {
	_, err := Tokenize("SELECT # FROM t")
	if !errs.Of(err, errs.KindLexError) {
		t.Errorf("expected LexError, got %v", err)
	}
}

func TestLexerOperators(t *testing.T) {
	tokens := mustTokenize(t, "= != <> < > <= >= ( ) , * ;")
	expectedLiterals := []string{"=", "!=", "<>", "<", ">", "<=", ">=", "(", ")", ",", "*", ";", ""}
	if len(tokens) != len(expectedLiterals) {
		t.Fatalf("expected %d tokens, got %d", len(expectedLiterals), len(tokens))
	}
	for i, lit := range expectedLiterals {
		if tokens[i].Literal != lit {
			t.Errorf("token %d: expected literal %q, got %q", i, lit, tokens[i].Literal)
		}
	}
}

func TestLexerComment(t *testing.T) {
	tokens := mustTokenize(t, "SELECT * FROM t -- trailing comment\nWHERE id = 1")
	if tokens[0].Type != TokenKeyword || tokens[0].Literal != "SELECT" {
		t.Fatalf("unexpected first token: %+v", tokens[0])
	}
	found := false
	for _, tok := range tokens {
		if tok.Type == TokenKeyword && tok.Literal == "WHERE" {
			found = true
		}
	}
	if !found {
		t.Error("expected WHERE keyword after comment line")
	}
}

func TestLexerPositionTracking(t *testing.T) {
	l := New("SELECT\nid")

	tok, err := l.NextToken()
	if err != nil {
		t.Fatalf("NextToken failed: %v", err)
	}
	if tok.Line != 1 {
		t.Errorf("SELECT should be on line 1, got %d", tok.Line)
	}

	tok, err = l.NextToken()
	if err != nil {
		t.Fatalf("NextToken failed: %v", err)
	}
	if tok.Line != 2 {
		t.Errorf("id should be on line 2, got %d", tok.Line)
	}
}

func TestLexerKeywordsCaseInsensitive(t *testing.T) {
	tokens := mustTokenize(t, "select * from Users")
	if tokens[0].Type != TokenKeyword || tokens[0].Literal != "SELECT" {
		t.Errorf("expected canonical SELECT keyword, got %+v", tokens[0])
	}
	if tokens[3].Type != TokenIdent || tokens[3].Literal != "Users" {
		t.Errorf("expected identifier to keep its case, got %+v", tokens[3])
	}
}
