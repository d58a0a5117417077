package sql

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	pgparser "github.com/pganalyze/pg_query_go/v6/parser"
	qerrors "github.com/veldt-labs/sqlbridge/errors"
)

// variablePrefix is the placeholder prefix @name variables rewrite to so the
// core statement stays parseable by the PostgreSQL grammar.
const variablePrefix = "__sqlvar_"

// Parser converts SQL text into the AST. Control-flow statements
// (IF/WHILE/BEGIN...END) are recognized by a lightweight pre-scanner; the
// core statements inside delegate to the PostgreSQL parser.
type Parser struct{}

// NewParser creates a new parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse parses a script of one or more statements
func (p *Parser) Parse(sqlText string) (*BlockStatement, error) {
	sc := newScanner(sqlText)
	block, err := p.parseBlock(sc, false)
	if err != nil {
		return nil, err
	}
	if len(block.Statements) == 0 {
		return nil, &qerrors.ParseError{Errors: []qerrors.SyntaxError{{
			Line: 1, Column: 1, Message: "empty query",
		}}}
	}
	return block, nil
}

// ParseStatement parses a single statement; scripts with more than one
// top-level statement are rejected.
func (p *Parser) ParseStatement(sqlText string) (Statement, error) {
	block, err := p.Parse(sqlText)
	if err != nil {
		return nil, err
	}
	if len(block.Statements) != 1 {
		return nil, &qerrors.ParseError{Errors: []qerrors.SyntaxError{{
			Line: 1, Column: 1, Message: "expected a single statement",
		}}}
	}
	return block.Statements[0], nil
}

// parseBlock consumes statements until EOF, or until END/ELSE when inBlock
func (p *Parser) parseBlock(sc *scanner, inBlock bool) (*BlockStatement, error) {
	block := &BlockStatement{Pos: sc.pos()}
	for {
		sc.skipSeparators()
		if sc.eof() {
			if inBlock {
				return nil, sc.errorf("unterminated BEGIN block, missing END")
			}
			return block, nil
		}

		word, _ := sc.peekWord()
		switch strings.ToUpper(word) {
		case "END", "ELSE":
			if !inBlock {
				return nil, sc.errorf("unexpected %s outside a BEGIN block", strings.ToUpper(word))
			}
			return block, nil
		case "IF":
			stmt, err := p.parseIf(sc)
			if err != nil {
				return nil, err
			}
			block.Statements = append(block.Statements, stmt)
		case "WHILE":
			stmt, err := p.parseWhile(sc)
			if err != nil {
				return nil, err
			}
			block.Statements = append(block.Statements, stmt)
		case "BEGIN":
			inner, err := p.parseBegin(sc)
			if err != nil {
				return nil, err
			}
			block.Statements = append(block.Statements, inner)
		default:
			start := sc.pos()
			text := sc.readStatement()
			if strings.TrimSpace(text) == "" {
				continue
			}
			stmt, err := p.parseSQL(text, start)
			if err != nil {
				return nil, err
			}
			block.Statements = append(block.Statements, stmt)
		}
	}
}

// parseBegin consumes BEGIN ... END
func (p *Parser) parseBegin(sc *scanner) (*BlockStatement, error) {
	sc.readWord() // BEGIN
	block, err := p.parseBlock(sc, true)
	if err != nil {
		return nil, err
	}
	word, _ := sc.peekWord()
	if !strings.EqualFold(word, "END") {
		return nil, sc.errorf("expected END, found %q", word)
	}
	sc.readWord()
	return block, nil
}

// parseIf consumes IF <condition> BEGIN ... END [ELSE BEGIN ... END]
func (p *Parser) parseIf(sc *scanner) (*IfStatement, error) {
	start := sc.pos()
	sc.readWord() // IF

	cond, err := p.parseBlockCondition(sc)
	if err != nil {
		return nil, err
	}
	then, err := p.parseBegin(sc)
	if err != nil {
		return nil, err
	}

	stmt := &IfStatement{Pos: start, Cond: cond, Then: then}

	sc.skipSeparators()
	if word, _ := sc.peekWord(); strings.EqualFold(word, "ELSE") {
		sc.readWord()
		sc.skipSeparators()
		stmt.Else, err = p.parseBegin(sc)
		if err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

// parseWhile consumes WHILE <condition> BEGIN ... END
func (p *Parser) parseWhile(sc *scanner) (*WhileStatement, error) {
	start := sc.pos()
	sc.readWord() // WHILE

	cond, err := p.parseBlockCondition(sc)
	if err != nil {
		return nil, err
	}
	body, err := p.parseBegin(sc)
	if err != nil {
		return nil, err
	}
	return &WhileStatement{Pos: start, Cond: cond, Body: body}, nil
}

// parseBlockCondition reads the condition text up to the following BEGIN and
// parses it by wrapping it in a one-row SELECT.
func (p *Parser) parseBlockCondition(sc *scanner) (Condition, error) {
	start := sc.pos()
	condText := sc.readUntilKeyword("BEGIN")
	if strings.TrimSpace(condText) == "" {
		return nil, sc.errorf("missing condition before BEGIN")
	}

	stmt, err := p.parseSQL("SELECT 1 WHERE "+condText, start)
	if err != nil {
		return nil, err
	}
	sel, ok := stmt.(*SelectStatement)
	if !ok || sel.Where == nil {
		return nil, &qerrors.ParseError{Errors: []qerrors.SyntaxError{{
			Line: start.Line, Column: start.Column, Message: "invalid condition",
		}}}
	}
	return sel.Where, nil
}

// parseSQL parses one core SQL statement through the PostgreSQL parser
func (p *Parser) parseSQL(text string, base Pos) (Statement, error) {
	rewritten := rewriteVariables(text)

	result, err := pg_query.Parse(rewritten)
	if err != nil {
		return nil, convertParseError(err, text, base)
	}
	if len(result.Stmts) == 0 {
		return nil, &qerrors.ParseError{Errors: []qerrors.SyntaxError{{
			Line: base.Line, Column: base.Column, Message: "empty statement",
		}}}
	}

	conv := &astConverter{source: text, base: base}
	stmt, err := conv.convertStatement(result.Stmts[0].GetStmt())
	if err != nil {
		return nil, err
	}
	attachColumnComments(stmt, text)
	return stmt, nil
}

// convertParseError maps a pg_query failure into the structured parse error,
// attaching line/column and the missing-whitespace hint.
func convertParseError(err error, text string, base Pos) error {
	pe := &qerrors.ParseError{Hint: missingWhitespaceHint(text)}

	if pgErr, ok := err.(*pgparser.Error); ok {
		line, col := offsetToLineCol(text, pgErr.Cursorpos-1)
		pe.Errors = append(pe.Errors, qerrors.SyntaxError{
			Line:    base.Line + line - 1,
			Column:  col,
			Message: pgErr.Message,
		})
	} else {
		pe.Errors = append(pe.Errors, qerrors.SyntaxError{
			Line:    base.Line,
			Column:  base.Column,
			Message: err.Error(),
		})
	}
	return pe
}

// hintKeywords is the fixed keyword list scanned by the missing-whitespace
// heuristic.
var hintKeywords = []string{
	"SELECT", "FROM", "WHERE", "GROUP", "HAVING", "ORDER", "JOIN",
	"INNER", "LEFT", "RIGHT", "CROSS", "OUTER", "INSERT", "UPDATE",
	"DELETE", "INTO", "VALUES", "UNION", "BETWEEN", "FETCH", "OFFSET",
}

// missingWhitespaceHint scans tokens of at least 5 characters for a leading
// or trailing keyword match and suggests the missing space. Advisory only.
func missingWhitespaceHint(text string) string {
	for _, token := range tokenizeWords(text) {
		if len(token) < 5 {
			continue
		}
		upper := strings.ToUpper(token)
		for _, kw := range hintKeywords {
			if upper == kw {
				continue
			}
			if strings.HasSuffix(upper, kw) && len(token) > len(kw) {
				head := token[:len(token)-len(kw)]
				return fmt.Sprintf("%q may be %q", token, head+" "+token[len(token)-len(kw):])
			}
			if strings.HasPrefix(upper, kw) && len(token) > len(kw) {
				return fmt.Sprintf("%q may be %q", token, token[:len(kw)]+" "+token[len(kw):])
			}
		}
	}
	return ""
}

// tokenizeWords splits text into identifier-like tokens outside strings
func tokenizeWords(text string) []string {
	var tokens []string
	var current strings.Builder
	inString := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			if c == '\'' {
				inString = false
			}
			continue
		}
		switch {
		case c == '\'':
			inString = true
		case isWordChar(c):
			current.WriteByte(c)
			continue
		}
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

func isWordChar(c byte) bool {
	return c == '_' || c == '@' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// rewriteVariables replaces @name references with parseable placeholder
// identifiers, skipping string literals and comments. The placeholder keeps
// the same width so parser positions stay aligned when possible.
func rewriteVariables(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '\'':
			j := skipString(text, i)
			b.WriteString(text[i:j])
			i = j - 1
		case '-':
			if i+1 < len(text) && text[i+1] == '-' {
				j := skipLineComment(text, i)
				b.WriteString(text[i:j])
				i = j - 1
				continue
			}
			b.WriteByte(c)
		case '/':
			if i+1 < len(text) && text[i+1] == '*' {
				j := skipBlockComment(text, i)
				b.WriteString(text[i:j])
				i = j - 1
				continue
			}
			b.WriteByte(c)
		case '@':
			j := i + 1
			for j < len(text) && isWordChar(text[j]) && text[j] != '@' {
				j++
			}
			if j > i+1 {
				b.WriteString(variablePrefix)
				b.WriteString(text[i+1 : j])
				i = j - 1
				continue
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func skipString(text string, start int) int {
	i := start + 1
	for i < len(text) {
		if text[i] == '\'' {
			if i+1 < len(text) && text[i+1] == '\'' {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return i
}

func skipLineComment(text string, start int) int {
	i := start
	for i < len(text) && text[i] != '\n' {
		i++
	}
	return i
}

func skipBlockComment(text string, start int) int {
	i := start + 2
	for i+1 < len(text) {
		if text[i] == '*' && text[i+1] == '/' {
			return i + 2
		}
		i++
	}
	return len(text)
}

// offsetToLineCol converts a byte offset into 1-based line and column
func offsetToLineCol(text string, offset int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(text) {
		offset = len(text)
	}
	line, col := 1, 1
	for i := 0; i < offset; i++ {
		if text[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}

// attachColumnComments captures a trailing `--` comment after each select
// column in the source text. Cosmetic only; round-tripping tools rely on it.
func attachColumnComments(stmt Statement, text string) {
	sel, ok := stmt.(*SelectStatement)
	if !ok {
		return
	}
	upper := strings.ToUpper(text)
	start := strings.Index(upper, "SELECT")
	if start < 0 {
		return
	}
	end := strings.Index(upper, "FROM")
	if end < 0 {
		end = len(text)
	}
	segments := splitTopLevel(text[start+len("SELECT"):end], ',')
	for i, seg := range segments {
		if i >= len(sel.Columns) {
			break
		}
		if idx := strings.Index(seg, "--"); idx >= 0 {
			comment := seg[idx+2:]
			if nl := strings.IndexByte(comment, '\n'); nl >= 0 {
				comment = comment[:nl]
			}
			sel.Columns[i].TrailingComment = strings.TrimSpace(comment)
		}
	}
}

// splitTopLevel splits text on a separator outside parentheses and strings
func splitTopLevel(text string, sep byte) []string {
	var parts []string
	depth := 0
	last := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\'':
			i = skipString(text, i) - 1
		case '(':
			depth++
		case ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, text[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, text[last:])
	return parts
}
