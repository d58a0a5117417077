package sql

import (
	"fmt"
	"strings"

	qerrors "github.com/veldt-labs/sqlbridge/errors"
)

// scanner walks script text word by word, tracking line and column. It only
// understands enough SQL lexing (strings, comments, parentheses, CASE/END
// pairing) to carve out statement and condition spans for the real parser.
type scanner struct {
	text string
	i    int
	line int
	col  int
}

func newScanner(text string) *scanner {
	return &scanner{text: text, line: 1, col: 1}
}

func (sc *scanner) pos() Pos {
	return Pos{Line: sc.line, Column: sc.col}
}

func (sc *scanner) eof() bool {
	return sc.i >= len(sc.text)
}

func (sc *scanner) errorf(format string, args ...interface{}) error {
	return &qerrors.ParseError{Errors: []qerrors.SyntaxError{{
		Line:    sc.line,
		Column:  sc.col,
		Message: fmt.Sprintf(format, args...),
	}}}
}

func (sc *scanner) advance(n int) {
	for k := 0; k < n && sc.i < len(sc.text); k++ {
		if sc.text[sc.i] == '\n' {
			sc.line++
			sc.col = 1
		} else {
			sc.col++
		}
		sc.i++
	}
}

// skipSeparators consumes whitespace, semicolons and comments
func (sc *scanner) skipSeparators() {
	for !sc.eof() {
		c := sc.text[sc.i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == ';':
			sc.advance(1)
		case c == '-' && sc.i+1 < len(sc.text) && sc.text[sc.i+1] == '-':
			sc.advance(skipLineComment(sc.text, sc.i) - sc.i)
		case c == '/' && sc.i+1 < len(sc.text) && sc.text[sc.i+1] == '*':
			sc.advance(skipBlockComment(sc.text, sc.i) - sc.i)
		default:
			return
		}
	}
}

// peekWord returns the next word without consuming it
func (sc *scanner) peekWord() (string, int) {
	j := sc.i
	for j < len(sc.text) && isWordChar(sc.text[j]) {
		j++
	}
	return sc.text[sc.i:j], j - sc.i
}

// readWord consumes and returns the next word
func (sc *scanner) readWord() string {
	word, n := sc.peekWord()
	sc.advance(n)
	return word
}

// readStatement consumes raw statement text up to a top-level semicolon or a
// block-terminating END/ELSE keyword. CASE expressions pair with their own
// END and do not terminate the statement.
func (sc *scanner) readStatement() string {
	start := sc.i
	caseDepth := 0
	for !sc.eof() {
		c := sc.text[sc.i]
		switch {
		case c == '\'':
			sc.advance(skipString(sc.text, sc.i) - sc.i)
			continue
		case c == '-' && sc.i+1 < len(sc.text) && sc.text[sc.i+1] == '-':
			sc.advance(skipLineComment(sc.text, sc.i) - sc.i)
			continue
		case c == '/' && sc.i+1 < len(sc.text) && sc.text[sc.i+1] == '*':
			sc.advance(skipBlockComment(sc.text, sc.i) - sc.i)
			continue
		case c == ';':
			text := sc.text[start:sc.i]
			sc.advance(1)
			return text
		case isWordChar(c):
			word, n := sc.peekWord()
			switch strings.ToUpper(word) {
			case "CASE":
				caseDepth++
			case "END":
				if caseDepth > 0 {
					caseDepth--
				} else {
					return sc.text[start:sc.i]
				}
			case "ELSE":
				if caseDepth == 0 {
					return sc.text[start:sc.i]
				}
			}
			sc.advance(n)
			continue
		}
		sc.advance(1)
	}
	return sc.text[start:sc.i]
}

// readUntilKeyword consumes raw text up to the given top-level keyword
func (sc *scanner) readUntilKeyword(keyword string) string {
	start := sc.i
	depth := 0
	for !sc.eof() {
		c := sc.text[sc.i]
		switch {
		case c == '\'':
			sc.advance(skipString(sc.text, sc.i) - sc.i)
			continue
		case c == '(':
			depth++
		case c == ')':
			depth--
		case isWordChar(c):
			word, n := sc.peekWord()
			if depth == 0 && strings.EqualFold(word, keyword) {
				return sc.text[start:sc.i]
			}
			sc.advance(n)
			continue
		}
		sc.advance(1)
	}
	return sc.text[start:sc.i]
}
