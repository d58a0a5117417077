package errors

import (
	"fmt"
	"strings"
)

// maxDisplayedSyntaxErrors caps how many syntax messages render in Error()
const maxDisplayedSyntaxErrors = 5

// SyntaxError is one syntax failure reported by the SQL parser
type SyntaxError struct {
	Line    int
	Column  int
	Message string
}

func (s SyntaxError) String() string {
	return fmt.Sprintf("line %d, column %d: %s", s.Line, s.Column, s.Message)
}

// ParseError aggregates the syntax errors of one Parse call. Hint carries a
// best-effort missing-whitespace suggestion and is advisory only.
type ParseError struct {
	Errors []SyntaxError
	Hint   string
}

// Error implements the error interface. At most the first five syntax
// messages render; the remainder collapse into a count.
func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("SQL parse failed")
	shown := e.Errors
	if len(shown) > maxDisplayedSyntaxErrors {
		shown = shown[:maxDisplayedSyntaxErrors]
	}
	for _, se := range shown {
		b.WriteString("\n  ")
		b.WriteString(se.String())
	}
	if extra := len(e.Errors) - len(shown); extra > 0 {
		fmt.Fprintf(&b, "\n  ... and %d more", extra)
	}
	if e.Hint != "" {
		b.WriteString("\n  hint: ")
		b.WriteString(e.Hint)
	}
	return b.String()
}
