package parser

import (
	"fmt"

	ilerrors "github.com/inputlayer/inputlayer/errors"
)

// ParseError carries a structured line/column range, as required by
// spec.md §7 ("a structured line/column range from the parser").
type ParseError struct {
	Line, Column int
	Message      string
	cause        error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Message)
}

func (e *ParseError) Cause() error { return e.cause }

// NewParseError builds a ParseError and wraps it as the taxonomy's ErrParse kind.
func NewParseError(line, col int, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	pe := &ParseError{Line: line, Column: col, Message: msg}
	pe.cause = ilerrors.ErrParse.New(line, col, msg)
	return pe
}
