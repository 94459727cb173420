package errors

import "fmt"

// ParseError represents an error that occurred while parsing HTTP wire data.
type ParseError struct {
	Message  string // human-readable error message
	Line     int    // 1-indexed line number where error occurred (0 if unknown)
	Position int    // byte offset in input (0 if unknown)
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("http: parse error at line %d: %s", e.Line, e.Message)
	}
	if e.Position > 0 {
		return fmt.Sprintf("http: parse error at position %d: %s", e.Position, e.Message)
	}
	return fmt.Sprintf("http: %s", e.Message)
}

// Is reports whether target is ErrParse.
func (e *ParseError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Type == ErrorTypeParse
}

// NewParseError creates a ParseError located at a line.
func NewParseError(msg string, line int) *ParseError {
	return &ParseError{Message: msg, Line: line}
}

// NewParseErrorAtPos creates a ParseError located at a byte offset.
func NewParseErrorAtPos(msg string, pos int) *ParseError {
	return &ParseError{Message: msg, Position: pos}
}
