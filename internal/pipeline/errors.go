package pipeline

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrMissingColumn    = errors.New("missing required column")
	ErrEmptyFile        = errors.New("empty file")
	ErrInsufficientData = errors.New("insufficient data")
)

// LoadErrorKind tells I/O failures apart from malformed content
type LoadErrorKind int

const (
	IOError LoadErrorKind = iota
	ParseError
)

func (k LoadErrorKind) String() string {
	if k == IOError {
		return "io error"
	}
	return "parse error"
}

// LoadError is returned by Loader.Load for a missing, unreadable or malformed dataset
type LoadError struct {
	Kind   LoadErrorKind
	Path   string
	Line   int    // 0 when not tied to a line
	Column string // empty when not tied to a column
	Err    error
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("load %s: %s", e.Path, e.Kind)
	if e.Line > 0 {
		msg += fmt.Sprintf(" at line %d", e.Line)
	}
	if e.Column != "" {
		msg += fmt.Sprintf(" column %s", e.Column)
	}
	return msg + ": " + e.Err.Error()
}

func (e *LoadError) Unwrap() error { return e.Err }

func ioError(path string, err error) error {
	return &LoadError{Kind: IOError, Path: path, Err: err}
}

func parseError(path string, line int, column string, err error) error {
	return &LoadError{Kind: ParseError, Path: path, Line: line, Column: column, Err: err}
}
