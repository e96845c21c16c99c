package transact

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/datalite/internal/datom"
)

// SyntaxError reports a malformed transaction: an unknown operation
// kind, an unresolvable ident, or an invalid lookup-ref or tempid.
type SyntaxError struct {
	Message string
}

func (e *SyntaxError) Error() string {
	return "syntax error: " + e.Message
}

func syntaxErrorf(format string, args ...any) *SyntaxError {
	return &SyntaxError{Message: fmt.Sprintf(format, args...)}
}

// IsSyntaxError reports whether err is or wraps a SyntaxError.
func IsSyntaxError(err error) bool {
	var se *SyntaxError
	return errors.As(err, &se)
}

// ConstraintKind names which invariant a commit violated.
type ConstraintKind string

const (
	ConstraintUnique      ConstraintKind = "unique"
	ConstraintCardinality ConstraintKind = "cardinality"
)

// ConstraintViolation reports a uniqueness or cardinality violation
// detected during materialization. The commit it arose from was rolled
// back in full.
type ConstraintViolation struct {
	Kind    ConstraintKind
	Message string
	Err     error
}

func (e *ConstraintViolation) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s constraint violated: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s constraint violated: %s", e.Kind, e.Message)
}

func (e *ConstraintViolation) Unwrap() error { return e.Err }

// IsConstraintViolation reports whether err is or wraps a
// ConstraintViolation, returning its kind when so.
func IsConstraintViolation(err error) (ConstraintKind, bool) {
	var cv *ConstraintViolation
	if errors.As(err, &cv) {
		return cv.Kind, true
	}
	return "", false
}

// SchemaError reports an unsupported or failed schema mutation. Schema
// pre-checks run strictly before any mutating statement, so a
// SchemaError always leaves state untouched.
type SchemaError struct {
	Attribute datom.Keyword
	Message   string
}

func (e *SchemaError) Error() string {
	if e.Attribute.IsZero() {
		return "schema error: " + e.Message
	}
	return fmt.Sprintf("schema error: %s: %s", e.Attribute, e.Message)
}

func schemaErrorf(attribute datom.Keyword, format string, args ...any) *SchemaError {
	return &SchemaError{Attribute: attribute, Message: fmt.Sprintf(format, args...)}
}

// IsSchemaError reports whether err is or wraps a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// StorageError wraps an underlying engine failure with the operation
// that hit it. The original cause is preserved for errors.Is/As.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err is or wraps a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// wrapStorage classifies a driver error: unique-index failures during
// materialization become ConstraintViolations, everything else a
// StorageError carrying op as context.
func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
		// Only uniqueness failures are a ConstraintViolation; other
		// constraint classes (FK, NOT NULL, CHECK) stay storage errors.
		switch serr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return &ConstraintViolation{Kind: ConstraintUnique, Message: op, Err: err}
		}
	}
	return &StorageError{Op: op, Err: err}
}
