package bijector

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by this package matches exactly
// one of them under errors.Is.
var (
	ErrShape  = errors.New("shape mismatch")
	ErrDomain = errors.New("value outside its domain")
	ErrConfig = errors.New("invalid configuration")
)

// ShapeError reports a batch or parameter whose dimensions do not match
// what the bijector was initialized with.
type ShapeError struct {
	Op      string // Operation that failed (e.g., "Roll(2).forward")
	Want    int    // Expected size
	Got     int    // Actual size
	Details string // What was being measured
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s: %s: want %d, got %d", e.Op, ErrShape, e.Details, e.Want, e.Got)
}

// Unwrap returns ErrShape.
func (e *ShapeError) Unwrap() error { return ErrShape }

// DomainError reports a configuration or parameter value outside its valid
// domain, such as a zero scale factor.
type DomainError struct {
	Op      string
	Details string
	Err     error // Underlying cause, if any
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, ErrDomain, e.Details, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, ErrDomain, e.Details)
}

// Unwrap returns ErrDomain and the underlying cause.
func (e *DomainError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDomain, e.Err}
	}
	return []error{ErrDomain}
}

// ConfigError reports a structurally invalid composition.
type ConfigError struct {
	Op      string
	Index   int // Component index, or -1 when not tied to one
	Details string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s: %s: component %d: %s", e.Op, ErrConfig, e.Index, e.Details)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, ErrConfig, e.Details)
}

// Unwrap returns ErrConfig.
func (e *ConfigError) Unwrap() error { return ErrConfig }

func shapeErr(op, details string, want, got int) error {
	return &ShapeError{Op: op, Want: want, Got: got, Details: details}
}

func domainErr(op, format string, args ...any) error {
	return &DomainError{Op: op, Details: fmt.Sprintf(format, args...)}
}
