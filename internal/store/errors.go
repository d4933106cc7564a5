package store

import (
	"errors"
	"fmt"
)

// Sentinel errors for input-class failures. Callers match with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrDuplicateName   = errors.New("person name already exists")
)

// QuotaError reports an operation rejected because it would exceed a
// configured quota. The limit is carried so the caller can surface it.
type QuotaError struct {
	Resource string
	Limit    int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s quota exceeded (limit %d)", e.Resource, e.Limit)
}

// DesyncError marks a vector-store write that failed after the
// relational commit already succeeded. The relational store is the
// source of truth; the write is not rolled back. Must be logged
// distinctly from validation errors.
type DesyncError struct {
	Namespace string
	Err       error
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("dual-write desync in namespace %s: %v", e.Namespace, e.Err)
}

func (e *DesyncError) Unwrap() error { return e.Err }

// IsDesync reports whether err wraps a DesyncError.
func IsDesync(err error) bool {
	var de *DesyncError
	return errors.As(err, &de)
}
