package models

import (
	"errors"
	"fmt"
	"strings"
)

// ProviderError is a failed call to an external collaborator
// (embedding, vector index, directory, generation). It is never retried here.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError wraps err unless it is nil
func NewProviderError(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

// NotFoundError reports a referenced index or object that does not exist
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Name)
}

// AccessError rejects a caller from an operation reserved to administrators.
// An empty UserID means the caller was anonymous.
type AccessError struct {
	UserID    string
	Operation string
}

func (e *AccessError) Error() string {
	if e.UserID == "" {
		return "authentication required for " + e.Operation
	}
	return fmt.Sprintf("user %s may not %s", e.UserID, e.Operation)
}

// ValidationError reports missing or invalid configuration or input
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Reason, strings.Join(e.Fields, ", "))
}

// UpsertError identifies the batch that stopped a chunked upsert.
// Batches before it are already committed and stay committed.
type UpsertError struct {
	Batch int
	Start int
	End   int
	Err   error
}

func (e *UpsertError) Error() string {
	return fmt.Sprintf("upsert batch %d (vectors %d-%d) failed: %v", e.Batch, e.Start, e.End-1, e.Err)
}

func (e *UpsertError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is or wraps a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is or wraps a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
