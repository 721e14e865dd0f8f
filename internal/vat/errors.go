package vat

import (
	"errors"
	"fmt"
)

var (
	// ErrTableNotFound is returned when a channel has no VAT table of the requested kind.
	ErrTableNotFound = errors.New("vat table not found")
	// ErrStoreNotFound is returned when the store owning a VAT table cannot be resolved.
	ErrStoreNotFound = errors.New("store not found")
	// ErrFallbackExhausted indicates the standard-table fallback did not converge.
	ErrFallbackExhausted = errors.New("vat fallback exhausted")
)

// LookupError reports a failed VAT table or channel resolution. It is fatal to
// the conversion that triggered it.
type LookupError struct {
	Op        string
	StoreID   int64
	ChannelID int64
	Err       error
}

// Error implements the error interface.
func (e *LookupError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.ChannelID != 0:
		return fmt.Sprintf("vat: %s (store %d, channel %d): %v", e.Op, e.StoreID, e.ChannelID, e.Err)
	case e.StoreID != 0:
		return fmt.Sprintf("vat: %s (store %d): %v", e.Op, e.StoreID, e.Err)
	default:
		return fmt.Sprintf("vat: %s: %v", e.Op, e.Err)
	}
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *LookupError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
