package repositories

import (
	"errors"
	"fmt"
)

// InventoryErrorCode enumerates repository error causes for stock and availability mutations.
type InventoryErrorCode string

const (
	// InventoryErrorInsufficientStock indicates a guarded decrement would leave stock below zero.
	InventoryErrorInsufficientStock InventoryErrorCode = "inventory_insufficient_stock"
	// InventoryErrorItemNotFound indicates the item or place document is missing.
	InventoryErrorItemNotFound InventoryErrorCode = "inventory_item_not_found"
	// InventoryErrorInvalidQuantity indicates a zero adjustment was requested.
	InventoryErrorInvalidQuantity InventoryErrorCode = "inventory_invalid_quantity"
)

// InventoryError wraps inventory-specific failures with machine readable codes.
type InventoryError struct {
	Op      string
	Code    InventoryErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *InventoryError) IsNotFound() bool    { return e != nil && e.Code == InventoryErrorItemNotFound }
func (e *InventoryError) IsConflict() bool    { return e != nil && e.Code == InventoryErrorInsufficientStock }
func (e *InventoryError) IsUnavailable() bool { return false }

// NewInventoryError constructs a typed inventory error.
func NewInventoryError(code InventoryErrorCode, message string, err error) *InventoryError {
	if message == "" {
		message = string(code)
	}
	return &InventoryError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsInventoryError reports whether err carries an InventoryError with the given code.
func IsInventoryError(err error, code InventoryErrorCode) bool {
	var invErr *InventoryError
	return errors.As(err, &invErr) && invErr.Code == code
}

// IsNotFound reports whether err is a RepositoryError classified as not found.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err is a RepositoryError classified as a conflict.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err is a RepositoryError classified as transient.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
