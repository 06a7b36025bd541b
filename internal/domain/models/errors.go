package models

import "errors"

var (
	// ErrNotFound indicates a missing order or inventory item.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates the order status does not admit the operation.
	ErrInvalidState = errors.New("invalid order state")
	// ErrValidation indicates a malformed request.
	ErrValidation = errors.New("validation failed")
	// ErrQuotaExceeded indicates the backing store reported resource exhaustion.
	ErrQuotaExceeded = errors.New("store quota exceeded")
	// ErrTransient indicates a retryable store failure.
	ErrTransient = errors.New("transient store failure")
	// ErrConflict indicates a concurrent write or duplicate record. It is transient
	// for transaction conflicts, so it wraps ErrTransient there.
	ErrConflict = errors.New("conflict")
)
