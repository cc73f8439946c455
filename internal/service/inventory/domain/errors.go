package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidState      = errors.New("invalid state")
	// ErrReservationExpired 是 ErrInvalidState 的一种：预占已超时或已被回收
	ErrReservationExpired = fmt.Errorf("reservation expired: %w", ErrInvalidState)
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
)

// InsufficientStockError 指明哪个 SKU 库存不足，errors.Is(err, ErrInsufficientStock) 成立
type InsufficientStockError struct {
	SKU       string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.SKU, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ValidationError 描述被拒绝的输入，errors.Is(err, ErrValidation) 成立
type ValidationError struct {
	Reason string
}

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
