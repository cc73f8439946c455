package domain

import (
	"errors"
	"fmt"

	invdomain "storefront/internal/service/inventory/domain"
)

// 库存相关的错误直接沿用库存域的哨兵错误，errors.Is 在两个包之间通用。
var (
	ErrInsufficientStock  = invdomain.ErrInsufficientStock
	ErrInvalidState       = invdomain.ErrInvalidState
	ErrReservationExpired = invdomain.ErrReservationExpired
	ErrValidation         = invdomain.ErrValidation
	ErrNotFound           = invdomain.ErrNotFound

	ErrEmptyCart     = errors.New("cart is empty")
	ErrPaymentFailed = errors.New("payment failed")
	// ErrPaymentUnavailable 表示支付网关无法给出结果，会话保持不变，可以重试
	ErrPaymentUnavailable = errors.New("payment gateway unavailable")
)

var NewValidationError = invdomain.NewValidationError

// PaymentFailedError 携带网关给出的拒绝原因，errors.Is(err, ErrPaymentFailed) 成立
type PaymentFailedError struct {
	Reason string
}

func (e *PaymentFailedError) Error() string {
	return fmt.Sprintf("payment failed: %s", e.Reason)
}

func (e *PaymentFailedError) Is(target error) bool {
	return target == ErrPaymentFailed
}
