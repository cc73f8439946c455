// internal/service/notification/domain/notification.go
package domain

import (
	"context"
	"fmt"
	"time"
)

type Kind string

const (
	KindOrderConfirmation Kind = "order_confirmation"
	KindCheckoutExpired   Kind = "checkout_expired"
	KindLowStock          Kind = "low_stock"
)

// Notification 是一封待发送的邮件
type Notification struct {
	Kind      Kind
	Recipient string
	Subject   string
	Body      string
	// DedupKey 标识业务事件，同一事件重复投递时只发送一次
	DedupKey string
}

// EmailGateway 是发信出站端口
type EmailGateway interface {
	Send(ctx context.Context, n Notification) error
}

// Deduplicator 记录已发送过的事件。Claim 返回 false 表示该事件已被处理过。
type Deduplicator interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// FormatAmount 把以分为单位的金额格式化为 12.50 的形式
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
