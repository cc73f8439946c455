package infrastructure

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/notification/domain"
)

// LogEmailGateway 是模拟的邮件网关：邮件写入结构化日志并保存在内存中。
// 收件人为空或不含 @ 时视为发送失败。
type LogEmailGateway struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func NewLogEmailGateway() *LogEmailGateway {
	return &LogEmailGateway{}
}

func (g *LogEmailGateway) Send(ctx context.Context, n domain.Notification) error {
	if !strings.Contains(n.Recipient, "@") {
		return errors.Errorf("invalid recipient %q", n.Recipient)
	}
	g.mu.Lock()
	g.sent = append(g.sent, n)
	g.mu.Unlock()

	logger.Ctx(ctx).Info().
		Str("kind", string(n.Kind)).
		Str("to", n.Recipient).
		Str("subject", n.Subject).
		Msg("📧 email sent")
	return nil
}

// Sent 返回已发送邮件的副本
func (g *LogEmailGateway) Sent() []domain.Notification {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.Notification(nil), g.sent...)
}
