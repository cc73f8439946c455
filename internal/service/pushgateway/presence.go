package pushgateway

import (
	"context"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"storefront/internal/pkg/redis"
)

// Presence 记录用户当前连接在哪个网关节点上
type Presence interface {
	SetUserGateway(ctx context.Context, userID, nodeID string) error
	RemoveUser(ctx context.Context, userID, nodeID string) error
	UserGateway(ctx context.Context, userID string) (string, error)
}

const presenceTTL = 24 * time.Hour

func presenceKey(userID string) string { return "push:user:" + userID }

// RedisPresence 是 Presence 的 Redis 实现
type RedisPresence struct {
	client goredis.UniversalClient
	remove *goredis.Script
}

func NewRedisPresence(client goredis.UniversalClient) *RedisPresence {
	return &RedisPresence{client: client, remove: redis.LoadScriptFromContent(removeIfOwnerScript)}
}

func (p *RedisPresence) SetUserGateway(ctx context.Context, userID, nodeID string) error {
	return errors.Wrapf(p.client.Set(ctx, presenceKey(userID), nodeID, presenceTTL).Err(), "set presence for %s", userID)
}

// RemoveUser 只删除仍指向本节点的记录，避免覆盖用户在其他节点上的新连接
func (p *RedisPresence) RemoveUser(ctx context.Context, userID, nodeID string) error {
	_, err := redis.RunScript(ctx, p.client, p.remove, []string{presenceKey(userID)}, nodeID)
	return errors.Wrapf(err, "remove presence for %s", userID)
}

func (p *RedisPresence) UserGateway(ctx context.Context, userID string) (string, error) {
	node, err := p.client.Get(ctx, presenceKey(userID)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	return node, errors.Wrapf(err, "get presence for %s", userID)
}

var removeIfOwnerScript = `
-- KEYS[1]: 用户在线记录，ARGV[1]: 当前节点 ID
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
end
return 0
`
