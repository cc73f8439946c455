package infrastructure

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

const dedupKeyPrefix = "notify:sent:"

// RedisDeduplicator 用 SET NX 记录已发送的事件，多个通知服务副本共享
type RedisDeduplicator struct {
	client goredis.UniversalClient
}

func NewRedisDeduplicator(client goredis.UniversalClient) *RedisDeduplicator {
	return &RedisDeduplicator{client: client}
}

func (d *RedisDeduplicator) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupKeyPrefix+key, 1, ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "claim %s", key)
	}
	return ok, nil
}

func (d *RedisDeduplicator) Release(ctx context.Context, key string) error {
	return errors.Wrapf(d.client.Del(ctx, dedupKeyPrefix+key).Err(), "release %s", key)
}

// MemoryDeduplicator 是单副本使用的进程内实现
type MemoryDeduplicator struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryDeduplicator() *MemoryDeduplicator {
	return &MemoryDeduplicator{seen: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduplicator) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if until, ok := d.seen[key]; ok && now.Before(until) {
		return false, nil
	}
	d.seen[key] = now.Add(ttl)
	return true, nil
}

func (d *MemoryDeduplicator) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}
