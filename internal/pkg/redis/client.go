// Package redis 提供 go-redis UniversalClient 的创建与 Lua 脚本辅助函数。
package redis

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"storefront/internal/pkg/logger"
)

var (
	defaultClient goredis.UniversalClient
	clientOnce    sync.Once
)

// NewClient 按逗号分隔的地址创建客户端：单地址为单机模式，多地址为集群模式。
func NewClient(addrs string, password string, db int) (goredis.UniversalClient, error) {
	list := strings.Split(addrs, ",")
	for i := range list {
		list[i] = strings.TrimSpace(list[i])
	}

	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        list,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     32,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis %s", addrs)
	}

	logger.Ctx(ctx).Info().Strs("addrs", list).Msg("✅ Connected to Redis")
	clientOnce.Do(func() { defaultClient = client })
	return client, nil
}

// GetClient 返回进程内第一个成功创建的客户端。
func GetClient() goredis.UniversalClient {
	return defaultClient
}

// LoadScriptFromContent 包装一段 Lua 源码，首次执行时通过 EVALSHA 缓存。
func LoadScriptFromContent(src string) *goredis.Script {
	return goredis.NewScript(src)
}

// RunScript 执行脚本；脚本未缓存时 go-redis 自动回退到 EVAL。
func RunScript(ctx context.Context, client goredis.Scripter, script *goredis.Script, keys []string, args ...interface{}) (interface{}, error) {
	res, err := script.Run(ctx, client, keys, args...).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, errors.Wrap(err, "run lua script")
	}
	return res, nil
}
