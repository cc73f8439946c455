package zookeeper

import (
	"context"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"

	"storefront/internal/pkg/logger"
)

// Connect 建立 ZooKeeper 会话并等待连接就绪。
func Connect(servers []string, sessionTimeout time.Duration) (*zk.Conn, error) {
	if len(servers) == 0 {
		return nil, errors.New("no zookeeper servers configured")
	}
	conn, events, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, errors.Wrap(err, "connect zookeeper")
	}

	timeout := time.After(sessionTimeout)
	for {
		select {
		case ev := <-events:
			if ev.State == zk.StateHasSession {
				logger.Ctx(context.Background()).Info().Strs("servers", servers).Msg("✅ Connected to ZooKeeper")
				return conn, nil
			}
		case <-timeout:
			conn.Close()
			return nil, errors.New("timeout waiting for zookeeper session")
		}
	}
}
