// cmd/push-gateway/main.go
package main

import (
	"context"

	"github.com/google/uuid"

	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/pkg/redis"
	"storefront/internal/service/pushgateway"
)

const serviceName = "push-gateway"

func main() {
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8088,
		RegisterHandlers: func(app bootstrap.AppCtx) error {
			cfg := app.Config
			nodeID := serviceName + "-" + uuid.New().String()[:8]
			hub := pushgateway.NewHub(nodeID)
			app.Go(hub.Run)

			var presence pushgateway.Presence
			if cfg.Infra.Redis.Addrs != "" {
				client, err := redis.NewClient(cfg.Infra.Redis.Addrs, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
				if err != nil {
					return err
				}
				app.OnShutdown(func(context.Context) { _ = client.Close() })
				presence = pushgateway.NewRedisPresence(client)
			}
			pushgateway.NewHandler(hub, presence).RegisterRoutes(app.Mux)

			// 每个网关节点使用独立的消费者组，保证所有节点都收到完整的库存事件流
			reader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.Topics.InventoryEvents, nodeID)
			consumer := pushgateway.NewInventoryFeedConsumer(reader, hub)
			app.Go(consumer.Run)
			app.OnShutdown(func(ctx context.Context) {
				if err := consumer.Close(); err != nil {
					logger.Ctx(ctx).Error().Err(err).Msg("failed to close inventory feed consumer")
				}
			})

			logger.Ctx(app.Context()).Info().Str("node", nodeID).Msg("push gateway wired")
			return nil
		},
	})
}
