// cmd/notification-service/main.go
package main

import (
	"context"

	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/pkg/redis"
	"storefront/internal/service/notification/application"
	"storefront/internal/service/notification/domain"
	"storefront/internal/service/notification/infrastructure"
	"storefront/internal/service/notification/interfaces"
)

const (
	serviceName     = "notification-service"
	consumerGroupID = "notification-group"
)

func main() {
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      serviceName,
		Port:             8083,
		RegisterHandlers: registerHandlers,
	})
}

func registerHandlers(app bootstrap.AppCtx) error {
	cfg := app.Config
	brokers := cfg.Infra.Kafka.Brokers

	dedup, err := newDeduplicator(app, cfg)
	if err != nil {
		return err
	}
	dispatcher := application.NewDispatcher(infrastructure.NewLogEmailGateway(), dedup, application.ConfigRecipients{})

	dltWriter := mq.NewKafkaWriter(brokers, "")
	app.OnShutdown(func(ctx context.Context) {
		if err := dltWriter.Close(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to close dlt writer")
		}
	})
	failures := mq.NewFailureHandler(dltWriter)

	// 结账事件与库存事件各一个消费者，共用同一个分发器
	for _, topic := range []string{cfg.Infra.Kafka.Topics.CheckoutEvents, cfg.Infra.Kafka.Topics.InventoryEvents} {
		reader := mq.NewKafkaReader(brokers, topic, consumerGroupID)
		consumer := interfaces.NewEventConsumer("notification-"+topic, reader, dispatcher, failures)
		app.Go(consumer.Run)
		app.OnShutdown(func(ctx context.Context) {
			if err := consumer.Close(); err != nil {
				logger.Ctx(ctx).Error().Err(err).Str("topic", topic).Msg("failed to close consumer")
			}
		})
	}
	logger.Ctx(app.Context()).Info().Strs("admins", cfg.App.AdminEmails).Msg("notification consumers started")
	return nil
}

// newDeduplicator 未配置 Redis 时退回进程内去重，重启后可能重复发送。
func newDeduplicator(app bootstrap.AppCtx, cfg *bootstrap.Config) (domain.Deduplicator, error) {
	if cfg.Infra.Redis.Addrs == "" {
		logger.Ctx(app.Context()).Warn().Msg("redis not configured, notification dedup is in memory")
		return infrastructure.NewMemoryDeduplicator(), nil
	}
	client, err := redis.NewClient(cfg.Infra.Redis.Addrs, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
	if err != nil {
		return nil, err
	}
	app.OnShutdown(func(context.Context) { _ = client.Close() })
	return infrastructure.NewRedisDeduplicator(client), nil
}
