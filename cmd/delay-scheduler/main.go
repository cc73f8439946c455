// cmd/delay-scheduler/main.go
package main

import (
	"context"
	"time"

	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/scheduler"
)

const serviceName = "delay-scheduler"

// 定义支持的延迟级别和对应的主题
var delayLevels = map[string]time.Duration{
	"delay_topic_5s":  5 * time.Second,
	"delay_topic_1m":  1 * time.Minute,
	"delay_topic_10m": 10 * time.Minute,
}

func main() {
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8085,
		RegisterHandlers: func(app bootstrap.AppCtx) error {
			brokers := app.Config.Infra.Kafka.Brokers

			// 所有级别共用一个 writer，目标主题由 real-topic 头决定
			writer := mq.NewKafkaWriter(brokers, "")
			app.OnShutdown(func(ctx context.Context) {
				if err := writer.Close(); err != nil {
					logger.Ctx(ctx).Error().Err(err).Msg("failed to close forward writer")
				}
			})

			// 为每个延迟级别启动一个独立的转发器
			for level, delay := range delayLevels {
				reader := mq.NewKafkaReader(brokers, level, serviceName+"-group-"+level)
				forwarder := scheduler.NewForwarder(level, delay, reader, writer)
				app.Go(forwarder.Run)
				app.OnShutdown(func(ctx context.Context) {
					if err := forwarder.Close(); err != nil {
						logger.Ctx(ctx).Error().Err(err).Str("level", level).Msg("failed to close delay reader")
					}
				})
			}
			logger.Ctx(app.Context()).Info().Int("levels", len(delayLevels)).Msg("All delay forwarders are running.")
			return nil
		},
	})
}
