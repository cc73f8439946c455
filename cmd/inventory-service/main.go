// cmd/inventory-service/main.go
package main

import (
	"context"

	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/database"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/inventory/application"
	"storefront/internal/service/inventory/infrastructure"
	"storefront/internal/service/inventory/infrastructure/adapter"
	"storefront/internal/service/inventory/interfaces"
)

const serviceName = "inventory-service"

// inventory-service 只对外提供库存管理接口，与 checkout-service 共用同一个库存台账。
func main() {
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8082,
		RegisterHandlers: func(app bootstrap.AppCtx) error {
			cfg := app.Config
			db, err := database.OpenMySQL(database.Options{
				DSN:             cfg.Infra.MySQL.DSN,
				MaxOpenConns:    cfg.Infra.MySQL.MaxOpenConns,
				MaxIdleConns:    cfg.Infra.MySQL.MaxIdleConns,
				ConnMaxLifetime: cfg.Infra.MySQL.ConnMaxLifetime,
				LogLevel:        cfg.Infra.MySQL.LogLevel,
			})
			if err != nil {
				return err
			}
			if err := infrastructure.AutoMigrate(db); err != nil {
				return err
			}

			writer := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.Topics.InventoryEvents)
			app.OnShutdown(func(ctx context.Context) {
				if err := writer.Close(); err != nil {
					logger.Ctx(ctx).Error().Err(err).Msg("failed to close inventory events writer")
				}
				if sqlDB, err := db.DB(); err == nil {
					_ = sqlDB.Close()
				}
			})

			runner := database.NewGormTxRunner(db, cfg.App.TxAttempts, func(int, error) {
				metrics.LedgerConflicts.WithLabelValues("tx_retry").Inc()
			})
			admin := application.NewAdminService(runner,
				infrastructure.NewGormLedger(db),
				infrastructure.NewGormProductRepository(db),
				adapter.NewInventoryEventKafkaAdapter(writer),
				application.WithDefaultLowStockThreshold(cfg.App.LowStockThreshold))
			interfaces.NewAdminHandler(admin).RegisterRoutes(app.Mux)
			interfaces.NewCatalogHandler(admin).RegisterRoutes(app.Mux)
			return nil
		},
	})
}
