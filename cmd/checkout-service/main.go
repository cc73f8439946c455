// cmd/checkout-service/main.go
package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/database"
	"storefront/internal/pkg/httpclient"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/pkg/mq"
	"storefront/internal/pkg/redis"
	"storefront/internal/service/checkout/application"
	"storefront/internal/service/checkout/domain/port"
	"storefront/internal/service/checkout/infrastructure"
	"storefront/internal/service/checkout/infrastructure/adapter"
	"storefront/internal/service/checkout/infrastructure/rule"
	"storefront/internal/service/checkout/interfaces"
	invapp "storefront/internal/service/inventory/application"
	invinfra "storefront/internal/service/inventory/infrastructure"
	invadapter "storefront/internal/service/inventory/infrastructure/adapter"
	invinterfaces "storefront/internal/service/inventory/interfaces"
	"storefront/internal/service/inventory/reservation"
	"storefront/internal/service/inventory/sweeper"
	"storefront/internal/zookeeper"
)

const (
	serviceName         = "checkout-service"
	paymentServiceName  = "payment-service"
	expiryConsumerGroup = "checkout-expiry-group"
	dltConsumerGroup    = "checkout-dlt-group"
	sweeperLockResource = "reservation-sweeper"
)

func main() {
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      serviceName,
		Port:             8080,
		RegisterHandlers: registerHandlers,
	})
}

// registerHandlers 是结账服务的组装根：创建所有依赖并注册路由、消费者与后台任务。
func registerHandlers(app bootstrap.AppCtx) error {
	cfg := app.Config
	ctx := app.Context()
	log := logger.Ctx(ctx)

	// 1. 存储
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
	if err := invinfra.AutoMigrate(db); err != nil {
		return err
	}
	if err := infrastructure.AutoMigrate(db); err != nil {
		return err
	}
	app.OnShutdown(func(context.Context) {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	runner := database.NewGormTxRunner(db, cfg.App.TxAttempts, func(attempt int, err error) {
		metrics.LedgerConflicts.WithLabelValues("tx_retry").Inc()
	})

	// 2. Kafka writers
	brokers := cfg.Infra.Kafka.Brokers
	topics := cfg.Infra.Kafka.Topics
	checkoutWriter := mq.NewKafkaWriter(brokers, topics.CheckoutEvents)
	inventoryWriter := mq.NewKafkaWriter(brokers, topics.InventoryEvents)
	delayWriter := mq.NewKafkaWriter(brokers, topics.ExpiryDelay)
	dltWriter := mq.NewKafkaWriter(brokers, "")
	for _, w := range []*kafka.Writer{checkoutWriter, inventoryWriter, delayWriter, dltWriter} {
		closeOnShutdown(app, "kafka writer "+w.Topic, w.Close)
	}

	// 3. 库存台账与预占管理
	ledger := invinfra.NewGormLedger(db)
	manager := reservation.NewManager(runner, ledger, invinfra.NewGormReservationStore(db),
		reservation.WithSweepBatch(cfg.App.SweepBatchSize))
	admin := invapp.NewAdminService(runner, ledger, invinfra.NewGormProductRepository(db),
		invadapter.NewInventoryEventKafkaAdapter(inventoryWriter),
		invapp.WithDefaultLowStockThreshold(cfg.App.LowStockThreshold))

	// 4. 购物车、支付与准入策略
	carts, err := newCartStore(app, cfg)
	if err != nil {
		return err
	}
	payment, err := newPaymentGateway(app, cfg)
	if err != nil {
		return err
	}
	policy, err := rule.NewCELPolicy(toRules(cfg.Policy.Rules))
	if err != nil {
		return errors.Wrap(err, "compile admission policy")
	}

	checkout := application.NewCheckoutService(application.Dependencies{
		Runner:       runner,
		Sessions:     infrastructure.NewGormSessionRepository(db),
		Orders:       infrastructure.NewGormOrderRepository(db),
		Reservations: manager,
		Carts:        carts,
		Payment:      payment,
		Policy:       policy,
		Scheduler:    adapter.NewExpirySchedulerKafkaAdapter(delayWriter, topics.ExpiryCheck),
		Events:       adapter.NewCheckoutEventKafkaAdapter(checkoutWriter),
		LowStock:     admin,
	}, cfg.App.ReservationTTL, cfg.App.ProcessingTimeout)

	bootstrap.OnConfigChange(func(next *bootstrap.Config) {
		checkout.SetReservationTTL(next.App.ReservationTTL)
		if err := policy.Reload(toRules(next.Policy.Rules)); err != nil {
			logger.Ctx(context.Background()).Error().Err(err).Msg("keeping previous admission rules")
			return
		}
		logger.Ctx(context.Background()).Info().
			Dur("reservation_ttl", next.App.ReservationTTL).
			Int("rules", len(next.Policy.Rules)).
			Msg("checkout config reloaded")
	})

	// 5. 路由
	interfaces.NewCheckoutHandler(checkout, application.NewCartService(carts, admin)).RegisterRoutes(app.Mux)
	invinterfaces.NewAdminHandler(admin).RegisterRoutes(app.Mux)
	invinterfaces.NewCatalogHandler(admin).RegisterRoutes(app.Mux)

	// 6. 后台任务：过期检查消费者、DLT 监听与预占清扫
	failures := mq.NewFailureHandler(dltWriter)
	expiryReader := mq.NewKafkaReader(brokers, topics.ExpiryCheck, expiryConsumerGroup)
	dltReader := mq.NewKafkaReader(brokers, mq.DLTTopic(topics.ExpiryCheck), dltConsumerGroup)
	for _, c := range []*mq.Consumer{
		interfaces.NewExpiryCheckConsumer(expiryReader, checkout, failures),
		interfaces.NewDltConsumer(dltReader),
	} {
		consumer := c
		app.Go(consumer.Run)
		closeOnShutdown(app, "consumer", consumer.Close)
	}

	locker, err := newSweeperLock(app, cfg)
	if err != nil {
		return err
	}
	app.Go(sweeper.New(manager, locker, cfg.App.SweepInterval, checkout.ExpireGroups).Run)

	log.Info().
		Dur("reservation_ttl", checkout.ReservationTTL()).
		Str("payment_provider", cfg.Payment.Provider).
		Msg("checkout service wired")
	return nil
}

// newCartStore 未配置 Redis 时退回进程内存储，仅用于本地开发。
func newCartStore(app bootstrap.AppCtx, cfg *bootstrap.Config) (port.CartStore, error) {
	if cfg.Infra.Redis.Addrs == "" {
		logger.Ctx(app.Context()).Warn().Msg("redis not configured, carts are kept in memory")
		return adapter.NewMemoryCartStore(), nil
	}
	client, err := redis.NewClient(cfg.Infra.Redis.Addrs, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
	if err != nil {
		return nil, err
	}
	closeOnShutdown(app, "redis client", client.Close)
	return adapter.NewCartRedisAdapter(client), nil
}

func newPaymentGateway(app bootstrap.AppCtx, cfg *bootstrap.Config) (port.PaymentGateway, error) {
	switch cfg.Payment.Provider {
	case "", "simulated":
		return adapter.NewSimulatedPaymentGateway(), nil
	case "http":
		baseURL := cfg.Payment.URL
		if baseURL == "" {
			if app.Nacos == nil {
				return nil, errors.New("payment.url is required when nacos is disabled")
			}
			host, instancePort, err := app.Nacos.DiscoverServiceInstance(paymentServiceName)
			if err != nil {
				return nil, errors.Wrap(err, "discover payment service")
			}
			baseURL = fmt.Sprintf("http://%s:%d", host, instancePort)
		}
		client := httpclient.NewClient(otel.Tracer(serviceName + ".payment"))
		client.HTTPClient.Timeout = cfg.Payment.Timeout
		logger.Ctx(app.Context()).Info().Str("url", baseURL).Msg("using http payment gateway")
		return adapter.NewPaymentHTTPAdapter(client, baseURL), nil
	default:
		return nil, errors.Errorf("unknown payment provider %q", cfg.Payment.Provider)
	}
}

// newSweeperLock 多副本部署时用 ZooKeeper 保证同一时刻只有一个清扫者。
func newSweeperLock(app bootstrap.AppCtx, cfg *bootstrap.Config) (zookeeper.Locker, error) {
	if !cfg.Infra.Zookeeper.Enabled {
		return &zookeeper.LocalLock{}, nil
	}
	conn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, cfg.Infra.Zookeeper.SessionTimeout)
	if err != nil {
		return nil, err
	}
	app.OnShutdown(func(context.Context) { conn.Close() })
	return zookeeper.NewDistributedLock(conn, sweeperLockResource)
}

func toRules(in []bootstrap.RuleConfig) []rule.Rule {
	out := make([]rule.Rule, 0, len(in))
	for _, r := range in {
		out = append(out, rule.Rule{Name: r.Name, Scope: r.Scope, Expr: r.Expr, Message: r.Message})
	}
	return out
}

func closeOnShutdown(app bootstrap.AppCtx, name string, closeFn func() error) {
	app.OnShutdown(func(ctx context.Context) {
		if err := closeFn(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("resource", name).Msg("close failed")
		}
	})
}
