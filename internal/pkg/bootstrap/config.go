package bootstrap

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/nacos"
)

const defaultConfigFile = "configs/checkout.yaml"

// Config 是所有服务共享的配置结构，对应 configs/checkout.yaml。
type Config struct {
	App     AppConfig     `yaml:"app"`
	Infra   InfraConfig   `yaml:"infra"`
	Payment PaymentConfig `yaml:"payment"`
	Policy  PolicyConfig  `yaml:"policy"`
}

type AppConfig struct {
	LogLevel          string        `yaml:"log_level"`
	ReservationTTL    time.Duration `yaml:"reservation_ttl"`
	ProcessingTimeout time.Duration `yaml:"processing_timeout"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	SweepBatchSize    int           `yaml:"sweep_batch_size"`
	TxAttempts        int           `yaml:"tx_attempts"`
	LowStockThreshold int           `yaml:"low_stock_threshold"`
	AdminEmails       []string      `yaml:"admin_emails"`

	// CustomerEmailDomain 把客户 ID 拼成模拟邮箱地址，例如 cust-1@example.com
	CustomerEmailDomain string `yaml:"customer_email_domain"`
}

type InfraConfig struct {
	MySQL     MySQLConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Nacos     NacosConfig     `yaml:"nacos"`
}

type MySQLConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	LogLevel        string        `yaml:"log_level"`
}

type RedisConfig struct {
	Addrs    string `yaml:"addrs"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

type KafkaTopics struct {
	CheckoutEvents  string `yaml:"checkout_events"`
	InventoryEvents string `yaml:"inventory_events"`
	ExpiryCheck     string `yaml:"expiry_check"`
	ExpiryDelay     string `yaml:"expiry_delay"`
}

type JaegerConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type ZookeeperConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

type NacosConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServerAddrs string `yaml:"server_addrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
	DataID      string `yaml:"data_id"`
}

type PaymentConfig struct {
	Provider string        `yaml:"provider"`
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
}

type PolicyConfig struct {
	Rules []RuleConfig `yaml:"rules"`
}

// RuleConfig 是一条 CEL 准入规则，scope 为 cart 或 line。
type RuleConfig struct {
	Name    string `yaml:"name"`
	Scope   string `yaml:"scope"`
	Expr    string `yaml:"expr"`
	Message string `yaml:"message"`
}

var (
	currentConfig atomic.Pointer[Config]

	listenersMu sync.Mutex
	listeners   []func(*Config)
)

// DefaultConfig 返回本地开发使用的默认值。
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			LogLevel:            "info",
			ReservationTTL:      15 * time.Minute,
			ProcessingTimeout:   30 * time.Second,
			SweepInterval:       30 * time.Second,
			SweepBatchSize:      200,
			TxAttempts:          3,
			LowStockThreshold:   10,
			CustomerEmailDomain: "example.com",
		},
		Infra: InfraConfig{
			MySQL: MySQLConfig{
				DSN:             "root:root@tcp(localhost:3306)/storefront?charset=utf8mb4&parseTime=true",
				MaxOpenConns:    50,
				MaxIdleConns:    10,
				ConnMaxLifetime: time.Hour,
			},
			Redis: RedisConfig{Addrs: "localhost:6379"},
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topics: KafkaTopics{
					CheckoutEvents:  "checkout-events",
					InventoryEvents: "inventory-events",
					ExpiryCheck:     "checkout-expiry-check",
					ExpiryDelay:     "delay_topic_1m",
				},
			},
			Jaeger:    JaegerConfig{Endpoint: "http://localhost:14268/api/traces", SampleRatio: 1},
			Zookeeper: ZookeeperConfig{Servers: []string{"localhost:2181"}, SessionTimeout: 10 * time.Second},
			Nacos:     NacosConfig{ServerAddrs: "localhost:8848", Group: "DEFAULT_GROUP", DataID: "checkout.yaml"},
		},
		Payment: PaymentConfig{Provider: "simulated", Timeout: 5 * time.Second},
	}
}

// Init 加载 CONFIG_FILE（默认 configs/checkout.yaml），文件不存在时使用默认值，最后应用环境变量覆盖。
func Init() (*Config, error) {
	path := getEnv("CONFIG_FILE", defaultConfigFile)
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	case os.IsNotExist(err):
		logger.Ctx(context.Background()).Warn().Str("path", path).Msg("config file not found, using defaults")
	default:
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	applyEnvOverrides(cfg)
	setConfig(cfg)
	return cfg, nil
}

// GetCurrentConfig 返回当前生效的配置；Nacos 推送变更后会被原子替换。
func GetCurrentConfig() *Config {
	if cfg := currentConfig.Load(); cfg != nil {
		return cfg
	}
	return DefaultConfig()
}

// OnConfigChange 注册配置热更新回调。
func OnConfigChange(fn func(*Config)) {
	listenersMu.Lock()
	defer listenersMu.Unlock()
	listeners = append(listeners, fn)
}

func setConfig(cfg *Config) {
	currentConfig.Store(cfg)
	listenersMu.Lock()
	fns := append([]func(*Config){}, listeners...)
	listenersMu.Unlock()
	for _, fn := range fns {
		fn(cfg)
	}
}

// applyRemoteConfig 把 Nacos 上的 YAML 覆盖到当前配置的副本上。
func applyRemoteConfig(content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	next := *GetCurrentConfig()
	if err := yaml.Unmarshal([]byte(content), &next); err != nil {
		return errors.Wrap(err, "parse remote config")
	}
	applyEnvOverrides(&next)
	setConfig(&next)
	return nil
}

func watchRemoteConfig(client *nacos.Client, dataID string) error {
	content, err := client.GetConfig(dataID)
	if err != nil {
		return err
	}
	if err := applyRemoteConfig(content); err != nil {
		return err
	}
	return client.ListenConfig(dataID, func(content string) {
		if err := applyRemoteConfig(content); err != nil {
			logger.Ctx(context.Background()).Error().Err(err).Str("data_id", dataID).Msg("ignoring invalid remote config")
		}
	})
}

func applyEnvOverrides(cfg *Config) {
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)
	cfg.Infra.MySQL.DSN = getEnv("MYSQL_DSN", cfg.Infra.MySQL.DSN)
	cfg.Infra.Redis.Addrs = getEnv("REDIS_ADDRS", cfg.Infra.Redis.Addrs)
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)
	cfg.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", cfg.Infra.Nacos.ServerAddrs)
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)
	cfg.Payment.URL = getEnv("PAYMENT_URL", cfg.Payment.URL)
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		cfg.Infra.Kafka.Brokers = splitList(v)
	}
	if v, ok := os.LookupEnv("ZK_SERVERS"); ok {
		cfg.Infra.Zookeeper.Servers = splitList(v)
	}
	if v, ok := os.LookupEnv("NACOS_ENABLED"); ok {
		cfg.Infra.Nacos.Enabled, _ = strconv.ParseBool(v)
	}
	if v, ok := os.LookupEnv("ZK_ENABLED"); ok {
		cfg.Infra.Zookeeper.Enabled, _ = strconv.ParseBool(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
