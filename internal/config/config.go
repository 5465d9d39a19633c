package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// viper key，对应的环境变量为大写形式（http_addr -> HTTP_ADDR）。
const (
	KeyHTTPAddr          = "http_addr"
	KeyDBDriver          = "db_driver"
	KeyDBDSN             = "db_dsn"
	KeyDBDebug           = "db_debug"
	KeyRedisAddr         = "redis_addr"
	KeyRedisPassword     = "redis_password"
	KeyRedisDB           = "redis_db"
	KeyShopCacheStrategy = "shop_cache_strategy"
	KeyShopCacheTTLMin   = "shop_cache_ttl_min"
	KeyRebuildWorkers    = "rebuild_workers"
	KeyQueueBackend      = "queue_backend"
	KeyQueueCapacity     = "queue_capacity"
	KeyOrderStream       = "order_stream"
	KeyOrderGroup        = "order_group"
	KeyOrderConsumer     = "order_consumer"
	KeyKafkaBrokers      = "kafka_brokers"
	KeyKafkaTopic        = "kafka_topic"
	KeyKafkaGroupID      = "kafka_group_id"
	KeyAdminToken        = "admin_token"
	KeyLogLevel          = "log_level"
	KeyLogFormat         = "log_format"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string

	DBDriver string // sqlite | mysql
	DBDSN    string
	DBDebug  bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// 店铺缓存策略：passthrough | logical | mutex
	ShopCacheStrategy string
	ShopCacheTTL      time.Duration
	RebuildWorkers    int

	// 订单队列：memory 为进程内队列，stream / kafka 可重投递
	QueueBackend  string
	QueueCapacity int

	OrderStream   string
	OrderGroup    string
	OrderConsumer string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// 管理接口的简单令牌（demo 级别保护）
	AdminToken string

	LogLevel  string
	LogFormat string
}

// LoadDotEnv 读取 .env 文件到进程环境变量，文件不存在不算错误。
// 已存在的环境变量不会被覆盖。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// NewViper 创建带默认值并读取环境变量的 viper 实例。
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyHTTPAddr, ":8080")
	v.SetDefault(KeyDBDriver, "sqlite")
	v.SetDefault(KeyDBDSN, "dianping.db")
	v.SetDefault(KeyDBDebug, false)
	v.SetDefault(KeyRedisAddr, "localhost:6379")
	v.SetDefault(KeyRedisPassword, "")
	v.SetDefault(KeyRedisDB, 0)
	v.SetDefault(KeyShopCacheStrategy, "passthrough")
	v.SetDefault(KeyShopCacheTTLMin, 30)
	v.SetDefault(KeyRebuildWorkers, 10)
	v.SetDefault(KeyQueueBackend, "memory")
	v.SetDefault(KeyQueueCapacity, 1<<20)
	v.SetDefault(KeyOrderStream, "stream.orders")
	v.SetDefault(KeyOrderGroup, "order-group")
	v.SetDefault(KeyOrderConsumer, "order-worker-1")
	v.SetDefault(KeyKafkaBrokers, "localhost:9092")
	v.SetDefault(KeyKafkaTopic, "seckill-orders")
	v.SetDefault(KeyKafkaGroupID, "seckill-order-worker")
	v.SetDefault(KeyAdminToken, "dev-admin-token")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.AutomaticEnv()
	return v
}

// Load 读取并校验配置，缺失时使用默认值。
func Load(v *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:          strings.TrimSpace(v.GetString(KeyHTTPAddr)),
		DBDriver:          strings.ToLower(strings.TrimSpace(v.GetString(KeyDBDriver))),
		DBDSN:             strings.TrimSpace(v.GetString(KeyDBDSN)),
		DBDebug:           v.GetBool(KeyDBDebug),
		RedisAddr:         strings.TrimSpace(v.GetString(KeyRedisAddr)),
		RedisPassword:     v.GetString(KeyRedisPassword),
		RedisDB:           v.GetInt(KeyRedisDB),
		ShopCacheStrategy: strings.ToLower(strings.TrimSpace(v.GetString(KeyShopCacheStrategy))),
		ShopCacheTTL:      time.Duration(v.GetInt(KeyShopCacheTTLMin)) * time.Minute,
		RebuildWorkers:    v.GetInt(KeyRebuildWorkers),
		QueueBackend:      strings.ToLower(strings.TrimSpace(v.GetString(KeyQueueBackend))),
		QueueCapacity:     v.GetInt(KeyQueueCapacity),
		OrderStream:       strings.TrimSpace(v.GetString(KeyOrderStream)),
		OrderGroup:        strings.TrimSpace(v.GetString(KeyOrderGroup)),
		OrderConsumer:     strings.TrimSpace(v.GetString(KeyOrderConsumer)),
		KafkaBrokers:      splitCSV(v.GetString(KeyKafkaBrokers)),
		KafkaTopic:        strings.TrimSpace(v.GetString(KeyKafkaTopic)),
		KafkaGroupID:      strings.TrimSpace(v.GetString(KeyKafkaGroupID)),
		AdminToken:        strings.TrimSpace(v.GetString(KeyAdminToken)),
		LogLevel:          strings.TrimSpace(v.GetString(KeyLogLevel)),
		LogFormat:         strings.ToLower(strings.TrimSpace(v.GetString(KeyLogFormat))),
	}

	if cfg.HTTPAddr == "" {
		return AppConfig{}, fmt.Errorf("HTTP_ADDR must not be empty")
	}
	switch cfg.DBDriver {
	case "sqlite", "mysql":
	default:
		return AppConfig{}, fmt.Errorf("DB_DRIVER must be sqlite or mysql, got %q", cfg.DBDriver)
	}
	if cfg.DBDSN == "" {
		return AppConfig{}, fmt.Errorf("DB_DSN must not be empty")
	}
	if cfg.RedisAddr == "" {
		return AppConfig{}, fmt.Errorf("REDIS_ADDR must not be empty")
	}
	if cfg.RedisDB < 0 {
		return AppConfig{}, fmt.Errorf("REDIS_DB must be >= 0")
	}
	switch cfg.ShopCacheStrategy {
	case "passthrough", "logical", "mutex":
	default:
		return AppConfig{}, fmt.Errorf("SHOP_CACHE_STRATEGY must be passthrough, logical or mutex, got %q", cfg.ShopCacheStrategy)
	}
	if cfg.ShopCacheTTL <= 0 {
		return AppConfig{}, fmt.Errorf("SHOP_CACHE_TTL_MIN must be > 0")
	}
	if cfg.RebuildWorkers <= 0 {
		return AppConfig{}, fmt.Errorf("REBUILD_WORKERS must be > 0")
	}
	if cfg.QueueCapacity <= 0 {
		return AppConfig{}, fmt.Errorf("QUEUE_CAPACITY must be > 0")
	}

	switch cfg.QueueBackend {
	case "memory":
	case "stream":
		if cfg.OrderStream == "" || cfg.OrderGroup == "" || cfg.OrderConsumer == "" {
			return AppConfig{}, fmt.Errorf("ORDER_STREAM, ORDER_GROUP and ORDER_CONSUMER must not be empty")
		}
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
		}
		if cfg.KafkaTopic == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
		}
		if cfg.KafkaGroupID == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_GROUP_ID must not be empty")
		}
	default:
		return AppConfig{}, fmt.Errorf("QUEUE_BACKEND must be memory, stream or kafka, got %q", cfg.QueueBackend)
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return AppConfig{}, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	return cfg, nil
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
