package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Observ   ObservabilityConfig
	Auth     AuthConfig
	Backend  BackendConfig
	Cache    CacheConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	PageSize int
}

// DatabaseConfig selects the backing store. An empty URL keeps the in-memory mock.
type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers       []string
	TopicEvents   string
	ConsumerGroup string
}

type ObservabilityConfig struct {
	JaegerEndpoint string
}

type AuthConfig struct {
	DemoPassword string
	JWTSecret    string
	SessionTTL   time.Duration
}

type BackendConfig struct {
	MockLatency time.Duration
	Timeout     time.Duration
}

// CacheConfig holds the freshness window per entity key.
type CacheConfig struct {
	StoresStale          time.Duration
	MembersStale         time.Duration
	OrdersStale          time.Duration
	ProductsStale        time.Duration
	DashboardOrdersStale time.Duration
}

func Load() *Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	pageSize, _ := strconv.Atoi(getEnv("PAGE_SIZE", "10"))

	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnv("PORT", "8080"),
			Env:      getEnv("ENV", "development"),
			PageSize: pageSize,
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(getEnv("KAFKA_BROKERS", "")),
			TopicEvents:   getEnv("KAFKA_TOPIC_STORE_EVENTS", "storefront-events"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "storefront-console"),
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
		},
		Auth: AuthConfig{
			DemoPassword: getEnv("DEMO_PASSWORD", "password"),
			JWTSecret:    getEnv("JWT_SECRET", "storefront-dev-secret"),
			SessionTTL:   getSeconds("SESSION_TTL_SECONDS", 8*60*60),
		},
		Backend: BackendConfig{
			MockLatency: time.Duration(getInt("MOCK_LATENCY_MS", 300)) * time.Millisecond,
			Timeout:     getSeconds("BACKEND_TIMEOUT_SECONDS", 10),
		},
		Cache: CacheConfig{
			StoresStale:          getSeconds("STALE_STORES_SECONDS", 120),
			MembersStale:         getSeconds("STALE_MEMBERS_SECONDS", 120),
			OrdersStale:          getSeconds("STALE_ORDERS_SECONDS", 300),
			ProductsStale:        getSeconds("STALE_PRODUCTS_SECONDS", 300),
			DashboardOrdersStale: getSeconds("STALE_DASHBOARD_ORDERS_SECONDS", 60),
		},
	}

	log.Printf("Config loaded: env=%s, port=%s", cfg.Server.Env, cfg.Server.Port)
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return n
}

func getSeconds(key string, defaultVal int) time.Duration {
	return time.Duration(getInt(key, defaultVal)) * time.Second
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
