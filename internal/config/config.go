package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMongo    = "mongo"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type Config struct {
	HTTPPort        string
	ShutdownTimeout time.Duration
	LogLevel        string

	StoreDriver string
	MongoURI    string
	MongoDB     string
	SQLitePath  string
	DatabaseURL string

	RedisAddr string
	CacheTTL  time.Duration

	MaxPayloadBytes int64

	LiveQueueSize       int
	LiveEvictAfterDrops int
	LiveWriteTimeout    time.Duration
	LivePingInterval    time.Duration
	BroadcastInboxSize  int

	// Offload de payloads a S3; desactivado si S3Bucket está vacío.
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3Prefix          string
	S3OffloadMinBytes int

	// Sinks opcionales; cada uno se activa sólo si su dirección está definida.
	KafkaBrokers   []string
	KafkaTopic     string
	NATSURL        string
	NATSSubject    string
	ClickHouseAddr string
	ClickHouseDB   string
}

// LoadConfig lee el entorno (y un .env si existe) con valores por defecto.
func LoadConfig() (*Config, error) {
	// .env es opcional: en contenedores todo llega por el entorno
	_ = godotenv.Load()

	getEnv := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}

	var errs []string
	getInt := func(key string, fallback int) int {
		v := getEnv(key, "")
		if v == "" {
			return fallback
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Sprintf("%s: invalid integer %q", key, v))
			return fallback
		}
		return n
	}
	getDuration := func(key string, fallback time.Duration) time.Duration {
		v := getEnv(key, "")
		if v == "" {
			return fallback
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Sprintf("%s: invalid duration %q", key, v))
			return fallback
		}
		return d
	}

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "5000"),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		LogLevel:        getEnv("LOG_LEVEL", "info"),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreMongo)),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:     getEnv("MONGO_DB", "doorbell"),
		SQLitePath:  getEnv("SQLITE_PATH", "./doorbell.db"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr: getEnv("REDIS_ADDR", ""),
		CacheTTL:  getDuration("CACHE_TTL", 2*time.Minute),

		MaxPayloadBytes: int64(getInt("MAX_PAYLOAD_BYTES", 10<<20)),

		LiveQueueSize:       getInt("LIVE_QUEUE_SIZE", 32),
		LiveEvictAfterDrops: getInt("LIVE_EVICT_AFTER_DROPS", 16),
		LiveWriteTimeout:    getDuration("LIVE_WRITE_TIMEOUT", 5*time.Second),
		LivePingInterval:    getDuration("LIVE_PING_INTERVAL", 30*time.Second),
		BroadcastInboxSize:  getInt("BROADCAST_INBOX_SIZE", 256),

		S3Bucket:          getEnv("S3_BUCKET", ""),
		S3Region:          getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Prefix:          getEnv("S3_PREFIX", "doorbell/payloads/"),
		S3OffloadMinBytes: getInt("S3_OFFLOAD_MIN_BYTES", 256<<10),

		KafkaTopic:     getEnv("KAFKA_TOPIC", "doorbell-events"),
		NATSURL:        getEnv("NATS_URL", ""),
		NATSSubject:    getEnv("NATS_SUBJECT", "doorbell.events"),
		ClickHouseAddr: getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDB:   getEnv("CLICKHOUSE_DB", "default"),
	}

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	switch cfg.StoreDriver {
	case StoreMongo, StoreSQLite:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORE_DRIVER: unknown driver %q", cfg.StoreDriver))
	}
	if cfg.MaxPayloadBytes == 0 {
		errs = append(errs, "MAX_PAYLOAD_BYTES must be positive")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}
