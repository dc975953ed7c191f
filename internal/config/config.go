package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Auth       AuthConfig
	Settlement SettlementConfig
	Worker     WorkerConfig
	Logging    LoggingConfig
	EventBus   EventBusConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ShutdownTimeout time.Duration
}

type StorageConfig struct {
	Driver       string
	Path         string
	MaxOpenConns int
	BusyTimeout  time.Duration
	PingTimeout  time.Duration
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type SettlementConfig struct {
	MaxAttempts    int
	RetryBaseDelay time.Duration
	QuantityScale  int32
	AmountScale    int32
}

type WorkerConfig struct {
	PoolSize   int
	MaxRetries int
}

type LoggingConfig struct {
	Level string
}

type EventBusConfig struct {
	ChannelBufferSize int
}

const (
	StorageDriverSQLite = "sqlite"
	StorageDriverMemory = "memory"
)

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using default values")
	}

	return &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			Driver:       getEnv("STORAGE_DRIVER", StorageDriverSQLite),
			Path:         getEnv("DATABASE_PATH", "residue_market.db"),
			MaxOpenConns: getIntEnv("DB_MAX_OPEN_CONNS", 1),
			BusyTimeout:  getDurationEnv("DB_BUSY_TIMEOUT", 5*time.Second),
			PingTimeout:  getDurationEnv("DB_PING_TIMEOUT", 5*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),
			TokenTTL:  getDurationEnv("TOKEN_TTL", 24*time.Hour),
		},
		Settlement: SettlementConfig{
			MaxAttempts:    getIntEnv("SETTLEMENT_MAX_ATTEMPTS", 3),
			RetryBaseDelay: getDurationEnv("SETTLEMENT_RETRY_BASE_DELAY", 50*time.Millisecond),
			QuantityScale:  int32(getIntEnv("QUANTITY_SCALE", 3)),
			AmountScale:    int32(getIntEnv("AMOUNT_SCALE", 2)),
		},
		Worker: WorkerConfig{
			PoolSize:   getIntEnv("WORKER_POOL_SIZE", 4),
			MaxRetries: getIntEnv("MAX_RETRIES", 5),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		EventBus: EventBusConfig{
			ChannelBufferSize: getIntEnv("EVENT_CHANNEL_BUFFER_SIZE", 1000),
		},
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntEnv(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid value for %s: %s, using default: %d", key, valueStr, defaultValue)
		return defaultValue
	}

	return value
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration for %s: %s, using default: %s", key, valueStr, defaultValue)
		return defaultValue
	}

	return value
}
