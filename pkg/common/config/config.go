package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers    []string
	KafkaGroupID    string
	JobEventsTopic  string

	// Remote executor (hosted training platform)
	ExecutorBaseURL      string
	ExecutorTokenURL     string
	ExecutorClientID     string
	ExecutorClientSecret string
	ExecutorTimeout      time.Duration
	StatusRetryAttempts  int
	StatusRetryBackoff   time.Duration

	// Object storage
	StorageBaseURL string
	StorageBucket  string

	// Deployment platform
	DeployBaseURL      string
	InstanceCatalog    string
	DefaultInstance    string

	// Orchestrator
	PollInterval  time.Duration
	LogCacheTTL   time.Duration
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 4*1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "hypertune"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "hypertune123"),
		PostgresDB:       getEnv("POSTGRES_DB", "hypertune"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:   getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:   getEnv("KAFKA_GROUP_ID", "hypertune-platform"),
		JobEventsTopic: getEnv("JOB_EVENTS_TOPIC", "tuning.job-events"),

		ExecutorBaseURL:      getEnv("EXECUTOR_BASE_URL", "http://localhost:8090"),
		ExecutorTokenURL:     getEnv("EXECUTOR_TOKEN_URL", ""),
		ExecutorClientID:     getEnv("EXECUTOR_CLIENT_ID", ""),
		ExecutorClientSecret: getEnv("EXECUTOR_CLIENT_SECRET", ""),
		ExecutorTimeout:      getDuration("EXECUTOR_TIMEOUT", 15*time.Second),
		StatusRetryAttempts:  getIntEnv("STATUS_RETRY_ATTEMPTS", 3),
		StatusRetryBackoff:   getDuration("STATUS_RETRY_BACKOFF", 200*time.Millisecond),

		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:8091"),
		StorageBucket:  getEnv("STORAGE_BUCKET", "hypertune-datasets"),

		DeployBaseURL:   getEnv("DEPLOY_BASE_URL", "http://localhost:8092"),
		InstanceCatalog: getEnv("INSTANCE_CATALOG", ""),
		DefaultInstance: getEnv("DEFAULT_INSTANCE", "ml.standard.xlarge"),

		PollInterval: getDuration("POLL_INTERVAL", 15*time.Second),
		LogCacheTTL:  getDuration("LOG_CACHE_TTL", 5*time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
