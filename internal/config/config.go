package config

import (
	"os"
	"strings"
)

type Config struct {
	HTTPAddr       string
	ObsHTTPAddr    string
	RedisAddr      string
	RedisEnabled   bool
	KafkaBrokers   []string
	IngestTopics   []string
	IngestGroup    string
	NotifTopic     string
	KafkaEnabled   bool
	PostgresURL    string
	PersistEnabled bool
	JWTSecret      string
	ServiceName    string
	InstanceID     string
	MetricsEnabled bool
}

func Load() *Config {
	return &Config{
		HTTPAddr:       fixPort(getEnv("HTTP_PORT", ":8080")),
		ObsHTTPAddr:    fixPort(getEnv("OBS_HTTP_ADDR", ":8090")),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisEnabled:   getEnvBool("REDIS_ENABLED", false),
		KafkaBrokers:   strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		IngestTopics:   strings.Split(getEnv("INGEST_TOPICS", "group-events"), ","),
		IngestGroup:    getEnv("INGEST_GROUP", "realtime-gateway-group"),
		NotifTopic:     getEnv("NOTIFICATION_TOPIC", "notification-events"),
		KafkaEnabled:   getEnvBool("KAFKA_ENABLED", false),
		PostgresURL:    getEnv("POSTGRES_URL", ""),
		PersistEnabled: getEnvBool("PERSIST_ENABLED", false),
		JWTSecret:      getEnv("JWT_SECRET", "secret"),
		ServiceName:    getEnv("SERVICE_NAME", "realtime-gateway"),
		InstanceID:     getEnv("INSTANCE_ID", getEnv("HOSTNAME", "")),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}
}

func fixPort(port string) string {
	if port != "" && !strings.HasPrefix(port, ":") {
		return ":" + port
	}
	return port
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "true"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
