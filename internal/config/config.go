package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Kafka     KafkaConfig
	Redis     RedisConfig
	Portfolio PortfolioConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// KafkaConfig holds Kafka/Redpanda configuration
type KafkaConfig struct {
	Brokers        []string
	TradesTopic    string
	SnapshotsTopic string
	ConsumerGroup  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// PortfolioConfig holds the strategy knobs. Decimal-valued fields stay
// strings here and are parsed once into the engine policy.
type PortfolioConfig struct {
	CapitalBase         string
	NewTickerAllocation string
	StageIncrement      string
	StageDays           int
	StagePriceFactor    string
	ReentryPolicy       string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8081"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "postgres"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "portfolio"),
			Password: getEnv("DB_PASSWORD", "portfolio5"),
			DBName:   getEnv("DB_NAME", "smart_impulse"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Brokers:        parseBrokers(getEnv("KAFKA_BROKERS", "localhost:19092")),
			TradesTopic:    getEnv("KAFKA_TRADES_TOPIC", "portfolio.trades"),
			SnapshotsTopic: getEnv("KAFKA_SNAPSHOTS_TOPIC", "screener.snapshots"),
			ConsumerGroup:  getEnv("KAFKA_CONSUMER_GROUP", "portfolio-service"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       0,
		},
		Portfolio: PortfolioConfig{
			CapitalBase:         getEnv("PORTFOLIO_CAPITAL_BASE", "100000"),
			NewTickerAllocation: getEnv("PORTFOLIO_NEW_TICKER_ALLOCATION", "0.02"),
			StageIncrement:      getEnv("PORTFOLIO_STAGE_INCREMENT", "1500"),
			StageDays:           getEnvInt("PORTFOLIO_STAGE_DAYS", 90),
			StagePriceFactor:    getEnv("PORTFOLIO_STAGE_PRICE_FACTOR", "1.2"),
			ReentryPolicy:       getEnv("PORTFOLIO_REENTRY_POLICY", "keep-history"),
		},
	}
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// parseBrokers splits a comma-separated broker list
func parseBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Address returns the Redis address in host:port format
func (r *RedisConfig) Address() string {
	return r.Host + ":" + r.Port
}
