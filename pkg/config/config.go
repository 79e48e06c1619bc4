package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for both services
type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Logger LoggerConfig `mapstructure:"logger"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	Price  PriceConfig  `mapstructure:"price"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Feed   FeedConfig   `mapstructure:"feed"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

type LoggerConfig struct {
	Level string `mapstructure:"level"`
	Env   string `mapstructure:"env"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers             []string      `mapstructure:"brokers"`
	GroupID             string        `mapstructure:"group_id"`
	ConnectMaxAttempts  int           `mapstructure:"connect_max_attempts"`
	ConnectInitialDelay time.Duration `mapstructure:"connect_initial_delay"`
	ConnectMaxDelay     time.Duration `mapstructure:"connect_max_delay"`
}

type PriceConfig struct {
	APIBaseURL            string        `mapstructure:"api_base_url"`
	CacheTTL              time.Duration `mapstructure:"cache_ttl"`
	SignificanceThreshold float64       `mapstructure:"significance_threshold"`
	FetchMaxAttempts      int           `mapstructure:"fetch_max_attempts"`
	FetchInitialDelay     time.Duration `mapstructure:"fetch_initial_delay"`
	FetchMaxDelay         time.Duration `mapstructure:"fetch_max_delay"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type FeedConfig struct {
	// Positions are "userID:SYMBOL" pairs, e.g. "1:BTC". In production the
	// holdings come from the portfolio service; this static list backs
	// local runs and demos.
	Positions    []string      `mapstructure:"positions"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Load .env into the process environment first so viper sees the values
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	v.SetDefault("app.port", ":8080")
	v.SetDefault("app.env", "local")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.env", "local")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "crypto-notify-group")
	v.SetDefault("kafka.connect_max_attempts", 5)
	v.SetDefault("kafka.connect_initial_delay", "5s")
	v.SetDefault("kafka.connect_max_delay", "30s")

	v.SetDefault("price.api_base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("price.cache_ttl", "60s")
	v.SetDefault("price.significance_threshold", 5.0)
	v.SetDefault("price.fetch_max_attempts", 3)
	v.SetDefault("price.fetch_initial_delay", "1s")
	v.SetDefault("price.fetch_max_delay", "30s")

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("feed.positions", []string{})
	v.SetDefault("feed.poll_interval", "30s")

	// Map dot-notation keys to underscore env vars (price.cache_ttl -> PRICE_CACHE_TTL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Viper needs explicit binds to map flat env vars onto nested structs
	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "logger.level", "logger.env")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.brokers", "kafka.group_id", "kafka.connect_max_attempts", "kafka.connect_initial_delay", "kafka.connect_max_delay")
	bindEnv(v, "price.api_base_url", "price.cache_ttl", "price.significance_threshold", "price.fetch_max_attempts", "price.fetch_initial_delay", "price.fetch_max_delay")
	bindEnv(v, "auth.jwt_secret")
	bindEnv(v, "feed.positions", "feed.poll_interval")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %v", err)
	}

	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers cannot be empty")
	}
	if cfg.Price.SignificanceThreshold <= 0 {
		return nil, fmt.Errorf("significance threshold must be positive, got %v", cfg.Price.SignificanceThreshold)
	}
	if cfg.Price.FetchMaxAttempts < 1 || cfg.Kafka.ConnectMaxAttempts < 1 {
		return nil, fmt.Errorf("retry budgets must allow at least one attempt")
	}

	return &cfg, nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
