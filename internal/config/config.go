// Package config loads application configuration from a YAML file, .env and
// environment variables via viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       App       `mapstructure:"app"`
	AI        AI        `mapstructure:"ai"`
	Store     Store     `mapstructure:"store"`
	Server    Server    `mapstructure:"server"`
	Pipeline  Pipeline  `mapstructure:"pipeline"`
	Sentiment Sentiment `mapstructure:"sentiment"`
	Redis     Redis     `mapstructure:"redis"`
	Logging   Logging   `mapstructure:"logging"`
}

// App holds general application configuration.
type App struct {
	Debug   bool   `mapstructure:"debug"`
	DataDir string `mapstructure:"data_dir"`
}

// AI holds LLM provider configuration.
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration.
type GeminiConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	Timeout string `mapstructure:"timeout"`
}

// Store holds persistence configuration. Backend selects sqlite (default,
// single node) or postgres (multi-replica).
type Store struct {
	Backend     string `mapstructure:"backend"`
	PostgresURL string `mapstructure:"postgres_url"`
	Retention   string `mapstructure:"retention"`
}

// Server holds HTTP server configuration.
type Server struct {
	Host        string    `mapstructure:"host"`
	Port        int       `mapstructure:"port"`
	CORSOrigins []string  `mapstructure:"cors_origins"`
	RateLimit   RateLimit `mapstructure:"rate_limit"`
}

// RateLimit holds the enqueue rate limiter configuration.
type RateLimit struct {
	Requests int    `mapstructure:"requests"`
	Window   string `mapstructure:"window"`
	Backend  string `mapstructure:"backend"` // memory or redis
}

// Pipeline holds orchestrator and dispatcher configuration.
type Pipeline struct {
	CacheTTL            string `mapstructure:"cache_ttl"`
	MinFilteredComments int    `mapstructure:"min_filtered_comments"`
	Workers             int    `mapstructure:"workers"`
	QueueSize           int    `mapstructure:"queue_size"`
}

// Sentiment holds sentiment stage configuration.
type Sentiment struct {
	BatchSize                int     `mapstructure:"batch_size"`
	MaxRetries               int     `mapstructure:"max_retries"`
	RetryConfidenceThreshold float64 `mapstructure:"retry_confidence_threshold"`
}

// Redis holds redis connection configuration for the rate limiter.
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Logging holds logging configuration.
type Logging struct {
	Level string `mapstructure:"level"`
}

var globalConfig *Config

// Load loads the configuration from file, .env and environment.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".commentpulse")
		viper.SetConfigType("yaml")
	}

	setDefaults()

	viper.SetEnvPrefix("COMMENTPULSE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.data_dir", ".commentpulse-data")

	viper.SetDefault("ai.gemini.model", "gemini-flash-lite-latest")
	viper.SetDefault("ai.gemini.timeout", "30s")

	viper.SetDefault("store.backend", "sqlite")
	viper.SetDefault("store.retention", "720h")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.cors_origins", []string{"*"})
	viper.SetDefault("server.rate_limit.requests", 30)
	viper.SetDefault("server.rate_limit.window", "1m")
	viper.SetDefault("server.rate_limit.backend", "memory")

	viper.SetDefault("pipeline.cache_ttl", "24h")
	viper.SetDefault("pipeline.min_filtered_comments", 5)
	viper.SetDefault("pipeline.workers", 2)
	viper.SetDefault("pipeline.queue_size", 32)

	viper.SetDefault("sentiment.batch_size", 10)
	viper.SetDefault("sentiment.max_retries", 3)
	viper.SetDefault("sentiment.retry_confidence_threshold", 0.0)

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("logging.level", "info")
}

func validateConfig(config *Config) error {
	switch config.Store.Backend {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid store backend %q (expected sqlite or postgres)", config.Store.Backend)
	}

	if config.Store.Backend == "postgres" && config.Store.PostgresURL == "" {
		return fmt.Errorf("store.postgres_url is required when store.backend is postgres")
	}

	switch config.Server.RateLimit.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid rate limit backend %q (expected memory or redis)", config.Server.RateLimit.Backend)
	}

	return nil
}

// CacheTTLDuration parses the configured pipeline cache TTL, defaulting to 24h.
func (p Pipeline) CacheTTLDuration() time.Duration {
	return parseDuration(p.CacheTTL, 24*time.Hour)
}

// WindowDuration parses the rate limit window, defaulting to one minute.
func (r RateLimit) WindowDuration() time.Duration {
	return parseDuration(r.Window, time.Minute)
}

// RetentionDuration parses the store retention window, defaulting to 30 days.
func (s Store) RetentionDuration() time.Duration {
	return parseDuration(s.Retention, 720*time.Hour)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
