package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. Values come from an optional
// YAML file (CONFIG_FILE) and are then overridden by environment variables.
type Config struct {
	HTTPAddr       string        `yaml:"http_addr"`
	LogLevel       string        `yaml:"log_level"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Store backend: "redis" or "sqlite"
	StoreBackend string `yaml:"store_backend"`

	Redis  RedisConfig  `yaml:"redis"`
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Statistics
	ParallelWorkers int `yaml:"parallel_workers"` // 0 = GOMAXPROCS

	// Live feed
	StreamInterval time.Duration `yaml:"stream_interval"`
}

// RedisConfig configures the Redis connection pool and circuit breaker.
type RedisConfig struct {
	Addr               string        `yaml:"addr"`
	Password           string        `yaml:"password"`
	DB                 int           `yaml:"db"`
	PoolSize           int           `yaml:"pool_size"`
	MinIdleConns       int           `yaml:"min_idle_conns"`
	PoolTimeout        time.Duration `yaml:"pool_timeout"`
	BreakerMaxFailures int           `yaml:"breaker_max_failures"`
	BreakerReset       time.Duration `yaml:"breaker_reset"`
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	Path     string `yaml:"path"`
	MaxConns int    `yaml:"max_conns"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		HTTPAddr:       ":8080",
		LogLevel:       "info",
		RequestTimeout: 5 * time.Second,
		StoreBackend:   "redis",
		Redis: RedisConfig{
			Addr:               "localhost:6379",
			PoolSize:           16,
			MinIdleConns:       4,
			PoolTimeout:        4 * time.Second,
			BreakerMaxFailures: 5,
			BreakerReset:       10 * time.Second,
		},
		SQLite: SQLiteConfig{
			Path:     "data/observations.db",
			MaxConns: 4,
		},
		StreamInterval: time.Second,
	}
}

// Load builds the configuration from defaults, CONFIG_FILE and the environment.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", c.RequestTimeout)
	c.StoreBackend = getEnv("STORE_BACKEND", c.StoreBackend)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)
	c.Redis.PoolSize = getEnvInt("REDIS_POOL_SIZE", c.Redis.PoolSize)
	c.Redis.MinIdleConns = getEnvInt("REDIS_MIN_IDLE", c.Redis.MinIdleConns)
	c.Redis.PoolTimeout = getEnvDuration("REDIS_POOL_TIMEOUT", c.Redis.PoolTimeout)
	c.Redis.BreakerMaxFailures = getEnvInt("BREAKER_MAX_FAILURES", c.Redis.BreakerMaxFailures)
	c.Redis.BreakerReset = getEnvDuration("BREAKER_RESET", c.Redis.BreakerReset)

	c.SQLite.Path = getEnv("SQLITE_PATH", c.SQLite.Path)
	c.SQLite.MaxConns = getEnvInt("SQLITE_MAX_CONNS", c.SQLite.MaxConns)

	c.ParallelWorkers = getEnvInt("PARALLEL_WORKERS", c.ParallelWorkers)
	c.StreamInterval = getEnvDuration("STREAM_INTERVAL", c.StreamInterval)
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("http address cannot be empty")
	}
	switch c.StoreBackend {
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address cannot be empty")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis pool size must be positive, got %d", c.Redis.PoolSize)
		}
		if c.Redis.MinIdleConns < 0 || c.Redis.MinIdleConns > c.Redis.PoolSize {
			return fmt.Errorf("redis min idle conns must be in [0, %d], got %d", c.Redis.PoolSize, c.Redis.MinIdleConns)
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite path cannot be empty")
		}
	default:
		return fmt.Errorf("unknown store backend %q (want redis or sqlite)", c.StoreBackend)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.ParallelWorkers < 0 {
		return fmt.Errorf("parallel workers cannot be negative")
	}
	if c.StreamInterval <= 0 {
		return fmt.Errorf("stream interval must be greater than 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] ignoring invalid %s=%q: %v", key, v, err)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] ignoring invalid %s=%q: %v", key, v, err)
		return fallback
	}
	return d
}
