package config

import (
	"errors"
	"fmt"
	"os"

	"bookrelay/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Store      StoreConfig      `yaml:"store"`
	Queue      QueueConfig      `yaml:"queue"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type UpstreamConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	APIExtra       string `yaml:"api_extra"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	ProbeSeconds   int    `yaml:"probe_seconds"`
}

type StoreConfig struct {
	// Backend выбирает хранилище очереди: sqlite, redis или memory
	Backend string      `yaml:"backend"`
	Path    string      `yaml:"path"`
	Key     string      `yaml:"key"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type QueueConfig struct {
	MaxRetries           int     `yaml:"max_retries"`
	BaseDelaySeconds     int     `yaml:"base_delay_seconds"`
	MaxDelaySeconds      int     `yaml:"max_delay_seconds"`
	BackoffFactor        float64 `yaml:"backoff_factor"`
	TickSeconds          int     `yaml:"tick_seconds"`
	SuccessWindowSeconds int     `yaml:"success_window_seconds"`
	DrainRPS             float64 `yaml:"drain_rps"`
	DrainBurst           int     `yaml:"drain_burst"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// Подхватываем .env, если он есть рядом с бинарником
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Upstream.BaseURL == "" {
		return errors.New("upstream base_url is required")
	}

	switch c.Store.Backend {
	case "sqlite":
		if c.Store.Path == "" {
			return errors.New("store.path is required for sqlite backend")
		}
	case "redis":
		if c.Store.Redis.Address == "" {
			return errors.New("store.redis.address is required for redis backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}

	if c.Queue.BackoffFactor < 1 {
		return errors.New("queue.backoff_factor must be >= 1")
	}
	if c.Queue.MaxDelaySeconds < c.Queue.BaseDelaySeconds {
		return errors.New("queue.max_delay_seconds must be >= queue.base_delay_seconds")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "bookrelay"
	}

	if c.Store.Backend == "" {
		c.Store.Backend = "sqlite"
	}
	if c.Store.Key == "" {
		c.Store.Key = models.DefaultQueueKey
	}

	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = models.DefaultUpstreamTimeoutSeconds
	}
	if c.Upstream.ProbeSeconds == 0 {
		c.Upstream.ProbeSeconds = models.DefaultProbeSeconds
	}

	if c.Queue.MaxRetries == 0 {
		c.Queue.MaxRetries = models.DefaultMaxRetries
	}
	if c.Queue.BaseDelaySeconds == 0 {
		c.Queue.BaseDelaySeconds = models.DefaultBaseDelaySeconds
	}
	if c.Queue.MaxDelaySeconds == 0 {
		c.Queue.MaxDelaySeconds = models.DefaultMaxDelaySeconds
	}
	if c.Queue.BackoffFactor == 0 {
		c.Queue.BackoffFactor = models.DefaultBackoffFactor
	}
	if c.Queue.TickSeconds == 0 {
		c.Queue.TickSeconds = models.DefaultTickSeconds
	}
	if c.Queue.SuccessWindowSeconds == 0 {
		c.Queue.SuccessWindowSeconds = models.DefaultSuccessWindowSeconds
	}

	if c.API.Enabled && c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
