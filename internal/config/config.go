package config

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Deployment modes.
const (
	ModeDirect = "direct"
	ModeProxy  = "proxy"
)

// Config holds all application configuration.
type Config struct {
	Mode      string          `yaml:"mode" envconfig:"MODE" default:"direct"`
	LogLevel  string          `yaml:"log_level" envconfig:"LOG_LEVEL" default:"info"`
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Scratch   ScratchConfig   `yaml:"scratch"`
	YouTube   YouTubeConfig   `yaml:"youtube"`
	Cache     CacheConfig     `yaml:"cache"`
	History   HistoryConfig   `yaml:"history"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host           string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port           int           `yaml:"port" envconfig:"PORT" default:"3000"`
	APIKey         string        `yaml:"api_key" envconfig:"API_KEY"`
	StaticDir      string        `yaml:"static_dir" envconfig:"STATIC_DIR"`
	ReadTimeout    time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"0s"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"SERVER_REQUEST_TIMEOUT" default:"0s"`
	RateLimit      float64       `yaml:"rate_limit" envconfig:"RATE_LIMIT" default:"0"`
	RateBurst      int           `yaml:"rate_burst" envconfig:"RATE_BURST" default:"10"`
}

// UpstreamConfig points a proxy-mode front at a direct-mode worker.
type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url" envconfig:"UPSTREAM_URL"`
	Timeout time.Duration `yaml:"timeout" envconfig:"UPSTREAM_TIMEOUT" default:"30s"`
}

// ExtractorConfig holds yt-dlp invocation settings.
type ExtractorConfig struct {
	// Path is an absolute path or a binary name resolved through PATH.
	Path          string `yaml:"path" envconfig:"EXTRACTOR_PATH" default:"yt-dlp"`
	SocketTimeout int    `yaml:"socket_timeout" envconfig:"EXTRACTOR_SOCKET_TIMEOUT" default:"30"`
	MaxHeight     int    `yaml:"max_height" envconfig:"MAX_HEIGHT" default:"480"`
}

// ScratchConfig holds temporary download storage configuration.
type ScratchConfig struct {
	Dir           string        `yaml:"dir" envconfig:"SCRATCH_DIR" default:"downloads"`
	MaxAge        time.Duration `yaml:"max_age" envconfig:"SCRATCH_MAX_AGE" default:"1h"`
	SweepInterval time.Duration `yaml:"sweep_interval" envconfig:"SCRATCH_SWEEP_INTERVAL" default:"10m"`
}

// YouTubeConfig holds the Data API settings used when no extractor is available.
type YouTubeConfig struct {
	APIKey  string        `yaml:"api_key" envconfig:"YOUTUBE_API_KEY"`
	BaseURL string        `yaml:"base_url" envconfig:"YOUTUBE_BASE_URL" default:"https://www.googleapis.com/youtube/v3"`
	Timeout time.Duration `yaml:"timeout" envconfig:"YOUTUBE_TIMEOUT" default:"10s"`
}

// CacheConfig holds metadata cache configuration.
type CacheConfig struct {
	Driver        string        `yaml:"driver" envconfig:"CACHE_DRIVER" default:"memory"`
	TTL           time.Duration `yaml:"ttl" envconfig:"CACHE_TTL" default:"15m"`
	RedisAddr     string        `yaml:"redis_addr" envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `yaml:"redis_password" envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" envconfig:"REDIS_DB" default:"0"`
}

// HistoryConfig holds request history storage configuration.
type HistoryConfig struct {
	Driver string `yaml:"driver" envconfig:"HISTORY_DRIVER" default:"memory"`
	Path   string `yaml:"path" envconfig:"HISTORY_PATH" default:"data/history.db"`
}

// Load builds the configuration from defaults, then the optional YAML file,
// then environment variables that are actually set.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Defaults and environment in one pass.
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		fromFile := *cfg
		if err := yaml.Unmarshal(data, &fromFile); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		keepSetEnv(reflect.ValueOf(&fromFile).Elem(), reflect.ValueOf(cfg).Elem(), "")
		cfg = &fromFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// keepSetEnv copies into dst each field of src whose environment variable is
// present. Keys follow envconfig: the tag itself or PARENT_TAG for nested
// structs.
func keepSetEnv(dst, src reflect.Value, prefix string) {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Type.Kind() == reflect.Struct {
			keepSetEnv(dst.Field(i), src.Field(i), strings.ToUpper(f.Name))
			continue
		}
		key := f.Tag.Get("envconfig")
		if key == "" {
			continue
		}
		_, set := os.LookupEnv(key)
		if !set && prefix != "" {
			_, set = os.LookupEnv(prefix + "_" + strings.ToUpper(key))
		}
		if set {
			dst.Field(i).Set(src.Field(i))
		}
	}
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeDirect:
		if c.Extractor.Path == "" {
			return fmt.Errorf("EXTRACTOR_PATH is required")
		}
		if c.Scratch.Dir == "" {
			return fmt.Errorf("SCRATCH_DIR is required")
		}
		if c.Extractor.MaxHeight <= 0 {
			return fmt.Errorf("MAX_HEIGHT must be positive")
		}
	case ModeProxy:
		if c.Upstream.BaseURL == "" {
			return fmt.Errorf("UPSTREAM_URL is required in proxy mode")
		}
		u, err := url.Parse(c.Upstream.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("UPSTREAM_URL must be an absolute URL")
		}
	default:
		return fmt.Errorf("MODE must be %q or %q, got %q", ModeDirect, ModeProxy, c.Mode)
	}

	switch c.Cache.Driver {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("CACHE_DRIVER must be memory, redis or none")
	}

	switch c.History.Driver {
	case "memory":
	case "sqlite":
		if c.History.Path == "" {
			return fmt.Errorf("HISTORY_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("HISTORY_DRIVER must be memory or sqlite")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
