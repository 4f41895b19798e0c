package model

import (
	"fmt"
	"time"
)

// Config holds all runtime configuration. It is built once at startup and
// passed into each component constructor.
type Config struct {
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Merge      MergeConfig      `yaml:"merge" mapstructure:"merge"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" mapstructure:"scheduler"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
}

// DatabaseConfig selects and configures the store
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" mapstructure:"driver"` // "memory" or "postgres"
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	DBName          string        `yaml:"dbname" mapstructure:"dbname"`
	SSLMode         string        `yaml:"sslmode" mapstructure:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	Migrate         bool          `yaml:"migrate" mapstructure:"migrate"`
}

// FetchConfig configures page retrieval
type FetchConfig struct {
	Timeout              time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent            string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes         int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	Renderer             string        `yaml:"renderer" mapstructure:"renderer"` // "http" or "chrome"
	RespectRobots        bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	BlockedHosts         []string      `yaml:"blocked_hosts" mapstructure:"blocked_hosts"`
	MaxAttempts          int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	HostFailureThreshold int           `yaml:"host_failure_threshold" mapstructure:"host_failure_threshold"`
	InsecureTLS          bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	HTTPProxy            string        `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy           string        `yaml:"https_proxy" mapstructure:"https_proxy"`
	NoProxy              string        `yaml:"no_proxy" mapstructure:"no_proxy"`
}

// PipelineConfig configures batch processing and the quality gate
type PipelineConfig struct {
	BatchSize           int           `yaml:"batch_size" mapstructure:"batch_size"`
	Concurrency         int           `yaml:"concurrency" mapstructure:"concurrency"`
	HostDelay           time.Duration `yaml:"host_delay" mapstructure:"host_delay"`
	MinContentChars     int           `yaml:"min_content_chars" mapstructure:"min_content_chars"`
	MaxContentChars     int           `yaml:"max_content_chars" mapstructure:"max_content_chars"`
	MaxDescriptionChars int           `yaml:"max_description_chars" mapstructure:"max_description_chars"`
	MaxNameChars        int           `yaml:"max_name_chars" mapstructure:"max_name_chars"`
	UseLLM              bool          `yaml:"use_llm" mapstructure:"use_llm"`
}

// ClassifierConfig extends the built-in vocabularies
type ClassifierConfig struct {
	GovernmentDomains  []string `yaml:"government_domains" mapstructure:"government_domains"`
	IndigenousKeywords []string `yaml:"indigenous_keywords" mapstructure:"indigenous_keywords"`
}

// LLMConfig configures the optional extraction service
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // "openai", "anthropic", "ollama" or empty
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// MergeConfig configures the merge job lock
type MergeConfig struct {
	Lock    string        `yaml:"lock" mapstructure:"lock"` // "local" or "redis"
	LockKey string        `yaml:"lock_key" mapstructure:"lock_key"`
	LockTTL time.Duration `yaml:"lock_ttl" mapstructure:"lock_ttl"`
}

// ServerConfig configures the admin API
type ServerConfig struct {
	Address      string        `yaml:"address" mapstructure:"address"`
	Mode         string        `yaml:"mode" mapstructure:"mode"` // gin mode
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// SchedulerConfig configures periodic jobs
type SchedulerConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	ProcessSchedule string `yaml:"process_schedule" mapstructure:"process_schedule"`
	MergeSchedule   string `yaml:"merge_schedule" mapstructure:"merge_schedule"`
	MergeLive       bool   `yaml:"merge_live" mapstructure:"merge_live"`
}

// LogConfig configures structured logging
type LogConfig struct {
	Level       string `yaml:"level" mapstructure:"level"`
	Format      string `yaml:"format" mapstructure:"format"` // "json" or "console"
	Development bool   `yaml:"development" mapstructure:"development"`
}

// CacheConfig configures the fetched-page cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
	Dir     string        `yaml:"dir" mapstructure:"dir"` // Empty keeps the cache in memory only
}

// RedisConfig configures the optional Redis connection
type RedisConfig struct {
	Address  string `yaml:"address" mapstructure:"address"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:          "memory",
			Host:            "localhost",
			Port:            5432,
			User:            "alma",
			DBName:          "alma",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			Migrate:         true,
		},
		Fetch: FetchConfig{
			Timeout:       30 * time.Second,
			UserAgent:     "ALMA-Bot/1.0 (+https://justicehub.org.au/alma)",
			MaxBodyBytes:  5_000_000,
			Renderer:      "http",
			RespectRobots: true,
			BlockedHosts: []string{
				"facebook.com", "twitter.com", "x.com", "instagram.com",
				"linkedin.com", "youtube.com", "tiktok.com",
			},
			MaxAttempts:          3,
			HostFailureThreshold: 3,
		},
		Pipeline: PipelineConfig{
			BatchSize:           10,
			Concurrency:         2,
			HostDelay:           1500 * time.Millisecond,
			MinContentChars:     300,
			MaxContentChars:     15000,
			MaxDescriptionChars: 500,
			MaxNameChars:        200,
		},
		LLM: LLMConfig{
			Timeout:   30,
			MaxTokens: 1500,
		},
		Merge: MergeConfig{
			Lock:    "local",
			LockKey: "alma:merge:lock",
			LockTTL: 30 * time.Minute,
		},
		Server: ServerConfig{
			Address:      ":8080",
			Mode:         "release",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 10 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			ProcessSchedule: "*/15 * * * *",
			MergeSchedule:   "0 3 * * *",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     10 * time.Minute,
		},
	}
}

// Validate checks for settings the components cannot run with
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("database.driver must be memory or postgres, got %q", c.Database.Driver)
	}
	switch c.Fetch.Renderer {
	case "", "http", "chrome":
	default:
		return fmt.Errorf("fetch.renderer must be http or chrome, got %q", c.Fetch.Renderer)
	}
	switch c.Merge.Lock {
	case "", "local":
	case "redis":
		if c.Redis.Address == "" {
			return fmt.Errorf("merge.lock is redis but redis.address is empty")
		}
	default:
		return fmt.Errorf("merge.lock must be local or redis, got %q", c.Merge.Lock)
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive")
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be positive")
	}
	if c.Pipeline.MinContentChars < 0 {
		return fmt.Errorf("pipeline.min_content_chars must not be negative")
	}
	if c.Pipeline.UseLLM && c.LLM.Provider == "" {
		return fmt.Errorf("pipeline.use_llm requires llm.provider")
	}
	return nil
}

// DSN builds a lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}
