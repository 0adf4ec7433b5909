package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration. Values are layered:
// defaults, then TOML file(s), then environment variables, then CLI flags.
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	Database    DatabaseConfig  `toml:"database"`
	Worker      WorkerConfig    `toml:"worker"`
	Scraper     ScraperConfig   `toml:"scraper"`
	Render      RenderConfig    `toml:"render"`
	Logging     LoggingConfig   `toml:"logging"`
	Claude      ClaudeConfig    `toml:"claude"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Scheduler   SchedulerConfig `toml:"scheduler"`

	// ConfigPath records the file the running config was loaded from so the
	// reload watcher knows what to watch.
	ConfigPath string `toml:"-"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
}

type DatabaseConfig struct {
	Path string `toml:"path" validate:"required"`
}

// WorkerConfig holds the static poll-loop settings; the dynamic equivalents
// (poll interval, batch size, minimum match score) live in the settings
// store and override these at runtime.
type WorkerConfig struct {
	PollInterval time.Duration `toml:"poll_interval"`
	BatchSize    int           `toml:"batch_size" validate:"gte=1"`
	MaxRetries   int           `toml:"max_retries" validate:"gte=0"`
}

type ScraperConfig struct {
	UserAgent      string        `toml:"user_agent"`
	RequestTimeout time.Duration `toml:"request_timeout"`
	RequestDelay   time.Duration `toml:"request_delay"`
	MaxBodySize    int           `toml:"max_body_size"`
	MaxPages       int           `toml:"max_pages"`
}

type RenderConfig struct {
	Enabled     bool          `toml:"enabled"`
	PoolSize    int           `toml:"pool_size" validate:"gte=1"`
	Timeout     time.Duration `toml:"timeout"`
	WaitTime    time.Duration `toml:"wait_time"`
	Headless    bool          `toml:"headless"`
	MaxBodySize int           `toml:"max_body_size"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

type ClaudeConfig struct {
	APIKey    string        `toml:"api_key"`
	Model     string        `toml:"model"`
	MaxTokens int           `toml:"max_tokens"`
	Timeout   time.Duration `toml:"timeout"`
}

type GeminiConfig struct {
	APIKey    string        `toml:"api_key"`
	Model     string        `toml:"model"`
	MaxTokens int           `toml:"max_tokens"`
	Timeout   time.Duration `toml:"timeout"`
}

type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"`
}

// NewDefaultConfig returns the built-in defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "localhost",
			Port: 8085,
		},
		Database: DatabaseConfig{
			Path: "./data/venari.db",
		},
		Worker: WorkerConfig{
			PollInterval: 5 * time.Second,
			BatchSize:    10,
			MaxRetries:   3,
		},
		Scraper: ScraperConfig{
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestTimeout: 30 * time.Second,
			RequestDelay:   2 * time.Second,
			MaxBodySize:    10 * 1024 * 1024,
			MaxPages:       10,
		},
		Render: RenderConfig{
			Enabled:     true,
			PoolSize:    2,
			Timeout:     60 * time.Second,
			WaitTime:    3 * time.Second,
			Headless:    true,
			MaxBodySize: 2 * 1024 * 1024,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Claude: ClaudeConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 8192,
			Timeout:   120 * time.Second,
		},
		Gemini: GeminiConfig{
			Model:     "gemini-2.0-flash",
			MaxTokens: 8192,
			Timeout:   120 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			Schedule: "0 */6 * * *",
		},
	}
}

// LoadFromFiles builds a Config from defaults plus the given TOML files in
// order (later files override earlier ones), then applies environment
// overrides. Empty paths are skipped.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
		config.ConfigPath = path
	}

	applyEnvOverrides(config)

	return config, nil
}

// Load resolves the config path from CONFIG_PATH when no explicit paths are
// given, then loads.
func Load(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		if p := os.Getenv("CONFIG_PATH"); p != "" {
			paths = []string{p}
		}
	}
	return LoadFromFiles(paths...)
}

// applyEnvOverrides applies the environment variables the worker consumes.
// SQLITE_DB_PATH wins over the legacy JF_SQLITE_DB_PATH alias.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		config.Environment = env
	}

	if path := os.Getenv("SQLITE_DB_PATH"); path != "" {
		config.Database.Path = path
	} else if path := os.Getenv("JF_SQLITE_DB_PATH"); path != "" {
		config.Database.Path = path
	}

	if port := os.Getenv("WORKER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("WORKER_HOST"); host != "" {
		config.Server.Host = host
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if file := os.Getenv("QUEUE_WORKER_LOG_FILE"); file != "" {
		config.Logging.File = file
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && config.Claude.APIKey == "" {
		config.Claude.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && config.Gemini.APIKey == "" {
		config.Gemini.APIKey = key
	}
}

// Validate checks structural constraints. A failure here is fatal at
// startup.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsDevelopment reports whether the instance runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment != "production"
}
