package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName        string `mapstructure:"app_name"`
	Env            string `mapstructure:"app_env"`
	LogLevel       string `mapstructure:"log_level"`
	RequestsFile   string `mapstructure:"requests_file"`
	PublishersFile string `mapstructure:"publishers_file"`
	RunConcurrency int    `mapstructure:"run_concurrency"`

	APIBaseURL   string        `mapstructure:"api_base_url"`
	APITimeoutMs int64         `mapstructure:"api_timeout_ms"`
	APITimeout   time.Duration `mapstructure:"-"`

	HistoryType            string        `mapstructure:"history_type"`
	HistoryPath            string        `mapstructure:"history_path"`
	HistoryTTLSeconds      int64         `mapstructure:"history_ttl_seconds"`
	HistoryCleanupSeconds  int64         `mapstructure:"history_cleanup_interval_seconds"`
	HistoryTTL             time.Duration `mapstructure:"-"`
	HistoryCleanupInterval time.Duration `mapstructure:"-"`
}

const envFile = "configs/.env"

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load(envFile)

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "apiclient")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("requests_file", "./configs/requests.yaml")
	v.SetDefault("publishers_file", "")
	v.SetDefault("run_concurrency", 4)
	v.SetDefault("api_base_url", "http://127.0.0.1:8000")
	v.SetDefault("api_timeout_ms", 10000)
	v.SetDefault("history_type", "bbolt")
	v.SetDefault("history_path", "./data/history.db")
	v.SetDefault("history_ttl_seconds", int64((7*24*time.Hour)/time.Second))
	v.SetDefault("history_cleanup_interval_seconds", int64((12*time.Hour)/time.Second))
}

// finalize validates raw values and derives durations.
func (c *Config) finalize() error {
	if c.APITimeoutMs <= 0 {
		return fmt.Errorf("invalid api_timeout_ms (must be positive milliseconds)")
	}
	c.APITimeout = time.Duration(c.APITimeoutMs) * time.Millisecond

	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api_base_url %q (must be an absolute http(s) url)", c.APIBaseURL)
	}

	if c.RunConcurrency <= 0 {
		return fmt.Errorf("invalid run_concurrency (must be positive)")
	}

	if c.HistoryTTLSeconds <= 0 {
		return fmt.Errorf("invalid history_ttl_seconds (must be positive seconds)")
	}
	if c.HistoryCleanupSeconds <= 0 {
		return fmt.Errorf("invalid history_cleanup_interval_seconds (must be positive seconds)")
	}
	c.HistoryTTL = time.Duration(c.HistoryTTLSeconds) * time.Second
	c.HistoryCleanupInterval = time.Duration(c.HistoryCleanupSeconds) * time.Second

	return nil
}
