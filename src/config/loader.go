package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. VIZAGENT_MODEL_NAME.
const EnvPrefix = "VIZAGENT"

var defaults = map[string]any{
	"server.addr":                    ":8000",
	"server.allowed_origins":         []string{"http://localhost:3000", "http://localhost:5173"},
	"server.max_upload_bytes":        int64(10 << 20),
	"server.read_timeout":            "30s",
	"server.write_timeout":           "120s",
	"server.static_dir":              "",
	"model.provider":                 "openai",
	"model.name":                     "gpt-4o-mini",
	"model.api_key":                  "",
	"model.base_url":                 "",
	"model.temperature":              0.0,
	"model.timeout":                  "60s",
	"agent.max_iterations":           10,
	"chart.max_parse_retries":        3,
	"analysis.timeout":               "10s",
	"analysis.max_concurrent":        4,
	"analysis.max_output_bytes":      65536,
	"analysis.max_memory_bytes":      uint64(256 << 20),
	"dataset.sample_size":            100,
	"relevance.enabled":              true,
	"relevance.default_on_ambiguous": true,
	"cache.backend":                  "memory",
	"cache.size":                     256,
	"cache.ttl":                      "10m",
	"cache.redis.addr":               "",
	"cache.redis.password":           "",
	"cache.redis.db":                 0,
	"logging.level":                  "info",
	"logging.format":                 "json",
	"metrics.enabled":                true,
	"metrics.path":                   "/metrics",
}

// providerKeyEnv lists the conventional API key variables per provider.
var providerKeyEnv = map[string][]string{
	"openai":    {"OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
	"claude":    {"ANTHROPIC_API_KEY"},
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"google":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// Load reads configuration. path may name a YAML file; when empty a
// config.yaml in the working directory or ./configs is used if present.
// A .env file in the working directory is loaded first without overriding
// variables that are already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Model.Provider = strings.ToLower(strings.TrimSpace(c.Model.Provider))
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Model.APIKey == "" {
		for _, name := range providerKeyEnv[c.Model.Provider] {
			if val := os.Getenv(name); val != "" {
				c.Model.APIKey = val
				break
			}
		}
	}
	origins := c.Server.AllowedOrigins[:0]
	for _, o := range c.Server.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.Server.AllowedOrigins = origins
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "openai", "anthropic", "claude", "gemini", "google", "ollama", "dummy":
	default:
		return fmt.Errorf("model.provider %q is not supported", c.Model.Provider)
	}
	if strings.TrimSpace(c.Model.Name) == "" && c.Model.Provider != "dummy" {
		return errors.New("model.name is required")
	}
	if c.Agent.MaxIterations <= 0 {
		return errors.New("agent.max_iterations must be positive")
	}
	if c.Chart.MaxParseRetries <= 0 {
		return errors.New("chart.max_parse_retries must be positive")
	}
	if c.Analysis.Timeout <= 0 {
		return errors.New("analysis.timeout must be positive")
	}
	if c.Analysis.MaxConcurrent <= 0 {
		return errors.New("analysis.max_concurrent must be positive")
	}
	if c.Dataset.SampleSize <= 0 {
		return errors.New("dataset.sample_size must be positive")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return errors.New("server.max_upload_bytes must be positive")
	}
	switch c.Cache.Backend {
	case "none", "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return errors.New("cache.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend %q is not supported", c.Cache.Backend)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q is not supported", c.Logging.Format)
	}
	return nil
}
