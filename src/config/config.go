// Package config loads service settings from an optional YAML file, a .env
// file and VIZAGENT_* environment variables.
package config

import "time"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Model     ModelConfig     `mapstructure:"model"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Chart     ChartConfig     `mapstructure:"chart"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Dataset   DatasetConfig   `mapstructure:"dataset"`
	Relevance RelevanceConfig `mapstructure:"relevance"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	// StaticDir, when set, is served under /docs/.
	StaticDir string `mapstructure:"static_dir"`
}

type ModelConfig struct {
	Provider    string        `mapstructure:"provider"`
	Name        string        `mapstructure:"name"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type AgentConfig struct {
	MaxIterations int `mapstructure:"max_iterations"`
}

type ChartConfig struct {
	MaxParseRetries int `mapstructure:"max_parse_retries"`
}

type AnalysisConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
	MaxOutputBytes int           `mapstructure:"max_output_bytes"`
	MaxMemoryBytes uint64        `mapstructure:"max_memory_bytes"`
}

type DatasetConfig struct {
	SampleSize int `mapstructure:"sample_size"`
}

type RelevanceConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	DefaultOnAmbiguous bool `mapstructure:"default_on_ambiguous"`
}

type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	Size    int           `mapstructure:"size"`
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}
