package domain

import (
	"io/fs"
	"time"
)

// File permissions for configuration artifacts.
const (
	DirectoryPermissions  fs.FileMode = 0o755
	SecureFilePermissions fs.FileMode = 0o600
)

// Config is the root YAML document loaded from ~/.termai/config.yaml.
type Config struct {
	ConfigFormatVersion string         `yaml:"config_format_version"`
	Ollama              OllamaConfig   `yaml:"ollama"`
	Terminal            TerminalConfig `yaml:"terminal"`
	Context             ContextConfig  `yaml:"context"`
	Analysis            AnalysisConfig `yaml:"analysis"`
	Cache               CacheConfig    `yaml:"cache"`
	Triggers            TriggerConfig  `yaml:"triggers"`
	Export              ExportConfig   `yaml:"export"`
}

// OllamaConfig points at the local inference service.
type OllamaConfig struct {
	Host           string  `yaml:"host"`
	Model          string  `yaml:"model"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
}

// TerminalConfig controls the pty session and output buffer.
type TerminalConfig struct {
	Shell      string `yaml:"shell"`
	Cols       int    `yaml:"cols"`
	Rows       int    `yaml:"rows"`
	BufferMax  int    `yaml:"buffer_max_lines"`
	HistoryMax int    `yaml:"history_max"`
}

// ContextConfig bounds the context window.
type ContextConfig struct {
	MaxCommands int     `yaml:"max_commands"`
	MaxTokens   int     `yaml:"max_tokens"`
	PruneFloor  float64 `yaml:"prune_floor"`
}

// AnalysisConfig tunes the analysis engine.
type AnalysisConfig struct {
	Workers            int     `yaml:"workers"`
	QueueSize          int     `yaml:"queue_size"`
	RatePerSecond      float64 `yaml:"rate_per_second"`
	MinIntervalSeconds float64 `yaml:"min_interval_seconds"`
	MaxRetries         int     `yaml:"max_retries"`
}

// CacheConfig tunes the response cache.
type CacheConfig struct {
	TTL        string `yaml:"ttl"`
	MaxEntries int    `yaml:"max_entries"`
}

// Duration parses the TTL string, falling back to five minutes when the
// value is missing or malformed.
func (c CacheConfig) Duration() time.Duration {
	d, err := time.ParseDuration(c.TTL)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// TriggerConfig points at an optional trigger rules file.
type TriggerConfig struct {
	RulesFile string `yaml:"rules_file"`
	Enabled   *bool  `yaml:"enabled"`
}

// ExportConfig controls the session snapshot store.
type ExportConfig struct {
	DatabasePath string `yaml:"database_path"`
}
