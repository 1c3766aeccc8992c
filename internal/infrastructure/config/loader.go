package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/doeshing/termai-go/assets"
	"github.com/doeshing/termai-go/internal/domain"
	"github.com/doeshing/termai-go/internal/ports"
)

// FileLoader loads YAML configuration from ~/.termai/config.yaml (overridable via TERMAI_CONFIG).
type FileLoader struct {
	overridePath string
}

// NewFileLoader builds a new loader.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{overridePath: path}
}

// Load implements ports.ConfigProvider. A missing file is seeded from the
// embedded defaults so first run leaves an editable config behind.
func (l *FileLoader) Load(context.Context) (domain.Config, error) {
	path := l.resolvePath()
	if err := ensureConfigDir(path); err != nil {
		return domain.Config{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if err := os.WriteFile(path, assets.DefaultConfigYAML, domain.SecureFilePermissions); err != nil {
				return domain.Config{}, err
			}
			data = assets.DefaultConfigYAML
		} else {
			return domain.Config{}, err
		}
	}

	var cfg domain.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return domain.Config{}, err
	}

	return hydrateDefaults(cfg), nil
}

func (l *FileLoader) resolvePath() string {
	if l.overridePath != "" {
		return expandPath(l.overridePath)
	}
	if custom := os.Getenv("TERMAI_CONFIG"); custom != "" {
		return expandPath(custom)
	}
	return filepath.Join(userHomeDir(), ".termai", "config.yaml")
}

func ensureConfigDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, domain.DirectoryPermissions)
}

func hydrateDefaults(cfg domain.Config) domain.Config {
	if cfg.Ollama.Host == "" {
		cfg.Ollama.Host = "http://localhost:11434"
	}
	if cfg.Ollama.Model == "" {
		cfg.Ollama.Model = "llama3.2:1b"
	}
	if cfg.Ollama.TimeoutSeconds == 0 {
		cfg.Ollama.TimeoutSeconds = 30
	}
	if cfg.Ollama.MaxTokens == 0 {
		cfg.Ollama.MaxTokens = 500
	}
	if cfg.Terminal.BufferMax == 0 {
		cfg.Terminal.BufferMax = 1000
	}
	if cfg.Terminal.HistoryMax == 0 {
		cfg.Terminal.HistoryMax = 1000
	}
	if cfg.Terminal.Cols == 0 {
		cfg.Terminal.Cols = 80
	}
	if cfg.Terminal.Rows == 0 {
		cfg.Terminal.Rows = 24
	}
	if cfg.Context.MaxCommands == 0 {
		cfg.Context.MaxCommands = 20
	}
	if cfg.Context.MaxTokens == 0 {
		cfg.Context.MaxTokens = 4000
	}
	if cfg.Analysis.Workers == 0 {
		cfg.Analysis.Workers = 2
	}
	if cfg.Analysis.QueueSize == 0 {
		cfg.Analysis.QueueSize = 50
	}
	if cfg.Analysis.RatePerSecond == 0 {
		cfg.Analysis.RatePerSecond = 5
	}
	if cfg.Analysis.MinIntervalSeconds == 0 {
		cfg.Analysis.MinIntervalSeconds = 2
	}
	if cfg.Analysis.MaxRetries == 0 {
		cfg.Analysis.MaxRetries = 3
	}
	if cfg.Cache.TTL == "" {
		cfg.Cache.TTL = "5m"
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 100
	}
	if cfg.Triggers.RulesFile == "" {
		cfg.Triggers.RulesFile = filepath.Join(userHomeDir(), ".termai", "triggers.yaml")
	} else {
		cfg.Triggers.RulesFile = expandPath(cfg.Triggers.RulesFile)
	}
	if cfg.Export.DatabasePath == "" {
		cfg.Export.DatabasePath = filepath.Join(userHomeDir(), ".termai", "sessions", "sessions.db")
	} else {
		cfg.Export.DatabasePath = expandPath(cfg.Export.DatabasePath)
	}
	return cfg
}

func expandPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if len(path) > 1 && path[:2] == "~/" {
		return filepath.Join(userHomeDir(), path[2:])
	}
	return filepath.Clean(path)
}

func userHomeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}

var _ ports.ConfigProvider = (*FileLoader)(nil)
