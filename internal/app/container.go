// Package app wires application services with infrastructure adapters.
package app

import (
	"context"
	"os"
	"sync"

	"github.com/doeshing/termai-go/internal/domain"
	"github.com/doeshing/termai-go/internal/infrastructure/ai"
	"github.com/doeshing/termai-go/internal/infrastructure/analysis"
	"github.com/doeshing/termai-go/internal/infrastructure/bus"
	"github.com/doeshing/termai-go/internal/infrastructure/cache"
	"github.com/doeshing/termai-go/internal/infrastructure/config"
	"github.com/doeshing/termai-go/internal/infrastructure/contextwin"
	"github.com/doeshing/termai-go/internal/infrastructure/export"
	"github.com/doeshing/termai-go/internal/infrastructure/ptyshell"
	"github.com/doeshing/termai-go/internal/infrastructure/redact"
	"github.com/doeshing/termai-go/internal/infrastructure/terminal"
	"github.com/doeshing/termai-go/internal/infrastructure/trigger"
	"github.com/doeshing/termai-go/internal/pkg/logger"
	"github.com/doeshing/termai-go/internal/ports"
	"github.com/doeshing/termai-go/internal/services"
)

// Container holds the wired dependency graph.
type Container struct {
	Config   domain.Config
	Session  *services.SessionManager
	Provider ports.Provider
	Engine   *analysis.Engine
	Bus      ports.EventBus
	Store    ports.SnapshotStore
	Logger   ports.Logger
	Tee      *OutputTee
}

// OutputTee lets the CLI mirror raw shell output without the session layer
// knowing about the terminal it renders to.
type OutputTee struct {
	mu sync.Mutex
	fn func([]byte)
}

// Set installs (or clears) the mirror target.
func (t *OutputTee) Set(fn func([]byte)) {
	t.mu.Lock()
	t.fn = fn
	t.mu.Unlock()
}

func (t *OutputTee) write(p []byte) {
	t.mu.Lock()
	fn := t.fn
	t.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

// BuildContainer constructs the dependency graph for an observed session.
func BuildContainer(ctx context.Context, verbose bool) (*Container, error) {
	cfgLoader := config.NewFileLoader("")
	cfg, err := cfgLoader.Load(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.NewZap(verbose)

	eventBus := bus.New(cfg.Analysis.QueueSize*2, log)
	provider := ai.NewOllamaClient(cfg.Ollama)
	responseCache := cache.NewMemory(cfg.Cache.Duration(), cfg.Cache.MaxEntries)
	redactor := redact.NewFilter()
	engine := analysis.New(cfg.Analysis, cfg.Ollama, provider, responseCache, eventBus, redactor, log)

	triggers, err := trigger.NewEngineFromFile(cfg.Triggers.RulesFile)
	if err != nil {
		log.Warn("trigger rules file unusable, using defaults", map[string]interface{}{
			"path":  cfg.Triggers.RulesFile,
			"error": err.Error(),
		})
		triggers = trigger.NewEngine()
	}
	if cfg.Triggers.Enabled != nil {
		triggers.SetEnabled(*cfg.Triggers.Enabled)
	}

	workingDir, err := os.Getwd()
	if err != nil {
		workingDir = "."
	}

	buffer := terminal.NewBuffer(cfg.Terminal.BufferMax)
	history := terminal.NewHistory(cfg.Terminal.HistoryMax)
	window := contextwin.NewWindow(cfg.Context.MaxCommands, cfg.Context.MaxTokens)

	deps := services.Deps{
		Buffer:   buffer,
		History:  history,
		Window:   window,
		Triggers: triggers,
		Bus:      eventBus,
		Analyzer: engine,
		Logger:   log,
	}

	// The shell and the manager reference each other through callbacks, so
	// the shell is built second and injected before Start.
	tee := &OutputTee{}
	var manager *services.SessionManager
	shell := ptyshell.New(ptyshell.Options{
		Shell: cfg.Terminal.Shell,
		Cols:  cfg.Terminal.Cols,
		Rows:  cfg.Terminal.Rows,
		Dir:   workingDir,
		OnOutput: func(p []byte) {
			manager.HandleOutput(p)
			tee.write(p)
		},
		OnExit: func(code int, err error) { manager.HandleExit(code, err) },
	}, log)
	deps.Shell = shell
	manager = services.NewSessionManager(cfg, workingDir, deps)

	store, err := export.NewSQLiteStore(cfg.Export.DatabasePath)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:   cfg,
		Session:  manager,
		Provider: provider,
		Engine:   engine,
		Bus:      eventBus,
		Store:    store,
		Logger:   log,
		Tee:      tee,
	}, nil
}

// Close releases everything the container owns. Pending analyses are
// abandoned; the snapshot store is flushed.
func (c *Container) Close() {
	c.Engine.Close()
	c.Bus.Close()
	if closer, ok := c.Store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}
