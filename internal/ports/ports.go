// Package ports defines the interfaces (ports) for the hexagonal architecture.
//
// This package establishes the contract between the session core and external
// adapters (infrastructure). The application depends on these abstractions,
// never on concrete implementations like the pty layer, the HTTP inference
// client, or the sqlite snapshot store.
package ports

import (
	"context"

	"github.com/doeshing/termai-go/internal/domain"
)

// ConfigProvider loads the latest configuration from persistent storage.
// Implementations typically read from ~/.termai/config.yaml.
type ConfigProvider interface {
	Load(context.Context) (domain.Config, error)
}

// ShellSession owns a child shell attached to a pseudo-terminal. Write and
// Resize are synchronous and never wait on downstream processing; both fail
// once the session has stopped so callers can roll back command tracking.
// Output capture runs on a dedicated reader loop.
type ShellSession interface {
	Start() error
	Write(p []byte) error
	Resize(cols, rows int) error
	Stop() error
	Running() bool
}

// Provider is the inference collaborator boundary.
type Provider interface {
	HealthCheck(context.Context) bool
	ListModels(context.Context) ([]string, error)
	Generate(ctx context.Context, req GenerateRequest) (domain.AnalysisResponse, error)
}

// GenerateRequest carries one prompt to the inference service.
type GenerateRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	Stream      bool
	OnChunk     func(string) // optional incremental delivery
}

// Redactor masks sensitive data from text before it leaves the process
// boundary. Must be idempotent.
type Redactor interface {
	Redact(text string) string
}

// EventBus is the in-process priority publish/subscribe mechanism. Publish
// never blocks on handler execution.
type EventBus interface {
	Subscribe(t domain.EventType, h func(domain.Event)) (unsubscribe func())
	Publish(e domain.Event)
	Close()
}

// CacheStore holds analysis responses keyed by request hash.
type CacheStore interface {
	Get(key string) (domain.CacheEntry, bool)
	Set(entry domain.CacheEntry)
	Stats() domain.CacheStats
	Clear()
}

// SnapshotStore persists session snapshots for later inspection.
type SnapshotStore interface {
	Save(snapshot domain.SessionSnapshot) error
	Load(sessionID string) (domain.SessionSnapshot, error)
	List() ([]domain.SessionInfo, error)
}

// Logger provides structured logging abstraction for the application layer.
// Implementations can route to different backends (zap, stdout, test sinks).
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
}
