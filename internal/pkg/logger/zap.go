// Package logger provides ports.Logger implementations.
package logger

import (
	"go.uber.org/zap"

	"github.com/doeshing/termai-go/internal/ports"
)

// ZapLogger routes structured logs to a zap core.
type ZapLogger struct {
	z *zap.SugaredLogger
}

// NewZap builds the production logger. Verbose lowers the level to debug.
func NewZap(verbose bool) *ZapLogger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	z, err := cfg.Build()
	if err != nil {
		return &ZapLogger{z: zap.NewNop().Sugar()}
	}
	return &ZapLogger{z: z.Sugar()}
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *ZapLogger {
	return &ZapLogger{z: zap.NewNop().Sugar()}
}

func (l *ZapLogger) Debug(msg string, fields map[string]interface{}) {
	l.z.Debugw(msg, flatten(fields)...)
}

func (l *ZapLogger) Info(msg string, fields map[string]interface{}) {
	l.z.Infow(msg, flatten(fields)...)
}

func (l *ZapLogger) Warn(msg string, fields map[string]interface{}) {
	l.z.Warnw(msg, flatten(fields)...)
}

func (l *ZapLogger) Error(msg string, err error, fields map[string]interface{}) {
	kv := flatten(fields)
	if err != nil {
		kv = append(kv, "error", err.Error())
	}
	l.z.Errorw(msg, kv...)
}

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() {
	_ = l.z.Sync()
}

func flatten(fields map[string]interface{}) []interface{} {
	kv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return kv
}

var _ ports.Logger = (*ZapLogger)(nil)
