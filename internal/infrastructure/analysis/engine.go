// Package analysis runs the inference pipeline: dedup, cache, rate limiting,
// retry, and worker dispatch for analysis requests.
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/doeshing/termai-go/internal/domain"
	"github.com/doeshing/termai-go/internal/infrastructure/ai"
	"github.com/doeshing/termai-go/internal/ports"
)

const (
	defaultWorkers     = 2
	defaultQueueSize   = 50
	defaultRate        = 5.0
	defaultMinInterval = 2 * time.Second
	defaultMaxRetries  = 3
)

// Engine accepts analysis requests and resolves them against the provider.
// Identical in-flight requests are coalesced, resolved responses are cached,
// and provider calls share one rate limiter across all workers.
type Engine struct {
	provider ports.Provider
	cache    ports.CacheStore
	bus      ports.EventBus
	redactor ports.Redactor
	log      ports.Logger

	maxTokens   int
	temperature float64
	maxRetries  int

	group   singleflight.Group
	limiter *rate.Limiter

	mu          sync.Mutex
	lastCall    time.Time
	minInterval time.Duration

	queue  chan domain.AnalysisRequest
	wg     sync.WaitGroup
	cancel context.CancelFunc
	closed bool
}

// New builds an engine and starts its worker pool and cache sweep loop.
func New(cfg domain.AnalysisConfig, ollamaCfg domain.OllamaConfig, provider ports.Provider, cache ports.CacheStore, bus ports.EventBus, redactor ports.Redactor, log ports.Logger) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = defaultRate
	}
	minInterval := time.Duration(cfg.MinIntervalSeconds * float64(time.Second))
	if minInterval <= 0 {
		minInterval = defaultMinInterval
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		provider:    provider,
		cache:       cache,
		bus:         bus,
		redactor:    redactor,
		log:         log,
		maxTokens:   ollamaCfg.MaxTokens,
		temperature: ollamaCfg.Temperature,
		maxRetries:  maxRetries,
		limiter:     rate.NewLimiter(rate.Limit(perSecond), burst),
		minInterval: minInterval,
		queue:       make(chan domain.AnalysisRequest, queueSize),
		cancel:      cancel,
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}
	return e
}

// Submit enqueues a request. It never blocks: a full queue rejects the
// request with an error so the caller can decide whether to drop or retry.
func (e *Engine) Submit(req domain.AnalysisRequest) error {
	req.State = domain.StateQueued
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}

	key := RequestKey(req)
	if entry, ok := e.cache.Get(key); ok {
		cached := entry.Response
		cached.FromCache = true
		e.publishCompleted(req, cached)
		return nil
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("analysis engine is closed")
	}
	select {
	case e.queue <- req:
		e.mu.Unlock()
		e.bus.Publish(domain.Event{
			Type:     domain.EventAnalysisRequested,
			Priority: req.Priority,
			At:       time.Now(),
			Payload:  req,
		})
		return nil
	default:
		e.mu.Unlock()
		return fmt.Errorf("analysis queue full, dropping %s request", req.Trigger.Kind)
	}
}

// CacheStats exposes the response cache counters.
func (e *Engine) CacheStats() domain.CacheStats {
	return e.cache.Stats()
}

// Close stops the workers. In-flight provider calls are cancelled.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
}

func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()
	for req := range e.queue {
		if ctx.Err() != nil {
			return
		}
		e.process(ctx, req)
	}
}

func (e *Engine) process(ctx context.Context, req domain.AnalysisRequest) {
	req.State = domain.StateDispatched
	key := RequestKey(req)

	result, err, _ := e.group.Do(key, func() (any, error) {
		return e.resolve(ctx, req, key)
	})
	if err != nil {
		req.State = domain.StateAbandoned
		req.Retries = e.maxRetries
		e.log.Error("analysis abandoned", err, map[string]interface{}{
			"trigger": string(req.Trigger.Kind),
			"retries": req.Retries,
		})
		e.bus.Publish(domain.Event{
			Type:     domain.EventAnalysisFailed,
			Priority: req.Priority,
			At:       time.Now(),
			Payload:  domain.AnalysisFailedPayload{Request: req, Reason: err.Error()},
		})
		return
	}

	resp := result.(domain.AnalysisResponse)
	e.publishCompleted(req, resp)
}

// resolve calls the provider with retry and backoff, caching on success.
func (e *Engine) resolve(ctx context.Context, req domain.AnalysisRequest, key string) (domain.AnalysisResponse, error) {
	// A duplicate queued while the first copy was in flight lands here
	// after the cache is already warm.
	if entry, ok := e.cache.Get(key); ok {
		resp := entry.Response
		resp.FromCache = true
		return resp, nil
	}

	req.Payload = e.redactPayload(req.Payload)
	prompt := ai.BuildPrompt(req)

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return domain.AnalysisResponse{}, ctx.Err()
			}
		}
		if err := e.waitTurn(ctx); err != nil {
			return domain.AnalysisResponse{}, err
		}

		resp, err := e.provider.Generate(ctx, ports.GenerateRequest{
			Prompt:      prompt,
			MaxTokens:   e.maxTokens,
			Temperature: e.temperature,
		})
		if err != nil {
			lastErr = err
			req.Retries = attempt + 1
			e.log.Warn("analysis attempt failed", map[string]interface{}{
				"attempt": attempt + 1,
				"error":   err.Error(),
			})
			continue
		}

		e.cache.Set(domain.CacheEntry{Key: key, Response: resp, CreatedAt: time.Now()})
		return resp, nil
	}
	return domain.AnalysisResponse{}, lastErr
}

// waitTurn enforces both the shared token bucket and the minimum spacing
// between consecutive provider calls.
func (e *Engine) waitTurn(ctx context.Context) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	wait := e.minInterval - time.Since(e.lastCall)
	if wait > 0 {
		e.lastCall = e.lastCall.Add(e.minInterval)
	} else {
		e.lastCall = time.Now()
		wait = 0
	}
	e.mu.Unlock()

	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (e *Engine) publishCompleted(req domain.AnalysisRequest, resp domain.AnalysisResponse) {
	req.State = domain.StateSucceeded
	e.bus.Publish(domain.Event{
		Type:     domain.EventAnalysisCompleted,
		Priority: req.Priority,
		At:       time.Now(),
		Payload:  domain.AnalysisCompletedPayload{Request: req, Response: resp},
	})
}

// redactPayload masks secrets in every text field that reaches the prompt.
// Command lines carry secrets as often as output does (curl headers, env
// assignments), so records are scrubbed whole.
func (e *Engine) redactPayload(p domain.ContextPayload) domain.ContextPayload {
	if e.redactor == nil {
		return p
	}
	entries := make([]domain.ContextEntry, len(p.Entries))
	for i, entry := range p.Entries {
		entry.Record = e.redactRecord(entry.Record)
		entries[i] = entry
	}
	p.Entries = entries
	p.Subject = e.redactRecord(p.Subject)
	p.Summary = e.redactor.Redact(p.Summary)
	p.Manual = e.redactor.Redact(p.Manual)
	return p
}

func (e *Engine) redactRecord(r domain.CommandRecord) domain.CommandRecord {
	r.Command = e.redactor.Redact(r.Command)
	r.Directory = e.redactor.Redact(r.Directory)
	r.Output = e.redactor.Redact(r.Output)
	r.ErrorText = e.redactor.Redact(r.ErrorText)
	return r
}

// RequestKey derives the dedup and cache key from the trigger kind and the
// most recent command texts in the payload. Two requests raised by the same
// situation hash identically even when raised milliseconds apart.
func RequestKey(req domain.AnalysisRequest) string {
	h := sha256.New()
	h.Write([]byte(req.Trigger.Kind))
	h.Write([]byte{0})
	h.Write([]byte(req.Trigger.Description))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(req.Payload.CommandTexts(5), "\n")))
	if req.Payload.Manual != "" {
		h.Write([]byte{0})
		h.Write([]byte(req.Payload.Manual))
	}
	return hex.EncodeToString(h.Sum(nil))
}
