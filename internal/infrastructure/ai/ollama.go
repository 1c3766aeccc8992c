// Package ai implements the inference collaborator boundary against a local
// Ollama server.
package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/doeshing/termai-go/internal/domain"
	"github.com/doeshing/termai-go/internal/ports"
)

// OllamaClient talks to the native Ollama HTTP API. Safe for concurrent use
// by multiple workers.
type OllamaClient struct {
	host       string
	model      string
	httpClient *http.Client

	mu     sync.Mutex
	models []string
}

// NewOllamaClient builds a client for the configured host and model.
func NewOllamaClient(cfg domain.OllamaConfig) *OllamaClient {
	host := strings.TrimRight(cfg.Host, "/")
	if host == "" {
		host = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "llama3.2:1b"
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OllamaClient{
		host:       host,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// HealthCheck implements ports.Provider. Never returns an error: an
// unreachable service is a normal condition for the pipeline.
func (c *OllamaClient) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the models the server advertises.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: tags returned %s", domain.ErrServiceUnavailable, resp.Status)
	}
	var decoded tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	names := make([]string, 0, len(decoded.Models))
	for _, m := range decoded.Models {
		names = append(names, m.Name)
	}
	c.mu.Lock()
	c.models = names
	c.mu.Unlock()
	return names, nil
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate implements ports.Provider. The free-form response text is parsed
// into structured sections, with heuristic fallback for malformed output.
func (c *OllamaClient) Generate(ctx context.Context, req ports.GenerateRequest) (domain.AnalysisResponse, error) {
	start := time.Now()

	if err := c.ensureModel(ctx); err != nil {
		return domain.AnalysisResponse{}, err
	}

	payload := generateRequest{
		Model:  c.model,
		Prompt: req.Prompt,
		Stream: req.Stream,
		Options: map[string]any{
			"num_predict": req.MaxTokens,
			"temperature": req.Temperature,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.AnalysisResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return domain.AnalysisResponse{}, err
	}
	httpReq.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.AnalysisResponse{}, wrapTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return domain.AnalysisResponse{}, fmt.Errorf("%w: generate returned %s", domain.ErrServiceUnavailable, resp.Status)
	}

	var content string
	if req.Stream {
		content, err = readStream(resp, req.OnChunk)
	} else {
		var chunk generateChunk
		err = json.NewDecoder(resp.Body).Decode(&chunk)
		content = chunk.Response
	}
	if err != nil {
		return domain.AnalysisResponse{}, wrapTransportError(err)
	}

	parsed := ParseResponse(content)
	parsed.Elapsed = time.Since(start)
	return parsed, nil
}

func readStream(resp *http.Response, onChunk func(string)) (string, error) {
	var parts strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk generateChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}
		if chunk.Response != "" {
			parts.WriteString(chunk.Response)
			if onChunk != nil {
				onChunk(chunk.Response)
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return parts.String(), err
	}
	return parts.String(), nil
}

// ensureModel validates the configured model against the server's tag list,
// fetching it on first use.
func (c *OllamaClient) ensureModel(ctx context.Context) error {
	c.mu.Lock()
	models := c.models
	c.mu.Unlock()
	if models == nil {
		var err error
		if models, err = c.ListModels(ctx); err != nil {
			return err
		}
	}
	for _, name := range models {
		if name == c.model {
			return nil
		}
	}
	return fmt.Errorf("model %q not available, server offers %v", c.model, models)
}

func wrapTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
}

var _ ports.Provider = (*OllamaClient)(nil)
