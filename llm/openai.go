package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cdreetz/crebAI/logger"
)

const (
	defaultMaxTokens   = 512
	defaultTemperature = 0.7
	defaultTopP        = 0.9

	streamChunkBuffer = 16
)

var _ Model = (*HTTPModel)(nil)
var _ ChatStreamer = (*HTTPModel)(nil)

// HTTPModel talks to an OpenAI-compatible inference backend
// (llama.cpp server, vLLM, and friends) over HTTP. Loading is a readiness
// probe; the backend process owns the actual weights.
type HTTPModel struct {
	name    string
	baseURL string
	client  *http.Client
	logger  *logger.Logger

	mu     sync.Mutex
	loaded bool
}

// NewHTTPModel creates a model bound to one backend base URL.
func NewHTTPModel(name, baseURL string, lg *logger.Logger) *HTTPModel {
	return &HTTPModel{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		logger:  lg,
	}
}

func (m *HTTPModel) Name() string {
	return m.name
}

func (m *HTTPModel) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

// Load probes the backend's model listing endpoint. Idempotent: a model
// already marked loaded returns a cached result without another probe.
func (m *HTTPModel) Load(ctx context.Context) (*LoadResult, error) {
	m.mu.Lock()
	if m.loaded {
		m.mu.Unlock()
		return &LoadResult{Name: m.name, Loaded: true, Cached: true}, nil
	}
	m.mu.Unlock()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build load probe: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("backend load probe returned %s", resp.Status)
	}

	m.mu.Lock()
	m.loaded = true
	m.mu.Unlock()

	loadTime := time.Since(start)
	m.logger.Info("model loaded", map[string]any{
		"model":     m.name,
		"load_time": loadTime.String(),
	})

	return &LoadResult{Name: m.name, Loaded: true, LoadTime: loadTime}, nil
}

func (m *HTTPModel) Unload() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	wasLoaded := m.loaded
	m.loaded = false
	return wasLoaded
}

type completionRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	Stream      bool    `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

// Generate runs a plain text completion.
func (m *HTTPModel) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	body := completionRequest{
		Model:       m.name,
		Prompt:      prompt,
		MaxTokens:   intParam(params, "max_tokens", defaultMaxTokens),
		Temperature: floatParam(params, "temperature", defaultTemperature),
		TopP:        floatParam(params, "top_p", defaultTopP),
	}

	var parsed completionResponse
	if err := m.post(ctx, "/v1/completions", body, &parsed); err != nil {
		return "", err
	}

	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("backend returned no completion choices")
	}
	return parsed.Choices[0].Text, nil
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
	Stream      bool      `json:"stream"`
}

// Chat runs a chat completion and returns the structured response.
func (m *HTTPModel) Chat(ctx context.Context, messages []Message, params Params) (*ChatResponse, error) {
	body := chatRequest{
		Model:       m.name,
		Messages:    messages,
		MaxTokens:   intParam(params, "max_tokens", defaultMaxTokens),
		Temperature: floatParam(params, "temperature", defaultTemperature),
		TopP:        floatParam(params, "top_p", defaultTopP),
	}

	var parsed ChatResponse
	if err := m.post(ctx, "/v1/chat/completions", body, &parsed); err != nil {
		return nil, err
	}

	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("backend returned no chat choices")
	}
	return &parsed, nil
}

type streamChunkPayload struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// ChatStream opens a server-sent-events completion stream against the
// backend and re-emits each content delta. The producer pushes at most one
// chunk with Err set, then closes the channel; a clean [DONE] closes it
// without an error chunk.
func (m *HTTPModel) ChatStream(ctx context.Context, messages []Message, params Params) (<-chan StreamChunk, error) {
	body := chatRequest{
		Model:       m.name,
		Messages:    messages,
		MaxTokens:   intParam(params, "max_tokens", defaultMaxTokens),
		Temperature: floatParam(params, "temperature", defaultTemperature),
		TopP:        floatParam(params, "top_p", defaultTopP),
		Stream:      true,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend unreachable: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("backend stream request returned %s: %s", resp.Status, string(snippet))
	}

	chunks := make(chan StreamChunk, streamChunkBuffer)

	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}

			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var parsed streamChunkPayload
			if err := json.Unmarshal([]byte(data), &parsed); err != nil {
				m.sendChunk(ctx, chunks, StreamChunk{Err: fmt.Errorf("malformed stream chunk: %w", err)})
				return
			}

			if len(parsed.Choices) == 0 {
				continue
			}

			content := parsed.Choices[0].Delta.Content
			if content == "" {
				continue
			}
			if !m.sendChunk(ctx, chunks, StreamChunk{Content: content}) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			m.sendChunk(ctx, chunks, StreamChunk{Err: fmt.Errorf("stream interrupted: %w", err)})
		}
	}()

	return chunks, nil
}

func (m *HTTPModel) sendChunk(ctx context.Context, chunks chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// post sends a JSON request and decodes a JSON response.
func (m *HTTPModel) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend returned %s: %s", resp.Status, string(snippet))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode backend response: %w", err)
	}
	return nil
}

func intParam(params Params, key string, fallback int) int {
	if params == nil {
		return fallback
	}
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func floatParam(params Params, key string, fallback float64) float64 {
	if params == nil {
		return fallback
	}
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}
