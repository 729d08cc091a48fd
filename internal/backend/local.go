package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/llmrouter/llmrouter/internal/domain"
)

const localHealthTimeout = 3 * time.Second

// LocalAdapter talks to a local Ollama-style inference server. Chat
// responses arrive as newline-delimited JSON, one object per line.
type LocalAdapter struct {
	baseURL      string
	defaultModel string
	client       *http.Client
	logger       *zap.Logger

	mu            sync.Mutex
	resolvedModel string
}

// NewLocalAdapter creates an adapter for the local backend.
func NewLocalAdapter(baseURL, defaultModel string, logger *zap.Logger) *LocalAdapter {
	return &LocalAdapter{
		baseURL:      baseURL,
		defaultModel: defaultModel,
		client:       &http.Client{},
		logger:       logger,
	}
}

// Kind identifies this adapter as the local backend.
func (a *LocalAdapter) Kind() domain.BackendKind { return domain.BackendLocal }

// Model returns the model id resolved by the last health check, or
// the configured default before any check has run.
func (a *LocalAdapter) Model() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.resolvedModel != "" {
		return a.resolvedModel
	}
	return a.defaultModel
}

// Reset clears the resolved model so the next health check re-resolves it.
func (a *LocalAdapter) Reset() {
	a.mu.Lock()
	a.resolvedModel = ""
	a.mu.Unlock()
}

type localTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// CheckHealth issues a GET against the model-listing endpoint. If the
// configured default model is missing but other models are installed,
// the first available model id is substituted silently rather than
// failing; a server with zero models is reported Unavailable.
func (a *LocalAdapter) CheckHealth(ctx context.Context) domain.BackendHealth {
	ctx, cancel := context.WithTimeout(ctx, localHealthTimeout)
	defer cancel()

	start := time.Now()
	snapshot := domain.BackendHealth{
		Kind:          domain.BackendLocal,
		LastCheckedAt: start,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		snapshot.Status = domain.StatusUnavailable
		snapshot.ErrorMessage = err.Error()
		return snapshot
	}

	resp, err := a.client.Do(req)
	if err != nil {
		snapshot.Status = domain.StatusUnavailable
		snapshot.ErrorMessage = fmt.Sprintf("local server unreachable: %v", err)
		return snapshot
	}
	defer resp.Body.Close()
	snapshot.LatencyMs = time.Since(start).Milliseconds()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		snapshot.Status = domain.StatusUnavailable
		snapshot.ErrorMessage = fmt.Sprintf("local server returned status %d: %s", resp.StatusCode, string(body))
		return snapshot
	}

	var tags localTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		snapshot.Status = domain.StatusDegraded
		snapshot.ErrorMessage = fmt.Sprintf("unexpected model list response: %v", err)
		return snapshot
	}

	if len(tags.Models) == 0 {
		snapshot.Status = domain.StatusUnavailable
		snapshot.ErrorMessage = "no models installed"
		return snapshot
	}

	resolved := tags.Models[0].Name
	for _, m := range tags.Models {
		if m.Name == a.defaultModel {
			resolved = a.defaultModel
			break
		}
	}
	a.mu.Lock()
	a.resolvedModel = resolved
	a.mu.Unlock()

	snapshot.Status = domain.StatusAvailable
	return snapshot
}

type localChatRequest struct {
	Model    string               `json:"model"`
	Messages []domain.ChatMessage `json:"messages"`
	Stream   bool                 `json:"stream"`
	Options  localChatOptions     `json:"options"`
}

type localChatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// Chat streams a completion from the local backend.
func (a *LocalAdapter) Chat(ctx context.Context, messages []domain.ChatMessage, cfg domain.ChatConfig) (<-chan domain.StreamDelta, error) {
	model := cfg.Model
	if model == "" {
		model = a.Model()
	}

	payload := localChatRequest{
		Model:    model,
		Messages: withSystemPrompt(cfg.SystemPrompt, messages),
		Stream:   true,
		Options: localChatOptions{
			Temperature: cfg.Temperature,
			NumPredict:  cfg.MaxTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &domain.UnreachableError{
			Backend: domain.BackendLocal,
			Hint:    "check that the local inference server is running",
			Err:     err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &domain.UpstreamError{
			Backend:    domain.BackendLocal,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	out := make(chan domain.StreamDelta)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		full, err := relayNDJSON(ctx, resp.Body, out, a.logger)
		final := domain.StreamDelta{Done: true, FullText: full}
		if err != nil {
			final.Incomplete = true
			final.Err = err
		}
		select {
		case out <- final:
		case <-ctx.Done():
		}
	}()
	return out, nil
}
