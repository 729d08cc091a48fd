package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/llmrouter/llmrouter/internal/domain"
)

// The remote probe includes a fallback completion call, so it gets a
// longer ceiling than the local reachability ping.
const remoteHealthTimeout = 8 * time.Second

// RemoteAdapter talks to an OpenAI-compatible endpoint. Every call is
// routed through the proxy forwarder; browser-origin callers cannot
// reach the endpoint directly because of CORS, so neither does this
// adapter.
type RemoteAdapter struct {
	proxyURL string
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
	logger   *zap.Logger
}

// NewRemoteAdapter creates an adapter for the remote backend.
func NewRemoteAdapter(proxyURL, endpoint, apiKey, model string, logger *zap.Logger) *RemoteAdapter {
	return &RemoteAdapter{
		proxyURL: proxyURL,
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{},
		logger:   logger,
	}
}

// Kind identifies this adapter as the remote backend.
func (a *RemoteAdapter) Kind() domain.BackendKind { return domain.BackendRemote }

// Model returns the configured remote model id.
func (a *RemoteAdapter) Model() string { return a.model }

// Reset is a no-op for the remote backend; the model id is fixed by
// configuration.
func (a *RemoteAdapter) Reset() {}

type remoteProbeRequest struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"apiKey"`
	Model    string `json:"model,omitempty"`
}

type remoteProbeResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CheckHealth asks the proxy to run the two-stage probe (model
// listing, then a 1-token completion fallback) against the remote
// endpoint. A reachable proxy reporting a failing endpoint is
// Degraded; an unreachable proxy is Unavailable.
func (a *RemoteAdapter) CheckHealth(ctx context.Context) domain.BackendHealth {
	ctx, cancel := context.WithTimeout(ctx, remoteHealthTimeout)
	defer cancel()

	start := time.Now()
	snapshot := domain.BackendHealth{
		Kind:          domain.BackendRemote,
		LastCheckedAt: start,
	}

	if a.endpoint == "" || a.apiKey == "" {
		snapshot.Status = domain.StatusUnavailable
		snapshot.ErrorMessage = "remote endpoint or API key not configured"
		return snapshot
	}

	body, err := json.Marshal(remoteProbeRequest{
		Endpoint: a.endpoint,
		APIKey:   a.apiKey,
		Model:    a.model,
	})
	if err != nil {
		snapshot.Status = domain.StatusUnavailable
		snapshot.ErrorMessage = err.Error()
		return snapshot
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.proxyURL+"/health/remote", bytes.NewReader(body))
	if err != nil {
		snapshot.Status = domain.StatusUnavailable
		snapshot.ErrorMessage = err.Error()
		return snapshot
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		snapshot.Status = domain.StatusUnavailable
		snapshot.ErrorMessage = fmt.Sprintf("proxy unreachable: %v (start the proxy separately)", err)
		return snapshot
	}
	defer resp.Body.Close()
	snapshot.LatencyMs = time.Since(start).Milliseconds()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		snapshot.Status = domain.StatusUnavailable
		snapshot.ErrorMessage = fmt.Sprintf("proxy returned status %d: %s", resp.StatusCode, string(body))
		return snapshot
	}

	var probe remoteProbeResponse
	if err := json.NewDecoder(resp.Body).Decode(&probe); err != nil {
		snapshot.Status = domain.StatusUnavailable
		snapshot.ErrorMessage = fmt.Sprintf("unexpected probe response: %v", err)
		return snapshot
	}

	if probe.Status == "available" {
		snapshot.Status = domain.StatusAvailable
		return snapshot
	}
	// Proxy answered but the endpoint itself failed both stages.
	snapshot.Status = domain.StatusDegraded
	snapshot.ErrorMessage = probe.Message
	return snapshot
}

type proxyRequest struct {
	Endpoint string          `json:"endpoint"`
	APIKey   string          `json:"apiKey"`
	Body     json.RawMessage `json:"body"`
}

type remoteChatBody struct {
	Model       string               `json:"model"`
	Messages    []domain.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
	Stream      bool                 `json:"stream"`
}

// Chat streams a completion from the remote backend through the proxy.
// The response arrives as Server-Sent-Events terminated by a [DONE]
// sentinel.
func (a *RemoteAdapter) Chat(ctx context.Context, messages []domain.ChatMessage, cfg domain.ChatConfig) (<-chan domain.StreamDelta, error) {
	if a.endpoint == "" || a.apiKey == "" {
		return nil, domain.ErrNotConfigured
	}

	model := cfg.Model
	if model == "" {
		model = a.model
	}

	chatBody, err := json.Marshal(remoteChatBody{
		Model:       model,
		Messages:    withSystemPrompt(cfg.SystemPrompt, messages),
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(proxyRequest{
		Endpoint: a.endpoint,
		APIKey:   a.apiKey,
		Body:     chatBody,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.proxyURL+"/proxy", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &domain.UnreachableError{
			Backend: domain.BackendRemote,
			Hint:    "check that the proxy is running and the endpoint URL is correct",
			Err:     err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &domain.UpstreamError{
			Backend:    domain.BackendRemote,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	out := make(chan domain.StreamDelta)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		full, err := relaySSE(ctx, resp.Body, out, a.logger)
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
