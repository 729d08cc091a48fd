package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Forwarder relays chat-completion requests to arbitrary
// OpenAI-compatible endpoints on behalf of browser callers that CORS
// would otherwise block. It adds the bearer credential and passes the
// response through byte-for-byte.
type Forwarder struct {
	client *http.Client
	logger *zap.Logger
}

// NewForwarder creates a proxy forwarder.
func NewForwarder(logger *zap.Logger) *Forwarder {
	return &Forwarder{
		// No client-level timeout: streamed completions can legally
		// run for minutes. Individual probes set their own deadlines.
		client: &http.Client{},
		logger: logger,
	}
}

// RegisterRoutes registers the proxy surface.
func (f *Forwarder) RegisterRoutes(r *gin.Engine) {
	r.POST("/proxy", f.Forward)
	r.GET("/health", f.Health)
	r.POST("/health/remote", f.RemoteHealth)
}

// ForwardRequest is the body accepted by POST /proxy.
type ForwardRequest struct {
	Endpoint string          `json:"endpoint" binding:"required"`
	APIKey   string          `json:"apiKey" binding:"required"`
	Body     json.RawMessage `json:"body" binding:"required"`
}

// Forward relays the request body to {endpoint}/chat/completions.
// When the body has stream=true the upstream response is piped
// through without buffering the whole completion.
func (f *Forwarder) Forward(c *gin.Context) {
	var req ForwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	target := strings.TrimSuffix(req.Endpoint, "/") + "/chat/completions"
	upstream, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, target, bytes.NewReader(req.Body))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	upstream.Header.Set("Content-Type", "application/json")
	upstream.Header.Set("Authorization", "Bearer "+req.APIKey)

	resp, err := f.client.Do(upstream)
	if err != nil {
		// This message is the browser's only window into why the call
		// failed; keep it verbatim.
		f.logger.Warn("proxy forward failed", zap.String("target", target), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("failed to reach remote endpoint: %v", err)})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), body)
		return
	}

	if isStreamRequest(req.Body) {
		f.relayStream(c, resp)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("failed to read remote response: %v", err)})
		return
	}
	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), body)
}

// isStreamRequest checks the forwarded body's stream flag.
func isStreamRequest(body json.RawMessage) bool {
	var probe struct {
		Stream bool `json:"stream"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.Stream
}

// relayStream pipes the upstream body through unbuffered, flushing
// after every read so SSE events reach the browser as they arrive.
func (f *Forwarder) relayStream(c *gin.Context, resp *http.Response) {
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/event-stream"
	}
	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(resp.StatusCode)

	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				return
			}
			c.Writer.Flush()
		}
		if err != nil {
			if err != io.EOF {
				f.logger.Warn("stream relay interrupted", zap.Error(err))
			}
			return
		}
	}
}

// Health is the liveness probe for the proxy itself.
func (f *Forwarder) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RemoteHealthRequest is the body accepted by POST /health/remote.
type RemoteHealthRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	APIKey   string `json:"apiKey" binding:"required"`
	Model    string `json:"model"`
}

// RemoteHealth runs the two-stage reachability check against the
// given endpoint on behalf of a caller that cannot reach it directly.
func (f *Forwarder) RemoteHealth(c *gin.Context) {
	var req RemoteHealthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ok, message := f.probeRemote(c.Request.Context(), req.Endpoint, req.APIKey, req.Model)
	status := "unavailable"
	if ok {
		status = "available"
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "message": message})
}

// probeRemote first tries a lightweight GET on the models listing;
// not every OpenAI-compatible server supports it, so a failure falls
// back to a minimal 1-token completion. Either stage succeeding means
// available.
func (f *Forwarder) probeRemote(ctx context.Context, endpoint, apiKey, model string) (bool, string) {
	base := strings.TrimSuffix(endpoint, "/")

	listCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(listCtx, http.MethodGet, base+"/models", nil)
	if err == nil {
		req.Header.Set("Authorization", "Bearer "+apiKey)
		resp, err := f.client.Do(req)
		if err == nil {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return true, "model listing reachable"
			}
		}
	}

	if model == "" {
		model = "gpt-4o-mini"
	}
	body, _ := json.Marshal(map[string]any{
		"model":      model,
		"messages":   []map[string]string{{"role": "user", "content": "test"}},
		"max_tokens": 1,
	})

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err = http.NewRequestWithContext(probeCtx, http.MethodPost, base+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return false, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := f.client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("endpoint unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return true, "completion probe succeeded"
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return false, fmt.Sprintf("endpoint rejected probe with status %d: %s", resp.StatusCode, string(respBody))
}
