package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/llmrouter/llmrouter/internal/domain"
)

// HealthChecker probes the proxy's liveness endpoint from the client
// side. The health monitor uses it to report the proxy hop alongside
// the backends it fronts.
type HealthChecker struct {
	baseURL string
	client  *http.Client
}

// NewHealthChecker creates a checker for the proxy at baseURL.
func NewHealthChecker(baseURL string) *HealthChecker {
	return &HealthChecker{
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

// Check issues GET /health and maps the result onto a health snapshot.
func (h *HealthChecker) Check(ctx context.Context) domain.BackendHealth {
	start := time.Now()
	snapshot := domain.BackendHealth{LastCheckedAt: start}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/health", nil)
	if err != nil {
		snapshot.Status = domain.StatusUnavailable
		snapshot.ErrorMessage = err.Error()
		return snapshot
	}

	resp, err := h.client.Do(req)
	if err != nil {
		snapshot.Status = domain.StatusUnavailable
		snapshot.ErrorMessage = fmt.Sprintf("proxy unreachable: %v (start the proxy separately)", err)
		return snapshot
	}
	defer resp.Body.Close()
	snapshot.LatencyMs = time.Since(start).Milliseconds()

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Status != "ok" {
		snapshot.Status = domain.StatusDegraded
		snapshot.ErrorMessage = "proxy answered but did not report ok"
		return snapshot
	}

	snapshot.Status = domain.StatusAvailable
	return snapshot
}
