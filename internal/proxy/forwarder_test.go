package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func newTestRouter() (*gin.Engine, *Forwarder) {
	gin.SetMode(gin.TestMode)
	f := NewForwarder(zap.NewNop())
	r := gin.New()
	f.RegisterRoutes(r)
	return r, f
}

func postProxy(t *testing.T, r *gin.Engine, endpoint, apiKey string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	payload, _ := json.Marshal(map[string]any{
		"endpoint": endpoint,
		"apiKey":   apiKey,
		"body":     body,
	})
	req := httptest.NewRequest(http.MethodPost, "/proxy", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestForwardNonStreamPassthrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("upstream path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"hello"}}]}`)
	}))
	defer upstream.Close()

	r, _ := newTestRouter()
	rr := postProxy(t, r, upstream.URL, "sk-test", map[string]any{
		"model":  "gpt-4o-mini",
		"stream": false,
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	// The upstream JSON body comes back unmodified.
	if rr.Body.String() != `{"choices":[{"message":{"content":"hello"}}]}` {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestForwardStreamRelaysVerbatim(t *testing.T) {
	upstreamBody := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n\n" +
		"data: [DONE]\n\n"

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, upstreamBody)
	}))
	defer upstream.Close()

	r, _ := newTestRouter()
	rr := postProxy(t, r, upstream.URL, "sk-test", map[string]any{
		"model":  "gpt-4o-mini",
		"stream": true,
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	// No SSE lines added or removed.
	if rr.Body.String() != upstreamBody {
		t.Errorf("relayed body differs from upstream:\ngot  %q\nwant %q", rr.Body.String(), upstreamBody)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content-type = %q", ct)
	}
}

func TestForwardSurfacesUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Incorrect API key provided"}}`)
	}))
	defer upstream.Close()

	r, _ := newTestRouter()
	rr := postProxy(t, r, upstream.URL, "sk-bad", map[string]any{"model": "gpt-4o-mini"})

	// Upstream status and body come through, not a generic 500.
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Incorrect API key provided") {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestForwardNetworkFailureReturns5xxWithMessage(t *testing.T) {
	r, _ := newTestRouter()
	rr := postProxy(t, r, "http://127.0.0.1:1", "sk-test", map[string]any{"model": "m"})

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "failed to reach remote endpoint") {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestForwardRejectsMissingFields(t *testing.T) {
	r, _ := newTestRouter()
	req := httptest.NewRequest(http.MethodPost, "/proxy", strings.NewReader(`{"endpoint":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestRemoteHealthTwoStage(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus string
	}{
		{
			name: "models listing supported",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/models" {
					fmt.Fprint(w, `{"data":[]}`)
					return
				}
				t.Errorf("unexpected call to %s after listing succeeded", r.URL.Path)
			},
			wantStatus: "available",
		},
		{
			name: "listing unsupported, completion probe succeeds",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/models" {
					http.NotFound(w, r)
					return
				}
				if r.URL.Path == "/chat/completions" {
					fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
					return
				}
			},
			wantStatus: "available",
		},
		{
			name: "both stages fail",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "invalid key", http.StatusUnauthorized)
			},
			wantStatus: "unavailable",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			upstream := httptest.NewServer(tc.handler)
			defer upstream.Close()

			r, _ := newTestRouter()
			payload, _ := json.Marshal(map[string]string{
				"endpoint": upstream.URL,
				"apiKey":   "sk-test",
				"model":    "gpt-4o-mini",
			})
			req := httptest.NewRequest(http.MethodPost, "/health/remote", bytes.NewReader(payload))
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d", rr.Code)
			}
			var resp struct {
				Status  string `json:"status"`
				Message string `json:"message"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("bad response: %v", err)
			}
			if resp.Status != tc.wantStatus {
				t.Errorf("status = %q (message %q), want %q", resp.Status, resp.Message, tc.wantStatus)
			}
		})
	}
}
