package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/llmrouter/llmrouter/internal/config"
	"github.com/llmrouter/llmrouter/internal/domain"
)

func testConfig(apiURL string) config.SearchConfig {
	return config.SearchConfig{
		APIURL:      apiURL,
		APIKey:      "sk-search",
		Model:       "sonar",
		Temperature: 0.2,
		MaxTokens:   800,
	}
}

func TestShouldSearch(t *testing.T) {
	a := NewAugmenter(testConfig("https://search.example.com"), zap.NewNop())

	tests := []struct {
		query string
		want  bool
	}{
		{"what's the weather in Boston", true},
		{"What is the capital of France?", true},
		{"latest earnings for ACME Corp", true},
		{"stock price movement", true},
		{"summarize account risks", false},
		{"draft an email to the customer", false},
	}

	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			if got := a.ShouldSearch(tc.query); got != tc.want {
				t.Errorf("ShouldSearch(%q) = %v, want %v", tc.query, got, tc.want)
			}
		})
	}
}

func TestShouldSearchDisabledWithoutConfig(t *testing.T) {
	a := NewAugmenter(config.SearchConfig{}, zap.NewNop())
	if a.ShouldSearch("what's the weather in Boston") {
		t.Error("unconfigured augmenter should never trigger a search")
	}
}

func TestAugmentInjectsAnswerAndCitations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model       string  `json:"model"`
			Temperature float64 `json:"temperature"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "sonar" {
			t.Errorf("model = %q, want sonar", req.Model)
		}
		if req.Temperature != 0.2 {
			t.Errorf("temperature = %v, want 0.2", req.Temperature)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "Sunny, 22C in Boston."}},
			},
			"citations": []string{"https://weather.example.com/boston"},
		})
	}))
	defer srv.Close()

	a := NewAugmenter(testConfig(srv.URL), zap.NewNop())
	aug := a.Augment(context.Background(), "what's the weather in Boston")

	if aug.Empty() {
		t.Fatal("expected an augmentation")
	}
	if !strings.Contains(aug.Digest, "Sunny, 22C") {
		t.Errorf("digest = %q", aug.Digest)
	}
	if !strings.Contains(aug.Digest, "https://weather.example.com/boston") {
		t.Errorf("digest should append citations, got %q", aug.Digest)
	}
	if len(aug.Results) != 1 {
		t.Errorf("got %d results, want 1", len(aug.Results))
	}

	applied := aug.Apply("what's the weather in Boston")
	if !strings.HasPrefix(applied, "what's the weather in Boston") {
		t.Errorf("original query must lead the augmented text, got %q", applied)
	}
}

func TestAugmentSwallowsFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "provider error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "quota exceeded", http.StatusTooManyRequests)
			},
		},
		{
			name: "empty answer",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
			},
		},
		{
			name: "garbage response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			a := NewAugmenter(testConfig(srv.URL), zap.NewNop())
			aug := a.Augment(context.Background(), "latest news")
			if !aug.Empty() {
				t.Errorf("expected no augmentation, got %+v", aug)
			}
		})
	}
}

func TestAugmentUnreachableProviderReturnsEmpty(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	a := NewAugmenter(cfg, zap.NewNop())

	aug := a.Augment(context.Background(), "latest news")
	if !aug.Empty() {
		t.Errorf("expected no augmentation, got %+v", aug)
	}

	// The failed call shows up in the health snapshot as degraded.
	snapshot := a.CheckHealth(context.Background())
	if snapshot.Status != domain.StatusDegraded {
		t.Errorf("status = %s, want degraded", snapshot.Status)
	}
}
