package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/llmrouter/llmrouter/internal/config"
	"github.com/llmrouter/llmrouter/internal/domain"
)

const searchTimeout = 10 * time.Second

// searchKeywords trigger a web-search call when they appear in the
// raw query. This is a cheap, intentionally over-inclusive heuristic,
// not NLP: temporal words, factual-lookup phrasings, and a few domain
// words.
var searchKeywords = []string{
	"latest", "current", "today", "recent", "now", "this week",
	"what is", "what's", "who is", "who's", "when is", "when did",
	"how much", "price of",
	"weather", "stock", "news", "score",
}

// Augmenter enriches a query with web-search context before it is
// forwarded to the active backend. Failures are swallowed here: a
// missing search result must never block the chat response.
type Augmenter struct {
	cfg    config.SearchConfig
	client *http.Client
	logger *zap.Logger

	mu       sync.Mutex
	lastErr  string
	everUsed bool
}

// NewAugmenter creates a web-search augmenter.
func NewAugmenter(cfg config.SearchConfig, logger *zap.Logger) *Augmenter {
	return &Augmenter{
		cfg:    cfg,
		client: &http.Client{Timeout: searchTimeout},
		logger: logger,
	}
}

// ShouldSearch decides from the literal query text whether external
// context should be fetched.
func (a *Augmenter) ShouldSearch(query string) bool {
	if a.cfg.APIURL == "" || a.cfg.APIKey == "" {
		return false
	}
	q := strings.ToLower(query)
	for _, kw := range searchKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

type searchChatRequest struct {
	Model       string               `json:"model"`
	Messages    []domain.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
}

type searchChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

// Augment fetches search context for the query. It returns the zero
// Augmentation on any failure or empty answer; errors are logged, not
// propagated.
func (a *Augmenter) Augment(ctx context.Context, query string) domain.Augmentation {
	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	payload, err := json.Marshal(searchChatRequest{
		Model:       a.cfg.Model,
		Messages:    []domain.ChatMessage{{Role: domain.RoleUser, Content: query}},
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	})
	if err != nil {
		return domain.Augmentation{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return a.failed(fmt.Sprintf("building search request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return a.failed(fmt.Sprintf("search provider unreachable: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return a.failed(fmt.Sprintf("search provider returned status %d: %s", resp.StatusCode, string(body)))
	}

	var result searchChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return a.failed(fmt.Sprintf("parsing search response: %v", err))
	}

	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return a.failed("search returned an empty answer")
	}

	a.mu.Lock()
	a.lastErr = ""
	a.everUsed = true
	a.mu.Unlock()

	results := make([]domain.SearchResult, 0, len(result.Citations))
	for _, url := range result.Citations {
		results = append(results, domain.SearchResult{URL: url, Source: "web"})
	}

	return domain.Augmentation{
		Digest:  formatDigest(result.Choices[0].Message.Content, result.Citations),
		Results: results,
	}
}

func (a *Augmenter) failed(msg string) domain.Augmentation {
	a.logger.Warn("search augmentation skipped", zap.String("reason", msg))
	a.mu.Lock()
	a.lastErr = msg
	a.everUsed = true
	a.mu.Unlock()
	return domain.Augmentation{}
}

// formatDigest renders the answer with citation links appended.
func formatDigest(answer string, citations []string) string {
	if len(citations) == 0 {
		return answer
	}
	var b strings.Builder
	b.WriteString(answer)
	b.WriteString("\n\nSources:")
	for i, url := range citations {
		fmt.Fprintf(&b, "\n[%d] %s", i+1, url)
	}
	return b.String()
}

// CheckHealth reports the augmenter's availability from configuration
// and the outcome of the most recent search call. No probe request is
// made: burning provider quota on the polling cadence is not worth a
// fresher reading.
func (a *Augmenter) CheckHealth(ctx context.Context) domain.BackendHealth {
	snapshot := domain.BackendHealth{LastCheckedAt: time.Now()}

	if a.cfg.APIURL == "" || a.cfg.APIKey == "" {
		snapshot.Status = domain.StatusUnavailable
		snapshot.ErrorMessage = "search provider not configured"
		return snapshot
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.everUsed && a.lastErr != "" {
		snapshot.Status = domain.StatusDegraded
		snapshot.ErrorMessage = a.lastErr
		return snapshot
	}
	snapshot.Status = domain.StatusAvailable
	return snapshot
}
