package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/llmrouter/llmrouter/internal/domain"
)

// ndjsonChunk is one line of the local backend's chat stream.
type ndjsonChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// relayNDJSON reads one JSON object per line from body, forwarding
// each content fragment to out, and returns the concatenation of all
// fragments in arrival order. Malformed lines are logged and skipped;
// a single corrupt chunk must not lose the rest of the response. The
// stream ends at a chunk with done=true or at EOF.
func relayNDJSON(ctx context.Context, body io.Reader, out chan<- domain.StreamDelta, logger *zap.Logger) (string, error) {
	var full strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var chunk ndjsonChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			logger.Warn("skipping malformed stream line",
				zap.String("backend", string(domain.BackendLocal)),
				zap.Error(err))
			continue
		}

		if chunk.Message.Content != "" {
			full.WriteString(chunk.Message.Content)
			select {
			case out <- domain.StreamDelta{Content: chunk.Message.Content}:
			case <-ctx.Done():
				return full.String(), ctx.Err()
			}
		}

		if chunk.Done {
			return full.String(), nil
		}
	}

	if err := scanner.Err(); err != nil {
		return full.String(), err
	}
	// Connection closed without a done marker; treat what we have as
	// the complete response.
	return full.String(), nil
}
