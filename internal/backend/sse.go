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

// sseDoneSentinel terminates an OpenAI-style stream. It is a literal
// marker, not JSON, and must never be handed to the JSON parser.
const sseDoneSentinel = "[DONE]"

// sseChunk is the payload of one `data:` event in an OpenAI-style
// completion stream.
type sseChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// relaySSE reads Server-Sent-Events lines from body, forwarding each
// delta fragment to out, and returns the concatenation of all
// fragments in arrival order. The stream ends at the [DONE] sentinel
// or at EOF (a closed connection without the sentinel still terminates
// cleanly). Malformed events are logged and skipped.
func relaySSE(ctx context.Context, body io.Reader, out chan<- domain.StreamDelta, logger *zap.Logger) (string, error) {
	var full strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			// Comment or event-name line; not a payload.
			continue
		}
		data = strings.TrimSpace(data)

		if data == sseDoneSentinel {
			return full.String(), nil
		}

		var chunk sseChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			logger.Warn("skipping malformed stream event",
				zap.String("backend", string(domain.BackendRemote)),
				zap.Error(err))
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		if content := chunk.Choices[0].Delta.Content; content != "" {
			full.WriteString(content)
			select {
			case out <- domain.StreamDelta{Content: content}:
			case <-ctx.Done():
				return full.String(), ctx.Err()
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return full.String(), err
	}
	return full.String(), nil
}
