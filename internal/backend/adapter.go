package backend

import (
	"context"

	"github.com/llmrouter/llmrouter/internal/domain"
)

// Adapter translates the generic chat contract into one backend's
// wire format. Adapters never retry; retry and failover belong to the
// health loop, not the call path.
type Adapter interface {
	// Kind identifies which backend this adapter talks to.
	Kind() domain.BackendKind

	// CheckHealth probes the backend and returns a fresh snapshot. It
	// has no side effects beyond the network probe and must respect
	// the context deadline.
	CheckHealth(ctx context.Context) domain.BackendHealth

	// Chat streams a completion. The returned channel is finite: the
	// last delta has Done=true and carries the accumulated full text.
	// Cancelling ctx closes the underlying stream promptly.
	Chat(ctx context.Context, messages []domain.ChatMessage, cfg domain.ChatConfig) (<-chan domain.StreamDelta, error)

	// Model returns the model id the adapter will use for the next
	// call, after any health-check substitution.
	Model() string

	// Reset clears per-backend session state (cached model
	// resolution). Called when the active backend switches.
	Reset()
}

// withSystemPrompt prepends the adapter-level system prompt as the
// first message. This happens unconditionally: if the caller already
// included a system message, the adapter prompt still goes first.
func withSystemPrompt(prompt string, messages []domain.ChatMessage) []domain.ChatMessage {
	if prompt == "" {
		return messages
	}
	out := make([]domain.ChatMessage, 0, len(messages)+1)
	out = append(out, domain.ChatMessage{Role: domain.RoleSystem, Content: prompt})
	return append(out, messages...)
}
