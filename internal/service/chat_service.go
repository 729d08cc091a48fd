package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/llmrouter/llmrouter/internal/backend"
	"github.com/llmrouter/llmrouter/internal/config"
	"github.com/llmrouter/llmrouter/internal/domain"
	"github.com/llmrouter/llmrouter/internal/failover"
	"github.com/llmrouter/llmrouter/internal/search"
)

// Augmenter is the search side-input consumed by the chat service.
type Augmenter interface {
	ShouldSearch(query string) bool
	Augment(ctx context.Context, query string) domain.Augmentation
}

var _ Augmenter = (*search.Augmenter)(nil)

// ChatService routes chat requests to the active backend: it decides
// whether to enrich the query with search context, drives the active
// adapter's streaming call, and finalizes the response with the
// backend that actually served it.
type ChatService struct {
	cfg        *config.Config
	adapters   map[domain.BackendKind]backend.Adapter
	controller *failover.Controller
	augmenter  Augmenter
	logger     *zap.Logger

	// One chat call per adapter at a time: adapters accumulate
	// response text per call, and interleaving would corrupt it.
	locks map[domain.BackendKind]*sync.Mutex
}

// NewChatService creates the chat orchestrator.
func NewChatService(
	cfg *config.Config,
	adapters map[domain.BackendKind]backend.Adapter,
	controller *failover.Controller,
	augmenter Augmenter,
	logger *zap.Logger,
) *ChatService {
	locks := make(map[domain.BackendKind]*sync.Mutex, len(adapters))
	for kind := range adapters {
		locks[kind] = &sync.Mutex{}
	}
	s := &ChatService{
		cfg:        cfg,
		adapters:   adapters,
		controller: controller,
		augmenter:  augmenter,
		locks:      locks,
	}
	s.logger = logger
	controller.OnSwitch(s.onSwitch)
	return s
}

// onSwitch resets per-backend session state when the active backend
// changes, so the next call re-resolves the model id.
func (s *ChatService) onSwitch(event domain.SwitchEvent) {
	if adapter, ok := s.adapters[event.To]; ok {
		adapter.Reset()
	}
}

// StreamHandle describes an in-flight streamed chat call. Backend and
// Model report what is actually serving the request.
type StreamHandle struct {
	Deltas    <-chan domain.StreamDelta
	Backend   domain.BackendKind
	Model     string
	Augmented bool
}

// ChatStream starts a streamed chat call against the active backend.
// The active backend is read once, up front; a call already in flight
// when a failover lands keeps the backend it started with. A second
// concurrent call against the same adapter fails with ErrBusy.
func (s *ChatService) ChatStream(ctx context.Context, req *domain.ChatRequest) (*StreamHandle, error) {
	state := s.controller.State()
	adapter, ok := s.adapters[state.ActiveBackend]
	if !ok {
		return nil, domain.ErrNotConfigured
	}

	lock := s.locks[state.ActiveBackend]
	if !lock.TryLock() {
		return nil, domain.ErrBusy
	}

	// Augmentation blocks with its own timeout and proceeds without
	// enrichment on failure; the original query is preserved for
	// history, only the text sent to the model changes.
	sent := req.Message
	augmented := false
	if s.augmenter != nil && s.augmenter.ShouldSearch(req.Message) {
		if aug := s.augmenter.Augment(ctx, req.Message); !aug.Empty() {
			sent = aug.Apply(req.Message)
			augmented = true
		}
	}

	messages := make([]domain.ChatMessage, 0, len(req.History)+1)
	messages = append(messages, req.History...)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: sent})

	cfg := domain.ChatConfig{
		Model:        req.Model,
		Temperature:  s.cfg.Chat.Temperature,
		MaxTokens:    s.cfg.Chat.MaxTokens,
		SystemPrompt: s.cfg.Chat.SystemPrompt,
	}

	stream, err := adapter.Chat(ctx, messages, cfg)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = adapter.Model()
	}

	// Relay deltas in arrival order, never reordering or batching.
	// The lock is released when the stream ends or the caller
	// cancels, whichever comes first.
	out := make(chan domain.StreamDelta)
	go func() {
		defer close(out)
		defer lock.Unlock()
		for delta := range stream {
			select {
			case out <- delta:
			case <-ctx.Done():
				// Drain so the adapter goroutine can finish and the
				// body gets closed.
				for range stream {
				}
				return
			}
		}
	}()

	return &StreamHandle{
		Deltas:    out,
		Backend:   state.ActiveBackend,
		Model:     model,
		Augmented: augmented,
	}, nil
}

// Chat runs a full chat call and returns the finalized result. A
// mid-stream failure still yields whatever partial text had streamed,
// flagged incomplete rather than discarded.
func (s *ChatService) Chat(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResult, error) {
	handle, err := s.ChatStream(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &domain.ChatResult{
		Backend:   handle.Backend,
		Model:     handle.Model,
		Augmented: handle.Augmented,
	}
	for delta := range handle.Deltas {
		if delta.Done {
			result.Answer = delta.FullText
			result.Incomplete = delta.Incomplete
			if delta.Err != nil {
				s.logger.Warn("chat stream ended early",
					zap.String("backend", string(handle.Backend)),
					zap.Error(delta.Err))
			}
		}
	}
	return result, nil
}
