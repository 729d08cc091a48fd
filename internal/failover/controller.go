package failover

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/llmrouter/llmrouter/internal/domain"
)

// EventSink records switch events for later inspection.
type EventSink interface {
	Record(event *domain.SwitchEvent) error
}

// Controller owns the failover state: it consumes health snapshots
// every tick and derives the active backend. It is the only writer of
// FailoverState; chat callers read it and never write, so a plain
// RWMutex suffices.
type Controller struct {
	mu    sync.RWMutex
	state domain.FailoverState

	// Last-known health per backend, kept so a preference change can
	// re-evaluate without waiting for the next tick.
	lastHealth map[domain.BackendKind]domain.BackendHealth
	evaluated  bool

	events   EventSink
	onSwitch func(domain.SwitchEvent)
	logger   *zap.Logger
}

// New creates a controller. Until the first health snapshot lands the
// active backend optimistically defaults to the preferred one; that
// initial assignment is not a switch and fires no notice.
func New(preferred domain.BackendKind, events EventSink, logger *zap.Logger) *Controller {
	if !preferred.Valid() {
		preferred = domain.BackendLocal
	}
	return &Controller{
		state: domain.FailoverState{
			PreferredBackend: preferred,
			ActiveBackend:    preferred,
		},
		lastHealth: make(map[domain.BackendKind]domain.BackendHealth),
		events:     events,
		logger:     logger,
	}
}

// OnSwitch registers a callback invoked once per actual backend
// change, after the state has been updated. Used to reset per-backend
// session state in the orchestrator.
func (c *Controller) OnSwitch(fn func(domain.SwitchEvent)) {
	c.mu.Lock()
	c.onSwitch = fn
	c.mu.Unlock()
}

// State returns the current failover state. Calls started after a
// tick published a new active backend observe the new value; calls
// already in flight keep the backend they started with.
func (c *Controller) State() domain.FailoverState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SetPreferred updates the user-declared preference and re-evaluates
// immediately against the last-known health rather than waiting for
// the next tick.
func (c *Controller) SetPreferred(kind domain.BackendKind) *domain.SwitchEvent {
	c.mu.Lock()
	c.state.PreferredBackend = kind
	if !c.evaluated {
		// No health data yet; stay optimistic on the new preference.
		c.state.ActiveBackend = kind
		c.mu.Unlock()
		return nil
	}
	local := c.lastHealth[domain.BackendLocal]
	remote := c.lastHealth[domain.BackendRemote]
	return c.evaluateLocked(local, remote)
}

// Evaluate applies the transition rule for one tick's health
// snapshots and returns the switch event if the active backend
// actually changed. Flapping that resolves before publish never
// reaches this method, so it can never double-fire.
func (c *Controller) Evaluate(local, remote domain.BackendHealth) *domain.SwitchEvent {
	c.mu.Lock()
	c.lastHealth[domain.BackendLocal] = local
	c.lastHealth[domain.BackendRemote] = remote
	c.evaluated = true
	return c.evaluateLocked(local, remote)
}

// evaluateLocked computes the new active backend. Only an Available
// backend qualifies as a switch target; when neither backend is
// available the last active one is kept (prefer "something" over
// "nothing"). Unlocks c.mu before returning.
func (c *Controller) evaluateLocked(local, remote domain.BackendHealth) *domain.SwitchEvent {
	healthOf := map[domain.BackendKind]domain.BackendHealth{
		domain.BackendLocal:  local,
		domain.BackendRemote: remote,
	}

	preferred := c.state.PreferredBackend
	other := preferred.Other()

	target := c.state.ActiveBackend
	switch {
	case healthOf[preferred].Status == domain.StatusAvailable:
		target = preferred
	case healthOf[other].Status == domain.StatusAvailable:
		target = other
	}
	// Neither available: keep last active.

	if target == c.state.ActiveBackend {
		c.mu.Unlock()
		return nil
	}

	from := c.state.ActiveBackend
	c.state.ActiveBackend = target
	c.state.LastSwitchAt = time.Now()

	kind := domain.SwitchFailover
	if target == preferred {
		kind = domain.SwitchFailback
	}
	event := domain.SwitchEvent{
		ID:        uuid.New().String(),
		Kind:      kind,
		From:      from,
		To:        target,
		Reason:    switchReason(kind, healthOf[from]),
		CreatedAt: c.state.LastSwitchAt,
	}
	onSwitch := c.onSwitch
	c.mu.Unlock()

	c.logger.Info("backend switched",
		zap.String("kind", string(event.Kind)),
		zap.String("from", string(event.From)),
		zap.String("to", string(event.To)),
		zap.String("reason", event.Reason))

	if c.events != nil {
		if err := c.events.Record(&event); err != nil {
			c.logger.Warn("failed to record switch event", zap.Error(err))
		}
	}
	if onSwitch != nil {
		onSwitch(event)
	}
	return &event
}

func switchReason(kind domain.SwitchKind, fromHealth domain.BackendHealth) string {
	if kind == domain.SwitchFailback {
		return "preferred backend recovered"
	}
	if fromHealth.ErrorMessage != "" {
		return fromHealth.ErrorMessage
	}
	return "preferred backend unavailable"
}
