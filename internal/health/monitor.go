package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/llmrouter/llmrouter/internal/domain"
	"github.com/llmrouter/llmrouter/internal/failover"
)

// Target names for the auxiliary probes published alongside the two
// chat backends.
const (
	TargetLocal  = "local"
	TargetRemote = "remote"
	TargetProxy  = "proxy"
	TargetSearch = "search"
)

// CheckFunc probes one target and returns a fresh snapshot.
type CheckFunc func(ctx context.Context) domain.BackendHealth

// Monitor polls every target on a fixed interval. Probes within one
// tick run concurrently and are individually time-boxed, so a hung
// probe can never stall the next tick. Snapshots swap atomically: the
// previous snapshot stays visible until the new one is ready.
type Monitor struct {
	interval     time.Duration
	probeTimeout time.Duration

	checks     map[string]CheckFunc
	controller *failover.Controller
	logger     *zap.Logger

	mu        sync.RWMutex
	snapshots map[string]domain.BackendHealth
}

// NewMonitor creates a monitor over the given named checks. The local
// and remote snapshots feed the failover controller after each tick.
func NewMonitor(interval, probeTimeout time.Duration, checks map[string]CheckFunc, controller *failover.Controller, logger *zap.Logger) *Monitor {
	if probeTimeout >= interval {
		// The probe ceiling must stay under the tick period so the
		// loop cadence is independent of probe duration.
		probeTimeout = interval * 4 / 5
	}
	snapshots := make(map[string]domain.BackendHealth, len(checks))
	for name := range checks {
		snapshots[name] = domain.BackendHealth{Status: domain.StatusChecking}
	}
	snapshots[TargetLocal] = domain.BackendHealth{Kind: domain.BackendLocal, Status: domain.StatusChecking}
	snapshots[TargetRemote] = domain.BackendHealth{Kind: domain.BackendRemote, Status: domain.StatusChecking}

	return &Monitor{
		interval:     interval,
		probeTimeout: probeTimeout,
		checks:       checks,
		controller:   controller,
		logger:       logger,
		snapshots:    snapshots,
	}
}

// Run polls until ctx is cancelled. The first tick fires immediately
// so callers are not stuck on Checking for a full interval.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick probes all targets concurrently, publishes the snapshot set,
// and hands the backend snapshots to the failover controller.
func (m *Monitor) Tick(ctx context.Context) {
	results := make(map[string]domain.BackendHealth, len(m.checks))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for name, check := range m.checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()
			snapshot := m.probe(ctx, name, check)
			mu.Lock()
			results[name] = snapshot
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return
	}

	// A timed-out probe cannot know which backend it was for; stamp
	// the kind from the target name before publishing.
	if s, ok := results[TargetLocal]; ok {
		s.Kind = domain.BackendLocal
		results[TargetLocal] = s
	}
	if s, ok := results[TargetRemote]; ok {
		s.Kind = domain.BackendRemote
		results[TargetRemote] = s
	}

	m.mu.Lock()
	for name, snapshot := range results {
		m.snapshots[name] = snapshot
	}
	local := m.snapshots[TargetLocal]
	remote := m.snapshots[TargetRemote]
	m.mu.Unlock()

	if m.controller != nil {
		m.controller.Evaluate(local, remote)
	}
}

// probe runs one check under its own deadline. A timed-out or
// panicking probe reports Unavailable rather than taking down the
// loop.
func (m *Monitor) probe(ctx context.Context, name string, check CheckFunc) domain.BackendHealth {
	ctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	done := make(chan domain.BackendHealth, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("health probe panicked", zap.String("target", name), zap.Any("panic", r))
				done <- domain.BackendHealth{
					Status:        domain.StatusUnavailable,
					LastCheckedAt: time.Now(),
					ErrorMessage:  "health probe failed unexpectedly",
				}
			}
		}()
		done <- check(ctx)
	}()

	select {
	case snapshot := <-done:
		return snapshot
	case <-ctx.Done():
		return domain.BackendHealth{
			Status:        domain.StatusUnavailable,
			LastCheckedAt: time.Now(),
			ErrorMessage:  "health check timed out",
		}
	}
}

// Snapshots returns a copy of the current snapshot set.
func (m *Monitor) Snapshots() map[string]domain.BackendHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]domain.BackendHealth, len(m.snapshots))
	for name, snapshot := range m.snapshots {
		out[name] = snapshot
	}
	return out
}
