package failover

import (
	"testing"

	"go.uber.org/zap"

	"github.com/llmrouter/llmrouter/internal/domain"
)

func snapshot(kind domain.BackendKind, status domain.HealthStatus) domain.BackendHealth {
	return domain.BackendHealth{Kind: kind, Status: status}
}

type recordingSink struct {
	events []*domain.SwitchEvent
}

func (r *recordingSink) Record(event *domain.SwitchEvent) error {
	r.events = append(r.events, event)
	return nil
}

func TestTransitionTable(t *testing.T) {
	const (
		avail   = domain.StatusAvailable
		unavail = domain.StatusUnavailable
	)

	tests := []struct {
		name       string
		preferred  domain.BackendKind
		local      domain.HealthStatus
		remote     domain.HealthStatus
		wantActive domain.BackendKind
	}{
		{"local preferred and available", domain.BackendLocal, avail, avail, domain.BackendLocal},
		{"local preferred, down, remote up", domain.BackendLocal, unavail, avail, domain.BackendRemote},
		{"local preferred, both down, keep last", domain.BackendLocal, unavail, unavail, domain.BackendLocal},
		{"remote preferred and available", domain.BackendRemote, avail, avail, domain.BackendRemote},
		{"remote preferred, down, local up", domain.BackendRemote, avail, unavail, domain.BackendLocal},
		{"remote preferred, both down, keep last", domain.BackendRemote, unavail, unavail, domain.BackendRemote},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := New(tc.preferred, nil, zap.NewNop())
			c.Evaluate(snapshot(domain.BackendLocal, tc.local), snapshot(domain.BackendRemote, tc.remote))

			if got := c.State().ActiveBackend; got != tc.wantActive {
				t.Errorf("active = %s, want %s", got, tc.wantActive)
			}
		})
	}
}

func TestDegradedPreferredTriggersFailover(t *testing.T) {
	// Degraded means reachable but failing completions; it does not
	// qualify as a chat target.
	c := New(domain.BackendRemote, nil, zap.NewNop())
	event := c.Evaluate(
		snapshot(domain.BackendLocal, domain.StatusAvailable),
		snapshot(domain.BackendRemote, domain.StatusDegraded),
	)

	if c.State().ActiveBackend != domain.BackendLocal {
		t.Errorf("active = %s, want local", c.State().ActiveBackend)
	}
	if event == nil || event.Kind != domain.SwitchFailover {
		t.Errorf("event = %+v, want a failover notice", event)
	}
}

func TestFirstTickDefaultsToPreferredWithoutNotice(t *testing.T) {
	sink := &recordingSink{}
	c := New(domain.BackendRemote, sink, zap.NewNop())

	// Before any probe, the active backend is optimistically the
	// preferred one and no notice has fired.
	if c.State().ActiveBackend != domain.BackendRemote {
		t.Errorf("initial active = %s, want remote", c.State().ActiveBackend)
	}
	if len(sink.events) != 0 {
		t.Errorf("expected no events before the first tick, got %d", len(sink.events))
	}

	// First real snapshot confirming the preferred backend changes
	// nothing and fires nothing.
	event := c.Evaluate(
		snapshot(domain.BackendLocal, domain.StatusAvailable),
		snapshot(domain.BackendRemote, domain.StatusAvailable),
	)
	if event != nil || len(sink.events) != 0 {
		t.Errorf("expected no event on a confirming first tick, got %+v", event)
	}
}

func TestFailoverThenFailbackFiresExactlyOneNoticeEach(t *testing.T) {
	sink := &recordingSink{}
	c := New(domain.BackendRemote, sink, zap.NewNop())

	// Remote goes down, local is up: one failover notice.
	event := c.Evaluate(
		snapshot(domain.BackendLocal, domain.StatusAvailable),
		snapshot(domain.BackendRemote, domain.StatusUnavailable),
	)
	if event == nil || event.Kind != domain.SwitchFailover {
		t.Fatalf("event = %+v, want failover", event)
	}
	if event.From != domain.BackendRemote || event.To != domain.BackendLocal {
		t.Errorf("event %s -> %s, want remote -> local", event.From, event.To)
	}

	// Same health on the next tick: no repeat notice.
	if repeat := c.Evaluate(
		snapshot(domain.BackendLocal, domain.StatusAvailable),
		snapshot(domain.BackendRemote, domain.StatusUnavailable),
	); repeat != nil {
		t.Errorf("steady-state tick fired a duplicate notice: %+v", repeat)
	}

	// Remote recovers: one failback notice.
	event = c.Evaluate(
		snapshot(domain.BackendLocal, domain.StatusAvailable),
		snapshot(domain.BackendRemote, domain.StatusAvailable),
	)
	if event == nil || event.Kind != domain.SwitchFailback {
		t.Fatalf("event = %+v, want failback", event)
	}

	if len(sink.events) != 2 {
		t.Errorf("recorded %d events, want 2", len(sink.events))
	}
}

func TestSwitchReasonCarriesHealthError(t *testing.T) {
	c := New(domain.BackendLocal, nil, zap.NewNop())
	remote := snapshot(domain.BackendRemote, domain.StatusAvailable)
	local := snapshot(domain.BackendLocal, domain.StatusUnavailable)
	local.ErrorMessage = "no models installed"

	event := c.Evaluate(local, remote)
	if event == nil {
		t.Fatal("expected a failover event")
	}
	if event.Reason != "no models installed" {
		t.Errorf("reason = %q, want the health error message", event.Reason)
	}
}

func TestOnSwitchCallbackFiresOncePerChange(t *testing.T) {
	c := New(domain.BackendLocal, nil, zap.NewNop())
	var calls []domain.BackendKind
	c.OnSwitch(func(event domain.SwitchEvent) {
		calls = append(calls, event.To)
	})

	c.Evaluate(snapshot(domain.BackendLocal, domain.StatusUnavailable), snapshot(domain.BackendRemote, domain.StatusAvailable))
	c.Evaluate(snapshot(domain.BackendLocal, domain.StatusUnavailable), snapshot(domain.BackendRemote, domain.StatusAvailable))
	c.Evaluate(snapshot(domain.BackendLocal, domain.StatusAvailable), snapshot(domain.BackendRemote, domain.StatusAvailable))

	if len(calls) != 2 {
		t.Fatalf("callback fired %d times, want 2", len(calls))
	}
	if calls[0] != domain.BackendRemote || calls[1] != domain.BackendLocal {
		t.Errorf("calls = %v", calls)
	}
}

func TestSetPreferredReEvaluatesImmediately(t *testing.T) {
	c := New(domain.BackendLocal, nil, zap.NewNop())
	c.Evaluate(snapshot(domain.BackendLocal, domain.StatusAvailable), snapshot(domain.BackendRemote, domain.StatusAvailable))

	event := c.SetPreferred(domain.BackendRemote)
	if event == nil {
		t.Fatal("expected a switch on preference change")
	}
	if c.State().ActiveBackend != domain.BackendRemote {
		t.Errorf("active = %s, want remote", c.State().ActiveBackend)
	}
}
