package domain

import "time"

// BackendKind identifies which inference backend a decision refers to.
type BackendKind string

const (
	BackendLocal  BackendKind = "local"
	BackendRemote BackendKind = "remote"
)

// Other returns the opposite backend.
func (k BackendKind) Other() BackendKind {
	if k == BackendLocal {
		return BackendRemote
	}
	return BackendLocal
}

// Valid reports whether the kind is one of the known backends.
func (k BackendKind) Valid() bool {
	return k == BackendLocal || k == BackendRemote
}

// HealthStatus is the probe outcome for a single backend.
type HealthStatus string

const (
	// StatusChecking is the initial state before the first probe completes.
	StatusChecking HealthStatus = "checking"
	// StatusAvailable means the backend answered its probe.
	StatusAvailable HealthStatus = "available"
	// StatusUnavailable means the backend could not be reached or refused.
	StatusUnavailable HealthStatus = "unavailable"
	// StatusDegraded means the backend is reachable but completions fail.
	StatusDegraded HealthStatus = "degraded"
)

// BackendHealth is a point-in-time snapshot produced by one probe.
// Snapshots are never mutated; each poll cycle replaces the previous one.
type BackendHealth struct {
	Kind          BackendKind  `json:"kind"`
	Status        HealthStatus `json:"status"`
	LatencyMs     int64        `json:"latency_ms,omitempty"`
	LastCheckedAt time.Time    `json:"last_checked_at"`
	ErrorMessage  string       `json:"error_message,omitempty"`
}

// FailoverState holds the routing decision shared between the health
// loop and chat callers. PreferredBackend is user-declared;
// ActiveBackend is derived and is the only externally observable
// flip-flop.
type FailoverState struct {
	PreferredBackend BackendKind `json:"preferred_backend"`
	ActiveBackend    BackendKind `json:"active_backend"`
	LastSwitchAt     time.Time   `json:"last_switch_at,omitempty"`
}

// SwitchKind distinguishes leaving the preferred backend from
// returning to it.
type SwitchKind string

const (
	SwitchFailover SwitchKind = "failover"
	SwitchFailback SwitchKind = "failback"
)

// SwitchEvent is the user-visible notice emitted when the active
// backend actually changes.
type SwitchEvent struct {
	ID        string      `json:"id"`
	Kind      SwitchKind  `json:"kind"`
	From      BackendKind `json:"from"`
	To        BackendKind `json:"to"`
	Reason    string      `json:"reason"`
	CreatedAt time.Time   `json:"created_at"`
}
