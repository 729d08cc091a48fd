package repository

import (
	"time"

	"github.com/google/uuid"

	"github.com/llmrouter/llmrouter/internal/domain"
)

// SwitchEventRepository keeps the append-only failover/failback audit
// log.
type SwitchEventRepository struct {
	db *DB
}

// NewSwitchEventRepository creates a new switch-event repository
func NewSwitchEventRepository(db *DB) *SwitchEventRepository {
	return &SwitchEventRepository{db: db}
}

// Record appends a switch event.
func (r *SwitchEventRepository) Record(event *domain.SwitchEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(`
		INSERT INTO switch_events (id, kind, from_backend, to_backend, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.ID, event.Kind, event.From, event.To, event.Reason, event.CreatedAt)

	return err
}

// List retrieves the most recent switch events, newest first.
func (r *SwitchEventRepository) List(limit int) ([]*domain.SwitchEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(`
		SELECT id, kind, from_backend, to_backend, reason, created_at
		FROM switch_events
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.SwitchEvent
	for rows.Next() {
		event := &domain.SwitchEvent{}
		if err := rows.Scan(&event.ID, &event.Kind, &event.From, &event.To,
			&event.Reason, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, rows.Err()
}
