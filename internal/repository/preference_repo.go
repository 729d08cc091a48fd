package repository

import (
	"database/sql"
	"time"

	"github.com/llmrouter/llmrouter/internal/domain"
)

// Preferences is the single user-declared routing preference record.
type Preferences struct {
	PreferredBackend domain.BackendKind `json:"preferred_backend"`
	LocalModel       string             `json:"local_model,omitempty"`
	RemoteModel      string             `json:"remote_model,omitempty"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// PreferenceRepository persists the preference record. The routing
// core treats it as read-only configuration injected at call time;
// only the management API writes it.
type PreferenceRepository struct {
	db *DB
}

// NewPreferenceRepository creates a new preference repository
func NewPreferenceRepository(db *DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// Get retrieves the preference record, or nil if none was ever saved.
func (r *PreferenceRepository) Get() (*Preferences, error) {
	prefs := &Preferences{}
	var localModel, remoteModel sql.NullString

	err := r.db.QueryRow(`
		SELECT preferred_backend, local_model, remote_model, updated_at
		FROM preferences WHERE id = 1
	`).Scan(&prefs.PreferredBackend, &localModel, &remoteModel, &prefs.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if localModel.Valid {
		prefs.LocalModel = localModel.String
	}
	if remoteModel.Valid {
		prefs.RemoteModel = remoteModel.String
	}

	return prefs, nil
}

// Save upserts the preference record.
func (r *PreferenceRepository) Save(prefs *Preferences) error {
	prefs.UpdatedAt = time.Now()

	_, err := r.db.Exec(`
		INSERT INTO preferences (id, preferred_backend, local_model, remote_model, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			preferred_backend = excluded.preferred_backend,
			local_model = excluded.local_model,
			remote_model = excluded.remote_model,
			updated_at = excluded.updated_at
	`, prefs.PreferredBackend, prefs.LocalModel, prefs.RemoteModel, prefs.UpdatedAt)

	return err
}
