package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/llmrouter/llmrouter/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPreferencesRoundTrip(t *testing.T) {
	repo := NewPreferenceRepository(newTestDB(t))

	// No record yet.
	prefs, err := repo.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if prefs != nil {
		t.Fatalf("expected nil before first save, got %+v", prefs)
	}

	if err := repo.Save(&Preferences{
		PreferredBackend: domain.BackendRemote,
		RemoteModel:      "gpt-4o-mini",
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	prefs, err = repo.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if prefs.PreferredBackend != domain.BackendRemote {
		t.Errorf("preferred = %s, want remote", prefs.PreferredBackend)
	}
	if prefs.RemoteModel != "gpt-4o-mini" {
		t.Errorf("remote model = %q", prefs.RemoteModel)
	}

	// Saving again replaces the single record.
	if err := repo.Save(&Preferences{PreferredBackend: domain.BackendLocal}); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	prefs, _ = repo.Get()
	if prefs.PreferredBackend != domain.BackendLocal {
		t.Errorf("preferred after update = %s, want local", prefs.PreferredBackend)
	}
}

func TestSwitchEventLog(t *testing.T) {
	repo := NewSwitchEventRepository(newTestDB(t))

	first := &domain.SwitchEvent{
		Kind:      domain.SwitchFailover,
		From:      domain.BackendLocal,
		To:        domain.BackendRemote,
		Reason:    "no models installed",
		CreatedAt: time.Now().Add(-time.Minute),
	}
	second := &domain.SwitchEvent{
		Kind:   domain.SwitchFailback,
		From:   domain.BackendRemote,
		To:     domain.BackendLocal,
		Reason: "preferred backend recovered",
	}

	if err := repo.Record(first); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := repo.Record(second); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if first.ID == "" || second.ID == "" {
		t.Error("Record should assign ids")
	}

	events, err := repo.List(10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	// Newest first.
	if events[0].Kind != domain.SwitchFailback {
		t.Errorf("first listed event = %s, want failback", events[0].Kind)
	}
	if events[1].Reason != "no models installed" {
		t.Errorf("reason = %q", events[1].Reason)
	}
}
