package system

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/llmrouter/llmrouter/internal/domain"
	"github.com/llmrouter/llmrouter/internal/failover"
	"github.com/llmrouter/llmrouter/internal/health"
	"github.com/llmrouter/llmrouter/internal/repository"
)

// Handler exposes the routing state: health snapshots, the failover
// state, the preference record, and the switch-event log.
type Handler struct {
	monitor    *health.Monitor
	controller *failover.Controller
	prefsRepo  *repository.PreferenceRepository
	eventsRepo *repository.SwitchEventRepository
}

// NewHandler creates a new system handler
func NewHandler(
	monitor *health.Monitor,
	controller *failover.Controller,
	prefsRepo *repository.PreferenceRepository,
	eventsRepo *repository.SwitchEventRepository,
) *Handler {
	return &Handler{
		monitor:    monitor,
		controller: controller,
		prefsRepo:  prefsRepo,
		eventsRepo: eventsRepo,
	}
}

// RegisterRoutes registers system routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/health/backends", h.Backends)
	r.GET("/preferences", h.GetPreferences)
	r.PUT("/preferences", h.PutPreferences)
	r.GET("/events", h.Events)
}

// Backends returns the current health snapshot set and failover state.
func (h *Handler) Backends(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"backends": h.monitor.Snapshots(),
		"failover": h.controller.State(),
	})
}

// GetPreferences returns the persisted preference record, falling
// back to the controller's current state when none was ever saved.
func (h *Handler) GetPreferences(c *gin.Context) {
	prefs, err := h.prefsRepo.Get()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if prefs == nil {
		prefs = &repository.Preferences{
			PreferredBackend: h.controller.State().PreferredBackend,
		}
	}
	c.JSON(http.StatusOK, prefs)
}

// PutPreferencesRequest is the body accepted by PUT /preferences.
type PutPreferencesRequest struct {
	PreferredBackend domain.BackendKind `json:"preferred_backend" binding:"required"`
	LocalModel       string             `json:"local_model,omitempty"`
	RemoteModel      string             `json:"remote_model,omitempty"`
}

// PutPreferences persists the preference record and re-evaluates the
// active backend immediately rather than waiting for the next tick.
func (h *Handler) PutPreferences(c *gin.Context) {
	var req PutPreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.PreferredBackend.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "preferred_backend must be \"local\" or \"remote\""})
		return
	}

	prefs := &repository.Preferences{
		PreferredBackend: req.PreferredBackend,
		LocalModel:       req.LocalModel,
		RemoteModel:      req.RemoteModel,
	}
	if err := h.prefsRepo.Save(prefs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	event := h.controller.SetPreferred(req.PreferredBackend)

	c.JSON(http.StatusOK, gin.H{
		"preferences": prefs,
		"failover":    h.controller.State(),
		"switched":    event != nil,
	})
}

// Events returns the most recent switch events, newest first.
func (h *Handler) Events(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	events, err := h.eventsRepo.List(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if events == nil {
		events = []*domain.SwitchEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
