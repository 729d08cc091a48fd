package api

import (
	"github.com/gin-gonic/gin"

	"github.com/llmrouter/llmrouter/internal/api/chat"
	"github.com/llmrouter/llmrouter/internal/api/middleware"
	"github.com/llmrouter/llmrouter/internal/api/system"
	"github.com/llmrouter/llmrouter/internal/failover"
	"github.com/llmrouter/llmrouter/internal/health"
	"github.com/llmrouter/llmrouter/internal/proxy"
	"github.com/llmrouter/llmrouter/internal/repository"
	"github.com/llmrouter/llmrouter/internal/service"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	APIKey       string
	AllowOrigins []string
}

// SetupRouter sets up the Gin router
func SetupRouter(
	chatService *service.ChatService,
	forwarder *proxy.Forwarder,
	monitor *health.Monitor,
	controller *failover.Controller,
	prefsRepo *repository.PreferenceRepository,
	eventsRepo *repository.SwitchEventRepository,
	cfg RouterConfig,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS middleware
	r.Use(middleware.CORS(cfg.AllowOrigins))

	// Proxy surface: /proxy, /health, /health/remote. Mounted at top
	// level so browser callers and the remote adapter share one hop.
	forwarder.RegisterRoutes(r)

	// Chat API (public)
	chatHandler := chat.NewHandler(chatService)
	chatGroup := r.Group("/api")
	chatHandler.RegisterRoutes(chatGroup)

	// System API (requires API key when configured)
	systemHandler := system.NewHandler(monitor, controller, prefsRepo, eventsRepo)
	systemGroup := r.Group("/api")
	systemGroup.Use(middleware.Auth(cfg.APIKey))
	systemHandler.RegisterRoutes(systemGroup)

	return r
}
