package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/llmrouter/llmrouter/internal/api"
	"github.com/llmrouter/llmrouter/internal/backend"
	"github.com/llmrouter/llmrouter/internal/config"
	"github.com/llmrouter/llmrouter/internal/domain"
	"github.com/llmrouter/llmrouter/internal/failover"
	"github.com/llmrouter/llmrouter/internal/health"
	"github.com/llmrouter/llmrouter/internal/proxy"
	"github.com/llmrouter/llmrouter/internal/repository"
	"github.com/llmrouter/llmrouter/internal/search"
	"github.com/llmrouter/llmrouter/internal/service"
)

var (
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database (preferences and switch-event log)
	db, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Initialize repositories
	prefsRepo := repository.NewPreferenceRepository(db)
	eventsRepo := repository.NewSwitchEventRepository(db)

	// The persisted preference record wins over config defaults.
	preferred := domain.BackendLocal
	localModel := cfg.Local.DefaultModel
	remoteModel := cfg.Remote.Model
	if prefs, err := prefsRepo.Get(); err != nil {
		logger.Warn("Failed to load preferences, defaulting to local", zap.Error(err))
	} else if prefs != nil {
		if prefs.PreferredBackend.Valid() {
			preferred = prefs.PreferredBackend
		}
		if prefs.LocalModel != "" {
			localModel = prefs.LocalModel
		}
		if prefs.RemoteModel != "" {
			remoteModel = prefs.RemoteModel
		}
	}

	// Initialize backend adapters
	localAdapter := backend.NewLocalAdapter(cfg.Local.BaseURL, localModel, logger)
	remoteAdapter := backend.NewRemoteAdapter(
		cfg.Remote.ProxyURL,
		cfg.Remote.Endpoint,
		cfg.Remote.APIKey,
		remoteModel,
		logger,
	)
	adapters := map[domain.BackendKind]backend.Adapter{
		domain.BackendLocal:  localAdapter,
		domain.BackendRemote: remoteAdapter,
	}

	// Initialize routing components
	controller := failover.New(preferred, eventsRepo, logger)
	augmenter := search.NewAugmenter(cfg.Search, logger)
	chatService := service.NewChatService(cfg, adapters, controller, augmenter, logger)
	forwarder := proxy.NewForwarder(logger)

	// Health monitor polls all backends concurrently on a fixed
	// interval and feeds the failover controller.
	proxyChecker := proxy.NewHealthChecker(cfg.Remote.ProxyURL)
	monitor := health.NewMonitor(cfg.Health.Interval, cfg.Health.ProbeTimeout,
		map[string]health.CheckFunc{
			health.TargetLocal:  localAdapter.CheckHealth,
			health.TargetRemote: remoteAdapter.CheckHealth,
			health.TargetProxy:  proxyChecker.Check,
			health.TargetSearch: augmenter.CheckHealth,
		}, controller, logger)

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	go monitor.Run(monitorCtx)

	// Setup router
	router := api.SetupRouter(chatService, forwarder, monitor, controller, prefsRepo, eventsRepo, api.RouterConfig{
		APIKey:       cfg.API.Key,
		AllowOrigins: []string{"*"},
	})

	// Create HTTP server. No write timeout: chat streams are
	// long-lived by design.
	srv := &http.Server{
		Addr:        cfg.Address(),
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting LLM router",
			zap.String("address", cfg.Address()),
			zap.String("preferred_backend", string(preferred)),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopMonitor()

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
