package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"collection-runner/internal/config"
	"collection-runner/internal/db"
	"collection-runner/internal/handlers"
	"collection-runner/internal/middleware"
	"collection-runner/internal/runner"
	"collection-runner/internal/store"
	"collection-runner/internal/substitute"
	"collection-runner/internal/transport"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.SetupLogging(); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	// Connect to database
	database, err := db.NewConnection(cfg.DatabaseURL())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	log.Info("Connected to database successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.New(database)
	tr := transport.FromConfig(cfg)
	newRun := func() *runner.Controller {
		return runner.NewController(tr, st,
			runner.WithSubstitutionMode(substitute.Mode(cfg.SubstitutionMode)),
		)
	}
	registry := runner.NewRegistry(newRun, runner.DefaultRegistryLimit)

	// Initialize Gin router
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery()) // Panic recovery
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.Logger()) // Request logging

	// Initialize rate limiter
	limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)

	// Health check endpoint (no rate limit)
	router.GET("/health", handlers.HealthCheck)

	// API routes
	handlers.Handlers{
		Project:     handlers.NewProjectHandler(st, cfg),
		Folder:      handlers.NewFolderHandler(st),
		Request:     handlers.NewRequestHandler(st, cfg, newRun),
		Environment: handlers.NewEnvironmentHandler(st),
		Run:         handlers.NewRunHandler(ctx, st, registry),
	}.Register(router.Group("/api/v1"), middleware.RateLimitMiddleware(limiter))

	// Start server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Server starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}

	// Runs stop after their in-flight request; wait so results are saved
	// before the database is closed.
	registry.Wait()
	log.Info("All runs finished")
}
