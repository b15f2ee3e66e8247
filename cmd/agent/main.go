package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collection-runner/internal/config"
	"collection-runner/internal/middleware"
	"collection-runner/internal/transport"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	DefaultPort     = "5555"
	AgentVersion    = "1.0.0"
	ShutdownTimeout = 5 * time.Second
)

var (
	agentPort      string
	agentInstall   bool
	agentUninstall bool
)

var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "Local agent that sends requests from this machine",
	Long: `The agent listens on 127.0.0.1 and executes requests on behalf of a
collection-runner server started with AGENT_URL=http://127.0.0.1:<port>.
This lets a hosted server reach APIs that are only visible locally.`,
	SilenceUsage: true,
	RunE:         agentCommand,
}

func init() {
	rootCmd.Flags().StringVar(&agentPort, "port", DefaultPort, "Port to run the agent on")
	rootCmd.Flags().BoolVar(&agentInstall, "install", false, "Install agent to start on login")
	rootCmd.Flags().BoolVar(&agentUninstall, "uninstall", false, "Remove agent from auto-start")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func agentCommand(cmd *cobra.Command, args []string) error {
	// Handle installation flags
	if agentInstall {
		return installAgent(cmd.OutOrStdout(), agentPort)
	}
	if agentUninstall {
		return uninstallAgent(cmd.OutOrStdout())
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.SetupLogging(); err != nil {
		return err
	}

	// Set Gin to release mode for production
	gin.SetMode(gin.ReleaseMode)

	addr := "127.0.0.1:" + agentPort
	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(transport.NewHTTPFromConfig(cfg)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Infof("Agent v%s starting on http://%s", AgentVersion, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start agent: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down agent")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(tr transport.Transport) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:   []string{"Content-Length"},
		MaxAge:          12 * time.Hour,
	}))
	router.Use(middleware.Logger())

	router.GET("/health", healthHandler)
	router.POST("/execute", executeHandler(tr))
	return router
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": AgentVersion,
	})
}
