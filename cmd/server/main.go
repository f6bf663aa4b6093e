package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/medox/temp-media/pkg/tempmedia"
	"github.com/medox/temp-media/pkg/tempmedia/api"
	"github.com/medox/temp-media/pkg/tempmedia/config"
)

func main() {
	serverConfig, err := config.Load(config.WithEnv(""))
	if err != nil {
		slog.Error("Failed to load server configuration", "err", err)
		os.Exit(1)
	}

	repo, err := serverConfig.BuildRepository()
	if err != nil {
		slog.Error("Failed to build repository", "err", err)
		os.Exit(1)
	}

	store, err := serverConfig.BuildStorageBackend()
	if err != nil {
		slog.Error("Failed to build storage backend", "err", err)
		os.Exit(1)
	}

	options := []tempmedia.Option{
		tempmedia.WithRepository(repo),
		tempmedia.WithBlobStore(store),
		tempmedia.WithDefaultTTLHours(serverConfig.DefaultTTLHours),
		tempmedia.WithMaxFileSize(serverConfig.MaxFileSize),
		tempmedia.WithAllowedMimeTypes(serverConfig.AllowedMimeTypes),
		tempmedia.WithConversions(serverConfig.GenerateConversions),
	}
	if serverConfig.DispatchEvents {
		options = append(options, tempmedia.WithEventSink(tempmedia.NewLoggingEventSink(nil)))
	}

	lifecycle, err := tempmedia.New(options...)
	if err != nil {
		slog.Error("Failed to build lifecycle service", "err", err)
		os.Exit(1)
	}

	transfers, err := serverConfig.BuildTransferService(lifecycle, repo, store)
	if err != nil {
		slog.Error("Failed to build transfer service", "err", err)
		os.Exit(1)
	}

	server := NewHTTPServer(lifecycle, transfers, serverConfig)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverConfig.Port),
		Handler: server.Routes(),
	}

	// Background sweeper, stopped on shutdown.
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	if serverConfig.EnableAutoCleanup {
		sweeper, err := serverConfig.BuildSweeper(lifecycle, transfers, repo)
		if err != nil {
			slog.Error("Failed to build sweeper", "err", err)
			os.Exit(1)
		}
		go sweeper.Run(sweepCtx, serverConfig.CleanupInterval)
	}

	go func() {
		slog.Info("Temp media server starting",
			"port", serverConfig.Port,
			"env", serverConfig.Environment,
			"database", serverConfig.DatabaseType,
			"storage", serverConfig.StorageBackend.Type)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")
	stopSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "err", err)
		os.Exit(1)
	}

	slog.Info("Server exiting")
}

// HTTPServer wraps the temp media services for HTTP access
type HTTPServer struct {
	lifecycle tempmedia.Service
	transfers tempmedia.TransferService
	config    *config.ServerConfig
}

// NewHTTPServer creates a new HTTP server wrapper
func NewHTTPServer(lifecycle tempmedia.Service, transfers tempmedia.TransferService, serverConfig *config.ServerConfig) *HTTPServer {
	return &HTTPServer{
		lifecycle: lifecycle,
		transfers: transfers,
		config:    serverConfig,
	}
}

// Routes sets up the HTTP routes
func (s *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS for development
	if s.config.Environment == "development" {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

				if r.Method == "OPTIONS" {
					w.WriteHeader(http.StatusOK)
					return
				}

				next.ServeHTTP(w, r)
			})
		})
	}

	r.Get("/health", s.handleHealth)

	handler := api.NewHandler(s.lifecycle, s.transfers,
		api.WithThrottle(s.config.RateLimitRequests),
		api.WithSessionValidation(s.config.ValidateSession))
	r.Mount("/api/v1/temp-media", handler.Routes())

	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"status":      "ok",
		"environment": s.config.Environment,
		"time":        time.Now().UTC().Format(time.RFC3339),
	})
}
