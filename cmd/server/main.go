package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rpattn/opsreport/internal/auth"
	"github.com/rpattn/opsreport/internal/config"
	"github.com/rpattn/opsreport/internal/db"
	"github.com/rpattn/opsreport/internal/export"
	"github.com/rpattn/opsreport/internal/ingestion"
	"github.com/rpattn/opsreport/internal/middleware"
	"github.com/rpattn/opsreport/internal/reports"
	"github.com/rpattn/opsreport/internal/repository"

	"github.com/rs/cors"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Run migrations
	if err := db.RunMigrations(cfg.Database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	// Create repositories
	uploadRepo := repository.NewUploadRepository(conn.Pool)
	recordRepo := repository.NewRecordRepository(conn.Pool)
	projectionRepo := repository.NewProjectionRepository(conn.Pool)
	userRepo := repository.NewUserRepository(conn.Pool)
	ingestionLogRepo := repository.NewIngestionLogRepository(conn.Pool)

	// Create services
	ingestionService := ingestion.NewService(uploadRepo, userRepo, ingestionLogRepo)
	reportService := reports.NewService(uploadRepo, recordRepo, projectionRepo, ingestionLogRepo)
	exportService := export.NewService(uploadRepo, recordRepo, projectionRepo)

	mux := http.NewServeMux()
	mux.Handle("POST /upload-excel", ingestion.NewHTTPHandler(ingestionService, cfg.Upload.MaxBytes))
	mux.Handle("GET /uploads/{id}/export", export.NewHTTPHandler(exportService))
	reports.NewHTTPHandler(reportService).Register(mux)

	requireUser := middleware.RequireUser(auth.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer))
	api := requireUser(middleware.DataLoaderMiddleware(projectionRepo)(mux))

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, pingCancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer pingCancel()
		status, body := http.StatusOK, map[string]string{"status": "ok"}
		if err := conn.Ping(pingCtx); err != nil {
			status, body = http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})
	root.Handle("/", api)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      corsHandler.Handler(middleware.LoggingMiddleware(root)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting report server on %s", cfg.Server.Addr)
		log.Printf("Upload endpoint available at POST %s/upload-excel", cfg.Server.Addr)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
