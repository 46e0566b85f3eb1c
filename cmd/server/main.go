package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Xena75/Gestione-Partesa-sub007/internal/config"
	"github.com/Xena75/Gestione-Partesa-sub007/internal/db"
	"github.com/Xena75/Gestione-Partesa-sub007/internal/importer"
	"github.com/Xena75/Gestione-Partesa-sub007/internal/mapping"
	"github.com/Xena75/Gestione-Partesa-sub007/internal/middleware"
	"github.com/Xena75/Gestione-Partesa-sub007/internal/progress"
	"github.com/Xena75/Gestione-Partesa-sub007/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	conn, err := db.NewConnection(ctx, cfg.DB)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	if err := db.RunMigrations(cfg.DB, "./migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Repositories
	mappingRepo := repository.NewMappingRepository(conn.Pool)
	deliveryRepo := repository.NewDeliveryRepository(conn.Pool)
	jobRepo := repository.NewImportJobRepository(conn.Pool)
	logRepo := repository.NewImportLogRepository(conn.Pool)
	lookup := repository.NewReferenceRepository(conn.Pool)
	tracker := repository.NewProgressTracker(conn.Pool, cfg.Retention)

	// Pipeline service and HTTP handlers
	importService := importer.NewService(mappingRepo, deliveryRepo, jobRepo, logRepo, lookup, tracker, cfg.BatchSize)
	importHandler := importer.NewHTTPHandler(importService, jobRepo, logRepo)
	mappingHandler := mapping.NewHTTPHandler(mappingRepo)
	progressHandler := progress.NewHTTPHandler(tracker)

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		importHandler.Routes(r)
		mappingHandler.Routes(r)
		progressHandler.Routes(r)
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      middleware.LoggingMiddleware(corsHandler.Handler(router)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting import API on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
