package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/fastfish/assortment-engine/internal/config"
	"github.com/fastfish/assortment-engine/internal/drive"
	"github.com/fastfish/assortment-engine/pkg/logger"
)

func main() {
	// Load environment variables from .env file if it exists
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()
	logger.SetLevel(cfg.Server.Mode)

	// Initialize Google Drive service
	creds := os.Getenv("GOOGLE_DRIVE_CREDENTIALS_JSON")
	if creds == "" && cfg.Drive.CredentialsFile != "" {
		data, err := os.ReadFile(cfg.Drive.CredentialsFile)
		if err != nil {
			log.Fatalf("Failed to read Drive credentials file: %v", err)
		}
		creds = string(data)
	}
	driveService, err := drive.NewService(creds)
	if err != nil {
		log.Fatalf("Failed to initialize Google Drive service: %v", err)
	}

	// Initialize Services
	downloader := drive.NewDownloader(driveService)
	ingestService := drive.NewIngestService(downloader, cfg.Engine.InputDir)

	// Register routes
	r := mux.NewRouter()
	driveHandler := drive.NewHandler(driveService, ingestService)
	driveHandler.RegisterRoutes(r)

	// Health check endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// Poll the configured folder so period uploads land without a manual call
	if cfg.Drive.Enabled && cfg.Drive.FolderID != "" && cfg.Drive.PollSeconds > 0 {
		go pollFolder(ingestService, cfg.Drive.FolderID, time.Duration(cfg.Drive.PollSeconds)*time.Second)
	}

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Printf("Ingest server starting on %s\n", addr)
	log.Fatal(http.ListenAndServe(addr, r))
}

func pollFolder(ingestService *drive.IngestService, folderID string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		if _, err := ingestService.IngestFolder(ctx, folderID); err != nil {
			logger.Log.Warn().Err(err).Str("folder", folderID).Msg("scheduled ingest failed")
		}
		cancel()
	}
}
