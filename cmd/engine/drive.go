package main

import (
	"fmt"
	"os"

	"github.com/fastfish/assortment-engine/internal/config"
	"github.com/fastfish/assortment-engine/internal/drive"
)

// driveCredentials resolves the service account JSON either from the
// configured credentials file or the GOOGLE_DRIVE_CREDENTIALS_JSON variable.
func driveCredentials(cfg *config.Config) (string, error) {
	if cfg.Drive.CredentialsFile != "" {
		data, err := os.ReadFile(cfg.Drive.CredentialsFile)
		if err != nil {
			return "", fmt.Errorf("failed to read Drive credentials file: %w", err)
		}
		return string(data), nil
	}
	if creds := os.Getenv("GOOGLE_DRIVE_CREDENTIALS_JSON"); creds != "" {
		return creds, nil
	}
	return "", fmt.Errorf("drive credentials are required (DRIVE_CREDENTIALS_FILE or GOOGLE_DRIVE_CREDENTIALS_JSON)")
}

func newIngestService(cfg *config.Config) (*drive.IngestService, error) {
	creds, err := driveCredentials(cfg)
	if err != nil {
		return nil, err
	}

	driveService, err := drive.NewService(creds)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Drive service: %w", err)
	}

	downloader := drive.NewDownloader(driveService)
	return drive.NewIngestService(downloader, cfg.Engine.InputDir), nil
}
