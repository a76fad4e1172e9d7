package drive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// IngestService pulls period snapshot files from a shared Drive folder into
// the engine's input directory. Merchandising uploads one folder per period
// holding the observation, cluster and climate exports, as CSV or XLSX.
type IngestService struct {
	downloader *Downloader
	inputDir   string
}

func NewIngestService(downloader *Downloader, inputDir string) *IngestService {
	return &IngestService{
		downloader: downloader,
		inputDir:   inputDir,
	}
}

// knownInputPrefixes are the filenames the engine consumes. Anything else
// in the folder is downloaded but flagged, since a typo in an upload name
// silently starves a rule of input.
var knownInputPrefixes = []string{
	"observations_",
	"clusters_",
	"climate_",
	"manual_minimums",
}

// IngestFolder downloads every CSV/XLSX in the folder into the input
// directory (converting workbooks to CSV) and returns the local paths.
func (s *IngestService) IngestFolder(ctx context.Context, folderID string) ([]string, error) {
	staging := filepath.Join(s.inputDir, ".staging")
	paths, err := s.downloader.DownloadFolderCSV(ctx, DownloadOptions{
		FolderID:    folderID,
		DownloadDir: staging,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download folder %s: %w", folderID, err)
	}

	var ingested []string
	for _, p := range paths {
		name := filepath.Base(p)
		if !isKnownInputFile(name) {
			log.Warn().Str("file", name).Msg("downloaded file does not match any engine input pattern")
		}

		dest := filepath.Join(s.inputDir, name)
		if err := os.Rename(p, dest); err != nil {
			return nil, fmt.Errorf("failed to move %s into input dir: %w", name, err)
		}
		ingested = append(ingested, dest)
	}

	if err := os.RemoveAll(staging); err != nil {
		log.Warn().Err(err).Msg("failed to clean staging dir")
	}

	log.Info().Int("files", len(ingested)).Str("folder", folderID).Msg("drive folder ingested")
	return ingested, nil
}

func isKnownInputFile(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range knownInputPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
