package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Archiver pushes finished consolidated outputs into object storage so that
// downstream consumers (BI, buying teams) can pull them without access to the
// engine host. Keys are laid out as <prefix>/<period>/<filename>.
type Archiver struct {
	store     ObjectStorage
	keyPrefix string
}

func NewArchiver(store ObjectStorage, keyPrefix string) *Archiver {
	return &Archiver{
		store:     store,
		keyPrefix: strings.Trim(keyPrefix, "/"),
	}
}

// ArchiveFile uploads one local file under the period's key space and returns
// the object key it was stored at.
func (a *Archiver) ArchiveFile(ctx context.Context, periodLabel, localPath string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("failed reading %s for archival: %w", localPath, err)
	}

	key := a.objectKey(periodLabel, filepath.Base(localPath))
	if err := a.store.UploadObject(ctx, key, data); err != nil {
		return "", err
	}

	log.Info().
		Str("period", periodLabel).
		Str("key", key).
		Int("bytes", len(data)).
		Msg("consolidated output archived")
	return key, nil
}

// ListPeriod returns the archived objects for one period.
func (a *Archiver) ListPeriod(ctx context.Context, periodLabel string) ([]ObjectInfo, error) {
	return a.store.ListObjects(ctx, a.objectKey(periodLabel, ""))
}

func (a *Archiver) objectKey(periodLabel, filename string) string {
	if a.keyPrefix == "" {
		return path.Join(periodLabel, filename)
	}
	return path.Join(a.keyPrefix, periodLabel, filename)
}
