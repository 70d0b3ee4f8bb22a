package recovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LocalArtifactStore writes failure screenshots under a base directory,
// one subdirectory per run.
type LocalArtifactStore struct {
	baseDir string
}

// NewLocalArtifactStore creates the store, making the base directory if
// needed.
func NewLocalArtifactStore(baseDir string) (*LocalArtifactStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &LocalArtifactStore{baseDir: baseDir}, nil
}

// SaveScreenshot implements ArtifactStore. Returns the saved file path.
func (s *LocalArtifactStore) SaveScreenshot(_ context.Context, runID string, png []byte) (string, error) {
	dir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	name := fmt.Sprintf("failure_%s.png", time.Now().UTC().Format("20060102T150405.000"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return path, nil
}
