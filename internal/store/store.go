// Package store spools finished capture artifacts to the local filesystem.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/murmurhq/murmur-capture/internal/artifact"
	"github.com/murmurhq/murmur-capture/internal/types"
	"github.com/murmurhq/murmur-capture/internal/util"
)

// maxSaveAttempts bounds the collision suffix search.
const maxSaveAttempts = 100

// DiskStore writes artifacts into a single spool directory.
type DiskStore struct {
	path string
	mu   sync.Mutex
}

// NewDiskStore creates the spool directory if needed and returns a store
// writing into it.
func NewDiskStore(path string) (*DiskStore, error) {
	if path == "" {
		return nil, errors.New("spool path is required")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, util.WrapError("create spool directory", err)
	}
	return &DiskStore{path: path}, nil
}

// Path returns the spool directory.
func (s *DiskStore) Path() string { return s.path }

// Save writes the artifact under its suggested name and returns the stored
// path. Name collisions get a numeric suffix before the extension rather
// than overwriting an earlier artifact.
func (s *DiskStore) Save(ctx context.Context, art *artifact.Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(art.Bytes) == 0 {
		return "", errors.New("artifact is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ext := filepath.Ext(art.SuggestedName)
	base := strings.TrimSuffix(art.SuggestedName, ext)

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		name := art.SuggestedName
		if attempt > 0 {
			name = fmt.Sprintf("%s-%d%s", base, attempt, ext)
		}
		path := filepath.Join(s.path, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", util.WrapError("create artifact file", err)
		}

		_, writeErr := f.Write(art.Bytes)
		closeErr := f.Close()
		if writeErr == nil {
			writeErr = closeErr
		}
		if writeErr != nil {
			os.Remove(path)
			return "", util.WrapError("write artifact file", writeErr)
		}
		return path, nil
	}
	return "", fmt.Errorf("no free artifact name for %s after %d attempts", art.SuggestedName, maxSaveAttempts)
}

// Stats reports how many artifacts the spool holds and their total size.
func (s *DiskStore) Stats() types.StoreStatus {
	status := types.StoreStatus{Path: s.path}

	entries, err := os.ReadDir(s.path)
	if err != nil {
		return status
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		status.FileCount++
		status.TotalBytes += info.Size()
	}
	return status
}
