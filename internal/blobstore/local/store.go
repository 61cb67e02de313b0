// Package local implements blobstore.Store over the local filesystem.
package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chatcore/server/internal/chaterr"
)

// Store saves attachment bytes under a root directory, keyed by a
// collision-resistant generated file name rather than the caller-supplied
// one (which is only used for its extension).
type Store struct {
	root string
}

// New constructs a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, chaterr.Storage("failed to create storage directory", err)
	}
	return &Store{root: dir}, nil
}

// Save writes data to a new file under the store's root and returns its
// location (a path relative to the root).
func (s *Store) Save(ctx context.Context, name, contentType string, data []byte) (string, error) {
	ext := filepath.Ext(name)
	day := time.Now().UTC().Format("2006/01/02")
	location := filepath.Join(day, uuid.NewString()+ext)

	fullPath := filepath.Join(s.root, location)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", chaterr.Storage("failed to create attachment directory", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", chaterr.Storage("failed to write attachment", err)
	}
	return location, nil
}

// Fetch reads back the bytes written under location.
func (s *Store) Fetch(ctx context.Context, location string) ([]byte, error) {
	data, err := os.ReadFile(s.resolve(location))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, chaterr.NotFound("attachment not found")
		}
		return nil, chaterr.Storage("failed to read attachment", err)
	}
	return data, nil
}

// Delete removes the file at location.
func (s *Store) Delete(ctx context.Context, location string) error {
	if err := os.Remove(s.resolve(location)); err != nil && !os.IsNotExist(err) {
		return chaterr.Storage("failed to delete attachment", err)
	}
	return nil
}

// resolve guards against a location escaping the store's root via ".." path
// segments.
func (s *Store) resolve(location string) string {
	cleaned := filepath.Clean("/" + strings.ReplaceAll(location, "\\", "/"))
	return filepath.Join(s.root, cleaned)
}
