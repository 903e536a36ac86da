// Package filestore keeps uploaded documents on local disk under
// uuid-derived names, so original filenames never touch the filesystem.
package filestore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store writes uploads into a single directory.
type Store struct {
	dir string
}

// New creates the upload directory if needed and returns a store over it.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes data under a fresh uuid name, keeping the original extension,
// and returns the storage path.
func (s *Store) Save(filename string, data []byte) (string, error) {
	name := uuid.NewString() + filepath.Ext(filename)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing upload: %w", err)
	}
	return path, nil
}

// Get reads a stored file back.
func (s *Store) Get(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	return data, nil
}

// Delete removes a stored file. Missing files are not an error.
func (s *Store) Delete(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting upload: %w", err)
	}
	return nil
}
