package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/hupe1980/fragmesh/core"
)

var _ core.ArtifactStore = (*FileStore)(nil)

// FileStore writes each artifact to <root>/<sessionID>/<artifactID>.
type FileStore struct {
	mu   sync.RWMutex
	root string
}

// NewFileStore returns a store rooted at dir. Directories are created on
// first save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

// Dir returns the directory holding the artifacts of sessionID.
func (s *FileStore) Dir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

// Save writes data, replacing an existing artifact.
func (s *FileStore) Save(sessionID, artifactID string, data []byte) error {
	if err := validate(sessionID, artifactID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.Dir(sessionID), 0o755); err != nil {
		return fmt.Errorf("artifact: create session dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir(sessionID), artifactID), data, 0o644); err != nil {
		return fmt.Errorf("artifact: write %s: %w", artifactID, err)
	}
	return nil
}

// Get reads an artifact or returns ErrNotFound.
func (s *FileStore) Get(sessionID, artifactID string) ([]byte, error) {
	if err := validate(sessionID, artifactID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(filepath.Join(s.Dir(sessionID), artifactID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// List returns the artifact ids of sessionID in lexical order.
func (s *FileStore) List(sessionID string) ([]string, error) {
	if err := ValidateID(sessionID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.Dir(sessionID))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// Delete removes an artifact or returns ErrNotFound.
func (s *FileStore) Delete(sessionID, artifactID string) error {
	if err := validate(sessionID, artifactID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(filepath.Join(s.Dir(sessionID), artifactID))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}
