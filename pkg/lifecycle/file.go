package lifecycle

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStorage is a Storage persisted as a JSON object in a single file. The
// file is rewritten on every change so state survives between runs of a
// command-line client.
type FileStorage struct {
	path string

	mu sync.Mutex
	m  map[string]string
}

// OpenFileStorage loads the file at path. A missing file yields an empty
// store; the file and its directory are created on the first write.
func OpenFileStorage(path string) (*FileStorage, error) {
	s := &FileStorage{path: path, m: make(map[string]string)}
	data, err := os.ReadFile(path) // #nosec G304 -- path is chosen by the operator
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file %s: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.m); err != nil {
		return nil, fmt.Errorf("parsing state file %s: %w", path, err)
	}
	if s.m == nil {
		s.m = make(map[string]string)
	}
	return s, nil
}

// Path returns the backing file path.
func (s *FileStorage) Path() string {
	return s.path
}

// Get returns the value for key.
func (s *FileStorage) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

// Set stores value under key and saves the file.
func (s *FileStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.m[key]; ok && cur == value {
		return nil
	}
	s.m[key] = value
	return s.save()
}

// Remove deletes keys and saves the file if anything changed.
func (s *FileStorage) Remove(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for _, k := range keys {
		if _, ok := s.m[k]; ok {
			delete(s.m, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.save()
}

func (s *FileStorage) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	data, err := json.MarshalIndent(s.m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}

var _ Storage = (*FileStorage)(nil)
