package cookies

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps cookies as indented JSON at a fixed path
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the cookie file. A missing file is an empty set.
func (f *FileStore) Load() (Set, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	content, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Set{}, nil
		}
		return nil, ioError("load", err)
	}

	var set Set
	if err := json.Unmarshal(content, &set); err != nil {
		return nil, ioError("load", fmt.Errorf("failed to parse %s: %w", f.path, err))
	}
	if set == nil {
		set = Set{}
	}
	return set, nil
}

// Save replaces the cookie file wholesale
func (f *FileStore) Save(set Set) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if set == nil {
		set = Set{}
	}
	content, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return ioError("save", err)
	}
	if err := writeFileAtomic(f.path, content); err != nil {
		return ioError("save", err)
	}
	return nil
}

// Clear removes the cookie file
func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ioError("clear", err)
	}
	return nil
}

// Describe returns the file path
func (f *FileStore) Describe() string {
	return f.path
}

// writeFileAtomic writes through a temp file in the same directory
func writeFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}
