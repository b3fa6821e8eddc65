package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Manager writes assets under a destination root as {root}/{folder}/{name}{ext}
type Manager struct {
	root  string
	ext   string
	saved map[string]bool
	mu    sync.RWMutex
}

// NewManager creates a manager rooted at root, creating it if needed
func NewManager(root, ext string) (*Manager, error) {
	if ext == "" {
		ext = ".jpg"
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Manager{
		root:  root,
		ext:   ext,
		saved: make(map[string]bool),
	}, nil
}

// validComponent rejects names that would escape their directory
func validComponent(s string) error {
	switch {
	case s == "", s == ".", s == "..":
		return fmt.Errorf("invalid path component %q", s)
	case strings.ContainsAny(s, `/\`), strings.ContainsRune(s, 0):
		return fmt.Errorf("path component %q contains a separator", s)
	}
	return nil
}

// Path returns the destination of folder/name
func (m *Manager) Path(folder, name string) (string, error) {
	if err := validComponent(folder); err != nil {
		return "", err
	}
	if err := validComponent(name); err != nil {
		return "", err
	}
	return filepath.Join(m.root, folder, name+m.ext), nil
}

// Exists reports whether folder/name is already on disk
func (m *Manager) Exists(folder, name string) bool {
	path, err := m.Path(folder, name)
	if err != nil {
		return false
	}

	m.mu.RLock()
	ok := m.saved[path]
	m.mu.RUnlock()
	if ok {
		return true
	}

	_, err = os.Stat(path)
	return err == nil
}

// Save streams r to folder/name. The data goes to a temporary file in the
// destination directory first and is renamed into place, so readers only
// ever see complete files. An existing file is replaced.
func (m *Manager) Save(folder, name string, r io.Reader) (string, error) {
	path, err := m.Path(folder, name)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create folder: %w", err)
	}

	out, err := os.CreateTemp(dir, "."+name+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempFile := out.Name()

	_, err = io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to write asset data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to close file: %w", closeErr)
	}

	// CreateTemp uses 0600
	if err := os.Chmod(tempFile, 0644); err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to set file mode: %w", err)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.mu.Lock()
	m.saved[path] = true
	m.mu.Unlock()

	return path, nil
}

// Root returns the destination root
func (m *Manager) Root() string {
	return m.root
}

// Count returns the number of files saved by this manager
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.saved)
}
