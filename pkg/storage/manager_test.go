package storage

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerSave(t *testing.T) {
	root := filepath.Join(t.TempDir(), "dl")

	manager, err := NewManager(root, ".jpg")
	require.NoError(t, err)
	assert.Equal(t, 0, manager.Count())
	assert.False(t, manager.Exists("foo", "12"))

	path, err := manager.Save("foo", "12", bytes.NewReader([]byte("test image data")))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "foo", "12.jpg"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "test image data", string(content))

	assert.True(t, manager.Exists("foo", "12"))
	assert.Equal(t, 1, manager.Count())

	entries, err := os.ReadDir(filepath.Join(root, "foo"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestManagerSaveReplacesExisting(t *testing.T) {
	manager, err := NewManager(t.TempDir(), "")
	require.NoError(t, err)

	_, err = manager.Save("a", "1", bytes.NewReader([]byte("old")))
	require.NoError(t, err)
	path, err := manager.Save("a", "1", bytes.NewReader([]byte("new")))
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(content))
	assert.Equal(t, 1, manager.Count())
}

func TestManagerExistsSeesPriorFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "manual"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "manual", "456.jpg"), []byte("x"), 0644))

	manager, err := NewManager(root, ".jpg")
	require.NoError(t, err)
	assert.True(t, manager.Exists("manual", "456"))
	assert.Equal(t, 0, manager.Count())
}

func TestManagerFailedWriteLeavesNothing(t *testing.T) {
	root := t.TempDir()
	manager, err := NewManager(root, ".jpg")
	require.NoError(t, err)

	r := io.MultiReader(bytes.NewReader([]byte("partial")), errReader{})
	_, err = manager.Save("foo", "1", r)
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "foo"))
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.False(t, manager.Exists("foo", "1"))
}

func TestManagerRejectsTraversal(t *testing.T) {
	manager, err := NewManager(t.TempDir(), ".jpg")
	require.NoError(t, err)

	for _, tc := range []struct{ folder, name string }{
		{"..", "1"},
		{"a/../../b", "1"},
		{"foo", "../1"},
		{"", "1"},
		{"foo", ""},
		{`a\b`, "1"},
	} {
		_, err := manager.Save(tc.folder, tc.name, bytes.NewReader(nil))
		assert.Error(t, err, "%q/%q", tc.folder, tc.name)
	}
}

func TestManagerConcurrentSaves(t *testing.T) {
	manager, err := NewManager(t.TempDir(), ".jpg")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := manager.Save("same", "1", bytes.NewReader(bytes.Repeat([]byte{byte('a' + i%26)}, 4096)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	path, _ := manager.Path("same", "1")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, content, 4096)
	assert.Equal(t, bytes.Repeat(content[:1], 4096), content, "file is one complete write")
}

type errReader struct{}

func (errReader) Read(p []byte) (int, error) { return 0, errors.New("stream broken") }
