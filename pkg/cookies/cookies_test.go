package cookies

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"pagegrab/pkg/config"
	errs "pagegrab/pkg/errors"
)

func sampleSet() Set {
	return Set{
		{Name: "cf_clearance", Value: "abcdef0123456789", Domain: ".site.example", Path: "/", Expires: 1893456000.5, HTTPOnly: true, Secure: true, SameSite: "None"},
		{Name: "session", Value: "s1", Domain: "site.example", Path: "/", Expires: -1},
	}
}

func TestStoresRoundTrip(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()

	encrypted, err := NewEncryptedFileStore(filepath.Join(dir, "cookies.json.enc"), "correct horse")
	require.NoError(t, err)

	stores := map[string]Store{
		"file":      NewFileStore(filepath.Join(dir, "cookies.json")),
		"encrypted": encrypted,
		"keyring":   NewKeyringStore("site.example"),
		"memory":    NewMemoryStore(nil),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(sampleSet()))

			loaded, err := store.Load()
			require.NoError(t, err)
			assert.True(t, sampleSet().Equal(loaded), "loaded %v", loaded)

			require.NoError(t, store.Clear())
			empty, err := store.Load()
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestFileStoreMissingIsEmpty(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "none.json"))

	set, err := store.Load()
	require.NoError(t, err)
	assert.NotNil(t, set)
	assert.Empty(t, set)
	assert.NoError(t, store.Clear())
}

func TestFileStoreCorruptIsCookieIO(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFileStore(path).Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrCookieIO)
	assert.False(t, errs.IsFatal(err))
}

func TestFileStoreSaveReplacesWholesale(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "cookies.json"))
	require.NoError(t, store.Save(sampleSet()))
	require.NoError(t, store.Save(Set{{Name: "only", Value: "v", Domain: "site.example", Path: "/"}}))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, loaded.Names())
}

func TestEncryptedStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.enc")
	a, err := NewEncryptedFileStore(path, "one")
	require.NoError(t, err)
	require.NoError(t, a.Save(sampleSet()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "cf_clearance")

	b, err := NewEncryptedFileStore(path, "two")
	require.NoError(t, err)
	_, err = b.Load()
	assert.ErrorIs(t, err, errs.ErrCookieIO)
}

func TestMemoryStoreErrorInjection(t *testing.T) {
	store := NewMemoryStore(sampleSet())
	store.LoadError = errors.New("disk gone")

	_, err := store.Load()
	assert.ErrorIs(t, err, errs.ErrCookieIO)
	assert.Equal(t, 0, store.Saves())
}

func TestSetEqualIgnoresOrder(t *testing.T) {
	a := sampleSet()
	b := Set{a[1], a[0]}
	assert.True(t, a.Equal(b))

	b[0].Value = "changed"
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(a[:1]))
}

func TestToHTTP(t *testing.T) {
	hc := sampleSet().ToHTTP()
	require.Len(t, hc, 2)

	assert.Equal(t, "site.example", hc[0].Domain)
	assert.Equal(t, http.SameSiteNoneMode, hc[0].SameSite)
	assert.Equal(t, int64(1893456000), hc[0].Expires.Unix())
	assert.True(t, hc[1].Expires.IsZero())
}

func TestMasked(t *testing.T) {
	masked := sampleSet().Masked()
	assert.Equal(t, "abcd...6789", masked[0].Value)
	assert.Equal(t, "********", masked[1].Value)
}

func TestNewStore(t *testing.T) {
	dir := t.TempDir()
	cfg := config.SessionConfig{Store: "file", CookieFile: filepath.Join(dir, "cookies.json")}

	store, err := NewStore(cfg, "site.example")
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	cfg.Store = "encrypted"
	cfg.Passphrase = "p"
	store, err = NewStore(cfg, "site.example")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cookies.json.enc")+" (encrypted)", store.Describe())

	cfg.Store = "keyring"
	store, err = NewStore(cfg, "site.example")
	require.NoError(t, err)
	assert.IsType(t, &KeyringStore{}, store)

	cfg.Store = "cloud"
	_, err = NewStore(cfg, "site.example")
	assert.Error(t, err)
}
