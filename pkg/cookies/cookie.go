package cookies

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"pagegrab/pkg/config"
	errs "pagegrab/pkg/errors"
)

// Cookie is one browser cookie in the form it is persisted
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"` // unix seconds, <= 0 for session cookies
	HTTPOnly bool    `json:"http_only"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"same_site,omitempty"`
}

func (c Cookie) key() string {
	return c.Name + "\x00" + c.Domain + "\x00" + c.Path
}

// Set is an unordered cookie collection
type Set []Cookie

// Equal reports whether both sets hold the same cookies regardless of order
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	a, b := s.sorted(), other.sorted()
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s Set) sorted() Set {
	out := make(Set, len(s))
	copy(out, s)
	sort.Slice(out, func(i, j int) bool { return out[i].key() < out[j].key() })
	return out
}

// Names returns the cookie names in a stable order
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for _, c := range s.sorted() {
		names = append(names, c.Name)
	}
	return names
}

// ToHTTP converts the set for use with net/http and cookiejar
func (s Set) ToHTTP() []*http.Cookie {
	out := make([]*http.Cookie, 0, len(s))
	for _, c := range s {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   strings.TrimPrefix(c.Domain, "."),
			Path:     c.Path,
			HttpOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			sec := int64(c.Expires)
			hc.Expires = time.Unix(sec, int64((c.Expires-float64(sec))*1e9))
		}
		switch strings.ToLower(c.SameSite) {
		case "strict":
			hc.SameSite = http.SameSiteStrictMode
		case "lax":
			hc.SameSite = http.SameSiteLaxMode
		case "none":
			hc.SameSite = http.SameSiteNoneMode
		}
		out = append(out, hc)
	}
	return out
}

// Masked returns a copy with values shortened for display
func (s Set) Masked() Set {
	out := make(Set, len(s))
	for i, c := range s {
		c.Value = maskString(c.Value)
		out[i] = c
	}
	return out
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Store persists a cookie set. A store with nothing saved loads an empty set.
// Failures are returned as cookie_io errors.
type Store interface {
	Load() (Set, error)
	Save(Set) error
	Clear() error
	// Describe names the backing location for operator messages
	Describe() string
}

// NewStore builds the store selected by cfg. host scopes keyring entries.
func NewStore(cfg config.SessionConfig, host string) (Store, error) {
	switch strings.ToLower(cfg.Store) {
	case "", "file":
		return NewFileStore(cfg.CookieFile), nil
	case "encrypted":
		return NewEncryptedFileStore(cfg.CookieFile+".enc", cfg.Passphrase)
	case "keyring":
		return NewKeyringStore(host), nil
	default:
		return nil, fmt.Errorf("unknown cookie store %q", cfg.Store)
	}
}

func ioError(op string, err error) error {
	return errs.New(errs.KindCookieIO, op, err)
}

// configDir returns the per-user configuration directory, creating it
func configDir() (string, error) {
	var dir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, "Library", "Application Support", "pagegrab")
	case "windows":
		dir = filepath.Join(os.Getenv("APPDATA"), "pagegrab")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			dir = filepath.Join(xdgConfig, "pagegrab")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dir = filepath.Join(home, ".config", "pagegrab")
		}
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}
