package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Site.ChallengeTitle != "Just a moment..." {
		t.Errorf("Expected default challenge title, got %q", config.Site.ChallengeTitle)
	}
	if config.Download.Destination != "./dl" {
		t.Errorf("Expected default destination to be ./dl, got %s", config.Download.Destination)
	}
	if config.Download.Retry.MaxAttempts != 0 {
		t.Errorf("Expected unbounded retries by default, got %d", config.Download.Retry.MaxAttempts)
	}
	if config.Download.Retry.Delay != 10*time.Second {
		t.Errorf("Expected default retry delay to be 10s, got %v", config.Download.Retry.Delay)
	}
	if config.Download.MaxConcurrent != 0 {
		t.Errorf("Expected unbounded concurrency by default, got %d", config.Download.MaxConcurrent)
	}

	require.NoError(t, config.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PAGEGRAB_DEST", "/tmp/test-dl")
	t.Setenv("PAGEGRAB_HEADLESS", "false")
	t.Setenv("PAGEGRAB_MAX_CONCURRENT", "4")
	t.Setenv("PAGEGRAB_RETRY_MAX_ATTEMPTS", "7")
	t.Setenv("PAGEGRAB_RETRY_DELAY", "250ms")
	t.Setenv("PAGEGRAB_LOG_LEVEL", "debug")
	t.Setenv("PAGEGRAB_COOKIE_STORE", "encrypted")
	t.Setenv("PAGEGRAB_PASSPHRASE", "hunter2")

	config := DefaultConfig()
	require.NoError(t, config.LoadFromEnv())

	assert.Equal(t, "/tmp/test-dl", config.Download.Destination)
	assert.False(t, config.Browser.Headless)
	assert.Equal(t, 4, config.Download.MaxConcurrent)
	assert.Equal(t, 7, config.Download.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, config.Download.Retry.Delay)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "encrypted", config.Session.Store)
	assert.Equal(t, "hunter2", config.Session.Passphrase)
}

func TestLoadFromEnvInvalidValues(t *testing.T) {
	t.Setenv("PAGEGRAB_MAX_CONCURRENT", "many")
	t.Setenv("PAGEGRAB_RETRY_DELAY", "soon")

	err := DefaultConfig().LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAGEGRAB_MAX_CONCURRENT")
	assert.Contains(t, err.Error(), "PAGEGRAB_RETRY_DELAY")
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "pagegrab.yaml")

	configContent := `
site:
  challenge_title: "Checking your browser"
browser:
  headless: false
  scroll_passes: 5
download:
  destination: /tmp/grab
  max_concurrent: 2
  retry:
    max_attempts: 3
    delay: 2s
logging:
  level: warn
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	config := DefaultConfig()
	require.NoError(t, config.LoadFromFile(configPath))

	assert.Equal(t, "Checking your browser", config.Site.ChallengeTitle)
	assert.False(t, config.Browser.Headless)
	assert.Equal(t, 5, config.Browser.ScrollPasses)
	assert.Equal(t, "/tmp/grab", config.Download.Destination)
	assert.Equal(t, 2, config.Download.MaxConcurrent)
	assert.Equal(t, 3, config.Download.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, config.Download.Retry.Delay)
	assert.Equal(t, "warn", config.Logging.Level)

	// Untouched sections keep their defaults
	assert.Equal(t, ".jpg", config.Download.Extension)
	assert.Equal(t, "img", config.Site.ImageSelector)
}

func TestLoadFromFileMissing(t *testing.T) {
	err := DefaultConfig().LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"empty challenge title", func(c *Config) { c.Site.ChallengeTitle = "" }, "challenge title"},
		{"bad asset filter", func(c *Config) { c.Site.AssetFilter = "(" }, "asset filter"},
		{"asset pattern groups", func(c *Config) { c.Site.AssetPattern = `/upload-(\d+)\.jpg` }, "two capture groups"},
		{"bad domain pattern", func(c *Config) { c.Site.DomainPattern = "[" }, "domain pattern"},
		{"zero scroll passes", func(c *Config) { c.Browser.ScrollPasses = 0 }, "scroll passes"},
		{"unknown store", func(c *Config) { c.Session.Store = "cloud" }, "cookie store"},
		{"extension without dot", func(c *Config) { c.Download.Extension = "jpg" }, "extension"},
		{"negative concurrency", func(c *Config) { c.Download.MaxConcurrent = -1 }, "max concurrent"},
		{"negative retries", func(c *Config) { c.Download.Retry.MaxAttempts = -2 }, "retry max attempts"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "log level"},
		{"bad ui mode", func(c *Config) { c.UI.Mode = "fancy" }, "ui mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)
			err := config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	config := DefaultConfig()
	config.Download.Destination = ""
	config.Logging.Format = "xml"

	err := config.Validate()
	require.Error(t, err)
	lines := strings.Split(err.Error(), "\n")
	assert.Len(t, lines, 2)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	config := DefaultConfig()
	config.Download.Destination = "/srv/images"
	config.Download.Retry.MaxAttempts = 12
	config.Session.Passphrase = "secret"
	require.NoError(t, config.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, "/srv/images", loaded.Download.Destination)
	assert.Equal(t, 12, loaded.Download.Retry.MaxAttempts)
	assert.Equal(t, config.Site.AssetPattern, loaded.Site.AssetPattern)
}

func TestMergeCommandLineFlags(t *testing.T) {
	config := DefaultConfig()
	config.MergeCommandLineFlags(map[string]interface{}{
		"dest":           "/tmp/out",
		"headless":       false,
		"max-concurrent": 8,
		"max-retries":    5,
		"retry-delay":    3 * time.Second,
		"log-level":      "error",
		"ui":             "plain",
		"cookie-store":   "keyring",
		"notifications":  true,
	})

	assert.Equal(t, "/tmp/out", config.Download.Destination)
	assert.False(t, config.Browser.Headless)
	assert.Equal(t, 8, config.Download.MaxConcurrent)
	assert.Equal(t, 5, config.Download.Retry.MaxAttempts)
	assert.Equal(t, 3*time.Second, config.Download.Retry.Delay)
	assert.Equal(t, "error", config.Logging.Level)
	assert.Equal(t, "plain", config.UI.Mode)
	assert.Equal(t, "keyring", config.Session.Store)
	assert.True(t, config.UI.Notifications)
}

func TestMergeCommandLineFlagsIgnoresAbsentKeys(t *testing.T) {
	config := DefaultConfig()
	config.MergeCommandLineFlags(map[string]interface{}{"dest": ""})

	assert.Equal(t, DefaultConfig(), config)
}

func TestLoadPrecedence(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("download:\n  destination: /from/file\n  max_concurrent: 1\n"), 0644))

	t.Setenv("PAGEGRAB_MAX_CONCURRENT", "2")

	config, err := Load(configPath, map[string]interface{}{"dest": "/from/flag"})
	require.NoError(t, err)

	assert.Equal(t, "/from/flag", config.Download.Destination)
	assert.Equal(t, 2, config.Download.MaxConcurrent)
}

func TestLoadRejectsInvalid(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)

	_, err = Load("", map[string]interface{}{"ui": "fancy"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}
