package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable read by LoadFromEnv
const EnvPrefix = "PAGEGRAB_"

// Config holds all configuration options for a grab run
type Config struct {
	// Target site shape: challenge sentinel, asset URL patterns
	Site SiteConfig `yaml:"site" json:"site"`

	// Browser engine and navigation timeouts
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Cookie persistence
	Session SessionConfig `yaml:"session" json:"session"`

	// Download orchestration
	Download DownloadConfig `yaml:"download" json:"download"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Operator-facing output
	UI UIConfig `yaml:"ui" json:"ui"`
}

// SiteConfig describes how the target site exposes its challenge and assets.
// An empty DomainPattern is derived from the target host.
type SiteConfig struct {
	ChallengeTitle string `yaml:"challenge_title" json:"challenge_title"`
	DomainPattern  string `yaml:"domain_pattern" json:"domain_pattern"`
	AssetFilter    string `yaml:"asset_filter" json:"asset_filter"`
	AssetPattern   string `yaml:"asset_pattern" json:"asset_pattern"`
	ImageSelector  string `yaml:"image_selector" json:"image_selector"`
}

// BrowserConfig holds browser engine configuration
type BrowserConfig struct {
	Bin                  string        `yaml:"bin" json:"bin"`
	Headless             bool          `yaml:"headless" json:"headless"`
	UserAgent            string        `yaml:"user_agent" json:"user_agent"`
	NavigationTimeout    time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	ChallengeTimeout     time.Duration `yaml:"challenge_timeout" json:"challenge_timeout"`
	ChallengeMaxAttempts int           `yaml:"challenge_max_attempts" json:"challenge_max_attempts"`
	IdleSettle           time.Duration `yaml:"idle_settle" json:"idle_settle"`
	IdleTimeout          time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	ScrollPasses         int           `yaml:"scroll_passes" json:"scroll_passes"`
}

// SessionConfig holds cookie persistence configuration
type SessionConfig struct {
	Store      string `yaml:"store" json:"store"`
	CookieFile string `yaml:"cookie_file" json:"cookie_file"`
	Passphrase string `yaml:"-" json:"-"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Destination       string        `yaml:"destination" json:"destination"`
	Extension         string        `yaml:"extension" json:"extension"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	MaxConcurrent     int           `yaml:"max_concurrent" json:"max_concurrent"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	Retry             RetryConfig   `yaml:"retry" json:"retry"`
}

// RetryConfig bounds the per-asset retry loop. Zero values of MaxAttempts
// and MaxElapsed mean unbounded. Backoff is constant, linear or exponential.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" json:"max_attempts"`
	MaxElapsed      time.Duration `yaml:"max_elapsed" json:"max_elapsed"`
	Delay           time.Duration `yaml:"delay" json:"delay"`
	Backoff         string        `yaml:"backoff" json:"backoff"`
	MaxDelay        time.Duration `yaml:"max_delay" json:"max_delay"`
	VerboseAttempts int           `yaml:"verbose_attempts" json:"verbose_attempts"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file" json:"file"`
}

// UIConfig holds operator output configuration
type UIConfig struct {
	Mode            string        `yaml:"mode" json:"mode"`
	Notifications   bool          `yaml:"notifications" json:"notifications"`
	RefreshInterval time.Duration `yaml:"refresh_interval" json:"refresh_interval"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ChallengeTitle: "Just a moment...",
			AssetFilter:    `/upload-[^/?#]*\d+\.[A-Za-z0-9]+`,
			AssetPattern:   `/upload-([^/?#]+)-(\d+)\.[A-Za-z0-9]+(?:[?#].*)?$`,
			ImageSelector:  "img",
		},
		Browser: BrowserConfig{
			Headless:             true,
			NavigationTimeout:    60 * time.Second,
			ChallengeTimeout:     30 * time.Second,
			ChallengeMaxAttempts: 10,
			IdleSettle:           2 * time.Second,
			IdleTimeout:          60 * time.Second,
			ScrollPasses:         3,
		},
		Session: SessionConfig{
			Store:      "file",
			CookieFile: "cookies.json",
		},
		Download: DownloadConfig{
			Destination: "./dl",
			Extension:   ".jpg",
			Timeout:     60 * time.Second,
			Retry: RetryConfig{
				Delay:           10 * time.Second,
				Backoff:         "constant",
				MaxDelay:        2 * time.Minute,
				VerboseAttempts: 3,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		UI: UIConfig{
			Mode:            "auto",
			Notifications:   false,
			RefreshInterval: time.Second,
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := env("DEST"); v != "" {
		c.Download.Destination = v
	}
	if v := env("COOKIE_FILE"); v != "" {
		c.Session.CookieFile = v
	}
	if v := env("COOKIE_STORE"); v != "" {
		c.Session.Store = v
	}
	if v := env("PASSPHRASE"); v != "" {
		c.Session.Passphrase = v
	}
	if v := env("BROWSER_BIN"); v != "" {
		c.Browser.Bin = v
	}
	if v := env("USER_AGENT"); v != "" {
		c.Browser.UserAgent = v
	}
	if v := env("HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sHEADLESS: %w", EnvPrefix, err))
		} else {
			c.Browser.Headless = b
		}
	}
	if v := env("MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sMAX_CONCURRENT: %w", EnvPrefix, err))
		} else {
			c.Download.MaxConcurrent = n
		}
	}
	if v := env("RETRY_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRETRY_MAX_ATTEMPTS: %w", EnvPrefix, err))
		} else {
			c.Download.Retry.MaxAttempts = n
		}
	}
	if v := env("RETRY_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRETRY_DELAY: %w", EnvPrefix, err))
		} else {
			c.Download.Retry.Delay = d
		}
	}
	if v := env("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := env("LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := env("UI"); v != "" {
		c.UI.Mode = v
	}
	if v := env("NOTIFICATIONS"); v != "" {
		c.UI.Notifications = strings.ToLower(v) == "true"
	}

	return errors.Join(errs...)
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + name))
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"pagegrab.yaml",
		"pagegrab.yml",
		".pagegrab.yaml",
		filepath.Join(home, ".config", "pagegrab", "config.yaml"),
		filepath.Join(home, ".pagegrab.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Site.ChallengeTitle == "" {
		errs = append(errs, errors.New("challenge title is required"))
	}
	for name, pattern := range map[string]string{
		"domain pattern": c.Site.DomainPattern,
		"asset filter":   c.Site.AssetFilter,
		"asset pattern":  c.Site.AssetPattern,
	} {
		if pattern == "" {
			if name != "domain pattern" {
				errs = append(errs, fmt.Errorf("%s is required", name))
			}
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", name, err))
			continue
		}
		if name == "asset pattern" && re.NumSubexp() != 2 {
			errs = append(errs, fmt.Errorf("asset pattern must have exactly two capture groups, got %d", re.NumSubexp()))
		}
	}
	if c.Site.ImageSelector == "" {
		errs = append(errs, errors.New("image selector is required"))
	}

	if c.Browser.NavigationTimeout <= 0 {
		errs = append(errs, errors.New("navigation timeout must be positive"))
	}
	if c.Browser.ChallengeTimeout <= 0 {
		errs = append(errs, errors.New("challenge timeout must be positive"))
	}
	if c.Browser.ChallengeMaxAttempts <= 0 {
		errs = append(errs, errors.New("challenge max attempts must be positive"))
	}
	if c.Browser.IdleTimeout <= 0 {
		errs = append(errs, errors.New("idle timeout must be positive"))
	}
	if c.Browser.IdleSettle < 0 {
		errs = append(errs, errors.New("idle settle window cannot be negative"))
	}
	if c.Browser.ScrollPasses <= 0 {
		errs = append(errs, errors.New("scroll passes must be positive"))
	}

	validStores := map[string]bool{"file": true, "encrypted": true, "keyring": true}
	if !validStores[strings.ToLower(c.Session.Store)] {
		errs = append(errs, fmt.Errorf("invalid cookie store %q", c.Session.Store))
	}
	if c.Session.CookieFile == "" {
		errs = append(errs, errors.New("cookie file is required"))
	}

	if c.Download.Destination == "" {
		errs = append(errs, errors.New("destination directory is required"))
	}
	if !strings.HasPrefix(c.Download.Extension, ".") {
		errs = append(errs, errors.New("extension must start with a dot"))
	}
	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.MaxConcurrent < 0 {
		errs = append(errs, errors.New("max concurrent cannot be negative"))
	}
	if c.Download.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("requests per second cannot be negative"))
	}
	if c.Download.Retry.MaxAttempts < 0 {
		errs = append(errs, errors.New("retry max attempts cannot be negative"))
	}
	if c.Download.Retry.MaxElapsed < 0 {
		errs = append(errs, errors.New("retry max elapsed cannot be negative"))
	}
	if c.Download.Retry.Delay < 0 {
		errs = append(errs, errors.New("retry delay cannot be negative"))
	}
	validBackoffs := map[string]bool{"constant": true, "linear": true, "exponential": true}
	if !validBackoffs[strings.ToLower(c.Download.Retry.Backoff)] {
		errs = append(errs, fmt.Errorf("invalid retry backoff %q", c.Download.Retry.Backoff))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, errors.New("invalid log format"))
	}

	validModes := map[string]bool{"auto": true, "bar": true, "tui": true, "plain": true}
	if !validModes[strings.ToLower(c.UI.Mode)] {
		errs = append(errs, fmt.Errorf("invalid ui mode %q", c.UI.Mode))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in the map are applied.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if dest, ok := flags["dest"].(string); ok && dest != "" {
		c.Download.Destination = dest
	}
	if headless, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = headless
	}
	if n, ok := flags["max-concurrent"].(int); ok && n >= 0 {
		c.Download.MaxConcurrent = n
	}
	if n, ok := flags["max-retries"].(int); ok && n >= 0 {
		c.Download.Retry.MaxAttempts = n
	}
	if d, ok := flags["retry-delay"].(time.Duration); ok && d >= 0 {
		c.Download.Retry.Delay = d
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if mode, ok := flags["ui"].(string); ok && mode != "" {
		c.UI.Mode = mode
	}
	if store, ok := flags["cookie-store"].(string); ok && store != "" {
		c.Session.Store = store
	}
	if notify, ok := flags["notifications"].(bool); ok {
		c.UI.Notifications = notify
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".pagegrab.env"))

	// Start with defaults
	config := DefaultConfig()

	// Load from config file
	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Override with command line flags
	config.MergeCommandLineFlags(flags)

	// Validate final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
