package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pagegrab/pkg/ui"
)

var (
	// Version information
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string

	// Grab flags
	dest          string
	headless      bool
	maxConcurrent int
	maxRetries    int
	retryDelay    time.Duration
	uiMode        string
	cookieStore   string
	notifications bool
)

// errRunFailed is returned after a failed run has already been reported
var errRunFailed = errors.New("run failed")

// rootCmd grabs every image of the page given as its only argument
var rootCmd = &cobra.Command{
	Use:   "pagegrab [flags] <url>",
	Short: "Download every image a web page loads",
	Long: `pagegrab opens a web page in a real browser, watches the network traffic
it produces and downloads every image asset it discovers.

The first run opens a visible browser window so that any bot check can be
completed by hand. The resulting cookies are saved and reused afterwards.
Images are written to {dest}/{folder}/{name}.jpg.

Configuration is read, in increasing priority, from defaults, a YAML file,
.env files, PAGEGRAB_* environment variables and command line flags.`,
	Example: `  # Download into ./dl
  pagegrab https://example.com/gallery/123

  # Download elsewhere with at most 4 parallel downloads
  pagegrab -d ~/Pictures/gallery --max-concurrent 4 https://example.com/gallery/123

  # Give up on an image after 20 attempts
  pagegrab --max-retries 20 https://example.com/gallery/123`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	Args:          targetArg,
	SilenceErrors: true,
	RunE:          runGrab,
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, ui.Red("Error: "+err.Error()))
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default: ./pagegrab.yaml or ~/.config/pagegrab/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	flags := rootCmd.Flags()
	flags.StringVarP(&dest, "dest", "d", "./dl", "destination directory")
	flags.BoolVar(&headless, "headless", true, "load the page without a visible window")
	flags.IntVar(&maxConcurrent, "max-concurrent", 0, "maximum parallel downloads (0 = unbounded)")
	flags.IntVar(&maxRetries, "max-retries", 0, "maximum attempts per image (0 = retry until it succeeds)")
	flags.DurationVar(&retryDelay, "retry-delay", 10*time.Second, "pause between attempts")
	flags.StringVar(&uiMode, "ui", "auto", "progress display (auto, bar, tui, plain)")
	flags.StringVar(&cookieStore, "cookie-store", "file", "cookie store (file, encrypted, keyring)")
	flags.BoolVar(&notifications, "notifications", false, "send a desktop notification when done")

	rootCmd.SetVersionTemplate(`pagegrab {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// targetArg requires exactly one http(s) URL
func targetArg(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errors.New("missing target url")
	}
	if len(args) > 1 {
		return fmt.Errorf("expected one target url, got %d arguments", len(args))
	}
	if _, err := parseTarget(args[0]); err != nil {
		return err
	}
	return nil
}

func parseTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid target url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid target url %q: scheme must be http or https", raw)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("invalid target url %q: missing host", raw)
	}
	return u, nil
}

// changedFlags collects only the flags set on the command line so that
// flag defaults never override the config file or environment
func changedFlags(cmd *cobra.Command) map[string]interface{} {
	out := make(map[string]interface{})
	set := func(name string, value interface{}) {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			out[name] = value
		}
	}

	set("dest", dest)
	set("headless", headless)
	set("max-concurrent", maxConcurrent)
	set("max-retries", maxRetries)
	set("retry-delay", retryDelay)
	set("ui", uiMode)
	set("cookie-store", cookieStore)
	set("notifications", notifications)
	set("log-level", logLevel)
	return out
}
