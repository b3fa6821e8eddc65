package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pagegrab/pkg/config"
	"pagegrab/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage pagegrab configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - PAGEGRAB_* environment variables, including .env files
  - Configuration file
  - Default values (lowest priority)`,
}

// configInitCmd writes the defaults to a file
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with every option set to its default",
	Long: `Create a configuration file with every option set to its default.

The file is created as 'pagegrab.yaml' in the current directory unless a
different path is given with --config.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// configShowCmd prints the effective configuration
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

// configValidateCmd checks a configuration file
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Validate the configuration for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Regular expressions and their capture groups
  - Value ranges
  - Destination and log file accessibility`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = "pagegrab.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + path)
	fmt.Fprintln(ui.Output, "\nNext steps:")
	fmt.Fprintln(ui.Output, "1. Adjust the site patterns if the target names its images differently")
	fmt.Fprintln(ui.Output, "2. Run 'pagegrab config validate' to check the configuration")
	fmt.Fprintln(ui.Output, "3. Start downloading with 'pagegrab <url>'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, changedFlags(cmd))
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	fmt.Fprintln(ui.Output, ui.Magenta("Current Configuration"))
	fmt.Fprintln(ui.Output)
	fmt.Fprint(ui.Output, string(data))

	fmt.Fprintln(ui.Output, "\nConfiguration sources (in order of priority):")
	fmt.Fprintln(ui.Output, "1. Command line flags")
	fmt.Fprintf(ui.Output, "2. Environment variables (%s*)\n", config.EnvPrefix)
	source := configFile
	if source == "" {
		source = config.FindConfigFile()
	}
	if source != "" {
		fmt.Fprintf(ui.Output, "3. Configuration file: %s\n", source)
	} else {
		fmt.Fprintln(ui.Output, "3. Configuration file: (none found)")
	}
	fmt.Fprintln(ui.Output, "4. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = config.FindConfigFile()
	}
	if path != "" {
		ui.PrintInfo("Validating configuration", path)
	} else {
		ui.PrintInfo("Validating configuration", "defaults and environment")
	}

	cfg, err := config.Load(path, nil)
	if err != nil {
		ui.PrintError("Configuration validation failed")
		return err
	}

	if problems := checkPaths(cfg); len(problems) > 0 {
		ui.PrintError("Configuration has errors:")
		for _, p := range problems {
			fmt.Fprintf(ui.Output, "  - %v\n", p)
		}
		return errors.Join(problems...)
	}

	ui.PrintSuccess("Configuration is valid")

	retries := "unbounded"
	if cfg.Download.Retry.MaxAttempts > 0 {
		retries = fmt.Sprint(cfg.Download.Retry.MaxAttempts)
	}
	concurrency := "unbounded"
	if cfg.Download.MaxConcurrent > 0 {
		concurrency = fmt.Sprint(cfg.Download.MaxConcurrent)
	}

	fmt.Fprintln(ui.Output, "\nConfiguration summary:")
	fmt.Fprintf(ui.Output, "  Destination: %s\n", cfg.Download.Destination)
	fmt.Fprintf(ui.Output, "  Concurrent downloads: %s\n", concurrency)
	fmt.Fprintf(ui.Output, "  Attempts per image: %s, %s apart\n", retries, cfg.Download.Retry.Delay)
	fmt.Fprintf(ui.Output, "  Cookie store: %s\n", cfg.Session.Store)
	fmt.Fprintf(ui.Output, "  Log level: %s\n", cfg.Logging.Level)
	return nil
}

// checkPaths verifies the directories a run would write to can be created
func checkPaths(cfg *config.Config) []error {
	var problems []error
	if err := os.MkdirAll(cfg.Download.Destination, 0755); err != nil {
		problems = append(problems, fmt.Errorf("cannot create destination directory: %w", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Errorf("cannot create log directory: %w", err))
		}
	}
	return problems
}
