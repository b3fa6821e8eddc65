package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pagegrab/pkg/browser"
	"pagegrab/pkg/config"
	"pagegrab/pkg/cookies"
	errs "pagegrab/pkg/errors"
	"pagegrab/pkg/logger"
	"pagegrab/pkg/progress"
	"pagegrab/pkg/runner"
	"pagegrab/pkg/ui"
	"pagegrab/pkg/ui/tui"
)

// plainHeartbeat is how often the plain display repeats an unchanged line
const plainHeartbeat = 15 * time.Second

func runGrab(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	target, err := parseTarget(args[0])
	if err != nil {
		return err
	}

	cfg, err := config.Load(configFile, changedFlags(cmd))
	if err != nil {
		return err
	}

	mode := resolveMode(cfg.UI.Mode, ui.IsTerminal(os.Stdout))
	if mode == "tui" && cfg.Logging.File == "" {
		// log lines would tear the full-screen view
		cfg.Logging.Level = "error"
	}

	logger.Version = version
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return err
	}
	log := logger.GetLogger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store, err := cookies.NewStore(cfg.Session, target.Hostname())
	if err != nil {
		return err
	}

	renderer, closeRenderer := newRenderer(mode, target.String(), cancel, log)
	if mode != "tui" {
		ui.PrintBanner()
		ui.PrintInfo("Target", target.String())
		ui.PrintInfo("Destination", cfg.Download.Destination)
		ui.PrintInfo("Cookies", store.Describe())
		fmt.Fprintln(ui.Output)
	}

	engine := browser.NewRodEngine(cfg.Browser.Bin, log)
	r := runner.New(cfg, engine, store, renderer, log)
	r.Guide = os.Stderr

	result, err := r.Run(ctx, target.String())
	closeRenderer(result.Progress)
	notifier := ui.NewNotifier(cfg.UI.Notifications)
	if err != nil {
		ui.PrintSummary(ui.Output, result.Progress, cfg.Download.Destination, result.Downloads.Failed)
		ui.PrintError(describeFailure(err))
		notifier.SendError("pagegrab failed", describeFailure(err))
		return errRunFailed
	}

	ui.PrintSummary(ui.Output, result.Progress, cfg.Download.Destination, result.Downloads.Failed)
	notifier.SendSuccess("pagegrab finished", fmt.Sprintf("%d images saved to %s", result.Progress.Completed, cfg.Download.Destination))
	return nil
}

// resolveMode turns "auto" into a concrete display for the current stdout
func resolveMode(mode string, tty bool) string {
	mode = strings.ToLower(mode)
	if mode != "auto" && mode != "" {
		return mode
	}
	if tty {
		return "bar"
	}
	return "plain"
}

// newRenderer builds the progress display. The tui renderer is started here
// and quitting it cancels the run. The returned func shuts the display down
// when a run failed before progress tracking began.
func newRenderer(mode, target string, cancel context.CancelFunc, log logger.Logger) (progress.Renderer, func(progress.Snapshot)) {
	switch mode {
	case "tui":
		r := tui.NewRenderer(target, cancel)
		r.Run()
		return r, r.Finish
	case "bar":
		return ui.NewBarRenderer(os.Stderr), func(progress.Snapshot) {}
	default:
		return ui.NewLineRenderer(ui.Output, plainHeartbeat, log), func(progress.Snapshot) {}
	}
}

// describeFailure turns a run error into the operator diagnostic
func describeFailure(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "interrupted"
	case errs.IsFatal(err):
		return "could not reach the page: " + err.Error()
	default:
		return "run failed: " + err.Error()
	}
}
