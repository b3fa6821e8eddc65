package runner

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pagegrab/internal/downloader"
	"pagegrab/pkg/browser"
	"pagegrab/pkg/config"
	"pagegrab/pkg/cookies"
	"pagegrab/pkg/discovery"
	errs "pagegrab/pkg/errors"
	"pagegrab/pkg/fetch"
	"pagegrab/pkg/logger"
	"pagegrab/pkg/progress"
	"pagegrab/pkg/ratelimit"
	"pagegrab/pkg/retry"
	"pagegrab/pkg/session"
	"pagegrab/pkg/storage"
)

// Result describes a finished run, successful or not
type Result struct {
	RunID       string
	Target      string
	Destination string
	State       State
	Progress    progress.Snapshot
	Downloads   downloader.Stats
	Discovered  int
	Malformed   int
	// Saved counts files written to Destination by this run
	Saved int
	// Overflow counts completions beyond the expected total
	Overflow int
	Duration time.Duration
}

// Runner executes grabs with a fixed configuration
type Runner struct {
	cfg      *config.Config
	engine   browser.Engine
	store    cookies.Store
	renderer progress.Renderer
	logger   logger.Logger

	// Guide receives challenge instructions; nil keeps the bootstrapper default
	Guide io.Writer

	state atomic.Int32
}

// New creates a runner. renderer may be nil.
func New(cfg *config.Config, engine browser.Engine, store cookies.Store, renderer progress.Renderer, log logger.Logger) *Runner {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Runner{
		cfg:      cfg,
		engine:   engine,
		store:    store,
		renderer: renderer,
		logger:   log,
	}
}

// State returns the current phase
func (r *Runner) State() State {
	return State(r.state.Load())
}

func (r *Runner) transition(log logger.Logger, to State) {
	from := r.State()
	if !canTransition(from, to) {
		log.ErrorWithFields("Illegal state transition", map[string]interface{}{
			"from": from.String(),
			"to":   to.String(),
		})
		return
	}
	r.state.Store(int32(to))
	log.InfoWithFields("State changed", map[string]interface{}{
		"from": from.String(),
		"to":   to.String(),
	})
}

// run is the shared state of a single grab: the discovery set, the progress
// tracker and the orchestrator that feeds it
type run struct {
	id       string
	target   string
	log      logger.Logger
	seen     *discovery.Set
	tracker  *progress.Tracker
	orch     *downloader.Orchestrator
	observer *discovery.ManifestObserver
	assets   *discovery.AssetDiscoverer
}

// Run grabs every image of targetURL. The returned Result is never nil. The
// error is non-nil only when the run failed: a bootstrap or navigation
// failure, an unusable destination, or ctx being cancelled.
func (r *Runner) Run(ctx context.Context, targetURL string) (*Result, error) {
	started := time.Now()
	id := uuid.NewString()
	log := r.logger.WithFields(map[string]interface{}{
		"run_id": id,
		"target": targetURL,
	})
	result := &Result{
		RunID:       id,
		Target:      targetURL,
		Destination: r.cfg.Download.Destination,
		Progress:    progress.Snapshot{Total: progress.Unknown},
	}

	r.state.Store(int32(Idle))
	err := r.execute(ctx, targetURL, id, log, result)
	if err != nil {
		r.transition(log, Failed)
		log.WithError(err).ErrorWithFields("Run failed", map[string]interface{}{
			"kind": string(errs.KindOf(err)),
		})
	} else {
		r.transition(log, Done)
	}

	result.State = r.State()
	result.Duration = time.Since(started)
	log.InfoWithFields("Run finished", map[string]interface{}{
		"state":      result.State.String(),
		"completed":  result.Progress.Completed,
		"total":      result.Progress.Total,
		"discovered": result.Discovered,
		"saved":      result.Saved,
		"failed":     result.Downloads.Failed,
		"duration":   result.Duration.String(),
	})
	return result, err
}

func (r *Runner) execute(ctx context.Context, targetURL, id string, log logger.Logger, result *Result) error {
	matcher, err := discovery.NewMatcher(r.cfg.Site)
	if err != nil {
		return fmt.Errorf("asset patterns: %w", err)
	}
	store, err := storage.NewManager(r.cfg.Download.Destination, r.cfg.Download.Extension)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	result.Destination = store.Root()

	r.transition(log, BootstrappingSession)
	jar, err := r.bootstrap(ctx, targetURL, log)
	if err != nil {
		return err
	}

	r.transition(log, NavigatingPrimaryPage)
	page, err := r.engine.Open(ctx, browser.OpenOptions{
		Headless:  r.cfg.Browser.Headless,
		UserAgent: r.cfg.Browser.UserAgent,
	})
	if err != nil {
		return &errs.Error{Kind: errs.KindNavigation, Op: "open page", URL: targetURL, Err: err}
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			log.WithError(cerr).Debug("Failed to close page session")
		}
	}()

	if len(jar) > 0 {
		if err := page.SetCookies(ctx, jar); err != nil {
			log.WithError(err).Warn("Failed to inject session cookies into page")
		}
	}
	client := r.newClient(ctx, page, targetURL, jar, log)

	g, gctx := errgroup.WithContext(ctx)
	st := &run{
		id:      id,
		target:  targetURL,
		log:     log,
		seen:    discovery.NewSet(),
		tracker: progress.NewTracker(r.renderer, log),
	}
	// Downloads outlive discovery only on success; a fatal error abandons them
	orchCtx, abandon := context.WithCancel(gctx)
	defer abandon()
	st.orch = downloader.New(orchCtx, client, store, downloader.Options{
		MaxConcurrent: r.cfg.Download.MaxConcurrent,
		Limiter:       ratelimit.New(r.cfg.Download.RequestsPerSecond),
		Retry:         retry.FromConfig(r.cfg.Download.Retry, log),
		OnRetry: func(task downloader.Task, attempt int, err error) {
			st.tracker.SetStatus(retryStatus(task, attempt, err))
		},
	}, log)
	st.observer = discovery.NewManifestObserver(targetURL, st.tracker, log)
	st.assets = discovery.NewAssetDiscoverer(matcher, st.seen, st.orch, log)

	refreshCtx, stopRefresh := context.WithCancel(gctx)
	g.Go(func() error {
		st.tracker.Run(refreshCtx, r.cfg.UI.RefreshInterval)
		return nil
	})
	g.Go(func() error {
		for range st.orch.Completions() {
			st.tracker.Advance()
		}
		return nil
	})

	runErr := r.discover(gctx, page, st)

	if runErr == nil {
		r.transition(log, Draining)
		st.tracker.SetStatus("waiting for downloads")
	} else {
		log.WarnWithFields("Abandoning unfinished downloads", map[string]interface{}{
			"pending": st.orch.Pending(),
		})
		abandon()
	}
	st.orch.Close()
	stopRefresh()
	_ = g.Wait()

	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}
	if runErr == nil {
		st.tracker.SetStatus("done")
	}

	result.Progress = st.tracker.Finish()
	result.Downloads = st.orch.Stats()
	result.Saved = store.Count()
	result.Discovered = st.seen.Len()
	result.Malformed = st.assets.Malformed()
	result.Overflow = st.tracker.Overflow()
	return runErr
}

// bootstrap loads the saved jar, passes the challenge and persists whatever
// the browser holds afterwards
func (r *Runner) bootstrap(ctx context.Context, targetURL string, log logger.Logger) (cookies.Set, error) {
	saved, err := r.store.Load()
	if err != nil {
		log.WithError(err).WarnWithFields("Failed to load saved cookies, continuing without them", map[string]interface{}{
			"store": r.store.Describe(),
		})
		saved = nil
	}

	b := session.NewBootstrapper(r.engine, r.cfg.Site, r.cfg.Browser, log)
	if r.Guide != nil {
		b.Guide = r.Guide
	}
	harvested, err := b.Bootstrap(ctx, targetURL, saved)
	if harvested != nil {
		if serr := r.store.Save(harvested); serr != nil {
			log.WithError(serr).WarnWithFields("Failed to persist cookies", map[string]interface{}{
				"store": r.store.Describe(),
			})
		} else {
			log.DebugWithFields("Cookies persisted", map[string]interface{}{
				"store":   r.store.Describe(),
				"cookies": len(harvested),
			})
		}
	}
	if err != nil {
		return nil, err
	}
	if harvested == nil {
		return saved, nil
	}
	return harvested, nil
}

// newClient builds the download client so that it presents the same
// identity as the page session
func (r *Runner) newClient(ctx context.Context, page browser.Session, targetURL string, jar cookies.Set, log logger.Logger) *fetch.Client {
	client := fetch.NewClient(r.cfg.Download.Timeout, log)

	ua := r.cfg.Browser.UserAgent
	if ua == "" {
		agent, err := page.UserAgent(ctx)
		if err != nil {
			log.WithError(err).Debug("Failed to read browser user agent")
		}
		ua = agent
	}
	client.SetUserAgent(ua)
	client.SetReferer(targetURL)

	if err := client.SetCookies(targetURL, jar); err != nil {
		log.WithError(err).Warn("Failed to seed download cookies")
	}
	return client
}

// discover loads the target with both observers attached and scrolls until
// no new assets appear and the network has settled
func (r *Runner) discover(ctx context.Context, page browser.Session, st *run) error {
	stop := page.Subscribe(ctx, discovery.Fanout(
		func(resp browser.Response) { st.observer.Handle(ctx, resp) },
		st.assets.Handle,
	))
	defer stop()

	bc := r.cfg.Browser
	if err := page.Navigate(ctx, st.target, browser.LoadNetworkIdle, bc.NavigationTimeout); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &errs.Error{Kind: errs.KindNavigation, Op: "navigate", URL: st.target, Err: err}
	}

	r.transition(st.log, DiscoveringAndDownloading)
	st.tracker.SetStatus("scrolling")

	passes := bc.ScrollPasses
	if passes < 1 {
		passes = 1
	}
	for pass := 1; pass <= passes; pass++ {
		before := st.seen.Len()

		images, err := page.ScrollThrough(ctx, r.cfg.Site.ImageSelector)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			st.log.WithError(err).Warn("Scroll pass failed")
		}
		if err := page.WaitIdle(ctx, bc.IdleSettle, bc.IdleTimeout); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			st.log.WithError(err).Warn("Network did not go idle before the timeout")
		}

		found := st.seen.Len() - before
		st.log.DebugWithFields("Scroll pass finished", map[string]interface{}{
			"pass":       pass,
			"images":     images,
			"new_assets": found,
			"discovered": st.seen.Len(),
		})
		if found == 0 {
			break
		}
	}

	if !st.observer.Seen() {
		st.log.Warn("Primary document never observed, progress total unknown")
	}
	return nil
}

func retryStatus(task downloader.Task, attempt int, err error) string {
	reason := "transport error"
	if code := errs.StatusCode(err); code != 0 {
		reason = fmt.Sprintf("status %d", code)
	} else if errs.KindOf(err) == "" {
		reason = "write error"
	}
	return fmt.Sprintf("%s/%s %s, retry %d", task.Folder, task.Name, reason, attempt)
}
