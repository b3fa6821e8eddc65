package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"pagegrab/pkg/discovery"
	errs "pagegrab/pkg/errors"
	"pagegrab/pkg/logger"
	"pagegrab/pkg/ratelimit"
	"pagegrab/pkg/retry"
)

// Fetcher opens the body of an asset URL
type Fetcher interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// Store persists an asset body
type Store interface {
	Path(folder, name string) (string, error)
	Exists(folder, name string) bool
	Save(folder, name string, r io.Reader) (string, error)
}

// Task is one asset on its way to disk
type Task struct {
	discovery.Descriptor
	Queued time.Time
}

// Completion reports a persisted asset
type Completion struct {
	Task     Task
	Path     string
	Attempts int
	Duration time.Duration
}

// Stats is a snapshot of orchestrator counters
type Stats struct {
	Queued    int64
	Pending   int64
	Completed int64
	Failed    int64
	Retries   int64
}

// Options configures an Orchestrator
type Options struct {
	// MaxConcurrent caps in-flight fetches; 0 leaves them unbounded
	MaxConcurrent int
	Limiter       ratelimit.Limiter
	Retry         *retry.Config
	// OnRetry is told about every failed attempt that will be retried
	OnRetry func(task Task, attempt int, err error)
	// Buffer sizes the completion channel
	Buffer int
}

// storageError marks a local write failure as worth another attempt
type storageError struct{ err error }

func (e *storageError) Error() string { return "store: " + e.err.Error() }
func (e *storageError) Unwrap() error { return e.err }

// ErrClosed is returned by Submit after Close
var ErrClosed = errors.New("orchestrator closed")

// Orchestrator runs one goroutine per discovered asset, each fetching and
// storing its asset under the retry policy until it succeeds
type Orchestrator struct {
	ctx     context.Context
	fetcher Fetcher
	store   Store
	limiter ratelimit.Limiter
	sem     *semaphore.Weighted
	retrier *retry.Retrier
	onRetry func(task Task, attempt int, err error)
	logger  logger.Logger

	completions chan Completion
	wg          sync.WaitGroup
	mu          sync.Mutex
	closed      bool

	queued    atomic.Int64
	pending   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	retries   atomic.Int64
}

// New creates an orchestrator whose tasks stop when ctx is cancelled
func New(ctx context.Context, fetcher Fetcher, store Store, opts Options, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithField("component", "downloader")

	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}

	rc := opts.Retry
	if rc == nil {
		rc = retry.DefaultConfig()
	}
	rcCopy := *rc
	retryIf := rcCopy.RetryIf
	if retryIf == nil {
		retryIf = retry.DefaultRetryIf
	}
	rcCopy.RetryIf = func(err error) bool {
		var se *storageError
		if errors.As(err, &se) {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}
		return retryIf(err)
	}

	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 64
	}

	o := &Orchestrator{
		ctx:         ctx,
		fetcher:     fetcher,
		store:       store,
		limiter:     limiter,
		retrier:     retry.NewRetrier(&rcCopy),
		onRetry:     opts.OnRetry,
		logger:      log,
		completions: make(chan Completion, buffer),
	}
	if opts.MaxConcurrent > 0 {
		o.sem = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}

	log.InfoWithFields("Download orchestrator ready", map[string]interface{}{
		"max_concurrent": opts.MaxConcurrent,
		"max_attempts":   rcCopy.MaxAttempts,
	})
	return o
}

// Enqueue starts downloading d. Assets arriving after Close are dropped.
func (o *Orchestrator) Enqueue(d discovery.Descriptor) {
	if err := o.Submit(d); err != nil {
		o.logger.WithError(err).WarnWithFields("Asset dropped", map[string]interface{}{
			"url": d.URL,
		})
	}
}

// Submit starts a task for d
func (o *Orchestrator) Submit(d discovery.Descriptor) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	o.wg.Add(1)
	o.mu.Unlock()

	task := Task{Descriptor: d, Queued: time.Now()}
	o.queued.Add(1)
	o.pending.Add(1)

	go func() {
		defer o.wg.Done()
		defer o.pending.Add(-1)

		c, err := o.FetchAndStore(o.ctx, task)
		if err != nil {
			o.failed.Add(1)
			return
		}
		o.completed.Add(1)

		select {
		case o.completions <- c:
		case <-o.ctx.Done():
		}
	}()
	return nil
}

// FetchAndStore downloads task and persists it, retrying failed attempts
// according to the retry policy
func (o *Orchestrator) FetchAndStore(ctx context.Context, task Task) (Completion, error) {
	start := time.Now()
	log := o.logger.WithFields(map[string]interface{}{
		"folder": task.Folder,
		"name":   task.Name,
	})

	dest, err := o.store.Path(task.Folder, task.Name)
	if err != nil {
		logger.LogDownload(log, task.URL, "", 0, err)
		return Completion{}, fmt.Errorf("invalid destination: %w", err)
	}
	if o.store.Exists(task.Folder, task.Name) {
		log.DebugWithFields("Replacing existing file", map[string]interface{}{"path": dest})
	}

	attempts := 0
	retrier := o.retrier.WithLogger(log).WithOnRetry(func(attempt int, err error, delay time.Duration) {
		o.retries.Add(1)
		if o.onRetry != nil {
			o.onRetry(task, attempt, err)
		}
	})

	var path string
	err = retrier.Do(ctx, func(ctx context.Context) error {
		attempts++
		p, err := o.attempt(ctx, task)
		if err != nil {
			return err
		}
		path = p
		return nil
	})
	if err != nil {
		logger.LogDownload(log, task.URL, dest, attempts, err)
		return Completion{}, err
	}

	c := Completion{
		Task:     task,
		Path:     path,
		Attempts: attempts,
		Duration: time.Since(start),
	}
	logger.LogDownload(log, task.URL, path, attempts, nil)
	return c, nil
}

// attempt performs a single fetch and store
func (o *Orchestrator) attempt(ctx context.Context, task Task) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", err
	}
	if o.sem != nil {
		if err := o.sem.Acquire(ctx, 1); err != nil {
			return "", err
		}
		defer o.sem.Release(1)
	}

	body, err := o.fetcher.Open(ctx, task.URL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	path, err := o.store.Save(task.Folder, task.Name, body)
	if err != nil {
		// Body read failures keep their transport kind
		if errs.KindOf(err) != "" {
			return "", err
		}
		return "", &storageError{err: err}
	}
	return path, nil
}

// Completions delivers one event per persisted asset. It is closed by Close.
func (o *Orchestrator) Completions() <-chan Completion {
	return o.completions
}

// Close stops accepting assets, waits for every task to finish and closes
// the completion channel. Completions must be drained concurrently.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.logger.DebugWithFields("Waiting for downloads to finish", map[string]interface{}{
		"pending": o.Pending(),
	})
	o.wg.Wait()
	close(o.completions)

	s := o.Stats()
	o.logger.InfoWithFields("Download orchestrator stopped", map[string]interface{}{
		"queued":    s.Queued,
		"completed": s.Completed,
		"failed":    s.Failed,
		"retries":   s.Retries,
	})
}

// Pending returns the number of tasks not yet finished
func (o *Orchestrator) Pending() int {
	return int(o.pending.Load())
}

// Stats returns the orchestrator counters
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Queued:    o.queued.Load(),
		Pending:   o.pending.Load(),
		Completed: o.completed.Load(),
		Failed:    o.failed.Load(),
		Retries:   o.retries.Load(),
	}
}
