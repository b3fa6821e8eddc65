package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pagegrab/pkg/config"
	"pagegrab/pkg/discovery"
	errs "pagegrab/pkg/errors"
	"pagegrab/pkg/fetch"
	"pagegrab/pkg/logger"
	"pagegrab/pkg/retry"
	"pagegrab/pkg/storage"
)

// MockFetcher serves scripted bodies and errors per URL
type MockFetcher struct {
	mu       sync.Mutex
	failures map[string][]error
	delay    time.Duration
	calls    int32
	inFlight int32
	peak     int32
}

func NewMockFetcher() *MockFetcher {
	return &MockFetcher{failures: make(map[string][]error)}
}

func (m *MockFetcher) FailWith(url string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[url] = append(m.failures[url], errs...)
}

func (m *MockFetcher) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	atomic.AddInt32(&m.calls, 1)
	n := atomic.AddInt32(&m.inFlight, 1)
	defer atomic.AddInt32(&m.inFlight, -1)
	for {
		p := atomic.LoadInt32(&m.peak)
		if n <= p || atomic.CompareAndSwapInt32(&m.peak, p, n) {
			break
		}
	}

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, errs.Transport(url, ctx.Err())
		}
	}

	m.mu.Lock()
	queue := m.failures[url]
	if len(queue) > 0 {
		m.failures[url] = queue[1:]
		m.mu.Unlock()
		return nil, queue[0]
	}
	m.mu.Unlock()

	return io.NopCloser(bytes.NewBufferString("data:" + url)), nil
}

func (m *MockFetcher) Calls() int {
	return int(atomic.LoadInt32(&m.calls))
}

// MockStore records saved assets in memory
type MockStore struct {
	mu       sync.Mutex
	saved    map[string]string
	failures int
}

func NewMockStore() *MockStore {
	return &MockStore{saved: make(map[string]string)}
}

func (m *MockStore) Path(folder, name string) (string, error) {
	if folder == ".." {
		return "", errors.New("invalid path component")
	}
	return folder + "/" + name + ".jpg", nil
}

func (m *MockStore) Exists(folder, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.saved[folder+"/"+name+".jpg"]
	return ok
}

func (m *MockStore) Save(folder, name string, r io.Reader) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return "", errors.New("disk full")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	path := folder + "/" + name + ".jpg"
	m.saved[path] = string(data)
	return path, nil
}

func (m *MockStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func fastRetry(log logger.Logger) *retry.Config {
	rc := config.DefaultConfig().Download.Retry
	rc.Delay = time.Millisecond
	return retry.FromConfig(rc, log)
}

func descriptor(folder string, i int) discovery.Descriptor {
	return discovery.Descriptor{
		Folder: folder,
		Name:   fmt.Sprint(i),
		URL:    fmt.Sprintf("https://site.example/upload-%s-%d.jpg", folder, i),
	}
}

func collect(o *Orchestrator) (*[]Completion, *sync.WaitGroup) {
	var results []Completion
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for c := range o.Completions() {
			results = append(results, c)
		}
	}()
	return &results, &wg
}

func TestOrchestratorBasicFunctionality(t *testing.T) {
	fetcher := NewMockFetcher()
	fetcher.delay = 5 * time.Millisecond
	store := NewMockStore()

	o := New(context.Background(), fetcher, store, Options{Retry: fastRetry(nil)}, logger.NewNopLogger())
	results, wg := collect(o)

	numJobs := 10
	for i := 0; i < numJobs; i++ {
		o.Enqueue(descriptor("set", i))
	}
	o.Close()
	wg.Wait()

	assert.Len(t, *results, numJobs)
	assert.Equal(t, numJobs, fetcher.Calls())
	assert.Equal(t, numJobs, store.Count())
	assert.Equal(t, 0, o.Pending())

	s := o.Stats()
	assert.Equal(t, int64(numJobs), s.Completed)
	assert.Equal(t, int64(0), s.Failed)
}

func TestOrchestratorReplacesExistingFiles(t *testing.T) {
	fetcher := NewMockFetcher()
	store := NewMockStore()
	store.saved["set/1.jpg"] = "stale"
	tl := logger.NewTestLogger()

	o := New(context.Background(), fetcher, store, Options{Retry: fastRetry(nil)}, tl)
	results, wg := collect(o)
	o.Enqueue(descriptor("set", 1))
	o.Enqueue(descriptor("set", 2))
	o.Close()
	wg.Wait()

	assert.Len(t, *results, 2)
	assert.NotEqual(t, "stale", store.saved["set/1.jpg"])
	assert.Equal(t, 1, tl.CountMessages("DEBUG", "Replacing existing file"))
}

func TestOrchestratorRetriesStatusThenSucceeds(t *testing.T) {
	d := descriptor("foo", 12)
	fetcher := NewMockFetcher()
	fetcher.FailWith(d.URL, errs.Status(d.URL, 503), errs.Status(d.URL, 503))
	store := NewMockStore()
	tl := logger.NewTestLogger()

	var retried []int
	var mu sync.Mutex
	o := New(context.Background(), fetcher, store, Options{
		Retry: fastRetry(tl),
		OnRetry: func(task Task, attempt int, err error) {
			mu.Lock()
			defer mu.Unlock()
			retried = append(retried, errs.StatusCode(err))
		},
	}, tl)
	results, wg := collect(o)

	o.Enqueue(d)
	o.Close()
	wg.Wait()

	require.Len(t, *results, 1)
	assert.Equal(t, 3, (*results)[0].Attempts)
	assert.Equal(t, "foo/12.jpg", (*results)[0].Path)
	assert.Equal(t, []int{503, 503}, retried)
	assert.Equal(t, 2, tl.CountMessages("WARN", "retrying operation"))
	assert.Equal(t, int64(2), o.Stats().Retries)
}

func TestOrchestratorTransportAndStatusRetriedAlike(t *testing.T) {
	d := descriptor("foo", 1)
	fetcher := NewMockFetcher()
	fetcher.FailWith(d.URL,
		errs.Transport(d.URL, errors.New("connection reset")),
		errs.Status(d.URL, 404),
		errs.Transport(d.URL, errors.New("timeout")),
	)

	o := New(context.Background(), fetcher, NewMockStore(), Options{Retry: fastRetry(nil)}, logger.NewNopLogger())
	results, wg := collect(o)
	o.Enqueue(d)
	o.Close()
	wg.Wait()

	require.Len(t, *results, 1)
	assert.Equal(t, 4, (*results)[0].Attempts)
}

func TestOrchestratorRetriesStorageFailures(t *testing.T) {
	store := NewMockStore()
	store.failures = 2

	o := New(context.Background(), NewMockFetcher(), store, Options{Retry: fastRetry(nil)}, logger.NewNopLogger())
	results, wg := collect(o)
	o.Enqueue(descriptor("foo", 1))
	o.Close()
	wg.Wait()

	require.Len(t, *results, 1)
	assert.Equal(t, 3, (*results)[0].Attempts)
}

func TestOrchestratorBoundedRetryGivesUp(t *testing.T) {
	d := descriptor("foo", 1)
	fetcher := NewMockFetcher()
	for i := 0; i < 5; i++ {
		fetcher.FailWith(d.URL, errs.Status(d.URL, 500))
	}
	rc := fastRetry(nil)
	rc.MaxAttempts = 2

	tl := logger.NewTestLogger()
	o := New(context.Background(), fetcher, NewMockStore(), Options{Retry: rc}, tl)
	results, wg := collect(o)
	o.Enqueue(d)
	o.Close()
	wg.Wait()

	assert.Empty(t, *results)
	assert.Equal(t, 2, fetcher.Calls())
	assert.Equal(t, int64(1), o.Stats().Failed)
	assert.Equal(t, 1, tl.CountMessages("ERROR", "Download failed"))
}

func TestOrchestratorInvalidDestinationNotRetried(t *testing.T) {
	fetcher := NewMockFetcher()
	o := New(context.Background(), fetcher, NewMockStore(), Options{Retry: fastRetry(nil)}, logger.NewNopLogger())
	results, wg := collect(o)
	o.Enqueue(discovery.Descriptor{Folder: "..", Name: "1", URL: "https://site.example/x"})
	o.Close()
	wg.Wait()

	assert.Empty(t, *results)
	assert.Equal(t, 0, fetcher.Calls())
	assert.Equal(t, int64(1), o.Stats().Failed)
}

func TestOrchestratorCapsConcurrency(t *testing.T) {
	fetcher := NewMockFetcher()
	fetcher.delay = 20 * time.Millisecond

	o := New(context.Background(), fetcher, NewMockStore(), Options{MaxConcurrent: 2, Retry: fastRetry(nil)}, logger.NewNopLogger())
	results, wg := collect(o)
	for i := 0; i < 8; i++ {
		o.Enqueue(descriptor("set", i))
	}
	o.Close()
	wg.Wait()

	assert.Len(t, *results, 8)
	assert.LessOrEqual(t, atomic.LoadInt32(&fetcher.peak), int32(2))
}

func TestOrchestratorUnboundedByDefault(t *testing.T) {
	fetcher := NewMockFetcher()
	fetcher.delay = 50 * time.Millisecond

	o := New(context.Background(), fetcher, NewMockStore(), Options{Retry: fastRetry(nil)}, logger.NewNopLogger())
	results, wg := collect(o)
	start := time.Now()
	for i := 0; i < 20; i++ {
		o.Enqueue(descriptor("set", i))
	}
	o.Close()
	wg.Wait()

	assert.Len(t, *results, 20)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "tasks run concurrently")
}

func TestOrchestratorCancelStopsRetrying(t *testing.T) {
	d := descriptor("foo", 1)
	fetcher := NewMockFetcher()
	for i := 0; i < 1000; i++ {
		fetcher.FailWith(d.URL, errs.Status(d.URL, 503))
	}
	rc := config.DefaultConfig().Download.Retry
	rc.Delay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	o := New(ctx, fetcher, NewMockStore(), Options{Retry: retry.FromConfig(rc, nil)}, logger.NewNopLogger())
	results, wg := collect(o)
	o.Enqueue(d)

	time.Sleep(20 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		o.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after cancellation")
	}
	wg.Wait()

	assert.Empty(t, *results)
	assert.Equal(t, 1, fetcher.Calls())
}

func TestOrchestratorSubmitAfterClose(t *testing.T) {
	o := New(context.Background(), NewMockFetcher(), NewMockStore(), Options{}, logger.NewNopLogger())
	_, wg := collect(o)
	o.Close()
	wg.Wait()

	assert.ErrorIs(t, o.Submit(descriptor("x", 1)), ErrClosed)
	o.Close()
}

func TestOrchestratorWithHTTPAndDisk(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("JPEG"))
	}))
	defer srv.Close()

	root := t.TempDir()
	store, err := storage.NewManager(root, ".jpg")
	require.NoError(t, err)
	client := fetch.NewClient(5*time.Second, logger.NewNopLogger())

	tl := logger.NewTestLogger()
	o := New(context.Background(), client, store, Options{Retry: fastRetry(tl)}, tl)
	results, wg := collect(o)
	o.Enqueue(discovery.Descriptor{Folder: "foo", Name: "12", URL: srv.URL + "/x/upload-foo-12.jpg"})
	o.Close()
	wg.Wait()

	require.Len(t, *results, 1)
	content, err := os.ReadFile(filepath.Join(root, "foo", "12.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "JPEG", string(content))
	assert.Equal(t, 2, tl.CountMessages("WARN", "retrying operation"))
}
