package browser

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"pagegrab/pkg/cookies"
)

// FakeResponse is a scripted network response
type FakeResponse struct {
	URL     string
	Status  int
	Body    []byte
	BodyErr error
}

type fakeResponse struct{ r FakeResponse }

func (f fakeResponse) URL() string { return f.r.URL }
func (f fakeResponse) Status() int { return f.r.Status }
func (f fakeResponse) Body(ctx context.Context) ([]byte, error) {
	if f.r.BodyErr != nil {
		return nil, f.r.BodyErr
	}
	return f.r.Body, nil
}

// FakePage scripts what a URL does when visited
type FakePage struct {
	// Titles are returned in turn; each successful WaitURL advances to the
	// next one and the last one sticks
	Titles []string
	// ChallengeStuck makes WaitURL time out without advancing
	ChallengeStuck bool
	NavigateErr    error
	// Responses are delivered to subscribers during Navigate
	Responses []FakeResponse
	// ScrollBatches[i] is delivered during the i-th ScrollThrough
	ScrollBatches [][]FakeResponse
	Images        int
	// SiteCookies are added to the jar when the page is visited
	SiteCookies cookies.Set
}

// FakeEngine is an in-memory Engine for tests
type FakeEngine struct {
	mu       sync.Mutex
	Pages    map[string]*FakePage
	OpenErr  error
	Agent    string
	opened   []OpenOptions
	sessions []*FakeSession
}

// NewFakeEngine creates an engine serving pages
func NewFakeEngine(pages map[string]*FakePage) *FakeEngine {
	return &FakeEngine{Pages: pages, Agent: "FakeBrowser/1.0"}
}

func (e *FakeEngine) Open(ctx context.Context, opts OpenOptions) (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.OpenErr != nil {
		return nil, e.OpenErr
	}
	s := &FakeSession{engine: e, opts: opts, handlers: map[int]ResponseHandler{}}
	e.opened = append(e.opened, opts)
	e.sessions = append(e.sessions, s)
	return s, nil
}

// Opened returns the options of every Open call
func (e *FakeEngine) Opened() []OpenOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]OpenOptions(nil), e.opened...)
}

// Sessions returns every session opened so far
func (e *FakeEngine) Sessions() []*FakeSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*FakeSession(nil), e.sessions...)
}

// FakeSession is the Session handed out by FakeEngine
type FakeSession struct {
	engine *FakeEngine
	opts   OpenOptions

	mu         sync.Mutex
	jar        cookies.Set
	page       *FakePage
	url        string
	titleIdx   int
	scrolls    int
	handlers   map[int]ResponseHandler
	nextID     int
	closed     bool
	waitURLs   int
	navigation []LoadCondition
}

func (s *FakeSession) SetCookies(ctx context.Context, set cookies.Set) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jar = append(s.jar, set...)
	return nil
}

func (s *FakeSession) Cookies(ctx context.Context) (cookies.Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(cookies.Set{}, s.jar...), nil
}

// InjectedCookies returns the jar contents
func (s *FakeSession) InjectedCookies() cookies.Set {
	set, _ := s.Cookies(context.Background())
	return set
}

func (s *FakeSession) Navigate(ctx context.Context, url string, cond LoadCondition, timeout time.Duration) error {
	s.engine.mu.Lock()
	page, ok := s.engine.Pages[url]
	s.engine.mu.Unlock()

	s.mu.Lock()
	s.navigation = append(s.navigation, cond)
	if !ok {
		s.mu.Unlock()
		return errors.New("net::ERR_NAME_NOT_RESOLVED")
	}
	if page.NavigateErr != nil {
		s.mu.Unlock()
		return page.NavigateErr
	}
	s.page = page
	s.url = url
	s.titleIdx = 0
	s.jar = append(s.jar, page.SiteCookies...)
	s.mu.Unlock()

	s.deliver(page.Responses)
	return ctx.Err()
}

func (s *FakeSession) deliver(responses []FakeResponse) {
	s.mu.Lock()
	handlers := make([]ResponseHandler, 0, len(s.handlers))
	for i := 0; i < s.nextID; i++ {
		if h, ok := s.handlers[i]; ok {
			handlers = append(handlers, h)
		}
	}
	s.mu.Unlock()

	for _, r := range responses {
		for _, h := range handlers {
			h(fakeResponse{r})
		}
	}
}

func (s *FakeSession) Title(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil || len(s.page.Titles) == 0 {
		return "", nil
	}
	idx := s.titleIdx
	if idx >= len(s.page.Titles) {
		idx = len(s.page.Titles) - 1
	}
	return s.page.Titles[idx], nil
}

func (s *FakeSession) URL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, nil
}

func (s *FakeSession) WaitURL(ctx context.Context, re *regexp.Regexp, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waitURLs++
	if s.page == nil || s.page.ChallengeStuck || !re.MatchString(s.url) {
		return context.DeadlineExceeded
	}
	s.titleIdx++
	return nil
}

func (s *FakeSession) Subscribe(ctx context.Context, h ResponseHandler) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = h
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.handlers, id)
		s.mu.Unlock()
	}
}

func (s *FakeSession) ScrollThrough(ctx context.Context, selector string) (int, error) {
	s.mu.Lock()
	page := s.page
	pass := s.scrolls
	s.scrolls++
	s.mu.Unlock()

	if page == nil {
		return 0, nil
	}
	if pass < len(page.ScrollBatches) {
		s.deliver(page.ScrollBatches[pass])
	}
	return page.Images, nil
}

// Scrolls returns how many scroll passes ran
func (s *FakeSession) Scrolls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scrolls
}

func (s *FakeSession) WaitIdle(ctx context.Context, settle, timeout time.Duration) error {
	return ctx.Err()
}

func (s *FakeSession) UserAgent(ctx context.Context) (string, error) {
	if s.opts.UserAgent != "" {
		return s.opts.UserAgent, nil
	}
	return s.engine.Agent, nil
}

func (s *FakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called
func (s *FakeSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// WaitURLCalls returns how many times WaitURL was called
func (s *FakeSession) WaitURLCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitURLs
}

// Navigations returns the load condition of every Navigate call
func (s *FakeSession) Navigations() []LoadCondition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LoadCondition(nil), s.navigation...)
}

// Headless reports how the session was opened
func (s *FakeSession) Headless() bool {
	return s.opts.Headless
}
