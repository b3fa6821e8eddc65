package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"pagegrab/pkg/cookies"
	"pagegrab/pkg/logger"
)

// RodEngine launches Chromium through go-rod, one browser per Open
type RodEngine struct {
	// Bin overrides the browser executable. Empty uses the system browser
	// or lets rod download one.
	Bin    string
	Logger logger.Logger
}

// NewRodEngine creates an engine using bin (may be empty)
func NewRodEngine(bin string, log logger.Logger) *RodEngine {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &RodEngine{Bin: bin, Logger: log}
}

// Open launches a browser and returns its first page
func (e *RodEngine) Open(ctx context.Context, opts OpenOptions) (Session, error) {
	l := launcher.New().Context(ctx).Headless(opts.Headless)

	bin := e.Bin
	if bin == "" {
		if path, found := launcher.LookPath(); found {
			bin = path
		}
	}
	if bin != "" {
		l = l.Bin(bin)
	}
	if !opts.Headless {
		l = l.Set("start-maximized")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("open page: %w", err)
	}

	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			e.Logger.WithError(err).Warn("Failed to override user agent")
		}
	}

	e.Logger.DebugWithFields("Browser launched", map[string]interface{}{
		"headless": opts.Headless,
		"bin":      bin,
	})

	return &rodSession{
		launcher:  l,
		browser:   b,
		page:      page,
		userAgent: opts.UserAgent,
		log:       e.Logger,
	}, nil
}

type rodSession struct {
	launcher  *launcher.Launcher
	browser   *rod.Browser
	page      *rod.Page
	userAgent string
	log       logger.Logger

	closeOnce sync.Once
}

func (s *rodSession) SetCookies(ctx context.Context, set cookies.Set) error {
	if len(set) == 0 {
		return nil
	}
	params := make([]*proto.NetworkCookieParam, 0, len(set))
	for _, c := range set {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  proto.TimeSinceEpoch(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		})
	}
	return s.browser.Context(ctx).SetCookies(params)
}

func (s *rodSession) Cookies(ctx context.Context) (cookies.Set, error) {
	raw, err := s.browser.Context(ctx).GetCookies()
	if err != nil {
		return nil, err
	}
	set := make(cookies.Set, 0, len(raw))
	for _, c := range raw {
		expires := float64(c.Expires)
		if c.Session {
			expires = -1
		}
		set = append(set, cookies.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return set, nil
}

func lifecycleEvent(cond LoadCondition) proto.PageLifecycleEventName {
	switch cond {
	case LoadDOMContent:
		return proto.PageLifecycleEventNameDOMContentLoaded
	case LoadNetworkIdle:
		return proto.PageLifecycleEventNameNetworkIdle
	default:
		return proto.PageLifecycleEventNameLoad
	}
}

func (s *rodSession) Navigate(ctx context.Context, url string, cond LoadCondition, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := s.page.Context(tctx)
	wait := p.WaitNavigation(lifecycleEvent(cond))
	if err := p.Navigate(url); err != nil {
		return err
	}
	wait()

	if err := tctx.Err(); err != nil {
		return fmt.Errorf("waiting for %s: %w", cond, err)
	}
	return nil
}

func (s *rodSession) info(ctx context.Context) (*proto.TargetTargetInfo, error) {
	return s.page.Context(ctx).Info()
}

func (s *rodSession) Title(ctx context.Context) (string, error) {
	info, err := s.info(ctx)
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (s *rodSession) URL(ctx context.Context) (string, error) {
	info, err := s.info(ctx)
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (s *rodSession) WaitURL(ctx context.Context, re *regexp.Regexp, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := s.page.Context(tctx)
	matched := false
	p.EachEvent(func(e *proto.PageFrameNavigated) bool {
		if e.Frame != nil && e.Frame.ParentID == "" && re.MatchString(e.Frame.URL) {
			matched = true
			return true
		}
		return false
	})()

	if !matched {
		if err := tctx.Err(); err != nil {
			return err
		}
		return context.DeadlineExceeded
	}

	// The title is read next, so let the new document finish loading
	if err := p.WaitLoad(); err != nil {
		s.log.WithError(err).Debug("Page load wait after navigation failed")
	}
	return nil
}

func (s *rodSession) Subscribe(ctx context.Context, h ResponseHandler) func() {
	sctx, cancel := context.WithCancel(ctx)
	p := s.page.Context(sctx)

	if err := (proto.NetworkEnable{}).Call(p); err != nil {
		s.log.WithError(err).Warn("Failed to enable network events")
	}

	// Bodies are only readable once loading finished, so responses are held
	// until then. Callbacks run on a single goroutine.
	pending := make(map[proto.NetworkRequestID]*proto.NetworkResponse)
	wait := p.EachEvent(
		func(e *proto.NetworkResponseReceived) {
			if e.Response != nil {
				pending[e.RequestID] = e.Response
			}
		},
		func(e *proto.NetworkLoadingFinished) {
			resp, ok := pending[e.RequestID]
			if !ok {
				return
			}
			delete(pending, e.RequestID)
			h(&rodResponse{page: s.page, id: e.RequestID, url: resp.URL, status: resp.Status})
		},
		func(e *proto.NetworkLoadingFailed) {
			delete(pending, e.RequestID)
		},
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		wait()
	}()

	return func() {
		cancel()
		<-done
	}
}

func (s *rodSession) ScrollThrough(ctx context.Context, selector string) (int, error) {
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return 0, err
	}
	for _, el := range els {
		if err := ctx.Err(); err != nil {
			return len(els), err
		}
		// Elements can detach while lazy content swaps in
		if err := el.ScrollIntoView(); err != nil {
			s.log.WithError(err).Debug("Scroll into view failed")
		}
	}
	return len(els), nil
}

func (s *rodSession) WaitIdle(ctx context.Context, settle, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.page.Context(tctx).WaitRequestIdle(settle, nil, nil, nil)()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tctx.Err(); err != nil {
		return fmt.Errorf("network did not go idle: %w", err)
	}
	return nil
}

func (s *rodSession) UserAgent(ctx context.Context) (string, error) {
	if s.userAgent != "" {
		return s.userAgent, nil
	}
	res, err := proto.BrowserGetVersion{}.Call(s.browser.Context(ctx))
	if err != nil {
		return "", err
	}
	return strings.Replace(res.UserAgent, "HeadlessChrome", "Chrome", 1), nil
}

// Close closes the browser and kills the process. Safe to call more than once.
func (s *rodSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.browser.Close()
		s.launcher.Kill()
		s.launcher.Cleanup()
	})
	return err
}

type rodResponse struct {
	page   *rod.Page
	id     proto.NetworkRequestID
	url    string
	status int
}

func (r *rodResponse) URL() string { return r.url }
func (r *rodResponse) Status() int { return r.status }

func (r *rodResponse) Body(ctx context.Context) ([]byte, error) {
	res, err := proto.NetworkGetResponseBody{RequestID: r.id}.Call(r.page.Context(ctx))
	if err != nil {
		return nil, err
	}
	if res.Base64Encoded {
		return base64.StdEncoding.DecodeString(res.Body)
	}
	return []byte(res.Body), nil
}
