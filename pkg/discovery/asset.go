package discovery

import (
	"fmt"
	"regexp"
	"sync"

	"pagegrab/pkg/browser"
	"pagegrab/pkg/config"
	errs "pagegrab/pkg/errors"
	"pagegrab/pkg/logger"
)

// Descriptor identifies one asset and where it lands on disk
type Descriptor struct {
	Folder string
	Name   string
	URL    string
}

// Matcher recognises asset URLs and extracts their descriptor
type Matcher struct {
	Filter  *regexp.Regexp
	Pattern *regexp.Regexp
}

// NewMatcher compiles the site's asset expressions
func NewMatcher(site config.SiteConfig) (*Matcher, error) {
	filter, err := regexp.Compile(site.AssetFilter)
	if err != nil {
		return nil, fmt.Errorf("invalid asset filter: %w", err)
	}
	pattern, err := regexp.Compile(site.AssetPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid asset pattern: %w", err)
	}
	if pattern.NumSubexp() != 2 {
		return nil, fmt.Errorf("asset pattern needs 2 capture groups, has %d", pattern.NumSubexp())
	}
	return &Matcher{Filter: filter, Pattern: pattern}, nil
}

// Matches reports whether url looks like an asset
func (m *Matcher) Matches(url string) bool {
	return m.Filter.MatchString(url)
}

// Describe extracts folder and name from url
func (m *Matcher) Describe(url string) (Descriptor, error) {
	sub := m.Pattern.FindStringSubmatch(url)
	if sub == nil || sub[1] == "" || sub[2] == "" {
		return Descriptor{}, &errs.Error{
			Kind: errs.KindMalformedAssetURL,
			Op:   "describe",
			URL:  url,
			Err:  fmt.Errorf("url does not match %s", m.Pattern),
		}
	}
	return Descriptor{Folder: sub[1], Name: sub[2], URL: url}, nil
}

// Set is the discovery set of URLs already queued
type Set struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

// NewSet creates an empty set
func NewSet() *Set {
	return &Set{urls: make(map[string]struct{})}
}

// Add inserts url and reports whether it was absent
func (s *Set) Add(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.urls[url]; ok {
		return false
	}
	s.urls[url] = struct{}{}
	return true
}

// Contains reports membership
func (s *Set) Contains(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.urls[url]
	return ok
}

// Len returns the number of queued URLs
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.urls)
}

// Enqueuer accepts discovered assets
type Enqueuer interface {
	Enqueue(d Descriptor)
}

// EnqueueFunc adapts a function to Enqueuer
type EnqueueFunc func(d Descriptor)

func (f EnqueueFunc) Enqueue(d Descriptor) { f(d) }

// AssetDiscoverer turns asset responses into download tasks
type AssetDiscoverer struct {
	matcher *Matcher
	seen    *Set
	queue   Enqueuer
	log     logger.Logger

	mu        sync.Mutex
	malformed int
}

// NewAssetDiscoverer creates a discoverer recording into seen
func NewAssetDiscoverer(matcher *Matcher, seen *Set, queue Enqueuer, log logger.Logger) *AssetDiscoverer {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &AssetDiscoverer{
		matcher: matcher,
		seen:    seen,
		queue:   queue,
		log:     log.WithField("component", "discoverer"),
	}
}

// Handle inspects one response
func (d *AssetDiscoverer) Handle(r browser.Response) {
	url := r.URL()
	if d.seen.Contains(url) {
		d.log.DebugWithFields("Asset already queued", map[string]interface{}{"url": url})
		return
	}
	if !browser.IsSuccess(r.Status()) || !d.matcher.Matches(url) {
		return
	}

	// Insert before enqueueing so a concurrent duplicate sees it as present
	if !d.seen.Add(url) {
		d.log.DebugWithFields("Asset already queued", map[string]interface{}{"url": url})
		return
	}

	desc, err := d.matcher.Describe(url)
	if err != nil {
		d.mu.Lock()
		d.malformed++
		d.mu.Unlock()
		d.log.WithError(err).Error("Skipping malformed asset url")
		return
	}

	d.log.DebugWithFields("Asset discovered", map[string]interface{}{
		"folder": desc.Folder,
		"name":   desc.Name,
	})
	d.queue.Enqueue(desc)
}

// Malformed returns how many filtered URLs failed to parse
func (d *AssetDiscoverer) Malformed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.malformed
}

// Fanout delivers every response to each handler in order
func Fanout(handlers ...browser.ResponseHandler) browser.ResponseHandler {
	return func(r browser.Response) {
		for _, h := range handlers {
			h(r)
		}
	}
}
