package browser

import (
	"context"
	"regexp"
	"time"

	"pagegrab/pkg/cookies"
)

// LoadCondition is the lifecycle point Navigate waits for
type LoadCondition int

const (
	LoadDOMContent LoadCondition = iota
	LoadComplete
	LoadNetworkIdle
)

func (c LoadCondition) String() string {
	switch c {
	case LoadDOMContent:
		return "domcontentloaded"
	case LoadComplete:
		return "load"
	case LoadNetworkIdle:
		return "networkidle"
	default:
		return "unknown"
	}
}

// Response is one finished network response observed by a page
type Response interface {
	URL() string
	Status() int
	// Body fetches the response body on demand
	Body(ctx context.Context) ([]byte, error)
}

// ResponseHandler receives responses in transport order
type ResponseHandler func(Response)

// OpenOptions configures a new browsing context
type OpenOptions struct {
	Headless  bool
	UserAgent string
}

// Engine opens browsing contexts
type Engine interface {
	Open(ctx context.Context, opts OpenOptions) (Session, error)
}

// Session is a single page in its own browsing context
type Session interface {
	SetCookies(ctx context.Context, set cookies.Set) error
	Cookies(ctx context.Context) (cookies.Set, error)

	Navigate(ctx context.Context, url string, cond LoadCondition, timeout time.Duration) error
	Title(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	// WaitURL blocks until the page navigates to a URL matching re
	WaitURL(ctx context.Context, re *regexp.Regexp, timeout time.Duration) error

	// Subscribe delivers every finished response to h until stop is called.
	// stop blocks until no further calls to h can happen.
	Subscribe(ctx context.Context, h ResponseHandler) (stop func())

	// ScrollThrough scrolls every element matching selector into view and
	// returns how many there were
	ScrollThrough(ctx context.Context, selector string) (int, error)
	// WaitIdle waits until no request has been in flight for settle
	WaitIdle(ctx context.Context, settle, timeout time.Duration) error

	UserAgent(ctx context.Context) (string, error)
	Close() error
}

// IsSuccess reports whether status is 2xx
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
