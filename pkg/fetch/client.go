package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"pagegrab/pkg/cookies"
	errs "pagegrab/pkg/errors"
	"pagegrab/pkg/logger"
)

// DefaultUserAgent is sent until the browser's own agent is known
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Client performs cookie-bearing GET requests on behalf of the page session
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	logger     logger.Logger
}

// NewClient creates a client with its own cookie jar. timeout bounds a
// single request including reading the body.
func NewClient(timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	jar, _ := cookiejar.New(nil)
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		headers: map[string]string{
			"User-Agent":      DefaultUserAgent,
			"Accept":          "image/avif,image/webp,image/apng,image/*,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
			"Sec-Fetch-Dest":  "image",
			"Sec-Fetch-Mode":  "no-cors",
			"Sec-Fetch-Site":  "same-site",
		},
		logger: log.WithField("component", "fetch"),
	}
}

// SetUserAgent matches requests to the browser that earned the cookies
func (c *Client) SetUserAgent(ua string) {
	if ua != "" {
		c.headers["User-Agent"] = ua
	}
}

// SetReferer sets the page the assets are requested from
func (c *Client) SetReferer(ref string) {
	c.headers["Referer"] = ref
}

// SetCookies loads set into the jar. Cookies are scoped by their own domain
// so assets served from subdomains of the target still receive them.
func (c *Client) SetCookies(target string, set cookies.Set) error {
	base, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid target url: %w", err)
	}

	byHost := make(map[string][]*http.Cookie)
	for i, hc := range set.ToHTTP() {
		host := strings.TrimPrefix(set[i].Domain, ".")
		if host == "" {
			host = base.Hostname()
		}
		byHost[host] = append(byHost[host], hc)
	}

	for host, list := range byHost {
		u := &url.URL{Scheme: base.Scheme, Host: host, Path: "/"}
		c.httpClient.Jar.SetCookies(u, list)
	}

	c.logger.DebugWithFields("Cookie jar seeded", map[string]interface{}{
		"cookies": len(set),
		"hosts":   len(byHost),
	})
	return nil
}

// Open requests rawURL and returns its body. Transport failures, including
// failures while the body is read, are download_transport errors; any
// non-2xx status is a download_status error.
func (c *Client) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.Transport(rawURL, fmt.Errorf("failed to create request: %w", err))
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.logger.DebugWithFields("HTTP request failed", map[string]interface{}{
			"url":      rawURL,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Transport(rawURL, err)
	}
	logger.LogResponse(c.logger, req.Method, rawURL, resp.StatusCode, duration)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		resp.Body.Close()
		return nil, errs.Status(rawURL, resp.StatusCode)
	}

	return &transportBody{ReadCloser: resp.Body, url: rawURL}, nil
}

// transportBody tags read failures as transport errors
type transportBody struct {
	io.ReadCloser
	url string
}

func (b *transportBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, errs.Transport(b.url, err)
	}
	return n, err
}
