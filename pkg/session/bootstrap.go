package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"pagegrab/pkg/browser"
	"pagegrab/pkg/config"
	"pagegrab/pkg/cookies"
	errs "pagegrab/pkg/errors"
	"pagegrab/pkg/logger"
)

// Bootstrapper validates a cookie set against the site's bot challenge in an
// interactive browser window
type Bootstrapper struct {
	engine browser.Engine
	site   config.SiteConfig
	cfg    config.BrowserConfig
	log    logger.Logger

	// Guide receives operator instructions the first time a challenge is seen
	Guide io.Writer
}

// NewBootstrapper creates a bootstrapper
func NewBootstrapper(engine browser.Engine, site config.SiteConfig, cfg config.BrowserConfig, log logger.Logger) *Bootstrapper {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Bootstrapper{
		engine: engine,
		site:   site,
		cfg:    cfg,
		log:    log.WithField("component", "session"),
		Guide:  os.Stderr,
	}
}

// Bootstrap opens a visible browser with saved injected, loads targetURL and
// waits out the challenge if one is shown. The cookies harvested from the
// browser are returned on every path, including failures, unless harvesting
// itself failed. Failures are navigation or challenge_unresolved errors.
func (b *Bootstrapper) Bootstrap(ctx context.Context, targetURL string, saved cookies.Set) (harvested cookies.Set, err error) {
	domain, err := DomainPattern(targetURL, b.site.DomainPattern)
	if err != nil {
		return nil, errs.New(errs.KindNavigation, "bootstrap", err)
	}

	sess, err := b.engine.Open(ctx, browser.OpenOptions{Headless: false, UserAgent: b.cfg.UserAgent})
	if err != nil {
		return nil, &errs.Error{Kind: errs.KindNavigation, Op: "bootstrap", URL: targetURL, Err: fmt.Errorf("open browser: %w", err)}
	}

	defer func() {
		// Harvest even when ctx is done so a partial session is not lost
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		set, cerr := sess.Cookies(hctx)
		if cerr != nil {
			b.log.WithError(cerr).Warn("Failed to harvest cookies")
		} else {
			harvested = set
		}
		if cerr := sess.Close(); cerr != nil {
			b.log.WithError(cerr).Debug("Failed to close bootstrap browser")
		}
	}()

	if len(saved) > 0 {
		if err := sess.SetCookies(ctx, saved); err != nil {
			b.log.WithError(err).Warn("Failed to inject saved cookies")
		}
	}

	b.log.InfoWithFields("Opening target page", map[string]interface{}{
		"url":           targetURL,
		"saved_cookies": len(saved),
	})
	if err := sess.Navigate(ctx, targetURL, browser.LoadComplete, b.cfg.NavigationTimeout); err != nil {
		return nil, &errs.Error{Kind: errs.KindNavigation, Op: "bootstrap", URL: targetURL, Err: err}
	}

	waits := 0
	for {
		title, err := sess.Title(ctx)
		if err != nil {
			return nil, &errs.Error{Kind: errs.KindNavigation, Op: "bootstrap", URL: targetURL, Err: fmt.Errorf("read title: %w", err)}
		}
		if title != b.site.ChallengeTitle {
			b.log.InfoWithFields("Session ready", map[string]interface{}{
				"title":          title,
				"challenge_wait": waits,
			})
			return nil, nil
		}

		if waits >= b.cfg.ChallengeMaxAttempts {
			return nil, &errs.Error{
				Kind: errs.KindChallengeUnresolved,
				Op:   "bootstrap",
				URL:  targetURL,
				Err:  fmt.Errorf("challenge still shown after %d waits", waits),
			}
		}
		if waits == 0 {
			ShowChallengeGuide(b.Guide, targetURL, b.cfg.ChallengeTimeout, b.cfg.ChallengeMaxAttempts)
		}
		waits++

		if err := sess.WaitURL(ctx, domain, b.cfg.ChallengeTimeout); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, &errs.Error{Kind: errs.KindChallengeUnresolved, Op: "bootstrap", URL: targetURL, Err: ctxErr}
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				b.log.WithError(err).Debug("Challenge wait failed")
			}
		}
		b.log.DebugWithFields("Challenge wait finished", map[string]interface{}{
			"attempt":      waits,
			"max_attempts": b.cfg.ChallengeMaxAttempts,
		})
	}
}

// DomainPattern compiles configured, or when empty a pattern matching the
// target host and its subdomains
func DomainPattern(targetURL, configured string) (*regexp.Regexp, error) {
	if configured != "" {
		re, err := regexp.Compile(configured)
		if err != nil {
			return nil, fmt.Errorf("invalid domain pattern: %w", err)
		}
		return re, nil
	}

	u, err := url.Parse(targetURL)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("invalid target url %q", targetURL)
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	return regexp.Compile(`^https?://([^/]+\.)?` + regexp.QuoteMeta(host) + `(?::\d+)?(?:[/?#]|$)`)
}
