package session

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pagegrab/pkg/browser"
	"pagegrab/pkg/config"
	"pagegrab/pkg/cookies"
	errs "pagegrab/pkg/errors"
	"pagegrab/pkg/logger"
)

const target = "https://site.example/gallery/42"

func newBootstrapper(engine browser.Engine, maxWaits int) (*Bootstrapper, *bytes.Buffer, *logger.TestLogger) {
	cfg := config.DefaultConfig()
	cfg.Browser.ChallengeMaxAttempts = maxWaits
	cfg.Browser.ChallengeTimeout = 10 * time.Millisecond

	tl := logger.NewTestLogger()
	b := NewBootstrapper(engine, cfg.Site, cfg.Browser, tl)
	guide := &bytes.Buffer{}
	b.Guide = guide
	return b, guide, tl
}

var clearance = cookies.Cookie{Name: "cf_clearance", Value: "ok", Domain: ".site.example", Path: "/", Expires: 1893456000}

func TestBootstrapWithoutChallenge(t *testing.T) {
	saved := cookies.Set{{Name: "sid", Value: "old", Domain: "site.example", Path: "/"}}
	engine := browser.NewFakeEngine(map[string]*browser.FakePage{
		target: {Titles: []string{"Gallery 42"}},
	})
	b, guide, _ := newBootstrapper(engine, 3)

	got, err := b.Bootstrap(context.Background(), target, saved)
	require.NoError(t, err)

	assert.True(t, saved.Equal(got))
	assert.Empty(t, guide.String())

	sessions := engine.Sessions()
	require.Len(t, sessions, 1)
	assert.False(t, sessions[0].Headless(), "bootstrap must be interactive")
	assert.True(t, sessions[0].Closed())
	assert.Equal(t, 0, sessions[0].WaitURLCalls())
}

func TestBootstrapWaitsOutChallenge(t *testing.T) {
	engine := browser.NewFakeEngine(map[string]*browser.FakePage{
		target: {
			Titles:      []string{"Just a moment...", "Just a moment...", "Gallery 42"},
			SiteCookies: cookies.Set{clearance},
		},
	})
	b, guide, _ := newBootstrapper(engine, 5)

	got, err := b.Bootstrap(context.Background(), target, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"cf_clearance"}, got.Names())
	assert.Equal(t, 2, engine.Sessions()[0].WaitURLCalls())
	assert.Equal(t, 1, bytes.Count(guide.Bytes(), []byte("bot check")), "guidance is shown once")
}

func TestBootstrapChallengeUnresolved(t *testing.T) {
	engine := browser.NewFakeEngine(map[string]*browser.FakePage{
		target: {
			Titles:         []string{"Just a moment..."},
			ChallengeStuck: true,
			SiteCookies:    cookies.Set{clearance},
		},
	})
	b, _, _ := newBootstrapper(engine, 3)

	got, err := b.Bootstrap(context.Background(), target, nil)
	require.Error(t, err)

	assert.ErrorIs(t, err, errs.ErrChallengeUnresolved)
	assert.True(t, errs.IsFatal(err))
	assert.Equal(t, 3, engine.Sessions()[0].WaitURLCalls())
	assert.Len(t, got, 1, "cookies are still harvested on failure")
	assert.True(t, engine.Sessions()[0].Closed())
}

func TestBootstrapNavigationFailure(t *testing.T) {
	saved := cookies.Set{{Name: "sid", Value: "old", Domain: "site.example", Path: "/"}}
	engine := browser.NewFakeEngine(map[string]*browser.FakePage{
		target: {NavigateErr: errors.New("net::ERR_TIMED_OUT")},
	})
	b, _, _ := newBootstrapper(engine, 3)

	got, err := b.Bootstrap(context.Background(), target, saved)
	require.Error(t, err)

	assert.ErrorIs(t, err, errs.ErrNavigation)
	assert.Contains(t, err.Error(), "ERR_TIMED_OUT")
	assert.True(t, saved.Equal(got))
	assert.True(t, engine.Sessions()[0].Closed())
}

func TestBootstrapOpenFailure(t *testing.T) {
	engine := browser.NewFakeEngine(nil)
	engine.OpenErr = errors.New("no chromium")
	b, _, _ := newBootstrapper(engine, 3)

	got, err := b.Bootstrap(context.Background(), target, nil)
	assert.ErrorIs(t, err, errs.ErrNavigation)
	assert.Nil(t, got)
}

func TestBootstrapCancelled(t *testing.T) {
	engine := browser.NewFakeEngine(map[string]*browser.FakePage{
		target: {Titles: []string{"Just a moment..."}, ChallengeStuck: true},
	})
	b, _, _ := newBootstrapper(engine, 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Bootstrap(ctx, target, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, engine.Sessions()[0].Closed())
}

func TestDomainPattern(t *testing.T) {
	re, err := DomainPattern("https://www.site.example/gallery/1", "")
	require.NoError(t, err)

	assert.True(t, re.MatchString("https://site.example/gallery/1"))
	assert.True(t, re.MatchString("https://cdn.site.example/x"))
	assert.True(t, re.MatchString("https://site.example"))
	assert.False(t, re.MatchString("https://site.example.evil/x"))
	assert.False(t, re.MatchString("https://challenges.other.example/site.example"))

	re, err = DomainPattern(target, `example\.org`)
	require.NoError(t, err)
	assert.True(t, re.MatchString("https://example.org/"))

	_, err = DomainPattern("not a url", "")
	assert.Error(t, err)
}
