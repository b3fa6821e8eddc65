package browser

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pagegrab/pkg/cookies"
)

func TestLoadConditionMapping(t *testing.T) {
	assert.Equal(t, "networkidle", LoadNetworkIdle.String())
	assert.Equal(t, proto.PageLifecycleEventNameNetworkIdle, lifecycleEvent(LoadNetworkIdle))
	assert.Equal(t, proto.PageLifecycleEventNameDOMContentLoaded, lifecycleEvent(LoadDOMContent))
	assert.Equal(t, proto.PageLifecycleEventNameLoad, lifecycleEvent(LoadComplete))
}

func TestIsSuccess(t *testing.T) {
	assert.True(t, IsSuccess(200))
	assert.True(t, IsSuccess(204))
	assert.False(t, IsSuccess(304))
	assert.False(t, IsSuccess(503))
}

func TestFakeSessionDeliversToSubscribers(t *testing.T) {
	ctx := context.Background()
	engine := NewFakeEngine(map[string]*FakePage{
		"https://site.example/g/1": {
			Titles:    []string{"Gallery"},
			Responses: []FakeResponse{{URL: "https://site.example/g/1", Status: 200, Body: []byte("ok")}},
			ScrollBatches: [][]FakeResponse{
				{{URL: "https://site.example/upload-a-1.jpg", Status: 200}},
			},
			Images:      4,
			SiteCookies: cookies.Set{{Name: "sid", Value: "1", Domain: "site.example", Path: "/"}},
		},
	})

	s, err := engine.Open(ctx, OpenOptions{Headless: true})
	require.NoError(t, err)

	var seen []string
	stop := s.Subscribe(ctx, func(r Response) { seen = append(seen, r.URL()) })

	require.NoError(t, s.Navigate(ctx, "https://site.example/g/1", LoadNetworkIdle, time.Second))
	n, err := s.ScrollThrough(ctx, "img")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	stop()
	_, _ = s.ScrollThrough(ctx, "img")

	assert.Equal(t, []string{"https://site.example/g/1", "https://site.example/upload-a-1.jpg"}, seen)

	jar, err := s.Cookies(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sid"}, jar.Names())

	fs := engine.Sessions()[0]
	assert.Equal(t, []LoadCondition{LoadNetworkIdle}, fs.Navigations())
	assert.True(t, fs.Headless())
}

func TestFakeSessionChallenge(t *testing.T) {
	ctx := context.Background()
	engine := NewFakeEngine(map[string]*FakePage{
		"https://site.example/": {Titles: []string{"Just a moment...", "Home"}},
	})
	s, err := engine.Open(ctx, OpenOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Navigate(ctx, "https://site.example/", LoadComplete, time.Second))

	title, _ := s.Title(ctx)
	assert.Equal(t, "Just a moment...", title)

	require.NoError(t, s.WaitURL(ctx, regexp.MustCompile(`site\.example`), time.Second))
	title, _ = s.Title(ctx)
	assert.Equal(t, "Home", title)

	assert.ErrorIs(t, s.WaitURL(ctx, regexp.MustCompile(`other\.example`), time.Second), context.DeadlineExceeded)
}
