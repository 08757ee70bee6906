package discover

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rssBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Good News</title>
    <item><title>One</title><link>https://news.test/one</link></item>
    <item><title>Two</title><guid>https://news.test/two</guid></item>
    <item><title>No link</title><guid>tag:news.test,2024:3</guid></item>
    <item><title>Four</title><link>https://news.test/four</link></item>
  </channel>
</rss>`

type stubFeeds struct {
	links map[string][]string
	fail  map[string]bool
}

func (s stubFeeds) Links(_ context.Context, feedURL string, limit int) ([]string, error) {
	if s.fail[feedURL] {
		return nil, errors.New("boom")
	}
	return Cap(s.links[feedURL], limit), nil
}

type stubSeeds struct{ calls []string }

func (s *stubSeeds) Expand(_ context.Context, seed string, limit int) ([]string, error) {
	s.calls = append(s.calls, seed)
	return Cap([]string{seed + "/a", seed + "/b", seed + "/c"}, limit), nil
}

func TestDiscoverOrderDedupeCap(t *testing.T) {
	src := Sources{Feeds: []string{"f1", "f2", "f3"}, Seeds: []string{"https://s.test", "https://a.test/1"}}
	feeds := stubFeeds{
		links: map[string][]string{
			"f1": {"https://a.test/1", "https://a.test/2"},
			"f3": {"https://a.test/2", "https://a.test/3"},
		},
		fail: map[string]bool{"f2": true},
	}
	svc := NewService(src, feeds, nil)

	opts := DefaultOptions()
	got := svc.Discover(context.Background(), opts)
	assert.Equal(t, []string{"https://a.test/1", "https://a.test/2", "https://a.test/3", "https://s.test"}, got)

	opts.MaxTotal = 2
	assert.Equal(t, []string{"https://a.test/1", "https://a.test/2"}, svc.Discover(context.Background(), opts))
}

func TestDiscoverSourceToggles(t *testing.T) {
	src := Sources{Feeds: []string{"f1"}, Seeds: []string{"https://s.test"}}
	feeds := stubFeeds{links: map[string][]string{"f1": {"https://a.test/1"}}}
	svc := NewService(src, feeds, nil)

	assert.Equal(t, []string{"https://s.test"}, svc.Discover(context.Background(), Options{UseSeeds: true}))
	assert.Equal(t, []string{"https://a.test/1"}, svc.Discover(context.Background(), Options{UseFeeds: true, MaxPerFeed: 10}))
	assert.Empty(t, svc.Discover(context.Background(), Options{}))
}

func TestDiscoverExpandsSeeds(t *testing.T) {
	seeds := &stubSeeds{}
	svc := NewService(Sources{Seeds: []string{"https://s.test"}}, stubFeeds{}, seeds)

	opts := DefaultOptions()
	opts.ExpandSeeds = true
	opts.MaxPerSeed = 2
	got := svc.Discover(context.Background(), opts)

	assert.Equal(t, []string{"https://s.test/a", "https://s.test/b"}, got)
	assert.Equal(t, []string{"https://s.test"}, seeds.calls)
}

func TestFeedSourceParse(t *testing.T) {
	fs := NewFeedSource(time.Second)

	links, err := fs.ParseString(rssBody, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://news.test/one", "https://news.test/two", "https://news.test/four"}, links)

	links, err = fs.ParseString(rssBody, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://news.test/one", "https://news.test/two"}, links)

	_, err = fs.ParseString("not a feed", 10)
	assert.Error(t, err)
}

func TestFeedSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = fmt.Fprint(w, rssBody)
	}))
	defer srv.Close()

	fs := NewFeedSource(5 * time.Second)
	links, err := fs.Links(context.Background(), srv.URL+"/feed", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://news.test/one"}, links)

	_, err = fs.Links(context.Background(), srv.URL+"/missing", 1)
	assert.Error(t, err)
}

func TestSeedExpander(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			_, _ = fmt.Fprint(w, `<html><body>
				<a href="/">home</a>
				<a href="/story-1#top">one</a>
				<a href="/story-1">one again</a>
				<a href="https://elsewhere.test/x">external</a>
				<a href="/story-2">two</a>
				<a href="/story-3">three</a>
			</body></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	links, err := NewSeedExpander(5*time.Second).Expand(context.Background(), srv.URL+"/", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/story-1", srv.URL + "/story-2"}, links)
}

func TestDomainsMatch(t *testing.T) {
	assert.True(t, domainsMatch("www.a.test", "a.test", false))
	assert.False(t, domainsMatch("blog.a.test", "a.test", false))
	assert.True(t, domainsMatch("blog.a.test", "a.test", true))
}

func TestLoadSources(t *testing.T) {
	def, err := LoadSources("")
	require.NoError(t, err)
	assert.Len(t, def.Feeds, 12)
	assert.Len(t, def.Seeds, 8)

	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte("feeds:\n  - https://f.test/rss\nseeds:\n  - https://s.test\n"), 0o644))
	s, err := LoadSources(path)
	require.NoError(t, err)
	assert.Equal(t, Sources{Feeds: []string{"https://f.test/rss"}, Seeds: []string{"https://s.test"}}, s)

	_, err = LoadSources(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestReadAndSaveURLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("# list\nhttps://a.test\n\n  http://b.test  \nftp://c.test\nnot a url\n"), 0o644))

	urls, err := ReadURLFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.test", "http://b.test"}, urls)

	out := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, SaveURLFile(out, urls))
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "https://a.test\nhttp://b.test", string(b))
}
