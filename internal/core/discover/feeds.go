package discover

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedSource pulls item links from RSS and Atom feeds.
type FeedSource struct {
	parser  *gofeed.Parser
	timeout time.Duration
}

func NewFeedSource(timeout time.Duration) *FeedSource {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	p := gofeed.NewParser()
	p.UserAgent = "Mozilla/5.0 (compatible; ContentScoreBot/1.0)"
	return &FeedSource{parser: p, timeout: timeout}
}

// Links returns up to limit item links from the feed in feed order.
func (f *FeedSource) Links(ctx context.Context, feedURL string, limit int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}
	return itemLinks(feed, limit), nil
}

// ParseString extracts item links from a feed body.
func (f *FeedSource) ParseString(body string, limit int) ([]string, error) {
	feed, err := f.parser.ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return itemLinks(feed, limit), nil
}

// itemLinks considers only the first limit items; items without an http
// link or GUID are skipped.
func itemLinks(feed *gofeed.Feed, limit int) []string {
	items := feed.Items
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch {
		case strings.HasPrefix(it.Link, "http"):
			out = append(out, it.Link)
		case strings.HasPrefix(it.GUID, "http"):
			out = append(out, it.GUID)
		}
	}
	return out
}
