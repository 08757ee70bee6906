package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocolly/colly"
)

// StaticRenderer fetches raw HTML without executing scripts. It honours
// robots.txt.
type StaticRenderer struct {
	timeout   time.Duration
	userAgent string
}

func NewStaticRenderer(timeout time.Duration) *StaticRenderer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &StaticRenderer{timeout: timeout, userAgent: CrawlerUserAgent}
}

func (s *StaticRenderer) Render(ctx context.Context, url string) (*Rendered, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := colly.NewCollector(colly.UserAgent(s.userAgent))
	c.IgnoreRobotsTxt = false
	c.SetRequestTimeout(s.timeout)

	profile := Profile(StrategyCrawler)
	c.OnRequest(func(r *colly.Request) {
		for k, v := range profile.Headers() {
			r.Headers.Set(k, v)
		}
	})

	var out *Rendered
	var fetchErr error
	c.OnResponse(func(r *colly.Response) {
		out = &Rendered{URL: r.Request.URL.String(), HTML: string(r.Body), Status: r.StatusCode}
	})
	c.OnHTML("title", func(e *colly.HTMLElement) {
		if out != nil && out.Title == "" {
			out.Title = e.Text
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= 400 {
			fetchErr = &HTTPStatusError{URL: url, Status: r.StatusCode}
			return
		}
		fetchErr = err
	})

	if err := c.Visit(url); err != nil {
		if errors.Is(err, colly.ErrRobotsTxtBlocked) {
			return nil, fmt.Errorf("fetch %s: disallowed by robots.txt", url)
		}
		if fetchErr != nil {
			return nil, fetchErr
		}
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if out == nil {
		return nil, fmt.Errorf("fetch %s: empty response", url)
	}
	return out, nil
}
