package discover

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly"
)

// SeedExpander collects same-site article links from a seed page.
type SeedExpander struct {
	userAgent string
	timeout   time.Duration
}

func NewSeedExpander(timeout time.Duration) *SeedExpander {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &SeedExpander{userAgent: "Mozilla/5.0 (compatible; ContentScoreBot/1.0)", timeout: timeout}
}

// Expand visits seed once and returns up to limit distinct links on the same
// domain (www. ignored), in document order. The seed itself is excluded.
func (s *SeedExpander) Expand(ctx context.Context, seed string, limit int) ([]string, error) {
	cleaned := cleanURL(seed)
	dom := extractDomain(cleaned)
	self := normalize(cleaned)

	c := colly.NewCollector(colly.UserAgent(s.userAgent), colly.MaxDepth(1))
	c.IgnoreRobotsTxt = false
	c.SetRequestTimeout(s.timeout)

	var mu sync.Mutex
	seen := map[string]struct{}{}
	var links []string

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := normalize(e.Request.AbsoluteURL(e.Attr("href")))
		if link == "" || link == self || !strings.HasPrefix(link, "http") {
			return
		}
		if !domainsMatch(extractDomain(link), dom, false) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if limit > 0 && len(links) >= limit {
			return
		}
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})

	if err := c.Visit(cleaned); err != nil {
		return nil, fmt.Errorf("expand %s: %w", seed, err)
	}
	c.Wait()
	return links, nil
}

func cleanURL(u string) string {
	if !strings.HasPrefix(u, "http") {
		u = "https://" + u
	}
	return u
}

func extractDomain(u string) string {
	p, _ := url.Parse(u)
	if p != nil {
		return p.Hostname()
	}
	return ""
}

func normalize(u string) string {
	p, _ := url.Parse(u)
	if p == nil {
		return u
	}
	p.Fragment = ""
	if p.Path == "/" {
		p.Path = ""
	}
	return p.String()
}

func domainsMatch(a, b string, includeSub bool) bool {
	if a == b {
		return true
	}
	a = strings.TrimPrefix(a, "www.")
	b = strings.TrimPrefix(b, "www.")
	if a == b {
		return true
	}
	if includeSub && (strings.HasSuffix(a, "."+b) || strings.HasSuffix(b, "."+a)) {
		return true
	}
	return false
}
