package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"contentscore/internal/logger"
	"contentscore/internal/utils/markdown"
)

// Cache is satisfied by the redis platform service.
type Cache interface {
	CacheGet(ctx context.Context, key string, dest interface{}) error
	CacheSet(ctx context.Context, key string, val interface{}, ttl time.Duration) error
}

type Options struct {
	// Markdown returns the selected content as markdown instead of plain text.
	Markdown bool
	CacheTTL time.Duration
}

// Service turns a URL into a Page: render, select main content, cache.
type Service struct {
	renderer Renderer
	cache    Cache
	opts     Options
	log      *logger.Logger
}

func NewService(renderer Renderer, cache Cache, opts Options) *Service {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 15 * time.Minute
	}
	return &Service{renderer: renderer, cache: cache, opts: opts, log: logger.New("Extractor")}
}

func (s *Service) Extract(ctx context.Context, url string) (Page, error) {
	key := cacheKey(url, s.opts.Markdown)
	if s.cache != nil {
		var cached Page
		if err := s.cache.CacheGet(ctx, key, &cached); err == nil && cached.Text != "" {
			s.log.Debug().Str("url", url).Msg("cache hit")
			return cached, nil
		}
	}

	rendered, err := s.renderer.Render(ctx, url)
	if err != nil {
		return Page{URL: url}, fmt.Errorf("render %s: %w", url, err)
	}

	sel := markdown.Select
	if s.opts.Markdown {
		sel = markdown.SelectMarkdown
	}
	content, err := sel(rendered.HTML)
	if err != nil {
		return Page{URL: url, Title: rendered.Title}, fmt.Errorf("parse %s: %w", url, err)
	}

	title := strings.TrimSpace(rendered.Title)
	if title == "" {
		title = content.Title
	}
	page := Page{URL: url, Title: title, Text: content.Text}
	if strings.TrimSpace(page.Text) == "" {
		return page, ErrEmptyContent
	}

	if s.cache != nil {
		if err := s.cache.CacheSet(ctx, key, page, s.opts.CacheTTL); err != nil {
			s.log.LogWarnf("cache write for %s failed: %v", url, err)
		}
	}
	s.log.Debug().Str("url", url).Str("selector", content.Selector).Int("chars", len(page.Text)).Msg("extracted")
	return page, nil
}

var keyReplacer = strings.NewReplacer(":", "_", "/", "_", "?", "_", "&", "_")

func cacheKey(url string, md bool) string {
	format := "text"
	if md {
		format = "markdown"
	}
	return fmt.Sprintf("extract:%s:%s", keyReplacer.Replace(url), format)
}
