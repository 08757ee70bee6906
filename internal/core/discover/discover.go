package discover

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"contentscore/internal/logger"
)

type Options struct {
	UseFeeds    bool
	UseSeeds    bool
	MaxPerFeed  int
	MaxPerSeed  int
	MaxTotal    int
	ExpandSeeds bool
}

func DefaultOptions() Options {
	return Options{UseFeeds: true, UseSeeds: true, MaxPerFeed: 10, MaxPerSeed: 5, MaxTotal: 100}
}

type feedLinker interface {
	Links(ctx context.Context, feedURL string, limit int) ([]string, error)
}

type seedExpander interface {
	Expand(ctx context.Context, seed string, limit int) ([]string, error)
}

// Service turns configured sources into a candidate URL list.
type Service struct {
	sources Sources
	feeds   feedLinker
	seeds   seedExpander
	log     *logger.Logger
}

func NewService(sources Sources, feeds feedLinker, seeds seedExpander) *Service {
	return &Service{sources: sources, feeds: feeds, seeds: seeds, log: logger.New("Discover")}
}

// Discover gathers feed links then seeds, dedupes preserving first
// occurrence and caps the result at MaxTotal. Failing feeds and seeds are
// logged and skipped.
func (s *Service) Discover(ctx context.Context, opts Options) []string {
	var all []string

	if opts.UseFeeds && len(s.sources.Feeds) > 0 {
		s.log.LogInfof("Discovering URLs from %d feed(s)", len(s.sources.Feeds))
		failed := 0
		for _, f := range s.sources.Feeds {
			if ctx.Err() != nil {
				break
			}
			links, err := s.feeds.Links(ctx, f, opts.MaxPerFeed)
			if err != nil {
				failed++
				s.log.LogWarnf("Feed failed %s: %v", f, err)
				continue
			}
			s.log.LogDebugf("Feed %s yielded %d URLs", f, len(links))
			all = append(all, links...)
		}
		if failed > 0 {
			s.log.LogWarnf("%d feed(s) failed to parse", failed)
		}
	}

	if opts.UseSeeds && len(s.sources.Seeds) > 0 {
		if opts.ExpandSeeds && s.seeds != nil {
			for _, seed := range s.sources.Seeds {
				if ctx.Err() != nil {
					break
				}
				links, err := s.seeds.Expand(ctx, seed, opts.MaxPerSeed)
				if err != nil {
					s.log.LogWarnf("Seed expansion failed %s: %v", seed, err)
					continue
				}
				all = append(all, links...)
			}
		} else {
			s.log.LogInfof("Using %d seed URL(s) directly", len(s.sources.Seeds))
			all = append(all, s.sources.Seeds...)
		}
	}

	unique := Dedupe(all)
	out := Cap(unique, opts.MaxTotal)
	s.log.LogSuccessf("Discovered %d unique URLs, using %d", len(unique), len(out))
	return out
}

// Dedupe removes repeats, keeping the first occurrence.
func Dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// Cap truncates to n entries; n <= 0 means no cap.
func Cap(urls []string, n int) []string {
	if n > 0 && len(urls) > n {
		return urls[:n]
	}
	return urls
}

// ReadURLFile reads one URL per line. Blank lines, # comments and lines that
// are not http(s) URLs are skipped.
func ReadURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url file: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read url file: %w", err)
	}
	return out, nil
}

// SaveURLFile writes urls one per line.
func SaveURLFile(path string, urls []string) error {
	if err := os.WriteFile(path, []byte(strings.Join(urls, "\n")), 0o644); err != nil {
		return fmt.Errorf("write url file: %w", err)
	}
	return nil
}
