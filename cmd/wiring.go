package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"contentscore/internal/config"
	"contentscore/internal/core/batch"
	"contentscore/internal/core/checkpoint"
	"contentscore/internal/core/discover"
	"contentscore/internal/core/extract"
	"contentscore/internal/core/job"
	"contentscore/internal/core/processor"
	"contentscore/internal/core/report"
	"contentscore/internal/core/score"
	"contentscore/internal/logger"
	"contentscore/internal/platform/eino"
	rds "contentscore/internal/platform/redis"
	tasks "contentscore/internal/platform/tasks"
)

// app bundles the services shared by every command.
type app struct {
	cfg      config.Config
	log      *logger.Logger
	redis    *rds.Service
	jobs     *job.JobService
	tasks    *tasks.Client
	renderer extract.Renderer
	feeds    *discover.FeedSource
	batch    *batch.Service
	reports  *report.Writer
	closers  []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// unavailableScorer fails every call with the reason the scoring backend
// could not be built, so runs still produce per-item error records.
type unavailableScorer struct{ err error }

func (u unavailableScorer) Score(context.Context, string, string) (*score.Result, error) {
	return nil, u.err
}

func newRenderer(cfg config.Config) (extract.Renderer, func() error) {
	if strings.EqualFold(cfg.Renderer, "static") {
		return extract.NewStaticRenderer(cfg.PageTimeout), func() error { return nil }
	}
	r := extract.NewPlaywrightRenderer(extract.PlaywrightOptions{
		Headless: cfg.Headless,
		Timeout:  cfg.PageTimeout,
		Settle:   2 * time.Second,
	})
	return r, r.Close
}

func newCheckpointStore(cfg config.Config, log *logger.Logger) checkpoint.Store {
	local := checkpoint.NewFileStore(cfg.DataDir)
	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
		return local
	}
	store, err := checkpoint.NewSupabaseStore(checkpoint.SupabaseOptions{
		URL:        cfg.SupabaseURL,
		ServiceKey: cfg.SupabaseServiceKey,
		Bucket:     cfg.CheckpointBucket,
		AppEnv:     cfg.AppEnv,
		Fallback:   local,
	})
	if err != nil {
		log.LogWarnf("Supabase checkpoints disabled: %v", err)
		return local
	}
	return store
}

func newScorer(cfg config.Config, log *logger.Logger) processor.Scorer {
	svc, err := eino.NewService(eino.Config{
		Provider:  cfg.LLMProvider,
		APIKey:    cfg.APIKey(),
		Model:     cfg.DefaultLLMModel,
		MaxTokens: cfg.LLMMaxTokens,
	})
	if err != nil {
		log.LogErrorf("Scoring backend unavailable: %v", err)
		return unavailableScorer{err: fmt.Errorf("scoring unavailable: %w", err)}
	}
	return svc
}

// newApp wires the service graph. With requireRedis unset a missing Redis
// only disables the render cache and run status.
func newApp(cfg config.Config, requireRedis bool) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: logger.New("main")}

	redisSvc, err := rds.New(rds.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	switch {
	case err == nil:
		a.redis = redisSvc
		a.closers = append(a.closers, redisSvc.Close)
		a.jobs = job.NewJobService(redisSvc)
		a.tasks = tasks.New(redisSvc)
		a.closers = append(a.closers, a.tasks.Close)
	case requireRedis:
		return nil, err
	default:
		a.log.LogWarnf("Redis unavailable, continuing without cache and run status: %v", err)
	}

	renderer, closeRenderer := newRenderer(cfg)
	a.renderer = renderer
	a.closers = append(a.closers, closeRenderer)

	var cache extract.Cache
	if a.redis != nil {
		cache = a.redis
	}
	extractor := extract.NewService(renderer, cache, extract.Options{CacheTTL: cfg.RenderCacheTTL})

	sources, err := discover.LoadSources(cfg.SourcesFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.feeds = discover.NewFeedSource(cfg.PageTimeout)
	discoverer := discover.NewService(sources, a.feeds, discover.NewSeedExpander(cfg.PageTimeout))

	a.reports = report.NewWriter(cfg.OutputDir)
	deps := batch.Deps{
		Extractor:   extractor,
		Scorer:      newScorer(cfg, a.log),
		Discoverer:  discoverer,
		Reports:     a.reports,
		Checkpoints: checkpoint.NewWriter(newCheckpointStore(cfg, a.log)),
	}
	if a.jobs != nil {
		deps.Jobs = a.jobs
	}
	if a.tasks != nil {
		deps.Tasks = a.tasks
	}
	a.batch = batch.NewService(cfg, deps)
	return a, nil
}

var errNoInput = errors.New("provide --url, --file or --rss")
