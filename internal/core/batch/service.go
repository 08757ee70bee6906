package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"contentscore/internal/config"
	"contentscore/internal/core/discover"
	"contentscore/internal/core/job"
	"contentscore/internal/core/processor"
	"contentscore/internal/core/report"
	"contentscore/internal/core/result"
	"contentscore/internal/core/usage"
	"contentscore/internal/logger"
	"contentscore/internal/platform/eino"
	"contentscore/internal/platform/tasks"
)

// ErrNoURLs is returned when neither the request nor discovery yields URLs.
var ErrNoURLs = errors.New("no urls to process")

// DefaultDiscoveryCap bounds discovered URL lists for batch runs.
const DefaultDiscoveryCap = 200

// Request describes one batch run. Zero values fall back to configuration.
type Request struct {
	URLs               []string `json:"urls,omitempty"`
	UseFeeds           *bool    `json:"use_feeds,omitempty"`
	UseSeeds           *bool    `json:"use_seeds,omitempty"`
	ExpandSeeds        bool     `json:"expand_seeds,omitempty"`
	MaxURLs            int      `json:"max_urls,omitempty"`
	BatchSize          int      `json:"batch_size,omitempty"`
	CostCeiling        float64  `json:"cost_ceiling,omitempty"`
	CheckpointInterval int      `json:"checkpoint_interval,omitempty"`
	InterItemDelayMs   *int     `json:"inter_item_delay_ms,omitempty"`
	ReportPrefix       string   `json:"report_prefix,omitempty"`
	WebhookURL         string   `json:"webhook_url,omitempty"`
}

type Discoverer interface {
	Discover(ctx context.Context, opts discover.Options) []string
}

type Reporter interface {
	SaveAll(results []result.Record, prefix string) (report.Paths, error)
}

// StatusStore is the slice of job.JobService a run reports to.
type StatusStore interface {
	InitPending(ctx context.Context, jobID string, jobType job.Type, urlCount int) error
	SetProcessing(ctx context.Context, jobID string, jobType job.Type) error
	Progress(ctx context.Context, jobID string, jobType job.Type, summary job.Summary) error
	Complete(ctx context.Context, jobID string, jobType job.Type, summary job.Summary) error
	Fail(ctx context.Context, jobID string, jobType job.Type, cause error) error
}

type Enqueuer interface {
	Enqueue(task *asynq.Task, queue string, maxRetries int) error
}

// Deps are the collaborators of a Service. Discoverer, Reports, Checkpoints,
// Jobs and Tasks are optional.
type Deps struct {
	Extractor   processor.Extractor
	Scorer      processor.Scorer
	Discoverer  Discoverer
	Reports     Reporter
	Checkpoints Checkpointer
	Jobs        StatusStore
	Tasks       Enqueuer
}

// RunResult is what a finished run hands back to its caller.
type RunResult struct {
	RunID   string
	Outcome Outcome
	Reports *report.Paths
}

type Service struct {
	cfg     config.Config
	deps    Deps
	sleep   func(time.Duration)
	webhook *webhookSender
	log     *logger.Logger
}

func NewService(cfg config.Config, deps Deps) *Service {
	return &Service{
		cfg:     cfg,
		deps:    deps,
		webhook: newWebhookSender(cfg.WebhookSecret),
		log:     logger.New("BatchService"),
	}
}

// Settings resolves the batch knobs for req against configuration.
func (s *Service) Settings(req Request) (config.Batch, error) {
	b := s.cfg.Batch
	if len(b.ExhaustionMarkers) == 0 {
		b.ExhaustionMarkers = config.DefaultBatch().ExhaustionMarkers
	}
	if req.BatchSize > 0 {
		b.Size = req.BatchSize
	}
	if req.CostCeiling > 0 {
		b.CostCeiling = req.CostCeiling
	}
	if req.CheckpointInterval > 0 {
		b.CheckpointInterval = req.CheckpointInterval
	}
	if req.InterItemDelayMs != nil {
		b.InterItemDelay = time.Duration(*req.InterItemDelayMs) * time.Millisecond
	}
	if err := b.Validate(); err != nil {
		return b, err
	}
	return b, nil
}

// ResolveURLs returns the request URLs (deduplicated, capped) or, when none
// were given, the discovered set.
func (s *Service) ResolveURLs(ctx context.Context, req Request) ([]string, error) {
	if len(req.URLs) > 0 {
		return discover.Cap(discover.Dedupe(req.URLs), req.MaxURLs), nil
	}
	if s.deps.Discoverer == nil {
		return nil, ErrNoURLs
	}
	opts := discover.DefaultOptions()
	opts.MaxTotal = DefaultDiscoveryCap
	if req.MaxURLs > 0 {
		opts.MaxTotal = req.MaxURLs
	}
	if req.UseFeeds != nil {
		opts.UseFeeds = *req.UseFeeds
	}
	if req.UseSeeds != nil {
		opts.UseSeeds = *req.UseSeeds
	}
	opts.ExpandSeeds = req.ExpandSeeds
	urls := s.deps.Discoverer.Discover(ctx, opts)
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}
	return urls, nil
}

func (s *Service) newLedger() *usage.Ledger {
	return usage.NewLedger(usage.PriceTable{
		InputPerMillion:  s.cfg.PriceInputPerMTok,
		OutputPerMillion: s.cfg.PriceOutputPerMTok,
	})
}

func (s *Service) newProcessor(ledger *usage.Ledger, markers []string) *processor.Processor {
	return processor.New(s.deps.Extractor, s.deps.Scorer, ledger, processor.Options{
		ExhaustionMarkers: markers,
		MaxParseFallbacks: s.cfg.MaxParseFallbacks,
	})
}

// Run executes a batch run synchronously with a fresh ledger and engine.
func (s *Service) Run(ctx context.Context, runID string, req Request) (*RunResult, error) {
	if runID == "" {
		runID = uuid.New().String()
	}
	log := s.log.With("run_id", runID)

	settings, err := s.Settings(req)
	if err != nil {
		s.fail(ctx, runID, err)
		return nil, err
	}
	urls, err := s.ResolveURLs(ctx, req)
	if err != nil {
		s.fail(ctx, runID, err)
		return nil, err
	}
	if s.deps.Jobs != nil {
		_ = s.deps.Jobs.SetProcessing(ctx, runID, job.TypeBatch)
	}
	if pub, ok := s.deps.Jobs.(eino.TracePublisher); ok {
		ctx = eino.WithCallbacks(ctx, eino.NewTracer(pub, runID).Handler())
	}

	ledger := s.newLedger()
	engine := NewEngine(s.newProcessor(ledger, settings.ExhaustionMarkers), ledger, s.deps.Checkpoints, EngineOptions{
		Batch: settings,
		RunID: runID,
		Sleep: s.sleep,
		OnProgress: func(p Progress) {
			if s.deps.Jobs == nil {
				return
			}
			_ = s.deps.Jobs.Progress(ctx, runID, job.TypeBatch, job.Summary{Total: p.Processed, Batches: p.Batch, Stats: p.Stats})
		},
	})
	outcome := engine.Run(ctx, urls)

	res := &RunResult{RunID: runID, Outcome: outcome}
	if s.deps.Reports != nil {
		paths, err := s.deps.Reports.SaveAll(outcome.Results, req.ReportPrefix)
		if err != nil {
			log.LogErrorf("Failed to write reports: %v", err)
		} else {
			res.Reports = &paths
		}
	}

	summary := Summarize(outcome, res.Reports)
	if s.deps.Jobs != nil {
		if err := s.deps.Jobs.Complete(ctx, runID, job.TypeBatch, summary); err != nil {
			log.LogWarnf("Failed to store run status: %v", err)
		}
	}
	if req.WebhookURL != "" {
		s.webhook.send(ctx, runID, "completed", summary, req.WebhookURL)
	}
	return res, nil
}

func (s *Service) fail(ctx context.Context, runID string, cause error) {
	s.log.LogErrorf("Run %s failed: %v", runID, cause)
	if s.deps.Jobs != nil {
		_ = s.deps.Jobs.Fail(ctx, runID, job.TypeBatch, cause)
	}
}

// ScoreOne processes a single URL with its own ledger.
func (s *Service) ScoreOne(ctx context.Context, url string) (result.Record, usage.Snapshot) {
	ledger := s.newLedger()
	markers := s.cfg.Batch.ExhaustionMarkers
	if len(markers) == 0 {
		markers = config.DefaultBatch().ExhaustionMarkers
	}
	rec := s.newProcessor(ledger, markers).Process(ctx, url)
	return rec, ledger.Snapshot()
}

// Summarize condenses an outcome for run status storage.
func Summarize(o Outcome, paths *report.Paths) job.Summary {
	ok, failed, exhausted := o.Counts()
	sum := job.Summary{
		Total:           len(o.Results),
		Succeeded:       ok,
		Errored:         failed,
		CreditExhausted: exhausted,
		Batches:         o.Batches,
		Exhausted:       o.Exhausted,
		Reason:          string(o.Reason),
		Stats:           o.Stats,
	}
	if paths != nil {
		sum.Reports = &job.ReportPaths{JSON: paths.JSON, CSV: paths.CSV, HTML: paths.HTML}
	}
	return sum
}

type TaskPayload struct {
	RunID   string  `json:"run_id"`
	Request Request `json:"request"`
}

// Enqueue records a pending run and schedules it on the worker queue.
func (s *Service) Enqueue(ctx context.Context, req Request) (string, error) {
	if s.deps.Tasks == nil {
		return "", errors.New("task queue not configured")
	}
	if _, err := s.Settings(req); err != nil {
		return "", err
	}
	id := uuid.New().String()
	payload, err := json.Marshal(TaskPayload{RunID: id, Request: req})
	if err != nil {
		return "", err
	}
	if s.deps.Jobs != nil {
		if err := s.deps.Jobs.InitPending(ctx, id, job.TypeBatch, len(req.URLs)); err != nil {
			return "", err
		}
	}
	task := asynq.NewTask(tasks.TaskTypeBatchRun, payload)
	if err := s.deps.Tasks.Enqueue(task, "default", s.cfg.TaskMaxRetries); err != nil {
		return "", err
	}
	s.log.LogInfof("enqueued batch run %s with %d explicit URLs", id, len(req.URLs))
	return id, nil
}

// HandleTask runs a queued batch. Runs that cannot start are not retried.
func (s *Service) HandleTask(ctx context.Context, task *asynq.Task) error {
	var p TaskPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("decode batch payload: %v: %w", err, asynq.SkipRetry)
	}
	s.log.LogInfof("processing batch run %s", p.RunID)
	if _, err := s.Run(ctx, p.RunID, p.Request); err != nil {
		return fmt.Errorf("batch run %s: %w: %w", p.RunID, err, asynq.SkipRetry)
	}
	return nil
}
