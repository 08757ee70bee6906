package batch

import (
	"context"
	"fmt"
	"time"

	"contentscore/internal/config"
	"contentscore/internal/core/checkpoint"
	"contentscore/internal/core/processor"
	"contentscore/internal/core/result"
	"contentscore/internal/core/usage"
	"contentscore/internal/logger"
)

// Reason explains why a run stopped.
type Reason string

const (
	ReasonSignal    Reason = "signal"
	ReasonCeiling   Reason = "ceiling"
	ReasonComplete  Reason = "complete"
	ReasonCancelled Reason = "cancelled"
)

// Exhausted reports whether the reason counts as budget exhaustion.
func (r Reason) Exhausted() bool { return r == ReasonSignal || r == ReasonCeiling }

type ItemProcessor interface {
	Process(ctx context.Context, url string) result.Record
}

type Checkpointer interface {
	Persist(ctx context.Context, records []result.Record, key string)
}

type Ledger interface {
	Snapshot() usage.Snapshot
	Reset()
}

// Progress is reported after every batch.
type Progress struct {
	Batch     int            `json:"batch"`
	Processed int            `json:"processed"`
	Total     int            `json:"total"`
	Stats     usage.Snapshot `json:"stats"`
}

type Outcome struct {
	Results   []result.Record `json:"results"`
	Stats     usage.Snapshot  `json:"stats"`
	Exhausted bool            `json:"exhausted"`
	Reason    Reason          `json:"reason"`
	Batches   int             `json:"batches"`
}

// Counts tallies results by status.
func (o Outcome) Counts() (success, failed, exhausted int) {
	for _, r := range o.Results {
		switch r.Status {
		case result.StatusSuccess:
			success++
		case result.StatusCreditExhausted:
			exhausted++
		default:
			failed++
		}
	}
	return
}

type EngineOptions struct {
	config.Batch
	RunID      string
	Sleep      func(time.Duration)
	Now        func() time.Time
	OnProgress func(Progress)
}

// Engine drives one run: sequential items, batch-boundary stop checks,
// periodic checkpoints. An Engine is used for a single Run.
type Engine struct {
	proc   ItemProcessor
	ledger Ledger
	ckpt   Checkpointer
	opts   EngineOptions
	log    *logger.Logger
}

func NewEngine(proc ItemProcessor, ledger Ledger, ckpt Checkpointer, opts EngineOptions) *Engine {
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	def := config.DefaultBatch()
	if opts.Size <= 0 {
		opts.Size = def.Size
	}
	if opts.CostCeiling <= 0 {
		opts.CostCeiling = def.CostCeiling
	}
	if opts.CheckpointInterval <= 0 {
		opts.CheckpointInterval = def.CheckpointInterval
	}
	if len(opts.ExhaustionMarkers) == 0 {
		opts.ExhaustionMarkers = def.ExhaustionMarkers
	}
	log := logger.New("BatchEngine")
	if opts.RunID != "" {
		log = log.With("run_id", opts.RunID)
	}
	return &Engine{proc: proc, ledger: ledger, ckpt: ckpt, opts: opts, log: log}
}

type runState struct {
	results     []result.Record
	checkpoints int
	reason      Reason
}

func (e *Engine) Run(ctx context.Context, urls []string) Outcome {
	e.ledger.Reset()
	st := &runState{results: make([]result.Record, 0, len(urls))}
	total := len(urls)
	batches := 0

	e.log.LogInfof("Starting run: %d URLs, batch size %d, ceiling $%.2f", total, e.opts.Size, e.opts.CostCeiling)

	for start := 0; start < total; start += e.opts.Size {
		if err := ctx.Err(); err != nil {
			e.log.LogWarnf("Run cancelled before batch %d: %v", batches+1, err)
			st.reason = ReasonCancelled
			break
		}
		end := start + e.opts.Size
		if end > total {
			end = total
		}
		batches++
		e.log.LogInfof("Batch %d (URLs %d-%d of %d)", batches, start+1, end, total)

		signalled := e.runBatch(ctx, urls[start:end], end == total, st)

		if n := len(st.results) / e.opts.CheckpointInterval; n > st.checkpoints {
			st.checkpoints = n
			e.checkpoint(ctx, st.results)
		}

		stats := e.ledger.Snapshot()
		e.log.Info().
			Int("processed", len(st.results)).
			Int("total", total).
			Int64("api_calls", stats.APICalls).
			Int64("input_tokens", stats.TotalInputUnits).
			Int64("output_tokens", stats.TotalOutputUnits).
			Msg(fmt.Sprintf("Estimated cost: $%.4f", stats.EstimatedCost))
		if e.opts.OnProgress != nil {
			e.opts.OnProgress(Progress{Batch: batches, Processed: len(st.results), Total: total, Stats: stats})
		}

		if signalled {
			e.log.LogWarnf("⚠️  Credit exhaustion detected. Stopping processing.")
			st.reason = ReasonSignal
			break
		}
		if stats.EstimatedCost >= e.opts.CostCeiling {
			e.log.LogWarnf("⚠️  Credit limit reached: $%.4f >= $%.2f. Stopping processing.", stats.EstimatedCost, e.opts.CostCeiling)
			st.reason = ReasonCeiling
			break
		}
	}
	if st.reason == "" {
		st.reason = ReasonComplete
	}

	out := Outcome{
		Results:   st.results,
		Stats:     e.ledger.Snapshot(),
		Exhausted: st.reason.Exhausted(),
		Reason:    st.reason,
		Batches:   batches,
	}
	e.log.LogSuccessf("Run finished (%s): %d results, %s", out.Reason, len(out.Results), out.Stats)
	return out
}

// runBatch processes one slice of URLs and reports whether an exhaustion
// signal was seen. Panics are contained here so one bad batch does not end
// the run unless it carries an exhaustion marker.
func (e *Engine) runBatch(ctx context.Context, urls []string, last bool, st *runState) (signalled bool) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprint(r)
			if processor.ContainsMarker(msg, e.opts.ExhaustionMarkers) {
				e.log.LogErrorf("Batch aborted by exhaustion error: %s", msg)
				signalled = true
				return
			}
			e.log.LogErrorf("Error processing batch, continuing with next: %s", msg)
		}
	}()

	for i, u := range urls {
		rec := e.proc.Process(ctx, u)
		st.results = append(st.results, rec)
		if rec.CreditExhausted {
			signalled = true
		}
		if last && i == len(urls)-1 {
			break
		}
		if e.opts.InterItemDelay > 0 {
			e.opts.Sleep(e.opts.InterItemDelay)
		}
	}
	return signalled
}

func (e *Engine) checkpoint(ctx context.Context, results []result.Record) {
	if e.ckpt == nil {
		return
	}
	snapshot := make([]result.Record, len(results))
	copy(snapshot, results)
	runID := e.opts.RunID
	if runID == "" {
		runID = "local"
	}
	e.ckpt.Persist(ctx, snapshot, checkpoint.Key(runID, e.opts.Now()))
}
