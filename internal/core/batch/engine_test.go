package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentscore/internal/config"
	"contentscore/internal/core/extract"
	"contentscore/internal/core/processor"
	"contentscore/internal/core/result"
	"contentscore/internal/core/score"
	"contentscore/internal/core/usage"
)

type stubExtractor struct{}

func (stubExtractor) Extract(_ context.Context, url string) (extract.Page, error) {
	return extract.Page{URL: url, Title: "T " + url, Text: strings.Repeat("content ", 30)}, nil
}

type scriptedScorer struct {
	calls int
	fn    func(n int, url string) (*score.Result, error)
}

func (s *scriptedScorer) Score(_ context.Context, _, url string) (*score.Result, error) {
	s.calls++
	return s.fn(s.calls, url)
}

func okScore(in, out int) func(int, string) (*score.Result, error) {
	return func(int, string) (*score.Result, error) {
		v := 75.0
		return &score.Result{Cw: &v, Sd: &v, Dv: &v, Usage: &score.Usage{InputTokens: in, OutputTokens: out}}, nil
	}
}

type recordingCheckpointer struct {
	mu    sync.Mutex
	sizes []int
	keys  []string
}

func (r *recordingCheckpointer) Persist(_ context.Context, records []result.Record, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sizes = append(r.sizes, len(records))
	r.keys = append(r.keys, key)
}

type harness struct {
	ledger *usage.Ledger
	scorer *scriptedScorer
	ckpt   *recordingCheckpointer
	sleeps int
	engine *Engine
}

func newHarness(b config.Batch, fn func(int, string) (*score.Result, error)) *harness {
	h := &harness{
		ledger: usage.NewLedger(usage.DefaultPrices),
		scorer: &scriptedScorer{fn: fn},
		ckpt:   &recordingCheckpointer{},
	}
	proc := processor.New(stubExtractor{}, h.scorer, h.ledger, processor.Options{
		ExhaustionMarkers: b.ExhaustionMarkers,
		MaxParseFallbacks: 3,
	})
	h.engine = NewEngine(proc, h.ledger, h.ckpt, EngineOptions{
		Batch: b,
		RunID: "test-run",
		Sleep: func(time.Duration) { h.sleeps++ },
	})
	return h
}

func urls(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://site.test/%d", i+1)
	}
	return out
}

func TestRunCompletesAllBatchesWithOneCheckpoint(t *testing.T) {
	h := newHarness(config.DefaultBatch(), okScore(1000, 200))

	out := h.engine.Run(context.Background(), urls(12))

	assert.Equal(t, ReasonComplete, out.Reason)
	assert.False(t, out.Exhausted)
	assert.Equal(t, 3, out.Batches)
	require.Len(t, out.Results, 12)
	for i, r := range out.Results {
		assert.Equal(t, fmt.Sprintf("https://site.test/%d", i+1), r.URL)
		assert.Equal(t, result.StatusSuccess, r.Status)
	}
	assert.Equal(t, []int{10}, h.ckpt.sizes)
	assert.True(t, strings.HasPrefix(h.ckpt.keys[0], "checkpoints/test-run/results-incremental-"))
	assert.Equal(t, int64(12), out.Stats.APICalls)
	assert.Equal(t, 11, h.sleeps, "no pause after the final URL")
}

func TestRunStopsAfterBatchOnForbidden(t *testing.T) {
	h := newHarness(config.DefaultBatch(), func(n int, _ string) (*score.Result, error) {
		if n == 3 {
			return nil, errors.New("403 Forbidden")
		}
		return okScore(100, 10)(n, "")
	})

	out := h.engine.Run(context.Background(), urls(12))

	assert.Equal(t, ReasonSignal, out.Reason)
	assert.True(t, out.Exhausted)
	assert.Equal(t, 1, out.Batches)
	require.Len(t, out.Results, 5, "all items of the batch are attempted")
	assert.Equal(t, result.StatusCreditExhausted, out.Results[2].Status)
	assert.True(t, out.Results[2].CreditExhausted)
	assert.Equal(t, result.StatusSuccess, out.Results[3].Status)
	assert.Equal(t, 5, h.scorer.calls)
	assert.Empty(t, h.ckpt.sizes)
}

func TestRunStopsAtCeilingAfterContainingBatch(t *testing.T) {
	b := config.DefaultBatch()
	b.Size = 2
	// each call costs $3; the fourth call reaches $12 >= $10
	h := newHarness(b, okScore(1_000_000, 0))

	out := h.engine.Run(context.Background(), urls(10))

	assert.Equal(t, ReasonCeiling, out.Reason)
	assert.True(t, out.Exhausted)
	assert.Len(t, out.Results, 4)
	assert.Equal(t, 2, out.Batches)
	assert.InDelta(t, 12.0, out.Stats.EstimatedCost, 1e-9)
	for _, r := range out.Results {
		assert.False(t, r.CreditExhausted)
	}
}

func TestSignalTakesPriorityOverCeiling(t *testing.T) {
	b := config.DefaultBatch()
	h := newHarness(b, func(n int, _ string) (*score.Result, error) {
		if n == 5 {
			return nil, errors.New("quota exceeded")
		}
		return okScore(1_000_000, 0)(n, "")
	})

	out := h.engine.Run(context.Background(), urls(10))

	assert.Equal(t, ReasonSignal, out.Reason)
	assert.GreaterOrEqual(t, out.Stats.EstimatedCost, b.CostCeiling)
}

func TestExtractionFailuresDoNotCountCalls(t *testing.T) {
	ledger := usage.NewLedger(usage.DefaultPrices)
	sc := &scriptedScorer{fn: okScore(10, 10)}
	proc := processor.New(failingExtractor{}, sc, ledger, processor.Options{})
	e := NewEngine(proc, ledger, nil, EngineOptions{Batch: config.DefaultBatch(), Sleep: func(time.Duration) {}})

	out := e.Run(context.Background(), urls(3))

	assert.Equal(t, ReasonComplete, out.Reason)
	assert.Zero(t, out.Stats.APICalls)
	assert.Equal(t, int64(3), out.Stats.Errors)
	assert.Zero(t, sc.calls)
}

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, string) (extract.Page, error) {
	return extract.Page{}, errors.New("net::ERR_NAME_NOT_RESOLVED")
}

type panickyProcessor struct {
	panicOn map[string]string
}

func (p panickyProcessor) Process(_ context.Context, url string) result.Record {
	if msg, ok := p.panicOn[url]; ok {
		panic(msg)
	}
	return result.Record{URL: url, Status: result.StatusSuccess}
}

func TestBatchPanicIsContained(t *testing.T) {
	ledger := usage.NewLedger(usage.DefaultPrices)
	proc := panickyProcessor{panicOn: map[string]string{"https://site.test/2": "nil map write"}}
	e := NewEngine(proc, ledger, nil, EngineOptions{Batch: config.DefaultBatch(), Sleep: func(time.Duration) {}})

	out := e.Run(context.Background(), urls(8))

	assert.Equal(t, ReasonComplete, out.Reason)
	assert.Equal(t, 2, out.Batches)
	// item 1 kept, items 3-5 of the aborted batch skipped, batch 2 intact
	assert.Len(t, out.Results, 4)
}

func TestBatchPanicWithMarkerSignals(t *testing.T) {
	ledger := usage.NewLedger(usage.DefaultPrices)
	proc := panickyProcessor{panicOn: map[string]string{"https://site.test/1": "billing account suspended"}}
	e := NewEngine(proc, ledger, nil, EngineOptions{Batch: config.DefaultBatch(), Sleep: func(time.Duration) {}})

	out := e.Run(context.Background(), urls(8))

	assert.Equal(t, ReasonSignal, out.Reason)
	assert.True(t, out.Exhausted)
	assert.Empty(t, out.Results)
}

func TestZeroOptionsTakeBatchDefaults(t *testing.T) {
	ledger := usage.NewLedger(usage.DefaultPrices)
	proc := panickyProcessor{panicOn: map[string]string{"https://site.test/7": "quota exceeded"}}
	e := NewEngine(proc, ledger, nil, EngineOptions{Batch: config.Batch{Size: 5}, Sleep: func(time.Duration) {}})

	out := e.Run(context.Background(), urls(12))

	// no ceiling stop after batch 1; the default markers still classify the panic
	assert.Equal(t, ReasonSignal, out.Reason)
	assert.True(t, out.Exhausted)
	assert.Equal(t, 2, out.Batches)
	assert.Len(t, out.Results, 6)
}

func TestCancellationObservedAtBatchBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := config.DefaultBatch()
	h := newHarness(b, func(n int, _ string) (*score.Result, error) {
		if n == 2 {
			cancel()
		}
		return okScore(1, 1)(n, "")
	})

	out := h.engine.Run(ctx, urls(12))

	assert.Equal(t, ReasonCancelled, out.Reason)
	assert.False(t, out.Exhausted)
	assert.Len(t, out.Results, 5, "the running batch finishes")
}

func TestEmptyInputCompletes(t *testing.T) {
	h := newHarness(config.DefaultBatch(), okScore(1, 1))

	out := h.engine.Run(context.Background(), nil)

	assert.Equal(t, ReasonComplete, out.Reason)
	assert.Empty(t, out.Results)
	assert.Zero(t, out.Batches)
}

func TestLedgerResetAtRunStart(t *testing.T) {
	h := newHarness(config.DefaultBatch(), okScore(10, 10))
	h.ledger.Record(999, 999)

	out := h.engine.Run(context.Background(), urls(2))

	assert.Equal(t, int64(2), out.Stats.APICalls)
	assert.Equal(t, int64(20), out.Stats.TotalInputUnits)
}

func TestProgressReportedPerBatch(t *testing.T) {
	var seen []Progress
	ledger := usage.NewLedger(usage.DefaultPrices)
	proc := panickyProcessor{}
	e := NewEngine(proc, ledger, nil, EngineOptions{
		Batch:      config.DefaultBatch(),
		Sleep:      func(time.Duration) {},
		OnProgress: func(p Progress) { seen = append(seen, p) },
	})

	e.Run(context.Background(), urls(7))

	require.Len(t, seen, 2)
	assert.Equal(t, 5, seen[0].Processed)
	assert.Equal(t, 7, seen[1].Processed)
	assert.Equal(t, 7, seen[1].Total)
}

func TestOutcomeCounts(t *testing.T) {
	o := Outcome{Results: []result.Record{
		{Status: result.StatusSuccess}, {Status: result.StatusError}, {Status: result.StatusCreditExhausted}, {Status: result.StatusSuccess},
	}}
	s, f, x := o.Counts()
	assert.Equal(t, 2, s)
	assert.Equal(t, 1, f)
	assert.Equal(t, 1, x)
}
