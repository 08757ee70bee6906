package eino

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"

	"contentscore/internal/logger"
)

type handlersKey struct{}
type startKey struct{}

// WithCallbacks attaches callback handlers that Score runs around each model
// call made with the returned context.
func WithCallbacks(ctx context.Context, handlers ...callbacks.Handler) context.Context {
	existing, _ := ctx.Value(handlersKey{}).([]callbacks.Handler)
	all := append(append([]callbacks.Handler(nil), existing...), handlers...)
	return context.WithValue(ctx, handlersKey{}, all)
}

func handlersFrom(ctx context.Context) []callbacks.Handler {
	hs, _ := ctx.Value(handlersKey{}).([]callbacks.Handler)
	return hs
}

// TracePublisher delivers trace events for a run; job.JobService satisfies it.
type TracePublisher interface {
	PublishJobTrace(ctx context.Context, jobID string, event interface{}) error
}

// TraceEvent is one scoring call as seen by run listeners.
type TraceEvent struct {
	RunID        string `json:"runId"`
	Event        string `json:"event"`
	Model        string `json:"model"`
	Timestamp    int64  `json:"timestamp"`
	DurationMs   *int64 `json:"durationMs,omitempty"`
	InputTokens  int    `json:"inputTokens,omitempty"`
	OutputTokens int    `json:"outputTokens,omitempty"`
	Error        string `json:"error,omitempty"`
	Step         int64  `json:"step"`
}

// Tracer publishes the outcome of every scoring call of one run. Start
// events are only logged.
type Tracer struct {
	pub   TracePublisher
	runID string
	steps atomic.Int64
	now   func() time.Time
	log   *logger.Logger
}

func NewTracer(pub TracePublisher, runID string) *Tracer {
	return &Tracer{pub: pub, runID: runID, now: time.Now, log: logger.New("ScoreTracer")}
}

func (t *Tracer) Handler() callbacks.Handler {
	return callbacks.NewHandlerBuilder().
		OnStartFn(t.onStart).
		OnEndFn(t.onEnd).
		OnErrorFn(t.onError).
		Build()
}

func (t *Tracer) onStart(ctx context.Context, info *callbacks.RunInfo, _ callbacks.CallbackInput) context.Context {
	t.log.LogDebugf("score.start run=%s model=%s", t.runID, nameOf(info))
	return context.WithValue(ctx, startKey{}, t.now())
}

func (t *Tracer) onEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	ev := t.event(ctx, "score.end", info)
	if out := model.ConvCallbackOutput(output); out != nil && out.TokenUsage != nil {
		ev.InputTokens = out.TokenUsage.PromptTokens
		ev.OutputTokens = out.TokenUsage.CompletionTokens
	}
	t.publish(ctx, ev)
	return ctx
}

func (t *Tracer) onError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	ev := t.event(ctx, "score.error", info)
	ev.Error = err.Error()
	t.publish(ctx, ev)
	return ctx
}

func (t *Tracer) event(ctx context.Context, name string, info *callbacks.RunInfo) TraceEvent {
	ev := TraceEvent{
		RunID:     t.runID,
		Event:     name,
		Model:     nameOf(info),
		Timestamp: t.now().UnixMilli(),
		Step:      t.steps.Add(1),
	}
	if start, ok := ctx.Value(startKey{}).(time.Time); ok {
		d := t.now().Sub(start).Milliseconds()
		ev.DurationMs = &d
	}
	return ev
}

func (t *Tracer) publish(ctx context.Context, ev TraceEvent) {
	if t.pub == nil {
		return
	}
	if err := t.pub.PublishJobTrace(ctx, t.runID, ev); err != nil {
		t.log.LogWarnf("Failed to publish trace for run %s: %v", t.runID, err)
	}
}

func nameOf(info *callbacks.RunInfo) string {
	if info == nil {
		return ""
	}
	if info.Name != "" {
		return info.Name
	}
	return string(info.Component)
}
