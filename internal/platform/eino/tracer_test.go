package eino

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu     sync.Mutex
	runIDs []string
	events []TraceEvent
}

func (c *capturePublisher) PublishJobTrace(_ context.Context, jobID string, event interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runIDs = append(c.runIDs, jobID)
	c.events = append(c.events, event.(TraceEvent))
	return nil
}

func TestTracerPublishesScoreOutcomes(t *testing.T) {
	pub := &capturePublisher{}
	tracer := NewTracer(pub, "run-7")
	ctx := WithCallbacks(context.Background(), tracer.Handler())

	fake := &fakeChatModel{reply: &schema.Message{
		Content:      `{"Cw": 50, "Sd": 50, "Dv": 50}`,
		ResponseMeta: &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 300, CompletionTokens: 20}},
	}}
	svc := NewServiceWithModel(Config{Provider: "anthropic", Model: "claude-test"}, fake)

	_, err := svc.Score(ctx, "text", "https://a.test")
	require.NoError(t, err)

	fake.reply, fake.err = nil, errors.New("403 Forbidden")
	_, err = svc.Score(ctx, "text", "https://b.test")
	require.Error(t, err)

	require.Len(t, pub.events, 2)
	assert.Equal(t, []string{"run-7", "run-7"}, pub.runIDs)

	end := pub.events[0]
	assert.Equal(t, "score.end", end.Event)
	assert.Equal(t, "claude-test", end.Model)
	assert.Equal(t, 300, end.InputTokens)
	assert.Equal(t, 20, end.OutputTokens)
	assert.Equal(t, int64(1), end.Step)
	require.NotNil(t, end.DurationMs)

	failed := pub.events[1]
	assert.Equal(t, "score.error", failed.Event)
	assert.Equal(t, "403 Forbidden", failed.Error)
	assert.Equal(t, int64(2), failed.Step)
}

func TestScoreWithoutCallbacksPublishesNothing(t *testing.T) {
	fake := &fakeChatModel{reply: &schema.Message{Content: `{"Cw": 1, "Sd": 2, "Dv": 3}`}}
	svc := NewServiceWithModel(Config{Provider: "fake"}, fake)
	_, err := svc.Score(context.Background(), "text", "https://a.test")
	require.NoError(t, err)
}

func TestWithCallbacksAccumulates(t *testing.T) {
	a := NewTracer(nil, "a").Handler()
	b := NewTracer(nil, "b").Handler()
	ctx := WithCallbacks(WithCallbacks(context.Background(), a), b)
	assert.Len(t, handlersFrom(ctx), 2)
	assert.Empty(t, handlersFrom(context.Background()))
}
