package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv8 "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentscore/internal/core/usage"
	rds "contentscore/internal/platform/redis"
)

func newService(t *testing.T) (*JobService, *miniredis.Miniredis, *redisv8.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisv8.NewClient(&redisv8.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewJobService(rds.NewFromClient(client)), mr, client
}

func TestLifecycle(t *testing.T) {
	svc, mr, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.InitPending(ctx, "r1", TypeBatch, 12))
	j, err := svc.GetJobStatus(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, j.Status)
	assert.Equal(t, 12, j.URLCount)
	assert.Equal(t, 10*time.Minute, mr.TTL("job:r1"))

	require.NoError(t, svc.SetProcessing(ctx, "r1", TypeBatch))
	require.NoError(t, svc.Progress(ctx, "r1", TypeBatch, Summary{Total: 5, Batches: 1}))
	j, err = svc.GetJobStatus(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, j.Status)
	assert.Equal(t, 12, j.URLCount)
	require.NotNil(t, j.Summary)
	assert.Equal(t, 5, j.Summary.Total)

	summary := Summary{
		Total: 12, Succeeded: 11, Errored: 1, Batches: 3, Reason: "complete",
		Stats:   usage.Snapshot{APICalls: 11, Errors: 1, EstimatedCost: 0.25},
		Reports: &ReportPaths{JSON: "results-r1.json"},
	}
	require.NoError(t, svc.Complete(ctx, "r1", TypeBatch, summary))
	j, err = svc.GetJobStatus(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, j.Status)
	assert.Equal(t, summary, *j.Summary)
	assert.Equal(t, time.Hour, mr.TTL("job:r1"))
}

func TestFailRecordsError(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Fail(ctx, "r2", TypeScore, errors.New("no urls")))
	j, err := svc.GetJobStatus(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, j.Status)
	assert.Equal(t, "no urls", j.Error)
	assert.True(t, j.Status.Terminal())
}

func TestGetMissing(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.GetJobStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPublishesUpdates(t *testing.T) {
	svc, _, client := newService(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, Channel("r3"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.SetProcessing(ctx, "r3", TypeBatch))
	require.NoError(t, svc.PublishJobTrace(ctx, "r3", map[string]int{"batch": 1}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "updated", msg.Payload)
	msg, err = sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, `trace:{"batch":1}`, msg.Payload)
}
