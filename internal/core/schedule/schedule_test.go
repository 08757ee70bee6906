package schedule

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentscore/internal/core/batch"
)

type recordingSubmitter struct {
	mu   sync.Mutex
	reqs []batch.Request
	err  error
}

func (r *recordingSubmitter) Enqueue(_ context.Context, req batch.Request) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return "run-id", r.err
}

type stubFeeds map[string][]string

func (s stubFeeds) Links(_ context.Context, feedURL string, _ int) ([]string, error) {
	links, ok := s[feedURL]
	if !ok {
		return nil, errors.New("feed down")
	}
	return links, nil
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "scheduled", Prefix(""))
	assert.Equal(t, "Daily-news--AM-", Prefix("Daily news (AM)"))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.yaml")
	body := `tasks:
  - name: nightly
    schedule: "0 2 * * *"
    urls: [https://a.test/1]
  - name: feed
    schedule: "@hourly"
    rss: https://f.test/rss
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	require.Len(t, f.Tasks, 2)
	assert.Equal(t, []string{"https://a.test/1"}, f.Tasks[0].URLs)
	assert.Equal(t, "https://f.test/rss", f.Tasks[1].RSS)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRegisterSkipsInvalidTasks(t *testing.T) {
	s := New(&recordingSubmitter{}, stubFeeds{})
	n := s.Register(context.Background(), []Task{
		{Name: "ok", Schedule: "*/5 * * * *", URLs: []string{"https://a.test"}},
		{Name: "seconds", Schedule: "30 0 3 * * *", RSS: "https://f.test"},
		{Name: "no schedule", URLs: []string{"https://a.test"}},
		{Name: "no sources", Schedule: "* * * * *"},
		{Name: "bad cron", Schedule: "every day", URLs: []string{"https://a.test"}},
	})

	assert.Equal(t, 2, n)
	_, ok := s.Next("ok")
	assert.True(t, ok)
	_, ok = s.Next("bad cron")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Register(context.Background(), nil))
}

func TestExecuteCombinesSources(t *testing.T) {
	file := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(file, []byte("https://file.test/1\n# skip\nhttps://file.test/2\n"), 0o644))
	sub := &recordingSubmitter{}
	s := New(sub, stubFeeds{"https://f.test/rss": {"https://feed.test/1"}})

	s.Execute(context.Background(), Task{
		Name: "Morning run",
		URLs: []string{"https://inline.test"},
		File: file,
		RSS:  "https://f.test/rss",
	})

	require.Len(t, sub.reqs, 1)
	assert.Equal(t, []string{"https://inline.test", "https://file.test/1", "https://file.test/2", "https://feed.test/1"}, sub.reqs[0].URLs)
	assert.Equal(t, "Morning-run", sub.reqs[0].ReportPrefix)
}

func TestExecuteSkipsEmptyAndFailingSources(t *testing.T) {
	sub := &recordingSubmitter{}
	s := New(sub, stubFeeds{"https://empty.test/rss": nil})

	s.Execute(context.Background(), Task{Name: "empty", RSS: "https://empty.test/rss"})
	s.Execute(context.Background(), Task{Name: "down", RSS: "https://down.test/rss"})
	s.Execute(context.Background(), Task{Name: "missing file", File: filepath.Join(t.TempDir(), "nope.txt")})

	assert.Empty(t, sub.reqs)
}

func TestExecuteLogsSubmitErrors(t *testing.T) {
	sub := &recordingSubmitter{err: errors.New("queue down")}
	s := New(sub, nil)
	assert.NotPanics(t, func() {
		s.Execute(context.Background(), Task{URLs: []string{"https://a.test"}})
	})
	require.Len(t, sub.reqs, 1)
	assert.Equal(t, "scheduled", sub.reqs[0].ReportPrefix)
}

func TestStartStop(t *testing.T) {
	s := New(&recordingSubmitter{}, nil)
	s.Register(context.Background(), []Task{{Name: "t", Schedule: "@daily", URLs: []string{"https://a.test"}}})
	s.Start()
	s.Stop()
}
