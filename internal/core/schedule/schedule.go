package schedule

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"contentscore/internal/core/batch"
	"contentscore/internal/core/discover"
	"contentscore/internal/logger"
)

// Task is one recurring run. At least one of URLs, File or RSS must be set.
type Task struct {
	Name     string   `yaml:"name"`
	Schedule string   `yaml:"schedule"`
	URLs     []string `yaml:"urls"`
	File     string   `yaml:"file"`
	RSS      string   `yaml:"rss"`
}

type File struct {
	Tasks []Task `yaml:"tasks"`
}

// Load reads a YAML schedule file.
func Load(path string) (File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read schedule %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return File{}, fmt.Errorf("parse schedule %s: %w", path, err)
	}
	return f, nil
}

// Submitter starts a batch run; batch.Service.Enqueue satisfies it.
type Submitter interface {
	Enqueue(ctx context.Context, req batch.Request) (string, error)
}

type feedLinker interface {
	Links(ctx context.Context, feedURL string, limit int) ([]string, error)
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Prefix derives the report prefix for a task.
func Prefix(name string) string {
	if name == "" {
		return "scheduled"
	}
	return nonAlnum.ReplaceAllString(name, "-")
}

// Parser accepts five-field expressions with optional leading seconds and
// descriptors such as @daily.
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var errNoSources = errors.New("no URL sources")

// Scheduler runs tasks on their cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	submit Submitter
	feeds  feedLinker
	log    *logger.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func New(submit Submitter, feeds feedLinker) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithParser(Parser)),
		submit:  submit,
		feeds:   feeds,
		log:     logger.New("Scheduler"),
		entries: map[string]cron.EntryID{},
	}
}

func taskLabel(i int, t Task) string {
	if t.Name != "" {
		return t.Name
	}
	return fmt.Sprintf("Task %d", i+1)
}

// Register adds every valid task and returns how many were scheduled. Tasks
// without a schedule or sources are skipped with a warning; invalid cron
// expressions are reported and skipped.
func (s *Scheduler) Register(ctx context.Context, tasks []Task) int {
	if len(tasks) == 0 {
		s.log.LogWarn("No tasks configured")
		return 0
	}
	n := 0
	for i, t := range tasks {
		label := taskLabel(i, t)
		if t.Schedule == "" {
			s.log.LogWarnf("%s has no schedule, skipping", label)
			continue
		}
		if len(t.URLs) == 0 && t.File == "" && t.RSS == "" {
			s.log.LogWarnf("%s has no URL sources, skipping", label)
			continue
		}
		sched, err := Parser.Parse(t.Schedule)
		if err != nil {
			s.log.LogErrorf("Invalid cron expression for %s: %s (%v)", label, t.Schedule, err)
			continue
		}
		task := t
		id := s.cron.Schedule(sched, cron.FuncJob(func() { s.Execute(ctx, task) }))
		s.mu.Lock()
		s.entries[label] = id
		s.mu.Unlock()
		n++
		s.log.LogSuccessf("Scheduled %s (%s), next run %s", label, t.Schedule, sched.Next(time.Now()).Format(time.RFC3339))
	}
	return n
}

// Next returns the next activation of a registered task.
func (s *Scheduler) Next(label string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[label]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for running ticks to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Resolve gathers a task's URLs from its inline list, file and feed.
func (s *Scheduler) Resolve(ctx context.Context, t Task) ([]string, error) {
	urls := append([]string(nil), t.URLs...)
	if t.File != "" {
		fromFile, err := discover.ReadURLFile(t.File)
		if err != nil {
			return nil, err
		}
		urls = append(urls, fromFile...)
	}
	if t.RSS != "" && s.feeds != nil {
		fromFeed, err := s.feeds.Links(ctx, t.RSS, 0)
		if err != nil {
			return nil, err
		}
		urls = append(urls, fromFeed...)
	}
	if len(urls) == 0 {
		return nil, errNoSources
	}
	return urls, nil
}

// Execute resolves a task's URLs and submits a run. Failures are logged.
func (s *Scheduler) Execute(ctx context.Context, t Task) {
	label := t.Name
	if label == "" {
		label = "Unnamed Task"
	}
	s.log.LogInfof("Executing task: %s", label)
	urls, err := s.Resolve(ctx, t)
	if err != nil {
		if errors.Is(err, errNoSources) {
			s.log.LogWarnf("No URLs found for task: %s", label)
			return
		}
		s.log.LogErrorf("Error resolving task %s: %v", label, err)
		return
	}
	id, err := s.submit.Enqueue(ctx, batch.Request{URLs: urls, ReportPrefix: Prefix(t.Name)})
	if err != nil {
		s.log.LogErrorf("Error submitting task %s: %v", label, err)
		return
	}
	s.log.LogSuccessf("Task %s submitted as run %s with %d URL(s)", label, id, len(urls))
}
