package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	rds "contentscore/internal/platform/redis"
)

// ErrNotFound is returned when no status is stored for a run.
var ErrNotFound = errors.New("job not found")

type JobService struct {
	redis *rds.Service
	now   func() time.Time
}

func NewJobService(redis *rds.Service) *JobService {
	return &JobService{redis: redis, now: time.Now}
}

func (s *JobService) GetJobStatus(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	if err := s.redis.CacheGet(ctx, key(jobID), &job); err != nil {
		if errors.Is(err, rds.ErrCacheMiss) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	return &job, nil
}

// store merges the update into the existing record, saves it and publishes
// "updated" on the job channel.
func (s *JobService) store(ctx context.Context, jobID string, jobType Type, status Status, mutate func(*Job)) error {
	var job Job
	_ = s.redis.CacheGet(ctx, key(jobID), &job)
	job.JobID = jobID
	job.Type = jobType
	job.Status = status
	job.UpdatedAt = s.now().UTC().Format(time.RFC3339)
	if mutate != nil {
		mutate(&job)
	}
	if err := s.redis.CacheSet(ctx, key(jobID), job, ttl(status)); err != nil {
		return err
	}
	_ = s.redis.Publish(ctx, key(jobID), "updated")
	return nil
}

func (s *JobService) InitPending(ctx context.Context, jobID string, jobType Type, urlCount int) error {
	return s.store(ctx, jobID, jobType, StatusPending, func(j *Job) {
		j.URLCount = urlCount
		j.Error = ""
		j.Summary = nil
	})
}

func (s *JobService) SetProcessing(ctx context.Context, jobID string, jobType Type) error {
	return s.store(ctx, jobID, jobType, StatusProcessing, nil)
}

// Progress stores a partial summary while the run is still processing.
func (s *JobService) Progress(ctx context.Context, jobID string, jobType Type, summary Summary) error {
	return s.store(ctx, jobID, jobType, StatusProcessing, func(j *Job) { j.Summary = &summary })
}

func (s *JobService) Complete(ctx context.Context, jobID string, jobType Type, summary Summary) error {
	return s.store(ctx, jobID, jobType, StatusCompleted, func(j *Job) {
		j.Summary = &summary
		j.Error = ""
	})
}

func (s *JobService) Fail(ctx context.Context, jobID string, jobType Type, cause error) error {
	return s.store(ctx, jobID, jobType, StatusFailed, func(j *Job) {
		if cause != nil {
			j.Error = cause.Error()
		}
	})
}

// PublishJobTrace publishes a structured event on the job channel.
func (s *JobService) PublishJobTrace(ctx context.Context, jobID string, event interface{}) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal trace event: %w", err)
	}
	return s.redis.Publish(ctx, key(jobID), "trace:"+string(b))
}

// Channel is the pub/sub channel carrying updates for jobID.
func Channel(jobID string) string { return key(jobID) }

func key(id string) string { return "job:" + id }

func ttl(s Status) time.Duration {
	if s.Terminal() {
		return time.Hour
	}
	return 10 * time.Minute
}
