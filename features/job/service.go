package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reviewrag/internal/config"
	"reviewrag/internal/middleware"
	"reviewrag/internal/worker"
)

var (
	ErrJobsDisabled   = errors.New("job history is disabled")
	ErrQueueDisabled  = errors.New("scrape queue is disabled")
	ErrNotFound       = errors.New("job not found")
	ErrNotFailed      = errors.New("only failed jobs can be retried")
	ErrPublishTimeout = errors.New("timeout waiting for NSQ publish")
)

const defaultPublishTimeout = 5 * time.Second

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// Service records scrape runs. A Service without a repository is valid and
// reports ErrJobsDisabled from every call, so callers may hold a nil-safe one.
type Service struct {
	repo           Repository
	pub            EventPublisher
	publishTimeout time.Duration
}

func NewService(repo Repository, pub EventPublisher) *Service {
	return &Service{repo: repo, pub: pub, publishTimeout: defaultPublishTimeout}
}

// WithPublishTimeout overrides how long Retry waits on the broker.
func (s *Service) WithPublishTimeout(d time.Duration) *Service {
	s.publishTimeout = d
	return s
}

func (s *Service) Enabled() bool {
	return s != nil && s.repo != nil
}

// Start records a new run for url. queued runs start pending, direct runs start running.
func (s *Service) Start(ctx context.Context, url string, queued bool) (*Job, error) {
	if !s.Enabled() {
		return nil, ErrJobsDisabled
	}
	j := &Job{URL: url, Status: StatusRunning}
	if queued {
		j.Status = StatusPending
	}
	if err := s.repo.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return j, nil
}

func (s *Service) MarkRunning(ctx context.Context, id string) error {
	if !s.Enabled() {
		return ErrJobsDisabled
	}
	return s.repo.SetStatus(ctx, id, StatusRunning)
}

func (s *Service) Complete(ctx context.Context, id, productID string, documents int) error {
	if !s.Enabled() {
		return ErrJobsDisabled
	}
	return s.repo.Complete(ctx, id, productID, documents)
}

func (s *Service) Fail(ctx context.Context, id string, cause error) error {
	if !s.Enabled() {
		return ErrJobsDisabled
	}
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return s.repo.Fail(ctx, id, msg)
}

func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	if !s.Enabled() {
		return nil, ErrJobsDisabled
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) ListFailed(ctx context.Context) ([]Job, error) {
	if !s.Enabled() {
		return nil, ErrJobsDisabled
	}
	return s.repo.ListByStatus(ctx, StatusFailed)
}

func (s *Service) CountFailed(ctx context.Context) (int, error) {
	if !s.Enabled() {
		return 0, ErrJobsDisabled
	}
	return s.repo.CountByStatus(ctx, StatusFailed)
}

// Retry moves a failed job back to pending and republishes it to the scrape topic.
func (s *Service) Retry(ctx context.Context, id string) error {
	if !s.Enabled() {
		return ErrJobsDisabled
	}
	if s.pub == nil {
		return ErrQueueDisabled
	}

	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if j.Status != StatusFailed {
		return ErrNotFailed
	}

	body, err := json.Marshal(worker.ScrapeTask{
		URL:           j.URL,
		JobID:         j.ID,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err != nil {
		return err
	}

	if err := s.repo.MarkRetried(ctx, id); err != nil {
		return err
	}

	if err := s.publish(config.TopicScrapeTask, body); err != nil {
		// Leave the job visible in the failed list so it can be retried again.
		if ferr := s.repo.Fail(ctx, id, "requeue failed: "+err.Error()); ferr != nil {
			slog.ErrorContext(ctx, "failed to restore job status", "id", id, "error", ferr)
		}
		return err
	}
	return nil
}

func (s *Service) publish(topic string, body []byte) error {
	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(topic, body)
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(s.publishTimeout):
		return ErrPublishTimeout
	}
}
