package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"reviewrag/features/job"
	"reviewrag/internal/config"
	"reviewrag/internal/extract"
	"reviewrag/internal/middleware"
	"reviewrag/internal/worker"
)

var ErrUnsupportedURL = errors.New("unsupported product url")

type Extractor interface {
	Scrape(ctx context.Context, url string) (*extract.ScrapedProduct, error)
}

type Indexer interface {
	IndexProduct(ctx context.Context, p *extract.ScrapedProduct) (int, error)
}

type Result struct {
	ProductID    string               `json:"product_id"`
	ProductName  string               `json:"product_name"`
	ReviewCount  int                  `json:"review_count"`
	Documents    int                  `json:"documents"`
	ReviewSource extract.ReviewSource `json:"review_source"`
	Degraded     []string             `json:"degraded"`
	Message      string               `json:"message"`
	JobID        string               `json:"job_id,omitempty"`
}

// Queued describes a scrape accepted onto the task topic.
type Queued struct {
	URL    string `json:"url"`
	JobID  string `json:"job_id,omitempty"`
	Status string `json:"status"`
}

type Service struct {
	extractor    Extractor
	indexer      Indexer
	jobs         *job.Service
	pub          job.EventPublisher
	allowedHosts []string
}

func NewService(e Extractor, idx Indexer, jobs *job.Service, pub job.EventPublisher, allowedHosts []string) *Service {
	return &Service{
		extractor:    e,
		indexer:      idx,
		jobs:         jobs,
		pub:          pub,
		allowedHosts: allowedHosts,
	}
}

// Validate accepts http(s) URLs whose host is an allowed host or one of its subdomains.
func (s *Service) Validate(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	for _, allowed := range s.allowedHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "" {
			continue
		}
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w: host %q", ErrUnsupportedURL, host)
}

// Scrape extracts and indexes one product synchronously.
func (s *Service) Scrape(ctx context.Context, rawURL string) (*Result, error) {
	if err := s.Validate(rawURL); err != nil {
		return nil, err
	}

	var jobID string
	if s.jobs.Enabled() {
		j, err := s.jobs.Start(ctx, rawURL, false)
		if err != nil {
			slog.WarnContext(ctx, "failed to record scrape job", "url", rawURL, "error", err)
		} else {
			jobID = j.ID
		}
	}

	res, err := s.pipeline(ctx, rawURL)
	s.record(ctx, jobID, res, err)
	if err != nil {
		return nil, err
	}
	res.JobID = jobID
	return res, nil
}

// Run executes a queued task. It satisfies worker.Scraper.
func (s *Service) Run(ctx context.Context, task worker.ScrapeTask) error {
	jobID := task.JobID
	if s.jobs.Enabled() {
		if jobID != "" {
			if err := s.jobs.MarkRunning(ctx, jobID); err != nil {
				slog.WarnContext(ctx, "failed to mark job running", "job_id", jobID, "error", err)
			}
		} else if j, err := s.jobs.Start(ctx, task.URL, false); err == nil {
			jobID = j.ID
		}
	}

	res, err := s.pipeline(ctx, task.URL)
	s.record(ctx, jobID, res, err)
	return err
}

// Enqueue publishes url to the scrape topic for a background worker.
func (s *Service) Enqueue(ctx context.Context, rawURL string) (*Queued, error) {
	if err := s.Validate(rawURL); err != nil {
		return nil, err
	}
	if s.pub == nil {
		return nil, job.ErrQueueDisabled
	}

	q := &Queued{URL: rawURL, Status: job.StatusPending}
	if s.jobs.Enabled() {
		j, err := s.jobs.Start(ctx, rawURL, true)
		if err != nil {
			return nil, err
		}
		q.JobID = j.ID
	}

	body, err := json.Marshal(worker.ScrapeTask{
		URL:           rawURL,
		JobID:         q.JobID,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err != nil {
		return nil, err
	}

	if err := s.pub.Publish(config.TopicScrapeTask, body); err != nil {
		if q.JobID != "" {
			if ferr := s.jobs.Fail(ctx, q.JobID, fmt.Errorf("publish: %w", err)); ferr != nil {
				slog.WarnContext(ctx, "failed to update scrape job", "job_id", q.JobID, "error", ferr)
			}
		}
		return nil, fmt.Errorf("publish scrape task: %w", err)
	}

	slog.InfoContext(ctx, "scrape task queued", "url", rawURL, "job_id", q.JobID)
	return q, nil
}

func (s *Service) pipeline(ctx context.Context, rawURL string) (*Result, error) {
	product, err := s.extractor.Scrape(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	ctx = middleware.WithProductID(ctx, product.ProductID)

	docs, err := s.indexer.IndexProduct(ctx, product)
	if err != nil {
		return nil, fmt.Errorf("index product %s: %w", product.ProductID, err)
	}

	degraded := product.Diagnostics.Degraded
	if degraded == nil {
		degraded = []string{}
	}
	return &Result{
		ProductID:    product.ProductID,
		ProductName:  product.ProductName,
		ReviewCount:  len(product.Reviews),
		Documents:    docs,
		ReviewSource: product.Diagnostics.ReviewSource,
		Degraded:     degraded,
		Message:      fmt.Sprintf("%d documents stored.", docs),
	}, nil
}

func (s *Service) record(ctx context.Context, jobID string, res *Result, runErr error) {
	if jobID == "" {
		return
	}
	var err error
	if runErr != nil {
		err = s.jobs.Fail(ctx, jobID, runErr)
	} else {
		err = s.jobs.Complete(ctx, jobID, res.ProductID, res.Documents)
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to update scrape job", "job_id", jobID, "error", err)
	}
}
