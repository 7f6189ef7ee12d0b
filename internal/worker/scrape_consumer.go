package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"reviewrag/internal/browser"
	"reviewrag/internal/middleware"
)

const defaultTaskTimeout = 5 * time.Minute

type ScrapeConsumer struct {
	scraper Scraper
	timeout time.Duration
}

func NewScrapeConsumer(s Scraper, timeout time.Duration) *ScrapeConsumer {
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	return &ScrapeConsumer{scraper: s, timeout: timeout}
}

func (h *ScrapeConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task ScrapeTask
	if err := json.Unmarshal(m.Body, &task); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	ctx := context.Background()
	if task.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, task.CorrelationID)
	}

	if err := h.scraper.Validate(task.URL); err != nil {
		slog.ErrorContext(ctx, "poison pill: rejected url", "url", task.URL, "error", err)
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := h.scraper.Run(runCtx, task); err != nil {
		var loadErr *browser.PageLoadError
		if errors.As(err, &loadErr) {
			// The page itself is unreachable; requeueing would hit the same wall.
			slog.WarnContext(ctx, "scrape task dropped", "url", task.URL, "job_id", task.JobID, "error", err)
			return nil
		}
		slog.ErrorContext(ctx, "scrape task failed", "url", task.URL, "job_id", task.JobID, "attempts", m.Attempts, "error", err)
		return err // Retry
	}

	slog.InfoContext(ctx, "scrape task completed", "url", task.URL, "job_id", task.JobID)
	return nil
}
