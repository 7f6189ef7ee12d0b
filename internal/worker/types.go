package worker

import (
	"context"
)

// Scraper runs one queued scrape end to end, including job bookkeeping.
type Scraper interface {
	Validate(rawURL string) error
	Run(ctx context.Context, task ScrapeTask) error
}
