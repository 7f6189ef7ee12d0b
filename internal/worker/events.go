package worker

// ScrapeTask is the body published to the scrape topic.
type ScrapeTask struct {
	URL   string `json:"url"`
	JobID string `json:"job_id,omitempty"`

	CorrelationID string `json:"correlation_id"`
}
