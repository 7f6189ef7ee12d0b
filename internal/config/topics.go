package config

const (
	// TopicScrapeTask carries queued product URLs for the scrape worker.
	TopicScrapeTask = "scrape.task"

	// ChannelScrapeWorker is the consumer channel shared by scrape workers.
	ChannelScrapeWorker = "scraper"
)
