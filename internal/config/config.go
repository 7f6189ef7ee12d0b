package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

const (
	BackendSQLite   = "sqlite"
	BackendWeaviate = "weaviate"
)

type Config struct {
	// Scraper
	ScraperHeadless      bool     `envconfig:"SCRAPER_HEADLESS" default:"true"`
	ScraperTimeout       int      `envconfig:"SCRAPER_TIMEOUT" default:"30"` // seconds
	MaxReviewsPerProduct int      `envconfig:"MAX_REVIEWS_PER_PRODUCT" default:"50"`
	ReviewSettleMS       int      `envconfig:"REVIEW_SETTLE_MS" default:"3000"`
	ScrollSettleMS       int      `envconfig:"SCROLL_SETTLE_MS" default:"2000"`
	BrowserBin           string   `envconfig:"BROWSER_BIN"`
	ScrapeRatePerMinute  float64  `envconfig:"SCRAPE_RATE_PER_MINUTE" default:"6"`
	AllowedHosts         []string `envconfig:"ALLOWED_HOSTS" default:"trendyol.com"`

	// Vector storage
	VectorBackend   string `envconfig:"VECTOR_BACKEND" default:"sqlite"`
	VectorStorePath string `envconfig:"VECTOR_STORE_PATH" default:"./vector_db"`
	WeaviateHost    string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme  string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	// Models
	GeminiAPIKey    string `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel  string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	GenerationModel string `envconfig:"GENERATION_MODEL" default:"gemini-2.0-flash"`
	RetrievalTopK   int    `envconfig:"RETRIEVAL_TOP_K" default:"5"`

	// Job history (Postgres)
	JobsEnabled   bool   `envconfig:"JOBS_ENABLED" default:"false"`
	DBHost        string `envconfig:"DB_HOST" default:"postgres"`
	DBPort        int    `envconfig:"DB_PORT" default:"5432"`
	DBUser        string `envconfig:"DB_USER" default:"reviewrag"`
	DBPass        string `envconfig:"DB_PASS" default:"password"`
	DBName        string `envconfig:"DB_NAME" default:"reviewrag"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Queue
	EnableScrapeWorker bool   `envconfig:"ENABLE_SCRAPE_WORKER" default:"false"`
	ScrapeConcurrency  int    `envconfig:"SCRAPE_CONCURRENCY" default:"2"`
	NSQDHost           string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP           string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	NSQLookupd         string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`

	// Server
	ServerPort   int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars may already be set in the shell, so a missing .env is fine.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.ScraperTimeout <= 0 {
		return fmt.Errorf("%w: SCRAPER_TIMEOUT must be positive", ErrInvalidValue)
	}
	if c.MaxReviewsPerProduct <= 0 {
		return fmt.Errorf("%w: MAX_REVIEWS_PER_PRODUCT must be positive", ErrInvalidValue)
	}

	switch c.VectorBackend {
	case BackendSQLite:
		if c.VectorStorePath == "" {
			return fmt.Errorf("%w: VECTOR_STORE_PATH", ErrMissingRequired)
		}
	case BackendWeaviate:
		if c.WeaviateHost == "" {
			return fmt.Errorf("%w: WEAVIATE_HOST", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: VECTOR_BACKEND %q", ErrInvalidValue, c.VectorBackend)
	}

	if c.EnableScrapeWorker && c.ScrapeConcurrency <= 0 {
		return fmt.Errorf("%w: SCRAPE_CONCURRENCY must be positive", ErrInvalidValue)
	}

	if c.JobsEnabled {
		if c.DBHost == "" {
			return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
		}
		if c.DBUser == "" {
			return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
		}
		if c.DBName == "" {
			return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
		}
	}
	return nil
}

// PageLoadTimeout bounds the initial navigation and every element wait.
func (c *Config) PageLoadTimeout() time.Duration {
	return time.Duration(c.ScraperTimeout) * time.Second
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}
