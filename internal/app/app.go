package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nsqio/go-nsq"

	"reviewrag/features/chat"
	"reviewrag/features/job"
	"reviewrag/features/product"
	"reviewrag/features/scrape"
	"reviewrag/features/stats"
	"reviewrag/internal/browser"
	"reviewrag/internal/config"
	"reviewrag/internal/extract"
	"reviewrag/internal/middleware"
	"reviewrag/internal/retrieval"
	"reviewrag/internal/worker"
)

const version = "1.0.0"

// Options replaces collaborators, mainly for tests. Nil fields use the
// configured defaults.
type Options struct {
	Store     VectorStore
	Embedder  retrieval.Embedder
	Generator chat.Generator
	Renderer  extract.Renderer
}

type App struct {
	Handler        http.Handler
	Scrape         *scrape.Service
	Products       *product.Service
	Chat           *chat.Service
	Jobs           *job.Service
	ScrapeConsumer *worker.ScrapeConsumer
	Resources      *Resources

	cfg      *config.Config
	queryLog *retrieval.QueryLogger
}

func New(cfg *config.Config, deps *Dependencies, opts *Options) (*App, error) {
	if deps == nil {
		deps = &Dependencies{}
	}
	if opts == nil {
		opts = &Options{}
	}

	resources := NewResources(cfg, opts)

	// Feature: Retrieval
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stderr", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stderr)
	}
	retrievalService := retrieval.NewService(resources.Embedder(), resources.Store(), queryLogger)

	// Feature: Job
	var pub job.EventPublisher
	if deps.NSQProducer != nil {
		pub = deps.NSQProducer
	}
	var jobRepo job.Repository
	if deps.DB != nil {
		jobRepo = job.NewPostgresRepo(deps.DB)
	}
	jobService := job.NewService(jobRepo, pub)
	jobHandler := job.NewHandler(jobService)

	// Feature: Scrape
	renderer := opts.Renderer
	if renderer == nil {
		renderer = browserRenderer(browser.NewRenderer(browser.Options{
			Headless:      cfg.ScraperHeadless,
			Timeout:       cfg.PageLoadTimeout(),
			Bin:           cfg.BrowserBin,
			RatePerMinute: cfg.ScrapeRatePerMinute,
		}))
	}
	scraper := extract.NewScraper(renderer, extract.Options{
		Timeout:      cfg.PageLoadTimeout(),
		MaxReviews:   cfg.MaxReviewsPerProduct,
		ReviewSettle: time.Duration(cfg.ReviewSettleMS) * time.Millisecond,
		ScrollSettle: time.Duration(cfg.ScrollSettleMS) * time.Millisecond,
	})
	scrapeService := scrape.NewService(scraper, retrievalService, jobService, pub, cfg.AllowedHosts)
	scrapeHandler := scrape.NewHandler(scrapeService)

	// Feature: Product
	productService := product.NewService(retrievalService)
	productHandler := product.NewHandler(productService)

	// Feature: Chat
	chatService := chat.NewService(retrievalService, resources.Generator(), cfg.RetrievalTopK)
	chatHandler := chat.NewHandler(chatService)

	// Feature: Stats
	statsHandler := stats.NewHandler(retrievalService, jobService)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Correlation-ID")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /scrape", middleware.CorrelationID(enableCORS(scrapeHandler.Scrape)))
	mux.Handle("POST /chat", middleware.CorrelationID(enableCORS(chatHandler.Reply)))

	mux.Handle("GET /products", middleware.CorrelationID(enableCORS(productHandler.List)))
	mux.Handle("GET /products/{id}", middleware.CorrelationID(enableCORS(productHandler.Get)))

	mux.Handle("GET /jobs/failed", middleware.CorrelationID(enableCORS(jobHandler.ListFailed)))
	mux.Handle("POST /jobs/{id}/retry", middleware.CorrelationID(enableCORS(jobHandler.Retry)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if err := resources.Ready(r.Context()); err != nil {
			slog.WarnContext(r.Context(), "vector store not ready", "error", err)
			status, code = "degraded", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{
			"status":         status,
			"version":        version,
			"vector_backend": cfg.VectorBackend,
		})
	})

	return &App{
		Handler:        mux,
		Scrape:         scrapeService,
		Products:       productService,
		Chat:           chatService,
		Jobs:           jobService,
		ScrapeConsumer: worker.NewScrapeConsumer(scrapeService, 2*cfg.PageLoadTimeout()+time.Minute),
		Resources:      resources,
		cfg:            cfg,
		queryLog:       queryLogger,
	}, nil
}

func browserRenderer(r *browser.Renderer) extract.Renderer {
	return extract.RendererFunc(func(ctx context.Context, url string) (extract.Session, error) {
		page, err := r.Open(ctx, url)
		if err != nil {
			return nil, err
		}
		return page, nil
	})
}

// StartConsumer subscribes the scrape worker to the task topic via nsqlookupd.
func (a *App) StartConsumer() (*nsq.Consumer, error) {
	nsqCfg := nsq.NewConfig()
	nsqCfg.MaxInFlight = a.cfg.ScrapeConcurrency
	nsqCfg.MsgTimeout = 2*a.cfg.PageLoadTimeout() + 2*time.Minute

	consumer, err := nsq.NewConsumer(config.TopicScrapeTask, config.ChannelScrapeWorker, nsqCfg)
	if err != nil {
		return nil, fmt.Errorf("nsq consumer error: %w", err)
	}
	consumer.AddConcurrentHandlers(a.ScrapeConsumer, a.cfg.ScrapeConcurrency)

	if err := consumer.ConnectToNSQLookupd(a.cfg.NSQLookupd); err != nil {
		consumer.Stop()
		return nil, fmt.Errorf("failed to connect to NSQLookupd: %w", err)
	}
	slog.Info("NSQ scrape consumer connected", "concurrency", a.cfg.ScrapeConcurrency)
	return consumer, nil
}

func (a *App) Run(ctx context.Context) error {
	if a.cfg.EnableScrapeWorker {
		consumer, err := a.StartConsumer()
		if err != nil {
			slog.Error("scrape worker disabled", "error", err)
		} else {
			defer consumer.Stop()
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *App) Close() error {
	return errors.Join(a.Resources.Close(), a.queryLog.Close())
}
