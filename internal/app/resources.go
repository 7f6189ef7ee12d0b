package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"reviewrag/features/chat"
	"reviewrag/internal/adapter/gemini"
	sqlitestore "reviewrag/internal/adapter/sqlite"
	wstore "reviewrag/internal/adapter/weaviate"
	"reviewrag/internal/config"
	"reviewrag/internal/retrieval"
	"reviewrag/internal/vector"
)

// VectorStore is the persistence surface the retrieval service needs.
type VectorStore interface {
	retrieval.Store
}

type readyChecker interface {
	Ready(ctx context.Context) (bool, error)
}

type documentCounter interface {
	CountDocuments(ctx context.Context) (int, error)
}

// errBuilding is returned by tryGet while another caller's build runs.
var errBuilding = errors.New("initialisation in progress")

// lazy builds a value on first successful use. Failed builds are not cached,
// so a later call retries. Only one build runs at a time.
type lazy[T any] struct {
	build func(ctx context.Context) (T, error)

	once sync.Once
	sem  chan struct{} // held for the duration of a build

	mu    sync.Mutex
	value T
	ready bool
}

// get returns the value, building it if needed. Waiting on another caller's
// build ends with ctx.
func (l *lazy[T]) get(ctx context.Context) (T, error) { return l.load(ctx, true) }

// tryGet is get without the wait: it fails with errBuilding while a build is
// in flight elsewhere.
func (l *lazy[T]) tryGet(ctx context.Context) (T, error) { return l.load(ctx, false) }

func (l *lazy[T]) load(ctx context.Context, wait bool) (T, error) {
	var zero T
	if v, ok := l.peek(); ok {
		return v, nil
	}

	l.once.Do(func() { l.sem = make(chan struct{}, 1) })
	if wait {
		select {
		case l.sem <- struct{}{}:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	} else {
		select {
		case l.sem <- struct{}{}:
		default:
			return zero, errBuilding
		}
	}
	defer func() { <-l.sem }()

	if v, ok := l.peek(); ok {
		return v, nil
	}
	v, err := l.build(ctx)
	if err != nil {
		return zero, err
	}

	l.mu.Lock()
	l.value, l.ready = v, true
	l.mu.Unlock()
	return v, nil
}

func (l *lazy[T]) peek() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.ready
}

// Resources owns the process-wide vector store, embedder and generator.
type Resources struct {
	store     lazy[VectorStore]
	embedder  lazy[retrieval.Embedder]
	generator lazy[chat.Generator]
}

func NewResources(cfg *config.Config, opts *Options) *Resources {
	if opts == nil {
		opts = &Options{}
	}
	r := &Resources{}

	r.store.build = func(ctx context.Context) (VectorStore, error) {
		if opts.Store != nil {
			return opts.Store, nil
		}
		return openVectorStore(ctx, cfg)
	}
	r.embedder.build = func(ctx context.Context) (retrieval.Embedder, error) {
		if opts.Embedder != nil {
			return opts.Embedder, nil
		}
		return gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
	}
	r.generator.build = func(ctx context.Context) (chat.Generator, error) {
		if opts.Generator != nil {
			return opts.Generator, nil
		}
		return gemini.NewGenerator(ctx, cfg.GeminiAPIKey, cfg.GenerationModel)
	}
	return r
}

func openVectorStore(ctx context.Context, cfg *config.Config) (VectorStore, error) {
	switch cfg.VectorBackend {
	case config.BackendWeaviate:
		client, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
		if err != nil {
			return nil, fmt.Errorf("weaviate client error: %w", err)
		}
		store := wstore.NewStore(client)
		delay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
		if err := EnsureSchemaWithRetry(ctx, store, cfg.BootstrapRetryAttempts, delay); err != nil {
			return nil, fmt.Errorf("weaviate schema error: %w", err)
		}
		slog.InfoContext(ctx, "weaviate schema ensured", "host", cfg.WeaviateHost)
		return store, nil
	default:
		store, err := sqlitestore.NewStore(cfg.VectorStorePath)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "vector store opened", "path", store.Path())
		return store, nil
	}
}

// Warmup initialises the store and embedder eagerly. Failures are returned
// but leave both lazily retryable.
func (r *Resources) Warmup(ctx context.Context) error {
	_, serr := r.store.get(ctx)
	_, eerr := r.embedder.get(ctx)
	return errors.Join(serr, eerr)
}

// Ready reports whether the vector store is reachable. It does not queue
// behind an open already in progress.
func (r *Resources) Ready(ctx context.Context) error {
	store, err := r.store.tryGet(ctx)
	if err != nil {
		return err
	}
	if rc, ok := store.(readyChecker); ok {
		ready, err := rc.Ready(ctx)
		if err != nil {
			return err
		}
		if !ready {
			return errors.New("vector store not ready")
		}
	}
	return nil
}

func (r *Resources) Close() error {
	var errs []error
	if s, ok := r.store.peek(); ok {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	if e, ok := r.embedder.peek(); ok {
		if c, ok := e.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	if g, ok := r.generator.peek(); ok {
		if c, ok := g.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// Store returns a retrieval.Store that opens the backend on first use.
func (r *Resources) Store() *StoreProxy { return &StoreProxy{r: r} }

func (r *Resources) Embedder() *EmbedderProxy { return &EmbedderProxy{r: r} }

func (r *Resources) Generator() *GeneratorProxy { return &GeneratorProxy{r: r} }

type StoreProxy struct{ r *Resources }

func (p *StoreProxy) Upsert(ctx context.Context, docs []vector.Document) error {
	s, err := p.r.store.get(ctx)
	if err != nil {
		return err
	}
	return s.Upsert(ctx, docs)
}

func (p *StoreProxy) Query(ctx context.Context, embedding []float32, topK int, filter vector.Filter) ([]vector.Match, error) {
	s, err := p.r.store.get(ctx)
	if err != nil {
		return nil, err
	}
	return s.Query(ctx, embedding, topK, filter)
}

func (p *StoreProxy) GetAll(ctx context.Context) ([]vector.Metadata, error) {
	s, err := p.r.store.get(ctx)
	if err != nil {
		return nil, err
	}
	return s.GetAll(ctx)
}

func (p *StoreProxy) Get(ctx context.Context, filter vector.Filter) ([]vector.Record, error) {
	s, err := p.r.store.get(ctx)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, filter)
}

func (p *StoreProxy) DeleteExcept(ctx context.Context, productID string, keep []string) error {
	s, err := p.r.store.get(ctx)
	if err != nil {
		return err
	}
	return s.DeleteExcept(ctx, productID, keep)
}

func (p *StoreProxy) CountDocuments(ctx context.Context) (int, error) {
	s, err := p.r.store.get(ctx)
	if err != nil {
		return 0, err
	}
	if c, ok := s.(documentCounter); ok {
		return c.CountDocuments(ctx)
	}
	all, err := s.GetAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

type EmbedderProxy struct{ r *Resources }

func (p *EmbedderProxy) Embed(ctx context.Context, text string) ([]float32, error) {
	e, err := p.r.embedder.get(ctx)
	if err != nil {
		return nil, err
	}
	return e.Embed(ctx, text)
}

func (p *EmbedderProxy) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e, err := p.r.embedder.get(ctx)
	if err != nil {
		return nil, err
	}
	return e.EmbedBatch(ctx, texts)
}

type GeneratorProxy struct{ r *Resources }

func (p *GeneratorProxy) Reply(ctx context.Context, req gemini.ReplyRequest) (string, error) {
	g, err := p.r.generator.get(ctx)
	if err != nil {
		return "", err
	}
	return g.Reply(ctx, req)
}
