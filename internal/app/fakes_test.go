package app_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"reviewrag/internal/adapter/gemini"
	"reviewrag/internal/config"
	"reviewrag/internal/extract"
	"reviewrag/internal/pagestate"
)

const (
	productURL = "https://www.trendyol.com/acme/kettle-p-725"
	reviewsURL = "https://www.trendyol.com/acme/kettle-p-725/yorumlar"
)

var pages = map[string]string{
	productURL: `{"product":{"product":{"name":"Kettle","brand":{"name":"Acme"},
		"description":"<p>Steel <b>kettle</b></p>"},
		"categoryHierarchy":[{"name":"Home"},{"name":"Kitchen"}]}}`,
	reviewsURL: `{"reviews":[{"comment":"Boils water really fast"},{"comment":"The handle gets hot"}]}`,
}

// statePage serves canned structured state per URL.
type statePage struct {
	mu      sync.Mutex
	current string
}

func (p *statePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = url
	return nil
}

func (p *statePage) StructuredState(ctx context.Context) (pagestate.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	raw, ok := pages[p.current]
	if !ok {
		return pagestate.Node{}, nil
	}
	return pagestate.Parse([]byte(raw))
}

func (p *statePage) Texts(ctx context.Context, selector string) ([]string, error) { return nil, nil }

func (p *statePage) WaitText(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	return "", errors.New("no element")
}

func (p *statePage) ScrollTo(ctx context.Context, fraction float64) error { return nil }

func (p *statePage) Close() error { return nil }

func fakeRenderer() extract.Renderer {
	return extract.RendererFunc(func(ctx context.Context, url string) (extract.Session, error) {
		p := &statePage{}
		return p, p.Navigate(ctx, url)
	})
}

// keywordEmbedder maps text onto a few fixed axes so similar wording lands close.
type keywordEmbedder struct{}

var axes = []string{"kettle", "water", "handle", "hot"}

func (keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	v := make([]float32, len(axes)+1)
	for i, a := range axes {
		v[i] = float32(strings.Count(lower, a))
	}
	v[len(axes)] = 0.1
	return v, nil
}

func (e keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

type recordingGenerator struct {
	mu   sync.Mutex
	last gemini.ReplyRequest
}

func (g *recordingGenerator) Reply(ctx context.Context, req gemini.ReplyRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = req
	return "Thank you for your review of " + req.ProductName, nil
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		ScraperHeadless:      true,
		ScraperTimeout:       5,
		MaxReviewsPerProduct: 50,
		AllowedHosts:         []string{"trendyol.com"},
		VectorBackend:        config.BackendSQLite,
		VectorStorePath:      dir,
		RetrievalTopK:        5,
		QueryLogPath:         dir + "/query.log",
		ScrapeConcurrency:    1,
	}
}
