package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"reviewrag/internal/extract"
	"reviewrag/internal/middleware"
	"reviewrag/internal/vector"
)

var ErrInvalidProduct = errors.New("product has no id")

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is a persistent embedding index shared by all products.
type Store interface {
	Upsert(ctx context.Context, docs []vector.Document) error
	Query(ctx context.Context, embedding []float32, topK int, filter vector.Filter) ([]vector.Match, error)
	GetAll(ctx context.Context) ([]vector.Metadata, error)
	Get(ctx context.Context, filter vector.Filter) ([]vector.Record, error)
	DeleteExcept(ctx context.Context, productID string, keep []string) error
}

type ProductSummary struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Category    string `json:"category"`
}

type Service struct {
	embedder Embedder
	store    Store
	logger   *QueryLogger
	locks    *keyedMutex
}

func NewService(e Embedder, s Store, l *QueryLogger) *Service {
	return &Service{embedder: e, store: s, logger: l, locks: newKeyedMutex()}
}

// DescriptionID and ReviewID name a product's documents.
func DescriptionID(productID string) string { return productID + "_desc" }

func ReviewID(productID string, i int) string { return fmt.Sprintf("%s_review_%d", productID, i) }

// The description document carries the product name so a query naming the
// product lands on it.
func descriptionText(productName, description string) string {
	return fmt.Sprintf("Product: %s\n%s", productName, description)
}

// DescriptionFromText recovers the extracted description from a stored
// description document.
func DescriptionFromText(productName, text string) string {
	return strings.TrimPrefix(text, descriptionText(productName, ""))
}

// BuildDocuments turns a product into its unembedded documents: one for a
// non-empty description and one per review, in review order.
func BuildDocuments(p *extract.ScrapedProduct) []vector.Document {
	md := vector.Metadata{ProductID: p.ProductID, ProductName: p.ProductName, Category: p.Category}

	var docs []vector.Document
	if p.Description != "" {
		m := md
		m.Type = vector.TypeDescription
		docs = append(docs, vector.Document{
			ID:       DescriptionID(p.ProductID),
			Text:     descriptionText(p.ProductName, p.Description),
			Metadata: m,
		})
	}
	for i, r := range p.Reviews {
		m := md
		m.Type = vector.TypeReview
		docs = append(docs, vector.Document{
			ID:       ReviewID(p.ProductID, i),
			Text:     r,
			Metadata: m,
		})
	}
	return docs
}

// IndexProduct embeds and stores a product's documents in one batched
// upsert, then prunes documents left over from an earlier, larger scrape.
// A product with nothing to index is a no-op returning 0.
func (s *Service) IndexProduct(ctx context.Context, p *extract.ScrapedProduct) (int, error) {
	if p == nil || p.ProductID == "" {
		return 0, ErrInvalidProduct
	}
	ctx = middleware.WithProductID(ctx, p.ProductID)

	docs := BuildDocuments(p)
	if len(docs) == 0 {
		slog.InfoContext(ctx, "nothing to index")
		return 0, nil
	}

	unlock := s.locks.Lock(p.ProductID)
	defer unlock()

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed documents: %w", err)
	}
	if len(embeddings) != len(docs) {
		return 0, fmt.Errorf("embed documents: expected %d vectors, got %d", len(docs), len(embeddings))
	}

	ids := make([]string, len(docs))
	for i := range docs {
		docs[i].Embedding = embeddings[i]
		ids[i] = docs[i].ID
	}

	if err := s.store.Upsert(ctx, docs); err != nil {
		return 0, err
	}
	if err := s.store.DeleteExcept(ctx, p.ProductID, ids); err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "indexed product", "documents", len(docs))
	return len(docs), nil
}

// RetrieveContext returns up to topK texts of productID, most similar to
// query first. A product without documents yields an empty slice.
func (s *Service) RetrieveContext(ctx context.Context, productID, query string, topK int) ([]string, error) {
	start := time.Now()
	if topK <= 0 {
		return []string{}, nil
	}

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := s.store.Query(ctx, emb, topK, vector.Filter{vector.KeyProductID: productID})
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		// Stores filter already; this guards the product boundary regardless.
		if m.Metadata.ProductID != productID {
			continue
		}
		out = append(out, m.Text)
		if len(out) == topK {
			break
		}
	}

	if s.logger != nil {
		entry := QueryLogEntry{
			Query:         query,
			ProductID:     productID,
			TopK:          topK,
			NumResults:    len(out),
			Duration:      time.Since(start),
			CorrelationID: middleware.GetCorrelationID(ctx),
		}
		if len(matches) > 0 {
			best := matches[0].Distance
			entry.BestDistance = &best
		}
		s.logger.Log(entry)
	}
	return out, nil
}

// ListProducts returns one summary per product id, keeping the first name
// seen in the store's scan order.
func (s *Service) ListProducts(ctx context.Context) ([]ProductSummary, error) {
	all, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	out := []ProductSummary{}
	for _, md := range all {
		if md.ProductID == "" {
			continue
		}
		if _, ok := seen[md.ProductID]; ok {
			continue
		}
		seen[md.ProductID] = struct{}{}
		out = append(out, ProductSummary{
			ProductID:   md.ProductID,
			ProductName: md.ProductName,
			Category:    md.Category,
		})
	}
	return out, nil
}

func (s *Service) CountReviews(ctx context.Context, productID string) (int, error) {
	recs, err := s.store.Get(ctx, vector.Filter{
		vector.KeyProductID: productID,
		vector.KeyType:      vector.TypeReview,
	})
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// Documents returns every stored document of a product.
func (s *Service) Documents(ctx context.Context, productID string) ([]vector.Record, error) {
	return s.store.Get(ctx, vector.Filter{vector.KeyProductID: productID})
}

type documentCounter interface {
	CountDocuments(ctx context.Context) (int, error)
}

// CountDocuments counts every stored document, asking the store directly when it can.
func (s *Service) CountDocuments(ctx context.Context) (int, error) {
	if c, ok := s.store.(documentCounter); ok {
		return c.CountDocuments(ctx)
	}
	all, err := s.store.GetAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}
