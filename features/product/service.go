package product

import (
	"context"
	"errors"

	"reviewrag/internal/retrieval"
	"reviewrag/internal/vector"
)

var ErrNotFound = errors.New("product not found")

type Catalog interface {
	ListProducts(ctx context.Context) ([]retrieval.ProductSummary, error)
	CountReviews(ctx context.Context, productID string) (int, error)
	Documents(ctx context.Context, productID string) ([]vector.Record, error)
}

type Info struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Category    string `json:"category"`
	ReviewCount int    `json:"review_count"`
}

type Detail struct {
	Info
	Description string          `json:"description"`
	Documents   []vector.Record `json:"documents"`
}

type Service struct {
	catalog Catalog
}

func NewService(c Catalog) *Service {
	return &Service{catalog: c}
}

func (s *Service) List(ctx context.Context) ([]Info, error) {
	summaries, err := s.catalog.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Info, 0, len(summaries))
	for _, p := range summaries {
		n, err := s.catalog.CountReviews(ctx, p.ProductID)
		if err != nil {
			return nil, err
		}
		out = append(out, Info{
			ProductID:   p.ProductID,
			ProductName: p.ProductName,
			Category:    p.Category,
			ReviewCount: n,
		})
	}
	return out, nil
}

// Get returns a product with every stored document. Unknown ids yield ErrNotFound.
func (s *Service) Get(ctx context.Context, productID string) (*Detail, error) {
	recs, err := s.catalog.Documents(ctx, productID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}

	d := &Detail{
		Info: Info{
			ProductID:   productID,
			ProductName: recs[0].Metadata.ProductName,
			Category:    recs[0].Metadata.Category,
		},
		Documents: recs,
	}
	for _, r := range recs {
		switch r.Metadata.Type {
		case vector.TypeReview:
			d.ReviewCount++
		case vector.TypeDescription:
			d.Description = retrieval.DescriptionFromText(r.Metadata.ProductName, r.Text)
		}
	}
	return d, nil
}
