package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"reviewrag/internal/adapter/gemini"
	"reviewrag/internal/middleware"
	"reviewrag/internal/retrieval"
)

var (
	ErrEmptyReview     = errors.New("review text must not be empty")
	ErrProductNotFound = errors.New("product not found; scrape it first")
	ErrGeneration      = errors.New("reply generation failed")
)

const defaultTopK = 5

type Retriever interface {
	ListProducts(ctx context.Context) ([]retrieval.ProductSummary, error)
	RetrieveContext(ctx context.Context, productID, query string, topK int) ([]string, error)
}

type Generator interface {
	Reply(ctx context.Context, req gemini.ReplyRequest) (string, error)
}

type Response struct {
	ProductID      string `json:"product_id"`
	ReviewText     string `json:"review_text"`
	GeneratedReply string `json:"generated_reply"`
	ContextUsed    int    `json:"context_used"`
}

type Service struct {
	retriever Retriever
	generator Generator
	topK      int
}

func NewService(r Retriever, g Generator, topK int) *Service {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Service{retriever: r, generator: g, topK: topK}
}

// Reply drafts an answer to a customer review using the product's indexed context.
func (s *Service) Reply(ctx context.Context, productID, reviewText string) (*Response, error) {
	if strings.TrimSpace(reviewText) == "" {
		return nil, ErrEmptyReview
	}
	ctx = middleware.WithProductID(ctx, productID)

	products, err := s.retriever.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	var meta *retrieval.ProductSummary
	for i := range products {
		if products[i].ProductID == productID {
			meta = &products[i]
			break
		}
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: %q", ErrProductNotFound, productID)
	}

	chunks, err := s.retriever.RetrieveContext(ctx, productID, reviewText, s.topK)
	if err != nil {
		return nil, err
	}

	reply, err := s.generator.Reply(ctx, gemini.ReplyRequest{
		ProductName: meta.ProductName,
		Category:    meta.Category,
		ReviewText:  reviewText,
		Context:     chunks,
	})
	if err != nil {
		if errors.Is(err, gemini.ErrMissingAPIKey) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	slog.InfoContext(ctx, "reply generated", "context_used", len(chunks))
	return &Response{
		ProductID:      productID,
		ReviewText:     reviewText,
		GeneratedReply: reply,
		ContextUsed:    len(chunks),
	}, nil
}
