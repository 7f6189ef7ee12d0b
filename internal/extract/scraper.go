package extract

import (
	"context"
	"log/slog"

	"reviewrag/internal/middleware"
)

type Scraper struct {
	renderer Renderer
	opts     Options
}

func NewScraper(r Renderer, opts Options) *Scraper {
	return &Scraper{renderer: r, opts: opts.withDefaults()}
}

// Scrape renders url and assembles a product record. It fails only when the
// session cannot be opened; every other problem degrades the result. The
// session is closed on every path.
func (s *Scraper) Scrape(ctx context.Context, url string) (*ScrapedProduct, error) {
	product := &ScrapedProduct{ProductID: ProductID(url)}
	ctx = middleware.WithProductID(ctx, product.ProductID)

	session, err := s.renderer.Open(ctx, url)
	if err != nil {
		slog.ErrorContext(ctx, "product page failed to load", "url", url, "error", err)
		return nil, err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			slog.WarnContext(ctx, "failed to close browser session", "error", cerr)
		}
	}()

	md := s.extractMetadata(ctx, session, &product.Diagnostics)
	product.ProductName = md.ProductName
	product.Category = md.Category
	product.Description = md.Description

	product.Reviews = s.harvestReviews(ctx, session, url, &product.Diagnostics)
	if product.Reviews == nil {
		product.Reviews = []string{}
	}

	slog.InfoContext(ctx, "scraped product",
		"product_name", product.ProductName,
		"reviews", len(product.Reviews),
		"review_source", product.Diagnostics.ReviewSource,
		"degraded", product.Diagnostics.Degraded,
	)
	return product, nil
}
