package extract

import (
	"context"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"reviewrag/internal/pagestate"
)

const (
	nameSelectors       = "h1.product-title, h1.pr-new-br, h1"
	breadcrumbSelectors = "a.product-detail-breadcrumb-item, div.breadcrumb-wrapper a"
)

type Metadata struct {
	ProductName string
	Category    string
	Description string
}

// extractMetadata resolves each field independently. Missing data falls
// back to defaults and never fails.
func (s *Scraper) extractMetadata(ctx context.Context, page Page, diag *Diagnostics) Metadata {
	var md Metadata

	state, err := page.StructuredState(ctx)
	if err != nil {
		slog.WarnContext(ctx, "structured state unavailable, using markup", "error", err)
		diag.degrade(StageMetadataState)
	} else {
		md = metadataFromState(state)
	}

	if md.ProductName == "" {
		name, err := page.WaitText(ctx, nameSelectors, s.opts.Timeout)
		if err != nil {
			slog.WarnContext(ctx, "product name not found in state or markup", "error", err)
			diag.degrade(StageNameHeading)
		}
		md.ProductName = name
	}

	if md.Category == "" {
		crumbs, err := page.Texts(ctx, breadcrumbSelectors)
		if err != nil {
			slog.WarnContext(ctx, "breadcrumb lookup failed", "error", err)
			diag.degrade(StageBreadcrumbs)
		} else if len(crumbs) >= 2 {
			md.Category = strings.TrimSpace(crumbs[len(crumbs)-2])
		}
	}

	if md.ProductName == "" {
		md.ProductName = DefaultProductName
	}
	if md.Category == "" {
		md.Category = DefaultCategory
	}
	return md
}

func metadataFromState(state pagestate.Node) Metadata {
	var md Metadata

	product := state.Path("product", "product")
	if name, ok := product.Get("name").Str(); ok {
		brand := product.Path("brand", "name").TrimmedStr()
		md.ProductName = strings.TrimSpace(brand + " " + strings.TrimSpace(name))
	}

	hierarchy := state.Path("product", "categoryHierarchy")
	if hierarchy.Kind() == pagestate.Array && hierarchy.Len() > 0 {
		md.Category = hierarchy.Index(-1).Get("name").TrimmedStr()
	}

	if desc, ok := product.Get("description").Str(); ok {
		md.Description = StripMarkup(desc)
	}
	return md
}

// StripMarkup returns the text content of an HTML fragment, trimmed and cut
// to the description bound.
func StripMarkup(fragment string) string {
	text := fragment
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment)); err == nil {
		text = doc.Text()
	}
	return truncate(strings.TrimSpace(text), maxDescriptionRunes)
}
