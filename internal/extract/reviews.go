package extract

import (
	"context"
	"log/slog"
	"strings"

	"reviewrag/internal/pagestate"
)

const (
	reviewKey         = "comment"
	minStateReviewLen = 10
	minDOMReviewLen   = 15
	paragraphSelector = "p"
)

// harvestReviews navigates page to the reviews view of productURL and
// collects review texts, bounded by MaxReviews.
func (s *Scraper) harvestReviews(ctx context.Context, page Page, productURL string, diag *Diagnostics) []string {
	reviewsURL := ReviewsURL(productURL)
	slog.InfoContext(ctx, "fetching reviews page", "url", reviewsURL)

	// Without the reviews view there is nothing to harvest; the product page's
	// paragraphs are not reviews.
	if err := page.Navigate(ctx, reviewsURL); err != nil {
		slog.WarnContext(ctx, "reviews page did not load", "url", reviewsURL, "error", err)
		diag.degrade(StageReviewsPage)
		diag.ReviewSource = SourceNone
		return nil
	}
	if err := sleep(ctx, s.opts.ReviewSettle); err != nil {
		diag.degrade(StageReviewsPage)
		diag.ReviewSource = SourceNone
		return nil
	}

	var reviews []string
	state, err := page.StructuredState(ctx)
	if err != nil {
		slog.WarnContext(ctx, "reviews state unavailable", "error", err)
		diag.degrade(StageReviewsState)
	} else {
		reviews = pagestate.FindStrings(state, reviewKey, minStateReviewLen)
		slog.InfoContext(ctx, "extracted reviews from structured state", "count", len(reviews))
	}

	source := SourceState
	if len(reviews) == 0 {
		slog.InfoContext(ctx, "structured state had no reviews, scanning markup")
		reviews = s.scanParagraphs(ctx, page, diag)
		source = SourceDOM
	}

	if len(reviews) > s.opts.MaxReviews {
		reviews = reviews[:s.opts.MaxReviews]
	}
	if len(reviews) == 0 {
		source = SourceNone
	}
	diag.ReviewSource = source
	return reviews
}

// scanParagraphs triggers lazy loading and collects distinct paragraph
// texts. Any failure ends the scan with what was found so far.
func (s *Scraper) scanParagraphs(ctx context.Context, page Page, diag *Diagnostics) []string {
	for _, fraction := range []float64{0.5, 1} {
		if err := page.ScrollTo(ctx, fraction); err != nil {
			slog.WarnContext(ctx, "scroll failed during markup scan", "error", err)
			diag.degrade(StageDOMScan)
			return nil
		}
		if err := sleep(ctx, s.opts.ScrollSettle); err != nil {
			diag.degrade(StageDOMScan)
			return nil
		}
	}

	texts, err := page.Texts(ctx, paragraphSelector)
	if err != nil {
		slog.WarnContext(ctx, "paragraph scan failed", "error", err)
		diag.degrade(StageDOMScan)
		return nil
	}

	var (
		out  []string
		seen = make(map[string]struct{})
	)
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if len([]rune(t)) <= minDOMReviewLen {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) >= s.opts.MaxReviews {
			break
		}
	}
	return out
}
