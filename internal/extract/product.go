// Package extract pulls product metadata and customer reviews out of a
// rendered product page. Structured state is preferred; markup is the
// fallback. Only the initial navigation can fail a run.
package extract

import "time"

const (
	DefaultProductName = "Unknown"
	DefaultCategory    = "General"

	maxDescriptionRunes = 500
)

// ReviewSource tells which mechanism produced the reviews.
type ReviewSource string

const (
	SourceState ReviewSource = "state"
	SourceDOM   ReviewSource = "dom"
	SourceNone  ReviewSource = "none"
)

// Stages that can degrade without failing the run.
const (
	StageMetadataState = "metadata_state"
	StageNameHeading   = "name_heading"
	StageBreadcrumbs   = "breadcrumbs"
	StageReviewsPage   = "reviews_navigation"
	StageReviewsState  = "reviews_state"
	StageDOMScan       = "dom_scan"
)

// Diagnostics distinguishes "nothing there" from "mechanism failed".
type Diagnostics struct {
	ReviewSource ReviewSource `json:"review_source"`
	Degraded     []string     `json:"degraded,omitempty"`
}

func (d *Diagnostics) degrade(stage string) {
	for _, s := range d.Degraded {
		if s == stage {
			return
		}
	}
	d.Degraded = append(d.Degraded, stage)
}

type ScrapedProduct struct {
	ProductID   string      `json:"product_id"`
	ProductName string      `json:"product_name"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	Reviews     []string    `json:"reviews"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

type Options struct {
	// Timeout bounds element waits.
	Timeout    time.Duration
	MaxReviews int
	// ReviewSettle is the pause after opening the reviews page.
	ReviewSettle time.Duration
	// ScrollSettle is the pause after each lazy-load scroll.
	ScrollSettle time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxReviews <= 0 {
		o.MaxReviews = 50
	}
	return o
}
