package stats

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"reviewrag/features/job"
	"reviewrag/internal/middleware"
	"reviewrag/internal/retrieval"
)

type Catalog interface {
	ListProducts(ctx context.Context) ([]retrieval.ProductSummary, error)
	CountDocuments(ctx context.Context) (int, error)
}

type JobCounter interface {
	CountFailed(ctx context.Context) (int, error)
}

type Handler struct {
	catalog Catalog
	jobs    JobCounter
}

func NewHandler(c Catalog, j JobCounter) *Handler {
	return &Handler{catalog: c, jobs: j}
}

type StatsResponse struct {
	Products    int  `json:"products"`
	Documents   int  `json:"documents"`
	FailedJobs  int  `json:"failed_jobs"`
	JobsEnabled bool `json:"jobs_enabled"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slog.InfoContext(ctx, "getting stats")

	products, err := h.catalog.ListProducts(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list products", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count products", http.StatusInternalServerError)
		return
	}

	dCount, err := h.catalog.CountDocuments(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count documents", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count documents", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Products:    len(products),
		Documents:   dCount,
		JobsEnabled: true,
	}

	jCount, err := h.jobs.CountFailed(ctx)
	switch {
	case errors.Is(err, job.ErrJobsDisabled):
		resp.JobsEnabled = false
	case err != nil:
		slog.ErrorContext(ctx, "failed to count jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	default:
		resp.FailedJobs = jCount
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
