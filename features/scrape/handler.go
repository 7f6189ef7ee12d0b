package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"reviewrag/features/job"
	"reviewrag/internal/browser"
	"reviewrag/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

type scrapeRequest struct {
	URL string `json:"url"`
}

// Scrape handles POST /scrape. With ?async=true the URL is queued and 202 returned.
func (h *Handler) Scrape(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "INVALID_ARGUMENT", "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "url is required", http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("async") == "true" {
		q, err := h.service.Enqueue(ctx, req.URL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to queue scrape", "url", req.URL, "error", err)
			h.writeServiceError(ctx, w, err)
			return
		}
		h.writeJSON(ctx, w, http.StatusAccepted, map[string]interface{}{"data": q})
		return
	}

	slog.InfoContext(ctx, "scraping product", "url", req.URL)
	res, err := h.service.Scrape(ctx, req.URL)
	if err != nil {
		slog.ErrorContext(ctx, "scrape failed", "url", req.URL, "error", err)
		h.writeServiceError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": res})
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var loadErr *browser.PageLoadError
	switch {
	case errors.Is(err, ErrUnsupportedURL):
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
	case errors.As(err, &loadErr):
		h.writeError(ctx, w, "PAGE_LOAD_FAILED", err.Error(), http.StatusBadGateway)
	case errors.Is(err, job.ErrQueueDisabled):
		h.writeError(ctx, w, "UNAVAILABLE", err.Error(), http.StatusServiceUnavailable)
	default:
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
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
