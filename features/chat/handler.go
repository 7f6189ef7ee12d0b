package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"reviewrag/internal/adapter/gemini"
	"reviewrag/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

type chatRequest struct {
	ProductID  string `json:"product_id"`
	ReviewText string `json:"review_text"`
}

func (h *Handler) Reply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "INVALID_ARGUMENT", "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ProductID == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "product_id is required", http.StatusBadRequest)
		return
	}

	resp, err := h.service.Reply(ctx, req.ProductID, req.ReviewText)
	if err != nil {
		slog.ErrorContext(ctx, "chat reply failed", "product_id", req.ProductID, "error", err)
		switch {
		case errors.Is(err, ErrEmptyReview):
			h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrProductNotFound):
			h.writeError(ctx, w, "NOT_FOUND", err.Error(), http.StatusNotFound)
		case errors.Is(err, gemini.ErrMissingAPIKey):
			h.writeError(ctx, w, "UNAVAILABLE", err.Error(), http.StatusServiceUnavailable)
		case errors.Is(err, ErrGeneration):
			h.writeError(ctx, w, "UPSTREAM_ERROR", err.Error(), http.StatusBadGateway)
		default:
			h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		}
		return
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
