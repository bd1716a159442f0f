package backend

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/wire"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxRequestBodySize = 1 << 20 // 1MB

type Handler struct {
	svc     *Service
	timeout time.Duration
}

func NewHandler(svc *Service, timeout time.Duration) *Handler {
	return &Handler{svc: svc, timeout: timeout}
}

// Routes mounts the inventory and cart-merge endpoints
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(h.timeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post(wire.AvailabilityPath, h.Availability)
	r.Post(wire.MergePath, h.MergeCart)
	return r
}

func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req wire.AvailabilityRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	subjects := make([]domain.Subject, 0, len(req.Subjects))
	for _, s := range req.Subjects {
		subjects = append(subjects, s.Domain())
	}

	levels, err := h.svc.Availability(ctx, subjects)
	if err != nil {
		handleError(w, err)
		return
	}

	resp := wire.AvailabilityResponse{Records: make([]wire.StockRecord, 0, len(levels))}
	for _, l := range levels {
		resp.Records = append(resp.Records, wire.FromStockLevel(l))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) MergeCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req wire.MergeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	lines, err := h.svc.MergeCart(ctx, req.Domain())
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, wire.FromMergedLines(lines))
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, wire.ErrorResponse{Error: message, Code: code})
}

func handleError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidationFailure(err):
		respondError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
