package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/session"
	"github.com/go-chi/chi/v5"
)

const maxQuantity = 99

type CartHandler struct {
	sess    *session.Session
	timeout time.Duration
}

func NewCartHandler(sess *session.Session, timeout time.Duration) *CartHandler {
	return &CartHandler{
		sess:    sess,
		timeout: timeout,
	}
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, toCart(h.sess.Store.Cart()))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	if err := h.sess.Store.AddItem(req.ProductID, req.VariantID, req.Quantity, req.UnitPrice); err != nil {
		handleError(w, err)
		return
	}
	h.watch(r.Context())
	respondJSON(w, http.StatusCreated, toCart(h.sess.Store.Cart()))
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")
	variantID := r.URL.Query().Get("variant_id")

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 0 and 99")
		return
	}

	if err := h.sess.Store.UpdateQuantity(productID, variantID, req.Quantity); err != nil {
		handleError(w, err)
		return
	}
	h.watch(r.Context())
	respondJSON(w, http.StatusOK, toCart(h.sess.Store.Cart()))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")
	if productID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must not be empty")
		return
	}

	h.sess.Store.RemoveItem(productID, r.URL.Query().Get("variant_id"))
	h.watch(r.Context())
	respondJSON(w, http.StatusOK, toCart(h.sess.Store.Cart()))
}

// ClearCart removes every line. The cart stays dirty so the next sync
// empties the server cart too.
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	for _, l := range h.sess.Store.Lines() {
		h.sess.Store.RemoveItem(l.ProductID, l.VariantID)
	}
	h.watch(r.Context())
	respondJSON(w, http.StatusOK, toCart(h.sess.Store.Cart()))
}

func (h *CartHandler) Sync(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.sess.Sync.SyncWithBackend(ctx, domain.TriggerManual)
	if err != nil {
		handleError(w, err)
		return
	}
	h.watch(ctx)
	respondJSON(w, http.StatusOK, toSync(res))
}

func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report, err := h.sess.Sync.Checkout(ctx)
	if err != nil {
		handleError(w, err)
		return
	}
	h.watch(ctx)

	status := http.StatusOK
	if !report.Eligible {
		status = http.StatusConflict
	}
	respondJSON(w, status, CheckoutDTO{
		Eligible:    report.Eligible,
		CartChanged: report.CartChanged,
		Blocked:     toRefs(report.Blocked),
		Unknown:     toRefs(report.Unknown),
		Sync:        toSync(report.Sync),
	})
}

// Availability answers a product page query. Failures are reported in the
// body; the page keeps rendering.
func (h *CartHandler) Availability(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q := r.URL.Query()
	subject := domain.LineKey{ProductID: q.Get("product_id"), VariantID: q.Get("variant_id")}.Subject()
	required := 1
	if raw := q.Get("quantity"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be a positive integer")
			return
		}
		required = n
	}

	a := h.sess.Availability.Query(ctx, subject)[subject]
	if domain.IsValidationFailure(a.Err) {
		handleError(w, a.Err)
		return
	}

	out := AvailabilityDTO{
		Kind:      string(subject.Kind),
		ID:        subject.ID,
		Available: h.sess.Availability.IsAvailable(subject, required),
		Stale:     a.Stale,
	}
	if a.Record != nil {
		qty, expires := a.Record.AvailableQuantity, a.Record.ExpiresAt
		out.AvailableQuantity = &qty
		out.StockStatus = string(a.Record.StockStatus)
		out.ExpiresAt = &expires
	}
	if a.Err != nil {
		out.Error = a.Err.Error()
	}
	respondJSON(w, http.StatusOK, out)
}

// watch keeps background refresh in step with the cart lines
func (h *CartHandler) watch(ctx context.Context) {
	if err := h.sess.WatchCart(); err != nil {
		log.Printf("request %s: watch cart error: %v", getRequestID(ctx), err)
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func handleError(w http.ResponseWriter, err error) {
	var vf *domain.ValidationFailure
	switch {
	case errors.As(err, &vf):
		respondError(w, http.StatusBadRequest, "invalid_"+vf.Field, vf.Error())
	case errors.Is(err, domain.ErrLineNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", err.Error())
	case errors.Is(err, domain.ErrNotInitialized):
		respondError(w, http.StatusServiceUnavailable, "not_initialized", err.Error())
	case domain.IsFetchFailure(err):
		respondJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   "could not sync, try again",
			Code:    "service_unavailable",
			Details: err.Error(),
		})
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
