package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	cartrepo "github.com/fjod/print_shop/internal/cart/repository"
	cartservice "github.com/fjod/print_shop/internal/cart/service"
	catalogrepo "github.com/fjod/print_shop/internal/catalog/repository"
	checkoutservice "github.com/fjod/print_shop/internal/checkout/service"
	orderrepo "github.com/fjod/print_shop/internal/order/repository"
	orderservice "github.com/fjod/print_shop/internal/order/service"
)

type ErrorResponse struct {
	Timestamp string `json:"timestamp"`
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Path      string `json:"path"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, status, ErrorResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Path:      r.URL.Path,
	})
}

// handleServiceError maps service-layer sentinel errors to HTTP statuses.
// Anything unrecognized is a 500 with a generic message; the real error is
// logged, not sent to the client.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, cartrepo.ErrCartNotFound),
		errors.Is(err, cartrepo.ErrItemNotFound),
		errors.Is(err, orderrepo.ErrOrderNotFound),
		errors.Is(err, catalogrepo.ErrArticleNotFound),
		errors.Is(err, catalogrepo.ErrVariantNotFound):
		respondError(w, r, http.StatusNotFound, err.Error())

	case errors.Is(err, cartservice.ErrInvalidQuantity),
		errors.Is(err, checkoutservice.ErrInvalidRequest),
		errors.Is(err, orderservice.ErrInvalidStatus):
		respondError(w, r, http.StatusBadRequest, err.Error())

	case errors.Is(err, cartrepo.ErrCartNotActive),
		errors.Is(err, cartrepo.ErrVersionConflict),
		errors.Is(err, cartrepo.ErrActiveCartExists),
		errors.Is(err, checkoutservice.ErrEmptyCart),
		errors.Is(err, orderrepo.ErrDuplicateCartOrder),
		errors.Is(err, orderrepo.ErrStatusChanged),
		errors.Is(err, orderservice.ErrInvalidTransition):
		respondError(w, r, http.StatusConflict, err.Error())

	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		respondError(w, r, http.StatusInternalServerError, "internal server error")
	}
}
