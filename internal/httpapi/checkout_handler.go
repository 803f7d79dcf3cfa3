package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	checkoutservice "github.com/fjod/print_shop/internal/checkout/service"
	orderdomain "github.com/fjod/print_shop/internal/order/domain"
)

type CheckoutService interface {
	Convert(ctx context.Context, userID int64, req checkoutservice.ConvertRequest) (*orderdomain.Order, error)
}

type CheckoutHandler struct {
	svc CheckoutService
}

func NewCheckoutHandler(svc CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{svc: svc}
}

type addressRequest struct {
	Street1    string  `json:"street1"`
	Street2    *string `json:"street2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postalCode"`
	Country    string  `json:"country"`
}

type checkoutRequest struct {
	CustomerEmail   string          `json:"customerEmail"`
	CustomerFirst   string          `json:"customerFirstName"`
	CustomerLast    string          `json:"customerLastName"`
	CustomerPhone   *string         `json:"customerPhone,omitempty"`
	ShippingAddress addressRequest  `json:"shippingAddress"`
	BillingAddress  *addressRequest `json:"billingAddress,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
	Version         *int64          `json:"version,omitempty"`
}

func toAddress(a addressRequest) orderdomain.Address {
	return orderdomain.Address{
		Street1:    a.Street1,
		Street2:    a.Street2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}

	convert := checkoutservice.ConvertRequest{
		CustomerEmail:   req.CustomerEmail,
		CustomerFirst:   req.CustomerFirst,
		CustomerLast:    req.CustomerLast,
		CustomerPhone:   req.CustomerPhone,
		ShippingAddress: toAddress(req.ShippingAddress),
		Notes:           req.Notes,
		ObservedVersion: req.Version,
	}
	if req.BillingAddress != nil {
		b := toAddress(*req.BillingAddress)
		convert.BillingAddress = &b
	}

	order, err := h.svc.Convert(r.Context(), userIDFromContext(r.Context()), convert)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toOrderResponse(order))
}
