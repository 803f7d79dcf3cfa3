package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	orderdomain "github.com/fjod/print_shop/internal/order/domain"
	orderservice "github.com/fjod/print_shop/internal/order/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type OrderService interface {
	Get(ctx context.Context, userID int64, orderID uuid.UUID) (*orderdomain.Order, error)
	List(ctx context.Context, userID int64, page, size int) (*orderservice.Page, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus orderdomain.OrderStatus) (*orderdomain.Order, error)
}

type OrdersHandler struct {
	svc OrderService
}

func NewOrdersHandler(svc OrderService) *OrdersHandler {
	return &OrdersHandler{svc: svc}
}

type addressResponse struct {
	Street1    string  `json:"street1"`
	Street2    *string `json:"street2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postalCode"`
	Country    string  `json:"country"`
}

type orderItemResponse struct {
	ID               string         `json:"id"`
	ArticleID        int64          `json:"articleId"`
	VariantID        int64          `json:"variantId"`
	Quantity         int            `json:"quantity"`
	PricePerItem     int64          `json:"pricePerItem"`
	TotalPrice       int64          `json:"totalPrice"`
	GeneratedImageID *int64         `json:"generatedImageId,omitempty"`
	PromptID         *int64         `json:"promptId,omitempty"`
	CustomData       map[string]any `json:"customData"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	OrderNumber     string              `json:"orderNumber"`
	CustomerEmail   string              `json:"customerEmail"`
	CustomerFirst   string              `json:"customerFirstName"`
	CustomerLast    string              `json:"customerLastName"`
	CustomerPhone   *string             `json:"customerPhone,omitempty"`
	ShippingAddress addressResponse     `json:"shippingAddress"`
	BillingAddress  *addressResponse    `json:"billingAddress,omitempty"`
	Subtotal        int64               `json:"subtotal"`
	TaxAmount       int64               `json:"taxAmount"`
	ShippingAmount  int64               `json:"shippingAmount"`
	TotalAmount     int64               `json:"totalAmount"`
	Status          string              `json:"status"`
	CartID          int64               `json:"cartId"`
	Notes           *string             `json:"notes,omitempty"`
	Items           []orderItemResponse `json:"items"`
	CreatedAt       time.Time           `json:"createdAt"`
}

type paginatedOrdersResponse struct {
	Content       []orderResponse `json:"content"`
	CurrentPage   int             `json:"currentPage"`
	TotalPages    int             `json:"totalPages"`
	TotalElements int64           `json:"totalElements"`
	Size          int             `json:"size"`
}

func toAddressResponse(a orderdomain.Address) addressResponse {
	return addressResponse{
		Street1:    a.Street1,
		Street2:    a.Street2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func toOrderResponse(o *orderdomain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for i := range o.Items {
		it := &o.Items[i]
		customData := it.CustomData
		if customData == nil {
			customData = map[string]any{}
		}
		items = append(items, orderItemResponse{
			ID:               it.ID.String(),
			ArticleID:        it.ArticleID,
			VariantID:        it.VariantID,
			Quantity:         it.Quantity,
			PricePerItem:     it.PricePerItem,
			TotalPrice:       it.TotalPrice,
			GeneratedImageID: it.GeneratedImageID,
			PromptID:         it.PromptID,
			CustomData:       customData,
		})
	}

	resp := orderResponse{
		ID:              o.ID.String(),
		OrderNumber:     o.OrderNumber,
		CustomerEmail:   o.CustomerEmail,
		CustomerFirst:   o.CustomerFirst,
		CustomerLast:    o.CustomerLast,
		CustomerPhone:   o.CustomerPhone,
		ShippingAddress: toAddressResponse(o.ShippingAddress),
		Subtotal:        o.Subtotal,
		TaxAmount:       o.TaxAmount,
		ShippingAmount:  o.ShippingAmount,
		TotalAmount:     o.TotalAmount,
		Status:          string(o.Status),
		CartID:          o.CartID,
		Notes:           o.Notes,
		Items:           items,
		CreatedAt:       o.CreatedAt,
	}
	if o.BillingAddress != nil {
		b := toAddressResponse(*o.BillingAddress)
		resp.BillingAddress = &b
	}
	return resp
}

func (h *OrdersHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil {
		size = 20
	}

	result, err := h.svc.List(r.Context(), userIDFromContext(r.Context()), page, size)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	content := make([]orderResponse, 0, len(result.Orders))
	for _, o := range result.Orders {
		content = append(content, toOrderResponse(o))
	}
	respondJSON(w, http.StatusOK, paginatedOrdersResponse{
		Content:       content,
		CurrentPage:   result.CurrentPage,
		TotalPages:    result.TotalPages,
		TotalElements: result.TotalElements,
		Size:          result.Size,
	})
}

func (h *OrdersHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "orderID must be a valid UUID")
		return
	}

	order, err := h.svc.Get(r.Context(), userIDFromContext(r.Context()), orderID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(order))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus is the admin transition endpoint. Unknown statuses are 400,
// transitions outside the state machine are 409.
func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "orderID must be a valid UUID")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Status == "" {
		respondError(w, r, http.StatusBadRequest, "status is required")
		return
	}

	order, err := h.svc.UpdateStatus(r.Context(), orderID, orderdomain.OrderStatus(req.Status))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(order))
}
