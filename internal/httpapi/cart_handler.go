package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	cartdomain "github.com/fjod/print_shop/internal/cart/domain"
	cartservice "github.com/fjod/print_shop/internal/cart/service"
	"github.com/go-chi/chi/v5"
)

type CartService interface {
	GetCart(ctx context.Context, userID int64) (*cartdomain.Cart, error)
	Summary(ctx context.Context, userID int64) (*cartservice.Summary, error)
	AddItem(ctx context.Context, userID int64, p cartservice.AddItemParams) (*cartdomain.Cart, error)
	UpdateItem(ctx context.Context, userID, itemID int64, quantity int, customData map[string]any, observedVersion *int64) (*cartdomain.Cart, error)
	RemoveItem(ctx context.Context, userID, itemID int64, observedVersion *int64) (*cartdomain.Cart, error)
	ClearCart(ctx context.Context, userID int64, observedVersion *int64) (*cartdomain.Cart, error)
	RefreshPrices(ctx context.Context, userID int64) (*cartdomain.Cart, error)
}

type CartHandler struct {
	svc CartService
}

func NewCartHandler(svc CartService) *CartHandler {
	return &CartHandler{svc: svc}
}

type addItemRequest struct {
	ArticleID        int64          `json:"articleId"`
	VariantID        int64          `json:"variantId"`
	Quantity         int            `json:"quantity"`
	CustomData       map[string]any `json:"customData,omitempty"`
	GeneratedImageID *int64         `json:"generatedImageId,omitempty"`
	PromptID         *int64         `json:"promptId,omitempty"`
	Version          *int64         `json:"version,omitempty"`
}

type updateItemRequest struct {
	Quantity   int            `json:"quantity"`
	CustomData map[string]any `json:"customData,omitempty"`
	Version    *int64         `json:"version,omitempty"`
}

type cartItemResponse struct {
	ID               int64          `json:"id"`
	ArticleID        int64          `json:"articleId"`
	VariantID        int64          `json:"variantId"`
	Quantity         int            `json:"quantity"`
	PriceAtTime      int64          `json:"priceAtTime"`
	OriginalPrice    int64          `json:"originalPrice"`
	HasPriceChanged  bool           `json:"hasPriceChanged"`
	TotalPrice       int64          `json:"totalPrice"`
	CustomData       map[string]any `json:"customData"`
	GeneratedImageID *int64         `json:"generatedImageId,omitempty"`
	PromptID         *int64         `json:"promptId,omitempty"`
	Position         int            `json:"position"`
}

type cartResponse struct {
	ID         int64              `json:"id"`
	UserID     int64              `json:"userId"`
	Status     string             `json:"status"`
	Version    int64              `json:"version"`
	ExpiresAt  *time.Time         `json:"expiresAt,omitempty"`
	Items      []cartItemResponse `json:"items"`
	TotalPrice int64              `json:"totalPrice"`
	ItemCount  int                `json:"itemCount"`
	IsEmpty    bool               `json:"isEmpty"`
}

func toCartResponse(c *cartdomain.Cart) cartResponse {
	items := make([]cartItemResponse, 0, len(c.Items))
	for i := range c.Items {
		it := &c.Items[i]
		customData := it.CustomData
		if customData == nil {
			customData = map[string]any{}
		}
		items = append(items, cartItemResponse{
			ID:               it.ID,
			ArticleID:        it.ArticleID,
			VariantID:        it.VariantID,
			Quantity:         it.Quantity,
			PriceAtTime:      it.PriceAtTime,
			OriginalPrice:    it.OriginalPrice,
			HasPriceChanged:  it.HasPriceChanged(),
			TotalPrice:       it.TotalPrice(),
			CustomData:       customData,
			GeneratedImageID: it.GeneratedImageID,
			PromptID:         it.PromptID,
			Position:         it.Position,
		})
	}
	return cartResponse{
		ID:         c.ID,
		UserID:     c.UserID,
		Status:     string(c.Status),
		Version:    c.Version,
		ExpiresAt:  c.ExpiresAt,
		Items:      items,
		TotalPrice: c.TotalPrice(),
		ItemCount:  c.TotalItemCount(),
		IsEmpty:    c.IsEmpty(),
	}
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.svc.GetCart(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Summary(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ArticleID <= 0 {
		respondError(w, r, http.StatusBadRequest, "articleId must be positive")
		return
	}
	if req.VariantID <= 0 {
		respondError(w, r, http.StatusBadRequest, "variantId must be positive")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, r, http.StatusBadRequest, "quantity must be between 1 and 99")
		return
	}

	cart, err := h.svc.AddItem(r.Context(), userIDFromContext(r.Context()), cartservice.AddItemParams{
		ArticleID:        req.ArticleID,
		VariantID:        req.VariantID,
		Quantity:         req.Quantity,
		CustomData:       req.CustomData,
		GeneratedImageID: req.GeneratedImageID,
		PromptID:         req.PromptID,
		ObservedVersion:  req.Version,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toCartResponse(cart))
}

func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := parseIDParam(w, r, "itemID")
	if !ok {
		return
	}

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, r, http.StatusBadRequest, "quantity must be between 1 and 99")
		return
	}

	cart, err := h.svc.UpdateItem(r.Context(), userIDFromContext(r.Context()), itemID, req.Quantity, req.CustomData, req.Version)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := parseIDParam(w, r, "itemID")
	if !ok {
		return
	}
	version, ok := parseVersionQuery(w, r)
	if !ok {
		return
	}

	cart, err := h.svc.RemoveItem(r.Context(), userIDFromContext(r.Context()), itemID, version)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	version, ok := parseVersionQuery(w, r)
	if !ok {
		return
	}

	cart, err := h.svc.ClearCart(r.Context(), userIDFromContext(r.Context()), version)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandler) RefreshPrices(w http.ResponseWriter, r *http.Request) {
	cart, err := h.svc.RefreshPrices(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(cart))
}

func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, r, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func parseVersionQuery(w http.ResponseWriter, r *http.Request) (*int64, bool) {
	raw := r.URL.Query().Get("version")
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		respondError(w, r, http.StatusBadRequest, "version must be a non-negative integer")
		return nil, false
	}
	return &v, true
}
