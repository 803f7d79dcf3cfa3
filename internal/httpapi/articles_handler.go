package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	catalogdomain "github.com/fjod/print_shop/internal/catalog/domain"
)

type CatalogService interface {
	ListArticles(ctx context.Context) ([]*catalogdomain.Article, error)
	UpdatePrice(ctx context.Context, articleID, grossPrice int64) error
}

type ArticlesHandler struct {
	svc CatalogService
}

func NewArticlesHandler(svc CatalogService) *ArticlesHandler {
	return &ArticlesHandler{svc: svc}
}

type articleResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	GrossPrice  int64     `json:"grossPrice"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (h *ArticlesHandler) List(w http.ResponseWriter, r *http.Request) {
	articles, err := h.svc.ListArticles(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]articleResponse, 0, len(articles))
	for _, a := range articles {
		resp = append(resp, articleResponse{
			ID:          a.ID,
			Name:        a.Name,
			Description: a.Description,
			GrossPrice:  a.GrossPrice,
			Active:      a.Active,
			CreatedAt:   a.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

type updatePriceRequest struct {
	GrossPrice int64 `json:"grossPrice"`
}

func (h *ArticlesHandler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	articleID, ok := parseIDParam(w, r, "articleID")
	if !ok {
		return
	}

	var req updatePriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.GrossPrice < 0 {
		respondError(w, r, http.StatusBadRequest, "grossPrice must not be negative")
		return
	}

	if err := h.svc.UpdatePrice(r.Context(), articleID, req.GrossPrice); err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
