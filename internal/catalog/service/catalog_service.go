package service

import (
	"context"
	"fmt"

	"github.com/fjod/print_shop/internal/catalog/domain"
	"github.com/fjod/print_shop/internal/catalog/repository"
)

// Service is the catalog capability consumed by the cart and checkout
// modules. Reads only, except the admin price update.
type Service struct {
	repo repository.ArticleRepository
}

func NewService(repo repository.ArticleRepository) *Service {
	return &Service{repo: repo}
}

// CurrentGrossPrice resolves the current price of an article in minor
// currency units. Inactive articles resolve as not found.
func (s *Service) CurrentGrossPrice(ctx context.Context, articleID int64) (int64, error) {
	a, err := s.repo.GetArticle(ctx, articleID)
	if err != nil {
		return 0, err
	}
	if !a.Active {
		return 0, repository.ErrArticleNotFound
	}
	return a.GrossPrice, nil
}

// ValidateVariant checks that the variant exists, is active, and belongs
// to the given article.
func (s *Service) ValidateVariant(ctx context.Context, articleID, variantID int64) error {
	v, err := s.repo.GetVariant(ctx, variantID)
	if err != nil {
		return err
	}
	if !v.Active || v.ArticleID != articleID {
		return fmt.Errorf("variant %d does not belong to article %d: %w", variantID, articleID, repository.ErrVariantNotFound)
	}
	return nil
}

func (s *Service) ListArticles(ctx context.Context) ([]*domain.Article, error) {
	return s.repo.ListArticles(ctx)
}

func (s *Service) UpdatePrice(ctx context.Context, articleID int64, grossPrice int64) error {
	if grossPrice < 0 {
		return fmt.Errorf("gross price must not be negative: %d", grossPrice)
	}
	return s.repo.UpdatePrice(ctx, articleID, grossPrice)
}
