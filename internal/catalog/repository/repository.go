package repository

import (
	"context"
	"errors"

	"github.com/fjod/print_shop/internal/catalog/domain"
)

var (
	ErrArticleNotFound = errors.New("article not found")
	ErrVariantNotFound = errors.New("variant not found for article")
)

type ArticleRepository interface {
	GetArticle(ctx context.Context, id int64) (*domain.Article, error)
	GetVariant(ctx context.Context, id int64) (*domain.Variant, error)
	ListArticles(ctx context.Context) ([]*domain.Article, error)
	UpdatePrice(ctx context.Context, articleID int64, grossPrice int64) error
}
