package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/print_shop/internal/catalog/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetArticle(ctx context.Context, id int64) (*domain.Article, error) {
	query := `SELECT id, name, description, gross_price, active, created_at, updated_at
	          FROM articles WHERE id = $1`

	var a domain.Article
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID,
		&a.Name,
		&a.Description,
		&a.GrossPrice,
		&a.Active,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrArticleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query article by id: %w", err)
	}
	return &a, nil
}

func (r *PostgresRepository) GetVariant(ctx context.Context, id int64) (*domain.Variant, error) {
	query := `SELECT id, article_id, name, sku, active, created_at
	          FROM article_variants WHERE id = $1`

	var v domain.Variant
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&v.ID,
		&v.ArticleID,
		&v.Name,
		&v.SKU,
		&v.Active,
		&v.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVariantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query variant by id: %w", err)
	}
	return &v, nil
}

func (r *PostgresRepository) ListArticles(ctx context.Context) ([]*domain.Article, error) {
	query := `SELECT id, name, description, gross_price, active, created_at, updated_at
	          FROM articles WHERE active ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var articles []*domain.Article
	for rows.Next() {
		var a domain.Article
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.GrossPrice, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan article row: %w", err)
		}
		articles = append(articles, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return articles, nil
}

func (r *PostgresRepository) UpdatePrice(ctx context.Context, articleID int64, grossPrice int64) error {
	query := `UPDATE articles SET gross_price = $2, updated_at = NOW() WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, articleID, grossPrice)
	if err != nil {
		return fmt.Errorf("update article price: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrArticleNotFound
	}
	return nil
}
