package cache

import (
	"context"
	"errors"

	"github.com/fjod/print_shop/internal/cart/domain"
)

var ErrCacheMiss = errors.New("cart not in cache")

type CartCache interface {
	Get(ctx context.Context, userID int64) (*domain.Cart, error)
	Set(ctx context.Context, userID int64, cart *domain.Cart) error
	Delete(ctx context.Context, userID int64) error
}
