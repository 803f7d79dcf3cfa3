package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/print_shop/internal/cart/domain"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrItemNotFound    = errors.New("cart item not found")
	ErrCartNotActive   = errors.New("cart is not active")
	ErrVersionConflict = errors.New("cart version conflict")
	ErrActiveCartExists = errors.New("active cart already exists for user")
)

// CartRepository persists the cart aggregate. Every mutating call carries the
// version the caller last observed; the store rejects mismatches with
// ErrVersionConflict and the mutation is rolled back.
type CartRepository interface {
	GetActiveByUserID(ctx context.Context, userID int64) (*domain.Cart, error)
	GetByID(ctx context.Context, cartID int64) (*domain.Cart, error)
	CreateActive(ctx context.Context, userID int64, expiresAt time.Time) (*domain.Cart, error)

	InsertItem(ctx context.Context, cartID, expectedVersion int64, item *domain.CartItem) error
	UpdateItem(ctx context.Context, cartID, itemID, expectedVersion int64, quantity int, customData map[string]any) error
	DeleteItem(ctx context.Context, cartID, itemID, expectedVersion int64) error
	DeleteAllItems(ctx context.Context, cartID, expectedVersion int64) error
	UpdateOriginalPrices(ctx context.Context, cartID, expectedVersion int64, prices map[int64]int64) error

	MarkExpiredAbandoned(ctx context.Context, now time.Time) ([]int64, error)
}
