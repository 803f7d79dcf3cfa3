package repository

import (
	"context"
	"errors"

	"github.com/fjod/print_shop/internal/order/domain"
	"github.com/google/uuid"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrDuplicateCartOrder = errors.New("order for this cart already exists")
	ErrOrderNumberTaken   = errors.New("order number already taken")
	ErrStatusChanged      = errors.New("order status changed concurrently")
)

type OrderRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListByUserID(ctx context.Context, userID int64, page, size int) ([]*domain.Order, int64, error)
	ExistsForCart(ctx context.Context, cartID int64) (bool, error)
	// UpdateStatus performs the transition as a guarded update: it only
	// succeeds if the stored status still equals from. The status-changed
	// event is written in the same transaction.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) error
}
