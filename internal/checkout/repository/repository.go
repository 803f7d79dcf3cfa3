package repository

import (
	"context"

	orderdomain "github.com/fjod/print_shop/internal/order/domain"
)

// ConversionRepository persists the cart-to-order conversion as a single
// transaction: the order and its items are inserted, the cart is flipped
// to CONVERTED with a version check, and the outbox event is written.
// Either all of it commits or none of it does.
type ConversionRepository interface {
	CreateOrderFromCart(ctx context.Context, order *orderdomain.Order, cartVersion int64) error
}
