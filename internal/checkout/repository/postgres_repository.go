package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	cartdomain "github.com/fjod/print_shop/internal/cart/domain"
	cartrepo "github.com/fjod/print_shop/internal/cart/repository"
	orderdomain "github.com/fjod/print_shop/internal/order/domain"
	orderrepo "github.com/fjod/print_shop/internal/order/repository"
	"github.com/fjod/print_shop/internal/outbox"
	"github.com/fjod/print_shop/internal/platform/postgres"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateOrderFromCart runs the whole conversion in one transaction. The cart
// status flip uses the same compare-and-increment as every other cart
// mutation, so a conversion racing with an item update loses cleanly.
func (r *PostgresRepository) CreateOrderFromCart(ctx context.Context, o *orderdomain.Order, cartVersion int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertOrder(ctx, tx, o); err != nil {
		return err
	}
	for i := range o.Items {
		if err := insertOrderItem(ctx, tx, &o.Items[i]); err != nil {
			return err
		}
	}
	if err := convertCart(ctx, tx, o.CartID, cartVersion); err != nil {
		return err
	}

	err = outbox.InsertTx(ctx, tx, o.ID.String(), outbox.EventOrderCreated, map[string]any{
		"orderId":     o.ID.String(),
		"orderNumber": o.OrderNumber,
		"userId":      o.UserID,
		"cartId":      o.CartID,
		"totalAmount": o.TotalAmount,
	})
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit conversion: %w", err)
	}
	return nil
}

func insertOrder(ctx context.Context, tx *sql.Tx, o *orderdomain.Order) error {
	var billingStreet1, billingStreet2, billingCity, billingState, billingPostal, billingCountry *string
	if b := o.BillingAddress; b != nil {
		billingStreet1 = &b.Street1
		billingStreet2 = b.Street2
		billingCity = &b.City
		billingState = &b.State
		billingPostal = &b.PostalCode
		billingCountry = &b.Country
	}

	err := tx.QueryRowContext(ctx,
		`INSERT INTO orders (id, order_number, user_id, customer_email, customer_first, customer_last,
		                     customer_phone, shipping_street1, shipping_street2, shipping_city,
		                     shipping_state, shipping_postal, shipping_country,
		                     billing_street1, billing_street2, billing_city, billing_state,
		                     billing_postal, billing_country,
		                     subtotal, tax_amount, shipping_amount, total_amount, status, cart_id, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		         $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
		 RETURNING created_at, updated_at`,
		o.ID.String(), o.OrderNumber, o.UserID, o.CustomerEmail, o.CustomerFirst, o.CustomerLast,
		o.CustomerPhone, o.ShippingAddress.Street1, o.ShippingAddress.Street2, o.ShippingAddress.City,
		o.ShippingAddress.State, o.ShippingAddress.PostalCode, o.ShippingAddress.Country,
		billingStreet1, billingStreet2, billingCity, billingState, billingPostal, billingCountry,
		o.Subtotal, o.TaxAmount, o.ShippingAmount, o.TotalAmount, o.Status, o.CartID, o.Notes,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "uq_orders_cart_id") {
			return orderrepo.ErrDuplicateCartOrder
		}
		if postgres.IsUniqueViolation(err, "uq_orders_order_number") {
			return orderrepo.ErrOrderNumberTaken
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func insertOrderItem(ctx context.Context, tx *sql.Tx, it *orderdomain.OrderItem) error {
	customData, err := json.Marshal(it.CustomData)
	if err != nil {
		return fmt.Errorf("marshal custom data: %w", err)
	}
	if it.CustomData == nil {
		customData = []byte("{}")
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO order_items (id, order_id, article_id, variant_id, quantity,
		                          price_per_item, total_price, generated_image_id, prompt_id, custom_data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at`,
		it.ID.String(), it.OrderID.String(), it.ArticleID, it.VariantID, it.Quantity,
		it.PricePerItem, it.TotalPrice, it.GeneratedImageID, it.PromptID, customData,
	).Scan(&it.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order item: %w", err)
	}
	return nil
}

func convertCart(ctx context.Context, tx *sql.Tx, cartID, expectedVersion int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE carts SET status = 'CONVERTED', version = version + 1, updated_at = NOW()
		 WHERE id = $1 AND version = $2 AND status = 'ACTIVE'`,
		cartID, expectedVersion)
	if err != nil {
		return fmt.Errorf("convert cart: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM carts WHERE id = $1`, cartID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return cartrepo.ErrCartNotFound
	}
	if err != nil {
		return fmt.Errorf("query cart status: %w", err)
	}
	if status != string(cartdomain.CartStatusActive) {
		return cartrepo.ErrCartNotActive
	}
	return cartrepo.ErrVersionConflict
}
