package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/print_shop/internal/order/domain"
	"github.com/fjod/print_shop/internal/outbox"
	"github.com/google/uuid"
)

const orderColumns = `id, order_number, user_id, customer_email, customer_first, customer_last,
	customer_phone, shipping_street1, shipping_street2, shipping_city, shipping_state,
	shipping_postal, shipping_country, billing_street1, billing_street2, billing_city,
	billing_state, billing_postal, billing_country, subtotal, tax_amount, shipping_amount,
	total_amount, status, cart_id, notes, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		return nil, err
	}

	items, err := r.loadItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (r *PostgresRepository) ListByUserID(ctx context.Context, userID int64, page, size int) ([]*domain.Order, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query := `SELECT ` + orderColumns + ` FROM orders
	          WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, userID, size, page*size)
	if err != nil {
		return nil, 0, fmt.Errorf("query orders by user id: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("row iteration error: %w", err)
	}

	for _, o := range orders {
		items, err := r.loadItems(ctx, o.ID)
		if err != nil {
			return nil, 0, err
		}
		o.Items = items
	}
	return orders, total, nil
}

func (r *PostgresRepository) ExistsForCart(ctx context.Context, cartID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE cart_id = $1)`, cartID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query order existence for cart: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3`,
		id.String(), string(to), string(from))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, id.String()).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("query order status: %w", err)
		}
		return fmt.Errorf("expected status %s, found %s: %w", from, current, ErrStatusChanged)
	}

	payload := map[string]any{
		"orderId": id.String(),
		"from":    string(from),
		"to":      string(to),
	}
	if err := outbox.InsertTx(ctx, tx, id.String(), outbox.EventOrderStatusChanged, payload); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *PostgresRepository) loadItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	query := `SELECT id, order_id, article_id, variant_id, quantity, price_per_item, total_price,
	                 generated_image_id, prompt_id, custom_data, created_at
	          FROM order_items WHERE order_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, orderID.String())
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		var id, oid string
		var customData []byte
		if err := rows.Scan(
			&id,
			&oid,
			&it.ArticleID,
			&it.VariantID,
			&it.Quantity,
			&it.PricePerItem,
			&it.TotalPrice,
			&it.GeneratedImageID,
			&it.PromptID,
			&customData,
			&it.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order item row: %w", err)
		}
		if it.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse order item id: %w", err)
		}
		if it.OrderID, err = uuid.Parse(oid); err != nil {
			return nil, fmt.Errorf("parse order id: %w", err)
		}
		if err := json.Unmarshal(customData, &it.CustomData); err != nil {
			return nil, fmt.Errorf("unmarshal custom data: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var id string
	var billStreet1, billStreet2, billCity, billState, billPostal, billCountry sql.NullString
	err := row.Scan(
		&id,
		&o.OrderNumber,
		&o.UserID,
		&o.CustomerEmail,
		&o.CustomerFirst,
		&o.CustomerLast,
		&o.CustomerPhone,
		&o.ShippingAddress.Street1,
		&o.ShippingAddress.Street2,
		&o.ShippingAddress.City,
		&o.ShippingAddress.State,
		&o.ShippingAddress.PostalCode,
		&o.ShippingAddress.Country,
		&billStreet1,
		&billStreet2,
		&billCity,
		&billState,
		&billPostal,
		&billCountry,
		&o.Subtotal,
		&o.TaxAmount,
		&o.ShippingAmount,
		&o.TotalAmount,
		&o.Status,
		&o.CartID,
		&o.Notes,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order row: %w", err)
	}
	if o.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse order id: %w", err)
	}

	if billStreet1.Valid {
		bill := domain.Address{
			Street1:    billStreet1.String,
			City:       billCity.String,
			State:      billState.String,
			PostalCode: billPostal.String,
			Country:    billCountry.String,
		}
		if billStreet2.Valid {
			bill.Street2 = &billStreet2.String
		}
		o.BillingAddress = &bill
	}
	return &o, nil
}
