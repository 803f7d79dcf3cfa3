package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fjod/print_shop/internal/cart/domain"
	"github.com/fjod/print_shop/internal/outbox"
	"github.com/fjod/print_shop/internal/platform/postgres"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetActiveByUserID(ctx context.Context, userID int64) (*domain.Cart, error) {
	query := `SELECT id, user_id, status, version, expires_at, created_at, updated_at
	          FROM carts WHERE user_id = $1 AND status = 'ACTIVE'`
	return r.loadCart(ctx, query, userID)
}

func (r *PostgresRepository) GetByID(ctx context.Context, cartID int64) (*domain.Cart, error) {
	query := `SELECT id, user_id, status, version, expires_at, created_at, updated_at
	          FROM carts WHERE id = $1`
	return r.loadCart(ctx, query, cartID)
}

func (r *PostgresRepository) loadCart(ctx context.Context, query string, arg any) (*domain.Cart, error) {
	var c domain.Cart
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&c.ID,
		&c.UserID,
		&c.Status,
		&c.Version,
		&c.ExpiresAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}

	items, err := r.loadItems(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.Items = items
	return &c, nil
}

func (r *PostgresRepository) loadItems(ctx context.Context, cartID int64) ([]domain.CartItem, error) {
	query := `SELECT id, cart_id, article_id, variant_id, quantity, price_at_time, original_price,
	                 custom_data, generated_image_id, prompt_id, position, created_at, updated_at
	          FROM cart_items WHERE cart_id = $1 ORDER BY position, created_at`

	rows, err := r.db.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	var items []domain.CartItem
	for rows.Next() {
		var it domain.CartItem
		var customData []byte
		if err := rows.Scan(
			&it.ID,
			&it.CartID,
			&it.ArticleID,
			&it.VariantID,
			&it.Quantity,
			&it.PriceAtTime,
			&it.OriginalPrice,
			&customData,
			&it.GeneratedImageID,
			&it.PromptID,
			&it.Position,
			&it.CreatedAt,
			&it.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cart item row: %w", err)
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

func (r *PostgresRepository) CreateActive(ctx context.Context, userID int64, expiresAt time.Time) (*domain.Cart, error) {
	query := `INSERT INTO carts (user_id, status, expires_at) VALUES ($1, 'ACTIVE', $2)
	          RETURNING id, user_id, status, version, expires_at, created_at, updated_at`

	var c domain.Cart
	err := r.db.QueryRowContext(ctx, query, userID, expiresAt).Scan(
		&c.ID,
		&c.UserID,
		&c.Status,
		&c.Version,
		&c.ExpiresAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err, "uq_carts_active_user") {
			return nil, ErrActiveCartExists
		}
		return nil, fmt.Errorf("insert cart: %w", err)
	}
	return &c, nil
}

// bumpVersion is the compare-and-increment every mutation goes through.
// Zero rows means the cart is gone, inactive, or the caller lost a race;
// the three cases map to distinct errors.
func (r *PostgresRepository) bumpVersion(ctx context.Context, tx *sql.Tx, cartID, expectedVersion int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE carts SET version = version + 1, updated_at = NOW()
		 WHERE id = $1 AND version = $2 AND status = 'ACTIVE'`,
		cartID, expectedVersion)
	if err != nil {
		return fmt.Errorf("bump cart version: %w", err)
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
		return ErrCartNotFound
	}
	if err != nil {
		return fmt.Errorf("query cart status: %w", err)
	}
	if status != string(domain.CartStatusActive) {
		return ErrCartNotActive
	}
	return ErrVersionConflict
}

func (r *PostgresRepository) InsertItem(ctx context.Context, cartID, expectedVersion int64, item *domain.CartItem) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.bumpVersion(ctx, tx, cartID, expectedVersion); err != nil {
			return err
		}

		customData, err := json.Marshal(item.CustomData)
		if err != nil {
			return fmt.Errorf("marshal custom data: %w", err)
		}
		if item.CustomData == nil {
			customData = []byte("{}")
		}

		return tx.QueryRowContext(ctx,
			`INSERT INTO cart_items (cart_id, article_id, variant_id, quantity, price_at_time,
			                         original_price, custom_data, generated_image_id, prompt_id, position)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING id, created_at, updated_at`,
			cartID,
			item.ArticleID,
			item.VariantID,
			item.Quantity,
			item.PriceAtTime,
			item.OriginalPrice,
			customData,
			item.GeneratedImageID,
			item.PromptID,
			item.Position,
		).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	})
}

func (r *PostgresRepository) UpdateItem(ctx context.Context, cartID, itemID, expectedVersion int64, quantity int, customData map[string]any) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.bumpVersion(ctx, tx, cartID, expectedVersion); err != nil {
			return err
		}

		var res sql.Result
		var err error
		if customData != nil {
			var raw []byte
			raw, err = json.Marshal(customData)
			if err != nil {
				return fmt.Errorf("marshal custom data: %w", err)
			}
			res, err = tx.ExecContext(ctx,
				`UPDATE cart_items SET quantity = $3, custom_data = $4, updated_at = NOW()
				 WHERE id = $2 AND cart_id = $1`,
				cartID, itemID, quantity, raw)
		} else {
			res, err = tx.ExecContext(ctx,
				`UPDATE cart_items SET quantity = $3, updated_at = NOW()
				 WHERE id = $2 AND cart_id = $1`,
				cartID, itemID, quantity)
		}
		if err != nil {
			return fmt.Errorf("update cart item: %w", err)
		}
		return requireOneRow(res, ErrItemNotFound)
	})
}

func (r *PostgresRepository) DeleteItem(ctx context.Context, cartID, itemID, expectedVersion int64) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.bumpVersion(ctx, tx, cartID, expectedVersion); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM cart_items WHERE id = $2 AND cart_id = $1`, cartID, itemID)
		if err != nil {
			return fmt.Errorf("delete cart item: %w", err)
		}
		if err := requireOneRow(res, ErrItemNotFound); err != nil {
			return err
		}

		// keep display positions dense
		_, err = tx.ExecContext(ctx,
			`UPDATE cart_items SET position = sub.rn - 1
			 FROM (SELECT id, ROW_NUMBER() OVER (ORDER BY position, created_at) AS rn
			       FROM cart_items WHERE cart_id = $1) sub
			 WHERE cart_items.id = sub.id`, cartID)
		if err != nil {
			return fmt.Errorf("reorder cart items: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepository) DeleteAllItems(ctx context.Context, cartID, expectedVersion int64) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.bumpVersion(ctx, tx, cartID, expectedVersion); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
		if err != nil {
			return fmt.Errorf("clear cart items: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepository) UpdateOriginalPrices(ctx context.Context, cartID, expectedVersion int64, prices map[int64]int64) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.bumpVersion(ctx, tx, cartID, expectedVersion); err != nil {
			return err
		}
		for itemID, price := range prices {
			_, err := tx.ExecContext(ctx,
				`UPDATE cart_items SET original_price = $3, updated_at = NOW()
				 WHERE id = $2 AND cart_id = $1`,
				cartID, itemID, price)
			if err != nil {
				return fmt.Errorf("update original price: %w", err)
			}
		}
		return nil
	})
}

// MarkExpiredAbandoned flips expired ACTIVE carts to ABANDONED and writes a
// cart.abandoned outbox event per cart in the same transaction.
func (r *PostgresRepository) MarkExpiredAbandoned(ctx context.Context, now time.Time) ([]int64, error) {
	var ids []int64
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`UPDATE carts SET status = 'ABANDONED', version = version + 1, updated_at = NOW()
			 WHERE status = 'ACTIVE' AND expires_at IS NOT NULL AND expires_at < $1
			 RETURNING id, user_id`, now)
		if err != nil {
			return fmt.Errorf("mark expired carts: %w", err)
		}
		defer rows.Close()

		type abandoned struct {
			cartID int64
			userID int64
		}
		var swept []abandoned
		for rows.Next() {
			var a abandoned
			if err := rows.Scan(&a.cartID, &a.userID); err != nil {
				return fmt.Errorf("scan abandoned cart id: %w", err)
			}
			swept = append(swept, a)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("row iteration error: %w", err)
		}

		for _, a := range swept {
			err := outbox.InsertTx(ctx, tx, strconv.FormatInt(a.cartID, 10), outbox.EventCartAbandoned, map[string]any{
				"cartId": a.cartID,
				"userId": a.userID,
			})
			if err != nil {
				return err
			}
			ids = append(ids, a.cartID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func requireOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
