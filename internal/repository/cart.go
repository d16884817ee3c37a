package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/go_restaurant/internal/domain"
	"github.com/google/uuid"
)

// GetOrCreateCart inserts an empty cart for the identity unless one exists,
// then reads it back. Concurrent callers converge on the same row.
func (r *Repository) GetOrCreateCart(ctx context.Context, identity domain.Identity) (*domain.Cart, error) {
	if !identity.Valid() {
		return nil, fmt.Errorf("invalid identity %q", identity.Key())
	}

	now := utcNow()
	query := `INSERT INTO carts (id, session_key, user_id, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5)
	          ON CONFLICT DO NOTHING`
	_, err := r.q.ExecContext(ctx, query,
		uuid.New(),
		nullString(identity.SessionKey),
		nullString(identity.UserID),
		now,
		now)
	if err != nil {
		return nil, fmt.Errorf("insert cart: %w", err)
	}

	return r.FindCart(ctx, identity)
}

func (r *Repository) FindCart(ctx context.Context, identity domain.Identity) (*domain.Cart, error) {
	column, value := "session_key", identity.SessionKey
	if identity.IsUser() {
		column, value = "user_id", identity.UserID
	}

	query := `SELECT id, session_key, user_id, created_at, updated_at
	          FROM carts WHERE ` + column + ` = $1`

	var (
		cart       domain.Cart
		sessionKey sql.NullString
		userID     sql.NullString
	)
	err := r.q.QueryRowContext(ctx, query, value).Scan(
		&cart.ID,
		&sessionKey,
		&userID,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	cart.SessionKey = sessionKey.String
	cart.UserID = userID.String

	items, err := r.listCartItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items
	return &cart, nil
}

func (r *Repository) listCartItems(ctx context.Context, cartID uuid.UUID) ([]domain.CartItem, error) {
	query := `SELECT ci.id, ci.cart_id, ci.menu_item_id, mi.name, ci.quantity, ci.extras,
	                 ci.spice_level, ci.special_notes, ci.price, ci.created_at
	          FROM cart_items ci
	          JOIN menu_items mi ON mi.id = ci.menu_item_id
	          WHERE ci.cart_id = $1
	          ORDER BY ci.created_at, ci.id`

	rows, err := r.q.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.CartItem, 0)
	for rows.Next() {
		var (
			item   domain.CartItem
			extras string
		)
		if err := rows.Scan(
			&item.ID,
			&item.CartID,
			&item.MenuItemID,
			&item.MenuItemName,
			&item.Quantity,
			&extras,
			&item.SpiceLevel,
			&item.SpecialNotes,
			&item.Price,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		if err := json.Unmarshal([]byte(extras), &item.Extras); err != nil {
			return nil, fmt.Errorf("unmarshal extras: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

func (r *Repository) DeleteCart(ctx context.Context, cartID uuid.UUID) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

// UpsertCartItem adds a line or, when a line with the same menu item, extras,
// spice level and notes already exists, increases its quantity. The existing
// line keeps the price it was first added at.
func (r *Repository) UpsertCartItem(ctx context.Context, item *domain.CartItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = utcNow()
	}
	extras, err := encodeExtras(item.Extras)
	if err != nil {
		return err
	}

	query := `INSERT INTO cart_items (id, cart_id, menu_item_id, quantity, extras, spice_level, special_notes, price, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	          ON CONFLICT (cart_id, menu_item_id, extras, spice_level, special_notes)
	          DO UPDATE SET quantity = cart_items.quantity + excluded.quantity`
	_, err = r.q.ExecContext(ctx, query,
		item.ID,
		item.CartID,
		item.MenuItemID,
		item.Quantity,
		extras,
		item.SpiceLevel,
		item.SpecialNotes,
		item.Price,
		item.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}

	return r.touchCart(ctx, item.CartID)
}

func (r *Repository) UpdateItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, quantity int) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE cart_items SET quantity = $1 WHERE id = $2 AND cart_id = $3`,
		quantity, itemID, cartID)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	if err := expectRow(res, ErrItemNotFound); err != nil {
		return err
	}
	return r.touchCart(ctx, cartID)
}

func (r *Repository) IncrementItemQuantity(ctx context.Context, itemID uuid.UUID, delta int) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE cart_items SET quantity = quantity + $1 WHERE id = $2`,
		delta, itemID)
	if err != nil {
		return fmt.Errorf("increment cart item: %w", err)
	}
	return expectRow(res, ErrItemNotFound)
}

func (r *Repository) MoveItem(ctx context.Context, itemID, toCartID uuid.UUID) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE cart_items SET cart_id = $1 WHERE id = $2`,
		toCartID, itemID)
	if err != nil {
		return fmt.Errorf("move cart item: %w", err)
	}
	if err := expectRow(res, ErrItemNotFound); err != nil {
		return err
	}
	return r.touchCart(ctx, toCartID)
}

func (r *Repository) RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`,
		itemID, cartID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if err := expectRow(res, ErrItemNotFound); err != nil {
		return err
	}
	return r.touchCart(ctx, cartID)
}

func (r *Repository) ClearCart(ctx context.Context, cartID uuid.UUID) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return r.touchCart(ctx, cartID)
}

func (r *Repository) touchCart(ctx context.Context, cartID uuid.UUID) error {
	if _, err := r.q.ExecContext(ctx, `UPDATE carts SET updated_at = $1 WHERE id = $2`, utcNow(), cartID); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}

// encodeExtras stores extras in canonical form so the unique line key can
// compare them as plain text.
func encodeExtras(extras []string) (string, error) {
	b, err := json.Marshal(domain.NormalizeExtras(extras))
	if err != nil {
		return "", fmt.Errorf("marshal extras: %w", err)
	}
	return string(b), nil
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
