package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_restaurant/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

const orderColumns = `id, customer_name, customer_email, customer_phone, delivery_address, order_type,
	payment_method, special_instructions, delivery_fee, status, total_amount, user_id, created_at, updated_at`

func (r *Repository) InsertOrder(ctx context.Context, order *domain.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}

	query := `INSERT INTO orders (` + orderColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.q.ExecContext(ctx, query,
		order.ID,
		order.CustomerName,
		order.CustomerEmail,
		order.CustomerPhone,
		order.DeliveryAddress,
		order.OrderType,
		order.PaymentMethod,
		order.SpecialInstructions,
		order.DeliveryFee,
		order.Status,
		order.TotalAmount,
		nullString(order.UserID),
		order.CreatedAt,
		order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *Repository) InsertOrderItem(ctx context.Context, item *domain.OrderItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	extras, err := encodeExtras(item.Extras)
	if err != nil {
		return err
	}

	query := `INSERT INTO order_items (id, order_id, menu_item_id, quantity, price_at_time, custom_spice_level,
	                                   spice_notes, extras, cached_item_name, cached_item_category, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.q.ExecContext(ctx, query,
		item.ID,
		item.OrderID,
		item.MenuItemID,
		item.Quantity,
		item.PriceAtTime,
		item.CustomSpiceLevel,
		item.SpiceNotes,
		extras,
		item.CachedItemName,
		item.CachedItemCategory,
		item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order item: %w", err)
	}
	return nil
}

func (r *Repository) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	query := `SELECT id, order_id, menu_item_id, quantity, price_at_time, custom_spice_level,
	                 spice_notes, extras, cached_item_name, cached_item_category, created_at
	          FROM order_items WHERE order_id = $1
	          ORDER BY created_at, id`

	rows, err := r.q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var (
			item       domain.OrderItem
			menuItemID sql.NullInt64
			extras     string
		)
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&menuItemID,
			&item.Quantity,
			&item.PriceAtTime,
			&item.CustomSpiceLevel,
			&item.SpiceNotes,
			&extras,
			&item.CachedItemName,
			&item.CachedItemCategory,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.MenuItemID = menuItemID.Int64
		if err := json.Unmarshal([]byte(extras), &item.Extras); err != nil {
			return nil, fmt.Errorf("unmarshal order item extras: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

func (r *Repository) SetOrderTotal(ctx context.Context, orderID uuid.UUID, total decimal.Decimal) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE orders SET total_amount = $1 WHERE id = $2`,
		total, orderID)
	if err != nil {
		return fmt.Errorf("update order total: %w", err)
	}
	return expectRow(res, ErrOrderNotFound)
}

func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	items, err := r.ListOrderItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a LIKE pattern matching s anywhere, with s taken literally.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// ListOrders returns orders newest first, narrowed by any non-empty filter field.
// Name and email match case-insensitive substrings.
func (r *Repository) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1 = 1`
	var args []any

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.OrderType != "" {
		args = append(args, filter.OrderType)
		query += fmt.Sprintf(" AND order_type = $%d", len(args))
	}
	if filter.CustomerName != "" {
		args = append(args, containsPattern(filter.CustomerName))
		query += fmt.Sprintf(` AND LOWER(customer_name) LIKE LOWER($%d) ESCAPE '\'`, len(args))
	}
	if filter.CustomerEmail != "" {
		args = append(args, containsPattern(filter.CustomerEmail))
		query += fmt.Sprintf(` AND LOWER(customer_email) LIKE LOWER($%d) ESCAPE '\'`, len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d", len(args))

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	// release the connection before loading items; sqlite runs on a single one
	rows.Close()

	for i := range orders {
		items, err := r.ListOrderItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

// UpdateOrderStatus moves the order from one status to another only if it is
// still in the expected status. ErrStatusChanged means another writer got
// there first.
func (r *Repository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, at time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		to, at, id, from)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return expectRow(res, ErrStatusChanged)
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order  domain.Order
		userID sql.NullString
	)
	err := row.Scan(
		&order.ID,
		&order.CustomerName,
		&order.CustomerEmail,
		&order.CustomerPhone,
		&order.DeliveryAddress,
		&order.OrderType,
		&order.PaymentMethod,
		&order.SpecialInstructions,
		&order.DeliveryFee,
		&order.Status,
		&order.TotalAmount,
		&userID,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}
	order.UserID = userID.String
	return &order, nil
}
