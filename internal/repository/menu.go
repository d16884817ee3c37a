package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/go_restaurant/internal/domain"
)

const menuItemColumns = `
	mi.id, mi.name, mi.description, mi.price, mi.category_id, mc.name,
	mi.spice_level, mi.customizable_spice, mi.popular`

func (r *Repository) ListCategories(ctx context.Context) ([]domain.MenuCategory, error) {
	query := `
		SELECT mc.id, mc.name, mc.description, COUNT(mi.id)
		FROM menu_categories mc
		LEFT JOIN menu_items mi ON mi.category_id = mc.id
		GROUP BY mc.id, mc.name, mc.description
		ORDER BY mc.name
	`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]domain.MenuCategory, 0)
	for rows.Next() {
		var c domain.MenuCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.ItemCount); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return categories, nil
}

// ListMenuItems returns every item, or only those of categoryID when it is set.
func (r *Repository) ListMenuItems(ctx context.Context, categoryID string) ([]domain.MenuItem, error) {
	query := `SELECT ` + menuItemColumns + `
		FROM menu_items mi
		JOIN menu_categories mc ON mc.id = mi.category_id`
	var args []any
	if categoryID != "" {
		query += ` WHERE mi.category_id = $1`
		args = append(args, categoryID)
	}
	query += ` ORDER BY mi.category_id, mi.name`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query menu items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.MenuItem, 0)
	for rows.Next() {
		item, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

func (r *Repository) GetMenuItem(ctx context.Context, id int64) (*domain.MenuItem, error) {
	query := `SELECT ` + menuItemColumns + `
		FROM menu_items mi
		JOIN menu_categories mc ON mc.id = mi.category_id
		WHERE mi.id = $1`

	item, err := scanMenuItem(r.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMenuItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMenuItem(row rowScanner) (*domain.MenuItem, error) {
	var item domain.MenuItem
	err := row.Scan(
		&item.ID,
		&item.Name,
		&item.Description,
		&item.Price,
		&item.CategoryID,
		&item.CategoryName,
		&item.SpiceLevel,
		&item.CustomizableSpice,
		&item.Popular,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan menu item: %w", err)
	}
	return &item, nil
}
