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

// UpsertCheckoutSession writes the single session of a cart. A second call for
// the same cart overwrites the snapshot, fee and expiry.
func (r *Repository) UpsertCheckoutSession(ctx context.Context, s *domain.CheckoutSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	customerJSON, err := json.Marshal(s.CustomerData)
	if err != nil {
		return fmt.Errorf("failed to marshal customer data: %w", err)
	}

	query := `INSERT INTO checkout_sessions (id, cart_id, customer_data, delivery_type, shipping_fee, created_at, updated_at, expires_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	          ON CONFLICT (cart_id) DO UPDATE SET
	              customer_data = excluded.customer_data,
	              delivery_type = excluded.delivery_type,
	              shipping_fee  = excluded.shipping_fee,
	              updated_at    = excluded.updated_at,
	              expires_at    = excluded.expires_at`

	_, err = r.q.ExecContext(ctx, query,
		s.ID,
		s.CartID,
		string(customerJSON),
		s.DeliveryType,
		s.ShippingFee,
		s.CreatedAt,
		s.UpdatedAt,
		s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert checkout session: %w", err)
	}
	return nil
}

func (r *Repository) GetCheckoutSession(ctx context.Context, cartID uuid.UUID) (*domain.CheckoutSession, error) {
	query := `SELECT id, cart_id, customer_data, delivery_type, shipping_fee, created_at, updated_at, expires_at
	          FROM checkout_sessions WHERE cart_id = $1`

	var (
		s            domain.CheckoutSession
		customerJSON string
	)
	err := r.q.QueryRowContext(ctx, query, cartID).Scan(
		&s.ID,
		&s.CartID,
		&customerJSON,
		&s.DeliveryType,
		&s.ShippingFee,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query checkout session: %w", err)
	}

	if err := json.Unmarshal([]byte(customerJSON), &s.CustomerData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal customer data: %w", err)
	}
	return &s, nil
}

// DeleteCheckoutSession returns ErrSessionNotFound when no row was removed,
// which is how a second concurrent materialization learns it lost the race.
func (r *Repository) DeleteCheckoutSession(ctx context.Context, cartID uuid.UUID) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM checkout_sessions WHERE cart_id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("delete checkout session: %w", err)
	}
	return expectRow(res, ErrSessionNotFound)
}
