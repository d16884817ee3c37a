package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_restaurant/internal/domain"
	"github.com/fjod/go_restaurant/internal/repository"
)

// MergeSessionCartIntoUserCart folds the anonymous cart into the user's cart
// after sign-in. Equal lines have their quantities added; other lines are
// re-parented; the emptied session cart is deleted.
//
// A failed merge never blocks the caller: it is logged and the session cart is
// returned unmerged with merged set to false, so the caller keeps the session
// bound and can retry later. An error is returned only if that fallback read
// fails too.
func (s *CartService) MergeSessionCartIntoUserCart(ctx context.Context, sessionKey, userID string) (cart *domain.Cart, merged bool, err error) {
	sessionIdentity := domain.SessionIdentity(sessionKey)
	userIdentity := domain.UserIdentity(userID)

	err = s.store.InTx(ctx, func(tx repository.Store) error {
		return mergeCarts(ctx, tx, sessionIdentity, userIdentity)
	})
	if err != nil {
		s.log.Errorw("cart merge failed, keeping session cart",
			"session", sessionKey, "user_id", userID, "error", err)

		cart, errGet := s.store.GetOrCreateCart(ctx, sessionIdentity)
		if errGet != nil {
			return nil, false, fmt.Errorf("read session cart after failed merge: %w", errGet)
		}
		return cart, false, nil
	}

	s.invalidateCache(sessionIdentity)
	s.invalidateCache(userIdentity)
	s.log.Infow("cart merged", "session", sessionKey, "user_id", userID)

	cart, err = s.store.FindCart(ctx, userIdentity)
	if err != nil {
		return nil, true, err
	}
	return cart, true, nil
}

func mergeCarts(ctx context.Context, tx repository.Store, sessionIdentity, userIdentity domain.Identity) error {
	userCart, err := tx.GetOrCreateCart(ctx, userIdentity)
	if err != nil {
		return fmt.Errorf("resolve user cart: %w", err)
	}

	sessionCart, err := tx.FindCart(ctx, sessionIdentity)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session cart: %w", err)
	}

	for _, line := range sessionCart.Items {
		match := findLine(userCart.Items, line)
		if match == nil {
			if err := tx.MoveItem(ctx, line.ID, userCart.ID); err != nil {
				return fmt.Errorf("move line %s: %w", line.ID, err)
			}
			userCart.Items = append(userCart.Items, line)
			continue
		}

		if err := tx.IncrementItemQuantity(ctx, match.ID, line.Quantity); err != nil {
			return fmt.Errorf("increment line %s: %w", match.ID, err)
		}
		if err := tx.RemoveItem(ctx, sessionCart.ID, line.ID); err != nil {
			return fmt.Errorf("remove merged line %s: %w", line.ID, err)
		}
		match.Quantity += line.Quantity
	}

	if err := tx.DeleteCart(ctx, sessionCart.ID); err != nil {
		return fmt.Errorf("delete session cart: %w", err)
	}
	return nil
}

func findLine(items []domain.CartItem, line domain.CartItem) *domain.CartItem {
	for i := range items {
		if items[i].SameLine(line) {
			return &items[i]
		}
	}
	return nil
}
