package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_restaurant/internal/cache"
	"github.com/fjod/go_restaurant/internal/domain"
	"github.com/fjod/go_restaurant/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type AddItemInput struct {
	MenuItemID   int64
	Quantity     int
	Extras       []string
	SpiceLevel   string
	SpecialNotes string
}

type CartService struct {
	store repository.Store
	cache cache.CartCache
	log   *zap.SugaredLogger
	sfg   singleflight.Group // Prevents cache stampede
}

func NewCartService(store repository.Store, cache cache.CartCache, log *zap.SugaredLogger) *CartService {
	return &CartService{
		store: store,
		cache: cache,
		log:   log,
	}
}

// GetOrCreateCart reads the identity's cart through the cache, creating an
// empty one on first use.
func (s *CartService) GetOrCreateCart(ctx context.Context, identity domain.Identity) (*domain.Cart, error) {
	if !identity.Valid() {
		return nil, fieldError("identity", "exactly one of session or user is required")
	}

	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(identity.Key(), func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, identity)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warnw("cache get error", "identity", identity.Key(), "error", err)
		}

		cart, err = s.store.GetOrCreateCart(ctx, identity)
		if err != nil {
			return nil, fmt.Errorf("get or create cart: %w", err)
		}

		// written before returning so a following mutation's invalidation can't be overtaken
		setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if errSet := s.cache.Set(setCtx, identity, cart); errSet != nil {
			s.log.Warnw("cache set error", "identity", identity.Key(), "error", errSet)
		}

		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

func (s *CartService) AddItem(ctx context.Context, identity domain.Identity, in AddItemInput) (*domain.Cart, error) {
	if in.Quantity < 1 {
		return nil, fieldError("quantity", "must be at least 1")
	}
	spice := strings.TrimSpace(in.SpiceLevel)
	if len(spice) > maxSpiceLevelLength {
		return nil, fieldError("spice_level", fmt.Sprintf("must be at most %d characters", maxSpiceLevelLength))
	}
	notes := strings.TrimSpace(in.SpecialNotes)
	if len(notes) > maxSpecialNotesLength {
		return nil, fieldError("special_notes", fmt.Sprintf("must be at most %d characters", maxSpecialNotesLength))
	}

	menuItem, err := s.store.GetMenuItem(ctx, in.MenuItemID)
	if errors.Is(err, repository.ErrMenuItemNotFound) {
		return nil, fmt.Errorf("%w: menu item %d", ErrNotFound, in.MenuItemID)
	}
	if err != nil {
		return nil, err
	}

	cart, err := s.store.GetOrCreateCart(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}

	item := &domain.CartItem{
		CartID:       cart.ID,
		MenuItemID:   menuItem.ID,
		Quantity:     in.Quantity,
		Extras:       domain.NormalizeExtras(in.Extras),
		SpiceLevel:   spice,
		SpecialNotes: notes,
		Price:        menuItem.Price,
	}
	if err := s.store.UpsertCartItem(ctx, item); err != nil {
		s.log.Errorw("repo add item error", "identity", identity.Key(), "error", err)
		return nil, err
	}

	s.invalidateCache(identity)
	return s.store.FindCart(ctx, identity)
}

// UpdateItemQuantity sets the line's quantity, removing the line when the
// quantity is zero or negative.
func (s *CartService) UpdateItemQuantity(ctx context.Context, identity domain.Identity, itemID uuid.UUID, quantity int) (*domain.Cart, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, identity, itemID)
	}

	cart, err := s.store.GetOrCreateCart(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}

	err = s.store.UpdateItemQuantity(ctx, cart.ID, itemID, quantity)
	if errors.Is(err, repository.ErrItemNotFound) {
		return nil, fmt.Errorf("%w: cart item %s", ErrNotFound, itemID)
	}
	if err != nil {
		s.log.Errorw("repo update item quantity error", "identity", identity.Key(), "error", err)
		return nil, err
	}

	s.invalidateCache(identity)
	return s.store.FindCart(ctx, identity)
}

func (s *CartService) RemoveItem(ctx context.Context, identity domain.Identity, itemID uuid.UUID) (*domain.Cart, error) {
	cart, err := s.store.GetOrCreateCart(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}

	err = s.store.RemoveItem(ctx, cart.ID, itemID)
	if errors.Is(err, repository.ErrItemNotFound) {
		return nil, fmt.Errorf("%w: cart item %s", ErrNotFound, itemID)
	}
	if err != nil {
		s.log.Errorw("repo remove item error", "identity", identity.Key(), "error", err)
		return nil, err
	}

	s.invalidateCache(identity)
	return s.store.FindCart(ctx, identity)
}

// Clear empties the cart. Clearing an empty cart succeeds.
func (s *CartService) Clear(ctx context.Context, identity domain.Identity) (*domain.Cart, error) {
	cart, err := s.store.GetOrCreateCart(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}

	if err := s.store.ClearCart(ctx, cart.ID); err != nil {
		s.log.Errorw("repo clear cart error", "identity", identity.Key(), "error", err)
		return nil, err
	}

	s.invalidateCache(identity)
	return s.store.FindCart(ctx, identity)
}

func (s *CartService) invalidateCache(identity domain.Identity) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, identity); err != nil {
		s.log.Warnw("cache invalidate error", "identity", identity.Key(), "error", err)
	}
}
