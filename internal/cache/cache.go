package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_restaurant/internal/domain"
)

type CartCache interface {
	Get(ctx context.Context, identity domain.Identity) (*domain.Cart, error)
	Set(ctx context.Context, identity domain.Identity, cart *domain.Cart) error
	Delete(ctx context.Context, identity domain.Identity) error
}

var ErrCacheMiss = errors.New("cache miss")

// NopCache always misses. Used when no redis address is configured.
type NopCache struct{}

func (NopCache) Get(context.Context, domain.Identity) (*domain.Cart, error) {
	return nil, ErrCacheMiss
}

func (NopCache) Set(context.Context, domain.Identity, *domain.Cart) error { return nil }

func (NopCache) Delete(context.Context, domain.Identity) error { return nil }
