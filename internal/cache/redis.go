package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/go_restaurant/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisOptions tunes how carts are laid out in redis. Zero values fall back
// to a "cart" prefix and a 15m TTL with up to 5m of jitter.
type RedisOptions struct {
	KeyPrefix string
	TTL       time.Duration
	MaxJitter time.Duration
}

// RedisCache stores one JSON document per cart identity, e.g.
// "cart:session:<key>" or "cart:user:<id>".
type RedisCache struct {
	client redis.Cmdable
	opts   RedisOptions
}

func NewRedisCache(client redis.Cmdable, opts RedisOptions) *RedisCache {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "cart"
	}
	if opts.TTL <= 0 {
		opts.TTL = 15 * time.Minute
	}
	if opts.MaxJitter < 0 {
		opts.MaxJitter = 0
	} else if opts.MaxJitter == 0 {
		opts.MaxJitter = 5 * time.Minute
	}
	return &RedisCache{client: client, opts: opts}
}

// Get returns ErrCacheMiss for absent keys. An entry that no longer decodes
// as a cart is dropped and reported as a miss so the caller repopulates it.
func (r *RedisCache) Get(ctx context.Context, identity domain.Identity) (*domain.Cart, error) {
	key := r.key(identity)

	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var cart domain.Cart
	if errDecode := json.Unmarshal(data, &cart); errDecode != nil {
		if errDel := r.client.Del(ctx, key).Err(); errDel != nil {
			return nil, fmt.Errorf("drop unreadable cart %s: %w", key, errDel)
		}
		return nil, fmt.Errorf("%w: dropped unreadable cart %s: %v", ErrCacheMiss, key, errDecode)
	}
	if !cart.BelongsTo(identity) {
		return nil, fmt.Errorf("%w: cart under %s belongs to another identity", ErrCacheMiss, key)
	}

	return &cart, nil
}

func (r *RedisCache) Set(ctx context.Context, identity domain.Identity, cart *domain.Cart) error {
	payload, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}

	key := r.key(identity)
	if err := r.client.Set(ctx, key, payload, r.ttl()).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, identity domain.Identity) error {
	key := r.key(identity)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// ttl spreads expiries so carts cached in the same burst don't all miss together.
func (r *RedisCache) ttl() time.Duration {
	if r.opts.MaxJitter == 0 {
		return r.opts.TTL
	}
	return r.opts.TTL + time.Duration(rand.Int63n(int64(r.opts.MaxJitter)+1))
}

func (r *RedisCache) key(identity domain.Identity) string {
	return r.opts.KeyPrefix + ":" + identity.Key()
}
