package cache

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_restaurant/internal/domain"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type BreakerSettings struct {
	// consecutive failures before the breaker opens
	MaxFailures uint32
	// how long the breaker stays open before letting a probe through
	OpenTimeout time.Duration
}

// BreakerCache guards reads and writes to another CartCache with a circuit
// breaker, so an unavailable redis costs callers one fast error instead of a
// dial timeout per request. Misses are not failures.
//
// Delete always reaches the inner cache: an invalidation skipped while the
// breaker is open would leave a stale cart behind once redis recovers.
type BreakerCache struct {
	inner CartCache
	get   *gobreaker.CircuitBreaker[*domain.Cart]
	set   *gobreaker.CircuitBreaker[struct{}]
}

func NewBreakerCache(inner CartCache, cfg BreakerSettings, log *zap.SugaredLogger) *BreakerCache {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.MaxFailures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrCacheMiss)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warnw("cart cache breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		}
	}

	return &BreakerCache{
		inner: inner,
		get:   gobreaker.NewCircuitBreaker[*domain.Cart](settings("cart-cache-get")),
		set:   gobreaker.NewCircuitBreaker[struct{}](settings("cart-cache-set")),
	}
}

func (b *BreakerCache) Get(ctx context.Context, identity domain.Identity) (*domain.Cart, error) {
	return b.get.Execute(func() (*domain.Cart, error) {
		return b.inner.Get(ctx, identity)
	})
}

func (b *BreakerCache) Set(ctx context.Context, identity domain.Identity, cart *domain.Cart) error {
	_, err := b.set.Execute(func() (struct{}, error) {
		return struct{}{}, b.inner.Set(ctx, identity, cart)
	})
	return err
}

func (b *BreakerCache) Delete(ctx context.Context, identity domain.Identity) error {
	return b.inner.Delete(ctx, identity)
}

// State reports the read breaker's state.
func (b *BreakerCache) State() gobreaker.State {
	return b.get.State()
}
