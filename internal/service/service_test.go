package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_restaurant/internal/audit"
	"github.com/fjod/go_restaurant/internal/cache"
	"github.com/fjod/go_restaurant/internal/domain"
	"github.com/fjod/go_restaurant/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestStore(t *testing.T) *repository.Repository {
	creds := &repository.Credentials{
		Driver:            repository.DriverSQLite,
		Path:              ":memory:",
		MigrationsDirPath: "../repository/migrations/sqlite",
	}

	repo, err := repository.NewRepository(creds)
	require.NoError(t, err)
	require.NoError(t, repo.RunMigrations(creds))

	t.Cleanup(func() { repo.Close() })
	return repo
}

// MockCache is an in-memory CartCache that counts invalidations.
type MockCache struct {
	mu      sync.Mutex
	carts   map[string]*domain.Cart
	deletes map[string]int
}

func NewMockCache() *MockCache {
	return &MockCache{
		carts:   make(map[string]*domain.Cart),
		deletes: make(map[string]int),
	}
}

func (m *MockCache) Get(_ context.Context, identity domain.Identity) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[identity.Key()]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cart, nil
}

func (m *MockCache) Set(_ context.Context, identity domain.Identity, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[identity.Key()] = cart
	return nil
}

func (m *MockCache) Delete(_ context.Context, identity domain.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, identity.Key())
	m.deletes[identity.Key()]++
	return nil
}

func (m *MockCache) Cached(identity domain.Identity) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.carts[identity.Key()]
	return ok
}

func (m *MockCache) Deletes(identity domain.Identity) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletes[identity.Key()]
}

type MockRecorder struct {
	mu      sync.Mutex
	entries []audit.OrderAudit
	err     error
}

func (m *MockRecorder) Record(_ context.Context, entry *audit.OrderAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *MockRecorder) ListByOrder(_ context.Context, orderID string, limit int) ([]audit.OrderAudit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.OrderAudit
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].OrderID == orderID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *MockRecorder) Entries() []audit.OrderAudit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.OrderAudit(nil), m.entries...)
}

// priceStore overrides menu prices so totals can be checked with round numbers.
type priceStore struct {
	repository.Store
	prices map[int64]decimal.Decimal
}

func (p *priceStore) GetMenuItem(ctx context.Context, id int64) (*domain.MenuItem, error) {
	item, err := p.Store.GetMenuItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if price, ok := p.prices[id]; ok {
		item.Price = price
	}
	return item, nil
}

// failingTxStore fails every transaction before it starts.
type failingTxStore struct {
	repository.Store
}

func (failingTxStore) InTx(context.Context, func(tx repository.Store) error) error {
	return errors.New("database is locked")
}

type fixture struct {
	store    repository.Store
	repo     *repository.Repository
	cache    *MockCache
	recorder *MockRecorder
	carts    *CartService
	checkout *CheckoutService
	orders   *OrderService
}

func newFixture(t *testing.T) *fixture {
	repo := setupTestStore(t)
	return newFixtureWithStore(t, repo, repo)
}

func newFixtureWithStore(t *testing.T, repo *repository.Repository, store repository.Store) *fixture {
	log := zap.NewNop().Sugar()
	c := NewMockCache()
	rec := &MockRecorder{}
	return &fixture{
		store:    store,
		repo:     repo,
		cache:    c,
		recorder: rec,
		carts:    NewCartService(store, c, log),
		checkout: NewCheckoutService(store, decimal.RequireFromString("2.99"), time.Hour, log),
		orders:   NewOrderService(store, c, rec, log),
	}
}

func deliveryCustomer() domain.CustomerData {
	return domain.CustomerData{
		FirstName:     "Ada",
		LastName:      "Lovelace",
		Email:         "ada@example.com",
		Phone:         "555-0100",
		Address:       "12 Analytical Way",
		City:          "London",
		ZipCode:       "N1 9GU",
		DeliveryType:  domain.DeliveryTypeDelivery,
		PaymentMethod: domain.PaymentMethodCard,
	}
}

func pickupCustomer() domain.CustomerData {
	return domain.CustomerData{
		FirstName:     "Grace",
		LastName:      "Hopper",
		Email:         "grace@example.com",
		Phone:         "555-0199",
		DeliveryType:  domain.DeliveryTypePickup,
		PaymentMethod: domain.PaymentMethodCash,
	}
}
