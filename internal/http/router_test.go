package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/go_restaurant/internal/audit"
	"github.com/fjod/go_restaurant/internal/cache"
	"github.com/fjod/go_restaurant/internal/domain"
	"github.com/fjod/go_restaurant/internal/repository"
	"github.com/fjod/go_restaurant/internal/service"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	t *testing.T
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithStore(t, func(repo *repository.Repository) repository.Store { return repo })
}

// newTestServerWithStore lets a test wrap the store the services write through.
func newTestServerWithStore(t *testing.T, wrap func(*repository.Repository) repository.Store) *testServer {
	t.Helper()
	creds := &repository.Credentials{
		Driver:            repository.DriverSQLite,
		Path:              ":memory:",
		MigrationsDirPath: "../repository/migrations/sqlite",
	}
	repo, err := repository.NewRepository(creds)
	require.NoError(t, err)
	require.NoError(t, repo.RunMigrations(creds))
	t.Cleanup(func() { repo.Close() })

	log := testLogger()
	store := wrap(repo)
	carts := service.NewCartService(store, cache.NopCache{}, log)
	orders := service.NewOrderService(store, cache.NopCache{}, audit.Nop{}, log)

	router := NewRouter(RouterConfig{
		RequestTimeout:     5 * time.Second,
		MaxRequestBodySize: 1 << 20,
		Auth:               testAuthConfig(),
	}, Services{
		Menu:     repo,
		Carts:    carts,
		Checkout: service.NewCheckoutService(store, decimal.RequireFromString("2.99"), time.Hour, log),
		Orders:   orders,
		DB:       repo,
	}, log)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, t: t}
}

// client returns an http client with its own cookie jar, i.e. a fresh browser.
func (s *testServer) client() *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(s.t, err)
	return &http.Client{Jar: jar}
}

func (s *testServer) do(c *http.Client, method, path, token string, body interface{}) (*http.Response, []byte) {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(s.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	return resp, data
}

func pickupDetails() domain.CustomerData {
	return domain.CustomerData{
		FirstName:     "Grace",
		LastName:      "Hopper",
		Email:         "grace@example.com",
		Phone:         "555-0100",
		DeliveryType:  domain.DeliveryTypePickup,
		PaymentMethod: domain.PaymentMethodCash,
	}
}

func TestRouter_Health(t *testing.T) {
	srv := newTestServer(t)

	resp, body := srv.do(srv.client(), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestRouter_Menu(t *testing.T) {
	srv := newTestServer(t)
	c := srv.client()

	resp, body := srv.do(c, http.MethodGet, "/api/v1/menu/items?category=mains", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var items []MenuItemDTO
	require.NoError(t, json.Unmarshal(body, &items))
	assert.Len(t, items, 4)
	for _, item := range items {
		assert.Equal(t, "mains", item.CategoryID)
	}

	resp, body = srv.do(c, http.MethodGet, "/api/v1/menu/items/4", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var item MenuItemDTO
	require.NoError(t, json.Unmarshal(body, &item))
	assert.Equal(t, "Butter Chicken", item.Name)
	assert.Equal(t, "14.50", item.Price)

	resp, _ = srv.do(c, http.MethodGet, "/api/v1/menu/items/999", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Empty(t, resp.Cookies(), "menu browsing issues no session")
}

func TestRouter_AnonymousCheckoutFlow(t *testing.T) {
	srv := newTestServer(t)
	browser := srv.client()

	resp, body := srv.do(browser, http.MethodPost, "/api/v1/cart/items", "", AddItemRequestDTO{
		MenuItemID: 4, Quantity: 2, SpiceLevel: "hot", SpecialNotes: "no coriander",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = srv.do(browser, http.MethodPost, "/api/v1/cart/items", "", AddItemRequestDTO{
		MenuItemID: 8, Quantity: 1, Extras: []string{"extra butter", "chilli"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var cart CartDTO
	require.NoError(t, json.Unmarshal(body, &cart))
	assert.Equal(t, 3, cart.TotalItems)
	assert.Equal(t, "32.50", cart.Subtotal)

	resp, body = srv.do(browser, http.MethodPost, "/api/v1/checkout/orders", "", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "no_active_session", decodeErrorBody(t, body).Code)

	resp, body = srv.do(browser, http.MethodPost, "/api/v1/checkout/session", "", pickupDetails())
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var session CheckoutSessionDTO
	require.NoError(t, json.Unmarshal(body, &session))
	assert.Equal(t, "0.00", session.ShippingFee)

	resp, body = srv.do(browser, http.MethodPost, "/api/v1/checkout/orders", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var confirmation OrderConfirmationDTO
	require.NoError(t, json.Unmarshal(body, &confirmation))
	assert.Equal(t, domain.OrderStatusPending, confirmation.Status)
	assert.Equal(t, "32.50", confirmation.TotalAmount)
	assert.Equal(t, "32.50", confirmation.GrandTotal)
	assert.Equal(t, domain.EstimatedDelivery, confirmation.EstimatedDelivery)
	assert.Contains(t, confirmation.Message, confirmation.OrderNumber)

	want := []OrderItemDTO{
		{MenuItemID: 4, Name: "Butter Chicken", Category: "Mains", Quantity: 2, PriceAtTime: "14.50", TotalPrice: "29.00",
			CustomSpiceLevel: domain.SpiceSpicier, SpiceNotes: "spice: hot; no coriander", Extras: []string{}},
		{MenuItemID: 8, Name: "Garlic Naan", Category: "Sides", Quantity: 1, PriceAtTime: "3.50", TotalPrice: "3.50",
			CustomSpiceLevel: domain.SpiceDefault, Extras: []string{"chilli", "extra butter"}},
	}
	sortByMenuItem := cmpopts.SortSlices(func(a, b OrderItemDTO) bool { return a.MenuItemID < b.MenuItemID })
	if diff := cmp.Diff(want, confirmation.Items, sortByMenuItem, cmpopts.IgnoreFields(OrderItemDTO{}, "ID")); diff != "" {
		t.Errorf("order items mismatch (-want +got):\n%s", diff)
	}

	// the session is consumed, so a second submit places nothing
	resp, body = srv.do(browser, http.MethodPost, "/api/v1/checkout/orders", "", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "no_active_session", decodeErrorBody(t, body).Code)

	resp, body = srv.do(browser, http.MethodGet, "/api/v1/cart", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &cart))
	assert.Empty(t, cart.Items)

	resp, body = srv.do(srv.client(), http.MethodGet, "/api/v1/orders/"+confirmation.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var order OrderDTO
	require.NoError(t, json.Unmarshal(body, &order))
	assert.Equal(t, confirmation.ID, order.ID)
	assert.Equal(t, "Grace Hopper", order.CustomerName)
	assert.Empty(t, order.DeliveryAddress)
}

func TestRouter_SignInMergesCart(t *testing.T) {
	srv := newTestServer(t)
	browser := srv.client()
	token := signToken(t, testSecret, "42", "")

	resp, _ := srv.do(browser, http.MethodPost, "/api/v1/cart/items", "", AddItemRequestDTO{MenuItemID: 1, Quantity: 2})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = srv.do(browser, http.MethodPost, "/api/v1/cart/items", token, AddItemRequestDTO{MenuItemID: 1, Quantity: 1})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := srv.do(srv.client(), http.MethodGet, "/api/v1/cart", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cart CartDTO
	require.NoError(t, json.Unmarshal(body, &cart))
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)

	// the session cookie was expired, so the browser is anonymous and empty again
	resp, body = srv.do(browser, http.MethodGet, "/api/v1/cart", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &cart))
	assert.Empty(t, cart.Items)
}

// lockableStore fails every transaction while locked is set.
type lockableStore struct {
	repository.Store
	locked *atomic.Bool
}

func (s lockableStore) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.locked.Load() {
		return errors.New("database is locked")
	}
	return s.Store.InTx(ctx, fn)
}

func TestRouter_FailedMergeKeepsSessionCart(t *testing.T) {
	locked := &atomic.Bool{}
	srv := newTestServerWithStore(t, func(repo *repository.Repository) repository.Store {
		return lockableStore{Store: repo, locked: locked}
	})
	browser := srv.client()
	token := signToken(t, testSecret, "42", "")

	resp, _ := srv.do(browser, http.MethodPost, "/api/v1/cart/items", "", AddItemRequestDTO{MenuItemID: 1, Quantity: 2})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	locked.Store(true)
	resp, body := srv.do(browser, http.MethodGet, "/api/v1/cart", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cart CartDTO
	require.NoError(t, json.Unmarshal(body, &cart))
	require.Len(t, cart.Items, 1, "the session cart is served while the merge is failing")
	assert.Equal(t, 2, cart.Items[0].Quantity)

	resp, body = srv.do(browser, http.MethodGet, "/api/v1/cart", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &cart))
	require.Len(t, cart.Items, 1, "the session cookie must still point at the cart")

	locked.Store(false)
	resp, _ = srv.do(browser, http.MethodGet, "/api/v1/cart", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = srv.do(srv.client(), http.MethodGet, "/api/v1/cart", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &cart))
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)

	resp, body = srv.do(browser, http.MethodGet, "/api/v1/cart", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &cart))
	assert.Empty(t, cart.Items)
}

func TestRouter_StaffOrderManagement(t *testing.T) {
	srv := newTestServer(t)
	browser := srv.client()

	resp, _ := srv.do(browser, http.MethodPost, "/api/v1/cart/items", "", AddItemRequestDTO{MenuItemID: 11, Quantity: 1})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = srv.do(browser, http.MethodPost, "/api/v1/checkout/session", "", pickupDetails())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body := srv.do(browser, http.MethodPost, "/api/v1/checkout/orders", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var placed OrderConfirmationDTO
	require.NoError(t, json.Unmarshal(body, &placed))

	staff := signToken(t, testSecret, "7", RoleStaff)
	customer := signToken(t, testSecret, "8", "customer")

	resp, _ = srv.do(srv.client(), http.MethodGet, "/api/v1/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = srv.do(srv.client(), http.MethodGet, "/api/v1/orders", customer, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = srv.do(srv.client(), http.MethodGet, "/api/v1/orders?status=pending", staff, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var orders []OrderDTO
	require.NoError(t, json.Unmarshal(body, &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, placed.ID, orders[0].ID)

	statusPath := "/api/v1/orders/" + placed.ID.String() + "/status"
	resp, body = srv.do(srv.client(), http.MethodPost, statusPath, staff, UpdateStatusRequestDTO{Status: domain.OrderStatusConfirmed})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var updated OrderDTO
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, domain.OrderStatusConfirmed, updated.Status)

	resp, body = srv.do(srv.client(), http.MethodPost, statusPath, staff, UpdateStatusRequestDTO{Status: domain.OrderStatusPending})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_transition", decodeErrorBody(t, body).Code)

	resp, _ = srv.do(srv.client(), http.MethodPost, statusPath, customer, UpdateStatusRequestDTO{Status: domain.OrderStatusCancelled})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func decodeErrorBody(t *testing.T, body []byte) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}
