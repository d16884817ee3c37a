package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/go_restaurant/internal/domain"
	"go.uber.org/zap"
)

type CheckoutService interface {
	CreateOrRefresh(ctx context.Context, identity domain.Identity, data domain.CustomerData) (*domain.CheckoutSession, error)
	GetSession(ctx context.Context, identity domain.Identity) (*domain.CheckoutSession, error)
}

type OrderMaterializer interface {
	Materialize(ctx context.Context, identity domain.Identity) (*domain.Order, error)
}

type CheckoutHandler struct {
	checkout CheckoutService
	orders   OrderMaterializer
	timeout  time.Duration
	log      *zap.SugaredLogger
}

func NewCheckoutHandler(checkout CheckoutService, orders OrderMaterializer, timeout time.Duration, log *zap.SugaredLogger) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, orders: orders, timeout: timeout, log: log}
}

// POST /api/v1/checkout/session
func (h *CheckoutHandler) SaveSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing caller identity")
		return
	}

	var req domain.CustomerData
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	session, err := h.checkout.CreateOrRefresh(ctx, identity, req)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, toCheckoutSessionDTO(session))
}

// GET /api/v1/checkout/session
func (h *CheckoutHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing caller identity")
		return
	}

	session, err := h.checkout.GetSession(ctx, identity)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, toCheckoutSessionDTO(session))
}

// POST /api/v1/checkout/orders
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing caller identity")
		return
	}

	order, err := h.orders.Materialize(ctx, identity)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusCreated, OrderConfirmationDTO{
		OrderDTO:          toOrderDTO(order),
		EstimatedDelivery: domain.EstimatedDelivery,
		Message:           "Order " + order.OrderNumber() + " placed successfully",
	})
}
