package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_restaurant/internal/audit"
	"github.com/fjod/go_restaurant/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderService interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to domain.OrderStatus, actor string) (*domain.Order, error)
	History(ctx context.Context, id uuid.UUID, limit int) ([]audit.OrderAudit, error)
}

type OrdersHandler struct {
	orders  OrderService
	timeout time.Duration
	log     *zap.SugaredLogger
}

func NewOrdersHandler(orders OrderService, timeout time.Duration, log *zap.SugaredLogger) *OrdersHandler {
	return &OrdersHandler{orders: orders, timeout: timeout, log: log}
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, id)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, toOrderDTO(order))
}

// GET /api/v1/orders?status=&order_type=&name=&email=&limit=
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q := r.URL.Query()
	filter := domain.OrderFilter{
		Status:        domain.OrderStatus(q.Get("status")),
		OrderType:     domain.OrderType(q.Get("order_type")),
		CustomerName:  q.Get("name"),
		CustomerEmail: q.Get("email"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			respondValidation(w, map[string]string{"limit": "must be an integer"})
			return
		}
		filter.Limit = limit
	}

	orders, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	dtos := make([]OrderDTO, 0, len(orders))
	for i := range orders {
		dtos = append(dtos, toOrderDTO(&orders[i]))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// POST /api/v1/orders/{order_id}/status
func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	actor := ""
	if identity, ok := IdentityFromContext(r.Context()); ok {
		actor = identity.Key()
	}

	order, err := h.orders.UpdateStatus(ctx, id, req.Status, actor)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, toOrderDTO(order))
}

// GET /api/v1/orders/{order_id}/history
func (h *OrdersHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	entries, err := h.orders.History(ctx, id, 0)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	if entries == nil {
		entries = []audit.OrderAudit{}
	}

	respondJSON(w, http.StatusOK, entries)
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondValidation(w, map[string]string{"order_id": "must be a valid id"})
		return uuid.Nil, false
	}
	return id, true
}
