package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_restaurant/internal/audit"
	"github.com/fjod/go_restaurant/internal/cache"
	"github.com/fjod/go_restaurant/internal/domain"
	"github.com/fjod/go_restaurant/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// materialization steps, in order; passed to the step hook after each write
const (
	stepOrderInserted = "order_inserted"
	stepItemInserted  = "item_inserted"
	stepTotalSet      = "total_set"
	stepEventQueued   = "event_queued"
	stepCartCleared   = "cart_cleared"
)

const auditTimeout = 5 * time.Second

type OrderService struct {
	store    repository.Store
	cache    cache.CartCache
	recorder audit.Recorder
	log      *zap.SugaredLogger
	now      func() time.Time
	stepHook func(step string) error

	audits sync.WaitGroup
}

func NewOrderService(store repository.Store, cache cache.CartCache, recorder audit.Recorder, log *zap.SugaredLogger) *OrderService {
	return &OrderService{
		store:    store,
		cache:    cache,
		recorder: recorder,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Materialize turns the identity's cart and checkout session into a pending
// order. Everything after the expiry check happens in one transaction: the
// order, its items, its total, the outbox event and the removal of the cart
// lines and session either all land or none do.
func (s *OrderService) Materialize(ctx context.Context, identity domain.Identity) (*domain.Order, error) {
	cart, err := s.store.FindCart(ctx, identity)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, err
	}

	session, err := s.store.GetCheckoutSession(ctx, cart.ID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	if session.IsExpired(now) {
		return nil, ErrSessionExpired
	}

	var order *domain.Order
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		var errTx error
		order, errTx = s.materialize(ctx, tx, identity, session, now)
		return errTx
	})
	if errors.Is(err, ErrNoActiveSession) || errors.Is(err, ErrEmptyCart) {
		return nil, err
	}
	if err != nil {
		s.log.Errorw("order materialization failed", "cart_id", cart.ID, "identity", identity.Key(), "error", err)
		return nil, fmt.Errorf("%w: %w", ErrOrderCreationFailed, err)
	}

	s.invalidateCart(identity)
	s.recordAsync(&audit.OrderAudit{
		OrderID:   order.ID.String(),
		EventType: audit.EventOrderCreated,
		NewStatus: string(order.Status),
		Actor:     identity.Key(),
		Timestamp: now,
	})
	s.log.Infow("order created",
		"order_id", order.ID, "order_number", order.OrderNumber(), "total_amount", order.TotalAmount.StringFixed(2))

	return order, nil
}

func (s *OrderService) materialize(ctx context.Context, tx repository.Store, identity domain.Identity, session *domain.CheckoutSession, now time.Time) (*domain.Order, error) {
	// lines are re-read inside the transaction
	cart, err := tx.FindCart(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}

	data := session.CustomerData
	order := &domain.Order{
		ID:                  uuid.New(),
		CustomerName:        data.FullName(),
		CustomerEmail:       data.Email,
		CustomerPhone:       data.Phone,
		DeliveryAddress:     data.DeliveryAddress(),
		OrderType:           session.DeliveryType,
		PaymentMethod:       data.PaymentMethod,
		SpecialInstructions: data.SpecialInstructions,
		DeliveryFee:         session.ShippingFee,
		Status:              domain.OrderStatusPending,
		UserID:              identity.UserID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := tx.InsertOrder(ctx, order); err != nil {
		return nil, err
	}
	if err := s.step(stepOrderInserted); err != nil {
		return nil, err
	}

	for _, line := range cart.Items {
		menuItem, err := tx.GetMenuItem(ctx, line.MenuItemID)
		if err != nil {
			return nil, fmt.Errorf("menu item %d: %w", line.MenuItemID, err)
		}

		item := &domain.OrderItem{
			OrderID:            order.ID,
			MenuItemID:         line.MenuItemID,
			Quantity:           line.Quantity,
			PriceAtTime:        line.Price,
			CustomSpiceLevel:   domain.MapSpiceLevel(line.SpiceLevel),
			SpiceNotes:         domain.SpiceNotes(line.SpiceLevel, line.SpecialNotes),
			Extras:             line.Extras,
			CachedItemName:     menuItem.Name,
			CachedItemCategory: menuItem.CategoryName,
			CreatedAt:          now,
		}
		if err := tx.InsertOrderItem(ctx, item); err != nil {
			return nil, err
		}
		if err := s.step(stepItemInserted); err != nil {
			return nil, err
		}
	}

	// the total comes from what was persisted, never from the cart or client
	items, err := tx.ListOrderItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	order.TotalAmount = order.ItemsTotal()
	if err := tx.SetOrderTotal(ctx, order.ID, order.TotalAmount); err != nil {
		return nil, err
	}
	if err := s.step(stepTotalSet); err != nil {
		return nil, err
	}

	payload, err := orderCreatedPayload(order)
	if err != nil {
		return nil, err
	}
	if err := tx.InsertOutboxEvent(ctx, &repository.OutboxEvent{
		AggregateID: order.ID.String(),
		EventType:   repository.EventOrderCreated,
		Payload:     payload,
		CreatedAt:   now,
	}); err != nil {
		return nil, err
	}
	if err := s.step(stepEventQueued); err != nil {
		return nil, err
	}

	if err := tx.ClearCart(ctx, cart.ID); err != nil {
		return nil, err
	}
	if err := s.step(stepCartCleared); err != nil {
		return nil, err
	}

	// a concurrent materialization that already removed the session wins
	err = tx.DeleteCheckoutSession(ctx, cart.ID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, err
	}

	return order, nil
}

func (s *OrderService) step(name string) error {
	if s.stepHook == nil {
		return nil
	}
	return s.stepHook(name)
}

func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := s.store.GetOrder(ctx, id)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fieldError("status", "unknown order status")
	}
	if filter.OrderType != "" && filter.OrderType != domain.DeliveryTypeDelivery && filter.OrderType != domain.DeliveryTypePickup {
		return nil, fieldError("order_type", "must be one of: delivery, pickup")
	}
	if filter.Limit < 0 {
		return nil, fieldError("limit", "must not be negative")
	}
	return s.store.ListOrders(ctx, filter)
}

// UpdateStatus applies a staff-triggered lifecycle transition. The write is
// conditional on the status read here, so a concurrent change is reported as
// an invalid transition rather than silently overwritten.
func (s *OrderService) UpdateStatus(ctx context.Context, id uuid.UUID, to domain.OrderStatus, actor string) (*domain.Order, error) {
	if !to.Valid() {
		return nil, fieldError("status", "unknown order status")
	}

	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	from := order.Status
	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	now := s.now()
	err = s.store.UpdateOrderStatus(ctx, id, from, to, now)
	if errors.Is(err, repository.ErrStatusChanged) {
		return nil, fmt.Errorf("%w: order %s is no longer %s", ErrInvalidTransition, id, from)
	}
	if err != nil {
		return nil, err
	}

	s.recordAsync(&audit.OrderAudit{
		OrderID:   id.String(),
		EventType: audit.EventOrderStatusChanged,
		OldStatus: string(from),
		NewStatus: string(to),
		Actor:     actor,
		Timestamp: now,
	})
	s.log.Infow("order status changed", "order_id", id, "from", from, "to", to, "actor", actor)

	return s.GetOrder(ctx, id)
}

// History returns the audit trail of an order, newest first.
func (s *OrderService) History(ctx context.Context, id uuid.UUID, limit int) ([]audit.OrderAudit, error) {
	if _, err := s.GetOrder(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	return s.recorder.ListByOrder(ctx, id.String(), limit)
}

func (s *OrderService) recordAsync(entry *audit.OrderAudit) {
	s.audits.Add(1)
	go func() {
		defer s.audits.Done()
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		if err := s.recorder.Record(ctx, entry); err != nil {
			s.log.Errorw("failed to record order audit", "order_id", entry.OrderID, "event_type", entry.EventType, "error", err)
		}
	}()
}

// Close waits for in-flight audit writes. Call it after the last request is
// served and before the recorder is disconnected.
func (s *OrderService) Close() {
	s.audits.Wait()
}

func (s *OrderService) invalidateCart(identity domain.Identity) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, identity); err != nil {
		s.log.Warnw("cache invalidate error", "identity", identity.Key(), "error", err)
	}
}

type orderCreatedItem struct {
	MenuItemID  int64  `json:"menu_item_id"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	PriceAtTime string `json:"price_at_time"`
}

func orderCreatedPayload(order *domain.Order) (json.RawMessage, error) {
	items := make([]orderCreatedItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderCreatedItem{
			MenuItemID:  item.MenuItemID,
			Name:        item.CachedItemName,
			Quantity:    item.Quantity,
			PriceAtTime: item.PriceAtTime.StringFixed(2),
		})
	}

	payload := map[string]interface{}{
		"order_id":       order.ID,
		"order_number":   order.OrderNumber(),
		"user_id":        order.UserID,
		"customer_email": order.CustomerEmail,
		"order_type":     order.OrderType,
		"status":         order.Status,
		"total_amount":   order.TotalAmount.StringFixed(2),
		"delivery_fee":   order.DeliveryFee.StringFixed(2),
		"items":          items,
		"created_at":     order.CreatedAt,
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order payload: %w", err)
	}
	return b, nil
}
