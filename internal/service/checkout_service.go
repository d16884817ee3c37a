package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_restaurant/internal/domain"
	"github.com/fjod/go_restaurant/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CheckoutService struct {
	store       repository.Store
	deliveryFee decimal.Decimal
	sessionTTL  time.Duration
	log         *zap.SugaredLogger
	now         func() time.Time
}

func NewCheckoutService(store repository.Store, deliveryFee decimal.Decimal, sessionTTL time.Duration, log *zap.SugaredLogger) *CheckoutService {
	return &CheckoutService{
		store:       store,
		deliveryFee: deliveryFee,
		sessionTTL:  sessionTTL,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrRefresh validates the customer snapshot and writes the cart's
// checkout session, resetting its expiry. Repeated calls overwrite.
func (s *CheckoutService) CreateOrRefresh(ctx context.Context, identity domain.Identity, data domain.CustomerData) (*domain.CheckoutSession, error) {
	cart, err := s.store.GetOrCreateCart(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}

	data = normalizeCustomerData(data)
	if err := validateCustomerData(data); err != nil {
		return nil, err
	}

	fee := decimal.Zero
	if data.DeliveryType == domain.DeliveryTypeDelivery {
		fee = s.deliveryFee
	}

	now := s.now()
	session := &domain.CheckoutSession{
		CartID:       cart.ID,
		CustomerData: data,
		DeliveryType: data.DeliveryType,
		ShippingFee:  fee,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(s.sessionTTL),
	}
	if err := s.store.UpsertCheckoutSession(ctx, session); err != nil {
		s.log.Errorw("failed to upsert checkout session", "cart_id", cart.ID, "error", err)
		return nil, err
	}

	s.log.Infow("checkout session saved",
		"cart_id", cart.ID, "delivery_type", data.DeliveryType, "expires_at", session.ExpiresAt)

	return s.store.GetCheckoutSession(ctx, cart.ID)
}

func (s *CheckoutService) GetSession(ctx context.Context, identity domain.Identity) (*domain.CheckoutSession, error) {
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
	return session, nil
}

func normalizeCustomerData(d domain.CustomerData) domain.CustomerData {
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
	d.Email = strings.TrimSpace(d.Email)
	d.Phone = strings.TrimSpace(d.Phone)
	d.Address = strings.TrimSpace(d.Address)
	d.City = strings.TrimSpace(d.City)
	d.ZipCode = strings.TrimSpace(d.ZipCode)
	d.DeliveryType = domain.DeliveryType(strings.ToLower(strings.TrimSpace(string(d.DeliveryType))))
	d.PaymentMethod = domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(d.PaymentMethod))))
	d.SpecialInstructions = strings.TrimSpace(d.SpecialInstructions)
	return d
}
