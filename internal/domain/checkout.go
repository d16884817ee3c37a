package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DeliveryType string

const (
	DeliveryTypeDelivery DeliveryType = "delivery"
	DeliveryTypePickup   DeliveryType = "pickup"
)

type PaymentMethod string

const (
	PaymentMethodCard PaymentMethod = "card"
	PaymentMethodCash PaymentMethod = "cash"
)

// CustomerData is the contact and delivery snapshot captured at checkout.
type CustomerData struct {
	FirstName           string        `json:"first_name" validate:"required,max=100"`
	LastName            string        `json:"last_name" validate:"required,max=100"`
	Email               string        `json:"email" validate:"required,email"`
	Phone               string        `json:"phone" validate:"required,max=20"`
	Address             string        `json:"address,omitempty" validate:"required_if=DeliveryType delivery"`
	City                string        `json:"city,omitempty" validate:"required_if=DeliveryType delivery"`
	ZipCode             string        `json:"zip_code,omitempty" validate:"required_if=DeliveryType delivery"`
	DeliveryType        DeliveryType  `json:"delivery_type" validate:"required,oneof=delivery pickup"`
	PaymentMethod       PaymentMethod `json:"payment_method" validate:"required,oneof=card cash"`
	SpecialInstructions string        `json:"special_instructions,omitempty"`
}

func (c CustomerData) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// DeliveryAddress is empty for pickup orders.
func (c CustomerData) DeliveryAddress() string {
	if c.DeliveryType != DeliveryTypeDelivery {
		return ""
	}
	return fmt.Sprintf("%s, %s %s", c.Address, c.City, c.ZipCode)
}

type CheckoutSession struct {
	ID           uuid.UUID       `json:"id"`
	CartID       uuid.UUID       `json:"cart_id"`
	CustomerData CustomerData    `json:"customer_data"`
	DeliveryType DeliveryType    `json:"delivery_type"`
	ShippingFee  decimal.Decimal `json:"shipping_fee"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

func (s *CheckoutSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
