package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// forward transitions; cancellation is handled separately
var nextStatus = map[OrderStatus]OrderStatus{
	OrderStatusPending:   OrderStatusConfirmed,
	OrderStatusConfirmed: OrderStatusPreparing,
	OrderStatusPreparing: OrderStatusReady,
	OrderStatusReady:     OrderStatusDelivered,
	OrderStatusDelivered: OrderStatusCompleted,
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing, OrderStatusReady,
		OrderStatusDelivered, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// CanTransitionTo allows a single step forward, or cancellation from any
// non-terminal status.
func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	if s.IsTerminal() || !to.Valid() {
		return false
	}
	if to == OrderStatusCancelled {
		return true
	}
	return nextStatus[s] == to
}

type OrderType = DeliveryType

type SpiceLevel string

const (
	SpiceMilder     SpiceLevel = "milder"
	SpiceDefault    SpiceLevel = "default"
	SpiceSpicier    SpiceLevel = "spicier"
	SpiceExtraSpicy SpiceLevel = "extra_spicy"
)

// MapSpiceLevel turns a free-form cart spice value into the order item enum.
// Unknown values fall back to default.
func MapSpiceLevel(raw string) SpiceLevel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "mild", "milder":
		return SpiceMilder
	case "hot", "spicy", "spicier":
		return SpiceSpicier
	case "extra_hot", "extra_spicy", "extra spicy", "extra hot":
		return SpiceExtraSpicy
	default:
		return SpiceDefault
	}
}

// SpiceNotes keeps the original spice text and the customer's notes together.
func SpiceNotes(rawSpice, notes string) string {
	rawSpice = strings.TrimSpace(rawSpice)
	notes = strings.TrimSpace(notes)
	switch {
	case rawSpice == "" && notes == "":
		return ""
	case rawSpice == "":
		return notes
	case notes == "":
		return fmt.Sprintf("spice: %s", rawSpice)
	default:
		return fmt.Sprintf("spice: %s; %s", rawSpice, notes)
	}
}

type Order struct {
	ID                  uuid.UUID       `json:"id"`
	CustomerName        string          `json:"customer_name"`
	CustomerEmail       string          `json:"customer_email"`
	CustomerPhone       string          `json:"customer_phone"`
	DeliveryAddress     string          `json:"delivery_address"`
	OrderType           OrderType       `json:"order_type"`
	PaymentMethod       PaymentMethod   `json:"payment_method"`
	SpecialInstructions string          `json:"special_instructions"`
	DeliveryFee         decimal.Decimal `json:"delivery_fee"`
	Status              OrderStatus     `json:"status"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	UserID              string          `json:"user_id,omitempty"`
	Items               []OrderItem     `json:"items"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

type OrderItem struct {
	ID                 uuid.UUID       `json:"id"`
	OrderID            uuid.UUID       `json:"order_id"`
	MenuItemID         int64           `json:"menu_item_id"`
	Quantity           int             `json:"quantity"`
	PriceAtTime        decimal.Decimal `json:"price_at_time"`
	CustomSpiceLevel   SpiceLevel      `json:"custom_spice_level"`
	SpiceNotes         string          `json:"spice_notes"`
	Extras             []string        `json:"extras"`
	CachedItemName     string          `json:"cached_item_name"`
	CachedItemCategory string          `json:"cached_item_category"`
	CreatedAt          time.Time       `json:"created_at"`
}

func (i OrderItem) TotalPrice() decimal.Decimal {
	return i.PriceAtTime.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ItemsTotal is Σ(price_at_time × quantity) over the order's items.
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.TotalPrice())
	}
	return total
}

// GrandTotal adds the delivery fee, which total_amount does not include.
func (o *Order) GrandTotal() decimal.Decimal {
	return o.TotalAmount.Add(o.DeliveryFee)
}

// OrderNumber is the short human-facing reference, e.g. "#1A2B3C4D".
func (o *Order) OrderNumber() string {
	hex := strings.ReplaceAll(o.ID.String(), "-", "")
	return "#" + strings.ToUpper(hex[:8])
}

type OrderFilter struct {
	Status        OrderStatus
	OrderType     OrderType
	CustomerName  string
	CustomerEmail string
	Limit         int
}

const EstimatedDelivery = "25-35 minutes"
