package http

import (
	"time"

	"github.com/fjod/go_restaurant/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Money is rendered as a fixed two-decimal string.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type CategoryDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ItemCount   int    `json:"item_count"`
}

type MenuItemDTO struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	Price             string `json:"price"`
	CategoryID        string `json:"category_id"`
	CategoryName      string `json:"category_name"`
	SpiceLevel        string `json:"spice_level,omitempty"`
	CustomizableSpice bool   `json:"customizable_spice"`
	Popular           bool   `json:"popular"`
}

func toMenuItemDTO(m domain.MenuItem) MenuItemDTO {
	return MenuItemDTO{
		ID:                m.ID,
		Name:              m.Name,
		Description:       m.Description,
		Price:             money(m.Price),
		CategoryID:        m.CategoryID,
		CategoryName:      m.CategoryName,
		SpiceLevel:        m.SpiceLevel,
		CustomizableSpice: m.CustomizableSpice,
		Popular:           m.Popular,
	}
}

type AddItemRequestDTO struct {
	MenuItemID   int64    `json:"menu_item_id"`
	Quantity     int      `json:"quantity"`
	Extras       []string `json:"extras"`
	SpiceLevel   string   `json:"spice_level"`
	SpecialNotes string   `json:"special_notes"`
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity"`
}

type CartItemDTO struct {
	ID           uuid.UUID `json:"id"`
	MenuItemID   int64     `json:"menu_item_id"`
	MenuItemName string    `json:"menu_item_name"`
	Quantity     int       `json:"quantity"`
	Extras       []string  `json:"extras"`
	SpiceLevel   string    `json:"spice_level,omitempty"`
	SpecialNotes string    `json:"special_notes,omitempty"`
	Price        string    `json:"price"`
	TotalPrice   string    `json:"total_price"`
}

type CartDTO struct {
	ID         uuid.UUID     `json:"id"`
	Items      []CartItemDTO `json:"items"`
	TotalItems int           `json:"total_items"`
	Subtotal   string        `json:"subtotal"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func toCartDTO(c *domain.Cart) CartDTO {
	items := make([]CartItemDTO, 0, len(c.Items))
	for _, it := range c.Items {
		extras := it.Extras
		if extras == nil {
			extras = []string{}
		}
		items = append(items, CartItemDTO{
			ID:           it.ID,
			MenuItemID:   it.MenuItemID,
			MenuItemName: it.MenuItemName,
			Quantity:     it.Quantity,
			Extras:       extras,
			SpiceLevel:   it.SpiceLevel,
			SpecialNotes: it.SpecialNotes,
			Price:        money(it.Price),
			TotalPrice:   money(it.TotalPrice()),
		})
	}
	return CartDTO{
		ID:         c.ID,
		Items:      items,
		TotalItems: c.TotalItems(),
		Subtotal:   money(c.Subtotal()),
		UpdatedAt:  c.UpdatedAt,
	}
}

type CheckoutSessionDTO struct {
	CartID       uuid.UUID           `json:"cart_id"`
	CustomerData domain.CustomerData `json:"customer_data"`
	DeliveryType domain.DeliveryType `json:"delivery_type"`
	ShippingFee  string              `json:"shipping_fee"`
	ExpiresAt    time.Time           `json:"expires_at"`
}

func toCheckoutSessionDTO(s *domain.CheckoutSession) CheckoutSessionDTO {
	return CheckoutSessionDTO{
		CartID:       s.CartID,
		CustomerData: s.CustomerData,
		DeliveryType: s.DeliveryType,
		ShippingFee:  money(s.ShippingFee),
		ExpiresAt:    s.ExpiresAt,
	}
}

type OrderItemDTO struct {
	ID               uuid.UUID         `json:"id"`
	MenuItemID       int64             `json:"menu_item_id,omitempty"`
	Name             string            `json:"name"`
	Category         string            `json:"category"`
	Quantity         int               `json:"quantity"`
	PriceAtTime      string            `json:"price_at_time"`
	TotalPrice       string            `json:"total_price"`
	CustomSpiceLevel domain.SpiceLevel `json:"custom_spice_level"`
	SpiceNotes       string            `json:"spice_notes,omitempty"`
	Extras           []string          `json:"extras"`
}

type OrderDTO struct {
	ID                  uuid.UUID            `json:"id"`
	OrderNumber         string               `json:"order_number"`
	Status              domain.OrderStatus   `json:"status"`
	CustomerName        string               `json:"customer_name"`
	CustomerEmail       string               `json:"customer_email"`
	CustomerPhone       string               `json:"customer_phone"`
	DeliveryAddress     string               `json:"delivery_address,omitempty"`
	OrderType           domain.OrderType     `json:"order_type"`
	PaymentMethod       domain.PaymentMethod `json:"payment_method"`
	SpecialInstructions string               `json:"special_instructions,omitempty"`
	TotalAmount         string               `json:"total_amount"`
	DeliveryFee         string               `json:"delivery_fee"`
	GrandTotal          string               `json:"grand_total"`
	Items               []OrderItemDTO       `json:"items"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

func toOrderDTO(o *domain.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		extras := it.Extras
		if extras == nil {
			extras = []string{}
		}
		items = append(items, OrderItemDTO{
			ID:               it.ID,
			MenuItemID:       it.MenuItemID,
			Name:             it.CachedItemName,
			Category:         it.CachedItemCategory,
			Quantity:         it.Quantity,
			PriceAtTime:      money(it.PriceAtTime),
			TotalPrice:       money(it.TotalPrice()),
			CustomSpiceLevel: it.CustomSpiceLevel,
			SpiceNotes:       it.SpiceNotes,
			Extras:           extras,
		})
	}
	return OrderDTO{
		ID:                  o.ID,
		OrderNumber:         o.OrderNumber(),
		Status:              o.Status,
		CustomerName:        o.CustomerName,
		CustomerEmail:       o.CustomerEmail,
		CustomerPhone:       o.CustomerPhone,
		DeliveryAddress:     o.DeliveryAddress,
		OrderType:           o.OrderType,
		PaymentMethod:       o.PaymentMethod,
		SpecialInstructions: o.SpecialInstructions,
		TotalAmount:         money(o.TotalAmount),
		DeliveryFee:         money(o.DeliveryFee),
		GrandTotal:          money(o.GrandTotal()),
		Items:               items,
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
	}
}

type OrderConfirmationDTO struct {
	OrderDTO
	EstimatedDelivery string `json:"estimated_delivery"`
	Message           string `json:"message"`
}

type UpdateStatusRequestDTO struct {
	Status domain.OrderStatus `json:"status"`
}
