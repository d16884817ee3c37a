package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Cart struct {
	ID         uuid.UUID  `json:"id"`
	SessionKey string     `json:"session_key,omitempty"`
	UserID     string     `json:"user_id,omitempty"`
	Items      []CartItem `json:"items"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type CartItem struct {
	ID           uuid.UUID       `json:"id"`
	CartID       uuid.UUID       `json:"cart_id"`
	MenuItemID   int64           `json:"menu_item_id"`
	MenuItemName string          `json:"menu_item_name"`
	Quantity     int             `json:"quantity"`
	Extras       []string        `json:"extras"`
	SpiceLevel   string          `json:"spice_level"`
	SpecialNotes string          `json:"special_notes"`
	Price        decimal.Decimal `json:"price"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TotalPrice is price × quantity for the line.
func (i CartItem) TotalPrice() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// SameLine reports whether two lines would be merged into one: same menu item,
// same extras as a set, same spice level and same notes.
func (i CartItem) SameLine(other CartItem) bool {
	if i.MenuItemID != other.MenuItemID || i.SpiceLevel != other.SpiceLevel || i.SpecialNotes != other.SpecialNotes {
		return false
	}
	a, b := NormalizeExtras(i.Extras), NormalizeExtras(other.Extras)
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if a[k] != b[k] {
			return false
		}
	}
	return true
}

func (c *Cart) TotalItems() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

func (c *Cart) Subtotal() decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range c.Items {
		subtotal = subtotal.Add(item.TotalPrice())
	}
	return subtotal
}

// BelongsTo reports whether the cart is bound to exactly identity.
func (c *Cart) BelongsTo(identity Identity) bool {
	return c.SessionKey == identity.SessionKey && c.UserID == identity.UserID
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// NormalizeExtras trims, drops blanks, dedupes and sorts. Extras are a set.
func NormalizeExtras(extras []string) []string {
	seen := make(map[string]struct{}, len(extras))
	out := make([]string, 0, len(extras))
	for _, e := range extras {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}
