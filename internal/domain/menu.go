package domain

import "github.com/shopspring/decimal"

type MenuCategory struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ItemCount   int    `json:"item_count"`
}

type MenuItem struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Price             decimal.Decimal `json:"price"`
	CategoryID        string          `json:"category_id"`
	CategoryName      string          `json:"category_name"`
	SpiceLevel        string          `json:"spice_level"`
	CustomizableSpice bool            `json:"customizable_spice"`
	Popular           bool            `json:"popular"`
}
