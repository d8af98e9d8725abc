package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category groups products in the catalog.
type Category struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Product is a catalog record as served by the backend.
type Product struct {
	ID          ProductID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Category    Category        `json:"category"`
	InStock     bool            `json:"in_stock"`
	Quantity    int             `json:"quantity"`
	Active      bool            `json:"active"`
	Material    string          `json:"material,omitempty"`
	Tags        []string        `json:"tags_list,omitempty"`
	UpdatedAt   *time.Time      `json:"updated_at,omitempty"`
}

// Available reports whether the product can be bought at all.
func (p *Product) Available() bool {
	return p.Active && p.InStock && p.Quantity > 0
}

// ProductPage is one page of the paginated product listing.
type ProductPage struct {
	Results  []Product `json:"results"`
	Count    int       `json:"count"`
	Next     *string   `json:"next"`
	Previous *string   `json:"previous"`
}
