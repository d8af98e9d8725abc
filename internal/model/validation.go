package model

import "github.com/shopspring/decimal"

// RemovalReason is the machine-readable code attached to a removed item.
type RemovalReason string

const (
	ReasonNotFound     RemovalReason = "not_found"
	ReasonOutOfStock   RemovalReason = "out_of_stock"
	ReasonDiscontinued RemovalReason = "discontinued"
	ReasonUnavailable  RemovalReason = "unavailable"
)

// ValidateCartRequest is the body of the backend validation call.
type ValidateCartRequest struct {
	Items []ItemRequest `json:"items"`
}

// ValidationResult is the backend's classification of a submitted cart.
// Every submitted product id lands in exactly one of the three buckets.
type ValidationResult struct {
	ValidCartItems []ValidItem   `json:"valid_cart_items"`
	RemovedItems   []RemovedItem `json:"removed_items"`
	UpdatedItems   []UpdatedItem `json:"updated_items"`
	CartChanged    bool          `json:"cart_changed"`
}

// ValidItem is purchasable at the submitted quantity and the stated price.
type ValidItem struct {
	ProductID   ProductID       `json:"product_id"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	ProductName string          `json:"product_name"`
}

// RemovedItem must be dropped from the cart.
type RemovedItem struct {
	ProductID   ProductID     `json:"product_id"`
	ProductName string        `json:"product_name"`
	Reason      RemovalReason `json:"reason"`
	Message     string        `json:"message"`
}

// UpdatedItem had its quantity capped to available stock.
type UpdatedItem struct {
	ProductID        ProductID `json:"product_id"`
	ProductName      string    `json:"product_name"`
	OriginalQuantity int       `json:"original_quantity"`
	AdjustedQuantity int       `json:"adjusted_quantity"`
	Message          string    `json:"message"`
}

// HasChanges reports whether any item was removed or adjusted. A
// well-formed result has CartChanged == HasChanges().
func (r *ValidationResult) HasChanges() bool {
	return len(r.RemovedItems)+len(r.UpdatedItems) > 0
}

// ValidQuantity returns the total quantity across valid items.
func (r *ValidationResult) ValidQuantity() int {
	total := 0
	for _, item := range r.ValidCartItems {
		total += item.Quantity
	}
	return total
}
