// Package model defines the shared data structures of the storefront: cart
// items, backend validation results, catalog records, orders and money.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ProductID is an opaque catalog identifier. The backend issues numeric ids
// while older persisted carts may hold strings, so both JSON forms decode.
type ProductID string

// UnmarshalJSON accepts "42", 42 and "pump-001".
func (id *ProductID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("product id is null")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ProductID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("product id must be a string or number: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*id = ProductID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = ProductID(n.String())
	return nil
}

// String implements fmt.Stringer.
func (id ProductID) String() string {
	return string(id)
}

// CartItem is one line of purchase intent. Quantity is always >= 1 for items
// held by a cart; a non-positive quantity means removal.
type CartItem struct {
	ProductID ProductID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

// ItemRequest is the backend wire form of a cart line.
type ItemRequest struct {
	ProductID ProductID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// ToItemRequests converts cart lines to the backend wire form.
func ToItemRequests(items []CartItem) []ItemRequest {
	out := make([]ItemRequest, len(items))
	for i, item := range items {
		out[i] = ItemRequest{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return out
}
