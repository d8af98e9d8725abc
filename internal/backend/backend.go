// Package backend defines the storefront's view of the external REST API.
// The API owns the catalog, stock levels, prices and orders; the storefront
// only reads them and submits orders.
package backend

import (
	"context"

	"storefront/internal/model"
)

// Backend abstracts the storefront API. HTTPClient talks to the real
// server, Fake serves an in-memory catalog and Mock is for tests.
//
// Implementations return *model.APIError values so callers can map
// failures to user-facing notifications without inspecting transport detail.
type Backend interface {
	// ListProducts returns one page of the catalog, starting at page 1.
	ListProducts(ctx context.Context, page int) (*model.ProductPage, error)

	// GetProduct returns a single product or a NOT_FOUND error.
	GetProduct(ctx context.Context, id model.ProductID) (*model.Product, error)

	// ValidateCart re-checks submitted items against authoritative stock,
	// availability and price.
	ValidateCart(ctx context.Context, items []model.ItemRequest) (*model.ValidationResult, error)

	// CalculateTotals prices the items for the given shipping method.
	CalculateTotals(ctx context.Context, req *model.TotalsRequest) (*model.OrderTotals, error)

	// CreateOrder submits an order. The idempotency key lets the backend
	// collapse retries of the same submission.
	CreateOrder(ctx context.Context, req *model.OrderRequest, idempotencyKey string) (*model.Order, error)

	// GetOrder fetches an order by its public number.
	GetOrder(ctx context.Context, orderNumber string) (*model.Order, error)
}
