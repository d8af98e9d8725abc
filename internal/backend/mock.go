package backend

import (
	"context"

	"storefront/internal/model"
)

// Mock implements Backend for testing.
// Each method can be configured via function fields.
type Mock struct {
	ListProductsFunc    func(ctx context.Context, page int) (*model.ProductPage, error)
	GetProductFunc      func(ctx context.Context, id model.ProductID) (*model.Product, error)
	ValidateCartFunc    func(ctx context.Context, items []model.ItemRequest) (*model.ValidationResult, error)
	CalculateTotalsFunc func(ctx context.Context, req *model.TotalsRequest) (*model.OrderTotals, error)
	CreateOrderFunc     func(ctx context.Context, req *model.OrderRequest, key string) (*model.Order, error)
	GetOrderFunc        func(ctx context.Context, orderNumber string) (*model.Order, error)
}

// ListProducts calls ListProductsFunc or returns an empty page.
func (m *Mock) ListProducts(ctx context.Context, page int) (*model.ProductPage, error) {
	if m.ListProductsFunc != nil {
		return m.ListProductsFunc(ctx, page)
	}
	return &model.ProductPage{Results: []model.Product{}}, nil
}

// GetProduct calls GetProductFunc or returns not found.
func (m *Mock) GetProduct(ctx context.Context, id model.ProductID) (*model.Product, error) {
	if m.GetProductFunc != nil {
		return m.GetProductFunc(ctx, id)
	}
	return nil, model.NewNotFoundError("product")
}

// ValidateCart calls ValidateCartFunc or reports every item valid at price zero.
func (m *Mock) ValidateCart(ctx context.Context, items []model.ItemRequest) (*model.ValidationResult, error) {
	if m.ValidateCartFunc != nil {
		return m.ValidateCartFunc(ctx, items)
	}
	result := &model.ValidationResult{
		ValidCartItems: make([]model.ValidItem, 0, len(items)),
		RemovedItems:   []model.RemovedItem{},
		UpdatedItems:   []model.UpdatedItem{},
	}
	for _, item := range items {
		result.ValidCartItems = append(result.ValidCartItems, model.ValidItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}
	return result, nil
}

// CalculateTotals calls CalculateTotalsFunc or returns an error.
func (m *Mock) CalculateTotals(ctx context.Context, req *model.TotalsRequest) (*model.OrderTotals, error) {
	if m.CalculateTotalsFunc != nil {
		return m.CalculateTotalsFunc(ctx, req)
	}
	return nil, model.NewInternalError(nil)
}

// CreateOrder calls CreateOrderFunc or returns an error.
func (m *Mock) CreateOrder(ctx context.Context, req *model.OrderRequest, key string) (*model.Order, error) {
	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, req, key)
	}
	return nil, model.NewInternalError(nil)
}

// GetOrder calls GetOrderFunc or returns not found.
func (m *Mock) GetOrder(ctx context.Context, orderNumber string) (*model.Order, error) {
	if m.GetOrderFunc != nil {
		return m.GetOrderFunc(ctx, orderNumber)
	}
	return nil, model.NewNotFoundError("order")
}

// Verify Mock implements Backend interface at compile time.
var _ Backend = (*Mock)(nil)
