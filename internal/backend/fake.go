package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront/internal/model"
	"storefront/internal/validate"
)

// fakePageSize matches the API's default page size.
const fakePageSize = 12

// Fake is an in-memory Backend for tests and local demos. It classifies
// carts with the same rules as the API but does not process orders
// beyond recording them.
type Fake struct {
	mu       sync.Mutex
	products []model.Product
	orders   map[string]*model.Order
	byKey    map[string]string // idempotency key → order number
	taxRate  decimal.Decimal
}

// NewFake returns a Fake serving products.
func NewFake(products []model.Product) *Fake {
	return &Fake{
		products: append([]model.Product(nil), products...),
		orders:   make(map[string]*model.Order),
		byKey:    make(map[string]string),
		taxRate:  model.DefaultTaxRate,
	}
}

// LoadFakeCatalog reads a JSON array of products for a Fake.
func LoadFakeCatalog(path string) ([]model.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	var products []model.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("parsing catalog file: %w", err)
	}
	return products, nil
}

// DemoCatalog is a small industrial catalog for local runs.
func DemoCatalog() []model.Product {
	pumps := model.Category{ID: 1, Name: "Pumps"}
	seals := model.Category{ID: 2, Name: "Seals"}
	packing := model.Category{ID: 3, Name: "Packing"}
	return []model.Product{
		{ID: "1", Name: "Centrifugal Pump 3x2-10", Price: decimal.RequireFromString("4850.00"), Category: pumps, InStock: true, Quantity: 4, Active: true, Material: "Cast iron"},
		{ID: "2", Name: "Gear Pump GP-20", Price: decimal.RequireFromString("1295.00"), Category: pumps, InStock: true, Quantity: 10, Active: true, Material: "Stainless 316"},
		{ID: "3", Name: "Cartridge Mechanical Seal 1.875in", Price: decimal.RequireFromString("689.50"), Category: seals, InStock: true, Quantity: 25, Active: true},
		{ID: "4", Name: "Split Seal SS-40", Price: decimal.RequireFromString("2140.00"), Category: seals, InStock: false, Quantity: 0, Active: true},
		{ID: "5", Name: "PTFE Braided Packing 3/8in (5 lb)", Price: decimal.RequireFromString("312.75"), Category: packing, InStock: true, Quantity: 40, Active: true},
		{ID: "6", Name: "Graphite Packing 1/2in (legacy)", Price: decimal.RequireFromString("198.00"), Category: packing, InStock: true, Quantity: 12, Active: false},
	}
}

// SetProduct inserts or replaces a product.
func (f *Fake) SetProduct(p model.Product) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.products {
		if f.products[i].ID == p.ID {
			f.products[i] = p
			return
		}
	}
	f.products = append(f.products, p)
}

// RemoveProduct deletes a product from the catalog.
func (f *Fake) RemoveProduct(id model.ProductID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.products {
		if f.products[i].ID == id {
			f.products = append(f.products[:i:i], f.products[i+1:]...)
			return
		}
	}
}

func (f *Fake) lookup(id model.ProductID) (model.Product, bool) {
	for _, p := range f.products {
		if p.ID == id {
			return p, true
		}
	}
	return model.Product{}, false
}

func (f *Fake) ListProducts(_ context.Context, page int) (*model.ProductPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if page < 1 {
		page = 1
	}
	start := (page - 1) * fakePageSize
	if start >= len(f.products) && page > 1 {
		return nil, model.NewNotFoundError("page")
	}
	end := min(start+fakePageSize, len(f.products))

	out := &model.ProductPage{
		Results: append([]model.Product{}, f.products[start:end]...),
		Count:   len(f.products),
	}
	if end < len(f.products) {
		next := fmt.Sprintf("/products/?page=%d", page+1)
		out.Next = &next
	}
	if page > 1 {
		prev := fmt.Sprintf("/products/?page=%d", page-1)
		out.Previous = &prev
	}
	return out, nil
}

func (f *Fake) GetProduct(_ context.Context, id model.ProductID) (*model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.lookup(id)
	if !ok {
		return nil, model.NewNotFoundError("product")
	}
	return &p, nil
}

func (f *Fake) ValidateCart(_ context.Context, items []model.ItemRequest) (*model.ValidationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return validate.Classify(items, f.lookup), nil
}

func (f *Fake) CalculateTotals(_ context.Context, req *model.TotalsRequest) (*model.OrderTotals, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totals(req.Items, req.ShippingMethod)
}

// totals prices items at catalog prices. Caller holds mu.
func (f *Fake) totals(items []model.ItemRequest, shippingMethod string) (*model.OrderTotals, error) {
	subtotal := decimal.Zero
	for _, item := range items {
		p, ok := f.lookup(item.ProductID)
		if !ok {
			return nil, model.NewValidationError("product",
				fmt.Sprintf("product with id %s not found", item.ProductID))
		}
		subtotal = subtotal.Add(model.LineTotal(p.Price, item.Quantity))
	}
	return model.ComputeTotals(subtotal, f.taxRate, shippingMethod), nil
}

func (f *Fake) CreateOrder(_ context.Context, req *model.OrderRequest, key string) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if key != "" {
		if number, ok := f.byKey[key]; ok {
			order := *f.orders[number]
			return &order, nil
		}
	}
	if len(req.OrderItems) == 0 {
		return nil, model.NewValidationError("order_items", "order has no items")
	}

	items := make([]model.ItemRequest, len(req.OrderItems))
	for i, line := range req.OrderItems {
		items[i] = model.ItemRequest{ProductID: line.ProductID, Quantity: line.Quantity}
	}
	totals, err := f.totals(items, req.ShippingMethod)
	if err != nil {
		return nil, err
	}

	number := "ORD-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	order := &model.Order{
		ID:            len(f.orders) + 1,
		OrderNumber:   number,
		Status:        "pending",
		PaymentStatus: "pending",
		TotalAmount:   totals.TotalAmount,
	}
	f.orders[number] = order
	if key != "" {
		f.byKey[key] = number
	}

	out := *order
	return &out, nil
}

func (f *Fake) GetOrder(_ context.Context, orderNumber string) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderNumber]
	if !ok {
		return nil, model.NewNotFoundError("order")
	}
	out := *order
	return &out, nil
}

// Orders returns the number of recorded orders.
func (f *Fake) Orders() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

// Verify Fake implements Backend at compile time.
var _ Backend = (*Fake)(nil)
