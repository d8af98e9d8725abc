package backend

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"storefront/internal/model"
)

func TestFake_ValidateCart(t *testing.T) {
	fake := NewFake(DemoCatalog())
	ctx := context.Background()

	result, err := fake.ValidateCart(ctx, []model.ItemRequest{
		{ProductID: "1", Quantity: 6}, // stock 4
		{ProductID: "4", Quantity: 1}, // out of stock
		{ProductID: "6", Quantity: 1}, // inactive
		{ProductID: "2", Quantity: 10},
		{ProductID: "99", Quantity: 1},
	})
	if err != nil {
		t.Fatalf("ValidateCart() error: %v", err)
	}

	if len(result.ValidCartItems) != 1 || result.ValidCartItems[0].ProductID != "2" {
		t.Errorf("ValidCartItems = %+v", result.ValidCartItems)
	}
	if len(result.UpdatedItems) != 1 || result.UpdatedItems[0].AdjustedQuantity != 4 {
		t.Errorf("UpdatedItems = %+v", result.UpdatedItems)
	}
	reasons := map[model.ProductID]model.RemovalReason{}
	for _, r := range result.RemovedItems {
		reasons[r.ProductID] = r.Reason
	}
	want := map[model.ProductID]model.RemovalReason{
		"4":  model.ReasonUnavailable,
		"6":  model.ReasonDiscontinued,
		"99": model.ReasonNotFound,
	}
	for id, reason := range want {
		if reasons[id] != reason {
			t.Errorf("reason for %s = %q, want %q", id, reasons[id], reason)
		}
	}
	if !result.CartChanged {
		t.Error("CartChanged = false")
	}
}

func TestFake_CalculateTotals(t *testing.T) {
	fake := NewFake(DemoCatalog())

	tests := []struct {
		name      string
		items     []model.ItemRequest
		method    string
		wantSub   string
		wantShip  string
		wantTotal string
	}{
		{
			name:      "standard under threshold",
			items:     []model.ItemRequest{{ProductID: "3", Quantity: 2}},
			method:    model.ShippingStandard,
			wantSub:   "1379",
			wantShip:  "150",
			wantTotal: "1708.27",
		},
		{
			name:      "standard free above threshold",
			items:     []model.ItemRequest{{ProductID: "1", Quantity: 2}},
			method:    model.ShippingStandard,
			wantSub:   "9700",
			wantShip:  "0",
			wantTotal: "10961",
		},
		{
			name:      "express flat",
			items:     []model.ItemRequest{{ProductID: "1", Quantity: 2}},
			method:    model.ShippingExpress,
			wantSub:   "9700",
			wantShip:  "250",
			wantTotal: "11211",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			totals, err := fake.CalculateTotals(context.Background(), &model.TotalsRequest{Items: tt.items, ShippingMethod: tt.method})
			if err != nil {
				t.Fatalf("CalculateTotals() error: %v", err)
			}
			if !totals.Subtotal.Equal(decimal.RequireFromString(tt.wantSub)) {
				t.Errorf("Subtotal = %s, want %s", totals.Subtotal, tt.wantSub)
			}
			if !totals.ShippingAmount.Equal(decimal.RequireFromString(tt.wantShip)) {
				t.Errorf("ShippingAmount = %s, want %s", totals.ShippingAmount, tt.wantShip)
			}
			if !totals.TotalAmount.Equal(decimal.RequireFromString(tt.wantTotal)) {
				t.Errorf("TotalAmount = %s, want %s", totals.TotalAmount, tt.wantTotal)
			}
		})
	}
}

func TestFake_CalculateTotals_UnknownProduct(t *testing.T) {
	fake := NewFake(nil)
	_, err := fake.CalculateTotals(context.Background(), &model.TotalsRequest{
		Items: []model.ItemRequest{{ProductID: "x", Quantity: 1}},
	})
	if !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("error = %v, want ErrInvalidRequest", err)
	}
}

func TestFake_CreateOrder_Idempotent(t *testing.T) {
	fake := NewFake(DemoCatalog())
	ctx := context.Background()
	req := &model.OrderRequest{
		ShippingMethod: model.ShippingStandard,
		OrderItems:     []model.OrderLine{{ProductID: "2", Quantity: 1}},
	}

	first, err := fake.CreateOrder(ctx, req, "k1")
	if err != nil {
		t.Fatalf("CreateOrder() error: %v", err)
	}
	second, err := fake.CreateOrder(ctx, req, "k1")
	if err != nil {
		t.Fatalf("CreateOrder() retry error: %v", err)
	}
	if first.OrderNumber != second.OrderNumber {
		t.Errorf("retry created %s, want %s", second.OrderNumber, first.OrderNumber)
	}
	if fake.Orders() != 1 {
		t.Errorf("Orders() = %d, want 1", fake.Orders())
	}

	got, err := fake.GetOrder(ctx, first.OrderNumber)
	if err != nil {
		t.Fatalf("GetOrder() error: %v", err)
	}
	if !got.TotalAmount.Equal(first.TotalAmount) {
		t.Errorf("TotalAmount = %s, want %s", got.TotalAmount, first.TotalAmount)
	}
}

func TestFake_CreateOrder_RejectsEmpty(t *testing.T) {
	fake := NewFake(DemoCatalog())
	_, err := fake.CreateOrder(context.Background(), &model.OrderRequest{}, "")
	if !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("error = %v, want ErrInvalidRequest", err)
	}
}

func TestFake_ListProducts_Pages(t *testing.T) {
	var products []model.Product
	for i := 1; i <= 15; i++ {
		products = append(products, model.Product{ID: model.ProductID(fmt.Sprint(i)), Active: true})
	}
	fake := NewFake(products)
	ctx := context.Background()

	first, err := fake.ListProducts(ctx, 1)
	if err != nil {
		t.Fatalf("ListProducts(1) error: %v", err)
	}
	if len(first.Results) != fakePageSize || first.Next == nil || first.Count != 15 {
		t.Errorf("page 1 = %d results, next %v", len(first.Results), first.Next)
	}

	second, err := fake.ListProducts(ctx, 2)
	if err != nil {
		t.Fatalf("ListProducts(2) error: %v", err)
	}
	if len(second.Results) != 3 || second.Next != nil {
		t.Errorf("page 2 = %d results, next %v", len(second.Results), second.Next)
	}

	if _, err := fake.ListProducts(ctx, 3); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("ListProducts(3) error = %v, want ErrNotFound", err)
	}
}

func TestFake_SetAndRemoveProduct(t *testing.T) {
	fake := NewFake(nil)
	ctx := context.Background()

	fake.SetProduct(model.Product{ID: "p1", Name: "A", Active: true, InStock: true, Quantity: 1})
	fake.SetProduct(model.Product{ID: "p1", Name: "B", Active: true, InStock: true, Quantity: 1})

	p, err := fake.GetProduct(ctx, "p1")
	if err != nil || p.Name != "B" {
		t.Fatalf("GetProduct() = %+v, %v", p, err)
	}

	fake.RemoveProduct("p1")
	if _, err := fake.GetProduct(ctx, "p1"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("GetProduct() after remove = %v, want ErrNotFound", err)
	}
}
