package order

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"storefront/internal/backend"
	"storefront/internal/cart"
	"storefront/internal/model"
	"storefront/internal/notify"
)

type stubGate struct {
	allowed bool
	result  *model.ValidationResult
}

func (g *stubGate) CheckoutAllowed() bool                  { return g.allowed }
func (g *stubGate) LastResult() *model.ValidationResult { return g.result }

type stubPrices map[model.ProductID]decimal.Decimal

func (p stubPrices) Get(id model.ProductID) (model.Product, bool) {
	price, ok := p[id]
	return model.Product{ID: id, Price: price}, ok
}

func validForm() *model.OrderForm {
	addr := model.Address{Line1: "1 King St W", City: "Toronto", State: "ON", PostalCode: "M5H 1A1"}
	return &model.OrderForm{
		Email:          "buyer@example.com",
		FirstName:      "Ada",
		LastName:       "Lovelace",
		Billing:        addr,
		Shipping:       addr,
		PaymentMethod:  model.PaymentCard,
		ShippingMethod: model.ShippingStandard,
	}
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	svc   *Service
	store *cart.Store
	mock  *backend.Mock
	gate  *stubGate
	queue *notify.Queue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := cart.Open(context.Background(), cart.NewMemoryStorage(), cart.DefaultKey, logger)
	store.AddItem(context.Background(), "1", 2)
	store.AddItem(context.Background(), "2", 3)

	gate := &stubGate{
		allowed: true,
		result: &model.ValidationResult{
			ValidCartItems: []model.ValidItem{{ProductID: "1", Quantity: 2, Price: money("100.00")}},
			UpdatedItems:   []model.UpdatedItem{{ProductID: "2", OriginalQuantity: 5, AdjustedQuantity: 3}},
			CartChanged:    true,
		},
	}
	mock := &backend.Mock{
		CalculateTotalsFunc: func(_ context.Context, req *model.TotalsRequest) (*model.OrderTotals, error) {
			return model.ComputeTotals(money("350.00"), model.DefaultTaxRate, req.ShippingMethod), nil
		},
	}
	queue := notify.NewQueue(0)
	svc := New(Deps{
		Backend:  mock,
		Cart:     store,
		Gate:     gate,
		Prices:   stubPrices{"2": money("50.00")},
		Notifier: queue,
		Logger:   logger,
	})
	svc.newKey = func() string { return "key-1" }
	return &fixture{svc: svc, store: store, mock: mock, gate: gate, queue: queue}
}

func TestSubmit_Success(t *testing.T) {
	f := newFixture(t)
	var got *model.OrderRequest
	var gotKey string
	f.mock.CreateOrderFunc = func(_ context.Context, req *model.OrderRequest, key string) (*model.Order, error) {
		got, gotKey = req, key
		return &model.Order{OrderNumber: "ORD-ABC", Status: "pending", PaymentStatus: "pending", TotalAmount: req.TotalAmount}, nil
	}

	conf, err := f.svc.Submit(context.Background(), validForm())
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	if conf.OrderNumber != "ORD-ABC" || !conf.TotalAmount.Equal(money("545.50")) {
		t.Errorf("confirmation = %+v", conf)
	}
	if gotKey != "key-1" {
		t.Errorf("idempotency key = %q", gotKey)
	}
	wantLines := []model.OrderLine{
		{ProductID: "1", Quantity: 2, Price: money("100.00")},
		{ProductID: "2", Quantity: 3, Price: money("50.00")},
	}
	if diff := cmp.Diff(wantLines, got.OrderItems, cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("order lines mismatch (-want +got):\n%s", diff)
	}
	if got.BillingCountry != model.DefaultCountry || got.ShipCity != "Toronto" {
		t.Errorf("order request = %+v", got)
	}
	if !f.store.IsEmpty() {
		t.Error("cart not cleared after order")
	}
	notes := f.queue.Drain()
	if len(notes) != 1 || notes[0].Code != "order_placed" {
		t.Errorf("notifications = %+v", notes)
	}
}

func TestSubmit_BlockedWithoutCheckoutClearance(t *testing.T) {
	f := newFixture(t)
	f.gate.allowed = false
	called := false
	f.mock.CreateOrderFunc = func(context.Context, *model.OrderRequest, string) (*model.Order, error) {
		called = true
		return nil, nil
	}

	_, err := f.svc.Submit(context.Background(), validForm())
	if !errors.Is(err, model.ErrCheckoutBlocked) {
		t.Fatalf("Submit() error = %v, want ErrCheckoutBlocked", err)
	}
	if called {
		t.Error("order created without clearance")
	}
}

func TestSubmit_BackendFailureKeepsCart(t *testing.T) {
	f := newFixture(t)
	f.mock.CreateOrderFunc = func(context.Context, *model.OrderRequest, string) (*model.Order, error) {
		return nil, model.NewUpstreamError("storefront API", errors.New("502"))
	}
	before := f.store.Items()

	_, err := f.svc.Submit(context.Background(), validForm())
	if !errors.Is(err, model.ErrUpstreamError) {
		t.Fatalf("Submit() error = %v, want ErrUpstreamError", err)
	}
	if diff := cmp.Diff(before, f.store.Items()); diff != "" {
		t.Errorf("cart changed on failure (-want +got):\n%s", diff)
	}
	notes := f.queue.Drain()
	if len(notes) != 1 || notes[0].Level != notify.LevelError {
		t.Errorf("notifications = %+v, want one error", notes)
	}
}

func TestSubmit_PricesFromBackendWhenSnapshotMisses(t *testing.T) {
	f := newFixture(t)
	f.svc.prices = nil
	f.mock.GetProductFunc = func(_ context.Context, id model.ProductID) (*model.Product, error) {
		return &model.Product{ID: id, Price: money("42.00")}, nil
	}
	var lines []model.OrderLine
	f.mock.CreateOrderFunc = func(_ context.Context, req *model.OrderRequest, _ string) (*model.Order, error) {
		lines = req.OrderItems
		return &model.Order{OrderNumber: "ORD-1"}, nil
	}

	if _, err := f.svc.Submit(context.Background(), validForm()); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if !lines[1].Price.Equal(money("42.00")) {
		t.Errorf("line 2 price = %s, want 42.00", lines[1].Price)
	}
}

func TestSubmit_InvalidForm(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.OrderForm)
		want   string
	}{
		{"missing email", func(f *model.OrderForm) { f.Email = "" }, "email is required"},
		{"bad email", func(f *model.OrderForm) { f.Email = "nope" }, "email must be a valid email"},
		{"missing billing city", func(f *model.OrderForm) { f.Billing.City = "" }, "billing.city is required"},
		{"bad payment", func(f *model.OrderForm) { f.PaymentMethod = "cash" }, "payment_method must be one of"},
		{"bad shipping", func(f *model.OrderForm) { f.ShippingMethod = "drone" }, "shipping_method must be one of"},
		{"bad country", func(f *model.OrderForm) { f.Shipping.Country = "CAN" }, "shipping.country must be 2 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			form := validForm()
			tt.mutate(form)

			_, err := f.svc.Submit(context.Background(), form)
			if !errors.Is(err, model.ErrInvalidRequest) {
				t.Fatalf("Submit() error = %v, want ErrInvalidRequest", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
			if f.store.IsEmpty() {
				t.Error("cart cleared on invalid form")
			}
		})
	}
}

func TestQuote(t *testing.T) {
	f := newFixture(t)
	var req *model.TotalsRequest
	f.mock.CalculateTotalsFunc = func(_ context.Context, r *model.TotalsRequest) (*model.OrderTotals, error) {
		req = r
		return model.ComputeTotals(money("350.00"), model.DefaultTaxRate, r.ShippingMethod), nil
	}

	totals, err := f.svc.Quote(context.Background(), model.ShippingExpress)
	if err != nil {
		t.Fatalf("Quote() error: %v", err)
	}
	if !totals.ShippingAmount.Equal(money("250")) {
		t.Errorf("shipping = %s, want 250", totals.ShippingAmount)
	}
	if len(req.Items) != 2 || req.BillingCountry != "CA" {
		t.Errorf("totals request = %+v", req)
	}

	if _, err := f.svc.Quote(context.Background(), "teleport"); !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("Quote(teleport) error = %v, want ErrInvalidRequest", err)
	}

	f.store.Clear(context.Background())
	if _, err := f.svc.Quote(context.Background(), model.ShippingStandard); !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("Quote(empty cart) error = %v, want ErrInvalidRequest", err)
	}
}

func TestEstimate(t *testing.T) {
	items := []model.ValidItem{
		{ProductID: "1", Quantity: 3, Price: money("19.99")},
		{ProductID: "2", Quantity: 1, Price: money("0.05")},
	}

	got := Estimate(items, model.DefaultTaxRate)

	if !got.Subtotal.Equal(money("60.02")) {
		t.Errorf("Subtotal = %s, want 60.02", got.Subtotal)
	}
	if !got.TaxAmount.Equal(money("7.80")) {
		t.Errorf("TaxAmount = %s, want 7.80", got.TaxAmount)
	}
	if !got.TotalAmount.Equal(money("67.82")) {
		t.Errorf("TotalAmount = %s, want 67.82", got.TotalAmount)
	}

	empty := Estimate(nil, model.DefaultTaxRate)
	if !empty.TotalAmount.IsZero() {
		t.Errorf("empty estimate total = %s", empty.TotalAmount)
	}
}

func TestLookup(t *testing.T) {
	f := newFixture(t)
	f.mock.GetOrderFunc = func(_ context.Context, n string) (*model.Order, error) {
		return &model.Order{OrderNumber: n, Status: "shipped"}, nil
	}

	o, err := f.svc.Lookup(context.Background(), "ORD-9")
	if err != nil || o.Status != "shipped" {
		t.Errorf("Lookup() = %+v, %v", o, err)
	}
	if _, err := f.svc.Lookup(context.Background(), " "); !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("Lookup(blank) error = %v", err)
	}
}
