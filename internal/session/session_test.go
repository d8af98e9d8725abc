package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"storefront/internal/backend"
	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/model"
	"storefront/internal/reconcile"
)

func newManager(t *testing.T) (*Manager, *cart.MemoryStorage) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fake := backend.NewFake(backend.DemoCatalog())
	snap := catalog.New(fake, logger)
	snap.Replace(backend.DemoCatalog())
	storage := cart.NewMemoryStorage()
	return NewManager(Config{Backend: fake, Catalog: snap, Storage: storage, Logger: logger}), storage
}

func TestOpen_ReusesAndHydrates(t *testing.T) {
	ctx := context.Background()
	m, storage := newManager(t)
	storage.Put(cart.SessionKey("abc"), []byte(`[{"productId": 2, "quantity": 3}]`))

	s1, err := m.Open(ctx, "abc")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	s2, _ := m.Open(ctx, "abc")
	if s1 != s2 {
		t.Error("Open() returned a different session for the same id")
	}
	if got := s1.Cart.ItemQuantity("2"); got != 3 {
		t.Errorf("hydrated quantity = %d, want 3", got)
	}

	other, _ := m.Open(ctx, "xyz")
	if !other.Cart.IsEmpty() {
		t.Error("sessions share a cart")
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}

	if _, err := m.Open(ctx, ""); !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("Open(\"\") error = %v, want ErrInvalidRequest", err)
	}
}

func TestAddItem_RejectsBeyondStock(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	s, _ := m.Open(ctx, "abc")

	// Product 1 has 4 units in the demo catalog.
	if err := s.AddItem(ctx, "1", 3); err != nil {
		t.Fatalf("AddItem(3) error: %v", err)
	}
	err := s.AddItem(ctx, "1", 2)
	if !errors.Is(err, model.ErrInsufficientStock) {
		t.Fatalf("AddItem over stock error = %v, want ErrInsufficientStock", err)
	}
	if got := s.Cart.ItemQuantity("1"); got != 3 {
		t.Errorf("quantity = %d, want 3 after rejected add", got)
	}
	notes := s.Notifications.Drain()
	if len(notes) != 1 || notes[0].Code != "insufficient_stock" {
		t.Errorf("notifications = %+v", notes)
	}

	// Unknown products pass the local check.
	if err := s.AddItem(ctx, "999", 50); err != nil {
		t.Errorf("AddItem(unknown) error: %v", err)
	}
}

func TestAddItem_ConcurrentAddsStayWithinStock(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	s, _ := m.Open(ctx, "abc")

	// Product 1 has 4 units in the demo catalog.
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddItem(ctx, "1", 1)
		}()
	}
	wg.Wait()

	if got := s.Cart.ItemQuantity("1"); got != 4 {
		t.Errorf("quantity = %d, want 4", got)
	}
	if n := len(s.Notifications.Drain()); n != 4 {
		t.Errorf("%d rejection notifications, want 4", n)
	}
}

func TestSetQuantity(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	s, _ := m.Open(ctx, "abc")
	s.AddItem(ctx, "2", 1)

	if err := s.SetQuantity(ctx, "2", 10); err != nil {
		t.Fatalf("SetQuantity(10) error: %v", err)
	}
	if err := s.SetQuantity(ctx, "2", 11); !errors.Is(err, model.ErrInsufficientStock) {
		t.Errorf("SetQuantity(11) error = %v, want ErrInsufficientStock", err)
	}
	if got := s.Cart.ItemQuantity("2"); got != 10 {
		t.Errorf("quantity = %d, want 10", got)
	}
	if err := s.SetQuantity(ctx, "2", 0); err != nil {
		t.Fatalf("SetQuantity(0) error: %v", err)
	}
	if !s.Cart.IsEmpty() {
		t.Error("zero quantity did not remove the line")
	}
}

func TestClose_ClosesController(t *testing.T) {
	ctx := context.Background()
	m, storage := newManager(t)
	s, _ := m.Open(ctx, "abc")
	s.AddItem(ctx, "3", 2)

	if !m.Close("abc") {
		t.Fatal("Close() = false for an open session")
	}
	if m.Close("abc") {
		t.Error("second Close() = true")
	}
	if _, err := s.Controller.Reconcile(ctx, reconcile.TriggerPassive); !errors.Is(err, model.ErrSessionClosed) {
		t.Errorf("Reconcile() after close = %v, want ErrSessionClosed", err)
	}

	reopened, _ := m.Open(ctx, "abc")
	if reopened == s {
		t.Error("Open() after Close() returned the closed session")
	}
	if got := reopened.Cart.ItemQuantity("3"); got != 2 {
		t.Errorf("reopened quantity = %d, want 2", got)
	}
	if _, ok := storage.Raw(cart.SessionKey("abc")); !ok {
		t.Error("persisted cart removed on close")
	}
}

func TestEvictIdle(t *testing.T) {
	ctx := context.Background()
	m, storage := newManager(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	stale, _ := m.Open(ctx, "stale")
	stale.AddItem(ctx, "3", 2)
	m.Open(ctx, "active")

	now = now.Add(20 * time.Minute)
	m.Open(ctx, "active")
	now = now.Add(15 * time.Minute)

	if n := m.EvictIdle(ctx); n != 1 {
		t.Fatalf("EvictIdle() = %d, want 1", n)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
	if _, err := stale.Controller.Reconcile(ctx, reconcile.TriggerPassive); !errors.Is(err, model.ErrSessionClosed) {
		t.Errorf("Reconcile() on evicted session = %v, want ErrSessionClosed", err)
	}
	if _, ok := storage.Raw(cart.SessionKey("stale")); !ok {
		t.Error("persisted cart removed on eviction")
	}

	reopened, _ := m.Open(ctx, "stale")
	if reopened == stale {
		t.Error("Open() after eviction returned the evicted session")
	}
	if got := reopened.Cart.ItemQuantity("3"); got != 2 {
		t.Errorf("rehydrated quantity = %d, want 2", got)
	}
}

func TestRun_EvictsUntilCancel(t *testing.T) {
	m, _ := newManager(t)
	m.cfg.IdleTimeout = time.Millisecond
	m.Open(context.Background(), "abc")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for m.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("idle session not evicted")
		case <-time.After(50 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

// TestCheckoutFlow runs the demo backend end to end: an unavailable line
// is removed on confirmation and the order is placed for the rest.
func TestCheckoutFlow(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	s, _ := m.Open(ctx, "abc")
	s.AddItem(ctx, "3", 2)
	s.AddItem(ctx, "4", 1) // out of stock

	out, err := s.Controller.Reconcile(ctx, reconcile.TriggerCheckout)
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	if out.Confirmation == nil {
		t.Fatalf("outcome = %+v, want confirmation", out)
	}
	if _, err := s.Controller.Confirm(ctx); err != nil {
		t.Fatalf("Confirm() error: %v", err)
	}

	addr := model.Address{Line1: "1 King St W", City: "Toronto", State: "ON", PostalCode: "M5H 1A1"}
	conf, err := s.Orders.Submit(ctx, &model.OrderForm{
		Email: "buyer@example.com", FirstName: "Ada", LastName: "Lovelace",
		Billing: addr, Shipping: addr,
		PaymentMethod: model.PaymentPurchaseOrder, ShippingMethod: model.ShippingStandard,
	})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	// 2 × 689.50 = 1379.00, tax 179.27, standard shipping 150.
	if got := conf.TotalAmount.StringFixed(2); got != "1708.27" {
		t.Errorf("total = %s, want 1708.27", got)
	}
	if !s.Cart.IsEmpty() {
		t.Error("cart not cleared after order")
	}
	var codes []string
	for _, n := range s.Notifications.Drain() {
		codes = append(codes, n.Code)
	}
	if diff := cmp.Diff([]string{"order_placed"}, codes); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}
}
