package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"storefront/internal/backend"
	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/clientheader"
	"storefront/internal/model"
	"storefront/internal/reconcile"
	"storefront/internal/session"
)

func testHandler(t *testing.T) (*Handler, *http.ServeMux, *backend.Fake) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fake := backend.NewFake(backend.DemoCatalog())
	snap := catalog.New(fake, logger)
	snap.Replace(backend.DemoCatalog())
	m := session.NewManager(session.Config{Backend: fake, Catalog: snap, Storage: cart.NewMemoryStorage(), Logger: logger})
	h := New(m, snap, logger)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h, mux, fake
}

// do sends a request as session "s1" and returns the recorder.
func do(t *testing.T, mux http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(clientheader.Name, `session="s1", version="1.0.0"`)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode %T: %v (body %s)", v, err, w.Body)
	}
	return v
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[errorResponse](t, w).Error.Code
}

func TestHandleHealth(t *testing.T) {
	_, mux, _ := testHandler(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decode[healthResponse](t, w)
	if resp.Status != "ok" || resp.Products != 6 {
		t.Errorf("health = %+v", resp)
	}
}

func TestHandleProducts(t *testing.T) {
	_, mux, _ := testHandler(t)

	w := do(t, mux, "GET", "/products", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}
	if resp := decode[productsResponse](t, w); resp.Count != 6 {
		t.Errorf("Count = %d, want 6", resp.Count)
	}

	w = do(t, mux, "GET", "/products/3", nil)
	if p := decode[model.Product](t, w); p.ID != "3" {
		t.Errorf("product = %+v", p)
	}

	w = do(t, mux, "GET", "/products/99", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", w.Code)
	}
}

func TestCartRequiresSession(t *testing.T) {
	_, mux, _ := testHandler(t)

	req := httptest.NewRequest("GET", "/cart", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest || errorCode(t, w) != "VALIDATION_ERROR" {
		t.Errorf("Status = %d, body %s", w.Code, w.Body)
	}
}

func TestCartMutations(t *testing.T) {
	_, mux, _ := testHandler(t)

	w := do(t, mux, "POST", "/cart/items", map[string]any{"product_id": 3, "quantity": 2})
	if w.Code != http.StatusOK {
		t.Fatalf("add: Status = %d, body %s", w.Code, w.Body)
	}
	do(t, mux, "POST", "/cart/items", map[string]any{"product_id": "5", "quantity": 1})
	do(t, mux, "PUT", "/cart/items/3", map[string]any{"quantity": 4})

	view := decode[cartView](t, do(t, mux, "GET", "/cart", nil))
	want := []model.CartItem{{ProductID: "3", Quantity: 4}, {ProductID: "5", Quantity: 1}}
	if diff := cmp.Diff(want, view.Items); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
	if view.TotalItems != 5 {
		t.Errorf("TotalItems = %d, want 5", view.TotalItems)
	}

	view = decode[cartView](t, do(t, mux, "DELETE", "/cart/items/5", nil))
	if len(view.Items) != 1 {
		t.Errorf("items after delete = %+v", view.Items)
	}

	view = decode[cartView](t, do(t, mux, "DELETE", "/cart", nil))
	if len(view.Items) != 0 {
		t.Errorf("items after clear = %+v", view.Items)
	}
}

func TestAddItemRejectedBeyondStock(t *testing.T) {
	_, mux, _ := testHandler(t)

	// Product 1 has 4 units.
	w := do(t, mux, "POST", "/cart/items", map[string]any{"product_id": "1", "quantity": 5})
	if w.Code != http.StatusConflict || errorCode(t, w) != "INSUFFICIENT_STOCK" {
		t.Fatalf("Status = %d, body %s", w.Code, w.Body)
	}
	view := decode[cartView](t, do(t, mux, "GET", "/cart", nil))
	if len(view.Items) != 0 {
		t.Errorf("rejected add mutated the cart: %+v", view.Items)
	}

	notes := decode[notificationsResponse](t, do(t, mux, "GET", "/notifications", nil))
	if len(notes.Notifications) != 1 || notes.Notifications[0].Code != "insufficient_stock" {
		t.Errorf("notifications = %+v", notes)
	}
}

func TestInvalidJSON(t *testing.T) {
	_, mux, _ := testHandler(t)

	req := httptest.NewRequest("POST", "/cart/items", bytes.NewReader([]byte("{not json")))
	req.Header.Set(clientheader.Name, `session="s1"`)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", w.Code)
	}
}

func TestReconcileAndCheckout(t *testing.T) {
	_, mux, fake := testHandler(t)

	do(t, mux, "POST", "/cart/items", map[string]any{"product_id": "2", "quantity": 8})
	do(t, mux, "POST", "/cart/items", map[string]any{"product_id": "3", "quantity": 1})

	// Stock drops after the items were added.
	p, _ := fake.GetProduct(t.Context(), "2")
	p.Quantity = 5
	fake.SetProduct(*p)

	w := do(t, mux, "POST", "/cart/reconcile", map[string]string{"trigger": "checkout"})
	if w.Code != http.StatusOK {
		t.Fatalf("reconcile: Status = %d, body %s", w.Code, w.Body)
	}
	out := decode[reconcile.Outcome](t, w)
	if out.State != reconcile.StateDiffPending || out.Confirmation == nil {
		t.Fatalf("outcome = %+v, want held diff", out)
	}
	if out.Confirmation.ConfirmLabel != reconcile.LabelUpdateAndCheckout {
		t.Errorf("label = %q", out.Confirmation.ConfirmLabel)
	}

	// Ordering before confirmation is blocked.
	form := map[string]any{
		"email": "buyer@example.com", "first_name": "Ada", "last_name": "Lovelace",
		"billing":  map[string]string{"line1": "1 King St W", "city": "Toronto", "state": "ON", "postal_code": "M5H 1A1"},
		"shipping": map[string]string{"line1": "1 King St W", "city": "Toronto", "state": "ON", "postal_code": "M5H 1A1"},
		"payment_method": "card", "shipping_method": "express",
	}
	w = do(t, mux, "POST", "/checkout/orders", form)
	if w.Code != http.StatusConflict || errorCode(t, w) != "CHECKOUT_BLOCKED" {
		t.Fatalf("order before confirm: Status = %d, body %s", w.Code, w.Body)
	}

	out = decode[reconcile.Outcome](t, do(t, mux, "POST", "/cart/reconcile/confirm", nil))
	if !out.Applied || !out.ProceedToCheckout {
		t.Fatalf("confirm outcome = %+v", out)
	}

	totals := decode[model.OrderTotals](t, do(t, mux, "POST", "/checkout/totals", map[string]string{"shipping_method": "express"}))
	// 5 × 1295.00 + 689.50 = 7164.50; tax 931.39; express 250.
	if got := totals.TotalAmount.StringFixed(2); got != "8345.89" {
		t.Errorf("quote total = %s, want 8345.89", got)
	}

	w = do(t, mux, "POST", "/checkout/orders", form)
	if w.Code != http.StatusCreated {
		t.Fatalf("order: Status = %d, body %s", w.Code, w.Body)
	}
	conf := decode[model.Confirmation](t, w)
	if conf.TotalAmount.StringFixed(2) != "8345.89" || conf.OrderNumber == "" {
		t.Errorf("confirmation = %+v", conf)
	}

	order := decode[model.Order](t, do(t, mux, "GET", "/orders/"+conf.OrderNumber, nil))
	if order.OrderNumber != conf.OrderNumber {
		t.Errorf("order lookup = %+v", order)
	}

	view := decode[cartView](t, do(t, mux, "GET", "/cart", nil))
	if len(view.Items) != 0 {
		t.Errorf("cart after order = %+v", view.Items)
	}
}

func TestReconcileUnknownTrigger(t *testing.T) {
	_, mux, _ := testHandler(t)

	w := do(t, mux, "POST", "/cart/reconcile", map[string]string{"trigger": "sometimes"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", w.Code)
	}
}

func TestCancelAndConfirmWithoutDiff(t *testing.T) {
	_, mux, _ := testHandler(t)

	if resp := decode[cancelResponse](t, do(t, mux, "POST", "/cart/reconcile/cancel", nil)); resp.Cancelled {
		t.Error("Cancelled = true with nothing pending")
	}
	w := do(t, mux, "POST", "/cart/reconcile/confirm", nil)
	if w.Code != http.StatusConflict || errorCode(t, w) != "CONFLICT" {
		t.Errorf("confirm: Status = %d, body %s", w.Code, w.Body)
	}
}

func TestMountPassiveAutoApplies(t *testing.T) {
	_, mux, _ := testHandler(t)

	do(t, mux, "POST", "/cart/items", map[string]any{"product_id": "6", "quantity": 1}) // inactive
	do(t, mux, "POST", "/cart/items", map[string]any{"product_id": "3", "quantity": 1})

	out := decode[reconcile.Outcome](t, do(t, mux, "POST", "/cart/mount", nil))
	if !out.Applied {
		t.Fatalf("mount outcome = %+v", out)
	}
	view := decode[cartView](t, do(t, mux, "GET", "/cart", nil))
	if diff := cmp.Diff([]model.CartItem{{ProductID: "3", Quantity: 1}}, view.Items); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
	if view.Estimate == nil || view.Estimate.Subtotal.StringFixed(2) != "689.50" {
		t.Errorf("estimate = %+v", view.Estimate)
	}

	out = decode[reconcile.Outcome](t, do(t, mux, "POST", "/cart/mount", nil))
	if !out.Skipped {
		t.Errorf("second mount = %+v, want skipped", out)
	}
}

func TestCloseSession(t *testing.T) {
	h, mux, _ := testHandler(t)

	do(t, mux, "GET", "/cart", nil)
	if h.sessions.Len() != 1 {
		t.Fatalf("sessions = %d", h.sessions.Len())
	}
	w := do(t, mux, "DELETE", "/session", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Status = %d, want 204", w.Code)
	}
	if h.sessions.Len() != 0 {
		t.Errorf("sessions = %d after close", h.sessions.Len())
	}
}
