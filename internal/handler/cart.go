package handler

import (
	"net/http"
	"time"

	"storefront/internal/model"
	"storefront/internal/notify"
	"storefront/internal/reconcile"
	"storefront/internal/session"
)

// cartView is the cart as shown to the shopper.
type cartView struct {
	Items           []model.CartItem        `json:"items"`
	TotalItems      int                     `json:"total_items"`
	Revision        uint64                  `json:"revision"`
	State           reconcile.State         `json:"state"`
	CheckoutAllowed bool                    `json:"checkout_allowed"`
	Estimate        *model.OrderTotals      `json:"estimate,omitempty"`
	Pending         *reconcile.Confirmation `json:"pending,omitempty"`
}

func viewOf(s *session.Session) *cartView {
	items, rev := s.Cart.Snapshot()
	v := &cartView{
		Items:           items,
		TotalItems:      s.Cart.TotalItems(),
		Revision:        rev,
		State:           s.Controller.State(),
		CheckoutAllowed: s.Controller.CheckoutAllowed(),
		Pending:         s.Controller.Pending(),
	}
	if s.Controller.LastResult() != nil {
		v.Estimate = s.Orders.Estimate()
	}
	return v
}

type productsResponse struct {
	Products  []model.Product `json:"products"`
	Count     int             `json:"count"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// GET /products
func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products := h.catalog.Products()
	h.writeJSON(w, http.StatusOK, productsResponse{
		Products:  products,
		Count:     len(products),
		FetchedAt: h.catalog.FetchedAt(),
	})
}

// GET /products/{id}
func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := h.catalog.Get(model.ProductID(r.PathValue("id")))
	if !ok {
		h.writeError(w, model.NewNotFoundError("product"))
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// GET /cart
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewOf(s))
}

// DELETE /cart
func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	s.Cart.Clear(r.Context())
	h.writeJSON(w, http.StatusOK, viewOf(s))
}

// POST /cart/items
func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req model.ItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.ProductID == "" {
		h.writeError(w, model.NewValidationError("product_id", "required"))
		return
	}
	if err := s.AddItem(r.Context(), req.ProductID, req.Quantity); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewOf(s))
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

// PUT /cart/items/{id}
func (h *Handler) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := s.SetQuantity(r.Context(), model.ProductID(r.PathValue("id")), req.Quantity); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewOf(s))
}

// DELETE /cart/items/{id}
func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	s.Cart.RemoveItem(r.Context(), model.ProductID(r.PathValue("id")))
	h.writeJSON(w, http.StatusOK, viewOf(s))
}

// POST /cart/mount
func (h *Handler) handleMount(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out, err := s.Controller.Mount(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

type reconcileRequest struct {
	Trigger string `json:"trigger"`
}

// POST /cart/reconcile
func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req reconcileRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	trigger, err := reconcile.ParseTrigger(req.Trigger)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out, err := s.Controller.Reconcile(r.Context(), trigger)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

// POST /cart/reconcile/confirm
func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out, err := s.Controller.Confirm(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

type cancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// POST /cart/reconcile/cancel
func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cancelResponse{Cancelled: s.Controller.Cancel()})
}

type notificationsResponse struct {
	Notifications []notify.Notification `json:"notifications"`
}

// GET /notifications drains the session's queue.
func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, notificationsResponse{Notifications: s.Notifications.Drain()})
}

type quoteRequest struct {
	ShippingMethod string `json:"shipping_method"`
}

// POST /checkout/totals
func (h *Handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req quoteRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	totals, err := s.Orders.Quote(r.Context(), req.ShippingMethod)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, totals)
}

// POST /checkout/orders
func (h *Handler) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var form model.OrderForm
	if err := decodeJSON(r, &form); err != nil {
		h.writeError(w, err)
		return
	}
	conf, err := s.Orders.Submit(r.Context(), &form)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, conf)
}

// GET /orders/{number}
func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	order, err := s.Orders.Lookup(r.Context(), r.PathValue("number"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

// DELETE /session
func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	c, err := client(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.sessions.Close(c.Session)
	w.WriteHeader(http.StatusNoContent)
}
