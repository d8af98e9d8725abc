// MCP transport for the storefront using the official MCP Go SDK.
// Exposes the cart, reconciliation and order operations as MCP tools.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"storefront/internal/model"
	"storefront/internal/reconcile"
	"storefront/internal/session"
)

// === MCP Tool Input Types ===
// Every cart tool names the shopper session it acts on; there is no
// Storefront-Client header on MCP calls.

// SessionInput identifies the shopper session.
type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"shopper session id"`
}

// ListProductsInput is the input schema for list_products.
type ListProductsInput struct {
	InStockOnly bool `json:"in_stock_only,omitempty" jsonschema:"only return purchasable products"`
}

// CartItemInput is the input schema for add_to_cart and update_cart_item.
type CartItemInput struct {
	SessionID string `json:"session_id" jsonschema:"shopper session id"`
	ProductID string `json:"product_id" jsonschema:"product id"`
	Quantity  int    `json:"quantity" jsonschema:"units to add, or the absolute quantity when updating"`
}

// RemoveItemInput is the input schema for remove_from_cart.
type RemoveItemInput struct {
	SessionID string `json:"session_id" jsonschema:"shopper session id"`
	ProductID string `json:"product_id" jsonschema:"product id"`
}

// ReconcileInput is the input schema for reconcile_cart.
type ReconcileInput struct {
	SessionID string `json:"session_id" jsonschema:"shopper session id"`
	Trigger   string `json:"trigger" jsonschema:"passive, refresh or checkout"`
}

// QuoteInput is the input schema for quote_totals.
type QuoteInput struct {
	SessionID      string `json:"session_id" jsonschema:"shopper session id"`
	ShippingMethod string `json:"shipping_method" jsonschema:"standard or express"`
}

// PlaceOrderInput is the input schema for place_order.
type PlaceOrderInput struct {
	SessionID string          `json:"session_id" jsonschema:"shopper session id"`
	Order     model.OrderForm `json:"order" jsonschema:"customer, address and payment details"`
}

// GetOrderInput is the input schema for get_order.
type GetOrderInput struct {
	SessionID   string `json:"session_id" jsonschema:"shopper session id"`
	OrderNumber string `json:"order_number" jsonschema:"order number from the confirmation"`
}

// NewMCPServer creates an MCP server with the storefront tools registered.
// The server exposes the same operations as the REST API.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "storefront",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Storefront cart tools. Reconcile the cart with the checkout trigger " +
				"and confirm any held changes before placing an order.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_products",
		Description: "List products from the catalog snapshot.",
	}, h.mcpListProducts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cart",
		Description: "Get the cart, its reconciliation state and any held changes.",
	}, h.mcpGetCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_cart",
		Description: "Add units of a product to the cart. Rejected when the catalog shows too little stock.",
	}, h.mcpAddToCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_cart_item",
		Description: "Set the quantity of a cart line. Zero removes the line.",
	}, h.mcpUpdateCartItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_from_cart",
		Description: "Remove a product from the cart.",
	}, h.mcpRemoveFromCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "reconcile_cart",
		Description: "Validate the cart against live stock. The checkout and refresh triggers hold changes for confirmation.",
	}, h.mcpReconcile)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "confirm_cart_changes",
		Description: "Apply the changes held by the last reconciliation.",
	}, h.mcpConfirm)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cancel_cart_changes",
		Description: "Discard the changes held by the last reconciliation. The cart is left as it is.",
	}, h.mcpCancel)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_notifications",
		Description: "Drain pending notifications for the session.",
	}, h.mcpNotifications)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "quote_totals",
		Description: "Get authoritative subtotal, tax, shipping and total for the cart.",
	}, h.mcpQuote)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "place_order",
		Description: "Place an order for a cart cleared for checkout.",
	}, h.mcpPlaceOrder)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_order",
		Description: "Look up an order by number.",
	}, h.mcpGetOrder)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpListProducts(_ context.Context, _ *mcp.CallToolRequest, input ListProductsInput) (*mcp.CallToolResult, any, error) {
	products := h.catalog.Products()
	if input.InStockOnly {
		filtered := products[:0]
		for _, p := range products {
			if p.Available() {
				filtered = append(filtered, p)
			}
		}
		products = filtered
	}
	return nil, productsResponse{Products: products, Count: len(products), FetchedAt: h.catalog.FetchedAt()}, nil
}

func (h *Handler) mcpGetCart(ctx context.Context, _ *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, any, error) {
	s, err := h.mcpSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	return nil, viewOf(s), nil
}

func (h *Handler) mcpAddToCart(ctx context.Context, _ *mcp.CallToolRequest, input CartItemInput) (*mcp.CallToolResult, any, error) {
	s, err := h.mcpSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if input.ProductID == "" {
		return nil, nil, fmt.Errorf("product_id is required")
	}
	if err := s.AddItem(ctx, model.ProductID(input.ProductID), input.Quantity); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, viewOf(s), nil
}

func (h *Handler) mcpUpdateCartItem(ctx context.Context, _ *mcp.CallToolRequest, input CartItemInput) (*mcp.CallToolResult, any, error) {
	s, err := h.mcpSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if input.ProductID == "" {
		return nil, nil, fmt.Errorf("product_id is required")
	}
	if err := s.SetQuantity(ctx, model.ProductID(input.ProductID), input.Quantity); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, viewOf(s), nil
}

func (h *Handler) mcpRemoveFromCart(ctx context.Context, _ *mcp.CallToolRequest, input RemoveItemInput) (*mcp.CallToolResult, any, error) {
	s, err := h.mcpSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	s.Cart.RemoveItem(ctx, model.ProductID(input.ProductID))
	return nil, viewOf(s), nil
}

func (h *Handler) mcpReconcile(ctx context.Context, _ *mcp.CallToolRequest, input ReconcileInput) (*mcp.CallToolResult, any, error) {
	s, err := h.mcpSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	trigger, err := reconcile.ParseTrigger(input.Trigger)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	out, err := s.Controller.Reconcile(ctx, trigger)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, out, nil
}

func (h *Handler) mcpConfirm(ctx context.Context, _ *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, any, error) {
	s, err := h.mcpSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	out, err := s.Controller.Confirm(ctx)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, out, nil
}

func (h *Handler) mcpCancel(ctx context.Context, _ *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, any, error) {
	s, err := h.mcpSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	return nil, cancelResponse{Cancelled: s.Controller.Cancel()}, nil
}

func (h *Handler) mcpNotifications(ctx context.Context, _ *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, any, error) {
	s, err := h.mcpSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	return nil, notificationsResponse{Notifications: s.Notifications.Drain()}, nil
}

func (h *Handler) mcpQuote(ctx context.Context, _ *mcp.CallToolRequest, input QuoteInput) (*mcp.CallToolResult, any, error) {
	s, err := h.mcpSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	totals, err := s.Orders.Quote(ctx, input.ShippingMethod)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, totals, nil
}

func (h *Handler) mcpPlaceOrder(ctx context.Context, _ *mcp.CallToolRequest, input PlaceOrderInput) (*mcp.CallToolResult, any, error) {
	s, err := h.mcpSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	conf, err := s.Orders.Submit(ctx, &input.Order)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, conf, nil
}

func (h *Handler) mcpGetOrder(ctx context.Context, _ *mcp.CallToolRequest, input GetOrderInput) (*mcp.CallToolResult, any, error) {
	s, err := h.mcpSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	order, err := s.Orders.Lookup(ctx, input.OrderNumber)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, order, nil
}

func (h *Handler) mcpSession(ctx context.Context, id string) (*session.Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	s, err := h.sessions.Open(ctx, id)
	if err != nil {
		return nil, h.mcpError(err)
	}
	return s, nil
}

// mcpError converts service errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
