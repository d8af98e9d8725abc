// Package handler provides the HTTP and MCP surface of the storefront service.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"storefront/internal/catalog"
	"storefront/internal/clientheader"
	"storefront/internal/model"
	"storefront/internal/session"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	sessions *session.Manager
	catalog  *catalog.Snapshot
	logger   *slog.Logger
}

// New creates a Handler serving sessions from m and products from snap.
func New(m *session.Manager, snap *catalog.Snapshot, logger *slog.Logger) *Handler {
	return &Handler{
		sessions: m,
		catalog:  snap,
		logger:   logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /products", h.handleListProducts)
	mux.HandleFunc("GET /products/{id}", h.handleGetProduct)

	mux.HandleFunc("GET /cart", h.handleGetCart)
	mux.HandleFunc("DELETE /cart", h.handleClearCart)
	mux.HandleFunc("POST /cart/items", h.handleAddItem)
	mux.HandleFunc("PUT /cart/items/{id}", h.handleSetQuantity)
	mux.HandleFunc("DELETE /cart/items/{id}", h.handleRemoveItem)

	mux.HandleFunc("POST /cart/mount", h.handleMount)
	mux.HandleFunc("POST /cart/reconcile", h.handleReconcile)
	mux.HandleFunc("POST /cart/reconcile/confirm", h.handleConfirm)
	mux.HandleFunc("POST /cart/reconcile/cancel", h.handleCancel)
	mux.HandleFunc("GET /notifications", h.handleNotifications)

	mux.HandleFunc("POST /checkout/totals", h.handleQuote)
	mux.HandleFunc("POST /checkout/orders", h.handleSubmitOrder)
	mux.HandleFunc("GET /orders/{number}", h.handleGetOrder)

	mux.HandleFunc("DELETE /session", h.handleCloseSession)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// client returns the caller identity stored by the client header
// middleware, parsing the header itself when the middleware is absent.
func client(r *http.Request) (*clientheader.Client, error) {
	if c := clientheader.FromContext(r.Context()); c != nil {
		return c, nil
	}
	c, err := clientheader.Parse(r.Header.Get(clientheader.Name))
	if err != nil {
		return nil, model.NewValidationError("session", err.Error())
	}
	return c, nil
}

// session resolves the caller's session, opening it on first use.
func (h *Handler) session(r *http.Request) (*session.Session, error) {
	c, err := client(r)
	if err != nil {
		return nil, err
	}
	return h.sessions.Open(r.Context(), c.Session)
}

type healthResponse struct {
	Status   string `json:"status"`
	Products int    `json:"products"`
	Sessions int    `json:"sessions"`
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Products: len(h.catalog.Products()),
		Sessions: h.sessions.Len(),
	})
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	apiErr := h.apiError(err)
	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// apiError finds the APIError in err's chain or logs err and returns a
// generic 500.
func (h *Handler) apiError(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	h.logger.Error("internal error", slog.String("error", err.Error()))
	return &model.APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: http.StatusInternalServerError,
	}
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
