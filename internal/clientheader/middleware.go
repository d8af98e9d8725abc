package clientheader

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey struct{}

// Middleware parses the Storefront-Client header and stores the Client in
// the request context. Requests to session-bound paths without a valid
// header, or from a client older than minVersion, are rejected with 400.
func Middleware(minVersion string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(Name)
			if header == "" {
				if isExemptPath(r.URL.Path) {
					next.ServeHTTP(w, r)
					return
				}
				writeHeaderError(w, "CLIENT_HEADER_REQUIRED", Name+" header is required")
				return
			}

			client, err := Parse(header)
			if err != nil {
				logger.Warn("invalid client header",
					slog.String("header", header),
					slog.String("error", err.Error()))
				writeHeaderError(w, "CLIENT_HEADER_INVALID", "Invalid "+Name+" header: "+err.Error())
				return
			}
			if !client.Supported(minVersion) {
				writeHeaderError(w, "CLIENT_VERSION_UNSUPPORTED",
					"client version "+orNone(client.Version)+" is older than the minimum "+minVersion)
				return
			}

			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), client)))
		})
	}
}

// isExemptPath reports paths served without a session: health checks,
// the public catalog and the MCP endpoint, which carries the session id in
// each tool call.
func isExemptPath(path string) bool {
	switch {
	case path == "/health" || path == "/healthz":
		return true
	case path == "/products" || strings.HasPrefix(path, "/products/"):
		return true
	case path == "/mcp" || strings.HasPrefix(path, "/mcp/"):
		return true
	default:
		return false
	}
}

func orNone(v string) string {
	if v == "" {
		return "(none)"
	}
	return v
}

func writeHeaderError(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)

	resp := struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}{}
	resp.Error.Code = code
	resp.Error.Message = message

	json.NewEncoder(w).Encode(resp)
}

// NewContext returns ctx carrying c.
func NewContext(ctx context.Context, c *Client) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the client stored by Middleware, or nil.
func FromContext(ctx context.Context) *Client {
	c, _ := ctx.Value(contextKey{}).(*Client)
	return c
}
