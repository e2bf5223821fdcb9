// Package agent exposes the storefront session gateway to consumers: an
// MCP tool surface for agent frontends plus a small HTTP status surface.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"shopagent/internal/model"
	"shopagent/internal/storefront"
)

// Storefront is the client surface the tool handlers drive. Implemented by
// storefront.Client; an interface here so handler tests can fake the
// session core.
type Storefront interface {
	Login(ctx context.Context, email, password string) error
	Register(ctx context.Context, email, password, name string) error
	Logout(ctx context.Context) error
	OAuthURL(ctx context.Context, provider string) (string, error)
	IsAuthenticated() bool

	Cart(ctx context.Context) (model.CartSnapshot, error)
	AddToCart(ctx context.Context, productID, variantID string, qty int, unitPrice int64, name, imageURL string) error
	SetQuantity(ctx context.Context, itemID string, qty int) error
	RemoveItem(ctx context.Context, itemID string) error

	PreviewPromotions(ctx context.Context, itemIDs []string) (*model.PromotionPreview, error)

	SearchProducts(ctx context.Context, query string) ([]storefront.Product, error)
	GetProduct(ctx context.Context, productID string) (*storefront.Product, error)
	Checkout(ctx context.Context, itemIDs []string) (*storefront.CheckoutResult, error)
}

// Handler holds dependencies for the gateway's serving surface.
type Handler struct {
	store  Storefront
	logger *slog.Logger
}

// New creates a Handler over the given storefront client.
func New(store Storefront, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Status
	mux.HandleFunc("GET /session", h.handleSession)
	mux.HandleFunc("GET /cart", h.handleCart)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSession reports the current authentication signal. Lets an
// operator check gateway session state without driving an MCP round trip.
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]bool{
		"authenticated": h.store.IsAuthenticated(),
	})
}

// handleCart exposes the uniform cart snapshot over plain REST for
// operators and scripts that do not speak MCP.
func (h *Handler) handleCart(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.Cart(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError
// if present. Uses errors.As() to unwrap error chains.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError

	if !errors.As(err, &apiErr) {
		apiErr = &model.APIError{
			Code:       "INTERNAL_ERROR",
			Message:    "an internal error occurred",
			StatusCode: http.StatusInternalServerError,
		}
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}
	status := apiErr.StatusCode
	if status == 0 {
		status = http.StatusBadGateway
	}

	h.writeJSON(w, status, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
