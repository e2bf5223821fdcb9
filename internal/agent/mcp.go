// MCP transport handler using the official MCP Go SDK. Exposes the
// storefront session, cart, promotion, catalog, and checkout operations as
// MCP tools for agent frontends.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"shopagent/internal/model"
	"shopagent/internal/storefront"
)

// === MCP Tool Input/Output Types ===

// SignInInput is the input schema for the sign_in tool.
type SignInInput struct {
	Email    string `json:"email" jsonschema:"account email,required"`
	Password string `json:"password" jsonschema:"account password,required"`
}

// RegisterInput is the input schema for the register_account tool.
type RegisterInput struct {
	Email    string `json:"email" jsonschema:"account email,required"`
	Password string `json:"password" jsonschema:"account password,required"`
	Name     string `json:"name,omitempty" jsonschema:"display name"`
}

// OAuthURLInput is the input schema for the get_oauth_url tool.
type OAuthURLInput struct {
	Provider string `json:"provider" jsonschema:"OAuth provider name,required"`
}

// OAuthURLOutput carries the provider authorization URL.
type OAuthURLOutput struct {
	URL string `json:"url"`
}

// SessionStatus reports the authentication signal after a session tool.
type SessionStatus struct {
	Authenticated bool `json:"authenticated"`
}

// EmptyInput is the input schema for tools taking no arguments.
type EmptyInput struct{}

// AddToCartInput is the input schema for the add_to_cart tool.
type AddToCartInput struct {
	ProductID string `json:"product_id" jsonschema:"product ID,required"`
	VariantID string `json:"variant_id,omitempty" jsonschema:"variant ID"`
	Quantity  int    `json:"quantity" jsonschema:"quantity to add,required"`
}

// SetQuantityInput is the input schema for the set_quantity tool.
type SetQuantityInput struct {
	ItemID   string `json:"item_id" jsonschema:"cart line item ID,required"`
	Quantity int    `json:"quantity" jsonschema:"new quantity (0 removes the line),required"`
}

// RemoveItemInput is the input schema for the remove_from_cart tool.
type RemoveItemInput struct {
	ItemID string `json:"item_id" jsonschema:"cart line item ID,required"`
}

// PreviewInput is the input schema for the preview_promotions tool.
type PreviewInput struct {
	ItemIDs []string `json:"item_ids" jsonschema:"line item IDs to evaluate (exactly this subset),required"`
}

// SearchInput is the input schema for the search_products tool.
type SearchInput struct {
	Query string `json:"query,omitempty" jsonschema:"search query, empty lists all"`
}

// SearchOutput wraps catalog results.
type SearchOutput struct {
	Products []storefront.Product `json:"products"`
}

// GetProductInput is the input schema for the get_product tool.
type GetProductInput struct {
	ProductID string `json:"product_id" jsonschema:"product ID,required"`
}

// CheckoutInput is the input schema for the begin_checkout tool.
type CheckoutInput struct {
	ItemIDs []string `json:"item_ids" jsonschema:"cart line item IDs to purchase,required"`
}

// NewMCPServer creates an MCP server with the storefront tools registered.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "shopagent",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Storefront shopping gateway. Sign in or shop as a guest; " +
				"guest cart items are kept locally and merged into the account " +
				"cart on sign-in. Amounts are integer minor units (cents).",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sign_in",
		Description: "Sign in with email and password. Any guest cart items are merged into the account cart.",
	}, h.mcpSignIn)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "register_account",
		Description: "Create a new account and sign it in.",
	}, h.mcpRegister)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sign_out",
		Description: "Sign out of the current session. The local guest cart is unaffected.",
	}, h.mcpSignOut)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_oauth_url",
		Description: "Get the authorization URL for an OAuth sign-in provider.",
	}, h.mcpOAuthURL)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "view_cart",
		Description: "View the current cart: the account cart when signed in, the local guest cart otherwise.",
	}, h.mcpViewCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_cart",
		Description: "Add a product (optionally a specific variant) to the cart. Adding the same product again increases its quantity.",
	}, h.mcpAddToCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_quantity",
		Description: "Set the quantity of a cart line. Zero removes the line.",
	}, h.mcpSetQuantity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_from_cart",
		Description: "Remove a line from the cart.",
	}, h.mcpRemoveItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "preview_promotions",
		Description: "Preview subtotal, discounts, and gift entitlements for a selected subset of cart lines.",
	}, h.mcpPreview)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_products",
		Description: "Search the product catalog.",
	}, h.mcpSearch)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_product",
		Description: "Get one product with its variants and prices.",
	}, h.mcpGetProduct)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "begin_checkout",
		Description: "Create an order from selected cart lines and return the payment redirect. Requires sign-in.",
	}, h.mcpCheckout)

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

func (h *Handler) mcpSignIn(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SignInInput,
) (*mcp.CallToolResult, *SessionStatus, error) {
	if input.Email == "" || input.Password == "" {
		return nil, nil, fmt.Errorf("email and password are required")
	}
	if err := h.store.Login(ctx, input.Email, input.Password); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, &SessionStatus{Authenticated: h.store.IsAuthenticated()}, nil
}

func (h *Handler) mcpRegister(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RegisterInput,
) (*mcp.CallToolResult, *SessionStatus, error) {
	if input.Email == "" || input.Password == "" {
		return nil, nil, fmt.Errorf("email and password are required")
	}
	if err := h.store.Register(ctx, input.Email, input.Password, input.Name); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, &SessionStatus{Authenticated: h.store.IsAuthenticated()}, nil
}

func (h *Handler) mcpSignOut(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input EmptyInput,
) (*mcp.CallToolResult, *SessionStatus, error) {
	if err := h.store.Logout(ctx); err != nil {
		// Local session state is already cleared; surface the server-side
		// failure as advisory only.
		h.logger.Warn("server-side logout failed", "error", err.Error())
	}
	return nil, &SessionStatus{Authenticated: h.store.IsAuthenticated()}, nil
}

func (h *Handler) mcpOAuthURL(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input OAuthURLInput,
) (*mcp.CallToolResult, *OAuthURLOutput, error) {
	if input.Provider == "" {
		return nil, nil, fmt.Errorf("provider is required")
	}
	u, err := h.store.OAuthURL(ctx, input.Provider)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, &OAuthURLOutput{URL: u}, nil
}

func (h *Handler) mcpViewCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input EmptyInput,
) (*mcp.CallToolResult, *model.CartSnapshot, error) {
	snap, err := h.store.Cart(ctx)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, &snap, nil
}

func (h *Handler) mcpAddToCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddToCartInput,
) (*mcp.CallToolResult, *model.CartSnapshot, error) {
	if input.ProductID == "" {
		return nil, nil, fmt.Errorf("product_id is required")
	}
	if input.Quantity <= 0 {
		return nil, nil, fmt.Errorf("quantity must be positive")
	}

	// Snapshot the displayed price and name so guest cart rows render
	// without another catalog round trip.
	product, err := h.store.GetProduct(ctx, input.ProductID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	price, name := product.Price, product.Name
	if input.VariantID != "" {
		found := false
		for _, v := range product.Variants {
			if v.ID == input.VariantID {
				price, name, found = v.Price, product.Name+" ("+v.Name+")", true
				break
			}
		}
		if !found {
			return nil, nil, fmt.Errorf("product %s has no variant %s", input.ProductID, input.VariantID)
		}
	}

	if err := h.store.AddToCart(ctx, input.ProductID, input.VariantID, input.Quantity, price, name, product.ImageURL); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return h.cartResult(ctx)
}

func (h *Handler) mcpSetQuantity(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SetQuantityInput,
) (*mcp.CallToolResult, *model.CartSnapshot, error) {
	if input.ItemID == "" {
		return nil, nil, fmt.Errorf("item_id is required")
	}
	if err := h.store.SetQuantity(ctx, input.ItemID, input.Quantity); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return h.cartResult(ctx)
}

func (h *Handler) mcpRemoveItem(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RemoveItemInput,
) (*mcp.CallToolResult, *model.CartSnapshot, error) {
	if input.ItemID == "" {
		return nil, nil, fmt.Errorf("item_id is required")
	}
	if err := h.store.RemoveItem(ctx, input.ItemID); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return h.cartResult(ctx)
}

func (h *Handler) mcpPreview(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input PreviewInput,
) (*mcp.CallToolResult, *model.PromotionPreview, error) {
	preview, err := h.store.PreviewPromotions(ctx, input.ItemIDs)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, preview, nil
}

func (h *Handler) mcpSearch(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, *SearchOutput, error) {
	products, err := h.store.SearchProducts(ctx, input.Query)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	if products == nil {
		products = []storefront.Product{}
	}
	return nil, &SearchOutput{Products: products}, nil
}

func (h *Handler) mcpGetProduct(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetProductInput,
) (*mcp.CallToolResult, *storefront.Product, error) {
	if input.ProductID == "" {
		return nil, nil, fmt.Errorf("product_id is required")
	}
	product, err := h.store.GetProduct(ctx, input.ProductID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, product, nil
}

func (h *Handler) mcpCheckout(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input CheckoutInput,
) (*mcp.CallToolResult, *storefront.CheckoutResult, error) {
	if len(input.ItemIDs) == 0 {
		return nil, nil, fmt.Errorf("item_ids is required")
	}
	result, err := h.store.Checkout(ctx, input.ItemIDs)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, result, nil
}

// cartResult refetches the cart after a mutation so every cart tool
// returns the resulting snapshot.
func (h *Handler) cartResult(ctx context.Context) (*mcp.CallToolResult, *model.CartSnapshot, error) {
	snap, err := h.store.Cart(ctx)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, &snap, nil
}

// mcpError converts gateway errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
