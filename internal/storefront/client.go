// Package storefront is the high-level client over the storefront REST
// API. It assembles the session/transport core (credential store, renewal
// coordinator, dispatcher, guest ledger, reconciler, promotion engine)
// and exposes the operations the CLI and MCP surfaces consume.
package storefront

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"shopagent/internal/cart"
	"shopagent/internal/dispatch"
	"shopagent/internal/model"
	"shopagent/internal/promo"
	"shopagent/internal/session"
	"shopagent/internal/transport"
)

// renewalCookie is the scoped cookie carrying the longer-lived renewal
// credential. Set by the storefront on login; this layer never reads its
// value, only lets the jar send it and expires it on logout or
// irrecoverable renewal failure.
const renewalCookie = "shop_renewal"

// API paths.
const (
	pathLogin    = "/auth/login"
	pathLogout   = "/auth/logout"
	pathRenew    = "/auth/renew"
	pathRegister = "/auth/register"
	pathOAuthURL = "/auth/oauth/url"
	pathCart     = "/cart"
	pathCartItem = "/cart/items"
	pathPreview  = "/promotions/preview"
	pathProducts = "/products"
	pathOrders   = "/orders"
)

// Config holds storefront client construction parameters.
type Config struct {
	Origin           string
	APIKey           string // optional X-API-Key for gateway identification
	PublicPaths      []string
	PublicRoutes     []string
	LedgerPath       string
	CrossOriginCreds bool // send the cookie jar on dispatcher calls too
	Navigator        session.Navigator
	Logger           *slog.Logger
	Timeout          time.Duration

	// HTTPClient overrides the default browser-fingerprint transport.
	// Used by tests against httptest servers.
	HTTPClient *http.Client
}

// Client is the storefront gateway client.
type Client struct {
	dispatcher *dispatch.Dispatcher
	creds      *session.Store
	coord      *session.Coordinator
	ledger     *cart.Ledger
	reconciler *cart.Reconciler
	promo      *promo.Engine
	renewHTTP  *http.Client // always carries the cookie jar
	jar        http.CookieJar
	origin     string
	originURL  *url.URL
	apiKey     string
	logger     *slog.Logger

	cacheMu sync.Mutex
	cached  *model.CartSnapshot // authenticated cart, nil when stale
}

// New wires up a complete client. The guest ledger is opened (and created
// if missing) at cfg.LedgerPath.
func New(cfg Config) (*Client, error) {
	if cfg.Origin == "" {
		return nil, fmt.Errorf("origin is required")
	}
	originURL, err := url.Parse(cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	jar, err := transport.NewSessionJar()
	if err != nil {
		return nil, err
	}

	// The renewal call always carries the jar; the dispatcher's client
	// carries it only when cross-origin credentials are enabled, matching
	// the storefront's CORS posture.
	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{
			Timeout:   timeout,
			Transport: transport.NewBrowserTransport(timeout),
		}
	}
	renewHTTP := &http.Client{
		Timeout:   base.Timeout,
		Transport: base.Transport,
		Jar:       jar,
	}
	dispatchHTTP := &http.Client{
		Timeout:   base.Timeout,
		Transport: base.Transport,
	}
	if cfg.CrossOriginCreds {
		dispatchHTTP.Jar = jar
	}

	creds := session.NewStore(logger)

	dispatcher, err := dispatch.New(dispatch.Config{
		Origin:      cfg.Origin,
		PublicPaths: cfg.PublicPaths,
		HTTPClient:  dispatchHTTP,
		Credentials: creds,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	ledger, err := cart.OpenLedger(cfg.LedgerPath)
	if err != nil {
		return nil, err
	}

	c := &Client{
		dispatcher: dispatcher,
		creds:      creds,
		ledger:     ledger,
		renewHTTP:  renewHTTP,
		jar:        jar,
		origin:     strings.TrimSuffix(cfg.Origin, "/"),
		originURL:  originURL,
		apiKey:     cfg.APIKey,
		logger:     logger,
	}

	c.coord = session.NewCoordinator(session.CoordinatorConfig{
		Store:              creds,
		Renew:              c.renew,
		Replay:             dispatcher.Do,
		Navigator:          cfg.Navigator,
		ClearRenewalCookie: c.clearRenewalCookie,
		PublicRoutes:       cfg.PublicRoutes,
		Logger:             logger,
	})
	dispatcher.SetRenewer(c.coord)

	c.reconciler = cart.NewReconciler(ledger, c, logger)
	creds.Subscribe(c.reconciler.OnAuthChange)
	creds.Subscribe(func(authed bool) {
		if !authed {
			c.dropCache()
		}
	})

	c.promo = promo.NewEngine(c, creds, ledger, logger)
	return c, nil
}

// Close releases the guest ledger.
func (c *Client) Close() error { return c.ledger.Close() }

// IsAuthenticated exposes the reactive authentication signal.
func (c *Client) IsAuthenticated() bool { return c.creds.IsAuthenticated() }

// Subscribe registers a listener on the authentication signal.
func (c *Client) Subscribe(fn func(authenticated bool)) { c.creds.Subscribe(fn) }

// === Session Operations ===

// Login authenticates with email/password. On success the storefront sets
// the renewal cookie (captured by the jar) and returns a bearer credential
// in either of the two known response shapes. Storing the credential flips
// the authentication signal, which triggers guest cart reconciliation.
func (c *Client) Login(ctx context.Context, email, password string) error {
	resp, err := c.dispatcher.Do(ctx, &model.Request{
		Method: http.MethodPost,
		Path:   pathLogin,
		Body:   loginRequest{Email: email, Password: password},
	})
	if err != nil {
		return err
	}

	bearer, ok := session.ExtractBearer(resp.Raw)
	if !ok {
		return model.NewValidationError("login response", "no credential in response")
	}
	return c.creds.Set(bearer)
}

// Register creates an account. The storefront logs the new account in
// directly, returning a credential like login does.
func (c *Client) Register(ctx context.Context, email, password, name string) error {
	resp, err := c.dispatcher.Do(ctx, &model.Request{
		Method: http.MethodPost,
		Path:   pathRegister,
		Body:   registerRequest{Email: email, Password: password, Name: name},
	})
	if err != nil {
		return err
	}

	bearer, ok := session.ExtractBearer(resp.Raw)
	if !ok {
		return model.NewValidationError("register response", "no credential in response")
	}
	return c.creds.Set(bearer)
}

// OAuthURL asks the storefront for the provider's authorization URL.
func (c *Client) OAuthURL(ctx context.Context, provider string) (string, error) {
	resp, err := c.dispatcher.Do(ctx, &model.Request{
		Method: http.MethodGet,
		Path:   pathOAuthURL,
		Query:  map[string]string{"provider": provider},
	})
	if err != nil {
		return "", err
	}
	var out oauthURLResponse
	if err := dispatch.DecodePayload(resp, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// Resume stores a previously issued bearer credential, as when restoring a
// persisted session across processes. The value goes through the same
// sanitization and shape validation as a login credential.
func (c *Client) Resume(bearer string) error {
	return c.creds.Set(bearer)
}

// CompleteOAuth stores the bearer credential delivered by the OAuth
// callback, flipping the authentication signal.
func (c *Client) CompleteOAuth(bearer string) error {
	return c.Resume(bearer)
}

// Bearer exposes the current bearer credential for callers that persist
// sessions across processes, such as the CLI.
func (c *Client) Bearer() (string, bool) {
	return c.creds.Bearer()
}

// Logout tells the storefront to end the session, then clears the bearer
// credential and expires the renewal cookie. The guest ledger is not
// session-scoped and survives logout.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.dispatcher.Do(ctx, &model.Request{
		Method: http.MethodPost,
		Path:   pathLogout,
	})
	// Local state is cleared even if the server call failed; a dead
	// session must not wedge the client into a half-authenticated state.
	c.creds.Clear()
	c.clearRenewalCookie()
	return err
}

// renew performs the single credential-renewal call. It goes straight to
// the transport with the renewal cookie attached, bypassing the
// dispatcher so a 401 here cannot recurse into the coordinator.
func (c *Client) renew(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.origin+pathRenew, nil)
	if err != nil {
		return "", fmt.Errorf("creating renewal request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.renewHTTP.Do(req)
	if err != nil {
		return "", model.NewUnreachableError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", model.NewUnreachableError(err)
	}
	if resp.StatusCode >= 400 {
		return "", model.NewUnauthenticatedError("credential renewal rejected")
	}

	bearer, ok := session.ExtractBearer(body)
	if !ok {
		return "", model.NewValidationError("renewal response", "no credential in response")
	}
	return bearer, nil
}

func (c *Client) clearRenewalCookie() {
	transport.ExpireCookies(c.jar, c.originURL, renewalCookie)
}

// === Cart Operations ===

// Cart returns the uniform cart snapshot: the server-held cart when
// authenticated, the guest ledger otherwise. Callers never branch on
// authentication state.
func (c *Client) Cart(ctx context.Context) (model.CartSnapshot, error) {
	if !c.creds.IsAuthenticated() {
		return c.ledger.Snapshot(ctx)
	}

	c.cacheMu.Lock()
	cached := c.cached
	c.cacheMu.Unlock()
	if cached != nil {
		return *cached, nil
	}
	return c.fetchServerCart(ctx)
}

// AddToCart adds one (product, variant, quantity) with the displayed unit
// price snapshot. Guest adds merge idempotently into the ledger;
// authenticated adds go to the server cart.
func (c *Client) AddToCart(ctx context.Context, productID, variantID string, qty int, unitPrice int64, name, imageURL string) error {
	if !c.creds.IsAuthenticated() {
		return c.ledger.Add(ctx, productID, variantID, qty, unitPrice, name, imageURL)
	}
	return c.AddItem(ctx, productID, variantID, qty)
}

// SetQuantity changes a line's quantity; zero or less removes the line.
func (c *Client) SetQuantity(ctx context.Context, itemID string, qty int) error {
	if !c.creds.IsAuthenticated() {
		return c.ledger.SetQuantity(ctx, itemID, qty)
	}
	if qty <= 0 {
		return c.RemoveItem(ctx, itemID)
	}
	_, err := c.dispatcher.Do(ctx, &model.Request{
		Method: http.MethodPut,
		Path:   pathCartItem + "/" + url.PathEscape(itemID),
		Body:   setQuantityRequest{Quantity: qty},
	})
	if err == nil {
		c.dropCache()
	}
	return err
}

// RemoveItem removes a line from the cart.
func (c *Client) RemoveItem(ctx context.Context, itemID string) error {
	if !c.creds.IsAuthenticated() {
		return c.ledger.Remove(ctx, itemID)
	}
	_, err := c.dispatcher.Do(ctx, &model.Request{
		Method: http.MethodDelete,
		Path:   pathCartItem + "/" + url.PathEscape(itemID),
	})
	if err == nil {
		c.dropCache()
	}
	return err
}

// AddItem issues one authenticated add-item call. Also the replication
// primitive the reconciler drains the guest ledger through.
func (c *Client) AddItem(ctx context.Context, productID, variantID string, qty int) error {
	_, err := c.dispatcher.Do(ctx, &model.Request{
		Method: http.MethodPost,
		Path:   pathCartItem,
		Body:   addItemRequest{ProductID: productID, VariantID: variantID, Quantity: qty},
	})
	if err == nil {
		c.dropCache()
	}
	return err
}

// Invalidate drops the cached authenticated cart and refetches it.
func (c *Client) Invalidate(ctx context.Context) error {
	c.dropCache()
	_, err := c.fetchServerCart(ctx)
	return err
}

func (c *Client) fetchServerCart(ctx context.Context) (model.CartSnapshot, error) {
	resp, err := c.dispatcher.Do(ctx, &model.Request{
		Method: http.MethodGet,
		Path:   pathCart,
	})
	if err != nil {
		return model.CartSnapshot{}, err
	}
	var wc wireCart
	if err := dispatch.DecodePayload(resp, &wc); err != nil {
		return model.CartSnapshot{}, err
	}
	snap := wc.toSnapshot()

	c.cacheMu.Lock()
	c.cached = &snap
	c.cacheMu.Unlock()
	return snap, nil
}

func (c *Client) dropCache() {
	c.cacheMu.Lock()
	c.cached = nil
	c.cacheMu.Unlock()
}

// === Promotions ===

// PreviewPromotions computes the promotion preview for exactly the given
// line item IDs, via the engine's authenticated/guest routing.
func (c *Client) PreviewPromotions(ctx context.Context, itemIDs []string) (*model.PromotionPreview, error) {
	return c.promo.Preview(ctx, itemIDs)
}

// EvaluatePromotions is the remote evaluation the promotion engine
// delegates to when authenticated.
func (c *Client) EvaluatePromotions(ctx context.Context, itemIDs []string) (*model.PromotionPreview, error) {
	if itemIDs == nil {
		itemIDs = []string{}
	}
	resp, err := c.dispatcher.Do(ctx, &model.Request{
		Method: http.MethodPost,
		Path:   pathPreview,
		Body:   previewRequest{ItemIDs: itemIDs},
	})
	if err != nil {
		return nil, err
	}
	var preview model.PromotionPreview
	if err := dispatch.DecodePayload(resp, &preview); err != nil {
		return nil, err
	}
	return &preview, nil
}

// === Catalog ===

// SearchProducts queries the catalog.
func (c *Client) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	req := &model.Request{Method: http.MethodGet, Path: pathProducts}
	if query != "" {
		req.Query = map[string]string{"q": query}
	}
	resp, err := c.dispatcher.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	var products []Product
	if err := dispatch.DecodePayload(resp, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetProduct fetches one catalog entry.
func (c *Client) GetProduct(ctx context.Context, productID string) (*Product, error) {
	resp, err := c.dispatcher.Do(ctx, &model.Request{
		Method: http.MethodGet,
		Path:   pathProducts + "/" + url.PathEscape(productID),
	})
	if err != nil {
		return nil, err
	}
	var p Product
	if err := dispatch.DecodePayload(resp, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// === Checkout ===

// Checkout creates an order from the selected line items and returns the
// opaque payment redirect. Requires authentication; the payment provider
// response shapes are passed through uninterpreted.
func (c *Client) Checkout(ctx context.Context, itemIDs []string) (*CheckoutResult, error) {
	if !c.creds.IsAuthenticated() {
		return nil, model.NewUnauthenticatedError("checkout requires authentication")
	}
	if len(itemIDs) == 0 {
		return nil, model.NewValidationError("item_ids", "at least one item required")
	}
	resp, err := c.dispatcher.Do(ctx, &model.Request{
		Method: http.MethodPost,
		Path:   pathOrders,
		Body:   checkoutRequest{ItemIDs: itemIDs},
	})
	if err != nil {
		return nil, err
	}
	var result CheckoutResult
	if err := dispatch.DecodePayload(resp, &result); err != nil {
		return nil, err
	}
	c.dropCache()
	return &result, nil
}

var (
	_ cart.ServerCart       = (*Client)(nil)
	_ promo.RemoteEvaluator = (*Client)(nil)
)
