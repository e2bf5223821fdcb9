package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"shopagent/internal/model"
)

// RenewFunc performs the credential-renewal call itself. It must go
// straight to the transport with the renewal cookie attached, bypassing
// the dispatcher, so a 401 from the renewal endpoint cannot recurse back
// into the coordinator. Returns the raw (unsanitized) bearer value.
type RenewFunc func(ctx context.Context) (string, error)

// ReplayFunc re-dispatches an original request from the top of the
// dispatcher, new credential attached. The request's retried-once flag is
// already set, so a second 401 is terminal.
type ReplayFunc func(ctx context.Context, req *model.Request) (*model.Response, error)

// Navigator abstracts the consumer's notion of "where the user is" and
// "go to the login entry point". The gateway's CLI and MCP surfaces plug
// in trivial implementations; a browser shell would plug in its router.
type Navigator interface {
	Current() string
	ToLogin()
}

// Coordinator guarantees at most one in-flight renewal per credential
// lifetime. Concurrent 401s park as waiters and are replayed, in arrival
// order, once the single renewal settles. There is no ambient state: the
// in-flight flag and FIFO queue live behind one mutex inside this object.
type Coordinator struct {
	mu       sync.Mutex
	renewing bool
	queue    []*waiter

	store        *Store
	renew        RenewFunc
	replay       ReplayFunc
	nav          Navigator
	clearrenewal func() // expires the renewal cookie
	publicRoutes map[string]bool
	logger       *slog.Logger
}

type waiter struct {
	ctx context.Context
	req *model.Request
	ch  chan replayResult
}

type replayResult struct {
	resp *model.Response
	err  error
}

// CoordinatorConfig wires a Coordinator's collaborators.
type CoordinatorConfig struct {
	Store              *Store
	Renew              RenewFunc
	Replay             ReplayFunc
	Navigator          Navigator
	ClearRenewalCookie func()
	PublicRoutes       []string // routes that tolerate anonymous access
	Logger             *slog.Logger
}

// NewCoordinator creates a renewal coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	routes := make(map[string]bool, len(cfg.PublicRoutes))
	for _, r := range cfg.PublicRoutes {
		routes[r] = true
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clear := cfg.ClearRenewalCookie
	if clear == nil {
		clear = func() {}
	}
	return &Coordinator{
		store:        cfg.Store,
		renew:        cfg.Renew,
		replay:       cfg.Replay,
		nav:          cfg.Navigator,
		clearrenewal: clear,
		publicRoutes: routes,
		logger:       logger,
	}
}

// HandleUnauthenticated is the single entry point for 401 recovery.
//
// The first caller for a credential lifetime becomes the leader: it marks
// its request retried-once, starts the one renewal call, and on success
// replays every parked request in queue order, each replay going back
// through the dispatcher from the top. Later callers arriving while the
// renewal is in flight park and wait; they never start a second renewal.
//
// A request that already carries the retried-once flag is surfaced as a
// terminal authentication failure, never re-queued.
func (c *Coordinator) HandleUnauthenticated(ctx context.Context, req *model.Request) (*model.Response, error) {
	if req.Retried() {
		return nil, model.NewUnauthenticatedError("request failed again after credential renewal")
	}
	req.MarkRetried()

	w := &waiter{ctx: ctx, req: req, ch: make(chan replayResult, 1)}

	c.mu.Lock()
	c.queue = append(c.queue, w)
	if c.renewing {
		// A renewal is already in flight; park and wait for its outcome.
		c.mu.Unlock()
		return c.wait(ctx, w)
	}
	c.renewing = true
	c.mu.Unlock()

	c.lead(ctx)
	return c.wait(ctx, w)
}

// lead runs the single renewal call and settles every parked waiter.
func (c *Coordinator) lead(ctx context.Context) {
	raw, err := c.renew(ctx)

	// Settle coordinator state before persisting. Set fires auth
	// subscribers synchronously, and a subscriber may issue protected
	// calls whose 401s come straight back into HandleUnauthenticated;
	// that re-entry has to start a fresh cycle, not park behind a flag
	// this goroutine is still holding.
	c.mu.Lock()
	parked := c.queue
	c.queue = nil
	c.renewing = false
	c.mu.Unlock()

	if err == nil {
		// Persist through the store so the new value is sanitized and
		// shape-checked exactly like a login credential.
		err = c.store.Set(raw)
	}

	if err != nil {
		c.failAll(parked, err)
		return
	}

	c.logger.Info("credential renewed, replaying parked requests",
		slog.Int("parked", len(parked)))

	for _, w := range parked {
		resp, rerr := c.replay(w.ctx, w.req)
		w.ch <- replayResult{resp: resp, err: rerr}
	}
}

// failAll rejects every parked request with the renewal error, purges the
// credential store, expires the renewal cookie, and sends the user to the
// login entry point unless the current route already tolerates anonymous
// access (prevents redirect loops on public pages).
func (c *Coordinator) failAll(parked []*waiter, renewErr error) {
	c.logger.Warn("credential renewal failed",
		slog.Int("rejected", len(parked)),
		slog.String("error", renewErr.Error()))

	c.store.Clear()
	c.clearrenewal()

	if c.nav != nil && !c.publicRoutes[c.nav.Current()] {
		c.nav.ToLogin()
	}

	for _, w := range parked {
		w.ch <- replayResult{err: renewErr}
	}
}

func (c *Coordinator) wait(ctx context.Context, w *waiter) (*model.Response, error) {
	select {
	case res := <-w.ch:
		return res.resp, res.err
	case <-ctx.Done():
		// The result channel is buffered, so the leader never blocks on
		// an abandoned waiter.
		return nil, ctx.Err()
	}
}

// ExtractBearer pulls the new bearer value out of a renewal response body.
// Two shapes are observed in the wild and only these two are tried, in
// fixed order: the token at the top level, or nested one level under the
// payload envelope.
//
//	{"token": "..."}
//	{"code": 0, "data": {"token": "..."}}
func ExtractBearer(body []byte) (string, bool) {
	var top struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &top); err == nil && top.Token != "" {
		return top.Token, true
	}

	var nested struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &nested); err == nil && nested.Data.Token != "" {
		return nested.Data.Token, true
	}

	return "", false
}
