package cart

import (
	"context"
	"log/slog"
	"sync"
)

// ServerCart is the authenticated cart the reconciler replicates into.
// Implemented by the storefront client; an interface here so reconciler
// tests can fake the server side.
type ServerCart interface {
	// AddItem issues one authenticated add-item call.
	AddItem(ctx context.Context, productID, variantID string, qty int) error
	// Invalidate refetches the authenticated cart so consumers see the
	// server's authoritative state after the merge.
	Invalidate(ctx context.Context) error
}

// Reconciler drains the guest ledger into the server cart at the moment a
// guest becomes authenticated. Best-effort merge: items are replicated
// sequentially, a failed item is logged and skipped, and the ledger is
// cleared unconditionally afterwards. Losing a guest item on merge failure
// is preferable to blocking login, and clearing exactly once makes
// duplicate guest ledgers impossible.
type Reconciler struct {
	ledger *Ledger
	server ServerCart
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewReconciler creates a reconciler over the given ledger and server cart.
func NewReconciler(ledger *Ledger, server ServerCart, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{ledger: ledger, server: server, logger: logger}
}

// OnAuthChange is the hook wired to the credential store's authentication
// signal. The store only fires on actual false↔true transitions, so the
// merge runs exactly once per unauthenticated→authenticated transition and
// never on logout or on an already-authenticated session refresh.
func (r *Reconciler) OnAuthChange(authenticated bool) {
	if !authenticated {
		return
	}
	if err := r.Run(context.Background()); err != nil {
		r.logger.Error("guest cart reconciliation failed",
			slog.String("error", err.Error()))
	}
}

// Run performs one merge pass. The full ledger snapshot is read before
// anything is mutated; sequential replication keeps per-item failures
// isolated and avoids bursting the cart endpoint.
func (r *Reconciler) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	items, err := r.ledger.List(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	merged, failed := 0, 0
	for _, li := range items {
		if err := r.server.AddItem(ctx, li.ProductID, li.VariantID, li.Quantity); err != nil {
			// Skipped, not aborted: remaining items still replicate.
			failed++
			r.logger.Warn("guest item could not be restored to server cart",
				slog.String("product_id", li.ProductID),
				slog.String("variant_id", li.VariantID),
				slog.Int("quantity", li.Quantity),
				slog.String("error", err.Error()))
			continue
		}
		merged++
	}

	// Cleared even when some replications failed; the transition owns the
	// ledger's destruction exactly once.
	if err := r.ledger.Clear(ctx); err != nil {
		return err
	}

	if err := r.server.Invalidate(ctx); err != nil {
		r.logger.Warn("authenticated cart refetch failed",
			slog.String("error", err.Error()))
	}

	r.logger.Info("guest cart merged",
		slog.Int("merged", merged),
		slog.Int("failed", failed),
		slog.Int("total", len(items)))
	return nil
}
