// Package promo computes promotion previews over a caller-supplied subset
// of cart line items. Promotion rule evaluation is owned server-side; this
// engine only routes between the remote evaluation (authenticated) and a
// local best-effort approximation (guest).
package promo

import (
	"context"
	"log/slog"

	"shopagent/internal/model"
)

// RemoteEvaluator performs the authenticated promotion evaluation scoped
// to exactly the supplied line item IDs. Implemented by the storefront
// client.
type RemoteEvaluator interface {
	EvaluatePromotions(ctx context.Context, itemIDs []string) (*model.PromotionPreview, error)
}

// AuthState exposes the authentication signal. Satisfied by session.Store.
type AuthState interface {
	IsAuthenticated() bool
}

// GuestItems lists the guest ledger rows. Satisfied by cart.Ledger.
type GuestItems interface {
	List(ctx context.Context) ([]model.LineItem, error)
}

// Engine routes preview requests. Checkout UIs call Preview whenever the
// displayed line-item subset changes ("checkout only selected items"), so
// the result must never include amounts from items outside the subset.
type Engine struct {
	remote RemoteEvaluator
	auth   AuthState
	guest  GuestItems
	logger *slog.Logger
}

// NewEngine creates a preview engine.
func NewEngine(remote RemoteEvaluator, auth AuthState, guest GuestItems, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{remote: remote, auth: auth, guest: guest, logger: logger}
}

// Preview computes subtotal, discount, final amount, and gift entitlements
// for exactly the given line item IDs.
//
// Authenticated: the remote evaluation is the source of truth for
// discounts and gifts. Guest: no evaluation is available, so the result is
// the subset subtotal with zero discount and empty lists. Guests never see
// discounts until authenticated; that is the documented approximation, not
// a bug.
func (e *Engine) Preview(ctx context.Context, itemIDs []string) (*model.PromotionPreview, error) {
	if e.auth.IsAuthenticated() {
		preview, err := e.remote.EvaluatePromotions(ctx, itemIDs)
		if err != nil {
			return nil, err
		}
		return normalize(preview, e.logger), nil
	}
	return e.guestPreview(ctx, itemIDs)
}

// guestPreview sums the subset's line subtotals from the ledger. Items not
// named in itemIDs are excluded even if present in the ledger.
func (e *Engine) guestPreview(ctx context.Context, itemIDs []string) (*model.PromotionPreview, error) {
	items, err := e.guest.List(ctx)
	if err != nil {
		return nil, err
	}

	selected := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		selected[id] = true
	}

	var subtotal int64
	for _, li := range items {
		if selected[li.ID] {
			subtotal += li.Subtotal()
		}
	}

	return &model.PromotionPreview{
		Subtotal:       subtotal,
		DiscountAmount: 0,
		FinalAmount:    subtotal,
		Promotions:     []model.Promotion{},
		GiftItems:      []model.GiftItem{},
	}, nil
}

// normalize enforces FinalAmount = Subtotal - DiscountAmount on remote
// results and fills nil slices so consumers never branch on absence.
func normalize(p *model.PromotionPreview, logger *slog.Logger) *model.PromotionPreview {
	want := p.Subtotal - p.DiscountAmount
	if p.FinalAmount != want {
		logger.Warn("remote preview violated amount invariant, recomputing",
			slog.Int64("subtotal", p.Subtotal),
			slog.Int64("discount", p.DiscountAmount),
			slog.Int64("final", p.FinalAmount))
		p.FinalAmount = want
	}
	if p.Promotions == nil {
		p.Promotions = []model.Promotion{}
	}
	if p.GiftItems == nil {
		p.GiftItems = []model.GiftItem{}
	}
	return p
}
