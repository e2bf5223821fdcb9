package storefront

import (
	"encoding/json"
	"strings"

	"shopagent/internal/model"
)

// Wire types for the storefront REST API. Envelope handling lives in the
// dispatcher; these are the payload shapes after unwrapping.

// wireAmount decodes a price field that arrives as a JSON number, a
// minor-unit string ("8900"), or a decimal major-unit string ("89.00").
// Older storefront deployments serialize all amounts as strings; the
// current API sends numbers.
type wireAmount int64

func (a *wireAmount) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if strings.Contains(s, ".") {
			*a = wireAmount(model.ParseCents(s))
		} else {
			*a = wireAmount(model.ParseMinorUnits(s))
		}
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = wireAmount(n)
	return nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type oauthURLResponse struct {
	URL string `json:"url"`
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type wireCartItem struct {
	ID        string     `json:"id"`
	ProductID string     `json:"product_id"`
	VariantID string     `json:"variant_id"`
	Quantity  int        `json:"quantity"`
	UnitPrice wireAmount `json:"unit_price"`
	Name      string     `json:"name"`
	ImageURL  string     `json:"image_url"`
}

type wireCart struct {
	Items          []wireCartItem    `json:"items"`
	TotalAmount    wireAmount        `json:"total_amount"`
	DiscountAmount wireAmount        `json:"discount_amount"`
	Promotions     []model.Promotion `json:"applied_promotions"`
	GiftItems      []model.GiftItem  `json:"gift_items"`
}

func (w *wireCart) toSnapshot() model.CartSnapshot {
	items := make([]model.LineItem, len(w.Items))
	for i, it := range w.Items {
		items[i] = model.LineItem{
			ID:        it.ID,
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			UnitPrice: int64(it.UnitPrice),
			Name:      it.Name,
			ImageURL:  it.ImageURL,
		}
	}
	// Server totals pass through the invariant-enforcing constructor; the
	// final amount is always recomputed as total minus discount.
	return model.NewCartSnapshot(items, int64(w.TotalAmount), int64(w.DiscountAmount), w.Promotions, w.GiftItems)
}

type previewRequest struct {
	ItemIDs []string `json:"item_ids"`
}

// Product is a catalog entry as returned by the storefront.
type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    int64           `json:"price"`
	ImageURL string          `json:"image_url,omitempty"`
	Variants []ProductOption `json:"variants,omitempty"`
}

// ProductOption is a purchasable variant of a product.
type ProductOption struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type checkoutRequest struct {
	ItemIDs []string `json:"item_ids"`
}

// CheckoutResult carries the created order reference and the opaque
// payment redirect returned by the payment collaborator. The gateway does
// not interpret provider-specific shapes.
type CheckoutResult struct {
	OrderID            string         `json:"order_id"`
	PaymentRedirectURL string         `json:"payment_redirect_url,omitempty"`
	PaymentData        map[string]any `json:"payment_data,omitempty"`
}
