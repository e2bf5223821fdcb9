// Package model defines the shared data model for the storefront gateway:
// cart snapshots, line items, promotion previews, the transport-neutral
// request/response pair, money helpers, and the error taxonomy.
package model

// LineItemKey derives the deterministic ledger identity for a
// (productID, variantID) pair. Adding the same pair twice must merge into
// one row, so the key must be stable across calls.
// Uses productID alone if no variant, or productID:variantID otherwise.
func LineItemKey(productID, variantID string) string {
	if variantID == "" {
		return productID
	}
	return productID + ":" + variantID
}

// LineItem is a single cart row. Guest rows carry the unit price cached at
// add time; authenticated rows carry the server's current price.
type LineItem struct {
	ID        string `json:"id"` // LineItemKey(ProductID, VariantID)
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"` // minor units
	Name      string `json:"name,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
}

// Subtotal returns quantity times unit price for this row.
func (li LineItem) Subtotal() int64 {
	return int64(li.Quantity) * li.UnitPrice
}

// Promotion describes a promotion the server applied to a preview.
// The rule evaluation itself is owned server-side; this is display data.
type Promotion struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Amount      int64  `json:"amount"` // discount contribution, minor units
}

// GiftItem is a promotional entitlement granted alongside a purchase.
type GiftItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
}

// CartSnapshot is the uniform cart shape consumed by collaborators
// regardless of authentication state. Guest snapshots always carry zero
// discount and empty promotion/gift lists.
type CartSnapshot struct {
	Items          []LineItem  `json:"items"`
	TotalAmount    int64       `json:"total_amount"`
	DiscountAmount int64       `json:"discount_amount"`
	FinalAmount    int64       `json:"final_amount"`
	Promotions     []Promotion `json:"applied_promotions"`
	GiftItems      []GiftItem  `json:"gift_items"`
}

// NewCartSnapshot builds a snapshot enforcing the invariant
// FinalAmount = TotalAmount - DiscountAmount. Callers must not construct
// snapshots with an independently supplied final amount.
func NewCartSnapshot(items []LineItem, total, discount int64, promos []Promotion, gifts []GiftItem) CartSnapshot {
	if items == nil {
		items = []LineItem{}
	}
	if promos == nil {
		promos = []Promotion{}
	}
	if gifts == nil {
		gifts = []GiftItem{}
	}
	return CartSnapshot{
		Items:          items,
		TotalAmount:    total,
		DiscountAmount: discount,
		FinalAmount:    total - discount,
		Promotions:     promos,
		GiftItems:      gifts,
	}
}

// GuestSnapshot builds a snapshot from guest ledger rows. No authenticated
// evaluation is available, so discount is zero and promotion/gift lists are
// empty. Documented approximation, not a bug.
func GuestSnapshot(items []LineItem) CartSnapshot {
	var total int64
	for _, li := range items {
		total += li.Subtotal()
	}
	return NewCartSnapshot(items, total, 0, nil, nil)
}

// PromotionPreview is the result of evaluating promotions over a
// caller-supplied subset of line item IDs. Items outside the subset must
// never contribute to any amount in here.
type PromotionPreview struct {
	Subtotal       int64       `json:"subtotal"`
	DiscountAmount int64       `json:"discount_amount"`
	FinalAmount    int64       `json:"final_amount"`
	Promotions     []Promotion `json:"applied_promotions"`
	GiftItems      []GiftItem  `json:"gift_items"`
}
