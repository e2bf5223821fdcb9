package storefront

import (
	"encoding/json"
	"testing"
)

func TestWireCartDecodesStringAmounts(t *testing.T) {
	body := `{
		"items": [
			{"id": "7:", "product_id": "7", "quantity": 1, "unit_price": "1000.00"},
			{"id": "7:red", "product_id": "7", "variant_id": "red", "quantity": 2, "unit_price": "120000"}
		],
		"total_amount": "340000",
		"discount_amount": 40000
	}`

	var w wireCart
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		t.Fatalf("Unmarshal() = %v", err)
	}
	snap := w.toSnapshot()

	if got := snap.Items[0].UnitPrice; got != 100000 {
		t.Errorf("decimal string unit price = %d, want 100000", got)
	}
	if got := snap.Items[1].UnitPrice; got != 120000 {
		t.Errorf("minor-unit string price = %d, want 120000", got)
	}
	if snap.TotalAmount != 340000 {
		t.Errorf("TotalAmount = %d, want 340000", snap.TotalAmount)
	}
	if snap.DiscountAmount != 40000 {
		t.Errorf("DiscountAmount = %d, want 40000", snap.DiscountAmount)
	}
	if snap.FinalAmount != 300000 {
		t.Errorf("FinalAmount = %d, want 300000", snap.FinalAmount)
	}
}
