package promo

import (
	"context"
	"errors"
	"testing"

	"shopagent/internal/model"
)

type fakeRemote struct {
	result *model.PromotionPreview
	err    error
	gotIDs []string
	calls  int
}

func (f *fakeRemote) EvaluatePromotions(ctx context.Context, itemIDs []string) (*model.PromotionPreview, error) {
	f.calls++
	f.gotIDs = itemIDs
	return f.result, f.err
}

type staticAuth bool

func (a staticAuth) IsAuthenticated() bool { return bool(a) }

type staticItems []model.LineItem

func (s staticItems) List(ctx context.Context) ([]model.LineItem, error) { return s, nil }

var twoItemCart = staticItems{
	{ID: "7", ProductID: "7", Quantity: 1, UnitPrice: 100000},
	{ID: "7:red", ProductID: "7", VariantID: "red", Quantity: 2, UnitPrice: 120000},
}

func TestGuestPreviewSubsetIsolation(t *testing.T) {
	remote := &fakeRemote{}
	e := NewEngine(remote, staticAuth(false), twoItemCart, nil)

	// Only the requested id contributes; the other cart line must not leak
	// into the subtotal.
	preview, err := e.Preview(context.Background(), []string{"7"})
	if err != nil {
		t.Fatalf("Preview() = %v", err)
	}

	if got, want := preview.Subtotal, int64(100000); got != want {
		t.Errorf("Subtotal = %d, want %d (id 7 only)", got, want)
	}
	if preview.DiscountAmount != 0 {
		t.Errorf("DiscountAmount = %d, want 0 for guests", preview.DiscountAmount)
	}
	if preview.FinalAmount != preview.Subtotal {
		t.Errorf("FinalAmount = %d, want equal to subtotal", preview.FinalAmount)
	}
	if remote.calls != 0 {
		t.Errorf("remote evaluated %d times for a guest, want 0", remote.calls)
	}
}

func TestGuestPreviewFullSubset(t *testing.T) {
	e := NewEngine(&fakeRemote{}, staticAuth(false), twoItemCart, nil)

	preview, err := e.Preview(context.Background(), []string{"7", "7:red"})
	if err != nil {
		t.Fatalf("Preview() = %v", err)
	}
	if got, want := preview.Subtotal, int64(340000); got != want {
		t.Errorf("Subtotal = %d, want %d", got, want)
	}
	if preview.Promotions == nil || preview.GiftItems == nil {
		t.Error("preview slices must never be nil")
	}
}

func TestGuestPreviewUnknownIDsContributeNothing(t *testing.T) {
	e := NewEngine(&fakeRemote{}, staticAuth(false), twoItemCart, nil)

	preview, err := e.Preview(context.Background(), []string{"does-not-exist"})
	if err != nil {
		t.Fatalf("Preview() = %v", err)
	}
	if preview.Subtotal != 0 {
		t.Errorf("Subtotal = %d for unknown id, want 0", preview.Subtotal)
	}
}

func TestAuthenticatedPreviewDelegatesToRemote(t *testing.T) {
	remote := &fakeRemote{
		result: &model.PromotionPreview{
			Subtotal:       340000,
			DiscountAmount: 40000,
			FinalAmount:    300000,
			Promotions:     []model.Promotion{{ID: "SPRING", Amount: 40000}},
		},
	}
	e := NewEngine(remote, staticAuth(true), twoItemCart, nil)

	preview, err := e.Preview(context.Background(), []string{"7", "7:red"})
	if err != nil {
		t.Fatalf("Preview() = %v", err)
	}
	if remote.calls != 1 {
		t.Fatalf("remote evaluated %d times, want 1", remote.calls)
	}
	if len(remote.gotIDs) != 2 {
		t.Errorf("remote got %d ids, want the exact subset of 2", len(remote.gotIDs))
	}
	if preview.FinalAmount != 300000 {
		t.Errorf("FinalAmount = %d, want 300000", preview.FinalAmount)
	}
	if len(preview.Promotions) != 1 {
		t.Errorf("got %d promotions, want 1", len(preview.Promotions))
	}
}

func TestAuthenticatedPreviewRecomputesViolatedInvariant(t *testing.T) {
	remote := &fakeRemote{
		result: &model.PromotionPreview{
			Subtotal:       100000,
			DiscountAmount: 10000,
			FinalAmount:    95000, // server bug: does not equal subtotal - discount
		},
	}
	e := NewEngine(remote, staticAuth(true), nil, nil)

	preview, err := e.Preview(context.Background(), []string{"7"})
	if err != nil {
		t.Fatalf("Preview() = %v", err)
	}
	if got, want := preview.FinalAmount, int64(90000); got != want {
		t.Errorf("FinalAmount = %d, want recomputed %d", got, want)
	}
	if preview.Promotions == nil || preview.GiftItems == nil {
		t.Error("nil slices from the remote must be filled")
	}
}

func TestAuthenticatedPreviewPropagatesRemoteError(t *testing.T) {
	remoteErr := errors.New("evaluation unavailable")
	e := NewEngine(&fakeRemote{err: remoteErr}, staticAuth(true), nil, nil)

	_, err := e.Preview(context.Background(), []string{"7"})
	if !errors.Is(err, remoteErr) {
		t.Errorf("error = %v, want the remote error", err)
	}
}
