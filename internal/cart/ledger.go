// Package cart holds the locally persisted guest cart ledger and the
// reconciler that drains it into the server-held cart when a guest
// becomes authenticated.
package cart

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"shopagent/internal/model"
)

// Ledger is the guest cart: pure local state, no network calls. Every
// mutation persists synchronously so a process restart does not lose the
// cart. Row identity is the deterministic model.LineItemKey of the
// (product, variant) pair, which makes repeated add-to-cart calls on the
// same variant merge into one row.
type Ledger struct {
	db *sql.DB
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS guest_cart_items (
	id         TEXT PRIMARY KEY,
	product_id TEXT NOT NULL,
	variant_id TEXT NOT NULL DEFAULT '',
	quantity   INTEGER NOT NULL,
	unit_price INTEGER NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	image_url  TEXT NOT NULL DEFAULT '',
	added_at   INTEGER NOT NULL
);
`

// OpenLedger opens (creating if needed) the guest ledger database.
func OpenLedger(path string) (*Ledger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("ledger path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping ledger db: %w", err)
	}
	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close releases the underlying database.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Add inserts a line item or, when the (product, variant) pair already
// exists, increments its quantity in place. The unit price and display
// metadata cached at first add are kept; only the quantity merges.
func (l *Ledger) Add(ctx context.Context, productID, variantID string, qty int, unitPrice int64, name, imageURL string) error {
	if productID == "" {
		return model.NewValidationError("product_id", "required")
	}
	if qty <= 0 {
		return model.NewValidationError("quantity", "must be positive")
	}

	id := model.LineItemKey(productID, variantID)
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO guest_cart_items (id, product_id, variant_id, quantity, unit_price, name, image_url, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET quantity = quantity + excluded.quantity`,
		id, productID, variantID, qty, unitPrice, name, imageURL, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("adding ledger item: %w", err)
	}
	return nil
}

// SetQuantity replaces an item's quantity. A value of zero or less is
// equivalent to Remove.
func (l *Ledger) SetQuantity(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return l.Remove(ctx, id)
	}
	_, err := l.db.ExecContext(ctx,
		`UPDATE guest_cart_items SET quantity = ? WHERE id = ?`, qty, id)
	if err != nil {
		return fmt.Errorf("updating ledger quantity: %w", err)
	}
	return nil
}

// Remove deletes an item by its deterministic id.
func (l *Ledger) Remove(ctx context.Context, id string) error {
	_, err := l.db.ExecContext(ctx,
		`DELETE FROM guest_cart_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("removing ledger item: %w", err)
	}
	return nil
}

// Clear empties the ledger.
func (l *Ledger) Clear(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM guest_cart_items`)
	if err != nil {
		return fmt.Errorf("clearing ledger: %w", err)
	}
	return nil
}

// List returns all ledger rows in add order.
func (l *Ledger) List(ctx context.Context) ([]model.LineItem, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, product_id, variant_id, quantity, unit_price, name, image_url
		FROM guest_cart_items ORDER BY added_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing ledger items: %w", err)
	}
	defer rows.Close()

	var items []model.LineItem
	for rows.Next() {
		var li model.LineItem
		if err := rows.Scan(&li.ID, &li.ProductID, &li.VariantID, &li.Quantity, &li.UnitPrice, &li.Name, &li.ImageURL); err != nil {
			return nil, fmt.Errorf("scanning ledger item: %w", err)
		}
		items = append(items, li)
	}
	return items, rows.Err()
}

// Subtotal returns the sum of quantity times cached unit price across the
// whole ledger.
func (l *Ledger) Subtotal(ctx context.Context) (int64, error) {
	items, err := l.List(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, li := range items {
		total += li.Subtotal()
	}
	return total, nil
}

// Snapshot returns the guest cart in the uniform snapshot shape: zero
// discount and empty promotion/gift lists, final amount equal to subtotal.
func (l *Ledger) Snapshot(ctx context.Context) (model.CartSnapshot, error) {
	items, err := l.List(ctx)
	if err != nil {
		return model.CartSnapshot{}, err
	}
	return model.GuestSnapshot(items), nil
}
