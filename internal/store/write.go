package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/billsync/internal/ir"
)

// UpsertProducts writes product metadata, replacing any row with the same
// product id. The whole batch commits atomically.
func (s *Store) UpsertProducts(ctx context.Context, products []ir.Product) error {
	if len(products) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert products: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO products (product_id, kind, price, descriptor)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(product_id) DO UPDATE SET
			kind = excluded.kind,
			price = excluded.price,
			descriptor = excluded.descriptor
	`)
	if err != nil {
		return fmt.Errorf("upsert products: prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range products {
		if p.ID == "" {
			return fmt.Errorf("upsert products: empty product id")
		}
		if !p.Kind.Valid() {
			return fmt.Errorf("upsert products: %s: unknown kind %q", p.ID, p.Kind)
		}
		if _, err := stmt.ExecContext(ctx, p.ID, string(p.Kind), p.Price, p.Descriptor); err != nil {
			return fmt.Errorf("upsert products: %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("upsert products: commit: %w", err)
	}

	s.notify()
	return nil
}

// UpsertPurchases writes purchase records keyed by purchase token. Writing
// an existing token replaces the row, never duplicates it. An empty order
// id is stored as NULL.
func (s *Store) UpsertPurchases(ctx context.Context, purchases []ir.Purchase) error {
	if len(purchases) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert purchases: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO purchases (purchase_token, product_id, order_id, purchase_time)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(purchase_token) DO UPDATE SET
			product_id = excluded.product_id,
			order_id = excluded.order_id,
			purchase_time = excluded.purchase_time
	`)
	if err != nil {
		return fmt.Errorf("upsert purchases: prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range purchases {
		if p.Token == "" {
			return fmt.Errorf("upsert purchases: empty purchase token")
		}
		orderID := sql.NullString{String: p.OrderID, Valid: p.OrderID != ""}
		if _, err := stmt.ExecContext(ctx, p.Token, p.ProductID, orderID, p.PurchaseTime); err != nil {
			return fmt.Errorf("upsert purchases: %s: %w", p.Token, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("upsert purchases: commit: %w", err)
	}

	s.notify()
	return nil
}
