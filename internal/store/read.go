package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/billsync/internal/ir"
)

// ProductsWithPurchases returns every cached product, except the hidden one,
// joined with its purchases.
// Products are ordered by product_id; purchases by purchase_time, then token.
//
// Returns an empty slice (not nil) if the cache holds no products.
func (s *Store) ProductsWithPurchases(ctx context.Context) ([]ir.ProductWithPurchases, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.product_id, p.kind, p.price, p.descriptor,
		       u.purchase_token, u.order_id, u.purchase_time
		FROM products p
		LEFT JOIN purchases u ON u.product_id = p.product_id
		WHERE p.product_id != ?
		ORDER BY p.product_id COLLATE BINARY ASC,
		         u.purchase_time ASC,
		         u.purchase_token COLLATE BINARY ASC
	`, s.hidden)
	if err != nil {
		return nil, fmt.Errorf("query products with purchases: %w", err)
	}
	defer rows.Close()

	views := []ir.ProductWithPurchases{}
	for rows.Next() {
		var (
			product  ir.Product
			kind     string
			token    sql.NullString
			orderID  sql.NullString
			purchase sql.NullInt64
		)
		if err := rows.Scan(&product.ID, &kind, &product.Price, &product.Descriptor,
			&token, &orderID, &purchase); err != nil {
			return nil, fmt.Errorf("scan product with purchases: %w", err)
		}
		if product.Kind, err = ir.ParseProductKind(kind); err != nil {
			return nil, fmt.Errorf("scan product %s: %w", product.ID, err)
		}

		if n := len(views); n == 0 || views[n-1].Product.ID != product.ID {
			views = append(views, ir.ProductWithPurchases{
				Product:   product,
				Purchases: []ir.Purchase{},
			})
		}

		if token.Valid {
			last := &views[len(views)-1]
			last.Purchases = append(last.Purchases, ir.Purchase{
				Token:        token.String,
				ProductID:    product.ID,
				OrderID:      orderID.String,
				PurchaseTime: purchase.Int64,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products with purchases: %w", err)
	}

	return views, nil
}

// Product retrieves a single product by id.
// The boolean is false if the product is not cached.
func (s *Store) Product(ctx context.Context, id string) (ir.Product, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT product_id, kind, price, descriptor
		FROM products
		WHERE product_id = ?
	`, id)

	var (
		p    ir.Product
		kind string
	)
	err := row.Scan(&p.ID, &kind, &p.Price, &p.Descriptor)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Product{}, false, nil
	}
	if err != nil {
		return ir.Product{}, false, fmt.Errorf("query product %s: %w", id, err)
	}
	if p.Kind, err = ir.ParseProductKind(kind); err != nil {
		return ir.Product{}, false, fmt.Errorf("query product %s: %w", id, err)
	}
	return p, true, nil
}

// HasPurchase reports whether at least one purchase is cached for productID.
func (s *Store) HasPurchase(ctx context.Context, productID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM purchases WHERE product_id = ?)
	`, productID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query has purchase %s: %w", productID, err)
	}
	return exists, nil
}

// Products returns every cached product, hidden one included, ordered by id.
func (s *Store) Products(ctx context.Context) ([]ir.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, kind, price, descriptor
		FROM products
		ORDER BY product_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := []ir.Product{}
	for rows.Next() {
		var (
			p    ir.Product
			kind string
		)
		if err := rows.Scan(&p.ID, &kind, &p.Price, &p.Descriptor); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if p.Kind, err = ir.ParseProductKind(kind); err != nil {
			return nil, fmt.Errorf("scan product %s: %w", p.ID, err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

// Purchases returns every cached purchase ordered by token.
func (s *Store) Purchases(ctx context.Context) ([]ir.Purchase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT purchase_token, product_id, order_id, purchase_time
		FROM purchases
		ORDER BY purchase_token COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query purchases: %w", err)
	}
	defer rows.Close()

	purchases := []ir.Purchase{}
	for rows.Next() {
		var (
			p       ir.Purchase
			orderID sql.NullString
		)
		if err := rows.Scan(&p.Token, &p.ProductID, &orderID, &p.PurchaseTime); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		p.OrderID = orderID.String
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchases: %w", err)
	}
	return purchases, nil
}
