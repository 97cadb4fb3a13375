package ir

import "fmt"

// ProductKind classifies a product by how it is sold.
// It doubles as the product family used when querying the billing service.
type ProductKind string

const (
	// KindOneTime is a product bought once, or repeatedly when consumable.
	KindOneTime ProductKind = "one_time"

	// KindSubscription is a recurring entitlement.
	KindSubscription ProductKind = "subscription"
)

// Valid reports whether k is a known product kind.
func (k ProductKind) Valid() bool {
	return k == KindOneTime || k == KindSubscription
}

// ParseProductKind converts a stored kind string back to a ProductKind.
func ParseProductKind(s string) (ProductKind, error) {
	k := ProductKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown product kind %q", s)
	}
	return k, nil
}

// Product is the cached metadata for one sellable product.
//
// ID is globally unique in the cache; the latest write wins.
type Product struct {
	ID   string      `json:"product_id"`
	Kind ProductKind `json:"kind"`

	// Price is the provider-formatted display price. Opaque.
	Price string `json:"price"`

	// Descriptor is the raw provider-issued product descriptor, kept verbatim
	// so a purchase flow can be launched later without another catalog query.
	Descriptor string `json:"descriptor"`
}

// Purchase is one cached purchase transaction.
//
// Token is the durable dedup key: writing a purchase whose token already
// exists replaces the stored row.
type Purchase struct {
	Token     string `json:"purchase_token"`
	ProductID string `json:"product_id"`

	// OrderID is empty for records imported from purchase history.
	OrderID string `json:"order_id,omitempty"`

	// PurchaseTime is epoch milliseconds.
	PurchaseTime int64 `json:"purchase_time"`
}

// ProductWithPurchases joins one product with every cached purchase of it.
// It is derived on read and never persisted.
type ProductWithPurchases struct {
	Product   Product    `json:"product"`
	Purchases []Purchase `json:"purchases"`
}

// Owned reports whether at least one purchase is recorded for the product.
func (p ProductWithPurchases) Owned() bool {
	return len(p.Purchases) > 0
}
