package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Domain prefixes for content digests.
// Version suffix enables future algorithm migration.
const (
	DomainPurchaseSet = "billsync/purchase-set/v1"
	DomainDescriptor  = "billsync/descriptor/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalMap returns the purchase as a map suitable for MarshalCanonical.
// An absent order id is omitted rather than encoded as null.
func (p Purchase) CanonicalMap() map[string]any {
	m := map[string]any{
		"purchase_token": p.Token,
		"product_id":     p.ProductID,
		"purchase_time":  p.PurchaseTime,
	}
	if p.OrderID != "" {
		m["order_id"] = p.OrderID
	}
	return m
}

// PurchaseSetDigest returns a stable digest of a set of purchases.
// Input order does not matter; entries are sorted by token first.
func PurchaseSetDigest(purchases []Purchase) (string, error) {
	sorted := make([]Purchase, len(purchases))
	copy(sorted, purchases)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Token < sorted[j].Token })

	list := make([]any, len(sorted))
	for i, p := range sorted {
		list[i] = p.CanonicalMap()
	}
	data, err := MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("PurchaseSetDigest: %w", err)
	}
	return hashWithDomain(DomainPurchaseSet, data), nil
}

// DescriptorHash returns a short content hash of a product descriptor,
// used to log which descriptor version launched a purchase flow.
func DescriptorHash(descriptor string) string {
	return hashWithDomain(DomainDescriptor, []byte(descriptor))[:16]
}
