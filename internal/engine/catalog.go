package engine

import (
	"sort"

	"github.com/roach88/billsync/internal/billing"
	"github.com/roach88/billsync/internal/ir"
)

// FetchCatalog queries product details for the subscription family, then
// the one-time family, and persists the merged result. A duplicate id keeps
// the later family's details. A failed family is skipped.
func (e *Engine) FetchCatalog() {
	merged := make(map[string]ir.Product)

	e.queryDetails(ir.KindSubscription, e.catalog.Subscription, merged, func() {
		e.queryDetails(ir.KindOneTime, e.catalog.OneTime, merged, func() {
			if len(merged) == 0 {
				e.logger.Warn("catalog unavailable: no product details returned")
				return
			}
			products := make([]ir.Product, 0, len(merged))
			for _, p := range merged {
				products = append(products, p)
			}
			sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
			e.persistProducts(products)
		})
	})
}

// queryDetails runs one family query and calls next when it completes.
// The chain is sequential, so merged is only touched by one callback at a
// time.
func (e *Engine) queryDetails(family ir.ProductKind, ids []string, merged map[string]ir.Product, next func()) {
	if len(ids) == 0 {
		next()
		return
	}

	e.ExecuteWhenReady(func() {
		e.client.QueryProductDetails(family, ids, func(res billing.Result, details []billing.ProductDetails) {
			if !res.IsOK() {
				e.handleResult("query product details", res)
			} else {
				for _, d := range details {
					p := d.Product()
					p.Kind = family
					merged[p.ID] = p
				}
				e.logger.Debug("product details received", "family", string(family), "count", len(details))
			}
			next()
		})
	})
}
