package engine

import (
	"github.com/roach88/billsync/internal/billing"
	"github.com/roach88/billsync/internal/ir"
)

// ImportHistory imports the purchase history of the one-time family, then
// of the subscription family when supported, as purchase records without an
// order id. A failed query stops the chain; records gathered so far are
// still persisted.
func (e *Engine) ImportHistory() {
	var records []ir.Purchase

	finish := func() {
		e.persistPurchases(e.logger.With("source", "history"), records)
	}

	e.queryHistory(ir.KindOneTime, &records, func(ok bool) {
		if !ok || !e.subscriptionsSupported() {
			finish()
			return
		}
		e.queryHistory(ir.KindSubscription, &records, func(bool) {
			finish()
		})
	})
}

func (e *Engine) queryHistory(family ir.ProductKind, records *[]ir.Purchase, next func(ok bool)) {
	e.ExecuteWhenReady(func() {
		e.client.QueryPurchaseHistory(family, func(res billing.Result, history []billing.HistoryRecord) {
			if !res.IsOK() {
				e.handleResult("query purchase history", res)
				next(false)
				return
			}
			for _, h := range history {
				*records = append(*records, h.Record())
			}
			e.logger.Debug("purchase history received", "family", string(family), "count", len(history))
			next(true)
		})
	})
}
