package engine

import (
	"log/slog"
	"sync/atomic"

	"github.com/roach88/billsync/internal/billing"
	"github.com/roach88/billsync/internal/ir"
)

// pass is one reconciliation pass, either queried or pushed.
type pass struct {
	logger    *slog.Logger
	// fromOwned marks a pass started by an already-owned response.
	fromOwned bool
	rerun     atomic.Bool
}

func (e *Engine) newPass(source string, fromOwned bool) *pass {
	return &pass{
		logger:    e.logger.With("pass", e.passIDs.Generate(), "source", source),
		fromOwned: fromOwned,
	}
}

// Reconcile runs one reconciliation pass once the session is open.
func (e *Engine) Reconcile() {
	e.ExecuteWhenReady(func() { e.runPasses(false) })
}

// runPasses runs a queried pass unless one is already running, in which
// case the request is folded into a single follow-up pass run by the
// active caller. Requests arriving from inside a pass therefore never
// nest.
func (e *Engine) runPasses(fromOwned bool) {
	e.mu.Lock()
	if e.passRunning {
		if e.passQueued {
			e.queuedOwned = e.queuedOwned && fromOwned
		} else {
			e.passQueued = true
			e.queuedOwned = fromOwned
		}
		e.mu.Unlock()
		return
	}
	e.passRunning = true
	e.mu.Unlock()

	for {
		e.reconcilePass(e.newPass("query", fromOwned))

		e.mu.Lock()
		if !e.passQueued {
			e.passRunning = false
			e.mu.Unlock()
			return
		}
		fromOwned = e.queuedOwned
		e.passQueued = false
		e.mu.Unlock()
	}
}

// OnPurchasesUpdated handles an unsolicited purchase push from the service,
// typically the outcome of a purchase flow.
func (e *Engine) OnPurchasesUpdated(res billing.Result, purchases []billing.Purchase) {
	if !res.IsOK() {
		e.handleResult("purchases updated", res)
		return
	}
	if purchases == nil {
		e.logger.Debug("purchases updated with no purchases")
		return
	}
	e.processPurchases(e.newPass("push", false), purchases)
}

// reconcilePass queries the one-time family, then the subscription family
// when supported, and processes the union.
func (e *Engine) reconcilePass(p *pass) {
	purchases, res := e.client.QueryPurchases(ir.KindOneTime)
	if !res.IsOK() {
		e.handleError(p, "query purchases", res.Err())
		return
	}

	if e.subscriptionsSupported() {
		subs, res := e.client.QueryPurchases(ir.KindSubscription)
		if res.IsOK() {
			purchases = append(purchases, subs...)
		} else {
			e.handleError(p, "query subscription purchases", res.Err())
		}
	} else {
		p.logger.Debug("subscription family skipped")
	}

	e.processPurchases(p, purchases)
}

// processPurchases rebuilds the accumulated list from the PURCHASED entries,
// persists it, then consumes or acknowledges each entry.
//
// The cache write is issued before any consume or acknowledge call but is
// not awaited.
func (e *Engine) processPurchases(p *pass, purchases []billing.Purchase) {
	e.metrics.ReconcilePasses.Inc()

	var purchased []billing.Purchase
	for _, pu := range purchases {
		switch pu.State {
		case billing.StatePurchased:
			purchased = append(purchased, pu)
		case billing.StatePending:
			p.logger.Info("purchase pending", "token", pu.Token, "product_id", pu.ProductID)
		default:
			p.logger.Debug("purchase ignored", "token", pu.Token, "state", pu.State.String())
		}
	}

	records := make([]ir.Purchase, len(purchased))
	for i, pu := range purchased {
		records[i] = pu.Record()
	}

	e.mu.Lock()
	e.accumulated = records
	e.mu.Unlock()

	if digest, err := ir.PurchaseSetDigest(records); err == nil {
		p.logger.Info("reconcile pass", "purchased", len(records), "seen", len(purchases), "digest", digest)
	}

	e.persistPurchases(p.logger, records)

	for _, pu := range purchased {
		if pu.ProductID == e.catalog.Consumable {
			e.consume(p, pu)
		} else {
			e.acknowledge(p, pu)
		}
	}
}

// consume dispatches a consume request once per token for the lifetime of
// the engine. A failed consume is not retried.
func (e *Engine) consume(p *pass, pu billing.Purchase) {
	if !e.pending.TryAdd(pu.Token) {
		p.logger.Debug("consume already attempted", "token", pu.Token)
		return
	}
	e.metrics.ConsumeDispatched.Inc()

	e.ExecuteWhenReady(func() {
		e.client.Consume(pu.Token, func(res billing.Result, token string) {
			if res.IsOK() {
				p.logger.Info("purchase consumed", "token", token, "product_id", pu.ProductID)
				return
			}
			e.handleError(p, "consume", res.Err())
		})
	})
}

// acknowledge dispatches an acknowledge request on every pass. The service
// treats a repeated acknowledge as a no-op.
func (e *Engine) acknowledge(p *pass, pu billing.Purchase) {
	e.metrics.AcknowledgeDispatched.Inc()

	e.ExecuteWhenReady(func() {
		e.client.Acknowledge(pu.Token, func(res billing.Result) {
			if res.IsOK() {
				p.logger.Debug("purchase acknowledged", "token", pu.Token, "product_id", pu.ProductID)
				return
			}
			e.handleError(p, "acknowledge", res.Err())
		})
	})
}
