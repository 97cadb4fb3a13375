// Package engine implements the purchase reconciliation engine.
//
// The engine owns the single session to the billing service, reconciles the
// service's purchase state into the local cache, and drives consume and
// acknowledge side effects exactly once per detected purchase.
//
// ARCHITECTURE:
//
// Session (session.go):
// A CLOSED/CONNECTING/OPEN state machine. Every remote call goes through
// executeWhenReady, which runs the call immediately when OPEN and otherwise
// defers it until the next transition to OPEN. On each transition to OPEN the
// engine checks subscription support, fetches the catalog, imports purchase
// history and runs a reconciliation pass.
//
// Reconciliation (reconcile.go):
//  1. Query one-time purchases, then subscription purchases if supported
//  2. Keep PURCHASED entries; log PENDING ones
//  3. Queue the cache write for the purchased list
//  4. Consume the consumable product, acknowledge everything else
//
// Consumption is guarded by the PendingSet: a token is consumed at most once
// per engine lifetime. Acknowledgment is repeated on every pass.
//
// Error policy (handle.go):
// Every failed response is classified with billing.Classify. Disconnections
// notify subscribers and reconnect; unavailable service or feature notifies
// subscribers; already-owned triggers a new pass; everything else is logged.
//
// CONCURRENCY:
//
// Billing callbacks may arrive on any goroutine. Shared state (session
// state, subscriber list, pending set, accumulated list) sits behind
// mutexes, and no lock is held while calling out. Cache writes run on a
// worker.Pool and are drained on Close before the session is closed.
package engine
