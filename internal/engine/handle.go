package engine

import (
	"log/slog"

	"github.com/roach88/billsync/internal/billing"
)

// handleResult applies the error policy to a remote response that does not
// belong to a reconciliation pass.
func (e *Engine) handleResult(op string, res billing.Result) {
	e.handleError(nil, op, res.Err())
}

// handleError applies the error policy to a failed remote call. p is the
// pass that issued the call, or nil.
//
//	transient        notify subscribers, reconnect
//	unavailable      notify subscribers
//	already owned    reconcile again, at most once per pass
//	everything else  log only
func (e *Engine) handleError(p *pass, op string, err error) {
	if err == nil {
		return
	}
	class := billing.ClassOf(err)
	e.metrics.billingError(class)

	logger := e.logger
	if p != nil {
		logger = p.logger
	}
	logger = logger.With("op", op, "class", class.String(), "error", err)

	if class.Surfaced() {
		e.notify(billing.UserMessage(billing.CodeOf(err)))
	}

	switch class {
	case billing.ClassTransient:
		logger.Warn("billing service disconnected")
		e.session.reconnect()

	case billing.ClassUnavailable:
		logger.Warn("billing unavailable")

	case billing.ClassAlreadyOwned:
		e.reconcileOwned(p, logger)

	case billing.ClassUserCanceled:
		logger.Info("user canceled")

	case billing.ClassNotOwned:
		logger.Warn("item not owned")

	case billing.ClassConfiguration:
		logger.Warn("billing misconfigured")

	default:
		logger.Warn("billing error")
	}
}

// reconcileOwned re-runs reconciliation after an already-owned response.
// A pass requests at most one re-run, and a re-run never requests another.
func (e *Engine) reconcileOwned(p *pass, logger *slog.Logger) {
	switch {
	case p == nil:
		logger.Info("item already owned, reconciling")
		e.Reconcile()
	case p.fromOwned:
		logger.Warn("item still already owned after re-run, not reconciling again")
	case !p.rerun.CompareAndSwap(false, true):
		logger.Debug("re-run already requested for pass")
	default:
		logger.Info("item already owned, reconciling")
		e.ExecuteWhenReady(func() { e.runPasses(true) })
	}
}
