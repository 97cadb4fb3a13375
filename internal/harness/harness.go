package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/roach88/billsync/internal/billing"
	"github.com/roach88/billsync/internal/config"
	"github.com/roach88/billsync/internal/engine"
	"github.com/roach88/billsync/internal/ir"
	"github.com/roach88/billsync/internal/network"
	"github.com/roach88/billsync/internal/store"
	"github.com/roach88/billsync/internal/testutil"
)

// DefaultPassID is the reconciliation pass id used when a scenario sets none.
const DefaultPassID = "test-pass"

// flushTimeout bounds the wait for queued cache writes after each step.
const flushTimeout = 5 * time.Second

// Launch error kinds accepted by Step.ExpectError.
const (
	launchErrUnknownProduct           = "unknown_product"
	launchErrSubscriptionsUnsupported = "subscriptions_unsupported"
	launchErrClosed                   = "closed"
)

// Harness is the scenario execution environment: a real engine over an
// in-memory store, driven by a scripted billing client and network watcher.
//
// The engine runs with a single worker so cache writes apply in the order
// they were queued.
type Harness struct {
	client  *testutil.FakeClient
	watcher *testutil.FakeWatcher
	store   *store.Store
	engine  *engine.Engine
	logger  *slog.Logger

	subscribers map[string]*testutil.Recorder

	// traced is the number of client calls already copied to the trace.
	traced int
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
//  1. Load the catalog and seed the cache
//  2. Script the fake billing client
//  3. Execute flow steps, tracing the calls each one causes
//  4. Snapshot the final state and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	cfg := config.Default()
	if scenario.Catalog != "" {
		loaded, err := config.Load(scenario.Catalog)
		if err != nil {
			return nil, fmt.Errorf("failed to load catalog: %w", err)
		}
		cfg = loaded
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	st, err := store.Open(":memory:", store.WithHiddenProduct(cfg.Hidden), store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if err := seedCache(ctx, st, scenario.Setup.Cache); err != nil {
		return nil, fmt.Errorf("failed to seed cache: %w", err)
	}

	client := testutil.NewFakeClient()
	if err := scriptClient(client, &scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to script billing client: %w", err)
	}

	passID := scenario.PassID
	if passID == "" {
		passID = DefaultPassID
	}

	ecfg := cfg.Engine()
	ecfg.Workers = 1
	watcher := testutil.NewFakeWatcher()
	eng := engine.New(client, st, ecfg,
		engine.WithLogger(logger),
		engine.WithPassIDGenerator(engine.NewFixedGenerator(passID)),
		engine.WithNetwork(network.NewObserver(watcher, logger)),
	)
	defer eng.Close()
	client.SetPurchasesListener(eng.OnPurchasesUpdated)

	h := &Harness{
		client:      client,
		watcher:     watcher,
		store:       st,
		engine:      eng,
		logger:      logger,
		subscribers: make(map[string]*testutil.Recorder),
	}

	result := NewResult()
	for i, step := range scenario.Flow {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("flow step %d (%s): %w", i, step.Step, err)
		}
	}

	if err := h.snapshot(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to snapshot final state: %w", err)
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// executeStep runs one flow step, waits for its cache writes, and appends
// the step and the calls it caused to the trace.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	result.AddStepTrace(i, step.Step, stepArg(step))

	switch step.Step {
	case StepSubscribe:
		h.engine.Subscribe(h.subscriber(step.Subscriber))
	case StepUnsubscribe:
		h.engine.Unsubscribe(h.subscriber(step.Subscriber))
	case StepReconcile:
		h.engine.Reconcile()
	case StepPushUpdate:
		code := billing.CodeOK
		if step.Code != "" {
			parsed, err := billing.ParseResponseCode(step.Code)
			if err != nil {
				return err
			}
			code = parsed
		}
		purchases, err := toPurchases(step.Purchases)
		if err != nil {
			return err
		}
		if len(purchases) == 0 {
			h.client.PushPurchases(billing.ResultOf(code))
		} else {
			h.client.PushPurchases(billing.ResultOf(code), purchases...)
		}
	case StepDisconnect:
		h.client.Disconnect()
	case StepNetworkAvailable:
		h.watcher.Set(true)
	case StepNetworkLost:
		h.watcher.Set(false)
	case StepLaunch:
		err := h.engine.LaunchPurchase(ctx, step.ProductID)
		if got := launchErrorKind(err); got != step.ExpectError {
			result.AddError(fmt.Sprintf("flow[%d]: launch %s: expected error %q, got %q (%v)",
				i, step.ProductID, step.ExpectError, got, err))
		}
	case StepSetPurchases:
		purchases, err := toPurchases(step.Purchases)
		if err != nil {
			return err
		}
		h.client.SetPurchases(ir.ProductKind(step.Family), purchases...)
	case StepSetSubscriptionsSupported:
		h.client.SetSubscriptionsSupported(*step.Supported)
	case StepHoldCallbacks:
		h.client.HoldCallbacks()
	case StepReleaseCallbacks:
		h.client.ReleaseCallbacks()
	default:
		return fmt.Errorf("unknown step %q", step.Step)
	}

	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := h.engine.Flush(flushCtx); err != nil {
		return fmt.Errorf("flush cache writes: %w", err)
	}

	h.traceCalls(result)
	h.logger.Info("flow step completed", "step", i, "kind", step.Step)
	return nil
}

func (h *Harness) traceCalls(result *Result) {
	calls := h.client.Calls()
	for _, c := range calls[h.traced:] {
		result.AddCallTrace(c.Method, c.Arg, c.Seq)
	}
	h.traced = len(calls)
}

// subscriber returns the recorder registered under name, creating it on
// first use.
func (h *Harness) subscriber(name string) *testutil.Recorder {
	rec, ok := h.subscribers[name]
	if !ok {
		rec = &testutil.Recorder{}
		h.subscribers[name] = rec
	}
	return rec
}

func (h *Harness) snapshot(ctx context.Context, result *Result) error {
	result.State = h.engine.State().String()

	products, err := h.store.Products(ctx)
	if err != nil {
		return err
	}
	purchases, err := h.store.Purchases(ctx)
	if err != nil {
		return err
	}
	result.Products = products
	result.Purchases = purchases

	for name, rec := range h.subscribers {
		result.Messages[name] = rec.Messages()
	}
	return nil
}

// SubscriberNames returns the subscriber names of a result in sorted order.
func (r *Result) SubscriberNames() []string {
	names := make([]string, 0, len(r.Messages))
	for name := range r.Messages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func stepArg(step Step) string {
	switch step.Step {
	case StepSubscribe, StepUnsubscribe:
		return step.Subscriber
	case StepLaunch:
		return step.ProductID
	case StepPushUpdate:
		if step.Code == "" {
			return billing.CodeOK.String()
		}
		return step.Code
	case StepSetPurchases:
		return step.Family
	case StepSetSubscriptionsSupported:
		return strconv.FormatBool(*step.Supported)
	default:
		return ""
	}
}

func launchErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, engine.ErrUnknownProduct):
		return launchErrUnknownProduct
	case errors.Is(err, engine.ErrSubscriptionsUnsupported):
		return launchErrSubscriptionsUnsupported
	case errors.Is(err, engine.ErrClosed):
		return launchErrClosed
	default:
		return "error"
	}
}

// scriptClient installs the scripted responses of s on client.
func scriptClient(client *testutil.FakeClient, s *Setup) error {
	if s.SubscriptionsSupported != nil {
		client.SetSubscriptionsSupported(*s.SubscriptionsSupported)
	}

	for family, list := range s.Purchases {
		purchases, err := toPurchases(list)
		if err != nil {
			return err
		}
		client.SetPurchases(ir.ProductKind(family), purchases...)
	}
	for family, list := range s.History {
		records := make([]billing.HistoryRecord, len(list))
		for i, h := range list {
			records[i] = billing.HistoryRecord{Token: h.Token, ProductID: h.ProductID, PurchaseTime: h.PurchaseTime}
		}
		client.SetHistory(ir.ProductKind(family), records...)
	}
	for family, list := range s.Products {
		kind := ir.ProductKind(family)
		details := make([]billing.ProductDetails, len(list))
		for i, p := range list {
			details[i] = billing.ProductDetails{ID: p.ID, Kind: kind, Price: p.Price, Descriptor: p.Descriptor}
		}
		client.SetProductDetails(kind, details...)
	}

	for _, c := range s.SetupResults {
		res, err := resultOf(c)
		if err != nil {
			return err
		}
		client.QueueSetupResult(res)
	}

	perFamily := []struct {
		codes map[string]string
		set   func(ir.ProductKind, billing.Result)
	}{
		{s.PurchasesResults, client.SetPurchasesResult},
		{s.HistoryResults, client.SetHistoryResult},
		{s.DetailsResults, client.SetDetailsResult},
	}
	for _, pf := range perFamily {
		for family, c := range pf.codes {
			res, err := resultOf(c)
			if err != nil {
				return err
			}
			pf.set(ir.ProductKind(family), res)
		}
	}

	for token, c := range s.ConsumeResults {
		res, err := resultOf(c)
		if err != nil {
			return err
		}
		client.SetConsumeResult(token, res)
	}
	for token, c := range s.AcknowledgeResults {
		res, err := resultOf(c)
		if err != nil {
			return err
		}
		client.SetAcknowledgeResult(token, res)
	}
	if s.LaunchResult != "" {
		res, err := resultOf(s.LaunchResult)
		if err != nil {
			return err
		}
		client.SetLaunchResult(res)
	}
	return nil
}

func seedCache(ctx context.Context, st *store.Store, seed CacheSeed) error {
	products := make([]ir.Product, len(seed.Products))
	for i, p := range seed.Products {
		products[i] = ir.Product{ID: p.ID, Kind: ir.ProductKind(p.Kind), Price: p.Price, Descriptor: p.Descriptor}
	}
	if err := st.UpsertProducts(ctx, products); err != nil {
		return err
	}

	purchases, err := toPurchases(seed.Purchases)
	if err != nil {
		return err
	}
	records := make([]ir.Purchase, len(purchases))
	for i, p := range purchases {
		records[i] = p.Record()
	}
	return st.UpsertPurchases(ctx, records)
}

func toPurchases(list []PurchaseSpec) ([]billing.Purchase, error) {
	out := make([]billing.Purchase, len(list))
	for i, p := range list {
		state := billing.StatePurchased
		if p.State != "" {
			parsed, err := billing.ParsePurchaseState(p.State)
			if err != nil {
				return nil, fmt.Errorf("purchase %s: %w", p.Token, err)
			}
			state = parsed
		}
		out[i] = billing.Purchase{
			Token:        p.Token,
			ProductID:    p.ProductID,
			OrderID:      p.OrderID,
			PurchaseTime: p.PurchaseTime,
			State:        state,
		}
	}
	return out, nil
}

func resultOf(code string) (billing.Result, error) {
	c, err := billing.ParseResponseCode(code)
	if err != nil {
		return billing.Result{}, err
	}
	return billing.ResultOf(c), nil
}
