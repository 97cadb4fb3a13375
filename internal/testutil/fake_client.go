package testutil

import (
	"strings"
	"sync"

	"github.com/roach88/billsync/internal/billing"
	"github.com/roach88/billsync/internal/ir"
)

// Method names recorded by FakeClient.
const (
	MethodStartConnection      = "start_connection"
	MethodEndConnection        = "end_connection"
	MethodIsFeatureSupported   = "is_feature_supported"
	MethodQueryPurchases       = "query_purchases"
	MethodQueryPurchaseHistory = "query_purchase_history"
	MethodQueryProductDetails  = "query_product_details"
	MethodConsume              = "consume"
	MethodAcknowledge          = "acknowledge"
	MethodLaunchPurchaseFlow   = "launch_purchase_flow"
)

// Call is one recorded FakeClient invocation.
type Call struct {
	Seq    int64
	Method string
	Arg    string
}

// FakeClient is a scripted, in-memory billing.Client.
//
// Responses are configured with the Set* methods. Callbacks are delivered
// synchronously from within the call unless HoldCallbacks is enabled, in
// which case consume and acknowledge callbacks queue until ReleaseCallbacks.
// Setup can likewise be held with HoldSetup and finished with CompleteSetup.
//
// No lock is held while a callback runs.
type FakeClient struct {
	mu    sync.Mutex
	seq   int64 // logical stamp of the last recorded call
	calls []Call

	ready   bool
	onEvent func(billing.ConnectionEvent)

	setupResults []billing.Result
	holdSetup    bool

	subscriptions bool

	purchases       map[ir.ProductKind][]billing.Purchase
	purchasesResult map[ir.ProductKind]billing.Result
	history         map[ir.ProductKind][]billing.HistoryRecord
	historyResult   map[ir.ProductKind]billing.Result
	details         map[ir.ProductKind][]billing.ProductDetails
	detailsResult   map[ir.ProductKind]billing.Result
	consumeResult   map[string]billing.Result
	ackResult       map[string]billing.Result
	launchResult    billing.Result

	holdCallbacks bool
	held          []heldCallback

	listener billing.PurchasesUpdatedFunc
}

type heldCallback struct {
	result  billing.Result
	deliver func(billing.Result)
}

var _ billing.Client = (*FakeClient)(nil)

// NewFakeClient creates a client that connects successfully and supports
// subscriptions.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		subscriptions:   true,
		purchases:       make(map[ir.ProductKind][]billing.Purchase),
		purchasesResult: make(map[ir.ProductKind]billing.Result),
		history:         make(map[ir.ProductKind][]billing.HistoryRecord),
		historyResult:   make(map[ir.ProductKind]billing.Result),
		details:         make(map[ir.ProductKind][]billing.ProductDetails),
		detailsResult:   make(map[ir.ProductKind]billing.Result),
		consumeResult:   make(map[string]billing.Result),
		ackResult:       make(map[string]billing.Result),
	}
}

// --- scripting ---

// QueueSetupResult queues the outcome of the next StartConnection.
// Without a queued result setup succeeds.
func (c *FakeClient) QueueSetupResult(r billing.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setupResults = append(c.setupResults, r)
}

// SetSubscriptionsSupported controls IsFeatureSupported(FeatureSubscriptions).
func (c *FakeClient) SetSubscriptionsSupported(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions = ok
}

// SetPurchases replaces the purchases returned for a family.
func (c *FakeClient) SetPurchases(family ir.ProductKind, purchases ...billing.Purchase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purchases[family] = append([]billing.Purchase(nil), purchases...)
}

// SetPurchasesResult sets the result code of QueryPurchases for a family.
func (c *FakeClient) SetPurchasesResult(family ir.ProductKind, r billing.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purchasesResult[family] = r
}

// SetHistory replaces the purchase history returned for a family.
func (c *FakeClient) SetHistory(family ir.ProductKind, records ...billing.HistoryRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history[family] = append([]billing.HistoryRecord(nil), records...)
}

// SetHistoryResult sets the result code of QueryPurchaseHistory for a family.
func (c *FakeClient) SetHistoryResult(family ir.ProductKind, r billing.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.historyResult[family] = r
}

// SetProductDetails replaces the product details returned for a family.
// Only details whose id was requested are returned.
func (c *FakeClient) SetProductDetails(family ir.ProductKind, details ...billing.ProductDetails) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.details[family] = append([]billing.ProductDetails(nil), details...)
}

// SetDetailsResult sets the result code of QueryProductDetails for a family.
func (c *FakeClient) SetDetailsResult(family ir.ProductKind, r billing.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detailsResult[family] = r
}

// SetConsumeResult sets the result delivered for consuming token.
func (c *FakeClient) SetConsumeResult(token string, r billing.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consumeResult[token] = r
}

// SetAcknowledgeResult sets the result delivered for acknowledging token.
func (c *FakeClient) SetAcknowledgeResult(token string, r billing.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ackResult[token] = r
}

// SetLaunchResult sets the result of LaunchPurchaseFlow.
func (c *FakeClient) SetLaunchResult(r billing.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.launchResult = r
}

// SetPurchasesListener registers the receiver of PushPurchases.
func (c *FakeClient) SetPurchasesListener(f billing.PurchasesUpdatedFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = f
}

// HoldSetup makes StartConnection wait for CompleteSetup.
func (c *FakeClient) HoldSetup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holdSetup = true
}

// HoldCallbacks queues consume and acknowledge callbacks until
// ReleaseCallbacks.
func (c *FakeClient) HoldCallbacks() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holdCallbacks = true
}

// --- driving ---

// CompleteSetup finishes a held StartConnection with r.
func (c *FakeClient) CompleteSetup(r billing.Result) {
	c.mu.Lock()
	c.holdSetup = false
	onEvent := c.onEvent
	c.ready = r.IsOK()
	c.mu.Unlock()

	if onEvent != nil {
		onEvent(billing.ConnectionEvent{Kind: billing.EventSetupFinished, Result: r})
	}
}

// Disconnect drops the session and reports it to the connection callback.
func (c *FakeClient) Disconnect() {
	c.mu.Lock()
	c.ready = false
	onEvent := c.onEvent
	c.mu.Unlock()

	if onEvent != nil {
		onEvent(billing.ConnectionEvent{Kind: billing.EventServiceDisconnected})
	}
}

// ReleaseCallbacks delivers held callbacks in order and stops holding.
// Callbacks released while disconnected report SERVICE_DISCONNECTED.
func (c *FakeClient) ReleaseCallbacks() {
	c.mu.Lock()
	held := c.held
	c.held = nil
	c.holdCallbacks = false
	ready := c.ready
	c.mu.Unlock()

	for _, h := range held {
		r := h.result
		if !ready {
			r = billing.ResultOf(billing.CodeServiceDisconnected)
		}
		h.deliver(r)
	}
}

// PushPurchases simulates an unsolicited purchases-updated event.
func (c *FakeClient) PushPurchases(r billing.Result, purchases ...billing.Purchase) {
	c.mu.Lock()
	listener := c.listener
	c.mu.Unlock()

	if listener != nil {
		listener(r, purchases)
	}
}

// --- inspection ---

// Calls returns every recorded call in order.
func (c *FakeClient) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallsTo returns the recorded calls to method.
func (c *FakeClient) CallsTo(method string) []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Call
	for _, call := range c.calls {
		if call.Method == method {
			out = append(out, call)
		}
	}
	return out
}

// Count returns how many calls to method had the given argument.
// An empty arg matches every call to method.
func (c *FakeClient) Count(method, arg string) int {
	n := 0
	for _, call := range c.CallsTo(method) {
		if arg == "" || call.Arg == arg {
			n++
		}
	}
	return n
}

// ResetCalls clears the recorded calls and restarts numbering at 1.
func (c *FakeClient) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
	c.seq = 0
}

// record appends a call. Caller holds c.mu.
func (c *FakeClient) record(method, arg string) {
	c.seq++
	c.calls = append(c.calls, Call{Seq: c.seq, Method: method, Arg: arg})
}

// --- billing.Client ---

func (c *FakeClient) StartConnection(onEvent func(billing.ConnectionEvent)) {
	c.mu.Lock()
	c.record(MethodStartConnection, "")
	c.onEvent = onEvent
	if c.holdSetup {
		c.mu.Unlock()
		return
	}
	r := billing.OK
	if len(c.setupResults) > 0 {
		r = c.setupResults[0]
		c.setupResults = c.setupResults[1:]
	}
	c.ready = r.IsOK()
	c.mu.Unlock()

	onEvent(billing.ConnectionEvent{Kind: billing.EventSetupFinished, Result: r})
}

func (c *FakeClient) EndConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(MethodEndConnection, "")
	c.ready = false
	c.onEvent = nil
}

func (c *FakeClient) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *FakeClient) IsFeatureSupported(feature billing.Feature) billing.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(MethodIsFeatureSupported, string(feature))
	if feature == billing.FeatureSubscriptions && !c.subscriptions {
		return billing.ResultOf(billing.CodeFeatureNotSupported)
	}
	return billing.OK
}

func (c *FakeClient) QueryPurchases(family ir.ProductKind) ([]billing.Purchase, billing.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(MethodQueryPurchases, string(family))
	if !c.ready {
		return nil, billing.ResultOf(billing.CodeServiceDisconnected)
	}
	if r, ok := c.purchasesResult[family]; ok && !r.IsOK() {
		return nil, r
	}
	return append([]billing.Purchase(nil), c.purchases[family]...), billing.OK
}

func (c *FakeClient) QueryPurchaseHistory(family ir.ProductKind, done func(billing.Result, []billing.HistoryRecord)) {
	c.mu.Lock()
	c.record(MethodQueryPurchaseHistory, string(family))
	r, records := c.historyResult[family], append([]billing.HistoryRecord(nil), c.history[family]...)
	if !c.ready {
		r = billing.ResultOf(billing.CodeServiceDisconnected)
	}
	c.mu.Unlock()

	if !r.IsOK() {
		done(r, nil)
		return
	}
	done(billing.OK, records)
}

func (c *FakeClient) QueryProductDetails(family ir.ProductKind, ids []string, done func(billing.Result, []billing.ProductDetails)) {
	c.mu.Lock()
	c.record(MethodQueryProductDetails, string(family)+":"+strings.Join(ids, ","))
	r := c.detailsResult[family]
	if !c.ready {
		r = billing.ResultOf(billing.CodeServiceDisconnected)
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var details []billing.ProductDetails
	for _, d := range c.details[family] {
		if wanted[d.ID] {
			details = append(details, d)
		}
	}
	c.mu.Unlock()

	if !r.IsOK() {
		done(r, nil)
		return
	}
	done(billing.OK, details)
}

func (c *FakeClient) Consume(token string, done func(billing.Result, string)) {
	c.mu.Lock()
	c.record(MethodConsume, token)
	r := c.consumeResult[token]
	if !c.ready {
		r = billing.ResultOf(billing.CodeServiceDisconnected)
	}
	deliver := func(r billing.Result) { done(r, token) }
	if c.holdCallbacks {
		c.held = append(c.held, heldCallback{result: r, deliver: deliver})
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	deliver(r)
}

func (c *FakeClient) Acknowledge(token string, done func(billing.Result)) {
	c.mu.Lock()
	c.record(MethodAcknowledge, token)
	r := c.ackResult[token]
	if !c.ready {
		r = billing.ResultOf(billing.CodeServiceDisconnected)
	}
	if c.holdCallbacks {
		c.held = append(c.held, heldCallback{result: r, deliver: done})
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	done(r)
}

func (c *FakeClient) LaunchPurchaseFlow(descriptor string) billing.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(MethodLaunchPurchaseFlow, descriptor)
	return c.launchResult
}
