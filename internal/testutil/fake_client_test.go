package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/billsync/internal/billing"
	"github.com/roach88/billsync/internal/ir"
)

func connect(t *testing.T, c *FakeClient) []billing.ConnectionEvent {
	t.Helper()
	var events []billing.ConnectionEvent
	c.StartConnection(func(ev billing.ConnectionEvent) { events = append(events, ev) })
	return events
}

func TestFakeClient_SetupDefaultsToOK(t *testing.T) {
	c := NewFakeClient()
	var events []billing.ConnectionEvent
	c.StartConnection(func(ev billing.ConnectionEvent) { events = append(events, ev) })

	require.Len(t, events, 1)
	assert.Equal(t, billing.EventSetupFinished, events[0].Kind)
	assert.True(t, events[0].Result.IsOK())
	assert.True(t, c.IsReady())
}

func TestFakeClient_QueuedSetupResults(t *testing.T) {
	c := NewFakeClient()
	c.QueueSetupResult(billing.ResultOf(billing.CodeBillingUnavailable))

	var last billing.Result
	c.StartConnection(func(ev billing.ConnectionEvent) { last = ev.Result })
	assert.Equal(t, billing.CodeBillingUnavailable, last.Code)
	assert.False(t, c.IsReady())

	c.StartConnection(func(ev billing.ConnectionEvent) { last = ev.Result })
	assert.True(t, last.IsOK())
	assert.Equal(t, 2, c.Count(MethodStartConnection, ""))
}

func TestFakeClient_HoldSetup(t *testing.T) {
	c := NewFakeClient()
	c.HoldSetup()

	var events []billing.ConnectionEvent
	c.StartConnection(func(ev billing.ConnectionEvent) { events = append(events, ev) })
	assert.Empty(t, events)

	c.CompleteSetup(billing.OK)
	require.Len(t, events, 1)
	assert.True(t, c.IsReady())
}

func TestFakeClient_Disconnect(t *testing.T) {
	c := NewFakeClient()
	var events []billing.ConnectionEvent
	c.StartConnection(func(ev billing.ConnectionEvent) { events = append(events, ev) })

	c.Disconnect()
	require.Len(t, events, 2)
	assert.Equal(t, billing.EventServiceDisconnected, events[1].Kind)
	assert.False(t, c.IsReady())

	_, r := c.QueryPurchases(ir.KindOneTime)
	assert.Equal(t, billing.CodeServiceDisconnected, r.Code)
}

func TestFakeClient_QueriesAndRecording(t *testing.T) {
	c := NewFakeClient()
	connect(t, c)

	c.SetPurchases(ir.KindOneTime, billing.Purchase{Token: "T1", ProductID: "one_apple", State: billing.StatePurchased})
	c.SetProductDetails(ir.KindOneTime,
		billing.ProductDetails{ID: "one_apple", Kind: ir.KindOneTime},
		billing.ProductDetails{ID: "unrequested", Kind: ir.KindOneTime},
	)

	purchases, r := c.QueryPurchases(ir.KindOneTime)
	require.True(t, r.IsOK())
	require.Len(t, purchases, 1)

	var details []billing.ProductDetails
	c.QueryProductDetails(ir.KindOneTime, []string{"one_apple"}, func(r billing.Result, d []billing.ProductDetails) {
		details = d
	})
	require.Len(t, details, 1)
	assert.Equal(t, "one_apple", details[0].ID)

	calls := c.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, int64(1), calls[0].Seq)
	assert.Equal(t, Call{Seq: 3, Method: MethodQueryProductDetails, Arg: "one_time:one_apple"}, calls[2])

	c.ResetCalls()
	assert.Empty(t, c.Calls())
}

func TestFakeClient_FeatureSupport(t *testing.T) {
	c := NewFakeClient()
	assert.True(t, c.IsFeatureSupported(billing.FeatureSubscriptions).IsOK())

	c.SetSubscriptionsSupported(false)
	assert.Equal(t, billing.CodeFeatureNotSupported, c.IsFeatureSupported(billing.FeatureSubscriptions).Code)
}

func TestFakeClient_HeldCallbacksAfterDisconnect(t *testing.T) {
	c := NewFakeClient()
	connect(t, c)
	c.HoldCallbacks()

	var consumed, acked billing.Result
	consumedCalls := 0
	c.Consume("T1", func(r billing.Result, token string) {
		consumed = r
		consumedCalls++
		assert.Equal(t, "T1", token)
	})
	c.Acknowledge("T2", func(r billing.Result) { acked = r })
	assert.Zero(t, consumedCalls)

	c.Disconnect()
	c.ReleaseCallbacks()

	assert.Equal(t, 1, consumedCalls)
	assert.Equal(t, billing.CodeServiceDisconnected, consumed.Code)
	assert.Equal(t, billing.CodeServiceDisconnected, acked.Code)
}

func TestFakeClient_PushPurchases(t *testing.T) {
	c := NewFakeClient()

	var got []billing.Purchase
	c.SetPurchasesListener(func(r billing.Result, p []billing.Purchase) { got = p })
	c.PushPurchases(billing.OK, billing.Purchase{Token: "T9"})

	require.Len(t, got, 1)
	assert.Equal(t, "T9", got[0].Token)
}

func TestFakeWatcher(t *testing.T) {
	w := NewFakeWatcher()
	w.Set(true) // no watch yet

	var seen []bool
	stop := w.Watch(func(v bool) { seen = append(seen, v) })
	assert.True(t, w.Active())

	w.Set(true)
	w.Set(false)
	stop()
	stop()
	w.Set(true)

	assert.Equal(t, []bool{true, false}, seen)
	assert.Equal(t, 1, w.Watches())
	assert.Equal(t, 1, w.Stops())
	assert.False(t, w.Active())
}
