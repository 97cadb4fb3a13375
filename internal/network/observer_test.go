package network

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/billsync/internal/testutil"
)

func TestObserver_RefCountedWatch(t *testing.T) {
	w := testutil.NewFakeWatcher()
	o := NewObserver(w, nil)

	a, b := &testutil.Recorder{}, &testutil.Recorder{}

	o.Subscribe(a)
	o.Subscribe(b)
	o.Subscribe(a) // duplicate is a no-op
	assert.Equal(t, 1, w.Watches(), "exactly one low-level watch")
	assert.Equal(t, 2, o.Subscribers())

	o.Unsubscribe(a)
	assert.True(t, w.Active())
	assert.Equal(t, 0, w.Stops())

	o.Unsubscribe(b)
	assert.False(t, w.Active())
	assert.Equal(t, 1, w.Stops())

	o.Unsubscribe(b) // unknown listener is a no-op
	assert.Equal(t, 1, w.Stops())

	o.Subscribe(a)
	assert.Equal(t, 2, w.Watches(), "re-subscribing registers a fresh watch")
}

func TestObserver_EdgeTriggered(t *testing.T) {
	w := testutil.NewFakeWatcher()
	o := NewObserver(w, nil)
	r := &testutil.Recorder{}
	o.Subscribe(r)

	w.Set(false) // initial state is already "not available"
	w.Set(true)
	w.Set(true)
	w.Set(false)
	w.Set(false)
	w.Set(true)

	assert.Equal(t, []string{"available", "lost", "available"}, r.Transitions())
	assert.True(t, o.Available())
}

func TestObserver_FanOut(t *testing.T) {
	w := testutil.NewFakeWatcher()
	o := NewObserver(w, nil)
	a, b := &testutil.Recorder{}, &testutil.Recorder{}
	o.Subscribe(a)
	o.Subscribe(b)

	w.Set(true)

	assert.Equal(t, []string{"available"}, a.Transitions())
	assert.Equal(t, []string{"available"}, b.Transitions())
}

func TestObserver_StaleReportsIgnoredAfterRelease(t *testing.T) {
	var captured func(bool)
	w := watcherFunc(func(onChange func(bool)) func() {
		captured = onChange
		return func() {}
	})
	o := NewObserver(w, nil)
	r := &testutil.Recorder{}

	o.Subscribe(r)
	o.Unsubscribe(r)
	captured(true)

	assert.Empty(t, r.Transitions())
	assert.False(t, o.Available())
}

func TestPollingWatcher_ReportsProbeResults(t *testing.T) {
	var calls atomic.Int64
	w := &PollingWatcher{
		Interval: 5 * time.Millisecond,
		Probe: func(context.Context) bool {
			return calls.Add(1)%2 == 1
		},
	}

	var reports atomic.Int64
	stop := w.Watch(func(bool) { reports.Add(1) })

	require.Eventually(t, func() bool { return reports.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	stop()
	stop()

	after := reports.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, reports.Load(), "no reports after stop")
}

func TestPollingWatcher_DialFailsOnClosedPort(t *testing.T) {
	w := &PollingWatcher{Address: "127.0.0.1:1", Timeout: 200 * time.Millisecond}
	assert.False(t, w.dial(context.Background()))
}

type watcherFunc func(onChange func(bool)) func()

func (f watcherFunc) Watch(onChange func(bool)) func() { return f(onChange) }
