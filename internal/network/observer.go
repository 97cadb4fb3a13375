package network

import (
	"log/slog"
	"sync"
)

// Listener receives connectivity transitions.
type Listener interface {
	OnNetworkAvailable()
	OnNetworkLost()
}

// Watcher is the low-level connectivity source. Watch starts reporting the
// current reachability to onChange, possibly repeating unchanged values,
// until the returned stop function is called.
type Watcher interface {
	Watch(onChange func(available bool)) (stop func())
}

// Observer fans connectivity transitions out to listeners.
//
// Exactly one low-level watch is held while at least one listener is
// subscribed: it is registered on the 0 to 1 transition and released on
// the 1 to 0 transition. Listeners are notified only when availability
// actually changes.
//
// Listeners must not subscribe or unsubscribe from inside a callback.
type Observer struct {
	watcher Watcher
	logger  *slog.Logger

	// regMu serializes watch registration so Watch and stop are never
	// called concurrently.
	regMu sync.Mutex
	stop  func()

	mu        sync.Mutex
	listeners []Listener
	available bool
	gen       uint64
}

// NewObserver creates an observer over the given watcher.
func NewObserver(w Watcher, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{watcher: w, logger: logger}
}

// Available reports the last known connectivity state.
func (o *Observer) Available() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.available
}

// Subscribers returns the number of subscribed listeners.
func (o *Observer) Subscribers() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.listeners)
}

// Subscribe adds l. Adding an already subscribed listener is a no-op.
func (o *Observer) Subscribe(l Listener) {
	o.regMu.Lock()
	defer o.regMu.Unlock()

	o.mu.Lock()
	for _, existing := range o.listeners {
		if existing == l {
			o.mu.Unlock()
			return
		}
	}
	o.listeners = append(o.listeners, l)
	first := len(o.listeners) == 1
	var gen uint64
	if first {
		o.gen++
		gen = o.gen
		o.available = false
	}
	o.mu.Unlock()

	if first {
		o.logger.Debug("network watch registered")
		o.stop = o.watcher.Watch(func(available bool) {
			o.update(gen, available)
		})
	}
}

// Unsubscribe removes l. Removing the last listener releases the watch.
func (o *Observer) Unsubscribe(l Listener) {
	o.regMu.Lock()
	defer o.regMu.Unlock()

	o.mu.Lock()
	idx := -1
	for i, existing := range o.listeners {
		if existing == l {
			idx = i
			break
		}
	}
	if idx < 0 {
		o.mu.Unlock()
		return
	}
	o.listeners = append(o.listeners[:idx], o.listeners[idx+1:]...)
	last := len(o.listeners) == 0
	if last {
		o.gen++ // stale reports from the released watch are ignored
	}
	o.mu.Unlock()

	if last && o.stop != nil {
		o.stop()
		o.stop = nil
		o.logger.Debug("network watch released")
	}
}

func (o *Observer) update(gen uint64, available bool) {
	o.mu.Lock()
	if gen != o.gen || available == o.available {
		o.mu.Unlock()
		return
	}
	o.available = available
	listeners := make([]Listener, len(o.listeners))
	copy(listeners, o.listeners)
	o.mu.Unlock()

	if available {
		o.logger.Info("network available")
	} else {
		o.logger.Info("network lost")
	}

	for _, l := range listeners {
		if available {
			l.OnNetworkAvailable()
		} else {
			l.OnNetworkLost()
		}
	}
}
