package engine

import "sync"

// registry is the ordered subscriber list with set semantics.
type registry struct {
	mu   sync.Mutex
	subs []Subscriber
}

// add appends s unless present.
func (r *registry) add(s Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.subs {
		if existing == s {
			return
		}
	}
	r.subs = append(r.subs, s)
}

// remove drops s. Reports whether s was present.
func (r *registry) remove(s Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.subs {
		if existing == s {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return true
		}
	}
	return false
}

// clear removes every subscriber and returns how many there were.
func (r *registry) clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.subs)
	r.subs = nil
	return n
}

func (r *registry) snapshot() []Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Subscriber, len(r.subs))
	copy(out, r.subs)
	return out
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Subscribe registers s and forces a connection attempt. Registering an
// already registered subscriber only repeats the connection attempt.
// The first subscriber also starts network observation.
func (e *Engine) Subscribe(s Subscriber) {
	if e.isClosed() {
		return
	}
	e.registry.add(s)
	e.syncLifecycle(true)
}

// Unsubscribe removes s. Removing the last subscriber closes the session
// and releases network observation; a later Subscribe reopens it.
func (e *Engine) Unsubscribe(s Subscriber) {
	if e.registry.remove(s) {
		e.syncLifecycle(false)
	}
}

// syncLifecycle brings network observation and the session in line with
// whether any subscriber is registered; connect requests a connection
// attempt while subscribers remain. One caller applies transitions at a
// time and a change made while it works is picked up before it returns,
// so the last registry state always wins. No lock is held while the
// observer or the session runs.
func (e *Engine) syncLifecycle(connect bool) {
	e.mu.Lock()
	if connect {
		e.connectPending = true
	}
	if e.lifecycleBusy {
		e.lifecycleDirty = true
		e.mu.Unlock()
		return
	}
	e.lifecycleBusy = true

	for {
		e.lifecycleDirty = false
		want := e.registry.len() > 0
		had := e.engaged
		e.engaged = want
		closed := e.closed
		connectNow := e.connectPending || !had
		e.connectPending = false
		e.mu.Unlock()

		switch {
		case want:
			if !had {
				e.logger.Info("first subscriber registered")
				if e.observer != nil {
					e.observer.Subscribe(e)
				}
			}
			if connectNow && !closed {
				e.session.connect()
			}
		case had:
			e.logger.Info("last subscriber removed, tearing down")
			if e.observer != nil {
				e.observer.Unsubscribe(e)
			}
			// Close ends the session itself once writes have drained.
			if !closed {
				e.session.teardown()
			}
		}

		e.mu.Lock()
		if !e.lifecycleDirty {
			e.lifecycleBusy = false
			e.mu.Unlock()
			return
		}
	}
}

// Subscribers returns the number of registered subscribers.
func (e *Engine) Subscribers() int {
	return e.registry.len()
}

// notify delivers message to every subscriber.
func (e *Engine) notify(message string) {
	for _, s := range e.registry.snapshot() {
		s.OnBillingError(message)
	}
}
