package testutil

import "sync"

// FakeWatcher is a manually driven network watcher.
//
// It satisfies network.Watcher. Set reports a reachability value to the
// active watch, if any.
type FakeWatcher struct {
	mu       sync.Mutex
	onChange func(bool)
	watches  int
	stops    int
}

// NewFakeWatcher creates an idle watcher.
func NewFakeWatcher() *FakeWatcher {
	return &FakeWatcher{}
}

// Watch registers onChange as the active watch.
func (w *FakeWatcher) Watch(onChange func(available bool)) (stop func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watches++
	w.onChange = onChange

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			w.stops++
			w.onChange = nil
		})
	}
}

// Set reports available to the active watch. It is a no-op when no watch
// is registered.
func (w *FakeWatcher) Set(available bool) {
	w.mu.Lock()
	onChange := w.onChange
	w.mu.Unlock()

	if onChange != nil {
		onChange(available)
	}
}

// Active reports whether a watch is registered.
func (w *FakeWatcher) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.onChange != nil
}

// Watches returns how many times Watch was called.
func (w *FakeWatcher) Watches() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watches
}

// Stops returns how many watches were released.
func (w *FakeWatcher) Stops() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stops
}
