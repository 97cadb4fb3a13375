package testutil

import "sync"

// Recorder is a subscriber that records every billing error message and
// network transition it receives.
type Recorder struct {
	mu          sync.Mutex
	messages    []string
	transitions []string
}

// OnBillingError records message.
func (r *Recorder) OnBillingError(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

// OnNetworkAvailable records an "available" transition.
func (r *Recorder) OnNetworkAvailable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, "available")
}

// OnNetworkLost records a "lost" transition.
func (r *Recorder) OnNetworkLost() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, "lost")
}

// Messages returns the recorded billing error messages in order.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

// Transitions returns the recorded network transitions in order.
func (r *Recorder) Transitions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.transitions...)
}
