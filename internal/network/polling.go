package network

import (
	"context"
	"net"
	"sync"
	"time"
)

// Defaults for PollingWatcher.
const (
	DefaultProbeAddress  = "play.googleapis.com:443"
	DefaultProbeInterval = 30 * time.Second
	DefaultProbeTimeout  = 5 * time.Second
)

// ProbeFunc reports whether outbound connectivity is usable.
type ProbeFunc func(ctx context.Context) bool

// PollingWatcher derives reachability by probing on a fixed interval.
// The zero value probes DefaultProbeAddress over TCP every
// DefaultProbeInterval.
type PollingWatcher struct {
	Address  string
	Interval time.Duration
	Timeout  time.Duration

	// Probe overrides the TCP dial probe.
	Probe ProbeFunc
}

var _ Watcher = (*PollingWatcher)(nil)

// NewPollingWatcher returns a watcher dialing address every interval.
// Empty or zero arguments fall back to the defaults.
func NewPollingWatcher(address string, interval time.Duration) *PollingWatcher {
	return &PollingWatcher{Address: address, Interval: interval}
}

// Watch probes immediately, then every Interval, until stop is called.
// stop blocks until the polling goroutine has exited.
func (w *PollingWatcher) Watch(onChange func(available bool)) (stop func()) {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	probe := w.Probe
	if probe == nil {
		probe = w.dial
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			available := probe(ctx)
			if ctx.Err() != nil {
				return
			}
			onChange(available)

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}

func (w *PollingWatcher) dial(ctx context.Context) bool {
	address := w.Address
	if address == "" {
		address = DefaultProbeAddress
	}
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
