package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/billsync/internal/billing"
)

// SessionState is the lifecycle state of the billing session.
type SessionState int

const (
	StateClosed SessionState = iota
	StateConnecting
	StateOpen
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	default:
		return "CLOSED"
	}
}

// session owns the single connection to the billing service.
//
// State transitions:
//
//	CLOSED -> CONNECTING      connect()
//	CONNECTING -> OPEN        setup finished OK
//	CONNECTING -> CLOSED      setup failed
//	OPEN -> CLOSED            transport drop, or teardown
//
// Operations passed to executeWhenReady never run before OPEN is reached.
// Operations deferred while not OPEN survive failed attempts and are dropped
// only by teardown.
//
// Every StartConnection is tagged with an epoch; events from an older epoch
// are ignored, so a late setup result after teardown cannot reopen the
// session.
type session struct {
	client  billing.Client
	logger  *slog.Logger
	metrics *Metrics

	// onReady runs after each transition to OPEN, before deferred ops.
	onReady func()
	// onFailure receives failed setup results for classification.
	onFailure func(op string, res billing.Result)

	mu       sync.Mutex
	state    SessionState
	epoch    uint64
	deferred []func()

	backoff    backoff.BackOff
	retries    int
	retryTimer *time.Timer
	teardowns  uint64
}

func newSession(client billing.Client, b backoff.BackOff, logger *slog.Logger, metrics *Metrics) *session {
	return &session{
		client:  client,
		logger:  logger,
		metrics: metrics,
		backoff: b,
	}
}

// State returns the current state.
func (s *session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// connect opens a session unless one is open or opening. Concurrent calls
// while CLOSED issue exactly one StartConnection.
func (s *session) connect() {
	s.mu.Lock()
	if s.state != StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateConnecting
	s.epoch++
	epoch := s.epoch
	s.mu.Unlock()

	s.metrics.ConnectAttempts.Inc()
	s.logger.Info("billing session connecting", "epoch", epoch)
	s.client.StartConnection(func(ev billing.ConnectionEvent) {
		s.handleEvent(epoch, ev)
	})
}

// executeWhenReady runs op now if OPEN; otherwise defers it and connects.
func (s *session) executeWhenReady(op func()) {
	s.mu.Lock()
	if s.state == StateOpen {
		s.mu.Unlock()
		op()
		return
	}
	s.deferred = append(s.deferred, op)
	s.mu.Unlock()

	s.connect()
}

func (s *session) handleEvent(epoch uint64, ev billing.ConnectionEvent) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		s.logger.Debug("stale billing session event ignored", "epoch", epoch, "event", ev.Kind.String())
		return
	}

	switch ev.Kind {
	case billing.EventSetupFinished:
		if !ev.Result.IsOK() {
			s.state = StateClosed
			s.mu.Unlock()
			s.logger.Warn("billing session setup failed",
				"code", ev.Result.Code.String(), "debug", ev.Result.DebugMessage)
			s.onFailure("connect", ev.Result)
			return
		}

		s.state = StateOpen
		ops := s.deferred
		s.deferred = nil
		s.resetRetryLocked()
		s.mu.Unlock()

		s.logger.Info("billing session open", "epoch", epoch, "deferred", len(ops))
		if s.onReady != nil {
			s.onReady()
		}
		for _, op := range ops {
			op()
		}

	case billing.EventServiceDisconnected:
		// No reconnect here: the next executeWhenReady, subscriber or
		// network-available signal starts a new attempt.
		s.state = StateClosed
		s.mu.Unlock()
		s.logger.Warn("billing session disconnected", "epoch", epoch)

	default:
		s.mu.Unlock()
	}
}

// reconnect re-attempts a connection after a SERVICE_DISCONNECTED result.
// The first retry is immediate; consecutive retries wait for the next
// backoff interval. Success resets the sequence.
func (s *session) reconnect() {
	ready := s.client.IsReady()

	s.mu.Lock()
	if s.state == StateOpen && ready {
		s.mu.Unlock()
		return
	}
	if s.state == StateOpen {
		s.state = StateClosed
	}
	if s.retryTimer != nil {
		s.mu.Unlock()
		return
	}

	attempt := s.retries
	s.retries++
	if attempt == 0 {
		s.mu.Unlock()
		s.logger.Info("billing session reconnecting")
		s.connect()
		return
	}

	delay := s.backoff.NextBackOff()
	if delay == backoff.Stop {
		s.mu.Unlock()
		s.logger.Warn("billing session reconnect abandoned", "attempts", attempt)
		return
	}
	generation := s.teardowns
	s.retryTimer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.teardowns != generation {
			s.mu.Unlock()
			return
		}
		s.retryTimer = nil
		s.mu.Unlock()
		s.connect()
	})
	s.mu.Unlock()

	s.logger.Info("billing session reconnect scheduled", "delay", delay, "attempt", attempt+1)
}

// teardown closes the session deliberately and drops deferred operations.
func (s *session) teardown() {
	s.mu.Lock()
	wasActive := s.state != StateClosed
	s.state = StateClosed
	s.epoch++
	s.teardowns++
	dropped := len(s.deferred)
	s.deferred = nil
	s.resetRetryLocked()
	s.mu.Unlock()

	if wasActive {
		s.client.EndConnection()
	}
	s.logger.Info("billing session closed", "dropped_ops", dropped)
}

// resetRetryLocked clears the reconnect sequence. Caller holds s.mu.
func (s *session) resetRetryLocked() {
	s.retries = 0
	s.backoff.Reset()
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}
